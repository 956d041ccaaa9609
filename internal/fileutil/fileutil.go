// Package fileutil disposes of duplicate image files: moving them aside,
// sending them to the system trash or deleting them outright.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// Action says what happens to a disposed file
type Action int

const (
	Trash  Action = iota // system trash or recycle bin
	Delete               // os.Remove
	Move                 // into a destination folder
)

func (a Action) String() string {
	switch a {
	case Delete:
		return "permanently delete"
	case Move:
		return "move"
	default:
		return "move to trash"
	}
}

// Disposer applies an Action to files
type Disposer struct {
	Action Action
	// Dest is the target folder for Move.
	Dest string
	// TrashHome overrides the home directory used to locate the trash.
	TrashHome string
}

// Dispose applies the configured action to path
func (d Disposer) Dispose(path string) error {
	switch d.Action {
	case Delete:
		return os.Remove(path)
	case Move:
		if d.Dest == "" {
			return errors.New("no destination folder for move")
		}
		_, err := MoveFile(path, d.Dest)
		return err
	default:
		return moveToTrash(path, d.TrashHome)
	}
}

// MoveFile moves src into destDir and returns the new path. A name that is
// already taken gets a counter suffix (photo_1.jpg).
func MoveFile(src, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", destDir, err)
	}

	name := uniqueName(filepath.Base(src), func(name string) bool {
		return !exists(filepath.Join(destDir, name))
	})
	dest := filepath.Join(destDir, name)
	if err := rename(src, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return !errors.Is(err, os.ErrNotExist)
}

// uniqueName returns filename, or filename with the lowest counter suffix
// for which free reports true.
func uniqueName(filename string, free func(string) bool) string {
	if free(filename) {
		return filename
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		if free(candidate) {
			return candidate
		}
	}
}

// rename falls back to copy and delete when src and dest are on different
// filesystems.
func rename(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dest); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	stat, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_EXCL, stat.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

func moveToTrash(src, home string) error {
	if runtime.GOOS == "windows" && home == "" {
		return moveToWindowsTrash(src)
	}

	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
	}

	switch runtime.GOOS {
	case "darwin":
		_, err := MoveFile(src, filepath.Join(home, ".Trash"))
		return err
	case "windows":
		_, err := MoveFile(src, filepath.Join(home, "imdex_trash"))
		return err
	default:
		return moveToFreedesktopTrash(src, filepath.Join(home, ".local", "share", "Trash"))
	}
}

// moveToFreedesktopTrash writes the .trashinfo record before moving the file
// so the desktop can restore it.
func moveToFreedesktopTrash(src, trashDir string) error {
	filesDir := filepath.Join(trashDir, "files")
	infoDir := filepath.Join(trashDir, "info")
	for _, dir := range []string{filesDir, infoDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create trash directory: %w", err)
		}
	}

	absPath, err := filepath.Abs(src)
	if err != nil {
		return err
	}

	name := uniqueName(filepath.Base(src), func(name string) bool {
		return !exists(filepath.Join(filesDir, name)) && !exists(filepath.Join(infoDir, name+".trashinfo"))
	})

	infoPath := filepath.Join(infoDir, name+".trashinfo")
	info := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		absPath, time.Now().Format("2006-01-02T15:04:05"))
	if err := os.WriteFile(infoPath, []byte(info), 0600); err != nil {
		return err
	}

	if err := rename(src, filepath.Join(filesDir, name)); err != nil {
		os.Remove(infoPath)
		return err
	}
	return nil
}
