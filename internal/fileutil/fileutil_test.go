package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestUniqueName(t *testing.T) {
	taken := map[string]bool{"a.jpg": true, "a_1.jpg": true, "noext": true}
	free := func(name string) bool { return !taken[name] }

	tests := []struct {
		in, want string
	}{
		{"b.jpg", "b.jpg"},
		{"a.jpg", "a_2.jpg"},
		{"noext", "noext_1"},
	}
	for _, tt := range tests {
		if got := uniqueName(tt.in, free); got != tt.want {
			t.Errorf("uniqueName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMoveFile(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "dupes")

	first := filepath.Join(src, "photo.jpg")
	writeFile(t, first, "one")
	got, err := MoveFile(first, dest)
	if err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}
	if got != filepath.Join(dest, "photo.jpg") {
		t.Errorf("dest = %s", got)
	}
	if exists(first) {
		t.Error("source still exists")
	}

	// same name again gets a suffix
	sub := filepath.Join(src, "sub")
	os.MkdirAll(sub, 0755)
	second := filepath.Join(sub, "photo.jpg")
	writeFile(t, second, "two")
	got, err = MoveFile(second, dest)
	if err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}
	if filepath.Base(got) != "photo_1.jpg" {
		t.Errorf("dest = %s, want photo_1.jpg", got)
	}
	data, _ := os.ReadFile(got)
	if string(data) != "two" {
		t.Errorf("content = %q", data)
	}
}

func TestMoveFile_MissingSource(t *testing.T) {
	if _, err := MoveFile(filepath.Join(t.TempDir(), "gone.jpg"), t.TempDir()); err == nil {
		t.Error("expected error for missing source")
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	writeFile(t, src, "pixels")

	dest := filepath.Join(dir, "b.png")
	if err := copyFile(src, dest); err != nil {
		t.Fatalf("copyFile failed: %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "pixels" {
		t.Errorf("content = %q", data)
	}

	// refuses to clobber
	if err := copyFile(src, dest); err == nil {
		t.Error("expected error for existing destination")
	}
}

func TestMoveToFreedesktopTrash(t *testing.T) {
	trash := filepath.Join(t.TempDir(), "Trash")
	dir := t.TempDir()

	for i := 0; i < 2; i++ {
		path := filepath.Join(dir, "x.jpg")
		writeFile(t, path, "img")
		if err := moveToFreedesktopTrash(path, trash); err != nil {
			t.Fatalf("moveToFreedesktopTrash failed: %v", err)
		}
	}

	for _, name := range []string{"x.jpg", "x_1.jpg"} {
		if !exists(filepath.Join(trash, "files", name)) {
			t.Errorf("missing trashed file %s", name)
		}
		info, err := os.ReadFile(filepath.Join(trash, "info", name+".trashinfo"))
		if err != nil {
			t.Fatalf("missing trashinfo for %s: %v", name, err)
		}
		if !strings.Contains(string(info), "Path="+filepath.Join(dir, "x.jpg")) {
			t.Errorf("trashinfo = %q", info)
		}
	}
}

func TestDisposer(t *testing.T) {
	dir := t.TempDir()

	deleted := filepath.Join(dir, "del.jpg")
	writeFile(t, deleted, "x")
	if err := (Disposer{Action: Delete}).Dispose(deleted); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if exists(deleted) {
		t.Error("file not deleted")
	}

	moved := filepath.Join(dir, "mv.jpg")
	writeFile(t, moved, "x")
	dest := filepath.Join(dir, "out")
	if err := (Disposer{Action: Move, Dest: dest}).Dispose(moved); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if !exists(filepath.Join(dest, "mv.jpg")) {
		t.Error("file not moved")
	}

	if err := (Disposer{Action: Move}).Dispose(moved); err == nil {
		t.Error("expected error for move without destination")
	}
}

func TestAction_String(t *testing.T) {
	if Trash.String() != "move to trash" || Delete.String() != "permanently delete" || Move.String() != "move" {
		t.Errorf("unexpected action names: %s, %s, %s", Trash, Delete, Move)
	}
}
