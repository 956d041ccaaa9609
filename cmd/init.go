package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"imdex/internal/hash"
	"imdex/internal/index"
	"imdex/internal/logging"
	"imdex/internal/scan"
	"imdex/internal/storage"
)

var (
	initDirs      []string
	initRecursive bool
	initHashType  string
	initHashSize  int
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Build a new index from directories",
	Long: `Scan directories for images, hash them and build a fresh index.

An existing index in the same database is replaced.

The scan will:
1. Find all supported images (jpg, png, gif, webp, bmp, tiff)
2. Compute perceptual hashes for each image
3. Build the vantage-point tree in a single pass
4. Store catalog, settings and tree in the database

Example:
  imdex init --dir ./photos
  imdex init --dir ./photos --dir ./scans
  imdex init --dir ./photos --hash-type phash --hash-size 16`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringSliceVar(&initDirs, "dir", []string{"."}, "Directory to scan for images (can be specified multiple times)")
	initCmd.Flags().BoolVarP(&initRecursive, "recursive", "r", true, "Scan subdirectories")
	initCmd.Flags().StringVar(&initHashType, "hash-type", string(hash.DefaultAlgorithm), "Hash type: dhash, phash or ahash")
	initCmd.Flags().IntVar(&initHashSize, "hash-size", hash.DefaultSize, "Hash side length; hashes have size*size bits")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	alg, err := hash.ParseAlgorithm(initHashType)
	if err != nil {
		return err
	}
	settings := index.Settings{HashType: alg, HashSize: initHashSize, Capacity: capacity}
	if err := settings.Validate(); err != nil {
		return err
	}

	dirs, err := resolveDirs(initDirs)
	if err != nil {
		return err
	}

	fmt.Printf("Scanning: %s\n", strings.Join(dirs, ", "))
	fmt.Printf("Hash:     %s, size %d\n", settings.HashType, settings.HashSize)
	fmt.Printf("Workers:  %d\n\n", workers)

	store, err := storage.NewStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	res, err := scanDirs(ctx, settings.Hasher(), dirs, initRecursive, nil)
	if err != nil {
		return err
	}

	ix, err := index.Create(ctx, store, settings, res.Images, indexOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := store.RecordScan(strings.Join(dirs, ","), len(res.Images), 0, 0); err != nil {
		logging.FromContext(ctx).Warnw("failed to record scan", "error", err)
	}

	fmt.Println()
	heading("=== Index Created ===")
	fmt.Printf("Indexed images: %d\n", ix.Len())
	if res.Failed > 0 {
		fmt.Printf("Failed images:  %d\n", res.Failed)
	}
	fmt.Printf("Database:       %s\n", dbPath)
	return nil
}

func resolveDirs(dirs []string) ([]string, error) {
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	resolved := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		abs, err := resolveDir(dir)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, abs)
	}
	return resolved, nil
}

func resolveDir(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return "", fmt.Errorf("folder not found: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", absDir)
	}
	return absDir, nil
}

// scanDirs hashes the images under dirs, showing progress on stdout.
func scanDirs(ctx context.Context, h *hash.Hasher, dirs []string, recursive bool, skip func(string) bool) (*scan.Result, error) {
	progress := &progressLine{}
	s := scan.NewScanner(
		scan.WithHasher(h),
		scan.WithWorkers(workers),
		scan.WithTimeout(hashTimeout),
		scan.WithRecursive(recursive),
		scan.WithSkip(skip),
		scan.WithLogger(logging.FromContext(ctx)),
		scan.WithProgress(progress.update),
	)

	res, err := s.ScanFolders(ctx, dirs)
	progress.clear()
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	fmt.Printf("Scanned: %d images\n", len(res.Images))
	return res, nil
}
