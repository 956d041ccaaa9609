package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"imdex/internal/hash"
	"imdex/internal/index"
	"imdex/internal/logging"
	"imdex/internal/scan"
)

var (
	rebuildHashType string
	rebuildHashSize int
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rehash every indexed image and rebuild the tree",
	Long: `Rehash every indexed image and rebuild the tree from scratch, optionally
switching hash type, hash size or leaf capacity. Images that can no longer be
read are dropped from the index.

Example:
  imdex rebuild
  imdex rebuild --hash-type phash --hash-size 16
  imdex rebuild --capacity 0`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func init() {
	rebuildCmd.Flags().StringVar(&rebuildHashType, "hash-type", "", "New hash type (default: keep current)")
	rebuildCmd.Flags().IntVar(&rebuildHashSize, "hash-size", 0, "New hash size (default: keep current)")
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := logging.FromContext(ctx)

	ix, store, err := openIndex(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var override index.Overrides
	if cmd.Flags().Changed("hash-type") {
		alg, err := hash.ParseAlgorithm(rebuildHashType)
		if err != nil {
			return err
		}
		override.HashType = &alg
	}
	if cmd.Flags().Changed("hash-size") {
		override.HashSize = &rebuildHashSize
	}
	if cmd.Flags().Changed("capacity") {
		override.Capacity = &capacity
	}
	settings := ix.Settings().Override(override)
	if err := settings.Validate(); err != nil {
		return err
	}

	paths := make([]string, 0, ix.Len())
	for _, img := range ix.Images() {
		paths = append(paths, img.Path)
	}

	fmt.Printf("Rehashing %d images (%s, size %d)\n", len(paths), settings.HashType, settings.HashSize)

	progress := &progressLine{}
	s := scan.NewScanner(
		scan.WithHasher(settings.Hasher()),
		scan.WithWorkers(workers),
		scan.WithTimeout(hashTimeout),
		scan.WithLogger(logger),
		scan.WithProgress(progress.update),
	)
	res, err := s.ScanPaths(ctx, paths)
	progress.clear()
	if err != nil {
		return fmt.Errorf("rehash failed: %w", err)
	}

	if err := ix.Reset(settings, res.Images); err != nil {
		return err
	}
	if err := ix.Save(ctx); err != nil {
		return err
	}

	heading("=== Rebuild Complete ===")
	fmt.Printf("Indexed images: %d\n", ix.Len())
	if res.Failed > 0 {
		fmt.Printf("Dropped images: %d\n", res.Failed)
	}
	return nil
}
