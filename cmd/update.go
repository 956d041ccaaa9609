package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"imdex/internal/logging"
)

var (
	updateDirs      []string
	updateRecursive bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Scan directories and add images not yet indexed",
	Long: `Scan directories and add every image whose path is not in the index.

Images already indexed are not rehashed; use 'imdex rebuild' for that.

Example:
  imdex update --dir ./photos
  imdex update --dir ./photos --dir ./downloads`,
	Args: cobra.NoArgs,
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().StringSliceVar(&updateDirs, "dir", []string{"."}, "Directory to scan for images (can be specified multiple times)")
	updateCmd.Flags().BoolVarP(&updateRecursive, "recursive", "r", true, "Scan subdirectories")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	dirs, err := resolveDirs(updateDirs)
	if err != nil {
		return err
	}

	ix, store, err := openIndex(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("Scanning: %s\n", strings.Join(dirs, ", "))
	res, err := scanDirs(ctx, ix.Settings().Hasher(), dirs, updateRecursive, ix.Has)
	if err != nil {
		return err
	}

	added := ix.Add(res.Images...)
	if err := ix.Save(ctx); err != nil {
		return err
	}

	if err := store.RecordScan(strings.Join(dirs, ","), len(res.Images), 0, 0); err != nil {
		logging.FromContext(ctx).Warnw("failed to record scan", "error", err)
	}

	fmt.Println()
	heading("=== Update Complete ===")
	fmt.Printf("New images:     %d\n", added)
	if res.Failed > 0 {
		fmt.Printf("Failed images:  %d\n", res.Failed)
	}
	fmt.Printf("Indexed images: %d\n", ix.Len())
	return nil
}
