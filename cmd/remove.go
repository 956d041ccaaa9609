package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <image>",
	Short: "Remove an image from the index",
	Long: `Remove an image from the index. The file itself is not touched.

Example:
  imdex remove ./photos/old.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	ix, store, err := openIndex(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := ix.Remove(path)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Printf("Not indexed: %s\n", path)
		return nil
	}

	if err := ix.Save(ctx); err != nil {
		return err
	}
	fmt.Printf("Removed: %s\n", path)
	return nil
}
