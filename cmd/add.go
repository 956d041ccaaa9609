package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <image>",
	Short: "Hash an image and add it to the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
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

	info, err := ix.Settings().Hasher().HashImageWithTimeout(path, hashTimeout)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", path, err)
	}

	if ix.Add(info) == 0 {
		fmt.Printf("Already indexed: %s\n", path)
	} else {
		fmt.Printf("Added: %s (%s)\n", path, info.Hash.Hex())
	}

	return ix.Save(ctx)
}
