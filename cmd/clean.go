package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"imdex/internal/fileutil"
	"imdex/internal/logging"
	"imdex/internal/models"
)

var (
	cleanExact     bool
	cleanDryRun    bool
	cleanMoveTo    string
	cleanPermanent bool
	cleanYes       bool
	cleanGroups    []int
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove or move duplicate images",
	Long: `Dispose of duplicate images, keeping the highest quality version of each
group, and drop them from the index.

Groups are computed the same way as 'imdex groups', so the group IDs match.
Lower quality duplicates go to the system trash unless --permanent or
--move-to is given.

Example:
  imdex clean --dry-run           # Preview only
  imdex clean                     # Move to trash
  imdex clean --permanent         # Delete permanently
  imdex clean --move-to=./backup  # Move to a folder
  imdex clean -g 1 -g 3           # Only groups 1 and 3`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanExact, "exact", false, "Clean identical files only (SHA-256)")
	cleanCmd.Flags().BoolVar(&cleanDryRun, "dry-run", false, "Preview without removing")
	cleanCmd.Flags().BoolVar(&cleanPermanent, "permanent", false, "Delete permanently instead of moving to trash")
	cleanCmd.Flags().StringVar(&cleanMoveTo, "move-to", "", "Move duplicates to this folder")
	cleanCmd.Flags().BoolVarP(&cleanYes, "yes", "y", false, "Skip confirmation prompt")
	cleanCmd.Flags().IntSliceVarP(&cleanGroups, "group", "g", nil, "Group IDs to clean (can be specified multiple times)")
	cleanCmd.MarkFlagsMutuallyExclusive("permanent", "move-to")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := logging.FromContext(ctx)

	ix, store, err := openIndex(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var groups []*models.DuplicateGroup
	if cleanExact {
		groups = ix.ExactGroups()
	} else {
		groups = ix.Groups(threshold)
	}
	if len(groups) == 0 {
		fmt.Println("No duplicate groups found.")
		return nil
	}

	if len(cleanGroups) > 0 {
		groups = slices.DeleteFunc(groups, func(g *models.DuplicateGroup) bool {
			return !slices.Contains(cleanGroups, g.ID)
		})
		if len(groups) == 0 {
			fmt.Printf("No matching groups found for IDs: %v\n", cleanGroups)
			fmt.Println("Run 'imdex groups' to see available group IDs.")
			return nil
		}
		fmt.Printf("Processing %d selected group(s): %v\n\n", len(groups), cleanGroups)
	}

	var toRemove []*models.ImageInfo
	var totalSize int64
	for _, group := range groups {
		for _, img := range group.Remove {
			if _, err := os.Stat(img.Path); err != nil {
				logger.Debugw("skipping missing file", "path", img.Path)
				continue
			}
			toRemove = append(toRemove, img)
			totalSize += img.FileSize
		}
	}
	if len(toRemove) == 0 {
		fmt.Println("No files to remove (files may have been already deleted).")
		return nil
	}

	disposer := fileutil.Disposer{Action: fileutil.Trash}
	action := disposer.Action.String()
	switch {
	case cleanMoveTo != "":
		disposer = fileutil.Disposer{Action: fileutil.Move, Dest: cleanMoveTo}
		action = "move to " + cleanMoveTo
	case cleanPermanent:
		disposer.Action = fileutil.Delete
		action = disposer.Action.String()
	}

	fmt.Printf("Will %s %d files (%s)\n\n", action, len(toRemove), formatSize(totalSize))

	if cleanDryRun {
		fmt.Println("Files to be removed:")
		for _, img := range toRemove {
			fmt.Printf("  %s\n", removeStyle.Render(img.Path))
		}
		fmt.Println()
		fmt.Println(dimStyle.Render("(Dry run - no files were modified)"))
		return nil
	}

	if !cleanYes && !confirm(fmt.Sprintf("Are you sure you want to %s %d files?", action, len(toRemove))) {
		fmt.Println("Aborted.")
		return nil
	}

	var processed, failed int
	var reclaimed int64
	var removeErrs []error
	for _, img := range toRemove {
		if err := disposer.Dispose(img.Path); err != nil {
			logger.Warnw("failed to dispose of file", "path", img.Path, "error", err)
			failed++
			continue
		}
		processed++
		reclaimed += img.FileSize
		// the file is gone either way; keep going so the rest are saved
		if _, err := ix.Remove(img.Path); err != nil {
			logger.Errorw("failed to remove from index", "path", img.Path, "error", err)
			removeErrs = append(removeErrs, err)
		}
	}

	if err := ix.Save(ctx); err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Processed %d files (%s)\n", processed, action)
	if failed > 0 {
		fmt.Println(errorStyle.Render(fmt.Sprintf("Failed: %d files", failed)))
	}
	fmt.Printf("Space reclaimed: %s\n", formatSize(reclaimed))
	if len(removeErrs) > 0 {
		return fmt.Errorf("failed to remove %d files from the index: %w", len(removeErrs), errors.Join(removeErrs...))
	}
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	response, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	switch strings.TrimSpace(strings.ToLower(response)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
