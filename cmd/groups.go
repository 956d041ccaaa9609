package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"imdex/internal/models"
)

var (
	groupsExact   bool
	groupsSaved   bool
	groupsJSON    bool
	groupsVerbose bool
	groupsSummary bool
	groupsLimit   int
	groupsOffset  int
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List groups of duplicate images",
	Long: `Group indexed images whose hashes are within --threshold bits of each other
(transitively) and show which image of each group has the best quality.

Each group shows:
- Group ID
- Images in the group with their quality scores
- Which image to keep (highest score) marked with ✓
- Which images are redundant marked with ✗

With --exact, only byte-identical files are grouped. With --saved, the groups
recorded by the previous run are shown without recomputing them.

Example:
  imdex groups                 # Show first 10 groups (default)
  imdex groups -n 0            # Show all groups
  imdex groups -s              # Summary view (compact)
  imdex groups --threshold 4   # Stricter similarity`,
	Args: cobra.NoArgs,
	RunE: runGroups,
}

func init() {
	groupsCmd.Flags().BoolVar(&groupsExact, "exact", false, "Group identical files only (SHA-256)")
	groupsCmd.Flags().BoolVar(&groupsSaved, "saved", false, "Show groups saved by the last run")
	groupsCmd.Flags().BoolVar(&groupsJSON, "json", false, "Output in JSON format")
	groupsCmd.Flags().BoolVarP(&groupsVerbose, "verbose", "v", false, "Show detailed image info")
	groupsCmd.Flags().BoolVarP(&groupsSummary, "summary", "s", false, "Show summary only (group counts and sizes)")
	groupsCmd.Flags().IntVarP(&groupsLimit, "limit", "n", 10, "Limit number of groups to display (0 = all)")
	groupsCmd.Flags().IntVar(&groupsOffset, "offset", 0, "Skip first N groups (for pagination)")
	rootCmd.AddCommand(groupsCmd)
}

func runGroups(cmd *cobra.Command, args []string) error {
	ix, store, err := openIndex(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	var groups []*models.DuplicateGroup
	switch {
	case groupsSaved:
		if groups, err = store.GetDuplicateGroups(); err != nil {
			return fmt.Errorf("failed to get groups: %w", err)
		}
	case groupsExact:
		groups = ix.ExactGroups()
	default:
		groups = ix.Groups(threshold)
	}

	if !groupsSaved {
		if err := store.UpdateGroups(groups); err != nil {
			return fmt.Errorf("failed to update groups: %w", err)
		}
	}

	if groupsJSON {
		if groups == nil {
			groups = []*models.DuplicateGroup{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(groups)
	}

	if len(groups) == 0 {
		fmt.Println("No duplicate groups found.")
		return nil
	}

	// Calculate totals
	totalDuplicates := 0
	var totalSavings int64
	for _, group := range groups {
		for _, img := range group.Remove {
			totalDuplicates++
			totalSavings += img.FileSize
		}
	}

	heading("Found %d duplicate groups (%d duplicates, %s reclaimable)",
		len(groups), totalDuplicates, formatSize(totalSavings))
	fmt.Println()

	// Apply pagination
	totalGroups := len(groups)
	startIdx := min(groupsOffset, len(groups))
	groups = groups[startIdx:]

	if groupsLimit > 0 && groupsLimit < len(groups) {
		groups = groups[:groupsLimit]
	}

	if len(groups) == 0 {
		fmt.Printf("No groups in range (offset %d exceeds total %d)\n", groupsOffset, totalGroups)
	} else if groupsSummary {
		printSummaryTable(groups)
	} else {
		for _, group := range groups {
			printGroup(group, groupsVerbose)
		}
	}

	endIdx := startIdx + len(groups)
	if len(groups) > 0 {
		fmt.Printf("Showing groups %d-%d of %d\n", startIdx+1, endIdx, totalGroups)
		if endIdx < totalGroups {
			limitArg := ""
			if groupsLimit > 0 {
				limitArg = fmt.Sprintf(" -n %d", groupsLimit)
			}
			fmt.Println(dimStyle.Render(fmt.Sprintf("Next page: imdex groups%s --offset %d", limitArg, endIdx)))
		}
	}

	return nil
}

func printSummaryTable(groups []*models.DuplicateGroup) {
	fmt.Printf("%-8s  %-8s  %-12s  %s\n", "Group", "Images", "Reclaimable", "Keep (best quality)")
	fmt.Println(strings.Repeat("-", 70))

	for _, group := range groups {
		var reclaimable int64
		for _, img := range group.Remove {
			reclaimable += img.FileSize
		}

		keepName := filepath.Base(group.Keep.Path)
		if len(keepName) > 35 {
			keepName = keepName[:32] + "..."
		}

		fmt.Printf("#%-7d  %-8d  %-12s  %s\n",
			group.ID, len(group.Images), formatSize(reclaimable), keepName)
	}
	fmt.Println()
}

func printGroup(group *models.DuplicateGroup, verbose bool) {
	fmt.Println(headingStyle.Render(fmt.Sprintf("Group #%d (%d images)", group.ID, len(group.Images))))
	fmt.Println(strings.Repeat("-", 60))

	for _, img := range group.Images {
		marker := removeStyle.Render("✗")
		if img.Path == group.Keep.Path {
			marker = keepStyle.Render("✓")
		}

		if verbose {
			fmt.Printf("  %s %s\n", marker, img.Path)
			fmt.Printf("      Resolution: %dx%d  Format: %s  Size: %s\n",
				img.Width, img.Height, strings.ToUpper(img.Format), formatSize(img.FileSize))
			fmt.Printf("      Hash: %s  Score: %.0f\n", img.Hash.Hex(), img.Score)
		} else {
			fmt.Printf("  %s %-40s  %dx%d  %-4s  %8s  Score: %.0f\n",
				marker, shortenPath(img.Path, 40), img.Width, img.Height,
				strings.ToUpper(img.Format), formatSize(img.FileSize), img.Score)
		}
	}
	fmt.Println()
}
