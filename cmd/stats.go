package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imdex/internal/index"
	"imdex/internal/vptree"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index settings and tree shape",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(statsCmd)
}

type statsReport struct {
	Database string         `json:"database"`
	Images   int            `json:"images"`
	Settings index.Settings `json:"settings"`
	Tree     vptree.Stats   `json:"tree"`
	Groups   int            `json:"groups"`
}

func runStats(cmd *cobra.Command, args []string) error {
	ix, store, err := openIndex(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	groups, err := store.GetGroupCount()
	if err != nil {
		return fmt.Errorf("failed to count groups: %w", err)
	}

	report := statsReport{
		Database: dbPath,
		Images:   ix.Len(),
		Settings: ix.Settings(),
		Tree:     ix.Stats(),
		Groups:   groups,
	}

	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	heading("Index: %s", report.Database)
	fmt.Printf("Images:        %d\n", report.Images)
	fmt.Printf("Hash:          %s, size %d (%d bits)\n",
		report.Settings.HashType, report.Settings.HashSize, report.Settings.HashSize*report.Settings.HashSize)
	fmt.Printf("Capacity:      %d\n", report.Settings.Capacity)
	fmt.Println()
	heading("Tree")
	fmt.Printf("Nodes:         %d\n", report.Tree.Nodes)
	fmt.Printf("Leaves:        %d\n", report.Tree.Leaves)
	fmt.Printf("Depth:         %d\n", report.Tree.Depth)
	fmt.Printf("Largest leaf:  %d\n", report.Tree.LargestLeaf)
	if report.Tree.Oversized > 0 {
		fmt.Printf("Oversized:     %d %s\n", report.Tree.Oversized, dimStyle.Render("(equidistant points)"))
	}
	if report.Groups > 0 {
		fmt.Println()
		fmt.Printf("Duplicate groups (last 'imdex groups'): %d\n", report.Groups)
	}
	return nil
}
