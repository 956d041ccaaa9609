package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imdex/internal/models"
)

var (
	searchMaxDistance int
	searchJSON        bool

	nearestMaxResults    int
	nearestNumNeighbours int
	nearestJSON          bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find indexed images within a Hamming distance of a query image",
	Long: `List every indexed image whose hash is within --max-distance bits of the
query image, nearest first. The query does not need to be indexed.

Example:
  imdex search photo.jpg
  imdex search photo.jpg --max-distance 8`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var nearestCmd = &cobra.Command{
	Use:   "nearest <query>",
	Short: "Find the indexed images closest to a query image",
	Long: `List the indexed images closest to the query image, nearest first.

At most --max-results images are returned; --num-neighbours is used as the
limit only when --max-results is 0.

Example:
  imdex nearest photo.jpg
  imdex nearest photo.jpg --max-results 5`,
	Args: cobra.ExactArgs(1),
	RunE: runNearest,
}

func init() {
	searchCmd.Flags().IntVar(&searchMaxDistance, "max-distance", 3, "Maximum Hamming distance")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(searchCmd)

	nearestCmd.Flags().IntVar(&nearestMaxResults, "max-results", 16, "Maximum number of results")
	nearestCmd.Flags().IntVar(&nearestNumNeighbours, "num-neighbours", 3, "Number of neighbours when --max-results is 0")
	nearestCmd.Flags().BoolVar(&nearestJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(nearestCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchMaxDistance < 0 {
		return fmt.Errorf("--max-distance must not be negative")
	}

	ix, store, err := openIndex(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	q, err := ix.Lookup(args[0], hashTimeout)
	if err != nil {
		return fmt.Errorf("failed to hash query: %w", err)
	}

	return printMatches(ix.Search(q, searchMaxDistance), searchJSON)
}

func runNearest(cmd *cobra.Command, args []string) error {
	ix, store, err := openIndex(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	q, err := ix.Lookup(args[0], hashTimeout)
	if err != nil {
		return fmt.Errorf("failed to hash query: %w", err)
	}

	return printMatches(ix.Nearest(q, nearestNumNeighbours, nearestMaxResults), nearestJSON)
}

func printMatches(matches []models.Match, asJSON bool) error {
	if asJSON {
		if matches == nil {
			matches = []models.Match{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(matches)
	}

	if len(matches) == 0 {
		fmt.Println("No matching images.")
		return nil
	}
	fmt.Printf("%-8s  %s\n", "Distance", "Path")
	for _, m := range matches {
		fmt.Printf("%-8d  %s\n", m.Distance, m.Path)
	}
	return nil
}
