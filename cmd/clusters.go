package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	clustersNumNeighbours int
	clustersMaxDistance   int
	clustersThreads       int
	clustersJSON          bool
)

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Show the near neighbours of every indexed image",
	Long: `For every indexed image, list up to --num-neighbours other images within
--max-distance bits. Images without such neighbours are not shown.

Example:
  imdex clusters
  imdex clusters --num-neighbours 5 --max-distance 4 --num-threads 4`,
	Args: cobra.NoArgs,
	RunE: runClusters,
}

func init() {
	clustersCmd.Flags().IntVar(&clustersNumNeighbours, "num-neighbours", 3, "Neighbours per image")
	clustersCmd.Flags().IntVar(&clustersMaxDistance, "max-distance", 2, "Maximum Hamming distance to a neighbour")
	clustersCmd.Flags().IntVar(&clustersThreads, "num-threads", defaultThreads(), "Number of parallel queries")
	clustersCmd.Flags().BoolVar(&clustersJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(clustersCmd)
}

func runClusters(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ix, store, err := openIndex(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	clusters, err := ix.Clusters(ctx, clustersNumNeighbours, clustersMaxDistance, clustersThreads)
	if err != nil {
		return err
	}

	if clustersJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(clusters)
	}

	if len(clusters) == 0 {
		fmt.Println("No clusters found.")
		return nil
	}

	for _, c := range clusters {
		fmt.Println(headingStyle.Render("image: " + c.Path))
		fmt.Println(dimStyle.Render("\tdistance\tpath"))
		for _, n := range c.Neighbours {
			fmt.Printf("\t%d\t\t%s\n", n.Distance, n.Path)
		}
		fmt.Println()
	}
	return nil
}
