package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"imdex/internal/config"
	"imdex/internal/index"
	"imdex/internal/logging"
	"imdex/internal/storage"
)

var (
	dbPath    string
	capacity  int
	threshold int
	workers   int
	logLevel  string

	hashTimeout time.Duration
	seed        uint64
)

var rootCmd = &cobra.Command{
	Use:   "imdex",
	Short: "Local image index for similarity search",
	Long: `imdex keeps a local index of perceptual image hashes in a vantage-point tree.

Images whose hashes differ in few bits look alike, so the index answers
"which images are within N bits of this one" and "which are the closest K"
without comparing the query against every image.

Example usage:
  imdex init --dir ./photos              # Build the index
  imdex update --dir ./photos            # Add images that appeared since
  imdex search query.jpg --max-distance 5
  imdex nearest query.jpg --max-results 8
  imdex clusters                         # Near neighbours of every image
  imdex groups                           # Duplicate groups with keep/remove`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "imdex.db", "Path to SQLite database (env IMDEX_DB)")
	rootCmd.PersistentFlags().IntVar(&capacity, "capacity", 32, "Leaf bucket size for new indexes (env IMDEX_CAPACITY)")
	rootCmd.PersistentFlags().IntVar(&threshold, "threshold", 10, "Hamming distance threshold for groups (env IMDEX_THRESHOLD)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 8, "Number of parallel workers for hashing (env IMDEX_WORKERS)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error (env IMDEX_LOG_LEVEL)")
}

// setup applies the environment configuration to every flag the user did not
// set and puts a logger on the command context.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if !flags.Changed("db") {
		dbPath = cfg.DB
	}
	if !flags.Changed("capacity") {
		capacity = cfg.Capacity
	}
	if !flags.Changed("threshold") {
		threshold = cfg.Threshold
	}
	if !flags.Changed("workers") {
		workers = cfg.Workers
	}
	if !flags.Changed("log-level") {
		logLevel = cfg.LogLevel
	}
	hashTimeout = cfg.HashTimeout
	seed = cfg.Seed

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logging.WithLogger(ctx, logging.NewLogger(logLevel)))
	return nil
}

func defaultThreads() int {
	return runtime.NumCPU()
}

func indexOptions() []index.Option {
	return []index.Option{index.WithSeed(seed)}
}

// openIndex opens the database and loads the index. The caller closes the
// returned storage.
func openIndex(ctx context.Context) (*index.Index, *storage.Storage, error) {
	if !storage.Exists(dbPath) {
		return nil, nil, fmt.Errorf("%w: no database at %s, run 'imdex init' first", index.ErrNotIndexed, dbPath)
	}
	store, err := storage.NewStorage(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	ix, err := index.Open(ctx, store, indexOptions()...)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to open index: %w", err)
	}
	return ix, store, nil
}
