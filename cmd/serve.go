package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"imdex/internal/logging"
	"imdex/internal/server"
)

var (
	serveHost    string
	servePort    int
	serveTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the index over HTTP",
	Long: `Start a local HTTP server answering queries against the index.

Endpoints:
  GET  /api/stats
  GET  /api/search?path=<image>&max_distance=3
  GET  /api/nearest?path=<image>&max_results=16&num_neighbours=3
  GET  /api/groups?threshold=10&exact=false
  GET  /api/image?path=<indexed image>
  POST /api/clean   {"paths": [...], "move_to": "", "permanent": false}
  GET  /ws          keep-alive for browser tabs

The server stops after --timeout without requests, unless a websocket
client is connected.

Example:
  imdex serve                  # Listen on localhost:8080
  imdex serve -p 3000          # Custom port
  imdex serve --timeout 0      # Never stop on idle`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Interface to listen on")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 5*time.Minute, "Idle timeout (0 to disable)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ix, store, err := openIndex(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.New(ix,
		server.WithThreshold(threshold),
		server.WithHashTimeout(hashTimeout),
		server.WithIdleTimeout(serveTimeout),
		server.WithLogger(logging.FromContext(ctx)),
	)

	addr := net.JoinHostPort(serveHost, strconv.Itoa(servePort))
	heading("Serving %d images at http://%s", ix.Len(), addr)
	if serveTimeout > 0 {
		fmt.Println(dimStyle.Render(fmt.Sprintf("Idle timeout: %v", serveTimeout)))
	}
	fmt.Println("Press Ctrl+C to stop")

	return srv.Run(ctx, addr)
}
