package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfce-processor/internal/server"
)

var (
	serverAddr   string
	serverDebug  bool
	readTimeout  time.Duration
	writeTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server for processing receipts.

The API provides endpoints for:
  - POST /api/v1/scan/image     - Decode a receipt photo or PDF and fetch it
  - POST /api/v1/scan/text      - Process a typed key or QR URL
  - POST /api/v1/parse?key=     - Parse a saved portal body offline
  - POST /api/v1/validate?key=  - Parse and validate a saved body
  - GET  /api/v1/keys/:key      - Describe an access key
  - GET  /api/v1/keys/:key/qr   - Render the key's QR code as PNG
  - GET  /health                - Health check

Examples:
  nfce-processor serve
  nfce-processor serve --address :9090 --cache nfce.db
  nfce-processor serve --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", "", "Server listen address (env: NFCE_ADDRESS, default :8080)")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().DurationVar(&readTimeout, "read-timeout", 30*time.Second, "HTTP read timeout")
	serveCmd.Flags().DurationVar(&writeTimeout, "write-timeout", 2*time.Minute, "HTTP write timeout")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serverAddr == "" {
		serverAddr = os.Getenv("NFCE_ADDRESS")
	}
	if serverAddr == "" {
		serverAddr = ":8080"
	}

	pipeline, cleanup, err := newPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	config := &server.Config{
		Address:        serverAddr,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		RequestTimeout: 2*fetchTimeout + 10*time.Second,
		Debug:          serverDebug,
	}
	srv := server.NewServer(config, pipeline)

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down server...")
		_ = cleanup()
		os.Exit(0)
	}()

	fmt.Printf("Starting server on %s\n", serverAddr)
	return srv.Run()
}
