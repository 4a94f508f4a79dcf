package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/facturx/internal/server"
)

var (
	serverAddr   string
	serverDebug  bool
	readTimeout  time.Duration
	writeTimeout time.Duration
	serverTmpl   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server for compiling and reading hybrid invoices.

The API provides endpoints for:
  - GET  /api/v1/profiles               - List profiles
  - POST /api/v1/profiles/:id/validate  - Validate invoice data
  - POST /api/v1/profiles/:id/xml       - Compile invoice data to CII XML
  - POST /api/v1/profiles/:id/pdf       - Embed the XML into a PDF (multipart: data, pdf)
  - POST /api/v1/attachments            - List files embedded in a PDF
  - POST /api/v1/inspect                - Summarise an invoice XML or hybrid PDF
  - GET  /health                        - Health check

Examples:
  # Start server on the configured address
  facturx serve

  # Start on custom port in debug mode
  facturx serve --address :9090 --debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", "", "Server listen address (default from config)")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().DurationVar(&readTimeout, "read-timeout", 0, "HTTP read timeout (default from config)")
	serveCmd.Flags().DurationVar(&writeTimeout, "write-timeout", 0, "HTTP write timeout (default from config)")
	serveCmd.Flags().StringVar(&serverTmpl, "template", "invoice", "Template rendered when a PDF request carries no base PDF")
}

func runServe(cmd *cobra.Command, args []string) error {
	config := &server.Config{
		Address:      cfg.Server.Address,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Debug:        cfg.Server.Debug,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Template:     serverTmpl,
	}
	if cmd.Flags().Changed("address") {
		config.Address = serverAddr
	}
	if cmd.Flags().Changed("debug") {
		config.Debug = serverDebug
	}
	if cmd.Flags().Changed("read-timeout") {
		config.ReadTimeout = readTimeout
	}
	if cmd.Flags().Changed("write-timeout") {
		config.WriteTimeout = writeTimeout
	}

	srv := server.NewServer(config,
		server.WithPipeline(newPipeline()),
		server.WithLogger(logger),
	)

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting server",
		zap.String("address", config.Address),
		zap.String("profile", cfg.Profile),
		zap.Bool("debug", config.Debug))

	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
