package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Skryldev/photo-compressor/adapters/storage"
	"github.com/Skryldev/photo-compressor/hooks"
	"github.com/Skryldev/photo-compressor/intake"
	"github.com/Skryldev/photo-compressor/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the compression and upload API",
	Long: `Serve POST /v1/compress, POST /v1/uploads, GET /healthz and GET /metrics on
PHOTO_ADDRESS (or --address). SIGINT or SIGTERM shuts the server down
gracefully within PHOTO_SHUTDOWN_TIMEOUT.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("address", "", "listen address (default from PHOTO_ADDRESS)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := cfg
	if addr, _ := cmd.Flags().GetString("address"); addr != "" {
		run.Server.Address = addr
	}

	prom := hooks.NewPrometheusMetrics()
	totals := hooks.NewInMemoryMetrics()
	comp, cleanup, err := newCompressor(run, hooks.Multi{prom, totals})
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := storage.FromConfig(ctx, run)
	if err != nil {
		return err
	}
	svc := intake.NewService(comp, store, run, intake.WithLogger(logger))
	srv := server.New(comp, svc, logger, prom.Registry())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(run.Server.Address) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server.shutdown", "timeout", run.Server.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), run.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	snap := totals.Snapshot()
	logger.Info("server.summary",
		"outcomes", snap.Outcomes,
		"bytes_in", snap.BytesIn,
		"bytes_out", snap.BytesOut,
	)
	return <-errCh
}
