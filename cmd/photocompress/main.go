// Command photocompress compresses photos from the command line and serves
// the compression and upload API over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	photocompressor "github.com/Skryldev/photo-compressor"
	"github.com/Skryldev/photo-compressor/config"
	"github.com/Skryldev/photo-compressor/core"
	"github.com/Skryldev/photo-compressor/hooks"
)

var (
	envFile   string
	logLevel  string
	logFormat string

	cfg    config.Config
	logger core.Logger
)

var rootCmd = &cobra.Command{
	Use:   "photocompress",
	Short: "Shrink photos to fit a pixel bound and a byte budget",
	Long: `photocompress downsizes photos and re-encodes them as JPEG, lowering the
quality step by step until each file fits the byte budget. Files that cannot
be compressed are passed through unchanged.

Configuration comes from PHOTO_* environment variables, optionally loaded
from an env file; flags override both.

Example usage:
  photocompress compress --out small/ IMG_0001.HEIC IMG_0002.jpg
  photocompress compress --target-bytes 204800 --workers 4 *.png
  photocompress serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file with PHOTO_* settings (ignored when missing)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default from PHOTO_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "text, json or console (default from PHOTO_LOG_FORMAT)")
}

func initConfig() error {
	var err error
	cfg, err = config.Load(envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	logger = hooks.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	logger.Debug("config.loaded",
		"workers", cfg.WorkerCount,
		"storage", cfg.Storage,
		"decoder", cfg.DecoderBackend,
		"target_bytes", cfg.Compression.TargetBytes,
	)
	return nil
}

// newCompressor builds a Compressor for cfg with logging and metrics hooks
// attached. The returned cleanup releases the decoder backend.
func newCompressor(c config.Config, metrics core.MetricsCollector) (*photocompressor.Compressor, func(), error) {
	comp, err := photocompressor.New(c)
	if err != nil {
		return nil, nil, err
	}
	comp.SetLogger(logger)
	comp.AddHook(hooks.NewLoggingHook(logger))
	if metrics != nil {
		comp.SetMetrics(metrics)
		comp.AddHook(hooks.NewMetricsHook(metrics))
	}
	cleanup, err := registerBackend(comp, c)
	if err != nil {
		return nil, nil, err
	}
	return comp, cleanup, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
