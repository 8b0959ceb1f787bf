package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	photocompressor "github.com/Skryldev/photo-compressor"
	"github.com/Skryldev/photo-compressor/adapters/storage"
	"github.com/Skryldev/photo-compressor/config"
	"github.com/Skryldev/photo-compressor/core"
	"github.com/Skryldev/photo-compressor/hooks"
	"github.com/Skryldev/photo-compressor/intake"
)

var compressCmd = &cobra.Command{
	Use:   "compress FILE...",
	Short: "Compress photos into a directory or the configured storage",
	Long: `Compress each FILE and write the result to --out, keeping the input order.
Files that are not images, already small enough, or cannot be decoded are
copied unchanged. With --store the files go through the upload flow instead:
limits are enforced and results plus a manifest are written to the storage
backend selected by PHOTO_STORAGE.

Examples:
  photocompress compress --out small/ *.jpg
  photocompress compress --max-dimension 1024 --target-bytes 150000 photo.png
  photocompress compress --store IMG_0001.HEIC IMG_0002.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompress,
}

func init() {
	rootCmd.AddCommand(compressCmd)

	compressCmd.Flags().String("out", "compressed", "output directory")
	compressCmd.Flags().Bool("store", false, "persist through the upload flow and print the manifest")
	compressCmd.Flags().Int("workers", 0, "files compressed in parallel (<=1 is sequential)")
	compressCmd.Flags().Int("max-dimension", 0, "longest side in pixels")
	compressCmd.Flags().Int64("target-bytes", 0, "byte budget per file")
	compressCmd.Flags().Float64("initial-quality", 0, "first JPEG quality, (0,1]")
	compressCmd.Flags().Float64("quality-floor", 0, "lowest JPEG quality, (0,1]")
	compressCmd.Flags().Float64("quality-step", 0, "quality decrement per attempt")
	compressCmd.Flags().Bool("disable", false, "pass files through without compressing")
}

// applyFlags overrides cfg with the flags the user actually set.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("workers") {
		c.WorkerCount, _ = f.GetInt("workers")
	}
	if f.Changed("max-dimension") {
		c.Compression.MaxDimension, _ = f.GetInt("max-dimension")
	}
	if f.Changed("target-bytes") {
		c.Compression.TargetBytes, _ = f.GetInt64("target-bytes")
	}
	if f.Changed("initial-quality") {
		c.Compression.InitialQuality, _ = f.GetFloat64("initial-quality")
	}
	if f.Changed("quality-floor") {
		c.Compression.QualityFloor, _ = f.GetFloat64("quality-floor")
	}
	if f.Changed("quality-step") {
		c.Compression.QualityStep, _ = f.GetFloat64("quality-step")
	}
	if disable, _ := f.GetBool("disable"); disable {
		c.Compression.Enabled = false
	}
}

func runCompress(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	run := cfg
	applyFlags(cmd, &run)

	metrics := hooks.NewInMemoryMetrics()
	comp, cleanup, err := newCompressor(run, metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	sources, err := readFiles(ctx, args)
	if err != nil {
		return err
	}

	if store, _ := cmd.Flags().GetBool("store"); store {
		return storeFiles(ctx, cmd, comp, run, sources)
	}

	outDir, _ := cmd.Flags().GetString("out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", outDir, err)
	}

	outcomes := comp.CompressBatch(ctx, sources)
	written := make(map[string]bool, len(outcomes))
	for i, o := range outcomes {
		name := o.File.FileName()
		if written[name] {
			name = fmt.Sprintf("%02d-%s", i+1, name)
		}
		written[name] = true

		dst := filepath.Join(outDir, name)
		if err := os.WriteFile(dst, o.File.Content(), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dst, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), describe(args[i], dst, sources[i], o))
	}

	snap := metrics.Snapshot()
	compressed, fallbacks := comp.Stats()
	logger.Info("compress.summary",
		"files", len(outcomes),
		"compressed", compressed,
		"fallbacks", fallbacks,
		"bytes_in", snap.BytesIn,
		"bytes_out", snap.BytesOut,
	)
	return nil
}

func storeFiles(ctx context.Context, cmd *cobra.Command, comp *photocompressor.Compressor, c config.Config, sources []core.SourceImage) error {
	store, err := storage.FromConfig(ctx, c)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("--store needs PHOTO_STORAGE=local or s3")
	}
	svc := intake.NewService(comp, store, c, intake.WithLogger(logger))

	uploads := make([]intake.Upload, len(sources))
	for i, src := range sources {
		uploads[i] = intake.Upload{Field: "photos", SourceImage: src}
	}
	m, err := svc.Process(ctx, uploads)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func readFiles(ctx context.Context, paths []string) ([]core.SourceImage, error) {
	sources := make([]core.SourceImage, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
		if i := strings.IndexByte(mediaType, ';'); i >= 0 {
			mediaType = mediaType[:i]
		}
		src, err := photocompressor.ReadSource(ctx, f, filepath.Base(p), mediaType, 0)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func describe(in, out string, src core.SourceImage, o core.Outcome) string {
	line := fmt.Sprintf("%s -> %s  %-14s %d -> %d bytes", in, out, o.Status, src.Size(), o.File.Size())
	if enc, ok := o.Encoded(); ok {
		line += fmt.Sprintf("  %dx%d q=%.2f attempts=%d", enc.Width, enc.Height, enc.Quality, enc.Attempts)
	}
	return line
}
