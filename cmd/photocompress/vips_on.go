//go:build vips

package main

import (
	photocompressor "github.com/Skryldev/photo-compressor"
	"github.com/Skryldev/photo-compressor/adapters/vips"
	"github.com/Skryldev/photo-compressor/config"
)

func registerBackend(c *photocompressor.Compressor, cfg config.Config) (func(), error) {
	if cfg.DecoderBackend != "vips" {
		return func() {}, nil
	}
	b := vips.NewBackend(vips.BackendConfig{
		MaxWorkers: cfg.WorkerCount,
		MaxPixels:  cfg.Compression.MaxPixels,
	})
	vips.RegisterVipsBackend(c.Registry(), b)
	logger.Info("decoder.vips", "formats", len(vips.Formats))
	return b.Shutdown, nil
}
