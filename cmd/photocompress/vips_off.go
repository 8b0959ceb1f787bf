//go:build !vips

package main

import (
	"errors"

	photocompressor "github.com/Skryldev/photo-compressor"
	"github.com/Skryldev/photo-compressor/config"
)

func registerBackend(_ *photocompressor.Compressor, cfg config.Config) (func(), error) {
	if cfg.DecoderBackend == "vips" {
		return nil, errors.New("decoder backend \"vips\" requires a build with -tags vips")
	}
	return func() {}, nil
}
