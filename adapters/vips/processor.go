//go:build vips

// Package vips is a libvips-backed decoder. It reads every format libvips
// was built with, including HEIC and AVIF straight from phone cameras, and
// hands the pixels to the Go pipeline as an image.Image. Build with
// -tags vips; libvips must be installed.
package vips

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/photo-compressor/core"
	apperrors "github.com/Skryldev/photo-compressor/errors"
	"github.com/Skryldev/photo-compressor/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	MaxCacheSize int
	MaxWorkers   int
	ReportLeaks  bool
	// MaxPixels rejects images whose header claims more pixels; 0 = no limit.
	MaxPixels int64
}

// Backend is a libvips-powered Decoder. Safe for concurrent use across
// goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.LoggingSettings(nil, govips.LogLevelWarning)
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// Formats lists what RegisterVipsBackend routes to libvips.
var Formats = []core.Format{
	core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatGIF,
	core.FormatTIFF, core.FormatBMP, core.FormatHEIC, core.FormatAVIF,
}

func (b *Backend) CanDecode(f core.Format) bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}

// Decode loads the image with libvips, applies the EXIF orientation and
// converts the result to an in-memory image.Image.
func (b *Backend) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}

	buf, err := utils.DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.drain", err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	defer ref.Close()

	// libvips loads lazily, so only the header has been read at this point.
	if px := int64(ref.Width()) * int64(ref.Height()); b.cfg.MaxPixels > 0 && px > b.cfg.MaxPixels {
		return nil, apperrors.New(apperrors.CategoryDecode, "vips.decode",
			fmt.Errorf("%w: %dx%d is over %d pixels", apperrors.ErrImageTooLarge, ref.Width(), ref.Height(), b.cfg.MaxPixels))
	}

	format := vipsFormatToCore(ref.Format())
	meta := core.Metadata{
		Format:      format,
		ColorSpace:  vipsInterpretationToColorSpace(ref.Interpretation()),
		HasAlpha:    ref.HasAlpha(),
		Orientation: ref.Orientation(),
	}
	if err := ref.AutoRotate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.rotate", err)
	}
	meta.Oriented = true
	meta.Orientation = 0

	img, err := toImage(ref)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.convert", err)
	}
	bounds := img.Bounds()
	meta.Width = bounds.Dx()
	meta.Height = bounds.Dy()

	return &core.ImageData{
		Data:         raw,
		Format:       format,
		Image:        img,
		Meta:         meta,
		OriginalSize: int64(len(raw)),
	}, nil
}

// toImage moves pixels from libvips to Go through a fast, uncompressed PNG.
func toImage(ref *govips.ImageRef) (image.Image, error) {
	ep := govips.NewPngExportParams()
	ep.StripMetadata = true
	ep.Compression = 0
	data, _, err := ref.ExportPng(ep)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("png handoff: %w", err)
	}
	return img, nil
}

// RegisterVipsBackend routes every format in Formats to libvips. Encoding
// stays with the registered JPEG encoder.
func RegisterVipsBackend(reg core.Registry, b *Backend) {
	for _, f := range Formats {
		reg.RegisterDecoder(f, b)
	}
}

func vipsFormatToCore(f govips.ImageType) core.Format {
	switch f {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	case govips.ImageTypeGIF:
		return core.FormatGIF
	case govips.ImageTypeTIFF:
		return core.FormatTIFF
	case govips.ImageTypeBMP:
		return core.FormatBMP
	case govips.ImageTypeHEIF:
		return core.FormatHEIC
	case govips.ImageTypeAVIF:
		return core.FormatAVIF
	default:
		return core.FormatUnknown
	}
}

func vipsInterpretationToColorSpace(i govips.Interpretation) core.ColorSpace {
	switch i {
	case govips.InterpretationBW:
		return core.ColorSpaceGray
	case govips.InterpretationCMYK:
		return core.ColorSpaceCMYK
	default:
		return core.ColorSpaceRGB
	}
}

var _ core.Decoder = (*Backend)(nil)
