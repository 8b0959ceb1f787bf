package decoder

import (
	"context"
	"image"
	"image/gif"
	"io"

	"github.com/Skryldev/photo-compressor/core"
	apperrors "github.com/Skryldev/photo-compressor/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Simple wraps a plain image decoding function for one format. GIF, BMP and
// TIFF need nothing beyond that.
type Simple struct {
	format core.Format
	decode func(io.Reader) (image.Image, error)
}

// NewGIF decodes the first frame of a GIF.
func NewGIF() *Simple { return &Simple{format: core.FormatGIF, decode: gif.Decode} }

// NewBMP decodes BMP images via golang.org/x/image/bmp.
func NewBMP() *Simple { return &Simple{format: core.FormatBMP, decode: bmp.Decode} }

// NewTIFF decodes TIFF images via golang.org/x/image/tiff.
func NewTIFF() *Simple { return &Simple{format: core.FormatTIFF, decode: tiff.Decode} }

func (s *Simple) CanDecode(format core.Format) bool { return format == s.format }

func (s *Simple) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	op := string(s.format) + ".decode"
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	img, err := s.decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	return newImageData(img, s.format), nil
}

// RegisterAll registers every pure-Go decoder in this package.
func RegisterAll(reg core.Registry) {
	reg.RegisterDecoder(core.FormatJPEG, NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, NewPNG())
	reg.RegisterDecoder(core.FormatWebP, NewWebP())
	reg.RegisterDecoder(core.FormatGIF, NewGIF())
	reg.RegisterDecoder(core.FormatBMP, NewBMP())
	reg.RegisterDecoder(core.FormatTIFF, NewTIFF())
}

var (
	_ core.Decoder = (*JPEG)(nil)
	_ core.Decoder = (*PNG)(nil)
	_ core.Decoder = (*WebP)(nil)
	_ core.Decoder = (*Simple)(nil)
)
