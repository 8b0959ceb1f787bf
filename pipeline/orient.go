package pipeline

import (
	"bytes"
	"context"
	"image"
	"strconv"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/Skryldev/photo-compressor/core"
	apperrors "github.com/Skryldev/photo-compressor/errors"
)

// OrientStep applies the EXIF orientation of a JPEG source so phone photos
// come out upright once the (metadata-free) JPEG is re-encoded. It runs after
// FitStep so the transform touches the smaller surface. Missing or unreadable
// EXIF leaves the image as is.
type OrientStep struct{}

func (s *OrientStep) Name() string { return "orient" }

func (s *OrientStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
	}
	if img.Meta.Oriented || img.Format != core.FormatJPEG || len(img.Data) == 0 || img.Image == nil {
		return img, nil
	}

	x, err := exif.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return img, nil
	}
	out := *img
	out.Meta.HasEXIF = true
	out.Meta.EXIF = exifFields(x)

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return &out, nil
	}
	o, err := tag.Int(0)
	if err != nil || o <= 1 || o > 8 {
		return &out, nil
	}

	out.Image = Orient(img.Image, o)
	b := out.Image.Bounds()
	out.Meta.Width = b.Dx()
	out.Meta.Height = b.Dy()
	out.Meta.Orientation = 0
	out.Meta.Oriented = true
	return &out, nil
}

func exifFields(x *exif.Exif) map[string]string {
	fields := make(map[string]string)
	for _, name := range []exif.FieldName{exif.Make, exif.Model, exif.DateTimeOriginal} {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		if v, err := tag.StringVal(); err == nil {
			fields[string(name)] = v
		}
	}
	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			fields[string(exif.Orientation)] = strconv.Itoa(v)
		}
	}
	return fields
}

// Orient returns src transformed for EXIF orientation o (1-8). Orientations
// 5-8 swap width and height. Unknown values return src unchanged.
func Orient(src image.Image, o int) image.Image {
	if o <= 1 || o > 8 {
		return src
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := w, h
	if o >= 5 {
		dw, dh = h, w
	}

	// sourceOf maps a destination pixel back to the source pixel it shows.
	var sourceOf func(dx, dy int) (int, int)
	switch o {
	case 2: // mirror horizontal
		sourceOf = func(dx, dy int) (int, int) { return w - 1 - dx, dy }
	case 3: // rotate 180
		sourceOf = func(dx, dy int) (int, int) { return w - 1 - dx, h - 1 - dy }
	case 4: // mirror vertical
		sourceOf = func(dx, dy int) (int, int) { return dx, h - 1 - dy }
	case 5: // transpose
		sourceOf = func(dx, dy int) (int, int) { return dy, dx }
	case 6: // rotate 90 clockwise
		sourceOf = func(dx, dy int) (int, int) { return dy, h - 1 - dx }
	case 7: // transverse
		sourceOf = func(dx, dy int) (int, int) { return w - 1 - dy, h - 1 - dx }
	case 8: // rotate 90 counter-clockwise
		sourceOf = func(dx, dy int) (int, int) { return w - 1 - dy, dx }
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	if rgba, ok := src.(*image.RGBA); ok {
		for dy := 0; dy < dh; dy++ {
			for dx := 0; dx < dw; dx++ {
				sx, sy := sourceOf(dx, dy)
				si := rgba.PixOffset(b.Min.X+sx, b.Min.Y+sy)
				di := dst.PixOffset(dx, dy)
				copy(dst.Pix[di:di+4], rgba.Pix[si:si+4])
			}
		}
		return dst
	}
	for dy := 0; dy < dh; dy++ {
		for dx := 0; dx < dw; dx++ {
			sx, sy := sourceOf(dx, dy)
			dst.Set(dx, dy, src.At(b.Min.X+sx, b.Min.Y+sy))
		}
	}
	return dst
}
