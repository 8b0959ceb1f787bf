package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/Skryldev/photo-compressor/core"
	apperrors "github.com/Skryldev/photo-compressor/errors"
	"github.com/Skryldev/photo-compressor/utils"
	xdraw "golang.org/x/image/draw"
)

// ── Decode ────────────────────────────────────────────────────────────────────

// DecodeStep decodes img.Data into img.Image. The format is sniffed from the
// bytes; img.Format (usually derived from the declared media type) is only
// used when sniffing fails.
//
// Images whose header claims more than MaxPixels are rejected before any
// pixel buffer is allocated. Formats the image package has no registered
// header reader for (HEIC, AVIF) are left to the decoder, which must apply
// its own limit. MaxPixels <= 0 disables the check.
type DecodeStep struct {
	Registry  core.Registry
	MaxPixels int64
}

func (s *DecodeStep) Name() string { return "decode" }

func (s *DecodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Image != nil {
		return img, nil // already decoded
	}
	if len(img.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, s.Name(), apperrors.ErrEmptyInput)
	}

	format := core.Format(utils.DetectFormat(img.Data))
	if format == core.FormatUnknown {
		format = img.Format
	}
	dec, ok := s.Registry.DecoderFor(format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryInput, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}

	if err := s.checkPixels(img.Data); err != nil {
		return nil, err
	}

	decoded, err := dec.Decode(ctx, bytes.NewReader(img.Data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, s.Name(), err)
	}
	if decoded.Image == nil || decoded.Meta.Width <= 0 || decoded.Meta.Height <= 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, s.Name(), apperrors.ErrInvalidDimensions)
	}

	// Keep the raw bytes; OrientStep reads EXIF from them.
	decoded.Data = img.Data
	decoded.OriginalSize = img.OriginalSize
	decoded.Meta.SizeBytes = int64(len(img.Data))
	return decoded, nil
}

// checkPixels reads only the image header.
func (s *DecodeStep) checkPixels(data []byte) error {
	if s.MaxPixels <= 0 {
		return nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryDecode, s.Name(), err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > s.MaxPixels {
		return apperrors.New(apperrors.CategoryDecode, s.Name(),
			fmt.Errorf("%w: %dx%d is over %d pixels", apperrors.ErrImageTooLarge, cfg.Width, cfg.Height, s.MaxPixels))
	}
	return nil
}

// ── Fit ───────────────────────────────────────────────────────────────────────

// FitStep renders the decoded image onto a fresh opaque surface whose longer
// side is at most MaxDimension. Smaller images keep their size. Transparent
// regions are composited over white, since JPEG has no alpha.
type FitStep struct {
	MaxDimension int
	// Resampler controls quality vs speed. Defaults to draw.BiLinear.
	Resampler xdraw.Interpolator
}

func (s *FitStep) Name() string { return "fit" }

func (s *FitStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
	}
	src := img.Image
	if src == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrEmptyInput)
	}
	if s.MaxDimension <= 0 {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrInvalidDimensions)
	}

	srcB := src.Bounds()
	dstW, dstH := utils.FitDimensions(srcB.Dx(), srcB.Dy(), s.MaxDimension)

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)

	if dstW == srcB.Dx() && dstH == srcB.Dy() {
		xdraw.Draw(dst, dst.Bounds(), src, srcB.Min, xdraw.Over)
	} else {
		sampler := s.Resampler
		if sampler == nil {
			sampler = xdraw.BiLinear
		}
		sampler.Scale(dst, dst.Bounds(), src, srcB, xdraw.Over, nil)
	}

	out := *img
	out.Image = dst
	out.Meta.Width = dstW
	out.Meta.Height = dstH
	out.Meta.HasAlpha = false
	out.Meta.ColorSpace = core.ColorSpaceRGB
	return &out, nil
}

// ── AdaptiveCompress ──────────────────────────────────────────────────────────

// AdaptiveCompressStep encodes the image as JPEG at InitialQuality and keeps
// lowering the quality by StepSize (never below MinQuality) until the result
// fits TargetSizeBytes. Qualities are whole percents. When the floor is
// reached the floor-quality result is kept even if it is over target; when an
// encode fails the previous successful encode is kept.
type AdaptiveCompressStep struct {
	Registry        core.Registry
	TargetSizeBytes int64
	InitialQuality  int
	MinQuality      int
	StepSize        int
}

func (s *AdaptiveCompressStep) Name() string { return "adaptive_compress" }

func (s *AdaptiveCompressStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(), apperrors.ErrEmptyInput)
	}
	enc, ok := s.Registry.EncoderFor(core.FormatJPEG)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(),
			fmt.Errorf("%w: no %s encoder", apperrors.ErrUnsupportedFormat, core.FormatJPEG))
	}

	quality := s.InitialQuality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	floor := s.MinQuality
	if floor <= 0 || floor > quality {
		floor = quality
	}
	step := s.StepSize
	if step <= 0 {
		step = 10
	}

	var (
		best     []byte
		bestQ    int
		attempts int
		lastErr  error
	)
	for {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		data, err := enc.Encode(ctx, img, core.EncodeOptions{Quality: quality})
		attempts++
		if err != nil {
			lastErr = err
			break
		}
		best, bestQ = data, quality
		if int64(len(data)) <= s.TargetSizeBytes || quality <= floor {
			break
		}
		quality = max(floor, quality-step)
	}

	if best == nil {
		if apperrors.IsCategory(lastErr, apperrors.CategoryEncode) {
			return nil, lastErr
		}
		return nil, apperrors.Wrap(apperrors.CategoryEncode, s.Name(), lastErr)
	}

	out := *img
	out.Data = best
	out.Format = core.FormatJPEG
	out.Meta.Format = core.FormatJPEG
	out.Meta.SizeBytes = int64(len(best))
	out.Meta.Quality = bestQ
	out.Meta.Attempts = attempts
	return &out, nil
}

// MaxAttempts is the most encodes AdaptiveCompressStep can make for the given
// percent qualities: ceil((initial-floor)/step) + 1.
func MaxAttempts(initial, floor, step int) int {
	if step <= 0 || initial <= floor {
		return 1
	}
	return (initial-floor+step-1)/step + 1
}

var (
	_ core.Step = (*DecodeStep)(nil)
	_ core.Step = (*FitStep)(nil)
	_ core.Step = (*OrientStep)(nil)
	_ core.Step = (*AdaptiveCompressStep)(nil)
)
