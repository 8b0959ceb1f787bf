package core

import (
	"context"
	"image"
	"time"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatGIF     Format = "gif"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatHEIC    Format = "heic"
	FormatAVIF    Format = "avif"
	FormatUnknown Format = "unknown"
)

// MediaTypeJPEG is the content type of every compressed result.
const MediaTypeJPEG = "image/jpeg"

// ColorSpace represents the image colour model.
type ColorSpace string

const (
	ColorSpaceRGB  ColorSpace = "rgb"
	ColorSpaceRGBA ColorSpace = "rgba"
	ColorSpaceCMYK ColorSpace = "cmyk"
	ColorSpaceGray ColorSpace = "gray"
)

// Metadata holds extracted image information.
type Metadata struct {
	Width       int
	Height      int
	Format      Format
	ColorSpace  ColorSpace
	HasAlpha    bool
	SizeBytes   int64
	EXIF        map[string]string // nil when absent
	HasEXIF     bool
	Orientation int  // EXIF orientation tag (1-8); 0 once applied
	Oriented    bool // pixels are upright; set by OrientStep or a decoder that auto-rotates

	// Set by the quality search.
	Quality  int // percent of the last successful encode
	Attempts int // encode attempts made
}

// ImageData is the working state passed between pipeline steps.
// Data holds encoded bytes; Image holds the decoded pixel surface.
type ImageData struct {
	Data   []byte
	Format Format
	Image  image.Image
	Meta   Metadata

	// Size of the raw input, kept for logging and metrics.
	OriginalSize int64
}

// Job is a batch submitted to the async worker pool.
type Job struct {
	ID      string
	Ctx     context.Context //nolint:containedctx // intentional for async jobs
	Sources []SourceImage
	// Result channel; nil for fire-and-forget.
	ResultCh chan<- JobResult
}

// JobResult carries the outcomes of an async job, in Sources order.
type JobResult struct {
	JobID    string
	Outcomes []Outcome
	Elapsed  time.Duration
}

// Step is the fundamental pipeline building block. Each Step transforms an
// *ImageData value and must be safe for concurrent use across goroutines.
type Step interface {
	Name() string
	Execute(ctx context.Context, img *ImageData) (*ImageData, error)
}

// Hook is an optional observer invoked around pipeline steps.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, img *ImageData)
	AfterStep(ctx context.Context, stepName string, img *ImageData, d time.Duration, err error)
}

// StorageKey uniquely identifies a stored object.
type StorageKey struct {
	Bucket string
	Path   string
}

// FormatFromMediaType maps MIME types to Format values.
func FormatFromMediaType(ct string) Format {
	switch ct {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return FormatJPEG
	case "image/png":
		return FormatPNG
	case "image/webp":
		return FormatWebP
	case "image/gif":
		return FormatGIF
	case "image/bmp", "image/x-ms-bmp":
		return FormatBMP
	case "image/tiff":
		return FormatTIFF
	case "image/heic", "image/heif":
		return FormatHEIC
	case "image/avif":
		return FormatAVIF
	}
	return FormatUnknown
}
