//go:build vips

package vips_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	photocompressor "github.com/Skryldev/photo-compressor"
	"github.com/Skryldev/photo-compressor/adapters/vips"
	"github.com/Skryldev/photo-compressor/core"
	"github.com/Skryldev/photo-compressor/pipeline"
)

func makeJPEG(b *testing.B, w, h int) []byte {
	b.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92})
	return buf.Bytes()
}

func newStdlibCompressor(b *testing.B) *photocompressor.Compressor {
	b.Helper()
	c, err := photocompressor.New(photocompressor.DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	return c
}

func newVipsCompressor(b *testing.B) (*photocompressor.Compressor, *vips.Backend) {
	b.Helper()
	c := newStdlibCompressor(b)
	backend := vips.NewBackend(vips.BackendConfig{})
	vips.RegisterVipsBackend(c.Registry(), backend)
	return c, backend
}

// ─── Decode ───────────────────────────────────────────────────────────────────

func benchmarkDecode(b *testing.B, reg core.Registry) {
	raw := makeJPEG(b, 1920, 1080)
	step := &pipeline.DecodeStep{Registry: reg}
	ctx := context.Background()

	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := step.Execute(ctx, &core.ImageData{Data: raw}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecode_Stdlib_1920x1080(b *testing.B) {
	benchmarkDecode(b, newStdlibCompressor(b).Registry())
}

func BenchmarkDecode_Vips_1920x1080(b *testing.B) {
	c, backend := newVipsCompressor(b)
	defer backend.Shutdown()
	benchmarkDecode(b, c.Registry())
}

// ─── Full compression ─────────────────────────────────────────────────────────

func benchmarkCompress(b *testing.B, c *photocompressor.Compressor) {
	raw := makeJPEG(b, 4000, 3000)
	src := core.SourceImage{Data: raw, MediaType: "image/jpeg", Name: "large.jpg"}
	ctx := context.Background()

	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out := c.Compress(ctx, src)
		if out.Status != core.StatusCompressed {
			b.Fatalf("status = %s, err = %v", out.Status, out.Err)
		}
	}
}

func BenchmarkCompress_Stdlib_4000x3000(b *testing.B) {
	benchmarkCompress(b, newStdlibCompressor(b))
}

func BenchmarkCompress_Vips_4000x3000(b *testing.B) {
	c, backend := newVipsCompressor(b)
	defer backend.Shutdown()
	benchmarkCompress(b, c)
}
