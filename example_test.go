package photocompressor_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"os"

	photocompressor "github.com/Skryldev/photo-compressor"
	"github.com/Skryldev/photo-compressor/core"
	"github.com/Skryldev/photo-compressor/hooks"
)

func ExampleCompressor_Compress() {
	cfg := photocompressor.DefaultConfig()
	cfg.Compression.TargetBytes = 2 * 1024

	c, err := photocompressor.New(cfg)
	if err != nil {
		panic(err)
	}
	c.SetLogger(hooks.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))))

	// A 3200x2400 photo from a phone.
	img := image.NewRGBA(image.Rect(0, 0, 3200, 2400))
	for y := 0; y < 2400; y++ {
		for x := 0; x < 3200; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x / 13), G: uint8(y / 10), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})

	out := c.Compress(context.Background(), core.SourceImage{
		Data:      buf.Bytes(),
		MediaType: "image/jpeg",
		Name:      "IMG_1234.JPEG",
	})
	enc, _ := out.Encoded()
	fmt.Println(out.Status, enc.Name, enc.Width, enc.Height)

	// Output: compressed IMG_1234.jpg 1600 1200
}
