package utils

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	apperrors "github.com/Skryldev/photo-compressor/errors"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0}, formatJPEG},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n'}, formatPNG},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), formatWebP},
		{"gif", []byte("GIF89a\x01\x00"), formatGIF},
		{"tiff le", []byte("II*\x00\x08\x00\x00\x00"), formatTIFF},
		{"tiff be", []byte("MM\x00*\x00\x00\x00\x08"), formatTIFF},
		{"bmp", []byte("BM\x00\x00\x00\x00"), formatBMP},
		{"heic", []byte("\x00\x00\x00\x18ftypheic\x00\x00"), formatHEIC},
		{"avif", []byte("\x00\x00\x00\x18ftypavif\x00\x00"), formatAVIF},
		{"mp4", []byte("\x00\x00\x00\x18ftypisom\x00\x00"), formatUnknown},
		{"text", []byte("hello world"), formatUnknown},
		{"short", []byte{0xFF, 0xD8}, formatUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectFormat(tc.data); got != tc.want {
				t.Errorf("DetectFormat: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIsImageMediaType(t *testing.T) {
	for mt, want := range map[string]bool{
		"image/jpeg":      true,
		"IMAGE/PNG":       true,
		"Image/Heic":      true,
		"application/pdf": false,
		"":                false,
		"text/image":      false,
	} {
		if got := IsImageMediaType(mt); got != want {
			t.Errorf("IsImageMediaType(%q) = %v, want %v", mt, got, want)
		}
	}
}

func TestFitDimensions(t *testing.T) {
	cases := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{4000, 3000, 1600, 1600, 1200},
		{3000, 4000, 1600, 1200, 1600},
		{8000, 1000, 1600, 1600, 200},
		{1600, 900, 1600, 1600, 900},
		{640, 480, 1600, 640, 480},
		{1601, 1601, 1600, 1600, 1600},
		{5000, 2, 100, 100, 1},
		{3333, 1000, 1000, 1000, 300},
	}
	for _, tc := range cases {
		gw, gh := FitDimensions(tc.w, tc.h, tc.max)
		if gw != tc.wantW || gh != tc.wantH {
			t.Errorf("FitDimensions(%d, %d, %d) = %dx%d, want %dx%d", tc.w, tc.h, tc.max, gw, gh, tc.wantW, tc.wantH)
		}
		if max(gw, gh) > tc.max {
			t.Errorf("FitDimensions(%d, %d, %d): longer side %d over bound", tc.w, tc.h, tc.max, max(gw, gh))
		}
	}
}

func TestCloneBytes(t *testing.T) {
	src := []byte("abc")
	dst := CloneBytes(src)
	src[0] = 'x'
	if string(dst) != "abc" {
		t.Errorf("clone shares memory: %q", dst)
	}
}

func TestLimitedReader(t *testing.T) {
	t.Run("exactly at limit", func(t *testing.T) {
		r := &LimitedReader{R: strings.NewReader("12345"), Max: 5}
		got, err := io.ReadAll(r)
		if err != nil || string(got) != "12345" {
			t.Fatalf("got %q, %v", got, err)
		}
	})
	t.Run("over limit", func(t *testing.T) {
		r := &LimitedReader{R: strings.NewReader("123456"), Max: 5}
		_, err := io.ReadAll(r)
		if !errors.Is(err, apperrors.ErrFileTooLarge) {
			t.Fatalf("want ErrFileTooLarge, got %v", err)
		}
	})
	t.Run("no limit", func(t *testing.T) {
		r := &LimitedReader{R: bytes.NewReader(make([]byte, 1<<16))}
		got, err := io.ReadAll(r)
		if err != nil || len(got) != 1<<16 {
			t.Fatalf("got %d bytes, %v", len(got), err)
		}
	})
}

func TestDrainReader(t *testing.T) {
	data := bytes.Repeat([]byte("photo"), 10_000)
	buf, err := DrainReader(context.Background(), bytes.NewReader(data), 1024)
	if err != nil {
		t.Fatalf("DrainReader: %v", err)
	}
	defer ReleaseBuffer(buf)
	if !bytes.Equal(buf.Bytes(), data) {
		t.Error("content mismatch")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := DrainReader(ctx, bytes.NewReader(data), 0); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: got %v", err)
	}
}
