package core

import (
	"path"
	"strings"
)

// File is what a compression hands back: either the untouched SourceImage or
// an EncodedResult. Callers submit it without caring which.
type File interface {
	Content() []byte
	ContentType() string
	FileName() string
	Size() int64
}

// SourceImage is a user-selected file as received. It is never mutated by
// the compressor.
type SourceImage struct {
	Data      []byte
	MediaType string
	Name      string
}

func (s SourceImage) Content() []byte     { return s.Data }
func (s SourceImage) ContentType() string { return s.MediaType }
func (s SourceImage) FileName() string    { return s.Name }
func (s SourceImage) Size() int64         { return int64(len(s.Data)) }

// EncodedResult is a re-encoded JPEG produced by the compressor.
type EncodedResult struct {
	Data      []byte
	Width     int
	Height    int
	Name      string
	MediaType string
	Quality   float64 // fraction of the encode that produced Data
	Attempts  int
}

func (e EncodedResult) Content() []byte     { return e.Data }
func (e EncodedResult) ContentType() string { return e.MediaType }
func (e EncodedResult) FileName() string    { return e.Name }
func (e EncodedResult) Size() int64         { return int64(len(e.Data)) }

// JPEGName replaces the extension of name with ".jpg". An empty name becomes
// "image.jpg".
func JPEGName(name string) string {
	if name == "" {
		return "image.jpg"
	}
	ext := path.Ext(name)
	if ext == "." || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	return strings.TrimSuffix(name, ext) + ".jpg"
}

var (
	_ File = SourceImage{}
	_ File = EncodedResult{}
)
