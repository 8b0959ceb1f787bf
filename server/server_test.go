package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	photocompressor "github.com/Skryldev/photo-compressor"
	"github.com/Skryldev/photo-compressor/config"
	"github.com/Skryldev/photo-compressor/core"
	apperrors "github.com/Skryldev/photo-compressor/errors"
	"github.com/Skryldev/photo-compressor/hooks"
	"github.com/Skryldev/photo-compressor/intake"
	"github.com/Skryldev/photo-compressor/server"
)

type part struct {
	field, name, contentType string
	data                     []byte
}

func multipartBody(t *testing.T, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		if p.name == "" {
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, p.field))
		} else {
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.name))
		}
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func noiseJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

// failingStore rejects every write with a permanent storage error.
type failingStore struct{}

func (failingStore) Put(context.Context, core.StorageKey, io.Reader, map[string]string) error {
	return apperrors.New(apperrors.CategoryStorage, "test.put", errors.New("disk full"))
}
func (failingStore) Get(context.Context, core.StorageKey) (io.ReadCloser, error) {
	return nil, apperrors.ErrObjectNotFound
}
func (failingStore) Delete(context.Context, core.StorageKey) error         { return nil }
func (failingStore) Exists(context.Context, core.StorageKey) (bool, error) { return false, nil }

type fixture struct {
	handler http.Handler
	metrics *hooks.PrometheusMetrics
}

func newFixture(t *testing.T, store core.StorageAdapter) fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Compression.MaxDimension = 100
	cfg.Compression.TargetBytes = 1024
	cfg.Limits = config.UploadLimits{MaxFiles: 2, MaxFileBytes: 512 * 1024, MaxTotalBytes: 1 << 20}
	cfg.RetryDelay = 0

	c, err := photocompressor.New(cfg)
	require.NoError(t, err)
	metrics := hooks.NewPrometheusMetrics()
	c.SetMetrics(metrics)

	svc := intake.NewService(c, store, cfg)
	return fixture{
		handler: server.New(c, svc, nil, metrics.Registry()).Handler(),
		metrics: metrics,
	}
}

func (f fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func post(path string, body io.Reader, contentType string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCompress_ReturnsJPEG(t *testing.T) {
	f := newFixture(t, nil)
	src := noiseJPEG(t, 400, 300)
	body, ct := multipartBody(t, part{field: "file", name: "IMG_0001.JPG", contentType: "image/jpeg", data: src})

	rec := f.do(post("/v1/compress", body, ct))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "compressed", rec.Header().Get(server.HeaderStatus))
	assert.Equal(t, fmt.Sprint(len(src)), rec.Header().Get(server.HeaderOriginalSize))
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="IMG_0001.jpg"`, rec.Header().Get("Content-Disposition"))

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 75, cfg.Height)
}

func TestCompress_PassesThroughNonImages(t *testing.T) {
	f := newFixture(t, nil)
	pdf := []byte("%PDF-1.7 not really a pdf but long enough to be over the target? no")
	body, ct := multipartBody(t, part{field: "file", name: "receipt.pdf", contentType: "application/pdf", data: pdf})

	rec := f.do(post("/v1/compress", body, ct))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "not_image", rec.Header().Get(server.HeaderStatus))
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, pdf, rec.Body.Bytes())
}

func TestCompress_BadRequests(t *testing.T) {
	f := newFixture(t, nil)

	body, ct := multipartBody(t, part{field: "other", name: "a.jpg", contentType: "image/jpeg", data: []byte("x")})
	rec := f.do(post("/v1/compress", body, ct))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), `"file" is required`)

	body, ct = multipartBody(t, part{field: "file", name: "big.jpg", contentType: "image/jpeg", data: make([]byte, 512*1024+1)})
	rec = f.do(post("/v1/compress", body, ct))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), apperrors.ErrFileTooLarge.Error())
}

func TestUploads_ProcessesPartsInOrder(t *testing.T) {
	f := newFixture(t, nil)
	body, ct := multipartBody(t,
		part{field: "comment", data: []byte("front door")},
		part{field: "photos", name: "door.jpg", contentType: "image/jpeg", data: noiseJPEG(t, 300, 200)},
		part{field: "docs", name: "note.txt", contentType: "text/plain", data: []byte("hello")},
	)

	rec := f.do(post("/v1/uploads", body, ct))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var m intake.Manifest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.NotEmpty(t, m.SubmissionID)
	assert.False(t, m.Stored)
	require.Len(t, m.Files, 2)

	assert.Equal(t, "photos", m.Files[0].Field)
	assert.Equal(t, core.StatusCompressed, m.Files[0].Status)
	assert.Equal(t, "door.jpg", m.Files[0].Name)
	assert.Equal(t, 100, m.Files[0].Width)

	assert.Equal(t, "docs", m.Files[1].Field)
	assert.Equal(t, core.StatusNotImage, m.Files[1].Status)
	assert.Equal(t, int64(5), m.Files[1].Bytes)
}

func TestUploads_Errors(t *testing.T) {
	t.Run("not multipart", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(post("/v1/uploads", strings.NewReader("{}"), "application/json"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too many files", func(t *testing.T) {
		f := newFixture(t, nil)
		one := part{field: "photos", name: "a.jpg", contentType: "image/jpeg", data: []byte("x")}
		body, ct := multipartBody(t, one, one, one)
		rec := f.do(post("/v1/uploads", body, ct))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, errorMessage(t, rec), apperrors.ErrTooManyFiles.Error())
	})

	t.Run("storage down", func(t *testing.T) {
		f := newFixture(t, failingStore{})
		body, ct := multipartBody(t, part{field: "photos", name: "a.png", contentType: "image/png", data: []byte("tiny")})
		rec := f.do(post("/v1/uploads", body, ct))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "storage unavailable", errorMessage(t, rec))
	})
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, nil)
	body, ct := multipartBody(t, part{field: "file", name: "receipt.pdf", contentType: "application/pdf", data: []byte("%PDF")})
	require.Equal(t, http.StatusOK, f.do(post("/v1/compress", body, ct)).Code)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `photocompressor_outcomes_total{status="not_image"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
