// Package server exposes the compressor and the intake service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	photocompressor "github.com/Skryldev/photo-compressor"
	"github.com/Skryldev/photo-compressor/core"
	apperrors "github.com/Skryldev/photo-compressor/errors"
	"github.com/Skryldev/photo-compressor/intake"
)

// Response headers of POST /v1/compress.
const (
	HeaderStatus       = "X-Compression-Status"
	HeaderOriginalSize = "X-Original-Size"
)

// Compressor is the single-file API the server needs.
type Compressor interface {
	Compress(ctx context.Context, src core.SourceImage) core.Outcome
}

// Server is the HTTP front end.
type Server struct {
	echo       *echo.Echo
	compressor Compressor
	intake     *intake.Service
	logger     core.Logger
}

// New builds the router. gatherer may be nil to disable /metrics.
func New(c Compressor, svc *intake.Service, logger core.Logger, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = core.NopLogger{}
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, compressor: c, intake: svc, logger: logger}
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	// Multipart overhead on top of the batch limit.
	e.Use(middleware.BodyLimit(strconv.FormatInt(svc.Limits().MaxTotalBytes+1<<20, 10)))

	e.GET("/healthz", s.health)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	v1 := e.Group("/v1")
	v1.POST("/compress", s.compress)
	v1.POST("/uploads", s.uploads)
	return s
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("server.start", "address", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// compress handles a single multipart "file" part and answers with the
// resulting bytes, compressed or original.
func (s *Server) compress(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}
	maxBytes := s.intake.Limits().MaxFileBytes
	src, err := readPart(c.Request().Context(), fh, maxBytes)
	if err != nil {
		return err
	}

	out := s.compressor.Compress(c.Request().Context(), src)
	h := c.Response().Header()
	h.Set(HeaderStatus, string(out.Status))
	h.Set(HeaderOriginalSize, strconv.FormatInt(src.Size(), 10))
	h.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", intake.SafeName(out.File.FileName())))
	contentType := out.File.ContentType()
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Blob(http.StatusOK, contentType, out.File.Content())
}

// uploads handles a whole form: every file part of every field, in the
// order the parts were sent. Parts are streamed so oversized files are
// rejected without buffering the rest of the body.
func (s *Server) uploads(c echo.Context) error {
	mr, err := c.Request().MultipartReader()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form expected")
	}
	ctx := c.Request().Context()
	limits := s.intake.Limits()

	var uploads []intake.Upload
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed multipart body")
		}
		if part.FileName() == "" {
			part.Close()
			continue
		}
		if len(uploads) == limits.MaxFiles {
			part.Close()
			return apperrors.New(apperrors.CategoryInput, "server.uploads",
				fmt.Errorf("%w: at most %d allowed", apperrors.ErrTooManyFiles, limits.MaxFiles))
		}
		src, err := photocompressor.ReadSource(ctx, part, part.FileName(), part.Header.Get(echo.HeaderContentType), limits.MaxFileBytes)
		part.Close()
		if err != nil {
			return err
		}
		uploads = append(uploads, intake.Upload{Field: part.FormName(), SourceImage: src})
	}

	m, err := s.intake.Process(ctx, uploads)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func readPart(ctx context.Context, fh *multipart.FileHeader, maxBytes int64) (core.SourceImage, error) {
	if maxBytes > 0 && fh.Size > maxBytes {
		return core.SourceImage{}, apperrors.New(apperrors.CategoryInput, "server.read",
			fmt.Errorf("%w: %q is %d bytes", apperrors.ErrFileTooLarge, fh.Filename, fh.Size))
	}
	f, err := fh.Open()
	if err != nil {
		return core.SourceImage{}, apperrors.Wrap(apperrors.CategoryInput, "server.read", err)
	}
	defer f.Close()
	return photocompressor.ReadSource(ctx, f, fh.Filename, fh.Header.Get(echo.HeaderContentType), maxBytes)
}

// handleError maps categorised errors onto HTTP statuses.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := http.StatusText(code)

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		msg = fmt.Sprint(he.Message)
	case apperrors.IsCategory(err, apperrors.CategoryInput):
		code, msg = http.StatusBadRequest, err.Error()
	case apperrors.IsCategory(err, apperrors.CategoryStorage):
		code, msg = http.StatusBadGateway, "storage unavailable"
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("server.error", "path", c.Path(), "error", err.Error())
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"error": msg})
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		req := c.Request()
		s.logger.Info("http.request",
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			"method", req.Method,
			"path", req.URL.Path,
			"status", c.Response().Status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}
}
