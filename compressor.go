// Package photocompressor shrinks user-selected photos before upload. A photo
// is downscaled to fit a pixel bound and re-encoded as JPEG at decreasing
// quality until it fits a byte budget. Every failure falls back to the
// original file, so a submission is never blocked by compression.
package photocompressor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skryldev/photo-compressor/adapters/decoder"
	"github.com/Skryldev/photo-compressor/adapters/encoder"
	"github.com/Skryldev/photo-compressor/config"
	"github.com/Skryldev/photo-compressor/core"
	apperrors "github.com/Skryldev/photo-compressor/errors"
	"github.com/Skryldev/photo-compressor/utils"
)

// DefaultConfig returns the production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Compressor is the primary entry point. It is safe for concurrent use.
type Compressor struct {
	cfg      config.Config
	registry *core.DefaultRegistry
	hooks    []core.Hook
	logger   core.Logger
	metrics  core.MetricsCollector

	// Async worker pool.
	jobQueue  chan core.Job
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	shutdown  chan struct{}
	mu        sync.RWMutex // orders Submit against Stop
	closed    bool

	compressed int64
	fallbacks  int64
}

// New validates cfg and returns a Compressor with the built-in decoders and
// the JPEG encoder registered.
func New(cfg config.Config) (*Compressor, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "new", err)
	}
	reg := core.NewRegistry()
	decoder.RegisterAll(reg)
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(config.Percent(cfg.Compression.InitialQuality)))

	return &Compressor{
		cfg:      cfg,
		registry: reg,
		logger:   core.NopLogger{},
		jobQueue: make(chan core.Job, cfg.QueueSize),
		shutdown: make(chan struct{}),
	}, nil
}

// SetLogger attaches a structured logger.
func (c *Compressor) SetLogger(l core.Logger) {
	if l == nil {
		l = core.NopLogger{}
	}
	c.logger = l
}

// SetMetrics attaches a metrics collector.
func (c *Compressor) SetMetrics(m core.MetricsCollector) { c.metrics = m }

// AddHook registers an observer for pipeline step events. Call before the
// first compression.
func (c *Compressor) AddHook(h core.Hook) { c.hooks = append(c.hooks, h) }

// RegisterDecoder registers a custom decoder for the given format.
func (c *Compressor) RegisterDecoder(f core.Format, d core.Decoder) { c.registry.RegisterDecoder(f, d) }

// RegisterEncoder replaces the JPEG encoder (or adds another).
func (c *Compressor) RegisterEncoder(f core.Format, e core.Encoder) { c.registry.RegisterEncoder(f, e) }

// Config returns the configuration the Compressor was built with.
func (c *Compressor) Config() config.Config { return c.cfg }

// Compress runs the compressor with the configured CompressionConfig.
func (c *Compressor) Compress(ctx context.Context, src core.SourceImage) core.Outcome {
	return c.CompressWith(ctx, src, c.cfg.Compression)
}

// CompressWith runs the compressor with cc. The returned Outcome always
// carries a usable File: the compressed JPEG, or src itself when compression
// was skipped or failed. src is never modified.
func (c *Compressor) CompressWith(ctx context.Context, src core.SourceImage, cc config.CompressionConfig) (out core.Outcome) {
	start := time.Now()
	out = core.Outcome{File: src}
	defer func() {
		if r := recover(); r != nil {
			out = core.Outcome{
				File:   src,
				Status: core.StatusInternalError,
				Err:    apperrors.New(apperrors.CategoryPipeline, "compress", fmt.Errorf("panic: %v", r)),
			}
		}
		out.Elapsed = time.Since(start)
		c.record(src, out)
	}()

	if !cc.Enabled {
		out.Status = core.StatusDisabled
		return out
	}
	if err := config.ValidateCompression(cc); err != nil {
		out.Status = core.StatusInternalError
		out.Err = apperrors.New(apperrors.CategoryConfig, "compress", err)
		return out
	}
	if !utils.IsImageMediaType(src.MediaType) {
		out.Status = core.StatusNotImage
		out.Err = apperrors.New(apperrors.CategoryInput, "compress",
			fmt.Errorf("%w: %q", apperrors.ErrNotImage, src.MediaType))
		return out
	}
	if int64(len(src.Data)) <= cc.TargetBytes {
		out.Status = core.StatusUnderTarget
		return out
	}

	img := &core.ImageData{
		Data:         src.Data,
		Format:       core.FormatFromMediaType(strings.ToLower(src.MediaType)),
		OriginalSize: int64(len(src.Data)),
	}
	res, _, err := c.pipelineFor(cc).Run(ctx, img)
	if err != nil {
		out.Status = statusFor(err)
		out.Err = err
		return out
	}

	out.Status = core.StatusCompressed
	out.File = core.EncodedResult{
		Data:      res.Data,
		Width:     res.Meta.Width,
		Height:    res.Meta.Height,
		Name:      core.JPEGName(src.Name),
		MediaType: core.MediaTypeJPEG,
		Quality:   float64(res.Meta.Quality) / 100,
		Attempts:  res.Meta.Attempts,
	}
	return out
}

// statusFor maps a pipeline failure onto the fallback status reported to the
// caller. A context that ran out is treated like a failed encode.
func statusFor(err error) core.Status {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return core.StatusEncodeFailed
	case errors.Is(err, apperrors.ErrUnsupportedFormat):
		return core.StatusUnsupported
	case apperrors.IsCategory(err, apperrors.CategoryDecode):
		return core.StatusDecodeFailed
	case apperrors.IsCategory(err, apperrors.CategoryEncode):
		return core.StatusEncodeFailed
	}
	return core.StatusInternalError
}

func (c *Compressor) record(src core.SourceImage, out core.Outcome) {
	switch {
	case out.Status == core.StatusCompressed:
		atomic.AddInt64(&c.compressed, 1)
		c.logger.Debug("compress.done",
			"name", src.Name,
			"in_bytes", len(src.Data),
			"out_bytes", out.File.Size(),
			"elapsed_ms", out.Elapsed.Milliseconds(),
		)
	case out.Status.Fallback():
		atomic.AddInt64(&c.fallbacks, 1)
		c.logger.Warn("compress.fallback",
			"name", src.Name,
			"media_type", src.MediaType,
			"status", out.Status,
			"error", errString(out.Err),
		)
	}
	if c.metrics != nil {
		c.metrics.RecordOutcome(out.Status, int64(len(src.Data)), out.File.Size())
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ── Batch ─────────────────────────────────────────────────────────────────────

// CompressBatch compresses sources and returns one Outcome per source, in
// input order. WorkerCount <= 1 compresses one file at a time; otherwise at
// most WorkerCount files are in flight. JobTimeout bounds each file.
func (c *Compressor) CompressBatch(ctx context.Context, sources []core.SourceImage) []core.Outcome {
	outcomes := make([]core.Outcome, len(sources))
	if c.cfg.WorkerCount <= 1 || len(sources) <= 1 {
		for i, src := range sources {
			outcomes[i] = c.compressOne(ctx, src)
		}
		return outcomes
	}
	c.compressPool(ctx, sources, outcomes)
	return outcomes
}

func (c *Compressor) compressOne(ctx context.Context, src core.SourceImage) core.Outcome {
	if c.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.JobTimeout)
		defer cancel()
	}
	return c.Compress(ctx, src)
}

// Stats returns the number of compressed files and of fallbacks to the
// original caused by a failure.
func (c *Compressor) Stats() (compressed, fallbacks int64) {
	return atomic.LoadInt64(&c.compressed), atomic.LoadInt64(&c.fallbacks)
}

// ── Async worker pool ─────────────────────────────────────────────────────────

// Start launches the worker pool. It is idempotent.
func (c *Compressor) Start() {
	c.startOnce.Do(func() {
		workers := c.cfg.WorkerCount
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		for i := 0; i < workers; i++ {
			c.wg.Add(1)
			go c.worker()
		}
	})
}

// Stop finishes the queued jobs and shuts down all workers. Safe to call
// more than once.
func (c *Compressor) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.shutdown)
		c.mu.Unlock()
	})
	c.wg.Wait()
}

// Submit enqueues an async job. It returns ErrWorkerPoolFull when the queue
// is full and ErrWorkerPoolClosed after Stop.
func (c *Compressor) Submit(job core.Job) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return apperrors.New(apperrors.CategoryPipeline, "submit", apperrors.ErrWorkerPoolClosed)
	}
	select {
	case c.jobQueue <- job:
		return nil
	default:
		return apperrors.New(apperrors.CategoryPipeline, "submit", apperrors.ErrWorkerPoolFull)
	}
}

func (c *Compressor) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.shutdown:
			for {
				select {
				case job := <-c.jobQueue:
					c.processJob(job)
				default:
					return
				}
			}
		case job := <-c.jobQueue:
			c.processJob(job)
		}
	}
}

// processJob compresses a job's files one after another; the pool size
// alone bounds how many images are decoded at once.
func (c *Compressor) processJob(job core.Job) {
	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	outcomes := make([]core.Outcome, len(job.Sources))
	for i, src := range job.Sources {
		outcomes[i] = c.compressOne(ctx, src)
	}
	if job.ResultCh != nil {
		job.ResultCh <- core.JobResult{JobID: job.ID, Outcomes: outcomes, Elapsed: time.Since(start)}
	}
}

// ── Sources ───────────────────────────────────────────────────────────────────

// ReadSource drains r into a SourceImage, failing with ErrFileTooLarge when r
// holds more than maxBytes (maxBytes <= 0 means no limit). An empty mediaType
// is sniffed from the content.
func ReadSource(ctx context.Context, r io.Reader, name, mediaType string, maxBytes int64) (core.SourceImage, error) {
	buf, err := utils.DrainReader(ctx, &utils.LimitedReader{R: r, Max: maxBytes}, 0)
	if err != nil {
		return core.SourceImage{}, apperrors.Wrap(apperrors.CategoryInput, "read_source", err)
	}
	data := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	if mediaType == "" {
		mediaType = sniffMediaType(data)
	}
	return core.SourceImage{Data: data, MediaType: mediaType, Name: name}, nil
}

// sniffMediaType prefers the image signatures net/http does not know about
// (HEIC, AVIF, TIFF).
func sniffMediaType(data []byte) string {
	if f := core.Format(utils.DetectFormat(data)); f != core.FormatUnknown {
		return "image/" + string(f)
	}
	return http.DetectContentType(data)
}
