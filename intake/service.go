// Package intake turns the photos attached to one form submission into
// stored, compressed files and a manifest describing them.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skryldev/photo-compressor/adapters/storage"
	"github.com/Skryldev/photo-compressor/config"
	"github.com/Skryldev/photo-compressor/core"
	apperrors "github.com/Skryldev/photo-compressor/errors"
)

// ManifestName is the object written next to the files of a submission.
const ManifestName = "manifest.json"

// Upload is one file picked in a form field.
type Upload struct {
	Field string
	core.SourceImage
}

// Compressor is the part of photocompressor.Compressor the service uses.
type Compressor interface {
	CompressBatch(ctx context.Context, sources []core.SourceImage) []core.Outcome
}

// Entry describes one stored file.
type Entry struct {
	Field         string      `json:"field"`
	OriginalName  string      `json:"original_name"`
	Name          string      `json:"name"`
	Key           string      `json:"key,omitempty"`
	ContentType   string      `json:"content_type"`
	OriginalBytes int64       `json:"original_bytes"`
	Bytes         int64       `json:"bytes"`
	Width         int         `json:"width,omitempty"`
	Height        int         `json:"height,omitempty"`
	Quality       float64     `json:"quality,omitempty"`
	Status        core.Status `json:"status"`
}

// Manifest is the record of one submission.
type Manifest struct {
	SubmissionID string    `json:"submission_id"`
	CreatedAt    time.Time `json:"created_at"`
	Files        []Entry   `json:"files"`
	Stored       bool      `json:"stored"`
}

// Service validates, compresses and stores submissions.
type Service struct {
	compressor Compressor
	store      core.StorageAdapter // nil: compress only
	limits     config.UploadLimits
	maxRetries int
	retryDelay time.Duration
	logger     core.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger attaches a structured logger.
func WithLogger(l core.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock overrides time.Now for manifests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService builds a Service. store may be nil, in which case nothing is
// persisted and manifest keys stay empty.
func NewService(c Compressor, store core.StorageAdapter, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		compressor: c,
		store:      store,
		limits:     cfg.Limits,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     core.NopLogger{},
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Limits returns the limits uploads are checked against.
func (s *Service) Limits() config.UploadLimits { return s.limits }

// ValidateLimits checks a batch against limits before anything is compressed.
func ValidateLimits(uploads []Upload, limits config.UploadLimits) error {
	if len(uploads) > limits.MaxFiles {
		return apperrors.New(apperrors.CategoryInput, "intake.validate",
			fmt.Errorf("%w: %d files, at most %d allowed", apperrors.ErrTooManyFiles, len(uploads), limits.MaxFiles))
	}
	var total int64
	for _, u := range uploads {
		size := u.Size()
		if size > limits.MaxFileBytes {
			return apperrors.New(apperrors.CategoryInput, "intake.validate",
				fmt.Errorf("%w: %q is %d bytes, at most %d allowed", apperrors.ErrFileTooLarge, u.Name, size, limits.MaxFileBytes))
		}
		total += size
	}
	if total > limits.MaxTotalBytes {
		return apperrors.New(apperrors.CategoryInput, "intake.validate",
			fmt.Errorf("%w: %d bytes, at most %d allowed", apperrors.ErrBatchTooLarge, total, limits.MaxTotalBytes))
	}
	return nil
}

// Process validates uploads, compresses them (each file falls back to its
// original on failure) and, when storage is configured, writes every file
// under "<submission-id>/<nn>-<name>" followed by the manifest.
func (s *Service) Process(ctx context.Context, uploads []Upload) (*Manifest, error) {
	if err := ValidateLimits(uploads, s.limits); err != nil {
		return nil, err
	}

	sources := make([]core.SourceImage, len(uploads))
	for i, u := range uploads {
		sources[i] = u.SourceImage
	}
	outcomes := s.compressor.CompressBatch(ctx, sources)

	m := &Manifest{
		SubmissionID: uuid.NewString(),
		CreatedAt:    s.now().UTC(),
		Files:        make([]Entry, len(outcomes)),
		Stored:       s.store != nil,
	}
	compressed := 0
	for i, o := range outcomes {
		e := Entry{
			Field:         uploads[i].Field,
			OriginalName:  uploads[i].Name,
			Name:          o.File.FileName(),
			ContentType:   o.File.ContentType(),
			OriginalBytes: uploads[i].Size(),
			Bytes:         o.File.Size(),
			Status:        o.Status,
		}
		if enc, ok := o.Encoded(); ok {
			e.Width, e.Height, e.Quality = enc.Width, enc.Height, enc.Quality
			compressed++
		}
		if s.store != nil {
			e.Key = fmt.Sprintf("%s/%02d-%s", m.SubmissionID, i+1, SafeName(e.Name))
			meta := map[string]string{
				storage.MetaContentType: e.ContentType,
				"field":                 e.Field,
				"original-name":         e.OriginalName,
				"status":                string(e.Status),
			}
			if err := s.put(ctx, e.Key, o.File.Content(), meta); err != nil {
				return nil, err
			}
		}
		m.Files[i] = e
	}

	if s.store != nil {
		raw, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryStorage, "intake.manifest", err)
		}
		key := m.SubmissionID + "/" + ManifestName
		if err := s.put(ctx, key, raw, map[string]string{storage.MetaContentType: "application/json"}); err != nil {
			return nil, err
		}
	}

	s.logger.Info("intake.processed",
		"submission", m.SubmissionID,
		"files", len(m.Files),
		"compressed", compressed,
		"stored", m.Stored,
	)
	return m, nil
}

// put writes one object, retrying transient failures.
func (s *Service) put(ctx context.Context, key string, data []byte, meta map[string]string) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err = s.store.Put(ctx, core.StorageKey{Path: key}, bytes.NewReader(data), meta)
		if err == nil || !apperrors.IsRetryable(err) || attempt == s.maxRetries {
			break
		}
		s.logger.Warn("intake.put.retry", "key", key, "attempt", attempt+1, "error", err.Error())
		select {
		case <-ctx.Done():
			return apperrors.Wrap(apperrors.CategoryStorage, "intake.put", ctx.Err())
		case <-time.After(s.retryDelay):
		}
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "intake.put", err)
	}
	return nil
}

// SafeName reduces a user-supplied file name to a single path segment made
// of letters, digits, dots, dashes and underscores.
func SafeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}
