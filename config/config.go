package config

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// StorageBackend selects the storage adapter.
type StorageBackend string

const (
	StorageNone  StorageBackend = "none"
	StorageLocal StorageBackend = "local"
	StorageS3    StorageBackend = "s3"
)

// Config is the top-level configuration struct. Start from Default() and
// override only what you need.
type Config struct {
	// Batch / worker pool controls. WorkerCount <= 1 compresses sequentially.
	WorkerCount int           `env:"WORKERS"`
	QueueSize   int           `env:"QUEUE_SIZE"`
	JobTimeout  time.Duration `env:"JOB_TIMEOUT"` // per file; 0 = none

	// Retry of transient storage failures.
	MaxRetries int           `env:"MAX_RETRIES"`
	RetryDelay time.Duration `env:"RETRY_DELAY"`

	Compression CompressionConfig
	Limits      UploadLimits

	// Decoder backend: "std" (pure Go) or "vips" (binaries built with -tags vips).
	DecoderBackend string `env:"DECODER_BACKEND"`

	// Storage.
	Storage StorageBackend `env:"STORAGE"`
	Local   LocalConfig
	S3      S3Config

	Server ServerConfig

	// Logging.
	LogLevel  string `env:"LOG_LEVEL"`  // "debug", "info", "warn", "error"
	LogFormat string `env:"LOG_FORMAT"` // "text", "json", "console"
}

// CompressionConfig drives the adaptive compressor. Qualities are fractions
// in (0, 1]; the encoder works in whole percent.
type CompressionConfig struct {
	Enabled        bool    `env:"COMPRESSION_ENABLED"`
	MaxDimension   int     `env:"MAX_DIMENSION"`   // pixels, longer side
	TargetBytes    int64   `env:"TARGET_BYTES"`    // soft byte budget
	QualityFloor   float64 `env:"QUALITY_FLOOR"`   // lowest quality the search accepts
	InitialQuality float64 `env:"INITIAL_QUALITY"` // first encode attempt
	QualityStep    float64 `env:"QUALITY_STEP"`    // decrement per attempt
	MaxPixels      int64   `env:"MAX_PIXELS"`      // decoded width*height accepted
}

// UploadLimits bounds a single submitted batch.
type UploadLimits struct {
	MaxFiles      int   `env:"MAX_FILES"`
	MaxFileBytes  int64 `env:"MAX_FILE_BYTES"`
	MaxTotalBytes int64 `env:"MAX_TOTAL_BYTES"`
}

// LocalConfig configures the local filesystem storage adapter.
type LocalConfig struct {
	RootDir     string `env:"LOCAL_ROOT"`
	Permissions uint32 `env:"LOCAL_PERMISSIONS"` // default 0644
}

// S3Config configures the AWS S3 storage adapter.
type S3Config struct {
	Bucket          string `env:"S3_BUCKET"`
	Region          string `env:"S3_REGION"`
	Endpoint        string `env:"S3_ENDPOINT"` // optional custom endpoint (MinIO, etc.)
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE"`
}

// ServerConfig configures the HTTP intake server.
type ServerConfig struct {
	Address         string        `env:"ADDRESS"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
}

// DefaultCompression mirrors the values the upload form has always used.
func DefaultCompression() CompressionConfig {
	return CompressionConfig{
		Enabled:        true,
		MaxDimension:   1600,
		TargetBytes:    300 * 1024,
		QualityFloor:   0.5,
		InitialQuality: 0.85,
		QualityStep:    0.1,
		MaxPixels:      50_000_000,
	}
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		WorkerCount: 1,
		QueueSize:   64,
		JobTimeout:  30 * time.Second,
		MaxRetries:  3,
		RetryDelay:  200 * time.Millisecond,
		Compression: DefaultCompression(),
		Limits: UploadLimits{
			MaxFiles:      20,
			MaxFileBytes:  8 * 1024 * 1024,
			MaxTotalBytes: 100 * 1024 * 1024,
		},
		DecoderBackend: "std",
		Storage:        StorageNone,
		Local:          LocalConfig{RootDir: "./uploads", Permissions: 0o644},
		Server:         ServerConfig{Address: ":8080", ShutdownTimeout: 10 * time.Second},
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if err := ValidateCompression(c.Compression); err != nil {
		return err
	}
	if c.WorkerCount < 0 {
		return errors.New("config: WorkerCount must not be negative")
	}
	if c.QueueSize <= 0 {
		return errors.New("config: QueueSize must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("config: MaxRetries must not be negative")
	}
	if c.Limits.MaxFiles <= 0 || c.Limits.MaxFileBytes <= 0 || c.Limits.MaxTotalBytes <= 0 {
		return errors.New("config: upload limits must be positive")
	}
	switch c.DecoderBackend {
	case "std", "vips":
	default:
		return fmt.Errorf("config: unknown DecoderBackend %q", c.DecoderBackend)
	}
	switch c.Storage {
	case StorageNone:
	case StorageLocal:
		if c.Local.RootDir == "" {
			return errors.New("config: Local.RootDir is required for local storage")
		}
	case StorageS3:
		if c.S3.Bucket == "" {
			return errors.New("config: S3.Bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("config: unknown Storage %q", c.Storage)
	}
	return nil
}

// ValidateCompression checks a CompressionConfig on its own; the compressor
// uses it for per-call overrides.
func ValidateCompression(c CompressionConfig) error {
	if c.MaxDimension <= 0 {
		return errors.New("config: MaxDimension must be positive")
	}
	if c.TargetBytes <= 0 {
		return errors.New("config: TargetBytes must be positive")
	}
	if c.QualityFloor <= 0 || c.QualityFloor > 1 {
		return errors.New("config: QualityFloor must be in (0, 1]")
	}
	if c.InitialQuality <= 0 || c.InitialQuality > 1 {
		return errors.New("config: InitialQuality must be in (0, 1]")
	}
	if c.QualityFloor > c.InitialQuality {
		return errors.New("config: QualityFloor must not exceed InitialQuality")
	}
	if c.QualityStep <= 0 || c.QualityStep > 1 {
		return errors.New("config: QualityStep must be in (0, 1]")
	}
	if c.MaxPixels <= 0 {
		return errors.New("config: MaxPixels must be positive")
	}
	return nil
}

// Percent converts a quality fraction to the 1-100 scale used by encoders.
func Percent(q float64) int {
	p := int(math.Round(q * 100))
	if p < 1 {
		return 1
	}
	if p > 100 {
		return 100
	}
	return p
}
