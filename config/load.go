package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable name, e.g.
// PHOTO_MAX_DIMENSION or PHOTO_S3_BUCKET.
const EnvPrefix = "PHOTO_"

// Load starts from Default(), applies variables from the given .env files
// (".env" when none are named; missing files are ignored) and then PHOTO_*
// environment variables, and validates the result.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := Default()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
