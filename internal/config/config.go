// Package config resolves settings from flags, then the environment, then defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/autopark-gthost/odocheck/internal/backend"
)

const (
	DefaultRequiredPhotos = 4
	DefaultCloseDelay     = 500 * time.Millisecond
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultJPEGQuality    = 92
)

// Config holds what a session needs to reach the backend and encode photos.
type Config struct {
	BackendURL     string
	RequiredPhotos int
	CloseDelay     time.Duration
	HTTPTimeout    time.Duration
	JPEGQuality    int
	MaxDimension   int
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		BackendURL:     backend.DefaultBaseURL,
		RequiredPhotos: DefaultRequiredPhotos,
		CloseDelay:     DefaultCloseDelay,
		HTTPTimeout:    DefaultHTTPTimeout,
		JPEGQuality:    DefaultJPEGQuality,
	}
}

// FromEnv overlays ODOCHECK_* environment variables on Default.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	var errs []error

	if v, ok := lookup("ODOCHECK_BACKEND_URL"); ok && v != "" {
		cfg.BackendURL = v
	}
	if v, ok := lookup("ODOCHECK_REQUIRED_PHOTOS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid ODOCHECK_REQUIRED_PHOTOS: %w", err))
		} else {
			cfg.RequiredPhotos = n
		}
	}
	if v, ok := lookup("ODOCHECK_CLOSE_DELAY"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid ODOCHECK_CLOSE_DELAY: %w", err))
		} else {
			cfg.CloseDelay = d
		}
	}
	if v, ok := lookup("ODOCHECK_HTTP_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid ODOCHECK_HTTP_TIMEOUT: %w", err))
		} else {
			cfg.HTTPTimeout = d
		}
	}
	if v, ok := lookup("ODOCHECK_JPEG_QUALITY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid ODOCHECK_JPEG_QUALITY: %w", err))
		} else {
			cfg.JPEGQuality = n
		}
	}
	if v, ok := lookup("ODOCHECK_MAX_DIMENSION"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid ODOCHECK_MAX_DIMENSION: %w", err))
		} else {
			cfg.MaxDimension = n
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.BackendURL == "" {
		return errors.New("backend URL required (use --backend or ODOCHECK_BACKEND_URL)")
	}
	if c.RequiredPhotos < 1 {
		return fmt.Errorf("required photos must be positive, got %d", c.RequiredPhotos)
	}
	if c.CloseDelay < 0 {
		return fmt.Errorf("close delay must not be negative, got %s", c.CloseDelay)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG quality must be within 1..100, got %d", c.JPEGQuality)
	}
	if c.MaxDimension < 0 {
		return fmt.Errorf("max dimension must not be negative, got %d", c.MaxDimension)
	}
	return nil
}
