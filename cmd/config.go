package cmd

import (
	"fmt"
	"time"

	"github.com/autopark-gthost/odocheck/internal/capture"
	"github.com/autopark-gthost/odocheck/internal/config"
	"github.com/autopark-gthost/odocheck/internal/session"
	"github.com/spf13/cobra"
)

// sessionFlags are shared by the commands that drive sessions.
type sessionFlags struct {
	backendURL     string
	requiredPhotos int
	closeDelay     time.Duration
	httpTimeout    time.Duration
	jpegQuality    int
	maxDimension   int
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	d := config.Default()
	cmd.Flags().StringVar(&f.backendURL, "backend", d.BackendURL, "Backend API base URL (env ODOCHECK_BACKEND_URL)")
	cmd.Flags().IntVar(&f.requiredPhotos, "photos", d.RequiredPhotos, "Documentation photos per report (env ODOCHECK_REQUIRED_PHOTOS)")
	cmd.Flags().DurationVar(&f.closeDelay, "close-delay", d.CloseDelay, "Delay before the host is closed after submission (env ODOCHECK_CLOSE_DELAY)")
	cmd.Flags().DurationVar(&f.httpTimeout, "http-timeout", d.HTTPTimeout, "Timeout for backend requests, 0 for none (env ODOCHECK_HTTP_TIMEOUT)")
	cmd.Flags().IntVar(&f.jpegQuality, "jpeg-quality", d.JPEGQuality, "JPEG quality of captured photos (env ODOCHECK_JPEG_QUALITY)")
	cmd.Flags().IntVar(&f.maxDimension, "max-dimension", d.MaxDimension, "Downscale photos to this many pixels on the long side, 0 keeps them (env ODOCHECK_MAX_DIMENSION)")
}

// resolve layers flags the user set over the environment over defaults.
func (f *sessionFlags) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.BackendURL = f.backendURL
	}
	if flags.Changed("photos") {
		cfg.RequiredPhotos = f.requiredPhotos
	}
	if flags.Changed("close-delay") {
		cfg.CloseDelay = f.closeDelay
	}
	if flags.Changed("http-timeout") {
		cfg.HTTPTimeout = f.httpTimeout
	}
	if flags.Changed("jpeg-quality") {
		cfg.JPEGQuality = f.jpegQuality
	}
	if flags.Changed("max-dimension") {
		cfg.MaxDimension = f.maxDimension
	}
	return cfg, cfg.Validate()
}

func sessionOptions(cfg config.Config) session.Options {
	return session.Options{
		RequiredPhotos: cfg.RequiredPhotos,
		CloseDelay:     cfg.CloseDelay,
		Capture: capture.Options{
			Quality:      cfg.JPEGQuality,
			MaxDimension: cfg.MaxDimension,
		},
	}
}
