// Package providers defines the vision model backends used to read odometer photos.
package providers

import (
	"context"
)

// Config is one vision request: a prompt plus the image it is about.
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
	Image       []byte
	// ImageMIME defaults to image/jpeg.
	ImageMIME string
}

// Provider answers a prompt about an image with free text.
type Provider interface {
	Name() string
	ExtractText(ctx context.Context, config Config) (string, error)
}

// MIME returns the image type, defaulting to JPEG.
func (c Config) MIME() string {
	if c.ImageMIME == "" {
		return "image/jpeg"
	}
	return c.ImageMIME
}
