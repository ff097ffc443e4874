// Package camera owns the device video stream used by the capture views.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"

	"github.com/autopark-gthost/odocheck/internal/apperr"
)

// Facing selects the physical camera.
type Facing string

const (
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
)

const deniedMessage = "Camera access denied. Please grant permission."

var (
	ErrNoFrame   = errors.New("no frame available")
	ErrNotActive = errors.New("camera is not running")
	ErrClosed    = errors.New("stream closed")
)

// Range is a continuous numeric control such as zoom.
type Range struct {
	Min  float64 `json:"min" yaml:"min"`
	Max  float64 `json:"max" yaml:"max"`
	Step float64 `json:"step,omitempty" yaml:"step,omitempty"`
}

// Clamp limits v to the range and snaps it to Step when Step is set.
func (r Range) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return r.Min
	}
	if r.Step > 0 {
		v = r.Min + math.Round((v-r.Min)/r.Step)*r.Step
	}
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Capabilities are negotiated with the device when a stream starts.
type Capabilities struct {
	Zoom  *Range `json:"zoom,omitempty" yaml:"zoom,omitempty"`
	Torch bool   `json:"torch" yaml:"torch"`
}

// Stream is a live video stream. Frame returns the current frame at native resolution.
type Stream interface {
	Frame() (image.Image, error)
	Capabilities() Capabilities
	ApplyZoom(factor float64) error
	ApplyTorch(on bool) error
	Close() error
}

// Source opens streams. Open fails when permission is denied or no device exists.
type Source interface {
	Open(ctx context.Context, facing Facing) (Stream, error)
}

// Adapter holds at most one live stream and the controls discovered for it.
type Adapter struct {
	source Source

	mu      sync.Mutex
	stream  Stream
	surface string
	caps    Capabilities
	zoom    float64
	torch   bool
}

func NewAdapter(source Source) *Adapter {
	return &Adapter{source: source, zoom: 1}
}

// Start binds a new stream to surface, stopping any stream that is already running.
func (a *Adapter) Start(ctx context.Context, surface string) error {
	a.Stop()

	stream, err := a.source.Open(ctx, FacingEnvironment)
	if err != nil {
		slog.Warn("Camera unavailable", "surface", surface, "err", err)
		return apperr.Wrap(apperr.KindPermissionDenied, deniedMessage, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// A concurrent Start may have won while the device was opening.
	if a.stream != nil {
		_ = a.stream.Close()
	}
	a.stream = stream
	a.surface = surface
	a.caps = stream.Capabilities()
	a.zoom = 1
	a.torch = false
	slog.Debug("Camera started", "surface", surface, "zoom", a.caps.Zoom != nil, "torch", a.caps.Torch)
	return nil
}

// Stop releases the stream. Safe to call when nothing is running.
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream == nil {
		return
	}
	if err := a.stream.Close(); err != nil {
		slog.Warn("Failed to close camera stream", "surface", a.surface, "err", err)
	}
	slog.Debug("Camera stopped", "surface", a.surface)
	a.stream = nil
	a.surface = ""
	a.caps = Capabilities{}
	a.zoom = 1
	a.torch = false
}

// Active returns the surface the running stream is bound to.
func (a *Adapter) Active() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.surface, a.stream != nil
}

func (a *Adapter) Capabilities() Capabilities {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.caps
}

// Zoom returns the current zoom factor; 1 when zoom is unsupported.
func (a *Adapter) Zoom() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.zoom
}

func (a *Adapter) Torch() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.torch
}

// Frame returns the live frame and the zoom factor to crop it by.
func (a *Adapter) Frame() (image.Image, float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream == nil {
		return nil, 0, ErrNotActive
	}
	img, err := a.stream.Frame()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read frame: %w", err)
	}
	return img, a.zoom, nil
}

// SetZoom clamps factor to the device range and applies it. It returns the applied value.
func (a *Adapter) SetZoom(factor float64) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream == nil {
		return 0, ErrNotActive
	}
	if a.caps.Zoom == nil {
		return 1, apperr.New(apperr.KindUnsupported, "zoom is not supported by this camera")
	}
	v := a.caps.Zoom.Clamp(factor)
	if err := a.stream.ApplyZoom(v); err != nil {
		return a.zoom, fmt.Errorf("failed to apply zoom: %w", err)
	}
	a.zoom = v
	return v, nil
}

func (a *Adapter) SetTorch(on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream == nil {
		return ErrNotActive
	}
	if !a.caps.Torch {
		return apperr.New(apperr.KindUnsupported, "torch is not supported by this camera")
	}
	if err := a.stream.ApplyTorch(on); err != nil {
		return fmt.Errorf("failed to switch torch: %w", err)
	}
	a.torch = on
	return nil
}
