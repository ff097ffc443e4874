package camera

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/autopark-gthost/odocheck/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	live    int
	maxLive int
	caps    Capabilities
}

type countingStream struct {
	src    *countingSource
	zoom   float64
	torch  bool
	closed bool
}

func (c *countingSource) Open(ctx context.Context, facing Facing) (Stream, error) {
	c.live++
	if c.live > c.maxLive {
		c.maxLive = c.live
	}
	return &countingStream{src: c}, nil
}

func (s *countingStream) Frame() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}
func (s *countingStream) Capabilities() Capabilities { return s.src.caps }
func (s *countingStream) ApplyZoom(f float64) error  { s.zoom = f; return nil }
func (s *countingStream) ApplyTorch(on bool) error   { s.torch = on; return nil }
func (s *countingStream) Close() error {
	if !s.closed {
		s.closed = true
		s.src.live--
	}
	return nil
}

func TestAdapterSingleStream(t *testing.T) {
	src := &countingSource{}
	a := NewAdapter(src)
	ctx := context.Background()

	require.NoError(t, a.Start(ctx, "camera"))
	require.NoError(t, a.Start(ctx, "session"))
	require.NoError(t, a.Start(ctx, "session"))

	assert.Equal(t, 1, src.live)
	assert.Equal(t, 1, src.maxLive)
	surface, ok := a.Active()
	assert.True(t, ok)
	assert.Equal(t, "session", surface)

	a.Stop()
	a.Stop()
	assert.Equal(t, 0, src.live)
	_, ok = a.Active()
	assert.False(t, ok)

	_, _, err := a.Frame()
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestAdapterDenied(t *testing.T) {
	denied := errors.New("NotAllowedError")
	a := NewAdapter(&FileSource{Err: denied})

	err := a.Start(context.Background(), "camera")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, deniedMessage, apperr.Message(err))

	_, ok := a.Active()
	assert.False(t, ok)
}

func TestAdapterZoom(t *testing.T) {
	src := &countingSource{caps: Capabilities{Zoom: &Range{Min: 1, Max: 5, Step: 0.5}, Torch: true}}
	a := NewAdapter(src)
	ctx := context.Background()

	_, err := a.SetZoom(2)
	assert.ErrorIs(t, err, ErrNotActive)

	require.NoError(t, a.Start(ctx, "camera"))
	assert.Equal(t, 1.0, a.Zoom())

	tests := []struct {
		requested float64
		expected  float64
	}{
		{requested: 2, expected: 2},
		{requested: 2.3, expected: 2.5},
		{requested: 9, expected: 5},
		{requested: 0.2, expected: 1},
	}
	for _, tt := range tests {
		got, err := a.SetZoom(tt.requested)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got)
		assert.Equal(t, tt.expected, a.Zoom())
	}

	_, zoom, err := a.Frame()
	require.NoError(t, err)
	assert.Equal(t, 1.0, zoom)

	require.NoError(t, a.SetTorch(true))
	assert.True(t, a.Torch())

	// A restart resets the controls.
	require.NoError(t, a.Start(ctx, "session"))
	assert.Equal(t, 1.0, a.Zoom())
	assert.False(t, a.Torch())
}

func TestAdapterUnsupportedControls(t *testing.T) {
	a := NewAdapter(&countingSource{})
	require.NoError(t, a.Start(context.Background(), "camera"))

	_, err := a.SetZoom(2)
	assert.ErrorIs(t, err, apperr.ErrUnsupported)
	assert.ErrorIs(t, a.SetTorch(true), apperr.ErrUnsupported)
	assert.Equal(t, 1.0, a.Zoom())
}

func TestFileSourceConsumesFrames(t *testing.T) {
	first := image.NewRGBA(image.Rect(0, 0, 2, 2))
	second := image.NewRGBA(image.Rect(0, 0, 3, 3))
	src := NewImageSource(Capabilities{}, first, second)
	a := NewAdapter(src)
	ctx := context.Background()

	require.NoError(t, a.Start(ctx, "camera"))
	img, _, err := a.Frame()
	require.NoError(t, err)
	assert.Equal(t, first, img)

	require.NoError(t, a.Start(ctx, "session"))
	img, _, err = a.Frame()
	require.NoError(t, err)
	assert.Equal(t, second, img)

	_, _, err = a.Frame()
	assert.ErrorIs(t, err, ErrNoFrame)
	assert.Equal(t, 2, src.Opened())
	assert.Equal(t, 0, src.Remaining())
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource([]string{"does-not-exist.jpg"}, Capabilities{})
	a := NewAdapter(src)
	require.NoError(t, a.Start(context.Background(), "camera"))
	_, _, err := a.Frame()
	assert.Error(t, err)
}

func TestPushSourceLatestFrame(t *testing.T) {
	src := NewPushSource(Capabilities{Torch: true})
	a := NewAdapter(src)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx, "camera"))

	_, _, err := a.Frame()
	assert.ErrorIs(t, err, ErrNoFrame)

	one := image.NewRGBA(image.Rect(0, 0, 1, 1))
	two := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.Push(one)
	src.Push(two)
	img, _, err := a.Frame()
	require.NoError(t, err)
	assert.Equal(t, two, img)

	// Restarting drops the stale frame.
	require.NoError(t, a.Start(ctx, "session"))
	_, _, err = a.Frame()
	assert.ErrorIs(t, err, ErrNoFrame)
	assert.True(t, a.Capabilities().Torch)
}

func TestRangeClamp(t *testing.T) {
	r := Range{Min: 1, Max: 3}
	assert.Equal(t, 1.0, r.Clamp(-1))
	assert.Equal(t, 2.25, r.Clamp(2.25))
	assert.Equal(t, 3.0, r.Clamp(10))
}
