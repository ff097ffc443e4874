package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/autopark-gthost/odocheck/internal/capture"
)

// FileSource feeds frames from image files (or in-memory images) in order.
// Every Frame call on any of its streams consumes the next one.
type FileSource struct {
	// Err, when set, makes Open fail as if the user denied access.
	Err error

	caps Capabilities

	mu     sync.Mutex
	frames []func() (image.Image, error)
	next   int
	opened int
}

func NewFileSource(paths []string, caps Capabilities) *FileSource {
	s := &FileSource{caps: caps}
	for _, p := range paths {
		path := p
		s.frames = append(s.frames, func() (image.Image, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read frame %s: %w", path, err)
			}
			return capture.Decode(data)
		})
	}
	return s
}

func NewImageSource(caps Capabilities, frames ...image.Image) *FileSource {
	s := &FileSource{caps: caps}
	for _, f := range frames {
		img := f
		s.frames = append(s.frames, func() (image.Image, error) { return img, nil })
	}
	return s
}

func (s *FileSource) Open(ctx context.Context, facing Facing) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()
	return &fileStream{source: s}, nil
}

// Opened returns how many streams have been opened.
func (s *FileSource) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Remaining returns how many frames have not been consumed yet.
func (s *FileSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames) - s.next
}

func (s *FileSource) take() (image.Image, error) {
	s.mu.Lock()
	if s.next >= len(s.frames) {
		s.mu.Unlock()
		return nil, ErrNoFrame
	}
	load := s.frames[s.next]
	s.next++
	s.mu.Unlock()
	return load()
}

type fileStream struct {
	source *FileSource
	closed bool
}

func (f *fileStream) Frame() (image.Image, error) {
	if f.closed {
		return nil, ErrClosed
	}
	return f.source.take()
}

func (f *fileStream) Capabilities() Capabilities { return f.source.caps }
func (f *fileStream) ApplyZoom(float64) error    { return nil }
func (f *fileStream) ApplyTorch(bool) error      { return nil }

func (f *fileStream) Close() error {
	f.closed = true
	return nil
}

// PushSource is fed by a remote client: it pushes the frame it currently shows,
// and the stream hands back the latest one. There is no queue.
type PushSource struct {
	caps Capabilities

	mu     sync.Mutex
	latest image.Image
	active *pushStream
}

func NewPushSource(caps Capabilities) *PushSource {
	return &PushSource{caps: caps}
}

// Push replaces the live frame.
func (s *PushSource) Push(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = img
}

func (s *PushSource) Open(ctx context.Context, facing Facing) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// A fresh stream never shows the previous stream's last frame.
	s.latest = nil
	s.active = &pushStream{source: s}
	return s.active, nil
}

type pushStream struct {
	source *PushSource
	closed bool
}

func (p *pushStream) Frame() (image.Image, error) {
	p.source.mu.Lock()
	defer p.source.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.source.latest == nil {
		return nil, ErrNoFrame
	}
	return p.source.latest, nil
}

func (p *pushStream) Capabilities() Capabilities { return p.source.caps }
func (p *pushStream) ApplyZoom(float64) error    { return nil }
func (p *pushStream) ApplyTorch(bool) error      { return nil }

func (p *pushStream) Close() error {
	p.source.mu.Lock()
	defer p.source.mu.Unlock()
	p.closed = true
	if p.source.active == p {
		p.source.active = nil
	}
	return nil
}
