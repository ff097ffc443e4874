package storage

import (
	"testing"
	"time"

	"github.com/autopark-gthost/odocheck/internal/camera"
	"github.com/autopark-gthost/odocheck/internal/host"
	"github.com/autopark-gthost/odocheck/internal/session"
	"github.com/stretchr/testify/assert"
)

func newSession(id string, created time.Time) *Session {
	src := camera.NewPushSource(camera.Capabilities{})
	rec := host.NewRecorder("t", nil)
	return &Session{
		ID:         id,
		Controller: session.New(session.Deps{Host: rec, Camera: src}, session.Launch{CarID: 1, Action: session.ActionStart}, session.Options{}),
		Camera:     src,
		Host:       rec,
		CreatedAt:  created,
	}
}

func TestSetGetDelete(t *testing.T) {
	s := New()
	s.Set(newSession("a", time.Now()))

	got, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, 1, s.Len())

	_, ok = s.Delete("a")
	assert.True(t, ok)
	_, ok = s.Get("a")
	assert.False(t, ok)
	_, ok = s.Delete("a")
	assert.False(t, ok)
}

func TestPrune(t *testing.T) {
	now := time.Now()
	s := New()
	old := newSession("old", now.Add(-2*time.Hour))
	s.Set(old)
	s.Set(newSession("fresh", now))

	assert.Equal(t, 1, s.Prune(now.Add(-time.Hour)))
	_, ok := s.Get("old")
	assert.False(t, ok)
	_, ok = s.Get("fresh")
	assert.True(t, ok)
	assert.True(t, old.Controller.Snapshot().Closed)
}
