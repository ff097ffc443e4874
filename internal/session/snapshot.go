package session

import (
	"fmt"

	"github.com/autopark-gthost/odocheck/internal/camera"
	"github.com/autopark-gthost/odocheck/internal/geo"
	"github.com/autopark-gthost/odocheck/internal/host"
)

// CameraState describes the running stream, if any.
type CameraState struct {
	Active       bool                `json:"active"`
	Surface      string              `json:"surface,omitempty"`
	Zoom         float64             `json:"zoom"`
	Torch        bool                `json:"torch"`
	Capabilities camera.Capabilities `json:"capabilities"`
}

// Snapshot is a read-only view of a controller for rendering.
type Snapshot struct {
	View      View              `json:"view"`
	CarID     int64             `json:"car_id"`
	Action    string            `json:"action"`
	Forbidden bool              `json:"forbidden"`
	Closed    bool              `json:"closed"`
	Marker    *geo.LatLng       `json:"marker,omitempty"`
	Center    geo.LatLng        `json:"center"`
	Zoom      int               `json:"zoom"`
	Pending   bool              `json:"pending_photo"`
	Odometer  *float64          `json:"odometer,omitempty"`
	Typed     *float64          `json:"typed_odometer,omitempty"`
	Photos    int               `json:"photos"`
	Required  int               `json:"required_photos"`
	Progress  string            `json:"progress"`
	Attempts  int               `json:"submit_attempts"`
	Camera    CameraState       `json:"camera"`
	Error     string            `json:"error,omitempty"`
	Notice    string            `json:"notice,omitempty"`
	Theme     map[string]string `json:"theme,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		View:      c.view,
		CarID:     c.launch.CarID,
		Action:    c.launch.Action,
		Forbidden: c.forbidden,
		Closed:    c.closed,
		Pending:   c.pending != nil,
		Odometer:  c.recognized,
		Typed:     c.typed,
		Photos:    len(c.photos),
		Required:  c.opts.RequiredPhotos,
		Progress:  fmt.Sprintf("%d из %d фото", len(c.photos), c.opts.RequiredPhotos),
		Attempts:  c.submissions,
		Error:     c.lastErr,
		Notice:    c.notice,
		Theme:     host.ThemeVariables(c.host.ThemeParams()),
	}
	if p, ok := c.mapw.Marker(); ok {
		s.Marker = &p
	}
	if m, ok := c.mapw.(*geo.Map); ok {
		s.Center, s.Zoom = m.View()
	}

	surface, active := c.camera.Active()
	s.Camera = CameraState{
		Active:       active,
		Surface:      surface,
		Zoom:         c.camera.Zoom(),
		Torch:        c.camera.Torch(),
		Capabilities: c.camera.Capabilities(),
	}
	return s
}

// Params returns the parameters the controller was started with.
func (c *Controller) Params() Launch { return c.launch }
