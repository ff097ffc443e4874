package geo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/geo/s2"
)

const earthRadiusMeters = 6371010.0

// LatLng is a point in degrees.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Valid reports whether the point lies within [-90,90] x [-180,180].
func (p LatLng) Valid() bool {
	return s2.LatLngFromDegrees(p.Lat, p.Lng).IsValid()
}

// DistanceMeters returns the great-circle distance between p and q.
func (p LatLng) DistanceMeters(q LatLng) float64 {
	a := s2.LatLngFromDegrees(p.Lat, p.Lng)
	b := s2.LatLngFromDegrees(q.Lat, q.Lng)
	return a.Distance(b).Radians() * earthRadiusMeters
}

func (p LatLng) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// LocationProvider returns the device position. Implementations return an
// apperr.KindPermissionDenied error when the user refuses or no fix is possible.
type LocationProvider interface {
	CurrentPosition(ctx context.Context) (LatLng, error)
}

// MapWidget is the part of the map the flow drives: one draggable marker and the viewport.
type MapWidget interface {
	PlaceMarker(p LatLng)
	Marker() (LatLng, bool)
	SetView(center LatLng, zoom int)
}

// Map is an in-memory MapWidget. The browser shell mirrors its state.
type Map struct {
	mu     sync.RWMutex
	center LatLng
	zoom   int
	marker *LatLng
}

// Default viewport before the operator picks anything.
var (
	DefaultCenter = LatLng{Lat: 51.505, Lng: -0.09}
	DefaultZoom   = 13
)

func NewMap() *Map {
	return &Map{center: DefaultCenter, zoom: DefaultZoom}
}

// PlaceMarker replaces the current marker. Dragging is a repeated placement.
func (m *Map) PlaceMarker(p LatLng) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marker = &p
}

func (m *Map) Marker() (LatLng, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.marker == nil {
		return LatLng{}, false
	}
	return *m.marker, true
}

func (m *Map) SetView(center LatLng, zoom int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.center = center
	m.zoom = zoom
}

func (m *Map) View() (LatLng, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.center, m.zoom
}

// FixedLocation is a LocationProvider that always answers with the same fix, or Err.
type FixedLocation struct {
	Fix LatLng
	Err error
}

func (f FixedLocation) CurrentPosition(ctx context.Context) (LatLng, error) {
	if err := ctx.Err(); err != nil {
		return LatLng{}, err
	}
	if f.Err != nil {
		return LatLng{}, f.Err
	}
	return f.Fix, nil
}

// ErrNoFix is returned by ReportedLocation before anything was reported.
var ErrNoFix = errors.New("no location reported")

// ReportedLocation is a LocationProvider fed from outside, e.g. by a browser
// that ran the geolocation prompt itself.
type ReportedLocation struct {
	mu  sync.Mutex
	fix *LatLng
	err error
}

// Report stores a fix and clears any earlier failure.
func (r *ReportedLocation) Report(p LatLng) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fix = &p
	r.err = nil
}

// Fail records that no fix can be obtained.
func (r *ReportedLocation) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fix = nil
	r.err = err
}

func (r *ReportedLocation) CurrentPosition(ctx context.Context) (LatLng, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return LatLng{}, r.err
	}
	if r.fix == nil {
		return LatLng{}, ErrNoFix
	}
	return *r.fix, nil
}
