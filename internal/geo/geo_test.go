package geo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatLngValid(t *testing.T) {
	tests := []struct {
		name     string
		point    LatLng
		expected bool
	}{
		{name: "moscow", point: LatLng{Lat: 55.0, Lng: 37.0}, expected: true},
		{name: "poles and antimeridian", point: LatLng{Lat: -90, Lng: 180}, expected: true},
		{name: "latitude out of range", point: LatLng{Lat: 91, Lng: 0}, expected: false},
		{name: "longitude out of range", point: LatLng{Lat: 0, Lng: -181}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.point.Valid())
		})
	}
}

func TestDistanceMeters(t *testing.T) {
	a := LatLng{Lat: 55.0, Lng: 37.0}
	assert.InDelta(t, 0, a.DistanceMeters(a), 1e-6)

	// One degree of latitude is roughly 111 km.
	b := LatLng{Lat: 56.0, Lng: 37.0}
	assert.InDelta(t, 111195, a.DistanceMeters(b), 100)
}

func TestMapMarkerReplacement(t *testing.T) {
	m := NewMap()
	_, ok := m.Marker()
	assert.False(t, ok)

	m.PlaceMarker(LatLng{Lat: 1, Lng: 2})
	m.PlaceMarker(LatLng{Lat: 3, Lng: 4})

	p, ok := m.Marker()
	assert.True(t, ok)
	assert.Equal(t, LatLng{Lat: 3, Lng: 4}, p)

	center, zoom := m.View()
	assert.Equal(t, DefaultCenter, center)
	assert.Equal(t, DefaultZoom, zoom)
}

func TestFixedLocation(t *testing.T) {
	denied := errors.New("denied")
	_, err := FixedLocation{Err: denied}.CurrentPosition(context.Background())
	assert.ErrorIs(t, err, denied)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FixedLocation{Fix: LatLng{Lat: 1}}.CurrentPosition(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReportedLocation(t *testing.T) {
	var r ReportedLocation
	_, err := r.CurrentPosition(context.Background())
	assert.ErrorIs(t, err, ErrNoFix)

	r.Report(LatLng{Lat: 55, Lng: 37})
	p, err := r.CurrentPosition(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, LatLng{Lat: 55, Lng: 37}, p)

	denied := errors.New("denied")
	r.Fail(denied)
	_, err = r.CurrentPosition(context.Background())
	assert.ErrorIs(t, err, denied)
}
