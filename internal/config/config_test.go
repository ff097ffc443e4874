package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := fromLookup(lookupFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 4, cfg.RequiredPhotos)
	assert.Equal(t, 500*time.Millisecond, cfg.CloseDelay)
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := fromLookup(lookupFrom(map[string]string{
		"ODOCHECK_BACKEND_URL":     "http://localhost:9000",
		"ODOCHECK_REQUIRED_PHOTOS": "6",
		"ODOCHECK_CLOSE_DELAY":     "1s",
		"ODOCHECK_HTTP_TIMEOUT":    "0s",
		"ODOCHECK_JPEG_QUALITY":    "80",
		"ODOCHECK_MAX_DIMENSION":   "1600",
	}))
	require.NoError(t, err)
	assert.Equal(t, Config{
		BackendURL:     "http://localhost:9000",
		RequiredPhotos: 6,
		CloseDelay:     time.Second,
		HTTPTimeout:    0,
		JPEGQuality:    80,
		MaxDimension:   1600,
	}, cfg)
}

func TestInvalidEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "photos not a number", env: map[string]string{"ODOCHECK_REQUIRED_PHOTOS": "four"}},
		{name: "zero photos", env: map[string]string{"ODOCHECK_REQUIRED_PHOTOS": "0"}},
		{name: "bad delay", env: map[string]string{"ODOCHECK_CLOSE_DELAY": "soon"}},
		{name: "quality out of range", env: map[string]string{"ODOCHECK_JPEG_QUALITY": "101"}},
		{name: "negative dimension", env: map[string]string{"ODOCHECK_MAX_DIMENSION": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromLookup(lookupFrom(tt.env))
			assert.Error(t, err)
		})
	}
}
