// Package scenario drives a whole session from a YAML file and image files,
// the way an operator would in the field.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/autopark-gthost/odocheck/internal/camera"
	"github.com/autopark-gthost/odocheck/internal/geo"
	"github.com/autopark-gthost/odocheck/internal/session"
	"gopkg.in/yaml.v3"
)

// Scenario describes one run.
type Scenario struct {
	Launch session.Launch `yaml:"launch"`
	// InitData is the signed host token. Empty runs the no-token path.
	InitData string `yaml:"init_data"`
	Theme    map[string]string `yaml:"theme,omitempty"`

	// Location is where the marker goes. With DeviceFix set and Location
	// empty, "locate me" places it.
	Location  *geo.LatLng `yaml:"location,omitempty"`
	DeviceFix *geo.LatLng `yaml:"device_fix,omitempty"`

	Camera   camera.Capabilities `yaml:"camera"`
	Odometer Odometer            `yaml:"odometer"`
	Photos   []Shot              `yaml:"photos"`
}

// Odometer lists the odometer attempts in order; the next one is used each
// time recognition fails.
type Odometer struct {
	Attempts []Shot `yaml:"attempts"`
	// Typed is entered in the review view before submitting the photo.
	Typed string `yaml:"typed,omitempty"`
}

// Shot is one photo and the camera settings it is taken with.
type Shot struct {
	File  string  `yaml:"file"`
	Zoom  float64 `yaml:"zoom,omitempty"`
	Torch bool    `yaml:"torch,omitempty"`
}

// Load reads a scenario. Relative image paths are resolved against its directory.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}
	if sc.Launch.Action == "" {
		sc.Launch.Action = session.ActionStart
	}

	dir := filepath.Dir(path)
	resolve := func(shots []Shot) {
		for i := range shots {
			if shots[i].File != "" && !filepath.IsAbs(shots[i].File) {
				shots[i].File = filepath.Join(dir, shots[i].File)
			}
		}
	}
	resolve(sc.Odometer.Attempts)
	resolve(sc.Photos)

	return &sc, sc.Validate()
}

func (sc *Scenario) Validate() error {
	var errs []error
	if sc.Launch.CarID <= 0 {
		errs = append(errs, errors.New("launch.car_id must be positive"))
	}
	if sc.Launch.Action != session.ActionStart && sc.Launch.Action != session.ActionEnd {
		errs = append(errs, fmt.Errorf("launch.action must be start or end, got %q", sc.Launch.Action))
	}
	if sc.Location == nil && sc.DeviceFix == nil {
		errs = append(errs, errors.New("location or device_fix is required"))
	}
	if len(sc.Odometer.Attempts) == 0 {
		errs = append(errs, errors.New("odometer.attempts needs at least one photo"))
	}
	for i, s := range append(append([]Shot(nil), sc.Odometer.Attempts...), sc.Photos...) {
		if s.File == "" {
			errs = append(errs, fmt.Errorf("shot %d has no file", i+1))
		}
	}
	return errors.Join(errs...)
}
