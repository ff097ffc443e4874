package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/autopark-gthost/odocheck/internal/apperr"
	"github.com/autopark-gthost/odocheck/internal/camera"
	"github.com/autopark-gthost/odocheck/internal/capture"
	"github.com/autopark-gthost/odocheck/internal/geo"
	"github.com/autopark-gthost/odocheck/internal/host"
	"github.com/autopark-gthost/odocheck/internal/session"
	"gopkg.in/yaml.v3"
)

// Step is one operator event and where it left the session.
type Step struct {
	Event string `yaml:"event"`
	View  string `yaml:"view"`
	Error string `yaml:"error,omitempty"`
}

// Summary is what a run writes out.
type Summary struct {
	CarID      int64    `yaml:"car_id"`
	Action     string   `yaml:"action"`
	StartedAt  string   `yaml:"started_at"`
	Duration   string   `yaml:"duration"`
	Submitted  bool     `yaml:"submitted"`
	Forbidden  bool     `yaml:"forbidden"`
	HostClosed bool     `yaml:"host_closed"`
	Odometer   *float64 `yaml:"odometer,omitempty"`
	Photos     int      `yaml:"photos"`
	Attempts   int      `yaml:"odometer_attempts"`
	Message    string   `yaml:"message,omitempty"`
	Error      string   `yaml:"error,omitempty"`
	Steps      []Step   `yaml:"steps"`
}

// Runner plays scenarios against a backend.
type Runner struct {
	Backend session.Backend
	Options session.Options
	// CloseWait is how long to wait past the close delay for the host to close.
	CloseWait time.Duration
}

type run struct {
	ctrl    *session.Controller
	src     *camera.PushSource
	summary *Summary
}

func (r *run) step(event string, err error) error {
	s := Step{Event: event, View: string(r.ctrl.Snapshot().View)}
	if err != nil {
		s.Error = apperr.Message(err)
	}
	r.summary.Steps = append(r.summary.Steps, s)
	slog.Debug("Scenario step", "event", event, "view", s.View, "err", err)
	return err
}

// shoot pushes the shot's frame and applies its camera settings.
func (r *run) shoot(s Shot) error {
	data, err := os.ReadFile(s.File)
	if err != nil {
		return fmt.Errorf("failed to read photo %s: %w", s.File, err)
	}
	img, err := capture.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode photo %s: %w", s.File, err)
	}
	r.src.Push(img)

	if s.Zoom > 0 {
		if _, err := r.ctrl.SetZoom(s.Zoom); err != nil && !errors.Is(err, apperr.ErrUnsupported) {
			return r.step("zoom", err)
		}
	}
	if s.Torch {
		if err := r.ctrl.SetTorch(true); err != nil && !errors.Is(err, apperr.ErrUnsupported) {
			return r.step("torch", err)
		}
	}
	return nil
}

// Run plays sc to the end. Operator-visible failures end up in the summary;
// the returned error is reserved for problems with the scenario itself.
func (rn *Runner) Run(ctx context.Context, sc *Scenario) (*Summary, error) {
	opts := rn.Options
	if opts.RequiredPhotos <= 0 {
		opts.RequiredPhotos = 4
	}
	if len(sc.Photos) < opts.RequiredPhotos {
		return nil, fmt.Errorf("scenario has %d photos, %d required", len(sc.Photos), opts.RequiredPhotos)
	}

	closed := make(chan struct{})
	var once sync.Once
	bridge := &host.Console{
		Token:   sc.InitData,
		Theme:   sc.Theme,
		OnClose: func() { once.Do(func() { close(closed) }) },
	}
	var locator geo.LocationProvider
	if sc.DeviceFix != nil {
		locator = geo.FixedLocation{Fix: *sc.DeviceFix}
	}

	src := camera.NewPushSource(sc.Camera)
	r := &run{
		src: src,
		ctrl: session.New(session.Deps{
			Host:    bridge,
			Camera:  src,
			Map:     geo.NewMap(),
			Locator: locator,
			Backend: rn.Backend,
		}, sc.Launch, opts),
		summary: &Summary{
			CarID:     sc.Launch.CarID,
			Action:    sc.Launch.Action,
			StartedAt: time.Now().Format(time.RFC3339),
		},
	}
	start := time.Now()

	err := rn.play(ctx, r, sc)
	if err != nil && apperr.KindOf(err) == apperr.KindUnknown {
		r.ctrl.Abandon()
		return nil, err
	}

	snap := r.ctrl.Snapshot()
	// A closed session has scheduled (or done) the host close.
	if snap.Closed {
		select {
		case <-closed:
		case <-ctx.Done():
		case <-time.After(opts.CloseDelay + rn.CloseWait):
			slog.Warn("Host did not close in time", "car_id", sc.Launch.CarID)
		}
	}

	select {
	case <-closed:
		r.summary.HostClosed = true
	default:
	}
	r.summary.Duration = time.Since(start).Round(time.Millisecond).String()
	r.summary.Submitted = snap.Closed && !snap.Forbidden && err == nil
	r.summary.Forbidden = snap.Forbidden
	r.summary.Odometer = snap.Odometer
	if r.summary.Odometer == nil {
		r.summary.Odometer = snap.Typed
	}
	r.summary.Photos = snap.Photos
	r.summary.Message = snap.Notice
	if err != nil {
		r.summary.Error = apperr.Message(err)
	}
	return r.summary, nil
}

func (rn *Runner) play(ctx context.Context, r *run, sc *Scenario) error {
	if err := r.step("launch", r.ctrl.Launch(ctx)); err != nil {
		return err
	}

	if sc.Location != nil {
		if err := r.step("marker", r.ctrl.PlaceMarker(*sc.Location)); err != nil {
			return err
		}
	} else if err := r.step("locate", r.ctrl.LocateMe(ctx)); err != nil {
		return err
	}
	if err := r.step("continue", r.ctrl.Continue(ctx)); err != nil {
		return err
	}

	recognized := false
	for _, shot := range sc.Odometer.Attempts {
		r.summary.Attempts++
		if err := r.shoot(shot); err != nil {
			return err
		}
		if err := r.step("capture", r.ctrl.Capture(ctx)); err != nil {
			return err
		}
		if sc.Odometer.Typed != "" {
			if err := r.step("odometer", r.ctrl.SetOdometer(sc.Odometer.Typed)); err != nil {
				return err
			}
		}
		err := r.step("recognize", r.ctrl.SubmitOdometerPhoto(ctx))
		if err == nil {
			recognized = true
			break
		}
		if !errors.Is(err, apperr.ErrRecognitionFailed) {
			return err
		}
	}
	if !recognized {
		return apperr.New(apperr.KindRecognitionFailed, "odometer was not recognized on any attempt")
	}

	for _, shot := range sc.Photos[:rn.required()] {
		if err := r.shoot(shot); err != nil {
			return err
		}
		if err := r.step("capture", r.ctrl.Capture(ctx)); err != nil {
			return err
		}
	}
	return nil
}

func (rn *Runner) required() int {
	if rn.Options.RequiredPhotos <= 0 {
		return 4
	}
	return rn.Options.RequiredPhotos
}

// WriteSummary saves s as YAML. An empty path writes runs/<car>-<timestamp>.yaml.
func WriteSummary(path string, s *Summary) (string, error) {
	if path == "" {
		if err := os.MkdirAll("runs", 0755); err != nil {
			return "", fmt.Errorf("failed to create runs directory: %w", err)
		}
		path = filepath.Join("runs", fmt.Sprintf("%d-%s.yaml", s.CarID, time.Now().Format("2006-01-02_15-04-05")))
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}
	return path, nil
}
