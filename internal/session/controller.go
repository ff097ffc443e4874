// Package session drives one check-in/check-out report from launch to close.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autopark-gthost/odocheck/internal/apperr"
	"github.com/autopark-gthost/odocheck/internal/backend"
	"github.com/autopark-gthost/odocheck/internal/camera"
	"github.com/autopark-gthost/odocheck/internal/capture"
	"github.com/autopark-gthost/odocheck/internal/geo"
	"github.com/autopark-gthost/odocheck/internal/host"
	"github.com/autopark-gthost/odocheck/internal/report"
)

// Operator-facing messages raised by the state machine itself.
const (
	MsgUnavailable     = "Действие недоступно на этом экране."
	MsgBusy            = "⏳ Подождите, идёт обработка..."
	MsgClosed          = "Сессия завершена."
	MsgNoCar           = "❌ Не указан автомобиль."
	MsgBadCoordinates  = "❌ Некорректные координаты."
	MsgGeoUnsupported  = "Geolocation is not supported by your browser."
	MsgGeoDenied       = "Please enable location services to continue."
	MsgCameraOff       = "❌ Камера не запущена."
	MsgCaptureFailed   = "❌ Не удалось сделать фото."
	MsgPhotosDone      = "Все фото уже сделаны."
	MsgSending         = "📤 Отправка данных..."
	MsgForbidden       = "⛔ Доступ запрещён. Откройте приложение из Telegram."
	MsgOdometerMissing = "❌ Сначала сфотографируйте одометр."
)

// LocateZoom is the map zoom used after centring on the device position.
const LocateZoom = 15

// Backend is the part of the API the session calls.
type Backend interface {
	Auth(ctx context.Context, carID int64, action, initData string) error
	Recognize(ctx context.Context, req backend.RecognizeRequest, initData string) (float64, error)
	report.API
}

// Deps are the capabilities a controller drives. Locator may be nil.
type Deps struct {
	Host    host.Bridge
	Camera  camera.Source
	Map     geo.MapWidget
	Locator geo.LocationProvider
	Backend Backend
}

// Options tune a controller. Zero fields take the defaults.
type Options struct {
	RequiredPhotos int
	CloseDelay     time.Duration
	Capture        capture.Options
	// Schedule runs f after d. Defaults to time.AfterFunc.
	Schedule func(d time.Duration, f func())
}

// Controller is the state machine for one launch. Events are serialized: an
// event that arrives while another is in flight fails with apperr.KindBusy.
type Controller struct {
	launch    Launch
	opts      Options
	host      host.Bridge
	camera    *camera.Adapter
	mapw      geo.MapWidget
	locator   geo.LocationProvider
	api       Backend
	submitter *report.Submitter

	busy atomic.Bool

	mu             sync.RWMutex
	view           View
	launched       bool
	forbidden      bool
	closed         bool
	closeScheduled bool
	lastFix        *geo.LatLng
	pending        *capture.Encoded
	odometerPhoto  *capture.Encoded
	recognized     *float64
	typed          *float64
	photos         []capture.Encoded
	autoSubmitted  bool
	submissions    int
	lastErr        string
	notice         string
}

func New(deps Deps, launch Launch, opts Options) *Controller {
	if opts.RequiredPhotos <= 0 {
		opts.RequiredPhotos = 4
	}
	if opts.Schedule == nil {
		opts.Schedule = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	mapw := deps.Map
	if mapw == nil {
		mapw = geo.NewMap()
	}
	return &Controller{
		launch:    launch,
		opts:      opts,
		host:      deps.Host,
		camera:    camera.NewAdapter(deps.Camera),
		mapw:      mapw,
		locator:   deps.Locator,
		api:       deps.Backend,
		submitter: report.NewSubmitter(deps.Backend),
	}
}

// Launch starts the host lifecycle, checks the token and authorizes the session.
// On success the map view is shown.
func (c *Controller) Launch(ctx context.Context) error {
	done, err := c.begin()
	if err != nil {
		return err
	}
	defer done()

	if c.launched {
		return apperr.Wrap(apperr.KindIllegalTransition, MsgUnavailable, errors.New("session already launched"))
	}
	c.set(func() { c.launched = true })

	c.host.Ready()
	c.host.Expand()

	token := c.host.InitData()
	if token == "" {
		c.set(func() {
			c.forbidden = true
			c.closed = true
		})
		slog.Warn("Launch without init data", "car_id", c.launch.CarID)
		c.scheduleClose()
		return c.fail(apperr.New(apperr.KindMissingToken, MsgForbidden))
	}

	if err := c.api.Auth(ctx, c.launch.CarID, c.launch.Action, token); err != nil {
		c.set(func() { c.closed = true })
		if errors.Is(err, apperr.ErrSessionConflict) {
			c.host.Close()
		} else {
			c.scheduleClose()
		}
		return c.fail(err)
	}

	slog.Info("Session authorized", "car_id", c.launch.CarID, "action", c.launch.Action)
	return c.enter(ctx, ViewMap)
}

// PlaceMarker puts (or drags) the marker to p.
func (c *Controller) PlaceMarker(p geo.LatLng) error {
	done, err := c.accept(ViewMap)
	if err != nil {
		return err
	}
	defer done()

	if !p.Valid() {
		return c.fail(apperr.New(apperr.KindValidation, MsgBadCoordinates))
	}
	c.mapw.PlaceMarker(p)
	return nil
}

// LocateMe places the marker on the device position and centres the map on it.
func (c *Controller) LocateMe(ctx context.Context) error {
	done, err := c.accept(ViewMap)
	if err != nil {
		return err
	}
	defer done()

	if c.locator == nil {
		return c.fail(apperr.New(apperr.KindPermissionDenied, MsgGeoUnsupported))
	}
	fix, err := c.locator.CurrentPosition(ctx)
	if err != nil {
		return c.fail(apperr.Wrap(apperr.KindPermissionDenied, MsgGeoDenied, err))
	}
	if !fix.Valid() {
		return c.fail(apperr.New(apperr.KindValidation, MsgBadCoordinates))
	}

	c.mapw.PlaceMarker(fix)
	c.mapw.SetView(fix, LocateZoom)
	c.set(func() { c.lastFix = &fix })
	return nil
}

// Continue leaves the map for the odometer camera. A marker must be placed.
func (c *Controller) Continue(ctx context.Context) error {
	done, err := c.accept(ViewMap, ViewCamera, ViewReview, ViewSession)
	if err != nil {
		return err
	}
	defer done()

	to, err := Next(c.view, EventContinue)
	if err != nil {
		return c.fail(err)
	}
	marker, ok := c.mapw.Marker()
	if !ok {
		return c.fail(apperr.New(apperr.KindValidation, report.MsgNoLocation))
	}
	if c.lastFix != nil {
		slog.Debug("Marker moved from device fix", "car_id", c.launch.CarID, "meters", c.lastFix.DistanceMeters(marker))
	}
	return c.enter(ctx, to)
}

// Capture takes a photo. On the odometer camera it moves to review; on the
// documentation view it adds one photo and submits once the set is complete.
func (c *Controller) Capture(ctx context.Context) error {
	done, err := c.accept(ViewMap, ViewCamera, ViewReview, ViewSession)
	if err != nil {
		return err
	}
	defer done()

	to, err := Next(c.view, EventCapture)
	if err != nil {
		return c.fail(err)
	}

	if c.view == ViewSession && (c.autoSubmitted || len(c.photos) >= c.opts.RequiredPhotos) {
		return c.fail(apperr.Wrap(apperr.KindIllegalTransition, MsgPhotosDone, errors.New("photo set is complete")))
	}

	shot, err := c.grab()
	if err != nil {
		return c.fail(err)
	}
	c.host.Haptic(host.HapticLight)

	if c.view == ViewCamera {
		c.set(func() { c.pending = &shot })
		slog.Debug("Odometer photo taken", "car_id", c.launch.CarID, "width", shot.Width, "height", shot.Height)
		return c.enter(ctx, to)
	}

	var count int
	c.set(func() {
		c.photos = append(c.photos, shot)
		count = len(c.photos)
	})
	slog.Debug("Documentation photo taken", "car_id", c.launch.CarID, "progress", c.progress())

	if count < c.opts.RequiredPhotos {
		// Next shot gets a fresh stream.
		return c.startCamera(ctx, ViewSession)
	}

	c.camera.Stop()
	c.set(func() {
		c.autoSubmitted = true
		c.notice = MsgSending
	})
	return c.submit(ctx)
}

// Retake discards the pending odometer photo and restarts the camera.
func (c *Controller) Retake(ctx context.Context) error {
	done, err := c.accept(ViewMap, ViewCamera, ViewReview, ViewSession)
	if err != nil {
		return err
	}
	defer done()

	to, err := Next(c.view, EventRetake)
	if err != nil {
		return c.fail(err)
	}
	c.set(func() {
		c.pending = nil
		c.typed = nil
	})
	return c.enter(ctx, to)
}

// SetOdometer records a typed reading. An empty string clears it.
func (c *Controller) SetOdometer(text string) error {
	done, err := c.accept(ViewReview)
	if err != nil {
		return err
	}
	defer done()

	text = strings.TrimSpace(text)
	if text == "" {
		c.set(func() { c.typed = nil })
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		c.set(func() { c.typed = nil })
		return c.fail(apperr.New(apperr.KindValidation, report.MsgBadOdometer))
	}
	c.set(func() { c.typed = &v })
	return nil
}

// SubmitOdometerPhoto sends the pending photo for recognition. A recognized
// reading advances to the documentation photos; an unreadable photo is
// discarded and the camera reopens; any other failure keeps the review open.
func (c *Controller) SubmitOdometerPhoto(ctx context.Context) error {
	done, err := c.accept(ViewMap, ViewCamera, ViewReview, ViewSession)
	if err != nil {
		return err
	}
	defer done()

	to, err := Next(c.view, EventSubmitPhoto)
	if err != nil {
		return c.fail(err)
	}
	if c.pending == nil {
		return c.fail(apperr.New(apperr.KindValidation, MsgOdometerMissing))
	}

	reading, err := c.api.Recognize(ctx, backend.RecognizeRequest{
		Photo:  c.pending.DataURL(),
		CarID:  c.launch.CarID,
		Action: c.launch.Action,
	}, c.host.InitData())

	switch {
	case err == nil:
		c.set(func() {
			c.recognized = &reading
			c.odometerPhoto = c.pending
			c.pending = nil
		})
		slog.Info("Odometer recognized", "car_id", c.launch.CarID, "odometer", reading)
		return c.enter(ctx, to)
	case errors.Is(err, apperr.ErrRecognitionFailed):
		back, _ := Next(c.view, EventRecognitionFailed)
		c.set(func() { c.pending = nil })
		slog.Info("Odometer not recognized", "car_id", c.launch.CarID)
		if enterErr := c.enter(ctx, back); enterErr != nil {
			return enterErr
		}
		return c.fail(err)
	default:
		return c.fail(err)
	}
}

// Submit re-sends a complete report after a failed attempt.
func (c *Controller) Submit(ctx context.Context) error {
	done, err := c.accept(ViewMap, ViewCamera, ViewReview, ViewSession)
	if err != nil {
		return err
	}
	defer done()

	if _, err := Next(c.view, EventSubmit); err != nil {
		return c.fail(err)
	}
	return c.submit(ctx)
}

// StartCamera reopens the camera of the current view, e.g. after the operator
// granted a permission that was first denied.
func (c *Controller) StartCamera(ctx context.Context) error {
	done, err := c.accept(ViewCamera, ViewSession)
	if err != nil {
		return err
	}
	defer done()

	if c.view == ViewSession && c.autoSubmitted {
		return c.fail(apperr.Wrap(apperr.KindIllegalTransition, MsgPhotosDone, errors.New("photo set is complete")))
	}
	return c.startCamera(ctx, c.view)
}

// SetZoom applies a zoom factor to the running camera and returns the applied value.
func (c *Controller) SetZoom(factor float64) (float64, error) {
	done, err := c.accept(ViewCamera, ViewSession)
	if err != nil {
		return 0, err
	}
	defer done()

	v, err := c.camera.SetZoom(factor)
	if err != nil {
		return v, c.fail(cameraErr(err))
	}
	return v, nil
}

func (c *Controller) SetTorch(on bool) error {
	done, err := c.accept(ViewCamera, ViewSession)
	if err != nil {
		return err
	}
	defer done()

	if err := c.camera.SetTorch(on); err != nil {
		return c.fail(cameraErr(err))
	}
	return nil
}

// Abandon stops the camera and closes the session without submitting.
func (c *Controller) Abandon() {
	c.set(func() { c.closed = true })
	c.camera.Stop()
	slog.Info("Session abandoned", "car_id", c.launch.CarID)
}

func (c *Controller) submit(ctx context.Context) error {
	res, err := c.submitter.Submit(ctx, c.draft())
	c.set(func() { c.submissions++ })
	if err != nil {
		c.set(func() { c.notice = "" })
		return c.fail(err)
	}

	c.camera.Stop()
	c.set(func() {
		c.closed = true
		c.notice = res.Message
		c.lastErr = ""
	})
	c.host.Haptic(host.HapticSuccess)
	c.scheduleClose()
	return nil
}

func (c *Controller) draft() report.Draft {
	d := report.Draft{
		InitData:       c.host.InitData(),
		CarID:          c.launch.CarID,
		Action:         c.launch.Action,
		ChatID:         c.launch.ChatID,
		MessageID:      c.launch.MessageID,
		Recognized:     c.recognized,
		Typed:          c.typed,
		OdometerPhoto:  c.odometerPhoto,
		Photos:         c.photos,
		RequiredPhotos: c.opts.RequiredPhotos,
	}
	if p, ok := c.mapw.Marker(); ok {
		d.Location = &p
	}
	return d
}

// grab encodes the live frame, cropped by the camera's zoom.
func (c *Controller) grab() (capture.Encoded, error) {
	frame, zoom, err := c.camera.Frame()
	if err != nil {
		if errors.Is(err, camera.ErrNotActive) {
			return capture.Encoded{}, apperr.Wrap(apperr.KindValidation, MsgCameraOff, err)
		}
		return capture.Encoded{}, apperr.Wrap(apperr.KindValidation, MsgCaptureFailed, err)
	}
	shot, err := capture.Frame(frame, zoom, c.opts.Capture)
	if err != nil {
		return capture.Encoded{}, apperr.Wrap(apperr.KindValidation, MsgCaptureFailed, err)
	}
	return shot, nil
}

// enter switches to v and starts or stops the camera to match it.
func (c *Controller) enter(ctx context.Context, v View) error {
	from := c.view
	c.set(func() { c.view = v })
	slog.Debug("View changed", "car_id", c.launch.CarID, "from", from, "to", v)

	if !v.HasCamera() {
		c.camera.Stop()
		return nil
	}
	return c.startCamera(ctx, v)
}

// startCamera opens the stream for v. Abandon may close the session while an
// event is waiting on the backend or the device, so closed is checked on both
// sides of the open.
func (c *Controller) startCamera(ctx context.Context, v View) error {
	if c.isClosed() {
		return apperr.New(apperr.KindIllegalTransition, MsgClosed)
	}
	if err := c.camera.Start(ctx, string(v)); err != nil {
		return c.fail(err)
	}
	if c.isClosed() {
		c.camera.Stop()
		return apperr.New(apperr.KindIllegalTransition, MsgClosed)
	}
	return nil
}

func (c *Controller) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Controller) scheduleClose() {
	c.mu.Lock()
	if c.closeScheduled {
		c.mu.Unlock()
		return
	}
	c.closeScheduled = true
	c.mu.Unlock()
	c.opts.Schedule(c.opts.CloseDelay, c.host.Close)
}

// begin claims the event slot.
func (c *Controller) begin() (func(), error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, apperr.New(apperr.KindBusy, MsgBusy)
	}
	return func() { c.busy.Store(false) }, nil
}

// accept claims the event slot for a launched, open session on one of views.
func (c *Controller) accept(views ...View) (func(), error) {
	done, err := c.begin()
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	launched, closed, current := c.launched, c.closed, c.view
	c.mu.RUnlock()

	switch {
	case !launched:
		done()
		return nil, apperr.Wrap(apperr.KindIllegalTransition, MsgUnavailable, errors.New("session not launched"))
	case closed:
		done()
		return nil, apperr.New(apperr.KindIllegalTransition, MsgClosed)
	}
	for _, v := range views {
		if current == v {
			c.set(func() { c.lastErr = "" })
			return done, nil
		}
	}
	done()
	return nil, c.fail(apperr.Wrap(apperr.KindIllegalTransition, MsgUnavailable, fmt.Errorf("not available on %q", current)))
}

// fail records err for display and returns it.
func (c *Controller) fail(err error) error {
	msg := apperr.Message(err)
	var view View
	c.set(func() {
		c.lastErr = msg
		view = c.view
	})
	c.host.Haptic(host.HapticError)
	slog.Warn("Session error", "car_id", c.launch.CarID, "view", view, "kind", apperr.KindOf(err), "err", err)
	return err
}

func (c *Controller) set(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f()
}

func (c *Controller) progress() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%d из %d фото", len(c.photos), c.opts.RequiredPhotos)
}

func cameraErr(err error) error {
	if errors.Is(err, camera.ErrNotActive) {
		return apperr.Wrap(apperr.KindValidation, MsgCameraOff, err)
	}
	return err
}
