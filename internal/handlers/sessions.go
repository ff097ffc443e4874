package handlers

import (
	"log/slog"
	"net/http"

	"github.com/autopark-gthost/odocheck/internal/apperr"
	"github.com/autopark-gthost/odocheck/internal/backend"
	"github.com/autopark-gthost/odocheck/internal/camera"
	"github.com/autopark-gthost/odocheck/internal/geo"
	"github.com/autopark-gthost/odocheck/internal/host"
	"github.com/autopark-gthost/odocheck/internal/session"
	"github.com/autopark-gthost/odocheck/internal/storage"
	"github.com/google/uuid"
)

// HandleCreate launches a session from the app URL's query and the signed init data.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	launch, err := session.ParseLaunch(r.URL.Query())
	if err != nil {
		h.writeError(w, apperr.Message(err), http.StatusBadRequest)
		return
	}

	var body struct {
		ThemeParams map[string]string `json:"theme_params"`
	}
	if r.ContentLength > 0 && !h.decode(w, r, &body) {
		return
	}

	token := backend.InitData(r.Header.Get("Authorization"))
	src := camera.NewPushSource(h.opts.Camera)
	loc := &geo.ReportedLocation{}
	rec := host.NewRecorder(token, body.ThemeParams)

	sess := &storage.Session{
		ID: uuid.NewString(),
		Controller: session.New(session.Deps{
			Host:    rec,
			Camera:  src,
			Map:     geo.NewMap(),
			Locator: loc,
			Backend: h.backend,
		}, launch, h.opts.Session),
		Camera:    src,
		Location:  loc,
		Host:      rec,
		CreatedAt: h.now(),
	}

	err = sess.Controller.Launch(r.Context())
	if err == nil {
		h.sessionStore.Set(sess)
		slog.Info("Session created", "session_id", sess.ID, "car_id", launch.CarID, "action", launch.Action)
	}
	h.respond(w, sess, err)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	h.respond(w, sess, nil)
}

// HandleDelete abandons the session, e.g. when the operator closes the app.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	h.sessionStore.Delete(sess.ID)
	if !sess.Controller.Snapshot().Closed {
		sess.Controller.Abandon()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleMarker(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	var p geo.LatLng
	if !h.decode(w, r, &p) {
		return
	}
	h.respond(w, sess, sess.Controller.PlaceMarker(p))
}

// HandleLocate takes the fix the browser obtained, or the reason it could not.
func (h *Handler) HandleLocate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	var body struct {
		Lat   *float64 `json:"lat"`
		Lng   *float64 `json:"lng"`
		Error string   `json:"error"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	switch {
	case body.Error != "":
		sess.Location.Fail(apperr.New(apperr.KindPermissionDenied, body.Error))
	case body.Lat != nil && body.Lng != nil:
		sess.Location.Report(geo.LatLng{Lat: *body.Lat, Lng: *body.Lng})
	}
	h.respond(w, sess, sess.Controller.LocateMe(r.Context()))
}

func (h *Handler) HandleOdometer(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	var body struct {
		Value string `json:"value"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	h.respond(w, sess, sess.Controller.SetOdometer(body.Value))
}

func (h *Handler) HandleZoom(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	var body struct {
		Zoom float64 `json:"zoom"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	_, err := sess.Controller.SetZoom(body.Zoom)
	h.respond(w, sess, err)
}

func (h *Handler) HandleTorch(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	var body struct {
		On bool `json:"on"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	h.respond(w, sess, sess.Controller.SetTorch(body.On))
}
