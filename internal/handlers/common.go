// Package handlers exposes session controllers to the browser shell.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/autopark-gthost/odocheck/internal/apperr"
	"github.com/autopark-gthost/odocheck/internal/camera"
	"github.com/autopark-gthost/odocheck/internal/session"
	"github.com/autopark-gthost/odocheck/internal/storage"
	"github.com/gorilla/mux"
)

// Options carry what new sessions are created with.
type Options struct {
	Session session.Options
	// Camera is what the browser's camera advertises; frames are pushed per capture.
	Camera camera.Capabilities
	// StaticDir holds the browser shell.
	StaticDir string
}

type Handler struct {
	sessionStore *storage.SessionStore
	backend      session.Backend
	opts         Options
	now          func() time.Time
}

func New(store *storage.SessionStore, backend session.Backend, opts Options) *Handler {
	return &Handler{
		sessionStore: store,
		backend:      backend,
		opts:         opts,
		now:          time.Now,
	}
}

// Router wires every route.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/sessions", h.HandleCreate).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}", h.HandleGet).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}", h.HandleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/api/sessions/{id}/marker", h.HandleMarker).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/locate", h.HandleLocate).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/continue", h.event(func(r *http.Request, c *session.Controller) error { return c.Continue(r.Context()) })).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/capture", h.HandleCapture).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/retake", h.event(func(r *http.Request, c *session.Controller) error { return c.Retake(r.Context()) })).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/odometer", h.HandleOdometer).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/recognize", h.event(func(r *http.Request, c *session.Controller) error { return c.SubmitOdometerPhoto(r.Context()) })).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/submit", h.event(func(r *http.Request, c *session.Controller) error { return c.Submit(r.Context()) })).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/camera", h.event(func(r *http.Request, c *session.Controller) error { return c.StartCamera(r.Context()) })).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/zoom", h.HandleZoom).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/torch", h.HandleTorch).Methods(http.MethodPost)

	r.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	r.PathPrefix("/").HandlerFunc(h.HandleStatic)
	return r
}

// Response is what every session route returns.
type Response struct {
	ID         string           `json:"id"`
	HostClosed bool             `json:"host_closed"`
	Session    session.Snapshot `json:"session"`
	Error      string           `json:"error,omitempty"`
	Kind       string           `json:"kind,omitempty"`
}

func (h *Handler) respond(w http.ResponseWriter, sess *storage.Session, err error) {
	resp := Response{
		ID:         sess.ID,
		HostClosed: sess.Host.Closed() > 0,
		Session:    sess.Controller.Snapshot(),
	}
	if err != nil {
		resp.Error = apperr.Message(err)
		resp.Kind = apperr.KindOf(err).String()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(StatusFor(err))
		if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
			slog.Error("Unable to encode JSON response", "err", encErr)
		}
		return
	}
	h.writeJSON(w, resp)
}

// StatusFor maps an error kind to the HTTP status the shell receives.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindRecognitionFailed:
		return http.StatusUnprocessableEntity
	case apperr.KindPermissionDenied, apperr.KindMissingToken:
		return http.StatusForbidden
	case apperr.KindSessionConflict, apperr.KindIllegalTransition, apperr.KindBusy:
		return http.StatusConflict
	case apperr.KindUnsupported:
		return http.StatusBadRequest
	case apperr.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, r *http.Request) (*storage.Session, bool) {
	sess, exists := h.sessionStore.Get(mux.Vars(r)["id"])
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// event adapts a body-less controller event to a route.
func (h *Handler) event(fn func(r *http.Request, c *session.Controller) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := h.getSessionOrError(w, r)
		if !ok {
			return
		}
		h.respond(w, sess, fn(r, sess.Controller))
	}
}

var errNoFrame = errors.New("request has no frame")
