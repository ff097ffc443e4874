// Package devapi is a local stand-in for the vehicle backend: auth, odometer
// recognition, report intake and the chat callback.
package devapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/autopark-gthost/odocheck/internal/backend"
	"github.com/autopark-gthost/odocheck/internal/capture"
	"github.com/autopark-gthost/odocheck/internal/geo"
	"github.com/autopark-gthost/odocheck/internal/ledger"
	"github.com/gorilla/mux"
)

// Messages sent back in {detail}.
const (
	MsgUnauthorized   = "Missing Telegram init data"
	MsgAlreadyStarted = "У автомобиля уже есть активная сессия"
	MsgBadRequest     = "Некорректный запрос"
	MsgBadPhoto       = "Некорректное фото"
	MsgReportAccepted = "✅ Отчёт принят"
)

// Recognizer reads an odometer photo.
type Recognizer interface {
	ReadOdometer(ctx context.Context, image []byte, mime string) (float64, bool, error)
}

// Server implements the four backend endpoints.
type Server struct {
	recognizer     Recognizer
	ledger         *ledger.Ledger
	requiredPhotos int
	now            func() time.Time

	mu     sync.Mutex
	active map[int64]bool
}

func New(recognizer Recognizer, l *ledger.Ledger, requiredPhotos int) *Server {
	return &Server{
		recognizer:     recognizer,
		ledger:         l,
		requiredPhotos: requiredPhotos,
		now:            time.Now,
		active:         make(map[int64]bool),
	}
}

// Router returns the endpoint routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/auth", s.HandleAuth).Methods(http.MethodPost)
	r.HandleFunc("/api/odometer/recognize", s.HandleRecognize).Methods(http.MethodPost)
	r.HandleFunc("/api/report", s.HandleReport).Methods(http.MethodPost)
	r.HandleFunc("/api/webapp/callback", s.HandleCallback).Methods(http.MethodPost)
	r.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	return r
}

// Active reports whether car has a started session.
func (s *Server) Active(car int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[car]
}

func (s *Server) HandleAuth(w http.ResponseWriter, r *http.Request) {
	if initData(r) == "" {
		writeDetail(w, MsgUnauthorized, http.StatusUnauthorized)
		return
	}
	car, err := strconv.ParseInt(r.URL.Query().Get("car_id"), 10, 64)
	if err != nil {
		writeDetail(w, MsgBadRequest, http.StatusBadRequest)
		return
	}
	action := r.URL.Query().Get("action")

	s.mu.Lock()
	switch action {
	case "start":
		if s.active[car] {
			s.mu.Unlock()
			slog.Info("Auth rejected, session active", "car_id", car)
			writeDetail(w, MsgAlreadyStarted, http.StatusForbidden)
			return
		}
		s.active[car] = true
	case "end":
		delete(s.active, car)
	default:
		s.mu.Unlock()
		writeDetail(w, MsgBadRequest, http.StatusBadRequest)
		return
	}
	s.mu.Unlock()

	slog.Info("Auth accepted", "car_id", car, "action", action)
	writeJSON(w, map[string]string{"status": backend.StatusOK})
}

func (s *Server) HandleRecognize(w http.ResponseWriter, r *http.Request) {
	if initData(r) == "" {
		writeDetail(w, MsgUnauthorized, http.StatusUnauthorized)
		return
	}
	var req backend.RecognizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, MsgBadRequest, http.StatusBadRequest)
		return
	}
	mime, data, err := capture.ParseDataURL(req.Photo)
	if err != nil || len(data) == 0 {
		writeDetail(w, MsgBadPhoto, http.StatusUnprocessableEntity)
		return
	}

	reading, ok, err := s.recognizer.ReadOdometer(r.Context(), data, mime)
	if err != nil {
		slog.Error("Recognition failed", "car_id", req.CarID, "err", err)
		writeDetail(w, backend.MsgRecognizeFailed, http.StatusBadGateway)
		return
	}
	if !ok {
		writeJSON(w, backend.RecognizeResponse{Status: backend.StatusProcessing})
		return
	}
	writeJSON(w, backend.RecognizeResponse{Status: backend.StatusOK, Odometer: &reading})
}

func (s *Server) HandleReport(w http.ResponseWriter, r *http.Request) {
	var req backend.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, MsgBadRequest, http.StatusBadRequest)
		return
	}
	if req.InitData == "" {
		writeDetail(w, MsgUnauthorized, http.StatusUnauthorized)
		return
	}

	entry, err := s.entry(req)
	if err != nil {
		slog.Info("Report rejected", "car_id", req.CarID, "reason", err)
		writeDetail(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err := s.ledger.Append(entry); err != nil {
		slog.Error("Failed to record report", "car_id", req.CarID, "err", err)
		writeDetail(w, backend.MsgSubmitFailed, http.StatusInternalServerError)
		return
	}

	slog.Info("Report accepted", "car_id", entry.CarID, "action", entry.Action, "odometer", entry.Odometer, "photos", entry.Photos)
	writeJSON(w, backend.ReportResponse{Status: backend.StatusOK, Message: MsgReportAccepted})
}

func (s *Server) HandleCallback(w http.ResponseWriter, r *http.Request) {
	var req backend.CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, MsgBadRequest, http.StatusBadRequest)
		return
	}
	slog.Info("Callback received", "chat_id", req.ChatID, "message_id", req.MessageID, "event", req.Event, "car_id", req.CarID)
	writeJSON(w, map[string]string{"status": backend.StatusOK})
}

// entry validates req and turns it into a ledger row.
func (s *Server) entry(req backend.ReportRequest) (ledger.Entry, error) {
	if req.CarID <= 0 {
		return ledger.Entry{}, fmt.Errorf("car_id must be positive")
	}
	if req.Action != "start" && req.Action != "end" {
		return ledger.Entry{}, fmt.Errorf("unknown action %q", req.Action)
	}
	if !(geo.LatLng{Lat: req.Latitude, Lng: req.Longitude}).Valid() {
		return ledger.Entry{}, fmt.Errorf("invalid coordinates")
	}
	if math.IsNaN(req.Odometer) || req.Odometer < 0 {
		return ledger.Entry{}, fmt.Errorf("invalid odometer")
	}
	if len(req.Photos) != s.requiredPhotos {
		return ledger.Entry{}, fmt.Errorf("expected %d photos, got %d", s.requiredPhotos, len(req.Photos))
	}

	e := ledger.Entry{
		ReceivedAt: s.now().UnixMilli(),
		CarID:      req.CarID,
		Action:     req.Action,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Odometer:   req.Odometer,
		Photos:     int32(len(req.Photos)),
	}
	for i, p := range req.Photos {
		_, data, err := capture.ParseDataURL(p)
		if err != nil {
			return ledger.Entry{}, fmt.Errorf("photo %d: %w", i+1, err)
		}
		e.PhotoBytes += int64(len(data))
	}
	_, data, err := capture.ParseDataURL(req.OdometerPhoto)
	if err != nil || len(data) == 0 {
		return ledger.Entry{}, fmt.Errorf("odometer photo missing")
	}
	e.OdometerPhotoBytes = int64(len(data))
	return e, nil
}

func initData(r *http.Request) string {
	return backend.InitData(r.Header.Get("Authorization"))
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeDetail(w http.ResponseWriter, detail string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"detail": detail}); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}
