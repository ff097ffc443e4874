// Package report validates a finished session and submits it.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/autopark-gthost/odocheck/internal/apperr"
	"github.com/autopark-gthost/odocheck/internal/backend"
	"github.com/autopark-gthost/odocheck/internal/capture"
	"github.com/autopark-gthost/odocheck/internal/geo"
)

// Messages for failed preconditions, in the order they are checked.
const (
	MsgNoToken        = "❌ Не удалось получить данные Telegram."
	MsgNoLocation     = "❌ Координаты не выбраны."
	MsgBadOdometer    = "❌ Пожалуйста, укажите корректный пробег."
	MsgPhotoCount     = "❌ Необходимо %d фото."
	MsgNoOdometerShot = "❌ Нет фото одометра."
	MsgAccepted       = "✅ ОК"
)

// Draft is everything a session has collected.
type Draft struct {
	InitData  string
	CarID     int64
	Action    string
	ChatID    string
	MessageID string

	Location *geo.LatLng
	// Recognized wins over Typed when both are set.
	Recognized *float64
	Typed      *float64

	OdometerPhoto  *capture.Encoded
	Photos         []capture.Encoded
	RequiredPhotos int
}

// Reading returns the odometer value that will be reported.
func (d Draft) Reading() (float64, bool) {
	if d.Recognized != nil {
		return *d.Recognized, true
	}
	if d.Typed != nil {
		return *d.Typed, true
	}
	return 0, false
}

// Validate checks the preconditions in order and returns the first failure.
func Validate(d Draft) error {
	if d.InitData == "" {
		return apperr.New(apperr.KindMissingToken, MsgNoToken)
	}
	if d.Location == nil {
		return apperr.New(apperr.KindValidation, MsgNoLocation)
	}
	reading, ok := d.Reading()
	if !ok || math.IsNaN(reading) || math.IsInf(reading, 0) || reading < 0 {
		return apperr.New(apperr.KindValidation, MsgBadOdometer)
	}
	if len(d.Photos) != d.RequiredPhotos {
		return apperr.New(apperr.KindValidation, fmt.Sprintf(MsgPhotoCount, d.RequiredPhotos))
	}
	if d.OdometerPhoto == nil || d.OdometerPhoto.Empty() {
		return apperr.New(apperr.KindValidation, MsgNoOdometerShot)
	}
	return nil
}

// Payload assembles the report body. It validates first.
func Payload(d Draft) (backend.ReportRequest, error) {
	if err := Validate(d); err != nil {
		return backend.ReportRequest{}, err
	}
	reading, _ := d.Reading()
	photos := make([]string, 0, len(d.Photos))
	for _, p := range d.Photos {
		photos = append(photos, p.DataURL())
	}
	return backend.ReportRequest{
		CarID:         d.CarID,
		Action:        d.Action,
		Latitude:      d.Location.Lat,
		Longitude:     d.Location.Lng,
		Odometer:      reading,
		Photos:        photos,
		OdometerPhoto: d.OdometerPhoto.DataURL(),
		InitData:      d.InitData,
	}, nil
}

// API is the part of the backend the submitter needs.
type API interface {
	Report(ctx context.Context, req backend.ReportRequest) (backend.ReportResponse, error)
	Callback(ctx context.Context, req backend.CallbackRequest) error
}

// Submitter posts the report and, once accepted, the bot callback.
type Submitter struct {
	api API
}

func NewSubmitter(api API) *Submitter {
	return &Submitter{api: api}
}

// Result is what the operator is told after an accepted report.
type Result struct {
	Message string
	// CallbackErr is set when the report went through but the bot was not notified.
	CallbackErr error
}

// Submit validates d, posts it, and notifies the bot. Nothing is sent when a
// precondition fails. A failed callback does not fail the submission.
func (s *Submitter) Submit(ctx context.Context, d Draft) (Result, error) {
	payload, err := Payload(d)
	if err != nil {
		return Result{}, err
	}

	slog.Info("Submitting report", "car_id", d.CarID, "action", d.Action, "photos", len(payload.Photos), "odometer", payload.Odometer)
	resp, err := s.api.Report(ctx, payload)
	if err != nil {
		slog.Error("Report rejected", "car_id", d.CarID, "err", err)
		return Result{}, err
	}

	res := Result{Message: resp.Message}
	if res.Message == "" {
		res.Message = MsgAccepted
	}

	err = s.api.Callback(ctx, backend.CallbackRequest{
		ChatID:    d.ChatID,
		MessageID: d.MessageID,
		Event:     d.Action,
		CarID:     d.CarID,
		InitData:  d.InitData,
	})
	if err != nil {
		slog.Error("Callback failed", "car_id", d.CarID, "err", err)
		res.CallbackErr = err
	}

	slog.Info("Report submitted", "car_id", d.CarID, "action", d.Action)
	return res, nil
}
