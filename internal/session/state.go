package session

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/autopark-gthost/odocheck/internal/apperr"
)

// View is the screen the operator is on.
type View string

const (
	ViewNone    View = ""
	ViewMap     View = "map"
	ViewCamera  View = "camera"
	ViewReview  View = "review"
	ViewSession View = "session"
)

// HasCamera reports whether the view needs a live camera.
func (v View) HasCamera() bool {
	return v == ViewCamera || v == ViewSession
}

// Event is an operator action that may move the session to another view.
type Event string

const (
	EventContinue          Event = "continue"
	EventCapture           Event = "capture"
	EventSubmitPhoto       Event = "submit-photo"
	EventRecognitionFailed Event = "recognition-failed"
	EventRetake            Event = "retake"
	EventSubmit            Event = "submit"
)

// transitions lists every legal move. Anything missing is rejected.
var transitions = map[View]map[Event]View{
	ViewMap: {
		EventContinue: ViewCamera,
	},
	ViewCamera: {
		EventCapture: ViewReview,
	},
	ViewReview: {
		EventSubmitPhoto:       ViewSession,
		EventRecognitionFailed: ViewCamera,
		EventRetake:            ViewCamera,
	},
	ViewSession: {
		EventCapture: ViewSession,
		EventSubmit:  ViewSession,
	},
}

// Next returns the view that ev leads to from v.
func Next(v View, ev Event) (View, error) {
	to, ok := transitions[v][ev]
	if !ok {
		return v, apperr.Wrap(apperr.KindIllegalTransition, MsgUnavailable, fmt.Errorf("%s is not allowed on %q", ev, v))
	}
	return to, nil
}

// Actions supported by the backend.
const (
	ActionStart = "start"
	ActionEnd   = "end"
)

// Launch is what the host passes in the app URL.
type Launch struct {
	ChatID    string `json:"chat_id" yaml:"chat_id"`
	MessageID string `json:"msg_id" yaml:"msg_id"`
	CarID     int64  `json:"car_id" yaml:"car_id"`
	Action    string `json:"action" yaml:"action"`
}

// ParseLaunch reads chat_id, msg_id, car_id and action (default "start").
func ParseLaunch(q url.Values) (Launch, error) {
	l := Launch{
		ChatID:    q.Get("chat_id"),
		MessageID: q.Get("msg_id"),
		Action:    strings.TrimSpace(q.Get("action")),
	}
	if l.Action == "" {
		l.Action = ActionStart
	}
	if l.Action != ActionStart && l.Action != ActionEnd {
		return Launch{}, apperr.New(apperr.KindValidation, fmt.Sprintf("❌ Неизвестное действие: %s", l.Action))
	}

	raw := strings.TrimSpace(q.Get("car_id"))
	if raw == "" {
		return Launch{}, apperr.New(apperr.KindValidation, MsgNoCar)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Launch{}, apperr.Wrap(apperr.KindValidation, MsgNoCar, err)
	}
	l.CarID = id
	return l, nil
}
