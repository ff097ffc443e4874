package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the session recovers from it.
type Kind int

const (
	KindUnknown Kind = iota
	// KindPermissionDenied covers camera and geolocation refusals. Shown inline.
	KindPermissionDenied
	// KindValidation covers missing coordinates, bad readings and incomplete photo sets.
	KindValidation
	// KindRecognitionFailed means the odometer could not be read. The flow goes back to capture.
	KindRecognitionFailed
	// KindNetwork covers connection failures and non-ok HTTP or application statuses.
	KindNetwork
	// KindSessionConflict is the 403 from auth. Fatal.
	KindSessionConflict
	// KindMissingToken means the host gave no signed init data. Fatal.
	KindMissingToken
	KindIllegalTransition
	KindBusy
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindValidation:
		return "validation"
	case KindRecognitionFailed:
		return "recognition_failed"
	case KindNetwork:
		return "network"
	case KindSessionConflict:
		return "session_conflict"
	case KindMissingToken:
		return "missing_token"
	case KindIllegalTransition:
		return "illegal_transition"
	case KindBusy:
		return "busy"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Fatal reports whether the kind ends the session.
func (k Kind) Fatal() bool {
	return k == KindSessionConflict || k == KindMissingToken
}

// Error is a user-facing failure. Message is what the operator sees.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrPermissionDenied  = &Error{Kind: KindPermissionDenied}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrRecognitionFailed = &Error{Kind: KindRecognitionFailed}
	ErrNetwork           = &Error{Kind: KindNetwork}
	ErrSessionConflict   = &Error{Kind: KindSessionConflict}
	ErrMissingToken      = &Error{Kind: KindMissingToken}
	ErrIllegalTransition = &Error{Kind: KindIllegalTransition}
	ErrBusy              = &Error{Kind: KindBusy}
	ErrUnsupported       = &Error{Kind: KindUnsupported}
)

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the user-facing text of err, falling back to err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
