package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKind(t *testing.T) {
	err := Wrap(KindNetwork, "⚠️ Ошибка соединения с сервером", errors.New("dial tcp: refused"))

	assert.ErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrValidation)

	wrapped := fmt.Errorf("failed to submit: %w", err)
	assert.ErrorIs(t, wrapped, ErrNetwork)
	assert.Equal(t, KindNetwork, KindOf(wrapped))
	assert.Equal(t, "⚠️ Ошибка соединения с сервером", Message(wrapped))
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := errors.New("refused")
	err := Wrap(KindPermissionDenied, "denied", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "permission_denied: denied: refused", err.Error())
	assert.Equal(t, "validation: bad", New(KindValidation, "bad").Error())
}

func TestMessageFallback(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.Equal(t, "unsupported: ", Message(&Error{Kind: KindUnsupported}))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
		fatal    bool
	}{
		{KindUnknown, "unknown", false},
		{KindPermissionDenied, "permission_denied", false},
		{KindValidation, "validation", false},
		{KindRecognitionFailed, "recognition_failed", false},
		{KindNetwork, "network", false},
		{KindSessionConflict, "session_conflict", true},
		{KindMissingToken, "missing_token", true},
		{KindIllegalTransition, "illegal_transition", false},
		{KindBusy, "busy", false},
		{KindUnsupported, "unsupported", false},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.String())
			assert.Equal(t, tt.fatal, tt.kind.Fatal())
		})
	}
}
