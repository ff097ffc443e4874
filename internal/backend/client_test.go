package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/autopark-gthost/odocheck/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second)
}

func TestInitData(t *testing.T) {
	tests := []struct {
		header   string
		expected string
	}{
		{header: "tma query_id=1&hash=abc", expected: "query_id=1&hash=abc"},
		{header: "  tma  query_id=1  ", expected: "query_id=1"},
		{header: "tma ", expected: ""},
		{header: "tma", expected: ""},
		{header: "", expected: ""},
		{header: "tmaquery_id=1", expected: ""},
		{header: "Bearer abc", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.expected, InitData(tt.header))
		})
	}
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected apperr.Kind
	}{
		{name: "ok", status: http.StatusOK, expected: apperr.KindUnknown},
		{name: "active session", status: http.StatusForbidden, expected: apperr.KindSessionConflict},
		{name: "server error", status: http.StatusInternalServerError, expected: apperr.KindNetwork},
		{name: "unauthorized", status: http.StatusUnauthorized, expected: apperr.KindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/auth", r.URL.Path)
				assert.Equal(t, "42", r.URL.Query().Get("car_id"))
				assert.Equal(t, "end", r.URL.Query().Get("action"))
				assert.Equal(t, "tma signed", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
			})

			err := c.Auth(context.Background(), 42, "end", "signed")
			assert.Equal(t, tt.expected, apperr.KindOf(err))
		})
	}
}

func TestAuthConnectionRefused(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second)
	err := c.Auth(context.Background(), 1, "start", "x")
	assert.ErrorIs(t, err, apperr.ErrNetwork)
	assert.Equal(t, MsgAuthFailed, apperr.Message(err))
}

func TestRecognize(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		expected  float64
		errKind   apperr.Kind
		errDetail string
	}{
		{name: "recognized", status: http.StatusOK, body: `{"status":"ok","odometer":54321}`, expected: 54321},
		{name: "processing", status: http.StatusOK, body: `{"status":"processing"}`, errKind: apperr.KindRecognitionFailed, errDetail: MsgNotRecognized},
		{name: "ok without value", status: http.StatusOK, body: `{"status":"ok"}`, errKind: apperr.KindNetwork, errDetail: MsgRecognizeFailed},
		{name: "server detail", status: http.StatusBadRequest, body: `{"detail":"photo too dark"}`, errKind: apperr.KindNetwork, errDetail: "photo too dark"},
		{name: "not json", status: http.StatusBadGateway, body: `<html>`, errKind: apperr.KindNetwork, errDetail: MsgRecognizeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/odometer/recognize", r.URL.Path)
				var req RecognizeRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "data:image/jpeg;base64,AA==", req.Photo)
				assert.Equal(t, int64(7), req.CarID)
				assert.Equal(t, "start", req.Action)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			got, err := c.Recognize(context.Background(), RecognizeRequest{Photo: "data:image/jpeg;base64,AA==", CarID: 7, Action: "start"}, "tok")
			if tt.errKind != apperr.KindUnknown {
				require.Error(t, err)
				assert.Equal(t, tt.errKind, apperr.KindOf(err))
				assert.Equal(t, tt.errDetail, apperr.Message(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestReport(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   bool
		errDetail string
	}{
		{name: "ok", status: http.StatusOK, body: `{"status":"ok","message":"Отчёт принят"}`},
		{name: "detail", status: http.StatusBadRequest, body: `{"detail":"Машина уже занята"}`, wantErr: true, errDetail: "Машина уже занята"},
		{name: "structured detail", status: http.StatusUnprocessableEntity, body: `{"detail":[{"loc":["body","photos"]}]}`, wantErr: true, errDetail: `[{"loc":["body","photos"]}]`},
		{name: "ok http but bad status", status: http.StatusOK, body: `{"status":"error"}`, wantErr: true, errDetail: MsgSubmitFailed},
		{name: "garbage", status: http.StatusOK, body: `nope`, wantErr: true, errDetail: MsgConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/report", r.URL.Path)
				assert.Equal(t, "tma init", r.Header.Get("Authorization"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				var req ReportRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Len(t, req.Photos, 4)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			resp, err := c.Report(context.Background(), ReportRequest{
				CarID:    1,
				Action:   "start",
				Photos:   []string{"a", "b", "c", "d"},
				InitData: "init",
			})
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperr.ErrNetwork)
				assert.Equal(t, tt.errDetail, apperr.Message(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Отчёт принят", resp.Message)
		})
	}
}

func TestCallback(t *testing.T) {
	var got CallbackRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/webapp/callback", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	err := c.Callback(context.Background(), CallbackRequest{ChatID: "10", MessageID: "20", Event: "end", CarID: 3, InitData: "i"})
	require.NoError(t, err)
	assert.Equal(t, CallbackRequest{ChatID: "10", MessageID: "20", Event: "end", CarID: 3, InitData: "i"}, got)

	failing := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	assert.Error(t, failing.Callback(context.Background(), CallbackRequest{}))
}

func TestDefaultBaseURL(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, NewClient("", 0).BaseURL)
}
