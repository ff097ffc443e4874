package devapi

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/autopark-gthost/odocheck/internal/apperr"
	"github.com/autopark-gthost/odocheck/internal/backend"
	"github.com/autopark-gthost/odocheck/internal/camera"
	"github.com/autopark-gthost/odocheck/internal/geo"
	"github.com/autopark-gthost/odocheck/internal/host"
	"github.com/autopark-gthost/odocheck/internal/ledger"
	"github.com/autopark-gthost/odocheck/internal/ocr"
	"github.com/autopark-gthost/odocheck/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "query_id=AAF&user=%7B%22id%22%3A1%7D&hash=abc"

func newTestServer(t *testing.T, reading string) (*Server, *backend.Client, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.Open("")
	require.NoError(t, err)
	s := New(ocr.NewService(ocr.Static{Text: reading}, ""), l, 4)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, backend.NewClient(srv.URL, 5*time.Second), l
}

func validReport() backend.ReportRequest {
	photo := "data:image/jpeg;base64,AQID"
	return backend.ReportRequest{
		CarID:         12,
		Action:        "start",
		Latitude:      55.0,
		Longitude:     37.0,
		Odometer:      54321,
		Photos:        []string{photo, photo, photo, photo},
		OdometerPhoto: photo,
		InitData:      token,
	}
}

func TestAuthTracksActiveSessions(t *testing.T) {
	s, client, _ := newTestServer(t, "")
	ctx := context.Background()

	require.NoError(t, client.Auth(ctx, 12, "start", token))
	assert.True(t, s.Active(12))

	err := client.Auth(ctx, 12, "start", token)
	assert.ErrorIs(t, err, apperr.ErrSessionConflict)

	require.NoError(t, client.Auth(ctx, 13, "start", token))
	require.NoError(t, client.Auth(ctx, 12, "end", token))
	assert.False(t, s.Active(12))
	require.NoError(t, client.Auth(ctx, 12, "start", token))
}

func TestAuthRejectsBadRequests(t *testing.T) {
	_, client, _ := newTestServer(t, "")
	ctx := context.Background()

	assert.ErrorIs(t, client.Auth(ctx, 12, "start", ""), apperr.ErrNetwork)
	assert.ErrorIs(t, client.Auth(ctx, 12, "pause", token), apperr.ErrNetwork)
}

func TestRecognize(t *testing.T) {
	tests := []struct {
		name    string
		reading string
		photo   string
		value   float64
		kind    apperr.Kind
	}{
		{name: "recognized", reading: "54321", photo: "data:image/jpeg;base64,AQID", value: 54321},
		{name: "unreadable", reading: "", photo: "data:image/jpeg;base64,AQID", kind: apperr.KindRecognitionFailed},
		{name: "bad photo", reading: "1", photo: "not-a-photo", kind: apperr.KindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client, _ := newTestServer(t, tt.reading)
			v, err := client.Recognize(context.Background(), backend.RecognizeRequest{Photo: tt.photo, CarID: 12, Action: "start"}, token)
			if tt.kind == apperr.KindUnknown {
				require.NoError(t, err)
				assert.Equal(t, tt.value, v)
				return
			}
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestReportRecorded(t *testing.T) {
	_, client, l := newTestServer(t, "")

	resp, err := client.Report(context.Background(), validReport())
	require.NoError(t, err)
	assert.Equal(t, MsgReportAccepted, resp.Message)

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.Entry{
		ReceivedAt:         time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).UnixMilli(),
		CarID:              12,
		Action:             "start",
		Latitude:           55.0,
		Longitude:          37.0,
		Odometer:           54321,
		Photos:             4,
		PhotoBytes:         12,
		OdometerPhotoBytes: 3,
	}, entries[0])
}

func TestReportRejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *backend.ReportRequest)
		detail string
	}{
		{name: "three photos", mutate: func(r *backend.ReportRequest) { r.Photos = r.Photos[:3] }, detail: "expected 4 photos, got 3"},
		{name: "bad latitude", mutate: func(r *backend.ReportRequest) { r.Latitude = 91 }, detail: "invalid coordinates"},
		{name: "negative odometer", mutate: func(r *backend.ReportRequest) { r.Odometer = -1 }, detail: "invalid odometer"},
		{name: "no odometer photo", mutate: func(r *backend.ReportRequest) { r.OdometerPhoto = "" }, detail: "odometer photo missing"},
		{name: "unknown action", mutate: func(r *backend.ReportRequest) { r.Action = "pause" }, detail: `unknown action "pause"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client, l := newTestServer(t, "")
			req := validReport()
			tt.mutate(&req)

			_, err := client.Report(context.Background(), req)
			assert.ErrorIs(t, err, apperr.ErrNetwork)
			assert.Equal(t, tt.detail, apperr.Message(err))
			assert.Empty(t, l.Entries())
		})
	}
}

func TestCallback(t *testing.T) {
	_, client, _ := newTestServer(t, "")
	err := client.Callback(context.Background(), backend.CallbackRequest{ChatID: "1", MessageID: "2", Event: "start", CarID: 12, InitData: token})
	assert.NoError(t, err)
}

func TestHealthcheck(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/report", strings.NewReader("{}")))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// A full session against the local API: the same flow an operator runs in the field.
func TestSessionAgainstDevAPI(t *testing.T) {
	s, client, l := newTestServer(t, "54321")
	ctx := context.Background()

	frames := make([]image.Image, 5)
	for i := range frames {
		frames[i] = image.NewRGBA(image.Rect(0, 0, 64, 48))
	}
	bridge := host.NewRecorder(token, nil)
	var closeAfter time.Duration
	ctrl := session.New(session.Deps{
		Host:    bridge,
		Camera:  camera.NewImageSource(camera.Capabilities{}, frames...),
		Map:     geo.NewMap(),
		Backend: client,
	}, session.Launch{ChatID: "100", MessageID: "200", CarID: 12, Action: session.ActionStart}, session.Options{
		RequiredPhotos: 4,
		CloseDelay:     500 * time.Millisecond,
		Schedule: func(d time.Duration, f func()) {
			closeAfter = d
			f()
		},
	})

	require.NoError(t, ctrl.Launch(ctx))
	require.NoError(t, ctrl.PlaceMarker(geo.LatLng{Lat: 55.0, Lng: 37.0}))
	require.NoError(t, ctrl.Continue(ctx))
	require.NoError(t, ctrl.Capture(ctx))
	require.NoError(t, ctrl.SubmitOdometerPhoto(ctx))
	for i := 0; i < 4; i++ {
		require.NoError(t, ctrl.Capture(ctx))
	}

	assert.True(t, ctrl.Snapshot().Closed)
	assert.Equal(t, MsgReportAccepted, ctrl.Snapshot().Notice)
	assert.Equal(t, 500*time.Millisecond, closeAfter)
	assert.Equal(t, 1, bridge.Closed())
	assert.True(t, s.Active(12))

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 54321.0, entries[0].Odometer)
	assert.Equal(t, int32(4), entries[0].Photos)
	assert.Greater(t, entries[0].PhotoBytes, int64(0))
}
