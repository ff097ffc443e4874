// Package backend is the HTTP client for the autopark API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/autopark-gthost/odocheck/internal/apperr"
)

const DefaultBaseURL = "https://autopark-gthost.amvera.io"

// User-facing messages for backend failures.
const (
	MsgConnection      = "⚠️ Ошибка соединения с сервером"
	MsgSubmitFailed    = "❌ Ошибка при отправке"
	MsgSessionActive   = "❌ У вас уже есть активная сессия."
	MsgAuthFailed      = "❌ Ошибка авторизации."
	MsgNotRecognized   = "❌ Не удалось распознать пробег. Сделайте фото ещё раз."
	MsgRecognizeFailed = "❌ Ошибка распознавания пробега"
)

// Status values the API puts in the "status" field.
const (
	StatusOK         = "ok"
	StatusProcessing = "processing"
)

// RecognizeRequest is the body of POST /api/odometer/recognize.
type RecognizeRequest struct {
	Photo  string `json:"photo"`
	CarID  int64  `json:"car_id"`
	Action string `json:"action"`
}

// RecognizeResponse is {status:"ok", odometer} or {status:"processing"}.
type RecognizeResponse struct {
	Status   string   `json:"status"`
	Odometer *float64 `json:"odometer,omitempty"`
	Detail   Detail   `json:"detail,omitempty"`
}

// ReportRequest is the body of POST /api/report.
type ReportRequest struct {
	CarID         int64    `json:"car_id"`
	Action        string   `json:"action"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	Odometer      float64  `json:"odometer"`
	Photos        []string `json:"photos"`
	OdometerPhoto string   `json:"odometer_photo"`
	InitData      string   `json:"init_data"`
}

type ReportResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Detail  Detail `json:"detail,omitempty"`
}

// CallbackRequest is the body of POST /api/webapp/callback.
type CallbackRequest struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	Event     string `json:"event"`
	CarID     int64  `json:"car_id"`
	InitData  string `json:"init_data"`
}

// Detail is the server's error text. Validation errors arrive as structured JSON
// instead of a string; those are kept verbatim.
type Detail string

func (d *Detail) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = Detail(s)
		return nil
	}
	if string(data) == "null" {
		*d = ""
		return nil
	}
	*d = Detail(data)
	return nil
}

// InitData returns the token from an "Authorization: tma <initData>" header value.
// A bare "tma" yields "" since net/http trims the trailing space of an empty token.
func InitData(header string) string {
	token, ok := strings.CutPrefix(strings.TrimSpace(header), "tma")
	if !ok {
		return ""
	}
	if token != "" && token[0] != ' ' && token[0] != '\t' {
		return ""
	}
	return strings.TrimSpace(token)
}

// Client talks to the autopark API. Every request carries "Authorization: tma <initData>".
type Client struct {
	BaseURL    string
	httpClient *http.Client
}

// NewClient creates a client. A zero timeout leaves requests bounded only by their context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Auth checks that the operator may open a session for the car.
func (c *Client) Auth(ctx context.Context, carID int64, action, initData string) error {
	q := url.Values{}
	q.Set("car_id", strconv.FormatInt(carID, 10))
	q.Set("action", action)

	resp, err := c.post(ctx, "/api/auth?"+q.Encode(), initData, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindNetwork, MsgAuthFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return apperr.New(apperr.KindSessionConflict, MsgSessionActive)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(resp.Body)
		return apperr.Wrap(apperr.KindNetwork, MsgAuthFailed, fmt.Errorf("auth returned status %d: %s", resp.StatusCode, string(body)))
	}
	return nil
}

// Recognize sends the odometer photo for reading. A "processing" answer is a
// KindRecognitionFailed error.
func (c *Client) Recognize(ctx context.Context, req RecognizeRequest, initData string) (float64, error) {
	resp, err := c.post(ctx, "/api/odometer/recognize", initData, req)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindNetwork, MsgConnection, err)
	}
	defer resp.Body.Close()

	var out RecognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, apperr.Wrap(apperr.KindNetwork, MsgRecognizeFailed, fmt.Errorf("failed to decode recognize response (status %d): %w", resp.StatusCode, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, apperr.Wrap(apperr.KindNetwork, orDefault(string(out.Detail), MsgRecognizeFailed), fmt.Errorf("recognize returned status %d", resp.StatusCode))
	}

	switch out.Status {
	case StatusOK:
		if out.Odometer == nil {
			return 0, apperr.Wrap(apperr.KindNetwork, MsgRecognizeFailed, fmt.Errorf("recognize response has no odometer"))
		}
		return *out.Odometer, nil
	case StatusProcessing:
		return 0, apperr.New(apperr.KindRecognitionFailed, MsgNotRecognized)
	default:
		return 0, apperr.Wrap(apperr.KindNetwork, orDefault(string(out.Detail), MsgRecognizeFailed), fmt.Errorf("unexpected recognize status %q", out.Status))
	}
}

// Report posts the composed report. Only {status:"ok"} on a 2xx counts as success;
// otherwise the server's detail (or a generic message) becomes the error message.
func (c *Client) Report(ctx context.Context, req ReportRequest) (ReportResponse, error) {
	resp, err := c.post(ctx, "/api/report", req.InitData, req)
	if err != nil {
		return ReportResponse{}, apperr.Wrap(apperr.KindNetwork, MsgConnection, err)
	}
	defer resp.Body.Close()

	var out ReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ReportResponse{}, apperr.Wrap(apperr.KindNetwork, MsgConnection, fmt.Errorf("failed to decode report response (status %d): %w", resp.StatusCode, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || out.Status != StatusOK {
		return out, apperr.Wrap(apperr.KindNetwork, orDefault(string(out.Detail), MsgSubmitFailed), fmt.Errorf("report returned status %d, %q", resp.StatusCode, out.Status))
	}
	return out, nil
}

// Callback notifies the bot that the report went through.
func (c *Client) Callback(ctx context.Context, req CallbackRequest) error {
	resp, err := c.post(ctx, "/api/webapp/callback", req.InitData, req)
	if err != nil {
		return fmt.Errorf("failed to send callback: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback returned status %d: %s", resp.StatusCode, string(body))
	}
	slog.Debug("Callback response", "status", resp.StatusCode, "body", string(body))
	return nil
}

func (c *Client) post(ctx context.Context, path, initData string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "tma "+initData)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
