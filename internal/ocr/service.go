// Package ocr reads odometer values from photos with a vision model.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/autopark-gthost/odocheck/internal/gemini"
	"github.com/autopark-gthost/odocheck/internal/ollama"
	"github.com/autopark-gthost/odocheck/internal/openai"
	"github.com/autopark-gthost/odocheck/internal/providers"
)

// Unreadable is what the model answers when it cannot see a reading.
const Unreadable = "UNREADABLE"

const prompt = `You are reading the odometer of a vehicle from a dashboard photo.

Find the total distance counter (not the trip meter) and transcribe it.

OUTPUT FORMAT:
Reply with the digits of the reading only, without units, spaces or separators.
If the odometer is not visible or the digits cannot be read with confidence, reply with exactly ` + Unreadable + `.

Example output:
54321`

var readingPattern = regexp.MustCompile(`\d+(?:[ ,]\d{3})*(?:\.\d+)?`)

// Service turns photos into odometer readings.
type Service struct {
	provider providers.Provider
	model    string
}

func NewService(provider providers.Provider, model string) *Service {
	return &Service{provider: provider, model: model}
}

func (s *Service) Provider() string { return s.provider.Name() }

// ReadOdometer returns the reading in image, or ok=false when the model could not read one.
func (s *Service) ReadOdometer(ctx context.Context, image []byte, mime string) (reading float64, ok bool, err error) {
	text, err := s.provider.ExtractText(ctx, providers.Config{
		Model:       s.model,
		Temperature: 0.0,
		Prompt:      prompt,
		Image:       image,
		ImageMIME:   mime,
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to read odometer with %s: %w", s.provider.Name(), err)
	}

	reading, ok = ParseReading(text)
	slog.Info("Odometer read", "provider", s.provider.Name(), "model", s.model, "ok", ok, "reading", reading)
	return reading, ok, nil
}

// ParseReading extracts the first number from a model answer. Thousands separators
// (space or comma) are dropped.
func ParseReading(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" || strings.Contains(strings.ToUpper(text), Unreadable) {
		return 0, false
	}
	m := readingPattern.FindString(text)
	if m == "" {
		return 0, false
	}
	m = strings.NewReplacer(" ", "", ",", "").Replace(m)
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Static is a Provider that always answers with Text. An empty Text reads as unreadable.
type Static struct {
	Text string
}

func (s Static) Name() string { return "static" }

func (s Static) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	if s.Text == "" {
		return Unreadable, nil
	}
	return s.Text, nil
}

// NewProvider builds the named provider and its default model from the environment.
func NewProvider(name string) (providers.Provider, string, error) {
	switch name {
	case "", "static":
		return Static{Text: os.Getenv("STATIC_ODOMETER")}, "", nil
	case "ollama":
		return ollama.New(os.Getenv("OLLAMA_URL")), envOr("OLLAMA_MODEL", "mistral-small3.2:24b"), nil
	case "openai":
		return openai.New(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_BASE_URL")), envOr("OPENAI_MODEL", "gpt-4o"), nil
	case "gemini":
		return gemini.New(os.Getenv("GEMINI_API_KEY")), envOr("GEMINI_MODEL", "gemini-1.5-flash"), nil
	default:
		return nil, "", fmt.Errorf("unsupported recognition provider: %s", name)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
