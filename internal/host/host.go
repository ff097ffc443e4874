// Package host abstracts the chat platform's mini-app bridge.
package host

import (
	"log/slog"
	"strings"
	"sync"
)

// Haptic feedback kinds understood by the host.
const (
	HapticLight   = "impact_light"
	HapticSuccess = "notification_success"
	HapticError   = "notification_error"
)

// Bridge is what the session uses from the embedding host.
type Bridge interface {
	Ready()
	Expand()
	// InitData is the signed session token; empty when the app runs outside the host.
	InitData() string
	ThemeParams() map[string]string
	Haptic(kind string)
	Close()
}

// ThemeVariables turns theme params into the CSS variables the shell sets on :root.
func ThemeVariables(params map[string]string) map[string]string {
	keys := []string{"bg_color", "text_color", "hint_color", "link_color", "button_color", "button_text_color"}
	vars := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := params[k]; ok && v != "" {
			vars["--tg-theme-"+strings.ReplaceAll(k, "_", "-")] = v
		}
	}
	return vars
}

// Recorder is a Bridge that keeps everything the session asked of the host.
// serve exposes it to the browser through the session snapshot; tests assert on it.
type Recorder struct {
	Token string
	Theme map[string]string

	mu      sync.Mutex
	ready   bool
	expand  bool
	haptics []string
	closed  int
}

func NewRecorder(token string, theme map[string]string) *Recorder {
	return &Recorder{Token: token, Theme: theme}
}

func (r *Recorder) Ready() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = true
}

func (r *Recorder) Expand() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expand = true
}

func (r *Recorder) InitData() string { return r.Token }

func (r *Recorder) ThemeParams() map[string]string { return r.Theme }

func (r *Recorder) Haptic(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.haptics = append(r.haptics, kind)
}

func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
}

// Closed reports how many times Close was called.
func (r *Recorder) Closed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Recorder) Haptics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.haptics...)
}

func (r *Recorder) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready && r.expand
}

// Console is a Bridge for running a session from a terminal.
type Console struct {
	Token string
	Theme map[string]string
	// OnClose runs when the session asks the host to close.
	OnClose func()
}

func (c *Console) Ready()                         { slog.Debug("Host ready") }
func (c *Console) Expand()                        { slog.Debug("Host expanded") }
func (c *Console) InitData() string               { return c.Token }
func (c *Console) ThemeParams() map[string]string { return c.Theme }
func (c *Console) Haptic(kind string)             { slog.Debug("Haptic feedback", "kind", kind) }

func (c *Console) Close() {
	slog.Info("Host close requested")
	if c.OnClose != nil {
		c.OnClose()
	}
}
