package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/autopark-gthost/odocheck/internal/capture"
)

// maxFrameSize bounds one uploaded frame.
const maxFrameSize = 10 * 1024 * 1024

// HandleCapture takes the frame the browser's camera shows and runs a capture on it.
// The frame comes as multipart field "frame" or as the raw request body.
func (h *Handler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	data, err := readFrame(r)
	if err != nil {
		h.writeError(w, "Failed to read frame: "+err.Error(), http.StatusBadRequest)
		return
	}
	// No frame means "use the one pushed last".
	if len(data) > 0 {
		img, err := capture.Decode(data)
		if err != nil {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		sess.Camera.Push(img)
		slog.Debug("Frame received", "session_id", sess.ID, "bytes", len(data), "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	}

	h.respond(w, sess, sess.Controller.Capture(r.Context()))
}

func readFrame(r *http.Request) ([]byte, error) {
	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("frame")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errNoFrame, err)
		}
		defer file.Close()
		src = file
	}

	data, err := io.ReadAll(io.LimitReader(src, maxFrameSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read frame contents: %w", err)
	}
	if len(data) > maxFrameSize {
		return nil, fmt.Errorf("frame too large (max 10MB)")
	}
	return data, nil
}
