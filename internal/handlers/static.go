package handlers

import (
	"net/http"
	"path/filepath"
	"strings"
)

// HandleStatic serves the browser shell. The app URL's query is left for the
// shell to read and pass to POST /api/sessions.
func (h *Handler) HandleStatic(w http.ResponseWriter, r *http.Request) {
	if h.opts.StaticDir == "" {
		http.NotFound(w, r)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		path = "index.html"
	}

	// Prevent directory traversal attacks
	if strings.Contains(path, "..") {
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}

	switch {
	case strings.HasSuffix(path, ".css"):
		w.Header().Set("Content-Type", "text/css")
	case strings.HasSuffix(path, ".js"):
		w.Header().Set("Content-Type", "application/javascript")
	case strings.HasSuffix(path, ".html"):
		w.Header().Set("Content-Type", "text/html")
	}

	http.ServeFile(w, r, filepath.Join(h.opts.StaticDir, filepath.FromSlash(path)))
}
