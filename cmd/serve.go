package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/autopark-gthost/odocheck/internal/backend"
	"github.com/autopark-gthost/odocheck/internal/camera"
	"github.com/autopark-gthost/odocheck/internal/handlers"
	"github.com/autopark-gthost/odocheck/internal/storage"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		port       string
		staticDir  string
		sessionTTL time.Duration
		zoomMax    float64
		torch      bool
		flags      sessionFlags
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host report sessions for the browser shell",
		Long: `Starts the session server on the specified port.

The browser shell creates a session when the app opens, forwards the operator's
taps and camera frames, and renders the snapshot each call returns. Reports are
submitted to the backend API.`,
		Example: `  # Start server on default port 8888 with the shell in ./static
  odocheck serve

  # Use a local backend stand-in
  odocheck serve --backend http://localhost:9000 --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}

			caps := camera.Capabilities{Torch: torch}
			if zoomMax > 1 {
				caps.Zoom = &camera.Range{Min: 1, Max: zoomMax, Step: 0.1}
			}

			store := storage.New()
			handler := handlers.New(store, backend.NewClient(cfg.BackendURL, cfg.HTTPTimeout), handlers.Options{
				Session:   sessionOptions(cfg),
				Camera:    caps,
				StaticDir: staticDir,
			})

			addr := ":" + port
			server := &http.Server{
				Addr:    addr,
				Handler: handler.Router(),
			}

			go prune(cmd.Context(), store, sessionTTL)

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Session server available", "addr", addr, "url", "http://localhost"+addr, "backend", cfg.BackendURL)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().StringVar(&staticDir, "static", "static", "Directory with the browser shell")
	cmd.Flags().DurationVar(&sessionTTL, "session-ttl", time.Hour, "Drop sessions older than this")
	cmd.Flags().Float64Var(&zoomMax, "zoom-max", 4, "Largest digital zoom offered to the shell, 1 disables zoom")
	cmd.Flags().BoolVar(&torch, "torch", true, "Offer the torch control")
	flags.register(cmd)

	return cmd
}

// prune drops stale sessions until ctx is done.
func prune(ctx context.Context, store *storage.SessionStore, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := store.Prune(now.Add(-ttl)); n > 0 {
				slog.Info("Pruned stale sessions", "count", n, "remaining", store.Len())
			}
		}
	}
}
