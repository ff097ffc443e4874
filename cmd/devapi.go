package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/autopark-gthost/odocheck/internal/config"
	"github.com/autopark-gthost/odocheck/internal/devapi"
	"github.com/autopark-gthost/odocheck/internal/ledger"
	"github.com/autopark-gthost/odocheck/internal/ocr"
	"github.com/spf13/cobra"
)

func newDevAPICmd() *cobra.Command {
	var (
		port           string
		provider       string
		model          string
		ledgerPath     string
		requiredPhotos int
	)

	cmd := &cobra.Command{
		Use:   "devapi",
		Short: "Serve a local stand-in for the backend API",
		Long: `Serves the auth, odometer recognition, report and callback endpoints locally.

Odometer photos are read by a vision model (ollama, openai or gemini) or
answered with a fixed reading (static). Accepted reports are appended to a
parquet ledger that "odocheck inspect" prints.`,
		Example: `  # Always recognize 54321
  STATIC_ODOMETER=54321 odocheck devapi --port 9000

  # Read odometers with a local vision model
  odocheck devapi --provider ollama --model llava:13b`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("provider") {
				if p := os.Getenv("RECOGNITION_PROVIDER"); p != "" {
					provider = p
				}
			}
			p, defaultModel, err := ocr.NewProvider(provider)
			if err != nil {
				return err
			}
			if model == "" {
				model = defaultModel
			}

			l, err := ledger.Open(ledgerPath)
			if err != nil {
				return fmt.Errorf("failed to open ledger: %w", err)
			}

			srv := devapi.New(ocr.NewService(p, model), l, requiredPhotos)
			addr := ":" + port
			server := &http.Server{
				Addr:    addr,
				Handler: srv.Router(),
			}

			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Backend stand-in available", "addr", addr, "provider", p.Name(), "model", model, "ledger", ledgerPath, "entries", len(l.Entries()))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

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

	cmd.Flags().StringVarP(&port, "port", "p", "9000", "Port to listen on")
	cmd.Flags().StringVar(&provider, "provider", "static", "Recognition provider: static, ollama, openai or gemini (env RECOGNITION_PROVIDER)")
	cmd.Flags().StringVar(&model, "model", "", "Vision model (defaults per provider)")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "reports.parquet", "Parquet file for accepted reports, empty keeps them in memory")
	cmd.Flags().IntVar(&requiredPhotos, "photos", config.DefaultRequiredPhotos, "Documentation photos a report must carry")

	return cmd
}
