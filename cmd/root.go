package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "odocheck",
		Short: "Vehicle check-in/check-out sessions with odometer recognition",
		Long: `odocheck runs the vehicle start/end report flow: pick the location on a map,
photograph the odometer, take the documentation photos and submit the report.

It can host sessions for the browser shell, play a session from a scenario
file, and stand in for the backend API during development.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newDevAPICmd())
	cmd.AddCommand(newInspectCmd())

	return cmd
}
