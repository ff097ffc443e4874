package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/autopark-gthost/odocheck/internal/backend"
	"github.com/autopark-gthost/odocheck/internal/scenario"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		out   string
		token string
		flags sessionFlags
	)

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Play one report session from a scenario file",
		Long: `Runs a whole session against the backend using the photos listed in a
YAML scenario: location, odometer attempts and documentation photos.

A YAML summary of every step is written when the run ends.`,
		Example: `  # Run against a local backend stand-in
  odocheck devapi --port 9000 &
  odocheck run field/car-12.yaml --backend http://localhost:9000

  # Override the signed init data from the scenario
  odocheck run field/car-12.yaml --init-data "$INIT_DATA"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}

			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("init-data") {
				sc.InitData = token
			}

			runner := &scenario.Runner{
				Backend:   backend.NewClient(cfg.BackendURL, cfg.HTTPTimeout),
				Options:   sessionOptions(cfg),
				CloseWait: 2 * time.Second,
			}

			slog.Info("Starting scenario", "scenario", args[0], "car_id", sc.Launch.CarID, "action", sc.Launch.Action, "backend", cfg.BackendURL)
			summary, err := runner.Run(cmd.Context(), sc)
			if err != nil {
				return fmt.Errorf("failed to run scenario: %w", err)
			}

			path, err := scenario.WriteSummary(out, summary)
			if err != nil {
				return err
			}
			absPath, _ := filepath.Abs(path)
			fmt.Printf("\n✅ Run summary saved to: %s\n", absPath)

			if !summary.Submitted {
				return fmt.Errorf("report was not submitted: %s", summary.Error)
			}
			fmt.Printf("Report submitted: car %d, odometer %.0f, %d photos. %s\n", summary.CarID, *summary.Odometer, summary.Photos, summary.Message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Summary file (default runs/<car>-<timestamp>.yaml)")
	cmd.Flags().StringVar(&token, "init-data", "", "Signed host init data, overrides the scenario")
	flags.register(cmd)

	return cmd
}
