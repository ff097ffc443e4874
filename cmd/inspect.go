package cmd

import (
	"fmt"
	"strings"

	"github.com/autopark-gthost/odocheck/internal/ledger"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var (
		limit int
		car   int64
	)

	cmd := &cobra.Command{
		Use:   "inspect <reports.parquet>",
		Short: "Print the reports recorded in a ledger file",
		Example: `  # Last 10 reports
  odocheck inspect reports.parquet

  # Every report for car 12
  odocheck inspect reports.parquet --car 12 --limit 0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := ledger.Read(args[0])
			if err != nil {
				return fmt.Errorf("failed to load ledger: %w", err)
			}

			if car > 0 {
				filtered := entries[:0]
				for _, e := range entries {
					if e.CarID == car {
						filtered = append(filtered, e)
					}
				}
				entries = filtered
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}

			fmt.Fprint(cmd.OutOrStdout(), formatEntries(entries))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of most recent reports to show (0 for all)")
	cmd.Flags().Int64Var(&car, "car", 0, "Only show reports for this car")

	return cmd
}

func formatEntries(entries []ledger.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d reports\n", len(entries))
	b.WriteString(strings.Repeat("=", 80) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  car %-6d %-5s  odometer %-10.0f  at %.5f,%.5f  photos %d (%d KB) odometer photo %d KB\n",
			e.Time().UTC().Format("2006-01-02 15:04:05"), e.CarID, e.Action, e.Odometer,
			e.Latitude, e.Longitude, e.Photos, e.PhotoBytes/1024, e.OdometerPhotoBytes/1024)
	}
	return b.String()
}
