package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRunCmd creates the 'run' subcommand: one pipeline cycle, report on
// stdout.
func newRunCmd() *cobra.Command {
	var dateFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Executes one acquisition cycle and prints the run report",
		Long: `Fetches the listing for the given date (today by default), downloads
the papers, dispatches each completed file, and prints the run report as
JSON on stdout. The command exits non-zero when a stage failed outright;
individual paper failures are reported, not fatal.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			date := time.Now()
			if dateFlag != "" {
				date, err = time.Parse("2006-01-02", dateFlag)
				if err != nil {
					return fmt.Errorf("parse --date: %w", err)
				}
			}

			report := appInstance.Runner().RunOnce(cmd.Context(), date)
			out, err := report.JSON()
			if err != nil {
				return fmt.Errorf("encode run report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if report.Error != "" {
				appInstance.Logger().Error("run completed with error", zap.String("error", report.Error))
				return fmt.Errorf("run failed: %s", report.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "run date as YYYY-MM-DD (default: today)")
	return cmd
}
