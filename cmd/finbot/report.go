package main

import (
	"fmt"
	"os"
	"time"

	"github.com/Veraticus/finbot/internal/chart"
	"github.com/Veraticus/finbot/internal/cli"
	"github.com/Veraticus/finbot/internal/report"
	"github.com/spf13/cobra"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show an account's spending by category",
		Long: `Show the category breakdown for one month. Without --month the current
month up to now is shown.`,
		Example: `  finbot report --account 1234567890
  finbot report --account 1234567890 --month 2026-09 --chart september.png`,
		RunE: runReport,
	}

	cmd.Flags().String("account", "", "account (sender) ID")
	cmd.Flags().String("month", "", "month to report as YYYY-MM")
	cmd.Flags().String("chart", "", "also write the pie chart to this PNG file")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	accountID, _ := cmd.Flags().GetString("account")
	month, _ := cmd.Flags().GetString("month")
	start, end, err := reportWindow(month, time.Now(), cfg.Budget.Location)
	if err != nil {
		return err
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage(store)

	aggregator := newAggregator(cfg, store, cli.NewConsoleNotifier(cmd.OutOrStdout(), os.TempDir()))
	r, err := aggregator.Aggregate(ctx, accountID, start, end)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderReport(r))

	path, _ := cmd.Flags().GetString("chart")
	if path == "" || r.Empty() {
		return nil
	}

	png, err := chart.NewPieRenderer().RenderPie(report.Slices(r))
	if err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	if err := os.WriteFile(path, png, 0o600); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Chart written to "+path))
	return nil
}

// reportWindow resolves --month to [first instant, last instant] of that
// month. An empty month means the current month up to now.
func reportWindow(month string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if month == "" {
		return report.StartOfMonth(now, loc), now, nil
	}

	start, err := time.ParseInLocation("2006-01", month, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --month %q, want YYYY-MM: %w", month, err)
	}
	return start, start.AddDate(0, 1, 0).Add(-time.Nanosecond), nil
}
