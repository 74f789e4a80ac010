// Package scheduler runs the recurring billing cycle and the monthly report
// delivery in the background.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/finbot/internal/billing"
	"github.com/Veraticus/finbot/internal/common"
	"github.com/Veraticus/finbot/internal/model"
	"github.com/Veraticus/finbot/internal/report"
	"github.com/Veraticus/finbot/internal/service"
)

// Biller runs one billing cycle.
type Biller interface {
	RunBillingCycle(ctx context.Context, now time.Time) (billing.Summary, error)
}

// Reporter delivers the report for one completed month.
type Reporter interface {
	RunPeriodReport(ctx context.Context, accountID string, month time.Time) (report.Report, error)
}

// Store is the slice of the ledger the scheduler needs.
type Store interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
	service.ReportLog
}

// Config sets the cadence.
type Config struct {
	Location        *time.Location
	BillingInterval time.Duration
	ReportDay       int
	ReportHour      int
}

// Scheduler triggers billing every interval and sends each account the
// previous month's report once, on ReportDay at ReportHour.
type Scheduler struct {
	biller   Biller
	reporter Reporter
	store    Store
	clock    service.Clock
	logger   *slog.Logger
	cfg      Config
}

// New creates a scheduler.
func New(biller Biller, reporter Reporter, store Store, cfg Config, clock service.Clock, logger *slog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.BillingInterval <= 0 {
		cfg.BillingInterval = time.Hour
	}
	if cfg.ReportDay == 0 {
		cfg.ReportDay = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		biller:   biller,
		reporter: reporter,
		store:    store,
		clock:    clock,
		logger:   common.LoggerOrDefault(logger),
		cfg:      cfg,
	}
}

// Run ticks immediately and then every BillingInterval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"billing_interval", s.cfg.BillingInterval,
		"report_day", s.cfg.ReportDay,
		"report_hour", s.cfg.ReportHour)

	ticker := time.NewTicker(s.cfg.BillingInterval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx, s.clock()); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("scheduler tick failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs the billing cycle and, when due, the monthly reports.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	var errs []error

	if _, err := s.biller.RunBillingCycle(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("billing: %w", err))
	}

	if s.reportsDue(now) {
		if err := s.sendReports(ctx, now); err != nil {
			errs = append(errs, fmt.Errorf("reports: %w", err))
		}
	}

	return errors.Join(errs...)
}

// reportsDue reports whether now is at or past the report slot of its month.
// Delivery is deduplicated per period, so any later tick that month also
// qualifies.
func (s *Scheduler) reportsDue(now time.Time) bool {
	local := now.In(s.cfg.Location)
	y, m, _ := local.Date()
	slot := time.Date(y, m, s.cfg.ReportDay, s.cfg.ReportHour, 0, 0, 0, s.cfg.Location)
	return !local.Before(slot)
}

// sendReports delivers last month's report to every account that has not
// received it yet.
func (s *Scheduler) sendReports(ctx context.Context, now time.Time) error {
	monthStart := report.StartOfMonth(now, s.cfg.Location)
	lastMonthEnd := monthStart.Add(-time.Nanosecond)
	period := report.Period(lastMonthEnd, s.cfg.Location)

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	sent := 0
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Accounts created this month have no history for last month.
		if !account.CreatedAt.Before(monthStart) {
			continue
		}

		fresh, err := s.store.MarkReportDelivered(ctx, account.ID, period, now)
		if err != nil {
			s.logger.Error("failed to record report delivery",
				"account_id", account.ID,
				"period", period,
				"error", err)
			continue
		}
		if !fresh {
			continue
		}

		if _, err := s.reporter.RunPeriodReport(ctx, account.ID, lastMonthEnd); err != nil {
			s.logger.Error("failed to send monthly report",
				"account_id", account.ID,
				"period", period,
				"error", err)
			continue
		}
		sent++
	}

	if sent > 0 {
		s.logger.Info("monthly reports sent", "period", period, "count", sent)
	}
	return nil
}
