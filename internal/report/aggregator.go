// Package report groups a window of transactions by category and delivers
// monthly summaries over chat.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/finbot/internal/common"
	"github.com/Veraticus/finbot/internal/model"
	"github.com/Veraticus/finbot/internal/service"
	"github.com/shopspring/decimal"
)

// NoDataMessage is sent when the current month has no transactions.
const NoDataMessage = "No data found for this month."

// Store is the slice of the ledger the aggregator reads.
type Store interface {
	GetTransactions(ctx context.Context, accountID string, start, end time.Time) ([]model.Transaction, error)
}

// CategoryTotal is the summed spend of one category.
type CategoryTotal struct {
	Category model.Category
	Amount   decimal.Decimal
	Count    int
}

// Report is the aggregation of one account's transactions over a window.
type Report struct {
	WindowStart time.Time
	WindowEnd   time.Time
	AccountID   string
	Categories  []CategoryTotal // ordered by first appearance in the window
	Period      string          // YYYY-MM of a completed month; empty for month-to-date
	Total       decimal.Decimal
	Count       int
}

// Empty reports whether nothing happened in the window. This is distinct
// from a report whose total happens to be zero.
func (r *Report) Empty() bool {
	return r.Count == 0
}

// Aggregator builds reports and delivers them.
type Aggregator struct {
	store    Store
	notifier service.Notifier
	renderer service.ChartRenderer
	logger   *slog.Logger
	location *time.Location
}

// NewAggregator creates an aggregator. renderer may be nil, in which case
// reports are delivered as text only. Months are computed in loc; nil means
// server-local time.
func NewAggregator(store Store, notifier service.Notifier, renderer service.ChartRenderer, loc *time.Location, logger *slog.Logger) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{
		store:    store,
		notifier: notifier,
		renderer: renderer,
		logger:   common.LoggerOrDefault(logger),
		location: loc,
	}
}

// Aggregate groups the account's transactions in [start, end] by category.
func (a *Aggregator) Aggregate(ctx context.Context, accountID string, start, end time.Time) (Report, error) {
	txns, err := a.store.GetTransactions(ctx, accountID, start, end)
	if err != nil {
		return Report{}, fmt.Errorf("load transactions for report: %w", err)
	}
	return Summarize(accountID, start, end, txns), nil
}

// Summarize groups txns by category in first-seen order.
func Summarize(accountID string, start, end time.Time, txns []model.Transaction) Report {
	report := Report{
		AccountID:   accountID,
		WindowStart: start,
		WindowEnd:   end,
		Total:       decimal.Zero,
	}

	index := make(map[model.Category]int)
	for _, txn := range txns {
		i, seen := index[txn.Category]
		if !seen {
			i = len(report.Categories)
			index[txn.Category] = i
			report.Categories = append(report.Categories, CategoryTotal{Category: txn.Category, Amount: decimal.Zero})
		}
		report.Categories[i].Amount = report.Categories[i].Amount.Add(txn.Amount)
		report.Categories[i].Count++
		report.Total = report.Total.Add(txn.Amount)
		report.Count++
	}

	return report
}

// StartOfMonth returns the first instant of t's month in loc.
func StartOfMonth(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, _ := local.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, loc)
}

// Period returns the YYYY-MM label of t's month in loc.
func Period(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01")
}

// RunMonthlyReport aggregates the month containing now up to now and sends
// the text summary followed by a chart. Delivery and rendering failures are
// logged; only ledger errors are returned.
func (a *Aggregator) RunMonthlyReport(ctx context.Context, accountID string, now time.Time) (Report, error) {
	report, err := a.Aggregate(ctx, accountID, StartOfMonth(now, a.location), now)
	if err != nil {
		return Report{}, err
	}
	a.deliver(ctx, report)
	return report, nil
}

// RunPeriodReport sends the report for the whole calendar month containing
// month. The texts name the period.
func (a *Aggregator) RunPeriodReport(ctx context.Context, accountID string, month time.Time) (Report, error) {
	start := StartOfMonth(month, a.location)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)

	report, err := a.Aggregate(ctx, accountID, start, end)
	if err != nil {
		return Report{}, err
	}
	report.Period = Period(start, a.location)

	a.deliver(ctx, report)
	return report, nil
}

func (a *Aggregator) deliver(ctx context.Context, report Report) {
	if report.Empty() {
		a.send(ctx, report.AccountID, NoDataText(report))
		return
	}

	a.send(ctx, report.AccountID, FormatText(report))

	if a.renderer == nil {
		return
	}

	png, err := a.renderer.RenderPie(Slices(report))
	if err != nil {
		a.logger.Warn("failed to render report chart",
			"account_id", report.AccountID,
			"error", err)
		return
	}

	if err := a.notifier.SendImage(ctx, report.AccountID, png); err != nil {
		a.logger.Warn("failed to deliver report chart",
			"account_id", report.AccountID,
			"error", err)
	}
}

func (a *Aggregator) send(ctx context.Context, accountID, text string) {
	if err := a.notifier.SendText(ctx, accountID, text); err != nil {
		a.logger.Warn("failed to deliver report",
			"account_id", accountID,
			"error", err)
	}
}

// NoDataText is the reply for an empty report.
func NoDataText(report Report) string {
	if report.Period == "" {
		return NoDataMessage
	}
	return fmt.Sprintf("No data found for %s.", report.Period)
}

// FormatText renders the chat version of a report.
func FormatText(report Report) string {
	var b strings.Builder
	if report.Period == "" {
		b.WriteString("Monthly Report:\n")
	} else {
		fmt.Fprintf(&b, "Monthly Report (%s):\n", report.Period)
	}
	fmt.Fprintf(&b, "Total: $%s\n", report.Total.StringFixed(2))
	for _, c := range report.Categories {
		fmt.Fprintf(&b, "- %s: $%s\n", c.Category, c.Amount.StringFixed(2))
	}
	return b.String()
}

// Slices converts a report into chart wedges.
func Slices(report Report) []service.ChartSlice {
	slices := make([]service.ChartSlice, len(report.Categories))
	for i, c := range report.Categories {
		slices[i] = service.ChartSlice{
			Label: string(c.Category),
			Value: c.Amount.InexactFloat64(),
		}
	}
	return slices
}
