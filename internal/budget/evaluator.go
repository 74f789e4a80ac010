// Package budget decides when an account has overspent its weekly limit.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/finbot/internal/common"
	"github.com/Veraticus/finbot/internal/model"
	"github.com/Veraticus/finbot/internal/service"
	"github.com/shopspring/decimal"
)

// Store is the slice of the ledger the evaluator reads.
type Store interface {
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	GetTransactions(ctx context.Context, accountID string, start, end time.Time) ([]model.Transaction, error)
}

// Decision is the outcome of one evaluation.
type Decision struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Total       decimal.Decimal
	Limit       decimal.Decimal
	Alert       bool
}

// Evaluator computes weekly spend and alerts when it exceeds the limit.
// It never writes to the ledger and does not suppress repeated alerts.
type Evaluator struct {
	store    Store
	notifier service.Notifier
	logger   *slog.Logger
	location *time.Location
}

// NewEvaluator creates an evaluator. Weeks start on Monday 00:00 in loc;
// a nil loc means server-local time.
func NewEvaluator(store Store, notifier service.Notifier, loc *time.Location, logger *slog.Logger) *Evaluator {
	if loc == nil {
		loc = time.Local
	}
	return &Evaluator{
		store:    store,
		notifier: notifier,
		logger:   common.LoggerOrDefault(logger),
		location: loc,
	}
}

// StartOfWeek returns the most recent Monday 00:00 at or before t in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	daysSinceMonday := (int(local.Weekday()) + 6) % 7
	y, m, d := local.Date()
	return time.Date(y, m, d-daysSinceMonday, 0, 0, 0, 0, loc)
}

// Evaluate totals the account's spend for the current week and sends an
// alert when the limit is exceeded. A failed alert delivery is logged and
// does not fail the evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, accountID string, now time.Time) (Decision, error) {
	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return Decision{}, fmt.Errorf("load account for budget check: %w", err)
	}

	decision := Decision{
		WindowStart: StartOfWeek(now, e.location),
		WindowEnd:   now,
		Limit:       account.WeeklyLimit,
		Total:       decimal.Zero,
	}

	if !account.HasLimit() {
		return decision, nil
	}

	txns, err := e.store.GetTransactions(ctx, accountID, decision.WindowStart, decision.WindowEnd)
	if err != nil {
		return Decision{}, fmt.Errorf("load weekly transactions: %w", err)
	}

	for _, txn := range txns {
		decision.Total = decision.Total.Add(txn.Amount)
	}

	decision.Alert = decision.Total.GreaterThan(decision.Limit)
	if !decision.Alert {
		return decision, nil
	}

	e.logger.Info("weekly budget exceeded",
		"account_id", accountID,
		"total", decision.Total.StringFixed(2),
		"limit", decision.Limit.StringFixed(2))

	if err := e.notifier.SendText(ctx, accountID, AlertMessage(decision.Total, decision.Limit)); err != nil {
		e.logger.Warn("failed to deliver budget alert",
			"account_id", accountID,
			"error", err)
	}

	return decision, nil
}

// AlertMessage formats the over-budget notification.
func AlertMessage(total, limit decimal.Decimal) string {
	return fmt.Sprintf("ALERT: You've spent $%s, exceeding your limit of $%s!", total.StringFixed(2), limit.StringFixed(2))
}
