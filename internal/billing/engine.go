// Package billing posts recurring subscription charges to the ledger.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/finbot/internal/common"
	"github.com/Veraticus/finbot/internal/model"
	"github.com/Veraticus/finbot/internal/service"
)

// Summary describes the outcome of one billing cycle. Charged counts posted
// transactions, not subscriptions: a subscription caught up over three
// periods adds 3 to Charged and 1 to Renewed. The other fields count
// subscriptions.
type Summary struct {
	Charged int // transactions posted
	Renewed int // subscriptions advanced
	Failed  int // subscriptions left untouched because of an error
	Skipped int // subscriptions another run already handled
}

// Engine charges due subscriptions.
type Engine struct {
	store    service.SubscriptionStore
	notifier service.Notifier
	logger   *slog.Logger
}

// NewEngine creates a billing engine. notifier may be nil to disable renewal
// notices.
func NewEngine(store service.SubscriptionStore, notifier service.Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		notifier: notifier,
		logger:   common.LoggerOrDefault(logger),
	}
}

var errNotDue = errors.New("subscription no longer due")

// RunBillingCycle charges every active subscription due at now. Each missed
// period gets its own transaction and the subscription is advanced past now.
// A subscription that fails is logged and counted; the rest of the cycle
// continues. Only a failure to list due subscriptions or a cancelled context
// is returned as an error.
func (e *Engine) RunBillingCycle(ctx context.Context, now time.Time) (Summary, error) {
	var summary Summary

	due, err := e.store.GetDueSubscriptions(ctx, now)
	if err != nil {
		return summary, fmt.Errorf("failed to list due subscriptions: %w", err)
	}

	e.logger.Debug("billing cycle started", "due", len(due), "now", now)

	for i := range due {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		posted, err := e.bill(ctx, due[i], now)
		switch {
		case errors.Is(err, errNotDue):
			summary.Skipped++
		case err != nil:
			summary.Failed++
			e.logger.Error("failed to bill subscription",
				"subscription_id", due[i].ID,
				"account_id", due[i].AccountID,
				"error", err)
		default:
			summary.Renewed++
			summary.Charged += posted
		}
	}

	e.logger.Info("billing cycle complete",
		"charged", summary.Charged,
		"renewed", summary.Renewed,
		"failed", summary.Failed,
		"skipped", summary.Skipped)

	return summary, nil
}

// bill posts one subscription, retrying once against a fresh read if another
// writer got there first.
func (e *Engine) bill(ctx context.Context, sub model.Subscription, now time.Time) (int, error) {
	posted, periods, err := e.post(ctx, sub, now)
	if errors.Is(err, common.ErrConflict) {
		fresh, getErr := e.store.GetSubscription(ctx, sub.ID)
		if getErr != nil {
			return 0, fmt.Errorf("reload after conflict: %w", getErr)
		}
		sub = *fresh
		posted, periods, err = e.post(ctx, sub, now)
	}
	if err != nil {
		return 0, err
	}

	if posted > 0 {
		e.notify(ctx, sub, periods)
	}
	return posted, nil
}

func (e *Engine) post(ctx context.Context, sub model.Subscription, now time.Time) (int, int, error) {
	periods := sub.PeriodsDue(now)
	if periods == 0 {
		return 0, 0, errNotDue
	}

	charges := Charges(sub, periods)
	next := sub.NextBillingDate.Add(time.Duration(periods) * model.BillingPeriod)

	posted, err := e.store.PostCharges(ctx, sub, charges, next, sub.PeriodIndex+periods)
	if err != nil {
		return 0, 0, err
	}
	return posted, periods, nil
}

// Charges builds the transactions for the next periods of sub. Charge k
// occurs on the k-th missed billing date.
func Charges(sub model.Subscription, periods int) []model.Transaction {
	charges := make([]model.Transaction, periods)
	for k := 0; k < periods; k++ {
		charges[k] = model.Transaction{
			OccurredAt:     sub.NextBillingDate.Add(time.Duration(k) * model.BillingPeriod),
			AccountID:      sub.AccountID,
			ItemName:       sub.ServiceName,
			Category:       model.CategorySubscription,
			SubscriptionID: sub.ID,
			Amount:         sub.Amount,
			PeriodIndex:    sub.PeriodIndex + k,
			Automated:      true,
		}
	}
	return charges
}

func (e *Engine) notify(ctx context.Context, sub model.Subscription, periods int) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.SendText(ctx, sub.AccountID, RenewalMessage(sub, periods)); err != nil {
		e.logger.Warn("failed to deliver renewal notice",
			"subscription_id", sub.ID,
			"account_id", sub.AccountID,
			"error", err)
	}
}

// RenewalMessage is the notice sent after a subscription is charged.
func RenewalMessage(sub model.Subscription, periods int) string {
	msg := fmt.Sprintf("Auto-logged subscription: %s ($%s)", sub.ServiceName, sub.Amount.StringFixed(2))
	if periods > 1 {
		msg += fmt.Sprintf(" for %d periods", periods)
	}
	return msg
}
