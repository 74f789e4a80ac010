// Package dispatch routes inbound chat messages to ledger operations.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/finbot/internal/budget"
	"github.com/Veraticus/finbot/internal/common"
	"github.com/Veraticus/finbot/internal/model"
	"github.com/Veraticus/finbot/internal/report"
	"github.com/Veraticus/finbot/internal/service"
	"github.com/shopspring/decimal"
)

// Fixed replies.
const (
	WelcomeMessage = "Chao! I'm your Finance Assistance Bot. Try typing: 'KFC $30' or 'Limit 500'."
	ClarifyMessage = "Sorry, I didn't catch that. Try: 'Item amount'."
)

// Store is the slice of the ledger the dispatcher writes.
type Store interface {
	service.AccountStore
	service.TransactionStore
	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	CancelSubscriptions(ctx context.Context, accountID, serviceName string) (int, error)
}

// BudgetChecker runs the weekly budget check after an expense.
type BudgetChecker interface {
	Evaluate(ctx context.Context, accountID string, now time.Time) (budget.Decision, error)
}

// Reporter delivers the on-demand monthly report.
type Reporter interface {
	RunMonthlyReport(ctx context.Context, accountID string, now time.Time) (report.Report, error)
}

// Dispatcher handles one inbound message at a time. It keeps no state of
// its own, so concurrent calls are safe whenever the store is.
type Dispatcher struct {
	store      Store
	classifier service.IntentClassifier
	notifier   service.Notifier
	budget     BudgetChecker
	reports    Reporter
	clock      service.Clock
	logger     *slog.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source.
func WithClock(clock service.Clock) Option {
	return func(d *Dispatcher) {
		d.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// New creates a dispatcher.
func New(store Store, classifier service.IntentClassifier, notifier service.Notifier, checker BudgetChecker, reports Reporter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		classifier: classifier,
		notifier:   notifier,
		budget:     checker,
		reports:    reports,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = common.LoggerOrDefault(d.logger)
	return d
}

// HandleMessage processes one chat message from accountID. Only ledger
// failures are returned; unparseable input gets a clarification reply and
// failed replies are logged.
func (d *Dispatcher) HandleMessage(ctx context.Context, accountID, text string) error {
	now := d.clock()

	created, err := d.store.EnsureAccount(ctx, accountID, now)
	if err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	if created {
		d.logger.Info("new account", "account_id", accountID)
		d.reply(ctx, accountID, WelcomeMessage)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		d.reply(ctx, accountID, ClarifyMessage)
		return nil
	}

	if IsReportCommand(text) {
		if _, err := d.reports.RunMonthlyReport(ctx, accountID, now); err != nil {
			return fmt.Errorf("monthly report: %w", err)
		}
		return nil
	}

	intent := d.classifier.Classify(ctx, text, now)

	d.logger.Debug("dispatching intent",
		"account_id", accountID,
		"kind", intent.Kind)

	switch intent.Kind {
	case model.IntentSetLimit:
		return d.setLimit(ctx, accountID, intent)
	case model.IntentAddSubscription:
		return d.addSubscription(ctx, accountID, intent, now)
	case model.IntentCancelSubscription:
		return d.cancelSubscription(ctx, accountID, intent)
	case model.IntentExpense:
		return d.logExpense(ctx, accountID, intent, now)
	default:
		d.reply(ctx, accountID, ClarifyMessage)
		return nil
	}
}

// IsReportCommand reports whether text asks for the monthly report.
func IsReportCommand(text string) bool {
	return strings.Contains(strings.ToLower(text), "report")
}

func (d *Dispatcher) setLimit(ctx context.Context, accountID string, intent model.Intent) error {
	if intent.Amount.IsNegative() {
		d.rejected(ctx, accountID, intent)
		return nil
	}

	if err := d.store.SetWeeklyLimit(ctx, accountID, intent.Amount); err != nil {
		return fmt.Errorf("set weekly limit: %w", err)
	}

	d.reply(ctx, accountID, fmt.Sprintf("Weekly limit set to $%s", money(intent.Amount)))
	return nil
}

func (d *Dispatcher) addSubscription(ctx context.Context, accountID string, intent model.Intent, now time.Time) error {
	if !intent.Amount.IsPositive() || intent.ItemName == "" {
		d.rejected(ctx, accountID, intent)
		return nil
	}

	sub := model.Subscription{
		AccountID:       accountID,
		ServiceName:     intent.ItemName,
		Amount:          intent.Amount,
		Status:          model.SubscriptionActive,
		NextBillingDate: now.Add(model.BillingPeriod),
		CreatedAt:       now,
	}
	if err := d.store.CreateSubscription(ctx, &sub); err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}

	d.reply(ctx, accountID, fmt.Sprintf("Subscription added: %s ($%s/mo)", sub.ServiceName, money(sub.Amount)))
	return nil
}

func (d *Dispatcher) cancelSubscription(ctx context.Context, accountID string, intent model.Intent) error {
	if intent.ItemName == "" {
		d.rejected(ctx, accountID, intent)
		return nil
	}

	n, err := d.store.CancelSubscriptions(ctx, accountID, intent.ItemName)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}

	if n == 0 {
		d.reply(ctx, accountID, fmt.Sprintf("No active subscription named %s.", intent.ItemName))
		return nil
	}
	d.reply(ctx, accountID, fmt.Sprintf("Subscription cancelled: %s", intent.ItemName))
	return nil
}

func (d *Dispatcher) logExpense(ctx context.Context, accountID string, intent model.Intent, now time.Time) error {
	if !intent.Amount.IsPositive() || intent.ItemName == "" || !intent.Category.IsValid() {
		d.rejected(ctx, accountID, intent)
		return nil
	}

	txn := model.Transaction{
		AccountID:  accountID,
		ItemName:   intent.ItemName,
		Category:   intent.Category,
		Amount:     intent.Amount,
		OccurredAt: now,
		CreatedAt:  now,
	}
	if err := d.store.SaveTransaction(ctx, &txn); err != nil {
		return fmt.Errorf("save expense: %w", err)
	}

	d.reply(ctx, accountID, fmt.Sprintf("Logged: %s ($%s) - %s", txn.ItemName, money(txn.Amount), txn.Category))

	if _, err := d.budget.Evaluate(ctx, accountID, now); err != nil {
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

// rejected answers an intent whose values failed validation. Nothing has
// been written at this point.
func (d *Dispatcher) rejected(ctx context.Context, accountID string, intent model.Intent) {
	d.logger.Info("rejected intent",
		"account_id", accountID,
		"kind", intent.Kind,
		"amount", intent.Amount.String(),
		"error", common.ErrInvalidAmount)
	d.reply(ctx, accountID, ClarifyMessage)
}

func (d *Dispatcher) reply(ctx context.Context, accountID, text string) {
	if err := d.notifier.SendText(ctx, accountID, text); err != nil {
		d.logger.Warn("failed to deliver reply",
			"account_id", accountID,
			"error", err)
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
