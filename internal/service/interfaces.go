// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/finbot/internal/model"
	"github.com/shopspring/decimal"
)

// AccountStore persists chat-platform accounts.
type AccountStore interface {
	// EnsureAccount creates the account if it is absent. It reports whether
	// this call created it and is safe under concurrent duplicate calls.
	EnsureAccount(ctx context.Context, id string, now time.Time) (bool, error)
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	SetWeeklyLimit(ctx context.Context, id string, limit decimal.Decimal) error
}

// TransactionStore persists the append-only transaction log.
type TransactionStore interface {
	SaveTransaction(ctx context.Context, txn *model.Transaction) error
	// GetTransactions returns the account's transactions with OccurredAt in
	// [start, end], oldest first.
	GetTransactions(ctx context.Context, accountID string, start, end time.Time) ([]model.Transaction, error)
}

// SubscriptionStore persists subscriptions and posts their charges.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	GetSubscription(ctx context.Context, id string) (*model.Subscription, error)
	// GetDueSubscriptions returns active subscriptions with NextBillingDate <= now.
	GetDueSubscriptions(ctx context.Context, now time.Time) ([]model.Subscription, error)
	// CancelSubscriptions cancels the account's active subscriptions whose
	// service name matches case-insensitively and returns how many changed.
	CancelSubscriptions(ctx context.Context, accountID, serviceName string) (int, error)
	// PostCharges inserts the charges idempotently on (subscription, period)
	// and advances the subscription in one atomic step. The update only
	// applies when the stored version still equals sub.Version; otherwise
	// common.ErrConflict is returned and nothing is written. It returns the
	// number of charges actually inserted.
	PostCharges(ctx context.Context, sub model.Subscription, charges []model.Transaction, next time.Time, periodIndex int) (int, error)
}

// ReportLog records which scheduled reports have already been delivered.
type ReportLog interface {
	// MarkReportDelivered records the (account, period) pair and reports
	// whether it was newly recorded.
	MarkReportDelivered(ctx context.Context, accountID, period string, at time.Time) (bool, error)
}

// Ledger is the complete persistence contract shared by all components.
type Ledger interface {
	AccountStore
	TransactionStore
	SubscriptionStore
	ReportLog

	Migrate(ctx context.Context) error
	Close() error
}

// Notifier delivers outbound chat messages. Failures are reported but never
// retried by callers.
type Notifier interface {
	SendText(ctx context.Context, accountID, text string) error
	SendImage(ctx context.Context, accountID string, png []byte) error
}

// IntentClassifier turns free text into a structured intent. It never fails:
// anything unusable comes back as model.Unrecognized().
type IntentClassifier interface {
	Classify(ctx context.Context, text string, now time.Time) model.Intent
}

// ChartRenderer draws a category breakdown as a PNG image.
type ChartRenderer interface {
	RenderPie(slices []ChartSlice) ([]byte, error)
}

// ChartSlice is one labelled wedge of a pie chart.
type ChartSlice struct {
	Label string
	Value float64
}

// Clock returns the current time. Components take one so tests can pin time.
type Clock func() time.Time
