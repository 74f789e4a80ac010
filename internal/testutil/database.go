// Package testutil provides shared test helpers: migrated throwaway ledgers,
// recording notifiers, scripted classifiers and pinned clocks.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/finbot/internal/model"
	"github.com/Veraticus/finbot/internal/storage"
	"github.com/shopspring/decimal"
)

// TestDB wraps a migrated SQLite ledger that is closed when the test ends.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a fresh file-backed ledger under t.TempDir and runs
// all migrations.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	db.MustEnsureAccount("psid-1")
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// MustEnsureAccount creates the account or fails the test.
func (db *TestDB) MustEnsureAccount(id string) {
	db.t.Helper()
	if _, err := db.Storage.EnsureAccount(context.Background(), id, time.Now()); err != nil {
		db.t.Fatalf("failed to ensure account %q: %v", id, err)
	}
}

// MustSetLimit sets the account's weekly limit or fails the test.
func (db *TestDB) MustSetLimit(id, limit string) {
	db.t.Helper()
	if err := db.Storage.SetWeeklyLimit(context.Background(), id, decimal.RequireFromString(limit)); err != nil {
		db.t.Fatalf("failed to set limit for %q: %v", id, err)
	}
}

// MustAddExpense records a manual expense or fails the test.
func (db *TestDB) MustAddExpense(accountID, item, amount string, category model.Category, at time.Time) model.Transaction {
	db.t.Helper()
	txn := model.Transaction{
		AccountID:  accountID,
		ItemName:   item,
		Amount:     decimal.RequireFromString(amount),
		Category:   category,
		OccurredAt: at,
	}
	if err := db.Storage.SaveTransaction(context.Background(), &txn); err != nil {
		db.t.Fatalf("failed to save expense %q: %v", item, err)
	}
	return txn
}

// MustAddSubscription creates an active subscription or fails the test.
func (db *TestDB) MustAddSubscription(accountID, service, amount string, next time.Time) model.Subscription {
	db.t.Helper()
	sub := model.Subscription{
		AccountID:       accountID,
		ServiceName:     service,
		Amount:          decimal.RequireFromString(amount),
		Status:          model.SubscriptionActive,
		NextBillingDate: next,
	}
	if err := db.Storage.CreateSubscription(context.Background(), &sub); err != nil {
		db.t.Fatalf("failed to create subscription %q: %v", service, err)
	}
	return sub
}

// MustGetSubscription reloads a subscription or fails the test.
func (db *TestDB) MustGetSubscription(id string) model.Subscription {
	db.t.Helper()
	sub, err := db.Storage.GetSubscription(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to load subscription %q: %v", id, err)
	}
	return *sub
}

// MustTransactions returns every transaction of the account or fails the test.
func (db *TestDB) MustTransactions(accountID string) []model.Transaction {
	db.t.Helper()
	txns, err := db.Storage.GetTransactions(context.Background(), accountID,
		time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		db.t.Fatalf("failed to list transactions for %q: %v", accountID, err)
	}
	return txns
}
