package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/finbot/internal/common"
	"github.com/Veraticus/finbot/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestSubscription(t *testing.T, s *SQLiteStorage, accountID, name string, next time.Time) model.Subscription {
	t.Helper()
	sub := model.Subscription{
		AccountID:       accountID,
		ServiceName:     name,
		Amount:          decimal.NewFromInt(15),
		NextBillingDate: next,
	}
	require.NoError(t, s.CreateSubscription(context.Background(), &sub))
	return sub
}

func chargesFor(sub model.Subscription, n int) []model.Transaction {
	charges := make([]model.Transaction, n)
	for k := 0; k < n; k++ {
		charges[k] = model.Transaction{
			AccountID:      sub.AccountID,
			ItemName:       sub.ServiceName,
			Amount:         sub.Amount,
			Category:       model.CategorySubscription,
			OccurredAt:     sub.NextBillingDate.Add(time.Duration(k) * model.BillingPeriod),
			Automated:      true,
			SubscriptionID: sub.ID,
			PeriodIndex:    sub.PeriodIndex + k,
		}
	}
	return charges
}

func TestSQLiteStorage_CreateAndGetSubscription(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	mustAccount(t, store, "psid-1")

	next := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	sub := createTestSubscription(t, store, "psid-1", "Netflix", next)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, model.SubscriptionActive, sub.Status)

	got, err := store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "Netflix", got.ServiceName)
	assert.True(t, got.NextBillingDate.Equal(next))
	assert.Equal(t, 0, got.PeriodIndex)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(15)))

	_, err = store.GetSubscription(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)

	bad := model.Subscription{AccountID: "psid-1", ServiceName: "Free", Amount: decimal.Zero, NextBillingDate: next}
	assert.ErrorIs(t, store.CreateSubscription(ctx, &bad), common.ErrInvalidAmount)
}

func TestSQLiteStorage_GetDueSubscriptions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	mustAccount(t, store, "psid-1")

	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	overdue := createTestSubscription(t, store, "psid-1", "Netflix", now.Add(-48*time.Hour))
	exact := createTestSubscription(t, store, "psid-1", "Spotify", now)
	createTestSubscription(t, store, "psid-1", "Future", now.Add(time.Nanosecond))
	cancelled := createTestSubscription(t, store, "psid-1", "Gym", now.Add(-72*time.Hour))

	n, err := store.CancelSubscriptions(ctx, "psid-1", "gym")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	due, err := store.GetDueSubscriptions(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, overdue.ID, due[0].ID)
	assert.Equal(t, exact.ID, due[1].ID)

	got, err := store.GetSubscription(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionCancelled, got.Status)
	assert.Equal(t, int64(1), got.Version)
}

func TestSQLiteStorage_PostCharges(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	mustAccount(t, store, "psid-1")

	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	sub := createTestSubscription(t, store, "psid-1", "Netflix", start)

	next := start.Add(3 * model.BillingPeriod)
	posted, err := store.PostCharges(ctx, sub, chargesFor(sub, 3), next, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, posted)

	got, err := store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.PeriodIndex)
	assert.True(t, got.NextBillingDate.Equal(next))
	assert.Equal(t, sub.Version+1, got.Version)

	txns, err := store.GetTransactions(ctx, "psid-1", start, next)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	for k, txn := range txns {
		assert.True(t, txn.Automated)
		assert.Equal(t, sub.ID, txn.SubscriptionID)
		assert.Equal(t, k, txn.PeriodIndex)
		assert.Equal(t, model.CategorySubscription, txn.Category)
		assert.True(t, txn.OccurredAt.Equal(start.Add(time.Duration(k)*model.BillingPeriod)))
	}
}

func TestSQLiteStorage_PostChargesStaleVersion(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	mustAccount(t, store, "psid-1")

	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	sub := createTestSubscription(t, store, "psid-1", "Netflix", start)

	_, err := store.PostCharges(ctx, sub, chargesFor(sub, 1), start.Add(model.BillingPeriod), 1)
	require.NoError(t, err)

	// Replaying with the stale snapshot loses the version check and rolls
	// back, leaving exactly one charge.
	posted, err := store.PostCharges(ctx, sub, chargesFor(sub, 1), start.Add(model.BillingPeriod), 1)
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Equal(t, 0, posted)

	txns, err := store.GetTransactions(ctx, "psid-1", start.Add(-time.Hour), start.Add(365*24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestSQLiteStorage_PostChargesSkipsRecordedPeriods(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	mustAccount(t, store, "psid-1")

	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	sub := createTestSubscription(t, store, "psid-1", "Netflix", start)

	// Simulate a period that was recorded without the subscription being
	// advanced, for example by an earlier partial write.
	leftover := chargesFor(sub, 1)[0]
	require.NoError(t, store.SaveTransaction(ctx, &leftover))

	posted, err := store.PostCharges(ctx, sub, chargesFor(sub, 2), start.Add(2*model.BillingPeriod), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, posted, "the already-recorded period must be skipped")

	txns, err := store.GetTransactions(ctx, "psid-1", start.Add(-time.Hour), start.Add(365*24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, txns, 2)

	got, err := store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.PeriodIndex)
}

func TestSQLiteStorage_PostChargesCancelled(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	mustAccount(t, store, "psid-1")

	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	sub := createTestSubscription(t, store, "psid-1", "Netflix", start)

	_, err := store.CancelSubscriptions(ctx, "psid-1", "Netflix")
	require.NoError(t, err)

	_, err = store.PostCharges(ctx, sub, chargesFor(sub, 1), start.Add(model.BillingPeriod), 1)
	assert.ErrorIs(t, err, common.ErrConflict)

	txns, err := store.GetTransactions(ctx, "psid-1", start.Add(-time.Hour), start.Add(365*24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestSQLiteStorage_MarkReportDelivered(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	mustAccount(t, store, "psid-1")

	first, err := store.MarkReportDelivered(ctx, "psid-1", "2026-03", time.Now())
	require.NoError(t, err)
	assert.True(t, first)

	again, err := store.MarkReportDelivered(ctx, "psid-1", "2026-03", time.Now())
	require.NoError(t, err)
	assert.False(t, again)

	other, err := store.MarkReportDelivered(ctx, "psid-1", "2026-04", time.Now())
	require.NoError(t, err)
	assert.True(t, other)
}
