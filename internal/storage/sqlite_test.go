package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/finbot/internal/common"
	"github.com/Veraticus/finbot/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func mustAccount(t *testing.T, s *SQLiteStorage, id string) {
	t.Helper()
	_, err := s.EnsureAccount(context.Background(), id, time.Now())
	require.NoError(t, err)
}

func TestSQLiteStorage_Migrate(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	// Running again is a no-op.
	require.NoError(t, store.Migrate(ctx))
}

func TestSQLiteStorage_EnsureAccount(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	created, err := store.EnsureAccount(ctx, "psid-1", now)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.EnsureAccount(ctx, "psid-1", now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, created, "second call must not recreate the account")

	account, err := store.GetAccount(ctx, "psid-1")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultCurrency, account.Currency)
	assert.True(t, account.WeeklyLimit.IsZero())
	assert.True(t, account.CreatedAt.Equal(now), "created_at is immutable")

	_, err = store.EnsureAccount(ctx, "  ", now)
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestSQLiteStorage_EnsureAccountConcurrent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := store.EnsureAccount(ctx, "psid-dup", time.Now())
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestSQLiteStorage_SetWeeklyLimit(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	mustAccount(t, store, "psid-1")

	require.NoError(t, store.SetWeeklyLimit(ctx, "psid-1", decimal.RequireFromString("500.25")))
	account, err := store.GetAccount(ctx, "psid-1")
	require.NoError(t, err)
	assert.True(t, account.WeeklyLimit.Equal(decimal.RequireFromString("500.25")))

	err = store.SetWeeklyLimit(ctx, "psid-1", decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, common.ErrInvalidAmount)

	err = store.SetWeeklyLimit(ctx, "missing", decimal.NewFromInt(10))
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = store.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStorage_Transactions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	mustAccount(t, store, "psid-1")
	mustAccount(t, store, "psid-2")

	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		txn     model.Transaction
		name    string
		wantErr error
	}{
		{
			name: "valid expense",
			txn: model.Transaction{AccountID: "psid-1", ItemName: "KFC", Amount: decimal.NewFromInt(30),
				Category: model.CategoryFood, OccurredAt: base.Add(time.Hour)},
		},
		{
			name: "second expense",
			txn: model.Transaction{AccountID: "psid-1", ItemName: "Uber", Amount: decimal.RequireFromString("5.50"),
				Category: model.CategoryTransport, OccurredAt: base.Add(2 * time.Hour)},
		},
		{
			name: "other account",
			txn: model.Transaction{AccountID: "psid-2", ItemName: "Rice", Amount: decimal.NewFromInt(5),
				Category: model.CategoryFood, OccurredAt: base.Add(time.Hour)},
		},
		{
			name: "zero amount rejected",
			txn: model.Transaction{AccountID: "psid-1", ItemName: "Free", Amount: decimal.Zero,
				Category: model.CategoryFood, OccurredAt: base},
			wantErr: common.ErrInvalidAmount,
		},
		{
			name: "empty item rejected",
			txn: model.Transaction{AccountID: "psid-1", ItemName: " ", Amount: decimal.NewFromInt(1),
				Category: model.CategoryFood, OccurredAt: base},
			wantErr: ErrInvalidTransaction,
		},
		{
			name: "unknown category rejected",
			txn: model.Transaction{AccountID: "psid-1", ItemName: "Thing", Amount: decimal.NewFromInt(1),
				Category: "General", OccurredAt: base},
			wantErr: ErrInvalidTransaction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := tt.txn
			err := store.SaveTransaction(ctx, &txn)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, txn.ID)
		})
	}

	txns, err := store.GetTransactions(ctx, "psid-1", base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "KFC", txns[0].ItemName)
	assert.Equal(t, model.CategoryFood, txns[0].Category)
	assert.True(t, txns[1].Amount.Equal(decimal.RequireFromString("5.5")))
	assert.False(t, txns[0].Automated)

	// Window bounds are inclusive.
	txns, err = store.GetTransactions(ctx, "psid-1", base.Add(time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, txns, 1)

	_, err = store.GetTransactions(ctx, "psid-1", base, base.Add(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestSQLiteStorage_UnavailableAfterClose(t *testing.T) {
	store, cleanup := createTestStorage(t)
	cleanup()

	_, err := store.EnsureAccount(context.Background(), "psid-1", time.Now())
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}
