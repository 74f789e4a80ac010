package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/finbot/internal/model"
	"github.com/Veraticus/finbot/internal/service"
	"github.com/Veraticus/finbot/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct {
	err    error
	slices []service.ChartSlice
}

func (r *stubRenderer) RenderPie(slices []service.ChartSlice) ([]byte, error) {
	r.slices = slices
	if r.err != nil {
		return nil, r.err
	}
	return []byte("png"), nil
}

func TestAggregator_EmptyWindow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.MustEnsureAccount("psid-1")

	agg := NewAggregator(db.Storage, &testutil.RecordingNotifier{}, nil, time.UTC, nil)
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	report, err := agg.Aggregate(context.Background(), "psid-1", StartOfMonth(now, time.UTC), now)
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Empty(t, report.Categories)
}

func TestAggregator_GroupsInFirstSeenOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.MustEnsureAccount("psid-1")
	db.MustEnsureAccount("psid-2")

	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	db.MustAddExpense("psid-1", "Uber", "5", model.CategoryTransport, base)
	db.MustAddExpense("psid-1", "KFC", "30", model.CategoryFood, base.Add(time.Hour))
	db.MustAddExpense("psid-1", "Taxi", "12.50", model.CategoryTransport, base.Add(2*time.Hour))
	db.MustAddExpense("psid-1", "Rice", "5", model.CategoryFood, base.Add(3*time.Hour))
	db.MustAddExpense("psid-2", "Other", "999", model.CategoryShopping, base.Add(time.Hour))
	db.MustAddExpense("psid-1", "Outside", "100", model.CategoryHealth, base.Add(-time.Hour))

	agg := NewAggregator(db.Storage, &testutil.RecordingNotifier{}, nil, time.UTC, nil)
	report, err := agg.Aggregate(context.Background(), "psid-1", base, base.Add(24*time.Hour))
	require.NoError(t, err)

	assert.False(t, report.Empty())
	assert.Equal(t, 4, report.Count)
	assert.True(t, report.Total.Equal(decimal.RequireFromString("52.5")))
	require.Len(t, report.Categories, 2)
	assert.Equal(t, model.CategoryTransport, report.Categories[0].Category)
	assert.True(t, report.Categories[0].Amount.Equal(decimal.RequireFromString("17.5")))
	assert.Equal(t, 2, report.Categories[0].Count)
	assert.Equal(t, model.CategoryFood, report.Categories[1].Category)
	assert.True(t, report.Categories[1].Amount.Equal(decimal.NewFromInt(35)))
}

func TestAggregator_RunMonthlyReport(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	t.Run("no data", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		db.MustEnsureAccount("psid-1")
		// Last month's spend is outside the window.
		db.MustAddExpense("psid-1", "old", "10", model.CategoryFood, time.Date(2026, 9, 30, 23, 0, 0, 0, time.UTC))

		notifier := &testutil.RecordingNotifier{}
		renderer := &stubRenderer{}
		report, err := NewAggregator(db.Storage, notifier, renderer, time.UTC, nil).RunMonthlyReport(context.Background(), "psid-1", now)
		require.NoError(t, err)

		assert.True(t, report.Empty())
		assert.Equal(t, []string{NoDataMessage}, notifier.Texts())
		assert.Empty(t, notifier.Images())
		assert.Nil(t, renderer.slices)
	})

	t.Run("text and chart", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		db.MustEnsureAccount("psid-1")
		db.MustAddExpense("psid-1", "KFC", "30", model.CategoryFood, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
		db.MustAddExpense("psid-1", "Netflix", "15", model.CategorySubscription, time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC))

		notifier := &testutil.RecordingNotifier{}
		renderer := &stubRenderer{}
		_, err := NewAggregator(db.Storage, notifier, renderer, time.UTC, nil).RunMonthlyReport(context.Background(), "psid-1", now)
		require.NoError(t, err)

		require.Len(t, notifier.Texts(), 1)
		assert.Equal(t, "Monthly Report:\nTotal: $45.00\n- Food/Dining: $30.00\n- Subscription: $15.00\n", notifier.Texts()[0])
		require.Len(t, notifier.Images(), 1)
		require.Len(t, renderer.slices, 2)
		assert.Equal(t, "Food/Dining", renderer.slices[0].Label)
		assert.InDelta(t, 30.0, renderer.slices[0].Value, 0.001)
	})

	t.Run("render failure still sends text", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		db.MustEnsureAccount("psid-1")
		db.MustAddExpense("psid-1", "KFC", "30", model.CategoryFood, time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC))

		notifier := &testutil.RecordingNotifier{}
		renderer := &stubRenderer{err: errors.New("no fonts")}
		_, err := NewAggregator(db.Storage, notifier, renderer, time.UTC, nil).RunMonthlyReport(context.Background(), "psid-1", now)
		require.NoError(t, err)

		assert.Len(t, notifier.Texts(), 1)
		assert.Empty(t, notifier.Images())
	})
}

func TestAggregator_RunPeriodReport(t *testing.T) {
	month := time.Date(2026, 9, 30, 23, 59, 59, 0, time.UTC)

	t.Run("covers the whole month and names it", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		db.MustEnsureAccount("psid-1")
		db.MustAddExpense("psid-1", "rent", "400", model.CategoryLiving, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
		db.MustAddExpense("psid-1", "KFC", "30", model.CategoryFood, time.Date(2026, 9, 30, 23, 59, 0, 0, time.UTC))
		db.MustAddExpense("psid-1", "Taxi", "10", model.CategoryTransport, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))

		notifier := &testutil.RecordingNotifier{}
		report, err := NewAggregator(db.Storage, notifier, &stubRenderer{}, time.UTC, nil).RunPeriodReport(context.Background(), "psid-1", month)
		require.NoError(t, err)

		assert.Equal(t, "2026-09", report.Period)
		assert.Equal(t, 2, report.Count)
		require.Len(t, notifier.Texts(), 1)
		assert.Equal(t, "Monthly Report (2026-09):\nTotal: $430.00\n- Living/Utilities: $400.00\n- Food/Dining: $30.00\n", notifier.Texts()[0])
		assert.Len(t, notifier.Images(), 1)
	})

	t.Run("no data names the month", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		db.MustEnsureAccount("psid-1")

		notifier := &testutil.RecordingNotifier{}
		report, err := NewAggregator(db.Storage, notifier, nil, time.UTC, nil).RunPeriodReport(context.Background(), "psid-1", month)
		require.NoError(t, err)

		assert.True(t, report.Empty())
		assert.Equal(t, []string{"No data found for 2026-09."}, notifier.Texts())
	})
}

func TestStartOfMonthAndPeriod(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	assert.True(t, StartOfMonth(now, time.UTC).Equal(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-10", Period(now, time.UTC))
}
