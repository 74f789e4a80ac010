package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSubscription_PeriodsDue(t *testing.T) {
	due := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		now    time.Time
		name   string
		status SubscriptionStatus
		want   int
	}{
		{name: "not yet due", now: due.Add(-time.Second), status: SubscriptionActive, want: 0},
		{name: "exactly due", now: due, status: SubscriptionActive, want: 1},
		{name: "just under one period late", now: due.Add(BillingPeriod - time.Second), status: SubscriptionActive, want: 1},
		{name: "one full period late", now: due.Add(BillingPeriod), status: SubscriptionActive, want: 2},
		{name: "65 days late", now: due.Add(65 * 24 * time.Hour), status: SubscriptionActive, want: 3},
		{name: "cancelled is never due", now: due.Add(65 * 24 * time.Hour), status: SubscriptionCancelled, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := Subscription{
				NextBillingDate: due,
				Status:          tt.status,
				Amount:          decimal.NewFromInt(15),
			}
			assert.Equal(t, tt.want, sub.PeriodsDue(tt.now))
			assert.Equal(t, tt.want > 0, sub.IsDue(tt.now))
		})
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input  string
		want   Category
		wantOK bool
	}{
		{input: "Food/Dining", want: CategoryFood, wantOK: true},
		{input: "  transport ", want: CategoryTransport, wantOK: true},
		{input: "special occasion", want: CategorySpecialOccasion, wantOK: true},
		{input: "General", wantOK: false},
		{input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseCategory(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
			if ok {
				assert.True(t, got.IsValid())
			}
		})
	}
}
