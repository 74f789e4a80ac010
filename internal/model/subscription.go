package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingPeriod is the fixed interval between subscription charges.
const BillingPeriod = 30 * 24 * time.Hour

// SubscriptionStatus is the scheduling state of a subscription.
type SubscriptionStatus string

// Subscription statuses.
const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Subscription is a recurring obligation that the billing engine charges
// once per BillingPeriod.
type Subscription struct {
	NextBillingDate time.Time
	CreatedAt       time.Time
	ID              string
	AccountID       string
	ServiceName     string
	Status          SubscriptionStatus
	Amount          decimal.Decimal
	PeriodIndex     int   // number of periods posted so far
	Version         int64 // bumped on every update, used for optimistic locking
}

// IsDue reports whether the subscription should be charged at now.
func (s *Subscription) IsDue(now time.Time) bool {
	return s.Status == SubscriptionActive && !s.NextBillingDate.After(now)
}

// PeriodsDue returns how many billing periods are owed at now, or zero when
// the subscription is not due.
func (s *Subscription) PeriodsDue(now time.Time) int {
	if !s.IsDue(now) {
		return 0
	}
	return int(now.Sub(s.NextBillingDate)/BillingPeriod) + 1
}
