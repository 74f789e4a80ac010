package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable posted financial fact.
type Transaction struct {
	OccurredAt     time.Time
	CreatedAt      time.Time
	ID             string
	AccountID      string
	ItemName       string
	Category       Category
	SubscriptionID string // set only for billing charges
	Amount         decimal.Decimal
	PeriodIndex    int  // billing period the charge covers, meaningful when Automated
	Automated      bool // posted by the billing engine rather than typed by the user
}
