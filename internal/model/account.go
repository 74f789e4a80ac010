// Package model defines the ledger entities shared by every component.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is assigned to accounts created without an explicit currency.
const DefaultCurrency = "USD"

// Account is the financial profile of one chat-platform identity.
type Account struct {
	CreatedAt   time.Time
	ID          string
	Currency    string
	WeeklyLimit decimal.Decimal // zero means no limit is set
}

// HasLimit reports whether a weekly budget is configured.
func (a *Account) HasLimit() bool {
	return a.WeeklyLimit.IsPositive()
}
