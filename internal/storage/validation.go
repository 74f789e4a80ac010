// Package storage provides the data persistence layer for the ledger.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/finbot/internal/common"
	"github.com/Veraticus/finbot/internal/model"
	"github.com/shopspring/decimal"
)

// Validation errors.
var (
	ErrNilContext          = errors.New("context cannot be nil")
	ErrEmptyString         = errors.New("string parameter cannot be empty")
	ErrNilParameter        = errors.New("parameter cannot be nil")
	ErrInvalidDateRange    = errors.New("start date must be before end date")
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrInvalidSubscription = errors.New("invalid subscription")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validatePositive(amount decimal.Decimal, paramName string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be positive, got %s", common.ErrInvalidAmount, paramName, amount)
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.AccountID == "" {
		return fmt.Errorf("%w: missing account ID", ErrInvalidTransaction)
	}
	if strings.TrimSpace(txn.ItemName) == "" {
		return fmt.Errorf("%w: missing item name", ErrInvalidTransaction)
	}
	if txn.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if !txn.Category.IsValid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidTransaction, txn.Category)
	}
	if err := validatePositive(txn.Amount, "amount"); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	return nil
}

// validateSubscription validates a subscription before it is created.
func validateSubscription(sub *model.Subscription) error {
	if sub == nil {
		return fmt.Errorf("%w: subscription", ErrNilParameter)
	}
	if sub.AccountID == "" {
		return fmt.Errorf("%w: missing account ID", ErrInvalidSubscription)
	}
	if strings.TrimSpace(sub.ServiceName) == "" {
		return fmt.Errorf("%w: missing service name", ErrInvalidSubscription)
	}
	if sub.NextBillingDate.IsZero() {
		return fmt.Errorf("%w: missing next billing date", ErrInvalidSubscription)
	}
	if err := validatePositive(sub.Amount, "amount"); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSubscription, err)
	}
	return nil
}
