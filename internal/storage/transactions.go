package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/finbot/internal/model"
	"github.com/google/uuid"
)

const transactionColumns = `id, account_id, amount, category, item_name, occurred_at,
	automated, subscription_id, period_index, created_at`

// SaveTransaction appends a transaction to the ledger. A missing ID or
// CreatedAt is filled in on txn.
func (s *SQLiteStorage) SaveTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}

	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, transactionArgs(txn)...)
	if err != nil {
		return wrapDBError("save transaction", err)
	}
	return nil
}

// GetTransactions returns the account's transactions that occurred in
// [start, end], oldest first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, accountID string, start, end time.Time) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, end, start)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = ? AND occurred_at >= ? AND occurred_at <= ?
		ORDER BY occurred_at, created_at, id
	`, accountID, start.UTC(), end.UTC())
	if err != nil {
		return nil, wrapDBError("query transactions", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("query transactions", err)
	}
	return txns, nil
}

// transactionArgs returns the insert arguments matching transactionColumns.
func transactionArgs(txn *model.Transaction) []any {
	var subscriptionID sql.NullString
	var periodIndex sql.NullInt64
	if txn.SubscriptionID != "" {
		subscriptionID = sql.NullString{String: txn.SubscriptionID, Valid: true}
		periodIndex = sql.NullInt64{Int64: int64(txn.PeriodIndex), Valid: true}
	}

	return []any{
		txn.ID,
		txn.AccountID,
		txn.Amount,
		string(txn.Category),
		txn.ItemName,
		txn.OccurredAt.UTC(),
		txn.Automated,
		subscriptionID,
		periodIndex,
		txn.CreatedAt.UTC(),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (model.Transaction, error) {
	var (
		txn            model.Transaction
		category       string
		subscriptionID sql.NullString
		periodIndex    sql.NullInt64
	)

	err := row.Scan(
		&txn.ID,
		&txn.AccountID,
		&txn.Amount,
		&category,
		&txn.ItemName,
		&txn.OccurredAt,
		&txn.Automated,
		&subscriptionID,
		&periodIndex,
		&txn.CreatedAt,
	)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("failed to scan transaction: %w", err)
	}

	txn.Category = model.Category(category)
	txn.SubscriptionID = subscriptionID.String
	txn.PeriodIndex = int(periodIndex.Int64)
	return txn, nil
}
