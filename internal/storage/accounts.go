package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/finbot/internal/common"
	"github.com/Veraticus/finbot/internal/model"
	"github.com/shopspring/decimal"
)

// EnsureAccount creates the account if it does not exist yet.
func (s *SQLiteStorage) EnsureAccount(ctx context.Context, id string, now time.Time) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(id, "id"); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO accounts (id, weekly_limit, currency, created_at)
		VALUES (?, ?, ?, ?)
	`, id, decimal.Zero, model.DefaultCurrency, now.UTC())
	if err != nil {
		return false, wrapDBError("ensure account", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapDBError("ensure account", err)
	}
	return n == 1, nil
}

// GetAccount retrieves an account by its external identity.
func (s *SQLiteStorage) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var account model.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, weekly_limit, currency, created_at
		FROM accounts
		WHERE id = ?
	`, id).Scan(&account.ID, &account.WeeklyLimit, &account.Currency, &account.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, wrapDBError("get account", err)
	}
	return &account, nil
}

// ListAccounts returns every account, oldest first.
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, weekly_limit, currency, created_at
		FROM accounts
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, wrapDBError("list accounts", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		var account model.Account
		if err := rows.Scan(&account.ID, &account.WeeklyLimit, &account.Currency, &account.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("list accounts", err)
	}
	return accounts, nil
}

// SetWeeklyLimit overwrites the account's weekly budget. Zero disables it.
func (s *SQLiteStorage) SetWeeklyLimit(ctx context.Context, id string, limit decimal.Decimal) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if limit.IsNegative() {
		return fmt.Errorf("%w: weekly limit cannot be negative, got %s", common.ErrInvalidAmount, limit)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET weekly_limit = ? WHERE id = ?`, limit, id)
	if err != nil {
		return wrapDBError("set weekly limit", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("set weekly limit", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, common.ErrNotFound)
	}
	return nil
}
