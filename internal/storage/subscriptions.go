package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/finbot/internal/common"
	"github.com/Veraticus/finbot/internal/model"
	"github.com/google/uuid"
)

const subscriptionColumns = `id, account_id, service_name, amount, status,
	next_billing_date, period_index, version, created_at`

// CreateSubscription stores a new subscription. A missing ID, status or
// CreatedAt is filled in on sub.
func (s *SQLiteStorage) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateSubscription(sub); err != nil {
		return err
	}

	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.Status == "" {
		sub.Status = model.SubscriptionActive
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sub.ID,
		sub.AccountID,
		sub.ServiceName,
		sub.Amount,
		string(sub.Status),
		sub.NextBillingDate.UTC(),
		sub.PeriodIndex,
		sub.Version,
		sub.CreatedAt.UTC(),
		sub.CreatedAt.UTC(),
	)
	if err != nil {
		return wrapDBError("create subscription", err)
	}
	return nil
}

// GetSubscription retrieves a subscription by ID.
func (s *SQLiteStorage) GetSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscription %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, wrapDBError("get subscription", err)
	}
	return &sub, nil
}

// GetDueSubscriptions returns active subscriptions whose next billing date is
// at or before now, earliest first.
func (s *SQLiteStorage) GetDueSubscriptions(ctx context.Context, now time.Time) ([]model.Subscription, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = ? AND next_billing_date <= ?
		ORDER BY next_billing_date, id
	`, string(model.SubscriptionActive), now.UTC())
	if err != nil {
		return nil, wrapDBError("query due subscriptions", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("query due subscriptions", err)
	}
	return subs, nil
}

// CancelSubscriptions cancels the account's active subscriptions with the
// given service name. Cancelling bumps the version so an in-flight billing
// run loses its optimistic check.
func (s *SQLiteStorage) CancelSubscriptions(ctx context.Context, accountID, serviceName string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return 0, err
	}
	if err := validateString(serviceName, "serviceName"); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = ?, version = version + 1, updated_at = ?
		WHERE account_id = ? AND status = ? AND service_name = ? COLLATE NOCASE
	`, string(model.SubscriptionCancelled), time.Now().UTC(), accountID, string(model.SubscriptionActive), serviceName)
	if err != nil {
		return 0, wrapDBError("cancel subscriptions", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBError("cancel subscriptions", err)
	}
	return int(n), nil
}

// PostCharges records billing charges and advances the subscription in a
// single transaction. Charges that already exist for the same
// (subscription, period) are skipped.
func (s *SQLiteStorage) PostCharges(ctx context.Context, sub model.Subscription, charges []model.Transaction, next time.Time, periodIndex int) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(sub.ID, "subscription ID"); err != nil {
		return 0, err
	}
	if periodIndex < sub.PeriodIndex {
		return 0, fmt.Errorf("%w: period index cannot move backwards (%d -> %d)", ErrInvalidSubscription, sub.PeriodIndex, periodIndex)
	}
	if !next.After(sub.NextBillingDate) && len(charges) > 0 {
		return 0, fmt.Errorf("%w: next billing date must advance", ErrInvalidSubscription)
	}

	now := time.Now()
	for i := range charges {
		if charges[i].SubscriptionID != sub.ID {
			return 0, fmt.Errorf("%w: charge %d belongs to subscription %q", ErrInvalidTransaction, i, charges[i].SubscriptionID)
		}
		if err := validateTransaction(&charges[i]); err != nil {
			return 0, fmt.Errorf("charge %d: %w", i, err)
		}
		if charges[i].ID == "" {
			charges[i].ID = uuid.New().String()
		}
		if charges[i].CreatedAt.IsZero() {
			charges[i].CreatedAt = now
		}
	}

	posted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO transactions (`+transactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return wrapDBError("prepare charge insert", err)
		}
		defer func() { _ = stmt.Close() }()

		for i := range charges {
			res, err := stmt.ExecContext(ctx, transactionArgs(&charges[i])...)
			if err != nil {
				return wrapDBError("insert charge", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return wrapDBError("insert charge", err)
			}
			posted += int(n)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET next_billing_date = ?, period_index = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ? AND status = ?
		`, next.UTC(), periodIndex, now.UTC(), sub.ID, sub.Version, string(model.SubscriptionActive))
		if err != nil {
			return wrapDBError("advance subscription", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return wrapDBError("advance subscription", err)
		}
		if n == 0 {
			return fmt.Errorf("subscription %s at version %d: %w", sub.ID, sub.Version, common.ErrConflict)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return posted, nil
}

func scanSubscription(row rowScanner) (model.Subscription, error) {
	var (
		sub    model.Subscription
		status string
	)

	err := row.Scan(
		&sub.ID,
		&sub.AccountID,
		&sub.ServiceName,
		&sub.Amount,
		&status,
		&sub.NextBillingDate,
		&sub.PeriodIndex,
		&sub.Version,
		&sub.CreatedAt,
	)
	if err != nil {
		return model.Subscription{}, err
	}

	sub.Status = model.SubscriptionStatus(status)
	return sub, nil
}
