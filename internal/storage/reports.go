package storage

import (
	"context"
	"time"
)

// MarkReportDelivered records that the report for period was sent to the
// account. It reports false when the pair had already been recorded.
func (s *SQLiteStorage) MarkReportDelivered(ctx context.Context, accountID, period string, at time.Time) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return false, err
	}
	if err := validateString(period, "period"); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO report_deliveries (account_id, period, delivered_at)
		VALUES (?, ?, ?)
	`, accountID, period, at.UTC())
	if err != nil {
		return false, wrapDBError("mark report delivered", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapDBError("mark report delivered", err)
	}
	return n == 1, nil
}
