package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial ledger schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS accounts (
					id TEXT PRIMARY KEY,
					weekly_limit TEXT NOT NULL DEFAULT '0',
					currency TEXT NOT NULL DEFAULT 'USD',
					created_at DATETIME NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS subscriptions (
					id TEXT PRIMARY KEY,
					account_id TEXT NOT NULL,
					service_name TEXT NOT NULL,
					amount TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'active',
					next_billing_date DATETIME NOT NULL,
					period_index INTEGER NOT NULL DEFAULT 0,
					version INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					FOREIGN KEY (account_id) REFERENCES accounts(id)
				)`,
				`CREATE INDEX idx_subscriptions_due ON subscriptions(status, next_billing_date)`,
				`CREATE INDEX idx_subscriptions_account ON subscriptions(account_id)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					account_id TEXT NOT NULL,
					amount TEXT NOT NULL,
					category TEXT NOT NULL,
					item_name TEXT NOT NULL,
					occurred_at DATETIME NOT NULL,
					automated BOOLEAN NOT NULL DEFAULT 0,
					subscription_id TEXT,
					period_index INTEGER,
					created_at DATETIME NOT NULL,
					FOREIGN KEY (account_id) REFERENCES accounts(id),
					FOREIGN KEY (subscription_id) REFERENCES subscriptions(id)
				)`,
				`CREATE INDEX idx_transactions_account_date ON transactions(account_id, occurred_at)`,
				// NULLs are distinct in SQLite, so manual expenses never collide here.
				`CREATE UNIQUE INDEX idx_transactions_billing_period ON transactions(subscription_id, period_index)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Track scheduled report deliveries",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS report_deliveries (
					account_id TEXT NOT NULL,
					period TEXT NOT NULL,
					delivered_at DATETIME NOT NULL,
					PRIMARY KEY (account_id, period),
					FOREIGN KEY (account_id) REFERENCES accounts(id)
				)
			`)
			return err
		},
	},
}

// SchemaVersion returns the schema version currently recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, wrapDBError("get schema version", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return wrapDBError("begin transaction", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
