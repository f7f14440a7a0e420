package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a
// fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Core schema: users, accounts, categories, rules, transactions",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS users (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					email TEXT UNIQUE NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS accounts (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id INTEGER NOT NULL REFERENCES users(id),
					name TEXT NOT NULL,
					iban TEXT DEFAULT '',
					currency TEXT NOT NULL DEFAULT 'EUR',
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_accounts_user ON accounts(user_id)`,

				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id INTEGER NOT NULL REFERENCES users(id),
					name TEXT NOT NULL,
					description TEXT DEFAULT '',
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(user_id, name)
				)`,

				`CREATE TABLE IF NOT EXISTS rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id INTEGER NOT NULL REFERENCES users(id),
					name TEXT NOT NULL,
					description_like TEXT DEFAULT '',
					merchant_pattern TEXT DEFAULT '',
					amount_min TEXT,
					amount_max TEXT,
					date_from DATETIME,
					date_to DATETIME,
					txn_type TEXT DEFAULT '',
					has_category INTEGER,
					category_id INTEGER NOT NULL REFERENCES categories(id),
					priority INTEGER NOT NULL DEFAULT 100,
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_rules_user_priority ON rules(user_id, priority)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					account_id INTEGER NOT NULL REFERENCES accounts(id),
					hash TEXT UNIQUE NOT NULL,
					date DATETIME NOT NULL,
					booking_date DATETIME,
					amount TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					reference TEXT DEFAULT '',
					reference_number TEXT DEFAULT '',
					partner_name TEXT DEFAULT '',
					partner_iban TEXT DEFAULT '',
					merchant_name TEXT DEFAULT '',
					payment_method TEXT DEFAULT '',
					card_brand TEXT DEFAULT '',
					txn_type TEXT NOT NULL DEFAULT 'expense',
					category_id INTEGER REFERENCES categories(id),
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_account_date ON transactions(account_id, date)`,
				`CREATE INDEX idx_transactions_merchant ON transactions(account_id, merchant_name)`,
				`CREATE INDEX idx_transactions_hash ON transactions(hash)`,
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
		Description: "Recurring patterns, anomalies, notifications, preferences",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS recurring_transactions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					account_id INTEGER NOT NULL REFERENCES accounts(id),
					user_id INTEGER NOT NULL REFERENCES users(id),
					description TEXT NOT NULL,
					merchant_name TEXT DEFAULT '',
					display_name TEXT DEFAULT '',
					amount TEXT NOT NULL,
					frequency TEXT NOT NULL,
					next_expected_date DATETIME NOT NULL,
					last_occurrence_date DATETIME NOT NULL,
					occurrence_count INTEGER NOT NULL DEFAULT 1,
					confidence_score REAL NOT NULL DEFAULT 0,
					is_active INTEGER NOT NULL DEFAULT 1,
					is_ignored INTEGER NOT NULL DEFAULT 0,
					user_notes TEXT DEFAULT '',
					similar_descriptions TEXT NOT NULL DEFAULT '[]',
					transaction_ids TEXT NOT NULL DEFAULT '[]',
					detected_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(account_id, description, frequency)
				)`,
				`CREATE INDEX idx_recurring_user_active ON recurring_transactions(user_id, is_active)`,
				`CREATE INDEX idx_recurring_next_expected ON recurring_transactions(frequency, next_expected_date)`,

				`CREATE TABLE IF NOT EXISTS anomalies (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id INTEGER NOT NULL REFERENCES users(id),
					account_id INTEGER NOT NULL REFERENCES accounts(id),
					transaction_id INTEGER REFERENCES transactions(id),
					recurring_id INTEGER REFERENCES recurring_transactions(id),
					anomaly_type TEXT NOT NULL,
					severity TEXT NOT NULL DEFAULT 'info',
					title TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					reason TEXT NOT NULL DEFAULT '',
					anomaly_score TEXT NOT NULL DEFAULT '0',
					expected_value TEXT,
					actual_value TEXT,
					deviation_percent TEXT,
					context_data TEXT NOT NULL DEFAULT '{}',
					is_dismissed INTEGER NOT NULL DEFAULT 0,
					is_false_positive INTEGER NOT NULL DEFAULT 0,
					is_confirmed INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_anomalies_user_created ON anomalies(user_id, created_at)`,
				`CREATE INDEX idx_anomalies_dedup ON anomalies(user_id, account_id, anomaly_type, created_at)`,

				`CREATE TABLE IF NOT EXISTS anomaly_notifications (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id INTEGER NOT NULL REFERENCES users(id),
					anomaly_id INTEGER NOT NULL REFERENCES anomalies(id),
					is_read INTEGER NOT NULL DEFAULT 0,
					via_email INTEGER NOT NULL DEFAULT 0,
					via_push INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(user_id, anomaly_id)
				)`,

				`CREATE TABLE IF NOT EXISTS anomaly_preferences (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id INTEGER UNIQUE NOT NULL REFERENCES users(id),
					detection_enabled INTEGER NOT NULL DEFAULT 1,
					sensitivity TEXT NOT NULL DEFAULT 'medium',
					enabled_types TEXT NOT NULL DEFAULT '[]',
					amount_deviation_percent TEXT NOT NULL DEFAULT '50',
					spending_spike_multiplier TEXT NOT NULL DEFAULT '2',
					days_before_inactive INTEGER NOT NULL DEFAULT 30,
					notify_on_critical INTEGER NOT NULL DEFAULT 1,
					notify_on_warning INTEGER NOT NULL DEFAULT 0,
					notify_on_info INTEGER NOT NULL DEFAULT 0,
					email_notifications INTEGER NOT NULL DEFAULT 0,
					push_notifications INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
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
		Version:     3,
		Description: "Import sessions and exchange rates",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS imports (
					id TEXT PRIMARY KEY,
					account_id INTEGER NOT NULL REFERENCES accounts(id),
					user_id INTEGER NOT NULL REFERENCES users(id),
					source TEXT NOT NULL DEFAULT '',
					file_name TEXT NOT NULL DEFAULT '',
					total INTEGER NOT NULL DEFAULT 0,
					succeeded INTEGER NOT NULL DEFAULT 0,
					failed INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_imports_account ON imports(account_id, created_at)`,

				`CREATE TABLE IF NOT EXISTS import_transactions (
					import_id TEXT NOT NULL REFERENCES imports(id),
					transaction_id INTEGER NOT NULL REFERENCES transactions(id),
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(import_id, transaction_id)
				)`,

				`CREATE TABLE IF NOT EXISTS exchange_rates (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					base TEXT NOT NULL DEFAULT 'USD',
					rates TEXT NOT NULL DEFAULT '{}',
					fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		slog.Info("applying migration",
			"version", migration.Version,
			"description", migration.Description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set schema version %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
