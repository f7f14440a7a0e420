package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/finsentry/finsentry/internal/common"
	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/service"
)

const recurringColumns = `id, account_id, user_id, description, merchant_name,
	display_name, amount, frequency, next_expected_date, last_occurrence_date,
	occurrence_count, confidence_score, is_active, is_ignored, user_notes,
	similar_descriptions, transaction_ids, detected_at, updated_at`

func scanRecurring(scanner interface{ Scan(...any) error }) (*model.RecurringTransaction, error) {
	var (
		rec         model.RecurringTransaction
		amount      string
		frequency   string
		similarJSON string
		txnIDsJSON  string
	)
	err := scanner.Scan(&rec.ID, &rec.AccountID, &rec.UserID, &rec.Description,
		&rec.MerchantName, &rec.DisplayName, &amount, &frequency,
		&rec.NextExpectedDate, &rec.LastOccurrence, &rec.OccurrenceCount,
		&rec.ConfidenceScore, &rec.IsActive, &rec.IsIgnored, &rec.UserNotes,
		&similarJSON, &txnIDsJSON, &rec.DetectedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rec.Frequency = model.Frequency(frequency)
	if rec.Amount, err = scanDecimal(amount); err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	if err := json.Unmarshal([]byte(similarJSON), &rec.SimilarDescs); err != nil {
		return nil, fmt.Errorf("failed to parse similar descriptions: %w", err)
	}
	if err := json.Unmarshal([]byte(txnIDsJSON), &rec.TransactionIDs); err != nil {
		return nil, fmt.Errorf("failed to parse transaction IDs: %w", err)
	}
	return &rec, nil
}

// UpsertRecurring inserts a detected pattern or refreshes the existing row
// keyed by (account, description, frequency). Returns the stored row and
// whether it was newly created. User-curated fields (display name, notes,
// ignored flag) survive re-detection.
func (s *SQLiteStorage) UpsertRecurring(ctx context.Context, userID, accountID int64, pattern *model.RecurringPattern) (*model.RecurringTransaction, bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, false, err
	}
	if err := validateID(userID, "userID"); err != nil {
		return nil, false, err
	}
	if err := validateID(accountID, "accountID"); err != nil {
		return nil, false, err
	}
	if err := validatePattern(pattern); err != nil {
		return nil, false, err
	}

	similarJSON, err := json.Marshal(pattern.SimilarDescs)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode similar descriptions: %w", err)
	}
	txnIDsJSON, err := json.Marshal(pattern.TransactionIDs)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode transaction IDs: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM recurring_transactions
		 WHERE account_id = ? AND description = ? AND frequency = ?`,
		accountID, pattern.Description, string(pattern.Frequency)).Scan(&existingID)

	created := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		result, insertErr := tx.ExecContext(ctx,
			`INSERT INTO recurring_transactions (
				account_id, user_id, description, merchant_name, amount,
				frequency, next_expected_date, last_occurrence_date,
				occurrence_count, confidence_score, is_active,
				similar_descriptions, transaction_ids
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			accountID, userID, pattern.Description, pattern.MerchantName,
			pattern.Amount.String(), string(pattern.Frequency),
			pattern.NextExpectedDate, pattern.LastOccurrenceDate,
			pattern.OccurrenceCount, pattern.ConfidenceScore,
			string(similarJSON), string(txnIDsJSON))
		if insertErr != nil {
			return nil, false, fmt.Errorf("failed to insert recurring pattern: %w", insertErr)
		}
		existingID, err = result.LastInsertId()
		if err != nil {
			return nil, false, fmt.Errorf("failed to get recurring ID: %w", err)
		}
		created = true
	case err != nil:
		return nil, false, fmt.Errorf("failed to look up recurring pattern: %w", err)
	default:
		_, updateErr := tx.ExecContext(ctx,
			`UPDATE recurring_transactions SET
				merchant_name = ?, amount = ?, next_expected_date = ?,
				last_occurrence_date = ?, occurrence_count = ?,
				confidence_score = ?, is_active = 1,
				similar_descriptions = ?, transaction_ids = ?,
				updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`,
			pattern.MerchantName, pattern.Amount.String(),
			pattern.NextExpectedDate, pattern.LastOccurrenceDate,
			pattern.OccurrenceCount, pattern.ConfidenceScore,
			string(similarJSON), string(txnIDsJSON), existingID)
		if updateErr != nil {
			return nil, false, fmt.Errorf("failed to update recurring pattern: %w", updateErr)
		}
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+recurringColumns+` FROM recurring_transactions WHERE id = ?`, existingID)
	rec, err := scanRecurring(row)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load recurring pattern: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit recurring upsert: %w", err)
	}
	return rec, created, nil
}

// GetRecurring returns one recurring pattern by ID.
func (s *SQLiteStorage) GetRecurring(ctx context.Context, id int64) (*model.RecurringTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recurringColumns+` FROM recurring_transactions WHERE id = ?`, id)
	rec, err := scanRecurring(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recurring pattern %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recurring pattern: %w", err)
	}
	return rec, nil
}

// ListRecurring returns recurring patterns matching the filter, highest
// confidence first.
func (s *SQLiteStorage) ListRecurring(ctx context.Context, filter service.RecurringFilter) ([]model.RecurringTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(filter.UserID, "filter.UserID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + recurringColumns + ` FROM recurring_transactions WHERE user_id = ?`
	args := []any{filter.UserID}

	if filter.AccountID != nil {
		query += ` AND account_id = ?`
		args = append(args, *filter.AccountID)
	}
	if filter.Frequency != "" {
		query += ` AND frequency = ?`
		args = append(args, string(filter.Frequency))
	}
	if filter.OnlyActive {
		query += ` AND is_active = 1 AND is_ignored = 0`
	}
	if filter.OnlyIgnore {
		query += ` AND is_ignored = 1`
	}
	query += ` ORDER BY confidence_score DESC, id ASC`

	return s.queryRecurring(ctx, query, args...)
}

// ActiveRecurring returns non-ignored active patterns for one account.
func (s *SQLiteStorage) ActiveRecurring(ctx context.Context, accountID int64) ([]model.RecurringTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(accountID, "accountID"); err != nil {
		return nil, err
	}

	return s.queryRecurring(ctx,
		`SELECT `+recurringColumns+` FROM recurring_transactions
		 WHERE account_id = ? AND is_active = 1 AND is_ignored = 0
		 ORDER BY next_expected_date ASC`, accountID)
}

func (s *SQLiteStorage) queryRecurring(ctx context.Context, query string, args ...any) ([]model.RecurringTransaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recurring patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.RecurringTransaction
	for rows.Next() {
		rec, scanErr := scanRecurring(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan recurring pattern: %w", scanErr)
		}
		patterns = append(patterns, *rec)
	}
	return patterns, rows.Err()
}

// SetRecurringIgnored flips the user's ignore flag for one pattern.
func (s *SQLiteStorage) SetRecurringIgnored(ctx context.Context, id int64, ignored bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE recurring_transactions
		 SET is_ignored = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		ignored, id)
	if err != nil {
		return fmt.Errorf("failed to update ignore flag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("recurring pattern %d: %w", id, common.ErrNotFound)
	}
	return nil
}

// UpdateRecurringDetails updates the user-editable fields of a pattern.
// Nil fields are left untouched.
func (s *SQLiteStorage) UpdateRecurringDetails(ctx context.Context, id int64, displayName, userNotes *string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}
	if displayName == nil && userNotes == nil {
		return nil
	}

	query := `UPDATE recurring_transactions SET updated_at = CURRENT_TIMESTAMP`
	var args []any
	if displayName != nil {
		query += `, display_name = ?`
		args = append(args, *displayName)
	}
	if userNotes != nil {
		query += `, user_notes = ?`
		args = append(args, *userNotes)
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update recurring details: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("recurring pattern %d: %w", id, common.ErrNotFound)
	}
	return nil
}
