package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/finsentry/finsentry/internal/common"
	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/service"
)

const anomalyColumns = `id, user_id, account_id, transaction_id, recurring_id,
	anomaly_type, severity, title, description, reason, anomaly_score,
	expected_value, actual_value, deviation_percent, context_data,
	is_dismissed, is_false_positive, is_confirmed, created_at`

func scanAnomaly(scanner interface{ Scan(...any) error }) (*model.Anomaly, error) {
	var (
		anomaly       model.Anomaly
		transactionID sql.NullInt64
		recurringID   sql.NullInt64
		score         string
		expected      sql.NullString
		actual        sql.NullString
		deviation     sql.NullString
		contextJSON   string
	)
	err := scanner.Scan(&anomaly.ID, &anomaly.UserID, &anomaly.AccountID,
		&transactionID, &recurringID, &anomaly.Type, &anomaly.Severity,
		&anomaly.Title, &anomaly.Description, &anomaly.Reason, &score,
		&expected, &actual, &deviation, &contextJSON,
		&anomaly.IsDismissed, &anomaly.IsFalsePositive, &anomaly.IsConfirmed,
		&anomaly.CreatedAt)
	if err != nil {
		return nil, err
	}

	if transactionID.Valid {
		anomaly.TransactionID = &transactionID.Int64
	}
	if recurringID.Valid {
		anomaly.RecurringID = &recurringID.Int64
	}
	if anomaly.Score, err = scanDecimal(score); err != nil {
		return nil, fmt.Errorf("failed to parse anomaly score: %w", err)
	}
	if anomaly.ExpectedValue, err = nullDecimal(expected); err != nil {
		return nil, fmt.Errorf("failed to parse expected value: %w", err)
	}
	if anomaly.ActualValue, err = nullDecimal(actual); err != nil {
		return nil, fmt.Errorf("failed to parse actual value: %w", err)
	}
	if anomaly.DeviationPercent, err = nullDecimal(deviation); err != nil {
		return nil, fmt.Errorf("failed to parse deviation: %w", err)
	}
	if err := json.Unmarshal([]byte(contextJSON), &anomaly.ContextData); err != nil {
		return nil, fmt.Errorf("failed to parse context data: %w", err)
	}
	return &anomaly, nil
}

// HasRecentAnomaly reports whether any anomaly of the given type was
// recorded for the user's account since the cutoff.
func (s *SQLiteStorage) HasRecentAnomaly(ctx context.Context, userID, accountID int64, anomalyType model.AnomalyType, since time.Time) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateID(userID, "userID"); err != nil {
		return false, err
	}
	if err := validateID(accountID, "accountID"); err != nil {
		return false, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM anomalies
		 WHERE user_id = ? AND account_id = ? AND anomaly_type = ? AND created_at >= ?`,
		userID, accountID, string(anomalyType), since).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent anomalies: %w", err)
	}
	return count > 0, nil
}

// SaveAnomaly inserts an anomaly and sets its ID and creation time.
func (s *SQLiteStorage) SaveAnomaly(ctx context.Context, anomaly *model.Anomaly) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAnomaly(anomaly); err != nil {
		return err
	}

	contextData := anomaly.ContextData
	if contextData == nil {
		contextData = map[string]any{}
	}
	contextJSON, err := json.Marshal(contextData)
	if err != nil {
		return fmt.Errorf("failed to encode context data: %w", err)
	}

	var transactionID, recurringID any
	if anomaly.TransactionID != nil {
		transactionID = *anomaly.TransactionID
	}
	if anomaly.RecurringID != nil {
		recurringID = *anomaly.RecurringID
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO anomalies (
			user_id, account_id, transaction_id, recurring_id, anomaly_type,
			severity, title, description, reason, anomaly_score,
			expected_value, actual_value, deviation_percent, context_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		anomaly.UserID, anomaly.AccountID, transactionID, recurringID,
		string(anomaly.Type), string(anomaly.Severity), anomaly.Title,
		anomaly.Description, anomaly.Reason, anomaly.Score.String(),
		decimalString(anomaly.ExpectedValue), decimalString(anomaly.ActualValue),
		decimalString(anomaly.DeviationPercent), string(contextJSON))
	if err != nil {
		return fmt.Errorf("failed to save anomaly: %w", err)
	}

	anomaly.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get anomaly ID: %w", err)
	}
	if anomaly.CreatedAt.IsZero() {
		anomaly.CreatedAt = time.Now().UTC()
	}
	return nil
}

// SaveNotification records channel delivery for one anomaly. Duplicate
// (user, anomaly) pairs are ignored.
func (s *SQLiteStorage) SaveNotification(ctx context.Context, notification *model.AnomalyNotification) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if notification == nil {
		return fmt.Errorf("%w: notification", ErrNilParameter)
	}
	if err := validateID(notification.UserID, "notification.UserID"); err != nil {
		return err
	}
	if err := validateID(notification.AnomalyID, "notification.AnomalyID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO anomaly_notifications
			(user_id, anomaly_id, is_read, via_email, via_push)
		 VALUES (?, ?, 0, ?, ?)`,
		notification.UserID, notification.AnomalyID,
		notification.NotifiedViaEmail, notification.NotifiedViaPush)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get notification ID: %w", err)
	}
	notification.ID = id
	return nil
}

// ListAnomalies returns anomalies matching the filter, newest first.
func (s *SQLiteStorage) ListAnomalies(ctx context.Context, filter service.AnomalyFilter) ([]model.Anomaly, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(filter.UserID, "filter.UserID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + anomalyColumns + ` FROM anomalies WHERE user_id = ?`
	args := []any{filter.UserID}

	if filter.AccountID != nil {
		query += ` AND account_id = ?`
		args = append(args, *filter.AccountID)
	}
	if filter.Type != "" {
		query += ` AND anomaly_type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}
	if filter.Undismissed {
		query += ` AND is_dismissed = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var anomalies []model.Anomaly
	for rows.Next() {
		anomaly, scanErr := scanAnomaly(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", scanErr)
		}
		anomalies = append(anomalies, *anomaly)
	}
	return anomalies, rows.Err()
}

// DismissAnomaly marks an anomaly dismissed, optionally as a false positive.
func (s *SQLiteStorage) DismissAnomaly(ctx context.Context, id int64, falsePositive bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE anomalies SET is_dismissed = 1, is_false_positive = ? WHERE id = ?`,
		falsePositive, id)
	if err != nil {
		return fmt.Errorf("failed to dismiss anomaly: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("anomaly %d: %w", id, common.ErrNotFound)
	}
	return nil
}
