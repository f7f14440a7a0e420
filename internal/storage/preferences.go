package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/finsentry/finsentry/internal/model"
)

const preferenceColumns = `id, user_id, detection_enabled, sensitivity,
	enabled_types, amount_deviation_percent, spending_spike_multiplier,
	days_before_inactive, notify_on_critical, notify_on_warning,
	notify_on_info, email_notifications, push_notifications,
	created_at, updated_at`

func scanPreferences(scanner interface{ Scan(...any) error }) (*model.AnomalyPreferences, error) {
	var (
		prefs       model.AnomalyPreferences
		sensitivity string
		typesJSON   string
		deviation   string
		spike       string
	)
	err := scanner.Scan(&prefs.ID, &prefs.UserID, &prefs.DetectionEnabled,
		&sensitivity, &typesJSON, &deviation, &spike,
		&prefs.DaysBeforeInactive, &prefs.NotifyOnCritical,
		&prefs.NotifyOnWarning, &prefs.NotifyOnInfo,
		&prefs.EmailNotifications, &prefs.PushNotifications,
		&prefs.CreatedAt, &prefs.UpdatedAt)
	if err != nil {
		return nil, err
	}

	prefs.Sensitivity = model.Sensitivity(sensitivity)
	if err := json.Unmarshal([]byte(typesJSON), &prefs.EnabledTypes); err != nil {
		return nil, fmt.Errorf("failed to parse enabled types: %w", err)
	}
	if prefs.AmountDeviationPercent, err = scanDecimal(deviation); err != nil {
		return nil, fmt.Errorf("failed to parse deviation percent: %w", err)
	}
	if prefs.SpendingSpikeFactor, err = scanDecimal(spike); err != nil {
		return nil, fmt.Errorf("failed to parse spike multiplier: %w", err)
	}
	return &prefs, nil
}

// GetOrCreatePreferences returns the user's anomaly preferences, creating
// the default row on first access.
func (s *SQLiteStorage) GetOrCreatePreferences(ctx context.Context, userID int64) (*model.AnomalyPreferences, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(userID, "userID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+preferenceColumns+` FROM anomaly_preferences WHERE user_id = ?`, userID)
	prefs, err := scanPreferences(row)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}

	defaults := model.DefaultAnomalyPreferences(userID)
	if err := s.SavePreferences(ctx, defaults); err != nil {
		return nil, err
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT `+preferenceColumns+` FROM anomaly_preferences WHERE user_id = ?`, userID)
	prefs, err = scanPreferences(row)
	if err != nil {
		return nil, fmt.Errorf("failed to load created preferences: %w", err)
	}
	return prefs, nil
}

// SavePreferences inserts or replaces the user's anomaly preferences.
func (s *SQLiteStorage) SavePreferences(ctx context.Context, prefs *model.AnomalyPreferences) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if prefs == nil {
		return fmt.Errorf("%w: prefs", ErrNilParameter)
	}
	if err := validateID(prefs.UserID, "prefs.UserID"); err != nil {
		return err
	}

	typesJSON, err := json.Marshal(prefs.EnabledTypes)
	if err != nil {
		return fmt.Errorf("failed to encode enabled types: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO anomaly_preferences (
			user_id, detection_enabled, sensitivity, enabled_types,
			amount_deviation_percent, spending_spike_multiplier,
			days_before_inactive, notify_on_critical, notify_on_warning,
			notify_on_info, email_notifications, push_notifications
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			detection_enabled = excluded.detection_enabled,
			sensitivity = excluded.sensitivity,
			enabled_types = excluded.enabled_types,
			amount_deviation_percent = excluded.amount_deviation_percent,
			spending_spike_multiplier = excluded.spending_spike_multiplier,
			days_before_inactive = excluded.days_before_inactive,
			notify_on_critical = excluded.notify_on_critical,
			notify_on_warning = excluded.notify_on_warning,
			notify_on_info = excluded.notify_on_info,
			email_notifications = excluded.email_notifications,
			push_notifications = excluded.push_notifications,
			updated_at = CURRENT_TIMESTAMP`,
		prefs.UserID, prefs.DetectionEnabled, string(prefs.Sensitivity),
		string(typesJSON), prefs.AmountDeviationPercent.String(),
		prefs.SpendingSpikeFactor.String(), prefs.DaysBeforeInactive,
		prefs.NotifyOnCritical, prefs.NotifyOnWarning, prefs.NotifyOnInfo,
		prefs.EmailNotifications, prefs.PushNotifications)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}
