// Package storage provides the SQLite persistence layer for finsentry.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/finsentry/finsentry/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidID          = errors.New("id must be positive")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidPattern     = errors.New("invalid recurring pattern")
	ErrInvalidAnomaly     = errors.New("invalid anomaly")
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

// validateID ensures a numeric identifier is positive.
func validateID(id int64, paramName string) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidID, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i := range transactions {
		if err := validateTransaction(&transactions[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if txn.AccountID <= 0 {
		return fmt.Errorf("%w: missing account ID", ErrInvalidTransaction)
	}
	if !txn.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, txn.Type)
	}
	return nil
}

// validatePattern validates a detected recurring pattern before persistence.
func validatePattern(pattern *model.RecurringPattern) error {
	if pattern == nil {
		return fmt.Errorf("%w: pattern", ErrNilParameter)
	}
	if strings.TrimSpace(pattern.Description) == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidPattern)
	}
	if !pattern.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidPattern, pattern.Frequency)
	}
	if pattern.ConfidenceScore < 0 || pattern.ConfidenceScore > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidPattern)
	}
	return nil
}

// validateAnomaly validates an anomaly before persistence.
func validateAnomaly(anomaly *model.Anomaly) error {
	if anomaly == nil {
		return fmt.Errorf("%w: anomaly", ErrNilParameter)
	}
	if anomaly.UserID <= 0 {
		return fmt.Errorf("%w: missing user ID", ErrInvalidAnomaly)
	}
	if anomaly.AccountID <= 0 {
		return fmt.Errorf("%w: missing account ID", ErrInvalidAnomaly)
	}
	if strings.TrimSpace(string(anomaly.Type)) == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidAnomaly)
	}
	return nil
}
