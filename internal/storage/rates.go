package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/finsentry/finsentry/internal/common"
	"github.com/finsentry/finsentry/internal/model"
)

// GetExchangeRates returns the most recently cached rate snapshot.
func (s *SQLiteStorage) GetExchangeRates(ctx context.Context) (*model.ExchangeRates, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		rates     model.ExchangeRates
		ratesJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, base, rates, fetched_at FROM exchange_rates
		 ORDER BY fetched_at DESC, id DESC LIMIT 1`).
		Scan(&rates.ID, &rates.Base, &ratesJSON, &rates.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("exchange rates: %w", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange rates: %w", err)
	}

	if err := json.Unmarshal([]byte(ratesJSON), &rates.Rates); err != nil {
		return nil, fmt.Errorf("failed to parse exchange rates: %w", err)
	}
	return &rates, nil
}

// SaveExchangeRates caches a new rate snapshot.
func (s *SQLiteStorage) SaveExchangeRates(ctx context.Context, rates *model.ExchangeRates) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rates == nil {
		return fmt.Errorf("%w: rates", ErrNilParameter)
	}
	if len(rates.Rates) == 0 {
		return fmt.Errorf("%w: rates.Rates", ErrEmptySlice)
	}

	base := rates.Base
	if base == "" {
		base = "USD"
	}
	ratesJSON, err := json.Marshal(rates.Rates)
	if err != nil {
		return fmt.Errorf("failed to encode exchange rates: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO exchange_rates (base, rates, fetched_at) VALUES (?, ?, ?)`,
		base, string(ratesJSON), rates.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to save exchange rates: %w", err)
	}

	rates.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get exchange rates ID: %w", err)
	}
	return nil
}
