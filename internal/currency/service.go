// Package currency converts amounts between currencies using cached
// USD-based exchange rates.
package currency

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsentry/finsentry/internal/model"
)

// RateStore is the slice of storage the converter needs.
type RateStore interface {
	GetExchangeRates(ctx context.Context) (*model.ExchangeRates, error)
	SaveExchangeRates(ctx context.Context, rates *model.ExchangeRates) error
}

// Service converts amounts using the most recent cached rate snapshot.
type Service struct {
	store  RateStore
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a currency converter.
func NewService(store RateStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Convert converts amount from one currency to another via the USD base:
// amount * (rate_to / rate_from). Same-currency conversion is the
// identity. A missing rate returns the original amount with a warning,
// so a stale cache never blocks an import.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to string) decimal.Decimal {
	if from == to {
		return amount
	}

	rates, err := s.store.GetExchangeRates(ctx)
	if err != nil {
		s.logger.Warn("no cached exchange rates, keeping original amount",
			"from", from, "to", to, "error", err)
		return amount
	}

	fromRate, fromOK := s.rate(rates, from)
	toRate, toOK := s.rate(rates, to)
	if !fromOK || !toOK {
		s.logger.Warn("missing exchange rate, keeping original amount",
			"from", from, "to", to)
		return amount
	}

	return amount.Mul(toRate).Div(fromRate).Round(2)
}

// rate resolves one currency's per-USD rate. The base currency itself
// is implicitly 1.
func (s *Service) rate(rates *model.ExchangeRates, currency string) (decimal.Decimal, bool) {
	if currency == rates.Base {
		return decimal.NewFromInt(1), true
	}
	value, ok := rates.Rates[currency]
	if !ok || value == 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(value), true
}

// RatesAge returns how stale the cached snapshot is, or false when no
// snapshot exists.
func (s *Service) RatesAge(ctx context.Context) (time.Duration, bool) {
	rates, err := s.store.GetExchangeRates(ctx)
	if err != nil {
		return 0, false
	}
	return rates.Age(s.now()), true
}

// UpdateRates caches a new snapshot.
func (s *Service) UpdateRates(ctx context.Context, base string, values map[string]float64) error {
	rates := &model.ExchangeRates{
		Base:      base,
		Rates:     values,
		FetchedAt: s.now().UTC(),
	}
	return s.store.SaveExchangeRates(ctx, rates)
}
