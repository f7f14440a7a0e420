package model

import "time"

// ExchangeRates is a cached snapshot of USD-based currency rates.
// Rates map currency codes to the amount of that currency per 1 USD.
type ExchangeRates struct {
	FetchedAt time.Time
	Rates     map[string]float64
	Base      string
	ID        int64
}

// Age returns how stale the cached rates are.
func (e *ExchangeRates) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}
