package currency

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/finsentry/finsentry/internal/common"
	"github.com/finsentry/finsentry/internal/model"
)

type stubRateStore struct {
	rates *model.ExchangeRates
}

func (s *stubRateStore) GetExchangeRates(_ context.Context) (*model.ExchangeRates, error) {
	if s.rates == nil {
		return nil, common.ErrNotFound
	}
	return s.rates, nil
}

func (s *stubRateStore) SaveExchangeRates(_ context.Context, rates *model.ExchangeRates) error {
	s.rates = rates
	return nil
}

func usdRates() *model.ExchangeRates {
	return &model.ExchangeRates{
		Base:      "USD",
		Rates:     map[string]float64{"EUR": 0.92, "GBP": 0.79},
		FetchedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestService_Convert(t *testing.T) {
	svc := NewService(&stubRateStore{rates: usdRates()}, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		amount string
		from   string
		to     string
		want   string
	}{
		{"same currency is identity", "100", "EUR", "EUR", "100"},
		{"usd to eur", "100", "USD", "EUR", "92"},
		{"eur to usd", "92", "EUR", "USD", "100"},
		{"cross via usd base", "100", "EUR", "GBP", "85.87"},
		{"missing rate keeps original", "100", "EUR", "JPY", "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.Convert(ctx, decimal.RequireFromString(tt.amount), tt.from, tt.to)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s, want %s", got, tt.want)
		})
	}
}

func TestService_Convert_NoCachedRates(t *testing.T) {
	svc := NewService(&stubRateStore{}, nil)
	amount := decimal.RequireFromString("42.50")

	got := svc.Convert(context.Background(), amount, "EUR", "USD")
	assert.True(t, got.Equal(amount), "missing cache must keep original amount")
}

func TestService_RatesAge(t *testing.T) {
	store := &stubRateStore{rates: usdRates()}
	svc := NewService(store, nil)
	svc.now = func() time.Time { return time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC) }

	age, ok := svc.RatesAge(context.Background())
	assert.True(t, ok)
	assert.Equal(t, 48*time.Hour, age)

	_, ok = NewService(&stubRateStore{}, nil).RatesAge(context.Background())
	assert.False(t, ok)
}
