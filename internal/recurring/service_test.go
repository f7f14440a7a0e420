package recurring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/service"
	"github.com/finsentry/finsentry/internal/storage"
)

func newServiceFixture(t *testing.T) (*Service, service.Storage, int64, int64) {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	user, err := store.CreateUser(ctx, "Test User", "test@example.com")
	require.NoError(t, err)
	account, err := store.CreateAccount(ctx, &model.Account{
		UserID:   user.ID,
		Name:     "Checking",
		IsActive: true,
	})
	require.NoError(t, err)

	return NewService(store, DefaultConfig(), nil), store, user.ID, account.ID
}

func saveSubscription(t *testing.T, store service.Storage, accountID int64, dates []string, amount string) {
	t.Helper()
	txns := make([]model.Transaction, len(dates))
	for i, date := range dates {
		d, err := time.Parse("2006-01-02", date)
		require.NoError(t, err)
		txns[i] = model.Transaction{
			AccountID:   accountID,
			Date:        d,
			Amount:      decimal.RequireFromString(amount),
			Type:        model.TypeExpense,
			Description: "Netflix subscription " + date,
			PartnerName: "Netflix",
			PartnerIBAN: "DE02100100100006820101",
		}
	}
	ids, err := store.SaveTransactions(context.Background(), txns)
	require.NoError(t, err)
	require.Len(t, ids, len(txns))
}

func TestDetectAndStore(t *testing.T) {
	svc, store, userID, accountID := newServiceFixture(t)
	ctx := context.Background()

	now := time.Now()
	dates := []string{
		now.AddDate(0, 0, -95).Format("2006-01-02"),
		now.AddDate(0, 0, -65).Format("2006-01-02"),
		now.AddDate(0, 0, -35).Format("2006-01-02"),
		now.AddDate(0, 0, -5).Format("2006-01-02"),
	}
	saveSubscription(t, store, accountID, dates, "9.99")

	stored, err := svc.DetectAndStore(ctx, userID, accountID, 365)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	assert.Equal(t, model.FrequencyMonthly, stored[0].Frequency)
	assert.Equal(t, 4, stored[0].OccurrenceCount)
	assert.Equal(t, "Netflix", stored[0].MerchantName)
	assert.True(t, stored[0].IsActive)

	// Re-running updates in place: same row, no duplicate.
	again, err := svc.DetectAndStore(ctx, userID, accountID, 365)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, stored[0].ID, again[0].ID)

	rows, err := store.ListRecurring(ctx, service.RecurringFilter{UserID: userID})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDetect_NoTransactions(t *testing.T) {
	svc, _, _, accountID := newServiceFixture(t)

	patterns, err := svc.Detect(context.Background(), accountID, 365)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestDetect_UnknownAccount(t *testing.T) {
	svc, _, _, _ := newServiceFixture(t)

	_, err := svc.Detect(context.Background(), 9999, 365)
	assert.Error(t, err)
}

func TestDetect_RespectsLookbackWindow(t *testing.T) {
	svc, store, _, accountID := newServiceFixture(t)

	now := time.Now()
	dates := []string{
		now.AddDate(0, 0, -400).Format("2006-01-02"),
		now.AddDate(0, 0, -370).Format("2006-01-02"),
		now.AddDate(0, 0, -340).Format("2006-01-02"),
	}
	saveSubscription(t, store, accountID, dates, "9.99")

	// A 90-day window sees none of the three occurrences.
	patterns, err := svc.Detect(context.Background(), accountID, 90)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}
