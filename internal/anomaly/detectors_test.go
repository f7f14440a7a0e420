package anomaly

import (
	"context"
	"fmt"
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

// fixture wires the detectors against a real database.
type fixture struct {
	store     service.Storage
	env       *Env
	userID    int64
	accountID int64
}

func newFixture(t *testing.T) *fixture {
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

	return &fixture{
		store:     store,
		userID:    user.ID,
		accountID: account.ID,
		env: &Env{
			Store:  store,
			Prefs:  model.DefaultAnomalyPreferences(user.ID),
			Now:    time.Now(),
			UserID: user.ID,
		},
	}
}

func (f *fixture) expense(t *testing.T, date time.Time, amount, merchant, desc string) model.Transaction {
	t.Helper()
	txn := model.Transaction{
		AccountID:    f.accountID,
		Date:         date,
		Amount:       decimal.RequireFromString(amount),
		Type:         model.TypeExpense,
		MerchantName: merchant,
		Description:  desc,
	}
	ids, err := f.store.SaveTransactions(context.Background(), []model.Transaction{txn})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	txn.ID = ids[0]
	return txn
}

func TestDetectUnusualAmount_ConstantHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Three identical charges: zero standard deviation.
	for i := 0; i < 3; i++ {
		f.expense(t, f.env.Now.AddDate(0, 0, -30*(i+1)), "100.00", "Netflix", fmt.Sprintf("charge %d", i))
	}

	// 60% over the constant baseline flags with the fallback score.
	high := &model.Transaction{
		AccountID:    f.accountID,
		Date:         f.env.Now,
		Amount:       decimal.RequireFromString("160.00"),
		Type:         model.TypeExpense,
		MerchantName: "Netflix",
	}
	anomaly, err := detectUnusualAmount(ctx, f.env, Subject{Transaction: high, AccountID: f.accountID})
	require.NoError(t, err)
	require.NotNil(t, anomaly)
	assert.Equal(t, model.AnomalyUnusualAmount, anomaly.Type)
	assert.Equal(t, model.SeverityWarning, anomaly.Severity)
	assert.Equal(t, "60", anomaly.Score.String())
	require.NotNil(t, anomaly.DeviationPercent)
	assert.Equal(t, "60", anomaly.DeviationPercent.String())

	// 5% over is within the 50% relative threshold.
	mild := &model.Transaction{
		AccountID:    f.accountID,
		Date:         f.env.Now,
		Amount:       decimal.RequireFromString("105.00"),
		Type:         model.TypeExpense,
		MerchantName: "Netflix",
	}
	anomaly, err = detectUnusualAmount(ctx, f.env, Subject{Transaction: mild, AccountID: f.accountID})
	require.NoError(t, err)
	assert.Nil(t, anomaly)
}

func TestDetectUnusualAmount_ZScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Mean 100, sample stdev ~1.58.
	for i, amount := range []string{"100.00", "102.00", "98.00", "101.00", "99.00"} {
		f.expense(t, f.env.Now.AddDate(0, 0, -7*(i+1)), amount, "Rewe", fmt.Sprintf("weekly shop %d", i))
	}

	outlier := &model.Transaction{
		AccountID:    f.accountID,
		Date:         f.env.Now,
		Amount:       decimal.RequireFromString("110.00"),
		Type:         model.TypeExpense,
		MerchantName: "Rewe",
	}
	anomaly, err := detectUnusualAmount(ctx, f.env, Subject{Transaction: outlier, AccountID: f.accountID})
	require.NoError(t, err)
	require.NotNil(t, anomaly)
	assert.Equal(t, model.SeverityCritical, anomaly.Severity)
	assert.Equal(t, "100", anomaly.Score.String())

	within := &model.Transaction{
		AccountID:    f.accountID,
		Date:         f.env.Now,
		Amount:       decimal.RequireFromString("102.00"),
		Type:         model.TypeExpense,
		MerchantName: "Rewe",
	}
	anomaly, err = detectUnusualAmount(ctx, f.env, Subject{Transaction: within, AccountID: f.accountID})
	require.NoError(t, err)
	assert.Nil(t, anomaly)
}

func TestDetectUnusualAmount_InsufficientHistory(t *testing.T) {
	f := newFixture(t)

	f.expense(t, f.env.Now.AddDate(0, 0, -30), "100.00", "Netflix", "only charge")

	txn := &model.Transaction{
		AccountID:    f.accountID,
		Date:         f.env.Now,
		Amount:       decimal.RequireFromString("500.00"),
		Type:         model.TypeExpense,
		MerchantName: "Netflix",
	}
	anomaly, err := detectUnusualAmount(context.Background(), f.env, Subject{Transaction: txn, AccountID: f.accountID})
	require.NoError(t, err)
	assert.Nil(t, anomaly)
}

func TestDetectDuplicatePattern(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	original := f.expense(t, f.env.Now.AddDate(0, 0, -3), "42.50", "Aral", "fuel")

	dup := &model.Transaction{
		AccountID: f.accountID,
		Date:      f.env.Now,
		Amount:    decimal.RequireFromString("42.50"),
		Type:      model.TypeExpense,
	}
	anomaly, err := detectDuplicatePattern(ctx, f.env, Subject{Transaction: dup, AccountID: f.accountID})
	require.NoError(t, err)
	require.NotNil(t, anomaly)
	assert.Equal(t, model.AnomalyDuplicatePattern, anomaly.Type)
	assert.Equal(t, "75", anomaly.Score.String())
	assert.Equal(t, original.ID, anomaly.ContextData["similar_transaction_id"])
}

func TestDetectDuplicatePattern_OutsideWindow(t *testing.T) {
	f := newFixture(t)

	f.expense(t, f.env.Now.AddDate(0, 0, -10), "42.50", "Aral", "fuel")

	dup := &model.Transaction{
		AccountID: f.accountID,
		Date:      f.env.Now,
		Amount:    decimal.RequireFromString("42.50"),
		Type:      model.TypeExpense,
	}
	anomaly, err := detectDuplicatePattern(context.Background(), f.env, Subject{Transaction: dup, AccountID: f.accountID})
	require.NoError(t, err)
	assert.Nil(t, anomaly)
}

func TestDetectNewMerchant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := &model.Transaction{
		AccountID:    f.accountID,
		Date:         f.env.Now,
		Amount:       decimal.RequireFromString("19.99"),
		Type:         model.TypeExpense,
		MerchantName: "Steam",
	}
	anomaly, err := detectNewMerchant(ctx, f.env, Subject{Transaction: first, AccountID: f.accountID})
	require.NoError(t, err)
	require.NotNil(t, anomaly)
	assert.Equal(t, model.AnomalyNewMerchant, anomaly.Type)
	assert.Equal(t, model.SeverityInfo, anomaly.Severity)

	// Once the merchant is on record, no further flags.
	f.expense(t, f.env.Now.AddDate(0, 0, -5), "9.99", "Steam", "earlier purchase")
	anomaly, err = detectNewMerchant(ctx, f.env, Subject{Transaction: first, AccountID: f.accountID})
	require.NoError(t, err)
	assert.Nil(t, anomaly)
}

func TestDetectSpendingSpike_CountsNotAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	category, err := f.store.CreateCategory(ctx, f.userID, "Groceries", "")
	require.NoError(t, err)

	monthStart := time.Date(f.env.Now.Year(), f.env.Now.Month(), 1, 0, 0, 0, 0, f.env.Now.Location())

	// Baseline: two expenses per month for three prior months.
	for m := 1; m <= 3; m++ {
		for i := 0; i < 2; i++ {
			txn := f.expense(t, monthStart.AddDate(0, -m, 4+i), "100.00", "Rewe", fmt.Sprintf("baseline m%d i%d", m, i))
			require.NoError(t, f.store.UpdateTransactionCategory(ctx, txn.ID, category.ID))
		}
	}

	// Current month: five SMALL purchases. The count (5 > 2×2) trips the
	// detector even though the spend is a fraction of the baseline.
	for i := 0; i < 5; i++ {
		txn := f.expense(t, monthStart.AddDate(0, 0, i), "1.00", "Rewe", fmt.Sprintf("current %d", i))
		require.NoError(t, f.store.UpdateTransactionCategory(ctx, txn.ID, category.ID))
	}

	anomaly, err := detectSpendingSpike(ctx, f.env, Subject{AccountID: f.accountID, CategoryID: &category.ID})
	require.NoError(t, err)
	require.NotNil(t, anomaly)
	assert.Equal(t, model.AnomalySpendingSpike, anomaly.Type)
	assert.Equal(t, "5", anomaly.ActualValue.String())
	assert.Equal(t, "2", anomaly.ExpectedValue.String())
}

func TestDetectSpendingSpike_LargeAmountAloneDoesNotTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	category, err := f.store.CreateCategory(ctx, f.userID, "Electronics", "")
	require.NoError(t, err)

	monthStart := time.Date(f.env.Now.Year(), f.env.Now.Month(), 1, 0, 0, 0, 0, f.env.Now.Location())

	for m := 1; m <= 3; m++ {
		for i := 0; i < 2; i++ {
			txn := f.expense(t, monthStart.AddDate(0, -m, 4+i), "50.00", "MediaMarkt", fmt.Sprintf("baseline m%d i%d", m, i))
			require.NoError(t, f.store.UpdateTransactionCategory(ctx, txn.ID, category.ID))
		}
	}

	// One enormous purchase this month: count 1 is under the threshold.
	txn := f.expense(t, monthStart.AddDate(0, 0, 2), "9999.00", "MediaMarkt", "new tv")
	require.NoError(t, f.store.UpdateTransactionCategory(ctx, txn.ID, category.ID))

	anomaly, err := detectSpendingSpike(ctx, f.env, Subject{AccountID: f.accountID, CategoryID: &category.ID})
	require.NoError(t, err)
	assert.Nil(t, anomaly)
}

func (f *fixture) upsertRecurring(t *testing.T, merchant string, nextExpected time.Time) *model.RecurringTransaction {
	t.Helper()
	rec, created, err := f.store.UpsertRecurring(context.Background(), f.userID, f.accountID, &model.RecurringPattern{
		Description:        "netflix subscription",
		MerchantName:       merchant,
		Amount:             decimal.RequireFromString("9.99"),
		Frequency:          model.FrequencyMonthly,
		LastOccurrenceDate: nextExpected.AddDate(0, 0, -30),
		NextExpectedDate:   nextExpected,
		OccurrenceCount:    4,
		ConfidenceScore:    0.9,
	})
	require.NoError(t, err)
	require.True(t, created)
	return rec
}

func TestDetectMissingRecurring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.upsertRecurring(t, "Netflix", f.env.Now.AddDate(0, 0, -10))

	anomaly, err := detectMissingRecurring(ctx, f.env, Subject{Recurring: rec, AccountID: f.accountID})
	require.NoError(t, err)
	require.NotNil(t, anomaly)
	assert.Equal(t, model.AnomalyMissingRecurring, anomaly.Type)
	assert.Equal(t, model.SeverityCritical, anomaly.Severity)
	assert.Equal(t, "80", anomaly.Score.String())
	assert.Equal(t, 10, anomaly.ContextData["days_overdue"])
}

func TestDetectMissingRecurring_NotDueYet(t *testing.T) {
	f := newFixture(t)

	rec := f.upsertRecurring(t, "Netflix", f.env.Now.AddDate(0, 0, 5))

	anomaly, err := detectMissingRecurring(context.Background(), f.env, Subject{Recurring: rec, AccountID: f.accountID})
	require.NoError(t, err)
	assert.Nil(t, anomaly)
}

func TestDetectMissingRecurring_IgnoredPatternSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.upsertRecurring(t, "Netflix", f.env.Now.AddDate(0, 0, -10))
	require.NoError(t, f.store.SetRecurringIgnored(ctx, rec.ID, true))
	rec, err := f.store.GetRecurring(ctx, rec.ID)
	require.NoError(t, err)

	anomaly, err := detectMissingRecurring(ctx, f.env, Subject{Recurring: rec, AccountID: f.accountID})
	require.NoError(t, err)
	assert.Nil(t, anomaly)
}

func TestDetectChangedRecurring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.upsertRecurring(t, "Netflix", f.env.Now.AddDate(0, 0, 20))

	f.expense(t, f.env.Now.AddDate(0, 0, -40), "9.99", "Netflix", "old price")
	f.expense(t, f.env.Now.AddDate(0, 0, -10), "12.99", "Netflix", "new price")

	anomaly, err := detectChangedRecurring(ctx, f.env, Subject{Recurring: rec, AccountID: f.accountID})
	require.NoError(t, err)
	require.NotNil(t, anomaly)
	assert.Equal(t, model.AnomalyChangedRecurring, anomaly.Type)
	assert.Equal(t, "9.99", anomaly.ContextData["min_amount"])
	assert.Equal(t, "12.99", anomaly.ContextData["max_amount"])
}

func TestDetectChangedRecurring_StableAmounts(t *testing.T) {
	f := newFixture(t)

	rec := f.upsertRecurring(t, "Netflix", f.env.Now.AddDate(0, 0, 20))

	f.expense(t, f.env.Now.AddDate(0, 0, -40), "9.99", "Netflix", "march")
	f.expense(t, f.env.Now.AddDate(0, 0, -10), "9.99", "Netflix", "april")

	anomaly, err := detectChangedRecurring(context.Background(), f.env, Subject{Recurring: rec, AccountID: f.accountID})
	require.NoError(t, err)
	assert.Nil(t, anomaly)
}

func TestDetectAccountInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.expense(t, f.env.Now.AddDate(0, 0, -40), "10.00", "Rewe", "last activity")

	anomaly, err := detectAccountInactive(ctx, f.env, Subject{AccountID: f.accountID})
	require.NoError(t, err)
	require.NotNil(t, anomaly)
	assert.Equal(t, model.AnomalyAccountInactive, anomaly.Type)
	assert.Equal(t, 40, anomaly.ContextData["days_inactive"])
}

func TestDetectAccountInactive_RecentActivity(t *testing.T) {
	f := newFixture(t)

	f.expense(t, f.env.Now.AddDate(0, 0, -2), "10.00", "Rewe", "recent")

	anomaly, err := detectAccountInactive(context.Background(), f.env, Subject{AccountID: f.accountID})
	require.NoError(t, err)
	assert.Nil(t, anomaly)
}

func TestDetectAccountInactive_NoTransactions(t *testing.T) {
	f := newFixture(t)

	anomaly, err := detectAccountInactive(context.Background(), f.env, Subject{AccountID: f.accountID})
	require.NoError(t, err)
	assert.Nil(t, anomaly)
}

func TestStats(t *testing.T) {
	values := []float64{100, 102, 98, 101, 99}
	avg := mean(values)
	assert.InDelta(t, 100, avg, 0.001)
	assert.InDelta(t, 1.581, sampleStdev(values, avg), 0.001)
}
