package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/service"
)

func newTestService(f *fixture) *Service {
	return NewService(f.store, nil)
}

func (f *fixture) anomaly(anomalyType model.AnomalyType, txnID int64) *model.Anomaly {
	a := &model.Anomaly{
		UserID:    f.userID,
		AccountID: f.accountID,
		Type:      anomalyType,
		Severity:  model.SeverityWarning,
		Title:     "test anomaly",
		Score:     decimal.NewFromInt(75),
	}
	if txnID > 0 {
		a.TransactionID = &txnID
	}
	return a
}

func TestCreateAnomalyIfNew_SuppressesSameTypeDifferentSubject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newTestService(f)

	created, err := svc.CreateAnomalyIfNew(ctx, f.anomaly(model.AnomalyUnusualAmount, 1))
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotZero(t, created.ID)

	// Same (user, account, type) within 24h is suppressed even though it
	// points at a different transaction.
	dup, err := svc.CreateAnomalyIfNew(ctx, f.anomaly(model.AnomalyUnusualAmount, 2))
	require.NoError(t, err)
	assert.Nil(t, dup)

	// A different type on the same account is not.
	other, err := svc.CreateAnomalyIfNew(ctx, f.anomaly(model.AnomalyDuplicatePattern, 2))
	require.NoError(t, err)
	assert.NotNil(t, other)

	anomalies, err := f.store.ListAnomalies(ctx, service.AnomalyFilter{UserID: f.userID})
	require.NoError(t, err)
	assert.Len(t, anomalies, 2)
}

func TestCreateAnomalyIfNew_OldAnomalyDoesNotSuppress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newTestService(f)

	old := f.anomaly(model.AnomalyNewMerchant, 1)
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, f.store.SaveAnomaly(ctx, old))

	created, err := svc.CreateAnomalyIfNew(ctx, f.anomaly(model.AnomalyNewMerchant, 2))
	require.NoError(t, err)
	assert.NotNil(t, created)
}

func TestDetectForTransaction_DetectionDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newTestService(f)

	prefs, err := f.store.GetOrCreatePreferences(ctx, f.userID)
	require.NoError(t, err)
	prefs.DetectionEnabled = false
	require.NoError(t, f.store.SavePreferences(ctx, prefs))

	txn := f.expense(t, time.Now(), "19.99", "Steam", "first purchase")
	found, err := svc.DetectForTransaction(ctx, f.userID, &txn)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDetectForTransaction_DisabledTypeSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newTestService(f)

	prefs, err := f.store.GetOrCreatePreferences(ctx, f.userID)
	require.NoError(t, err)
	var kept []model.AnomalyType
	for _, enabled := range prefs.EnabledTypes {
		if enabled != model.AnomalyNewMerchant {
			kept = append(kept, enabled)
		}
	}
	prefs.EnabledTypes = kept
	require.NoError(t, f.store.SavePreferences(ctx, prefs))

	// A brand-new merchant would normally flag; the disabled type is the
	// only detector that would fire here.
	txn := f.expense(t, time.Now(), "19.99", "Steam", "first purchase")
	found, err := svc.DetectForTransaction(ctx, f.userID, &txn)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDetectForTransaction_FlagsNewMerchant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newTestService(f)

	txn := f.expense(t, time.Now(), "19.99", "Steam", "first purchase")
	found, err := svc.DetectForTransaction(ctx, f.userID, &txn)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, model.AnomalyNewMerchant, found[0].Type)
}

func TestDetectAndPersistForAccount_SecondSweepCreatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newTestService(f)

	// Stale account: the inactivity detector fires on each sweep, but the
	// second run is suppressed by the 24h dedup window.
	f.expense(t, time.Now().AddDate(0, 0, -60), "10.00", "Rewe", "old activity")

	created, err := svc.DetectAndPersistForAccount(ctx, f.userID, f.accountID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, model.AnomalyAccountInactive, created[0].Type)

	again, err := svc.DetectAndPersistForAccount(ctx, f.userID, f.accountID)
	require.NoError(t, err)
	assert.Empty(t, again)
}
