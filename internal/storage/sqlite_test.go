package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsentry/finsentry/internal/common"
	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/service"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

// Helper to create a user with one account.
func createTestAccount(t *testing.T, store *SQLiteStorage) (*model.User, *model.Account) {
	t.Helper()
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "Test User", fmt.Sprintf("%s@example.com", t.Name()))
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	account, err := store.CreateAccount(ctx, &model.Account{
		UserID:   user.ID,
		Name:     "Checking",
		IBAN:     "DE89370400440532013000",
		Currency: "EUR",
	})
	if err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return user, account
}

// Helper to create test transactions spaced one day apart.
func createTestTransactions(accountID int64, count int) []model.Transaction {
	txns := make([]model.Transaction, count)
	baseDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < count; i++ {
		txns[i] = model.Transaction{
			Date:         baseDate.AddDate(0, 0, i),
			Amount:       decimal.NewFromFloat(float64(i+1) * 10.50),
			Description:  fmt.Sprintf("Transaction %d", i+1),
			MerchantName: fmt.Sprintf("Merchant %d", (i%3)+1),
			Type:         model.TypeExpense,
			AccountID:    accountID,
		}
		txns[i].Hash = txns[i].GenerateHash()
	}
	return txns
}

func TestSQLiteStorage_SaveTransactions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	_, account := createTestAccount(t, store)

	txns := createTestTransactions(account.ID, 3)
	ids, err := store.SaveTransactions(ctx, txns)
	if err != nil {
		t.Fatalf("SaveTransactions failed: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("Expected 3 inserted IDs, got %d", len(ids))
	}

	// Saving the same transactions again must not duplicate them.
	ids, err = store.SaveTransactions(ctx, txns)
	if err != nil {
		t.Fatalf("SaveTransactions on duplicates failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Expected 0 inserted IDs on duplicate save, got %d", len(ids))
	}

	stored, err := store.GetTransactions(ctx, service.TransactionFilter{AccountID: account.ID})
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	if len(stored) != 3 {
		t.Errorf("Expected 3 stored transactions, got %d", len(stored))
	}
}

func TestSQLiteStorage_SaveTransactions_Validation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := store.SaveTransactions(ctx, nil); err == nil {
		t.Error("Expected error for nil transactions")
	}
	if _, err := store.SaveTransactions(ctx, []model.Transaction{}); err == nil {
		t.Error("Expected error for empty transactions")
	}
	if _, err := store.SaveTransactions(ctx, []model.Transaction{{}}); err == nil {
		t.Error("Expected error for zero-value transaction")
	}
}

func TestSQLiteStorage_GetTransactionsForDetection(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	_, account := createTestAccount(t, store)

	txns := createTestTransactions(account.ID, 5)
	// A transfer must never show up in detection input.
	txns[2].Type = model.TypeTransfer
	txns[2].Hash = txns[2].GenerateHash()

	if _, err := store.SaveTransactions(ctx, txns); err != nil {
		t.Fatalf("SaveTransactions failed: %v", err)
	}

	since := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	got, err := store.GetTransactionsForDetection(ctx, account.ID, since)
	if err != nil {
		t.Fatalf("GetTransactionsForDetection failed: %v", err)
	}

	// Five saved, one before the cutoff, one transfer.
	if len(got) != 3 {
		t.Fatalf("Expected 3 transactions, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Date.Before(got[i-1].Date) {
			t.Error("Expected transactions ordered oldest first")
		}
	}
	for _, txn := range got {
		if txn.Type == model.TypeTransfer {
			t.Error("Transfer leaked into detection input")
		}
	}
}

func TestSQLiteStorage_GetAccount_NotFound(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	_, err := store.GetAccount(context.Background(), 9999)
	if !errors.Is(err, common.ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound, got %v", err)
	}
}

func TestSQLiteStorage_UpsertRecurring(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	user, account := createTestAccount(t, store)

	pattern := &model.RecurringPattern{
		Description:        "netflix.com",
		MerchantName:       "Netflix",
		Amount:             decimal.RequireFromString("12.99"),
		Frequency:          model.FrequencyMonthly,
		NextExpectedDate:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		LastOccurrenceDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		OccurrenceCount:    4,
		ConfidenceScore:    0.92,
		TransactionIDs:     []int64{1, 2, 3, 4},
		SimilarDescs:       []string{"netflix.com", "netflix.com billing"},
	}

	rec, created, err := store.UpsertRecurring(ctx, user.ID, account.ID, pattern)
	if err != nil {
		t.Fatalf("UpsertRecurring failed: %v", err)
	}
	if !created {
		t.Error("Expected first upsert to create a row")
	}
	if rec.ConfidenceScore != 0.92 {
		t.Errorf("Expected confidence 0.92, got %v", rec.ConfidenceScore)
	}
	if len(rec.TransactionIDs) != 4 {
		t.Errorf("Expected 4 transaction IDs, got %d", len(rec.TransactionIDs))
	}

	// User curation must survive re-detection.
	display := "Netflix Subscription"
	if err := store.UpdateRecurringDetails(ctx, rec.ID, &display, nil); err != nil {
		t.Fatalf("UpdateRecurringDetails failed: %v", err)
	}
	if err := store.SetRecurringIgnored(ctx, rec.ID, true); err != nil {
		t.Fatalf("SetRecurringIgnored failed: %v", err)
	}

	pattern.OccurrenceCount = 5
	pattern.ConfidenceScore = 0.95
	updated, created, err := store.UpsertRecurring(ctx, user.ID, account.ID, pattern)
	if err != nil {
		t.Fatalf("Second UpsertRecurring failed: %v", err)
	}
	if created {
		t.Error("Expected second upsert to update, not create")
	}
	if updated.ID != rec.ID {
		t.Errorf("Expected same row ID %d, got %d", rec.ID, updated.ID)
	}
	if updated.OccurrenceCount != 5 {
		t.Errorf("Expected occurrence count 5, got %d", updated.OccurrenceCount)
	}
	if updated.DisplayName != display {
		t.Errorf("Expected display name to survive, got %q", updated.DisplayName)
	}
	if !updated.IsIgnored {
		t.Error("Expected ignored flag to survive re-detection")
	}
}

func TestSQLiteStorage_ActiveRecurring_ExcludesIgnored(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	user, account := createTestAccount(t, store)

	for i, desc := range []string{"spotify", "netflix.com"} {
		pattern := &model.RecurringPattern{
			Description:        desc,
			Amount:             decimal.NewFromInt(int64(10 + i)),
			Frequency:          model.FrequencyMonthly,
			NextExpectedDate:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			LastOccurrenceDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			OccurrenceCount:    3,
			ConfidenceScore:    0.8,
		}
		if _, _, err := store.UpsertRecurring(ctx, user.ID, account.ID, pattern); err != nil {
			t.Fatalf("UpsertRecurring failed: %v", err)
		}
	}

	all, err := store.ActiveRecurring(ctx, account.ID)
	if err != nil {
		t.Fatalf("ActiveRecurring failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 active patterns, got %d", len(all))
	}

	if err := store.SetRecurringIgnored(ctx, all[0].ID, true); err != nil {
		t.Fatalf("SetRecurringIgnored failed: %v", err)
	}

	active, err := store.ActiveRecurring(ctx, account.ID)
	if err != nil {
		t.Fatalf("ActiveRecurring failed: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("Expected 1 active pattern after ignoring, got %d", len(active))
	}
}

func TestSQLiteStorage_GetAmountHistory(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	_, account := createTestAccount(t, store)

	txns := createTestTransactions(account.ID, 6)
	for i := range txns {
		txns[i].MerchantName = "REWE"
		txns[i].Hash = txns[i].GenerateHash()
	}
	ids, err := store.SaveTransactions(ctx, txns)
	if err != nil {
		t.Fatalf("SaveTransactions failed: %v", err)
	}

	amounts, err := store.GetAmountHistory(ctx, service.AmountHistoryQuery{
		AccountID: account.ID,
		Merchant:  "REWE",
		Type:      model.TypeExpense,
		Since:     time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		ExcludeID: ids[len(ids)-1],
	})
	if err != nil {
		t.Fatalf("GetAmountHistory failed: %v", err)
	}
	if len(amounts) != 5 {
		t.Errorf("Expected 5 amounts (one excluded), got %d", len(amounts))
	}

	// A selector is required.
	if _, err := store.GetAmountHistory(ctx, service.AmountHistoryQuery{
		AccountID: account.ID,
		Type:      model.TypeExpense,
		Since:     time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}); err == nil {
		t.Error("Expected error for query without selector")
	}
}

func TestSQLiteStorage_HasRecentAnomaly(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	user, account := createTestAccount(t, store)

	anomaly := &model.Anomaly{
		UserID:    user.ID,
		AccountID: account.ID,
		Type:      model.AnomalyNewMerchant,
		Severity:  model.SeverityInfo,
		Title:     "New merchant",
		Score:     decimal.NewFromInt(50),
	}
	if err := store.SaveAnomaly(ctx, anomaly); err != nil {
		t.Fatalf("SaveAnomaly failed: %v", err)
	}
	if anomaly.ID == 0 {
		t.Error("Expected SaveAnomaly to set ID")
	}

	since := time.Now().Add(-24 * time.Hour)
	recent, err := store.HasRecentAnomaly(ctx, user.ID, account.ID, model.AnomalyNewMerchant, since)
	if err != nil {
		t.Fatalf("HasRecentAnomaly failed: %v", err)
	}
	if !recent {
		t.Error("Expected anomaly to be seen as recent")
	}

	recent, err = store.HasRecentAnomaly(ctx, user.ID, account.ID, model.AnomalySpendingSpike, since)
	if err != nil {
		t.Fatalf("HasRecentAnomaly failed: %v", err)
	}
	if recent {
		t.Error("Expected no recent anomaly of a different type")
	}
}

func TestSQLiteStorage_GetOrCreatePreferences(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	user, _ := createTestAccount(t, store)

	prefs, err := store.GetOrCreatePreferences(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetOrCreatePreferences failed: %v", err)
	}
	if prefs.Sensitivity != model.SensitivityMedium {
		t.Errorf("Expected default sensitivity medium, got %q", prefs.Sensitivity)
	}
	if !prefs.DetectionEnabled {
		t.Error("Expected detection enabled by default")
	}
	if len(prefs.EnabledTypes) != len(model.AllAnomalyTypes()) {
		t.Errorf("Expected all types enabled by default, got %d", len(prefs.EnabledTypes))
	}

	prefs.Sensitivity = model.SensitivityHigh
	prefs.DaysBeforeInactive = 14
	if err := store.SavePreferences(ctx, prefs); err != nil {
		t.Fatalf("SavePreferences failed: %v", err)
	}

	reloaded, err := store.GetOrCreatePreferences(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetOrCreatePreferences failed: %v", err)
	}
	if reloaded.Sensitivity != model.SensitivityHigh {
		t.Errorf("Expected sensitivity high after save, got %q", reloaded.Sensitivity)
	}
	if reloaded.DaysBeforeInactive != 14 {
		t.Errorf("Expected 14 days before inactive, got %d", reloaded.DaysBeforeInactive)
	}
}

func TestSQLiteStorage_ImportSessions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	user, account := createTestAccount(t, store)

	txns := createTestTransactions(account.ID, 2)
	ids, err := store.SaveTransactions(ctx, txns)
	if err != nil {
		t.Fatalf("SaveTransactions failed: %v", err)
	}

	imp := &model.Import{
		ID:        "11111111-2222-3333-4444-555555555555",
		AccountID: account.ID,
		UserID:    user.ID,
		Source:    "csv",
		FileName:  "statement.csv",
		Total:     2,
		Succeeded: 2,
	}
	if err := store.SaveImport(ctx, imp); err != nil {
		t.Fatalf("SaveImport failed: %v", err)
	}
	if err := store.LinkImportTransactions(ctx, imp.ID, ids); err != nil {
		t.Fatalf("LinkImportTransactions failed: %v", err)
	}
	// Linking twice must not error.
	if err := store.LinkImportTransactions(ctx, imp.ID, ids); err != nil {
		t.Fatalf("Second LinkImportTransactions failed: %v", err)
	}
}

func TestSQLiteStorage_ExchangeRates(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := store.GetExchangeRates(ctx); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on empty cache, got %v", err)
	}

	rates := &model.ExchangeRates{
		Base:      "USD",
		Rates:     map[string]float64{"EUR": 0.92, "GBP": 0.79},
		FetchedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := store.SaveExchangeRates(ctx, rates); err != nil {
		t.Fatalf("SaveExchangeRates failed: %v", err)
	}

	got, err := store.GetExchangeRates(ctx)
	if err != nil {
		t.Fatalf("GetExchangeRates failed: %v", err)
	}
	if got.Rates["EUR"] != 0.92 {
		t.Errorf("Expected EUR rate 0.92, got %v", got.Rates["EUR"])
	}
}
