package anomaly

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/service"
)

// detectUnusualAmount flags transactions whose amount is a statistical
// outlier against same-merchant history (falling back to category, then
// description prefix). Uses a Z-score with a 2.0σ threshold; when the
// history is constant (zero stdev) it falls back to a 50% relative
// deviation check.
func detectUnusualAmount(ctx context.Context, env *Env, subject Subject) (*model.Anomaly, error) {
	txn := subject.Transaction
	if txn == nil {
		return nil, nil
	}

	query := service.AmountHistoryQuery{
		AccountID: txn.AccountID,
		Type:      txn.Type,
		Since:     env.Now.AddDate(0, 0, -lookbackDays),
		ExcludeID: txn.ID,
	}
	switch {
	case txn.MerchantName != "":
		query.Merchant = txn.MerchantName
	case txn.CategoryID != nil:
		query.CategoryID = txn.CategoryID
	case txn.Description != "":
		prefix := txn.Description
		if len(prefix) > 20 {
			prefix = prefix[:20]
		}
		query.DescriptionPrefix = prefix
	default:
		return nil, nil
	}

	history, err := env.Store.GetAmountHistory(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load amount history: %w", err)
	}
	if len(history) < 2 {
		return nil, nil
	}

	amounts := make([]float64, len(history))
	for i, a := range history {
		amounts[i], _ = a.Float64()
	}
	current, _ := txn.Amount.Float64()

	avg := mean(amounts)
	stdev := sampleStdev(amounts, avg)

	if stdev == 0 {
		// Constant history; only a large relative change is noteworthy.
		if math.Abs(current-avg) <= math.Abs(avg)*0.5 {
			return nil, nil
		}
		deviation := deviationPercent(current, avg)
		return &model.Anomaly{
			UserID:        env.UserID,
			AccountID:     txn.AccountID,
			TransactionID: &txn.ID,
			Type:          model.AnomalyUnusualAmount,
			Severity:      model.SeverityWarning,
			Title:         "Unusual transaction amount",
			Description:   fmt.Sprintf("Transaction amount of %s differs from typical amount of %.2f", txn.Amount.StringFixed(2), avg),
			Reason:        fmt.Sprintf("All recent transactions are %.2f, but this is %.2f", avg, current),
			Score:         decimal.NewFromInt(60),
			ExpectedValue: decimalPtr(decimal.NewFromFloat(avg).Round(2)),
			ActualValue:   decimalPtr(txn.Amount),
			DeviationPercent: deviation,
			ContextData: map[string]any{
				"historical_count": len(history),
			},
		}, nil
	}

	zScore := math.Abs((current - avg) / stdev)
	if zScore <= 2.0 {
		return nil, nil
	}

	score := math.Min(100, 50+zScore*10)
	if score < env.Prefs.MinimumScore() {
		return nil, nil
	}

	severity := model.SeverityWarning
	if score >= 90 {
		severity = model.SeverityCritical
	}
	direction := "high"
	if current < avg {
		direction = "low"
	}

	return &model.Anomaly{
		UserID:        env.UserID,
		AccountID:     txn.AccountID,
		TransactionID: &txn.ID,
		Type:          model.AnomalyUnusualAmount,
		Severity:      severity,
		Title:         "Unusual transaction amount",
		Description:   fmt.Sprintf("Transaction amount of %s is unusually %s", txn.Amount.StringFixed(2), direction),
		Reason:        fmt.Sprintf("Amount is %.1fσ away from average of %.2f", zScore, avg),
		Score:         decimal.NewFromFloat(score).Round(2),
		ExpectedValue: decimalPtr(decimal.NewFromFloat(avg).Round(2)),
		ActualValue:   decimalPtr(txn.Amount),
		DeviationPercent: deviationPercent(current, avg),
		ContextData: map[string]any{
			"z_score":          zScore,
			"historical_count": len(history),
			"historical_mean":  avg,
			"historical_stdev": stdev,
		},
	}, nil
}

// detectDuplicatePattern flags a transaction when another with the same
// amount and type exists on the account within the preceding 7 days.
func detectDuplicatePattern(ctx context.Context, env *Env, subject Subject) (*model.Anomaly, error) {
	txn := subject.Transaction
	if txn == nil {
		return nil, nil
	}

	since := txn.Date.AddDate(0, 0, -7)
	similar, err := env.Store.FindRecentSameAmount(ctx, txn.AccountID, txn.Amount, txn.Type, since, txn.Date, txn.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicates: %w", err)
	}
	if similar == nil {
		return nil, nil
	}

	return &model.Anomaly{
		UserID:        env.UserID,
		AccountID:     txn.AccountID,
		TransactionID: &txn.ID,
		Type:          model.AnomalyDuplicatePattern,
		Severity:      model.SeverityWarning,
		Title:         "Potential duplicate transaction",
		Description:   fmt.Sprintf("Identical transaction found on %s: %s", similar.Date.Format("2006-01-02"), similar.Description),
		Reason:        fmt.Sprintf("Same amount (%s) and type within 7 days", txn.Amount.StringFixed(2)),
		Score:         decimal.NewFromInt(75),
		ActualValue:   decimalPtr(txn.Amount),
		ContextData: map[string]any{
			"similar_transaction_id": similar.ID,
			"similar_date":           similar.Date.Format("2006-01-02"),
			"days_apart":             int(txn.Date.Sub(similar.Date).Hours() / 24),
		},
	}, nil
}

// detectNewMerchant flags the first transaction ever seen from a merchant
// on this account.
func detectNewMerchant(ctx context.Context, env *Env, subject Subject) (*model.Anomaly, error) {
	txn := subject.Transaction
	if txn == nil || txn.MerchantName == "" {
		return nil, nil
	}

	seen, err := env.Store.MerchantSeen(ctx, txn.AccountID, txn.MerchantName, txn.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant history: %w", err)
	}
	if seen {
		return nil, nil
	}

	return &model.Anomaly{
		UserID:        env.UserID,
		AccountID:     txn.AccountID,
		TransactionID: &txn.ID,
		Type:          model.AnomalyNewMerchant,
		Severity:      model.SeverityInfo,
		Title:         fmt.Sprintf("New merchant: %s", txn.MerchantName),
		Description:   fmt.Sprintf("First transaction with %s", txn.MerchantName),
		Reason:        "This merchant has not been seen before in your transaction history",
		Score:         decimal.NewFromInt(50),
		ContextData:   map[string]any{},
	}, nil
}

// detectSpendingSpike flags a category whose current-month expense
// transaction COUNT exceeds the trailing six-month monthly average times
// the user's spike multiplier.
//
// The baseline is a transaction count, not a currency sum: a burst of
// small purchases trips it, one large purchase does not.
func detectSpendingSpike(ctx context.Context, env *Env, subject Subject) (*model.Anomaly, error) {
	if subject.CategoryID == nil {
		return nil, nil
	}
	categoryID := *subject.CategoryID

	monthStart := time.Date(env.Now.Year(), env.Now.Month(), 1, 0, 0, 0, 0, env.Now.Location())
	current, err := env.Store.CountCategoryExpenses(ctx, subject.AccountID, categoryID, monthStart)
	if err != nil {
		return nil, fmt.Errorf("failed to count current spending: %w", err)
	}

	sixMonthsAgo := env.Now.AddDate(0, 0, -180)
	months, err := env.Store.MonthlyCategoryCounts(ctx, subject.AccountID, categoryID, sixMonthsAgo, monthStart)
	if err != nil {
		return nil, fmt.Errorf("failed to load monthly baseline: %w", err)
	}
	if len(months) == 0 {
		return nil, nil
	}

	total := 0
	for _, m := range months {
		total += m.Count
	}
	avgMonthly := float64(total) / float64(len(months))

	threshold, _ := env.Prefs.SpendingSpikeFactor.Float64()
	if avgMonthly <= 0 || float64(current) <= avgMonthly*threshold {
		return nil, nil
	}

	multiplier := float64(current) / avgMonthly
	score := math.Min(100, 50+multiplier*20)

	return &model.Anomaly{
		UserID:    env.UserID,
		AccountID: subject.AccountID,
		Type:      model.AnomalySpendingSpike,
		Severity:  model.SeverityWarning,
		Title:     "Spending spike detected",
		Description: fmt.Sprintf("You've spent %.1fx your average in this category this month", multiplier),
		Reason:      fmt.Sprintf("Current: %d, Average: %.0f", current, avgMonthly),
		Score:       decimal.NewFromFloat(score).Round(2),
		ExpectedValue: decimalPtr(decimal.NewFromFloat(avgMonthly).Round(2)),
		ActualValue:   decimalPtr(decimal.NewFromInt(int64(current))),
		ContextData: map[string]any{
			"category_id": categoryID,
			"multiplier":  multiplier,
		},
	}, nil
}

// detectMissingRecurring flags an active, non-ignored recurring payment
// whose next expected date has passed.
func detectMissingRecurring(_ context.Context, env *Env, subject Subject) (*model.Anomaly, error) {
	recurring := subject.Recurring
	if recurring == nil || recurring.IsIgnored || !recurring.IsActive {
		return nil, nil
	}
	if !env.Now.After(recurring.NextExpectedDate) {
		return nil, nil
	}

	daysOverdue := int(env.Now.Sub(recurring.NextExpectedDate).Hours() / 24)
	severity := model.SeverityWarning
	if daysOverdue > 7 {
		severity = model.SeverityCritical
	}
	score := math.Min(100, float64(60+daysOverdue*2))

	return &model.Anomaly{
		UserID:      env.UserID,
		AccountID:   recurring.AccountID,
		RecurringID: &recurring.ID,
		Type:        model.AnomalyMissingRecurring,
		Severity:    severity,
		Title:       fmt.Sprintf("Missing recurring payment: %s", recurring.GetDisplayName()),
		Description: fmt.Sprintf("%s was expected %d days ago", recurring.GetDisplayName(), daysOverdue),
		Reason:      fmt.Sprintf("Expected on %s, but not found", recurring.NextExpectedDate.Format("2006-01-02")),
		Score:       decimal.NewFromFloat(score),
		ExpectedValue: decimalPtr(recurring.Amount),
		ContextData: map[string]any{
			"expected_date": recurring.NextExpectedDate.Format("2006-01-02"),
			"days_overdue":  daysOverdue,
			"frequency":     string(recurring.Frequency),
		},
	}, nil
}

// detectChangedRecurring flags a recurring payment whose recent
// occurrences no longer agree on an amount.
func detectChangedRecurring(ctx context.Context, env *Env, subject Subject) (*model.Anomaly, error) {
	recurring := subject.Recurring
	if recurring == nil || recurring.MerchantName == "" {
		return nil, nil
	}

	since := env.Now.AddDate(0, 0, -90)
	recent, err := env.Store.RecentByMerchant(ctx, recurring.AccountID, recurring.MerchantName, model.TypeExpense, since, 5)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent occurrences: %w", err)
	}
	if len(recent) < 2 {
		return nil, nil
	}

	minAmount := recent[0].Amount
	maxAmount := recent[0].Amount
	amounts := make([]string, 0, len(recent))
	for _, txn := range recent {
		if txn.Amount.LessThan(minAmount) {
			minAmount = txn.Amount
		}
		if txn.Amount.GreaterThan(maxAmount) {
			maxAmount = txn.Amount
		}
		amounts = append(amounts, txn.Amount.StringFixed(2))
	}
	if minAmount.Equal(maxAmount) {
		return nil, nil
	}

	return &model.Anomaly{
		UserID:      env.UserID,
		AccountID:   recurring.AccountID,
		RecurringID: &recurring.ID,
		Type:        model.AnomalyChangedRecurring,
		Severity:    model.SeverityWarning,
		Title:       fmt.Sprintf("Changed amount: %s", recurring.GetDisplayName()),
		Description: fmt.Sprintf("Amount varies: %s - %s", minAmount.StringFixed(2), maxAmount.StringFixed(2)),
		Reason:      fmt.Sprintf("Recent amounts differ from recorded %s", recurring.Amount.StringFixed(2)),
		Score:       decimal.NewFromInt(75),
		ExpectedValue: decimalPtr(recurring.Amount),
		ActualValue:   decimalPtr(maxAmount),
		ContextData: map[string]any{
			"recent_amounts": amounts,
			"min_amount":     minAmount.StringFixed(2),
			"max_amount":     maxAmount.StringFixed(2),
		},
	}, nil
}

// detectAccountInactive flags an account with no transactions within the
// user's inactivity threshold.
func detectAccountInactive(ctx context.Context, env *Env, subject Subject) (*model.Anomaly, error) {
	last, err := env.Store.LastTransactionDate(ctx, subject.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load last transaction date: %w", err)
	}
	if last == nil {
		return nil, nil
	}

	threshold := env.Now.AddDate(0, 0, -env.Prefs.DaysBeforeInactive)
	if !last.Before(threshold) {
		return nil, nil
	}

	daysInactive := int(env.Now.Sub(*last).Hours() / 24)
	return &model.Anomaly{
		UserID:      env.UserID,
		AccountID:   subject.AccountID,
		Type:        model.AnomalyAccountInactive,
		Severity:    model.SeverityInfo,
		Title:       "Account is inactive",
		Description: fmt.Sprintf("No transactions in %d days", daysInactive),
		Reason:      fmt.Sprintf("Last transaction: %s", last.Format("2006-01-02")),
		Score:       decimal.NewFromInt(50),
		ContextData: map[string]any{
			"last_transaction_date": last.Format("2006-01-02"),
			"days_inactive":         daysInactive,
		},
	}, nil
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// deviationPercent returns (current-mean)/mean*100, or nil when the mean
// is zero.
func deviationPercent(current, avg float64) *decimal.Decimal {
	if avg == 0 {
		return nil
	}
	d := decimal.NewFromFloat((current - avg) / avg * 100).Round(2)
	return &d
}
