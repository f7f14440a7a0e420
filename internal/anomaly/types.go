// Package anomaly detects irregularities in account activity: unusual
// amounts, duplicates, new merchants, spending spikes, missed or changed
// recurring payments, and inactive accounts. Each detector is an
// independent strategy keyed by anomaly type; all consult user
// preferences before running and produce zero or one anomaly.
package anomaly

import (
	"context"

	"github.com/finsentry/finsentry/internal/model"
)

// lookbackDays is the historical baseline window for amount statistics.
const lookbackDays = 180

// dedupWindowHours is the rolling suppression window: at most one
// undismissed anomaly per (user, account, type) within this many hours.
const dedupWindowHours = 24

// Subject is what a detector inspects. Exactly the fields a given
// detector needs are set; the rest are zero.
type Subject struct {
	Transaction *model.Transaction
	Recurring   *model.RecurringTransaction
	CategoryID  *int64
	AccountID   int64
}

// DetectorFunc is the common contract every detector implements: inspect
// the subject, return one anomaly or nil. Degenerate statistics and
// insufficient history return (nil, nil), never an error.
type DetectorFunc func(ctx context.Context, env *Env, subject Subject) (*model.Anomaly, error)

// detectors is the strategy table. unusual_timing and multiple_failures
// are valid preference types but have no shipped rule yet.
func detectors() map[model.AnomalyType]DetectorFunc {
	return map[model.AnomalyType]DetectorFunc{
		model.AnomalyUnusualAmount:    detectUnusualAmount,
		model.AnomalyDuplicatePattern: detectDuplicatePattern,
		model.AnomalyNewMerchant:      detectNewMerchant,
		model.AnomalySpendingSpike:    detectSpendingSpike,
		model.AnomalyMissingRecurring: detectMissingRecurring,
		model.AnomalyChangedRecurring: detectChangedRecurring,
		model.AnomalyAccountInactive:  detectAccountInactive,
	}
}

// transactionDetectors are the types evaluated for each new transaction,
// in a fixed order so runs are deterministic.
var transactionDetectors = []model.AnomalyType{
	model.AnomalyUnusualAmount,
	model.AnomalyDuplicatePattern,
	model.AnomalyNewMerchant,
}

// accountDetectors are the types evaluated per account sweep.
var accountDetectors = []model.AnomalyType{
	model.AnomalyAccountInactive,
}
