package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AnomalyType identifies which detector produced an anomaly.
type AnomalyType string

// Anomaly type constants.
const (
	AnomalyUnusualAmount    AnomalyType = "unusual_amount"
	AnomalyUnusualTiming    AnomalyType = "unusual_timing"
	AnomalyDuplicatePattern AnomalyType = "duplicate_pattern"
	AnomalyMissingRecurring AnomalyType = "missing_recurring"
	AnomalyChangedRecurring AnomalyType = "changed_recurring"
	AnomalySpendingSpike    AnomalyType = "spending_spike"
	AnomalyNewMerchant      AnomalyType = "new_merchant"
	AnomalyAccountInactive  AnomalyType = "account_inactive"
	AnomalyMultipleFailures AnomalyType = "multiple_failures"
)

// AllAnomalyTypes returns every anomaly type, in the order preferences
// enable them by default.
func AllAnomalyTypes() []AnomalyType {
	return []AnomalyType{
		AnomalyUnusualAmount,
		AnomalyUnusualTiming,
		AnomalyDuplicatePattern,
		AnomalyMissingRecurring,
		AnomalyChangedRecurring,
		AnomalySpendingSpike,
		AnomalyNewMerchant,
		AnomalyAccountInactive,
		AnomalyMultipleFailures,
	}
}

// AnomalySeverity grades an anomaly: info < warning < critical.
type AnomalySeverity string

// Severity constants.
const (
	SeverityInfo     AnomalySeverity = "info"
	SeverityWarning  AnomalySeverity = "warning"
	SeverityCritical AnomalySeverity = "critical"
)

// Anomaly is a detected irregularity in an account's activity.
type Anomaly struct {
	CreatedAt time.Time

	// Optional values describing the deviation; nil when the rule has
	// no meaningful expectation (e.g. new merchant).
	ExpectedValue    *decimal.Decimal
	ActualValue      *decimal.Decimal
	DeviationPercent *decimal.Decimal

	TransactionID *int64
	RecurringID   *int64

	ContextData map[string]any

	Type        AnomalyType
	Severity    AnomalySeverity
	Title       string
	Description string
	Reason      string

	// Score is a 0-100 confidence that this is worth the user's attention.
	Score decimal.Decimal

	ID        int64
	UserID    int64
	AccountID int64

	IsDismissed     bool
	IsFalsePositive bool
	IsConfirmed     bool
}

// AnomalyNotification records channel delivery for one anomaly.
type AnomalyNotification struct {
	CreatedAt        time.Time
	ID               int64
	UserID           int64
	AnomalyID        int64
	IsRead           bool
	NotifiedViaEmail bool
	NotifiedViaPush  bool
}
