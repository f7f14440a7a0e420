package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the cadence of a recurring obligation.
type Frequency string

// Frequency constants, ordered most to least specific.
const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiWeekly  Frequency = "bi-weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// Frequencies lists every detectable frequency.
func Frequencies() []Frequency {
	return []Frequency{
		FrequencyWeekly,
		FrequencyBiWeekly,
		FrequencyMonthly,
		FrequencyQuarterly,
		FrequencyYearly,
	}
}

// DaysInterval returns the approximate day count for one period.
func (f Frequency) DaysInterval() int {
	switch f {
	case FrequencyWeekly:
		return 7
	case FrequencyBiWeekly:
		return 14
	case FrequencyMonthly:
		return 30
	case FrequencyQuarterly:
		return 90
	case FrequencyYearly:
		return 365
	}
	return 0
}

// MinOccurrences returns how many transactions are needed before this
// frequency is even considered. Weekly patterns need more evidence than
// yearly ones because short intervals match noise more easily.
func (f Frequency) MinOccurrences() int {
	switch f {
	case FrequencyWeekly, FrequencyBiWeekly:
		return 3
	case FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return 2
	}
	return 0
}

// Priority ranks frequencies for tie-breaking when several fit a group.
// More specific frequencies are easier to verify and win ties.
func (f Frequency) Priority() int {
	switch f {
	case FrequencyWeekly:
		return 5
	case FrequencyBiWeekly:
		return 4
	case FrequencyMonthly:
		return 3
	case FrequencyQuarterly:
		return 2
	case FrequencyYearly:
		return 1
	}
	return 0
}

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	return f.DaysInterval() > 0
}

// RecurringPattern is the value object produced by a detection run,
// before it is upserted into persistent storage.
type RecurringPattern struct {
	NextExpectedDate   time.Time
	LastOccurrenceDate time.Time
	Amount             decimal.Decimal
	Description        string
	MerchantName       string
	Frequency          Frequency
	TransactionIDs     []int64
	SimilarDescs       []string
	DaysInterval       int
	OccurrenceCount    int
	ConfidenceScore    float64
}

// RecurringTransaction is a persisted recurring pattern. Rows are keyed
// by (account, description, frequency); re-detection updates them in place.
type RecurringTransaction struct {
	DetectedAt       time.Time
	UpdatedAt        time.Time
	NextExpectedDate time.Time
	LastOccurrence   time.Time
	Amount           decimal.Decimal

	Description  string
	MerchantName string
	DisplayName  string
	UserNotes    string
	Frequency    Frequency

	TransactionIDs []int64
	SimilarDescs   []string

	ID              int64
	AccountID       int64
	UserID          int64
	OccurrenceCount int
	ConfidenceScore float64
	IsActive        bool
	IsIgnored       bool
}

// GetDisplayName returns the best human-readable name for the pattern.
func (r *RecurringTransaction) GetDisplayName() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	if r.MerchantName != "" {
		return r.MerchantName
	}
	return r.Description
}

// IsOverdue reports whether the next expected occurrence has been missed.
func (r *RecurringTransaction) IsOverdue(now time.Time) bool {
	return now.After(r.NextExpectedDate)
}

// Per-frequency factors for projecting a recurring amount onto a month
// (~4.33 weeks per month) and onto a year.
var (
	monthlyFactor = map[Frequency]decimal.Decimal{
		FrequencyWeekly:    decimal.RequireFromString("4.33"),
		FrequencyBiWeekly:  decimal.RequireFromString("2.17"),
		FrequencyMonthly:   decimal.NewFromInt(1),
		FrequencyQuarterly: decimal.NewFromInt(1).Div(decimal.NewFromInt(3)),
		FrequencyYearly:    decimal.NewFromInt(1).Div(decimal.NewFromInt(12)),
	}
	yearlyFactor = map[Frequency]decimal.Decimal{
		FrequencyWeekly:    decimal.NewFromInt(52),
		FrequencyBiWeekly:  decimal.NewFromInt(26),
		FrequencyMonthly:   decimal.NewFromInt(12),
		FrequencyQuarterly: decimal.NewFromInt(4),
		FrequencyYearly:    decimal.NewFromInt(1),
	}
)

// MonthlyCost projects the recurring amount onto a single month.
func (r *RecurringTransaction) MonthlyCost() decimal.Decimal {
	return r.Amount.Mul(monthlyFactor[r.Frequency]).Round(2)
}

// YearlyCost projects the recurring amount onto a full year.
func (r *RecurringTransaction) YearlyCost() decimal.Decimal {
	return r.Amount.Mul(yearlyFactor[r.Frequency]).Round(2)
}
