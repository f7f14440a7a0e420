package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sensitivity controls how strong a signal must be before an anomaly is
// reported. Low sensitivity keeps only near-certain anomalies.
type Sensitivity string

// Sensitivity constants.
const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// AnomalyPreferences holds one user's anomaly detection settings.
// Created lazily with defaults on first detector use.
type AnomalyPreferences struct {
	CreatedAt time.Time
	UpdatedAt time.Time

	Sensitivity  Sensitivity
	EnabledTypes []AnomalyType

	AmountDeviationPercent decimal.Decimal
	SpendingSpikeFactor    decimal.Decimal
	DaysBeforeInactive     int

	ID     int64
	UserID int64

	DetectionEnabled   bool
	NotifyOnCritical   bool
	NotifyOnWarning    bool
	NotifyOnInfo       bool
	EmailNotifications bool
	PushNotifications  bool
}

// DefaultAnomalyPreferences returns the settings materialized on first access.
func DefaultAnomalyPreferences(userID int64) *AnomalyPreferences {
	return &AnomalyPreferences{
		UserID:                 userID,
		DetectionEnabled:       true,
		Sensitivity:            SensitivityMedium,
		EnabledTypes:           AllAnomalyTypes(),
		AmountDeviationPercent: decimal.NewFromInt(50),
		SpendingSpikeFactor:    decimal.NewFromInt(2),
		DaysBeforeInactive:     30,
		NotifyOnCritical:       true,
		PushNotifications:      true,
	}
}

// MinimumScore maps sensitivity to the minimum anomaly score that is
// reported: low 90, medium 70, high 50.
func (p *AnomalyPreferences) MinimumScore() float64 {
	switch p.Sensitivity {
	case SensitivityLow:
		return 90
	case SensitivityHigh:
		return 50
	default:
		return 70
	}
}

// TypeEnabled reports whether a detector type is switched on.
func (p *AnomalyPreferences) TypeEnabled(t AnomalyType) bool {
	for _, enabled := range p.EnabledTypes {
		if enabled == t {
			return true
		}
	}
	return false
}
