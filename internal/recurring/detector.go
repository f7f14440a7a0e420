package recurring

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsentry/finsentry/internal/model"
)

// Config holds the tunable thresholds of the pattern detector.
type Config struct {
	// LookbackDays bounds how far back a detection run reads transactions.
	LookbackDays int
	// MinConfidence is the floor below which patterns are discarded.
	MinConfidence float64
	// IntervalTolerance is the allowed relative deviation of an interval
	// from the frequency's expected day count.
	IntervalTolerance float64
	// AmountTolerance is the relative deviation from the group mean within
	// which an amount counts as consistent.
	AmountTolerance float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		LookbackDays:      365 * 5,
		MinConfidence:     0.6,
		IntervalTolerance: 0.3,
		AmountTolerance:   0.05,
	}
}

// Detector evaluates candidate groups against the set of detectable
// frequencies and emits at most one pattern per group.
type Detector struct {
	logger *slog.Logger
	cfg    Config
}

// NewDetector creates a detector with the given configuration.
func NewDetector(cfg Config, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cfg: cfg, logger: logger}
}

// candidate is one frequency's evaluation of a group.
type candidate struct {
	pattern           model.RecurringPattern
	allIntervalsValid bool
}

// DetectPatterns runs the full pipeline over a transaction set: group,
// evaluate, select the best frequency per group. Results are sorted by
// confidence, then occurrence count, descending.
func (d *Detector) DetectPatterns(txns []model.Transaction) []model.RecurringPattern {
	groups := GroupTransactions(txns)

	var patterns []model.RecurringPattern
	for _, group := range groups {
		if pattern := d.BestPattern(group); pattern != nil {
			patterns = append(patterns, *pattern)
		}
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].ConfidenceScore != patterns[j].ConfidenceScore {
			return patterns[i].ConfidenceScore > patterns[j].ConfidenceScore
		}
		return patterns[i].OccurrenceCount > patterns[j].OccurrenceCount
	})
	return patterns
}

// BestPattern evaluates every frequency for a group and returns the single
// best-scoring one, or nil. A group never yields more than one frequency;
// reporting "monthly AND quarterly" for the same obligation would be a
// duplicate.
func (d *Detector) BestPattern(group Group) *model.RecurringPattern {
	var best *candidate
	bestScore := -1.0

	for _, freq := range model.Frequencies() {
		cand := d.evaluate(group, freq)
		if cand == nil {
			continue
		}
		score := compositeScore(cand)
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}

	if best == nil {
		return nil
	}
	return &best.pattern
}

// compositeScore ranks frequencies that all passed the confidence floor.
// More specific frequencies and better-evidenced groups win ties.
func compositeScore(c *candidate) float64 {
	freq := c.pattern.Frequency
	occupancy := float64(c.pattern.OccurrenceCount) / float64(freq.MinOccurrences()+1)
	bonus := 0.0
	if c.allIntervalsValid {
		bonus = 1.0
	}
	return 0.5*c.pattern.ConfidenceScore +
		0.2*float64(freq.Priority())/5.0 +
		0.2*math.Min(occupancy, 1.0) +
		0.1*bonus
}

// evaluate tests one group against one frequency, returning nil when the
// group cannot represent that frequency.
func (d *Detector) evaluate(group Group, freq model.Frequency) *candidate {
	minOccurrences := freq.MinOccurrences()
	if len(group.Transactions) < minOccurrences {
		return nil
	}

	txns := make([]model.Transaction, len(group.Transactions))
	copy(txns, group.Transactions)
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Date.Before(txns[j].Date)
	})

	expectedDays := freq.DaysInterval()
	tolerance := float64(expectedDays) * d.cfg.IntervalTolerance

	validIntervals := 0
	totalIntervals := len(txns) - 1
	for i := 0; i < totalIntervals; i++ {
		interval := daysBetween(txns[i].Date, txns[i+1].Date)
		if math.Abs(float64(interval)-float64(expectedDays)) <= tolerance {
			validIntervals++
		}
	}

	if validIntervals < minOccurrences-1 {
		return nil
	}

	sum := decimal.Zero
	for _, txn := range txns {
		sum = sum.Add(txn.Amount)
	}
	avgAmount := sum.Div(decimal.NewFromInt(int64(len(txns))))
	if avgAmount.IsZero() {
		// Cannot compute relative deviation against a zero baseline.
		return nil
	}

	avg, _ := avgAmount.Float64()
	matchingAmounts := 0
	for _, txn := range txns {
		amt, _ := txn.Amount.Float64()
		if math.Abs(amt-avg)/math.Abs(avg) <= d.cfg.AmountTolerance {
			matchingAmounts++
		}
	}

	intervalConsistency := float64(validIntervals) / float64(totalIntervals)
	amountConsistency := float64(matchingAmounts) / float64(len(txns))
	occurrenceRatio := float64(len(txns)) / float64(minOccurrences)

	base := 0.5*intervalConsistency +
		0.3*amountConsistency +
		0.2*math.Min(occurrenceRatio, 1.0)

	confidence := base * PassMultiplier(group.Pass)
	if confidence < d.cfg.MinConfidence {
		return nil
	}

	lastDate := txns[len(txns)-1].Date
	ids := make([]int64, len(txns))
	for i, txn := range txns {
		ids[i] = txn.ID
	}

	return &candidate{
		allIntervalsValid: validIntervals == totalIntervals,
		pattern: model.RecurringPattern{
			Description:        group.Key,
			MerchantName:       group.MerchantName,
			Amount:             avgAmount.Round(2),
			Frequency:          freq,
			DaysInterval:       expectedDays,
			LastOccurrenceDate: lastDate,
			NextExpectedDate:   lastDate.AddDate(0, 0, expectedDays),
			OccurrenceCount:    len(txns),
			ConfidenceScore:    confidence,
			TransactionIDs:     ids,
			SimilarDescs:       uniqueDescriptions(txns),
		},
	}
}

// uniqueDescriptions returns the distinct raw descriptions of a group in
// first-seen order.
func uniqueDescriptions(txns []model.Transaction) []string {
	seen := make(map[string]struct{}, len(txns))
	var descs []string
	for _, txn := range txns {
		if _, ok := seen[txn.Description]; ok {
			continue
		}
		seen[txn.Description] = struct{}{}
		descs = append(descs, txn.Description)
	}
	return descs
}

// daysBetween counts whole days between two dates, ignoring clock time.
func daysBetween(a, b time.Time) int {
	aDay := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bDay := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bDay.Sub(aDay).Hours() / 24)
}
