// Package rules applies user-defined categorization rules to transactions.
package rules

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/finsentry/finsentry/internal/model"
)

// compiledRule pairs a rule with its precompiled merchant pattern.
type compiledRule struct {
	pattern *regexp.Regexp
	rule    model.Rule
}

// Engine evaluates rules in ascending priority order and assigns the
// category of the first match.
type Engine struct {
	logger *slog.Logger
	rules  []compiledRule
}

// NewEngine compiles the given rules. Rules with an invalid merchant
// pattern are skipped with a warning rather than failing the whole set.
func NewEngine(ruleSet []model.Rule, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	compiled := make([]compiledRule, 0, len(ruleSet))
	for _, rule := range ruleSet {
		var pattern *regexp.Regexp
		if rule.MerchantPattern != "" {
			var err error
			pattern, err = regexp.Compile("(?i)" + rule.MerchantPattern)
			if err != nil {
				logger.Warn("skipping rule with invalid merchant pattern",
					"rule", rule.Name,
					"pattern", rule.MerchantPattern,
					"error", err)
				continue
			}
		}
		compiled = append(compiled, compiledRule{rule: rule, pattern: pattern})
	}

	return &Engine{rules: compiled, logger: logger}
}

// Match returns the category ID of the first matching rule, or nil when
// no rule matches.
func (e *Engine) Match(txn *model.Transaction) *int64 {
	for i := range e.rules {
		if e.matches(&e.rules[i], txn) {
			categoryID := e.rules[i].rule.CategoryID
			return &categoryID
		}
	}
	return nil
}

// Apply assigns categories to transactions in place and returns how many
// were categorized.
func (e *Engine) Apply(transactions []model.Transaction) int {
	matched := 0
	for i := range transactions {
		if transactions[i].CategoryID != nil {
			continue
		}
		if categoryID := e.Match(&transactions[i]); categoryID != nil {
			transactions[i].CategoryID = categoryID
			matched++
		}
	}
	return matched
}

func (e *Engine) matches(cr *compiledRule, txn *model.Transaction) bool {
	rule := &cr.rule

	if rule.Type != "" && rule.Type != txn.Type {
		return false
	}
	if rule.DescriptionLike != "" &&
		!strings.Contains(strings.ToLower(txn.Description), strings.ToLower(rule.DescriptionLike)) {
		return false
	}
	if cr.pattern != nil && !cr.pattern.MatchString(txn.MerchantName) {
		return false
	}
	if rule.AmountMin != nil && txn.Amount.LessThan(*rule.AmountMin) {
		return false
	}
	if rule.AmountMax != nil && txn.Amount.GreaterThan(*rule.AmountMax) {
		return false
	}
	if rule.DateFrom != nil && txn.Date.Before(*rule.DateFrom) {
		return false
	}
	if rule.DateTo != nil && txn.Date.After(*rule.DateTo) {
		return false
	}
	if rule.HasCategory != nil && *rule.HasCategory != (txn.CategoryID != nil) {
		return false
	}
	return true
}
