package rules

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/finsentry/finsentry/internal/model"
)

func expenseTxn(description, merchant string, amount float64) model.Transaction {
	return model.Transaction{
		Date:         time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Amount:       decimal.NewFromFloat(amount),
		Description:  description,
		MerchantName: merchant,
		Type:         model.TypeExpense,
		AccountID:    1,
	}
}

func TestEngine_FirstMatchWins(t *testing.T) {
	ruleSet := []model.Rule{
		{Name: "groceries", DescriptionLike: "rewe", CategoryID: 10, Priority: 1},
		{Name: "everything", DescriptionLike: "rewe", CategoryID: 20, Priority: 2},
	}
	engine := NewEngine(ruleSet, nil)

	txn := expenseTxn("REWE Markt Berlin", "", 23.50)
	got := engine.Match(&txn)
	if assert.NotNil(t, got) {
		assert.Equal(t, int64(10), *got)
	}
}

func TestEngine_Conditions(t *testing.T) {
	min := decimal.NewFromInt(100)
	max := decimal.NewFromInt(500)
	hasCategory := false

	tests := []struct {
		name string
		rule model.Rule
		txn  model.Transaction
		want bool
	}{
		{
			name: "merchant regex matches case-insensitively",
			rule: model.Rule{MerchantPattern: `^netflix`, CategoryID: 1},
			txn:  expenseTxn("Monthly billing", "NETFLIX.COM", 12.99),
			want: true,
		},
		{
			name: "merchant regex non-match",
			rule: model.Rule{MerchantPattern: `^netflix`, CategoryID: 1},
			txn:  expenseTxn("Monthly billing", "Spotify AB", 9.99),
			want: false,
		},
		{
			name: "amount range match",
			rule: model.Rule{AmountMin: &min, AmountMax: &max, CategoryID: 1},
			txn:  expenseTxn("Rent", "", 250),
			want: true,
		},
		{
			name: "amount below range",
			rule: model.Rule{AmountMin: &min, CategoryID: 1},
			txn:  expenseTxn("Coffee", "", 4.50),
			want: false,
		},
		{
			name: "type mismatch",
			rule: model.Rule{Type: model.TypeIncome, CategoryID: 1},
			txn:  expenseTxn("Salary", "", 3000),
			want: false,
		},
		{
			name: "requires uncategorized",
			rule: model.Rule{HasCategory: &hasCategory, CategoryID: 1},
			txn:  expenseTxn("Anything", "", 10),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine([]model.Rule{tt.rule}, nil)
			got := engine.Match(&tt.txn)
			assert.Equal(t, tt.want, got != nil)
		})
	}
}

func TestEngine_SkipsInvalidPattern(t *testing.T) {
	ruleSet := []model.Rule{
		{Name: "broken", MerchantPattern: `([`, CategoryID: 1, Priority: 1},
		{Name: "fallback", DescriptionLike: "netflix", CategoryID: 2, Priority: 2},
	}
	engine := NewEngine(ruleSet, nil)

	txn := expenseTxn("Netflix billing", "", 12.99)
	got := engine.Match(&txn)
	if assert.NotNil(t, got) {
		assert.Equal(t, int64(2), *got)
	}
}

func TestEngine_Apply(t *testing.T) {
	existing := int64(99)
	ruleSet := []model.Rule{
		{Name: "streaming", DescriptionLike: "netflix", CategoryID: 5, Priority: 1},
	}
	engine := NewEngine(ruleSet, nil)

	txns := []model.Transaction{
		expenseTxn("Netflix billing", "", 12.99),
		expenseTxn("Bakery", "", 3.20),
		expenseTxn("netflix.com", "", 12.99),
	}
	txns[2].CategoryID = &existing

	matched := engine.Apply(txns)
	assert.Equal(t, 1, matched)
	if assert.NotNil(t, txns[0].CategoryID) {
		assert.Equal(t, int64(5), *txns[0].CategoryID)
	}
	assert.Nil(t, txns[1].CategoryID)
	// Already-categorized transactions are left alone.
	assert.Equal(t, existing, *txns[2].CategoryID)
}
