package recurring

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsentry/finsentry/internal/model"
)

func testTxn(id int64, date string, amount float64) model.Transaction {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return model.Transaction{
		ID:        id,
		AccountID: 1,
		Date:      d,
		Amount:    decimal.NewFromFloat(amount),
		Type:      model.TypeExpense,
	}
}

func withPartner(txn model.Transaction, name, iban string) model.Transaction {
	txn.PartnerName = name
	txn.PartnerIBAN = iban
	return txn
}

func withMerchant(txn model.Transaction, name string) model.Transaction {
	txn.MerchantName = name
	return txn
}

func TestGroupTransactions_PartnerPassClaimsFirst(t *testing.T) {
	// Same merchant name everywhere, but two transactions also carry
	// partner identity. Pass 1 claims those; pass 2 gets the rest.
	txns := []model.Transaction{
		withMerchant(withPartner(testTxn(1, "2024-01-01", 9.99), "Netflix", "DE02100100100006820101"), "Netflix"),
		withMerchant(withPartner(testTxn(2, "2024-02-01", 9.99), "Netflix", "DE02100100100006820101"), "Netflix"),
		withMerchant(testTxn(3, "2024-03-01", 9.99), "Netflix"),
		withMerchant(testTxn(4, "2024-04-01", 9.99), "Netflix"),
	}

	groups := GroupTransactions(txns)
	require.Len(t, groups, 2)

	assert.Equal(t, 1, groups[0].Pass)
	assert.Len(t, groups[0].Transactions, 2)
	assert.Equal(t, "Netflix", groups[0].MerchantName)

	assert.Equal(t, 2, groups[1].Pass)
	assert.Len(t, groups[1].Transactions, 2)
}

func TestGroupTransactions_PartnerRequiresIBANAndName(t *testing.T) {
	// Name without IBAN is not enough for pass 1.
	txns := []model.Transaction{
		withPartner(testTxn(1, "2024-01-01", 50), "Stadtwerke", ""),
		withPartner(testTxn(2, "2024-02-01", 50), "Stadtwerke", ""),
	}

	groups := GroupTransactions(txns)
	require.Len(t, groups, 1)
	assert.Equal(t, 3, groups[0].Pass)
}

func TestGroupTransactions_MerchantFuzzyOverlap(t *testing.T) {
	txns := []model.Transaction{
		withMerchant(testTxn(1, "2024-01-05", 12.50), "Edeka Markt Nord GmbH"),
		withMerchant(testTxn(2, "2024-02-05", 12.50), "Edeka Markt Sued GmbH"),
		withMerchant(testTxn(3, "2024-03-05", 99.00), "Netflix"),
	}

	groups := GroupTransactions(txns)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Pass)
	assert.Len(t, groups[0].Transactions, 2)
	assert.Equal(t, "Edeka Markt Nord GmbH", groups[0].MerchantName)
}

func TestGroupTransactions_DescriptionFallback(t *testing.T) {
	a := testTxn(1, "2024-01-01", 800)
	a.Description = "Miete Wohnung Januar 2024"
	b := testTxn(2, "2024-02-01", 800)
	b.Description = "Miete Wohnung Februar 2024"

	groups := GroupTransactions([]model.Transaction{a, b})
	require.Len(t, groups, 1)
	assert.Equal(t, 3, groups[0].Pass)
	assert.Len(t, groups[0].Transactions, 2)
}

func TestGroupTransactions_SingletonsDropped(t *testing.T) {
	a := testTxn(1, "2024-01-01", 10)
	a.Description = "One-off purchase hardware store"
	b := testTxn(2, "2024-02-01", 20)
	b.Description = "Completely different booking text"

	groups := GroupTransactions([]model.Transaction{a, b})
	assert.Empty(t, groups)
}

func TestPassMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, PassMultiplier(1))
	assert.Equal(t, 0.85, PassMultiplier(2))
	assert.Equal(t, 0.65, PassMultiplier(3))
	assert.Zero(t, PassMultiplier(4))
}
