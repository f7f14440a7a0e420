// Package model defines the core data structures for the finsentry application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes money in, money out, and internal movement.
type TransactionType string

// Transaction type constants.
const (
	TypeIncome   TransactionType = "income"
	TypeExpense  TransactionType = "expense"
	TypeTransfer TransactionType = "transfer"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeTransfer:
		return true
	}
	return false
}

// Transaction represents a single bank transaction from any statement source.
type Transaction struct {
	Date        time.Time
	BookingDate *time.Time
	CategoryID  *int64
	Amount      decimal.Decimal

	Description     string
	Reference       string // textual reference / Verwendungszweck from the bank
	ReferenceNumber string // bank-assigned transaction identifier
	Hash            string

	// Counterparty identity as supplied by the bank. Far more reliable
	// than the free-text description when present.
	PartnerName string
	PartnerIBAN string

	// Merchant metadata, typically present on card transactions.
	MerchantName  string
	PaymentMethod string // e.g. CARD, SEPA, TRANSFER
	CardBrand     string // e.g. VISA, Mastercard

	Type TransactionType

	ID        int64
	AccountID int64
}

// GenerateHash creates a stable hash for duplicate detection on import.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%d",
		t.Date.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		t.Description,
		t.ReferenceNumber,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// IsAnalyzable reports whether the transaction participates in recurrence
// detection. Transfers between own accounts are excluded.
func (t *Transaction) IsAnalyzable() bool {
	return t.Type == TypeExpense || t.Type == TypeIncome
}
