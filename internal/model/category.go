package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category represents a user-defined transaction category.
type Category struct {
	CreatedAt   time.Time
	Name        string
	Description string
	ID          int64
	UserID      int64
	IsActive    bool
}

// Rule is a first-match categorization rule. Rules are evaluated in
// ascending priority order and the first match assigns its category.
type Rule struct {
	CreatedAt time.Time
	UpdatedAt time.Time

	// Conditions; nil/empty means "any".
	AmountMin       *decimal.Decimal
	AmountMax       *decimal.Decimal
	DateFrom        *time.Time
	DateTo          *time.Time
	HasCategory     *bool
	Name            string
	DescriptionLike string // case-insensitive substring on description
	MerchantPattern string // regex on merchant name
	Type            TransactionType

	ID         int64
	UserID     int64
	CategoryID int64
	Priority   int
	IsActive   bool
}
