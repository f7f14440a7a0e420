// Package service defines the interfaces between finsentry's components.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsentry/finsentry/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate  *time.Time
	EndDate    *time.Time
	CategoryID *int64
	Type       model.TransactionType
	AccountID  int64
	Limit      int
	Offset     int
}

// AmountHistoryQuery selects the historical baseline for the unusual-amount
// detector. Exactly one of Merchant, CategoryID, or DescriptionPrefix is set.
type AmountHistoryQuery struct {
	Since             time.Time
	CategoryID        *int64
	Merchant          string
	DescriptionPrefix string
	Type              model.TransactionType
	AccountID         int64
	ExcludeID         int64
}

// MonthCount is a per-month transaction count for spike baselines.
type MonthCount struct {
	Year  int
	Month time.Month
	Count int
}

// RecurringFilter defines filtering options for recurring pattern queries.
type RecurringFilter struct {
	AccountID  *int64
	Frequency  model.Frequency
	UserID     int64
	OnlyActive bool
	OnlyIgnore bool
}

// AnomalyFilter defines filtering options for anomaly queries.
type AnomalyFilter struct {
	Since     *time.Time
	AccountID *int64
	Type      model.AnomalyType
	Severity  model.AnomalySeverity
	UserID    int64
	Undismissed bool
	Limit     int
}

// Storage defines the contract for the persistence layer.
type Storage interface {
	// User and account operations
	CreateUser(ctx context.Context, name, email string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateAccount(ctx context.Context, account *model.Account) (*model.Account, error)
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	ListAccounts(ctx context.Context, userID int64) ([]model.Account, error)

	// Transaction operations
	SaveTransactions(ctx context.Context, transactions []model.Transaction) ([]int64, error)
	GetTransactionByID(ctx context.Context, id int64) (*model.Transaction, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	GetTransactionsForDetection(ctx context.Context, accountID int64, since time.Time) ([]model.Transaction, error)
	UpdateTransactionCategory(ctx context.Context, transactionID, categoryID int64) error

	// Anomaly baseline queries
	GetAmountHistory(ctx context.Context, q AmountHistoryQuery) ([]decimal.Decimal, error)
	FindRecentSameAmount(ctx context.Context, accountID int64, amount decimal.Decimal, txnType model.TransactionType, since, before time.Time, excludeID int64) (*model.Transaction, error)
	MerchantSeen(ctx context.Context, accountID int64, merchant string, excludeID int64) (bool, error)
	MonthlyCategoryCounts(ctx context.Context, accountID, categoryID int64, since, before time.Time) ([]MonthCount, error)
	CountCategoryExpenses(ctx context.Context, accountID, categoryID int64, since time.Time) (int, error)
	LastTransactionDate(ctx context.Context, accountID int64) (*time.Time, error)
	RecentByMerchant(ctx context.Context, accountID int64, merchant string, txnType model.TransactionType, since time.Time, limit int) ([]model.Transaction, error)

	// Category and rule operations
	GetCategories(ctx context.Context, userID int64) ([]model.Category, error)
	GetCategoryByName(ctx context.Context, userID int64, name string) (*model.Category, error)
	CreateCategory(ctx context.Context, userID int64, name, description string) (*model.Category, error)
	GetActiveRules(ctx context.Context, userID int64) ([]model.Rule, error)
	CreateRule(ctx context.Context, rule *model.Rule) (*model.Rule, error)

	// Recurring pattern operations
	UpsertRecurring(ctx context.Context, userID, accountID int64, pattern *model.RecurringPattern) (*model.RecurringTransaction, bool, error)
	GetRecurring(ctx context.Context, id int64) (*model.RecurringTransaction, error)
	ListRecurring(ctx context.Context, filter RecurringFilter) ([]model.RecurringTransaction, error)
	ActiveRecurring(ctx context.Context, accountID int64) ([]model.RecurringTransaction, error)
	SetRecurringIgnored(ctx context.Context, id int64, ignored bool) error
	UpdateRecurringDetails(ctx context.Context, id int64, displayName, userNotes *string) error

	// Anomaly operations. HasRecentAnomaly keys on (user, account, type)
	// only; the check-then-insert sequence is not guarded by a database
	// constraint, so concurrent runs for one account may both pass.
	HasRecentAnomaly(ctx context.Context, userID, accountID int64, anomalyType model.AnomalyType, since time.Time) (bool, error)
	SaveAnomaly(ctx context.Context, anomaly *model.Anomaly) error
	SaveNotification(ctx context.Context, notification *model.AnomalyNotification) error
	ListAnomalies(ctx context.Context, filter AnomalyFilter) ([]model.Anomaly, error)
	DismissAnomaly(ctx context.Context, id int64, falsePositive bool) error

	// Preference operations
	GetOrCreatePreferences(ctx context.Context, userID int64) (*model.AnomalyPreferences, error)
	SavePreferences(ctx context.Context, prefs *model.AnomalyPreferences) error

	// Import sessions
	SaveImport(ctx context.Context, imp *model.Import) error
	LinkImportTransactions(ctx context.Context, importID string, transactionIDs []int64) error

	// Exchange rates
	GetExchangeRates(ctx context.Context) (*model.ExchangeRates, error)
	SaveExchangeRates(ctx context.Context, rates *model.ExchangeRates) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// TransactionFetcher pulls transactions from an external source (file
// parser or bank API) for a date range.
type TransactionFetcher interface {
	FetchTransactions(ctx context.Context, startDate, endDate time.Time) ([]model.Transaction, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
