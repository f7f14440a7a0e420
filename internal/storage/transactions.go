package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/finsentry/finsentry/internal/common"
	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/service"
)

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// scanDecimal converts a TEXT column into a decimal.
func scanDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func nullDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func decimalString(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

const transactionColumns = `id, account_id, hash, date, booking_date, amount,
	description, reference, reference_number, partner_name, partner_iban,
	merchant_name, payment_method, card_brand, txn_type, category_id`

func scanTransaction(scanner interface{ Scan(...any) error }) (*model.Transaction, error) {
	var (
		txn         model.Transaction
		bookingDate sql.NullTime
		amount      string
		categoryID  sql.NullInt64
	)
	err := scanner.Scan(&txn.ID, &txn.AccountID, &txn.Hash, &txn.Date,
		&bookingDate, &amount, &txn.Description, &txn.Reference,
		&txn.ReferenceNumber, &txn.PartnerName, &txn.PartnerIBAN,
		&txn.MerchantName, &txn.PaymentMethod, &txn.CardBrand,
		&txn.Type, &categoryID)
	if err != nil {
		return nil, err
	}

	if bookingDate.Valid {
		txn.BookingDate = &bookingDate.Time
	}
	if categoryID.Valid {
		txn.CategoryID = &categoryID.Int64
	}
	txn.Amount, err = scanDecimal(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	return &txn, nil
}

// SaveTransactions inserts transactions, skipping rows whose hash already
// exists. Returns the IDs of the rows actually inserted.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) ([]int64, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateTransactions(transactions); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			account_id, hash, date, booking_date, amount, description,
			reference, reference_number, partner_name, partner_iban,
			merchant_name, payment_method, card_brand, txn_type, category_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var inserted []int64
	for i := range transactions {
		txn := transactions[i]
		if txn.Hash == "" {
			txn.Hash = txn.GenerateHash()
		}

		var bookingDate any
		if txn.BookingDate != nil {
			bookingDate = *txn.BookingDate
		}
		var categoryID any
		if txn.CategoryID != nil {
			categoryID = *txn.CategoryID
		}

		result, execErr := stmt.ExecContext(ctx,
			txn.AccountID, txn.Hash, txn.Date, bookingDate,
			txn.Amount.String(), txn.Description, txn.Reference,
			txn.ReferenceNumber, txn.PartnerName, txn.PartnerIBAN,
			txn.MerchantName, txn.PaymentMethod, txn.CardBrand,
			string(txn.Type), categoryID)
		if execErr != nil {
			return nil, fmt.Errorf("failed to save transaction: %w", execErr)
		}

		affected, affErr := result.RowsAffected()
		if affErr != nil {
			return nil, fmt.Errorf("failed to check insert result: %w", affErr)
		}
		if affected == 0 {
			// Duplicate hash; already imported.
			continue
		}
		id, idErr := result.LastInsertId()
		if idErr != nil {
			return nil, fmt.Errorf("failed to get transaction ID: %w", idErr)
		}
		inserted = append(inserted, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return inserted, nil
}

// GetTransactionByID returns one transaction.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id int64) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetTransactions returns transactions matching the filter, newest first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(filter.AccountID, "filter.AccountID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = ?`
	args := []any{filter.AccountID}

	if filter.StartDate != nil {
		query += ` AND date >= ?`
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		query += ` AND date <= ?`
		args = append(args, *filter.EndDate)
	}
	if filter.Type != "" {
		query += ` AND txn_type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.CategoryID != nil {
		query += ` AND category_id = ?`
		args = append(args, *filter.CategoryID)
	}
	query += ` ORDER BY date DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	return s.queryTransactions(ctx, query, args...)
}

// GetTransactionsForDetection returns expense and income transactions for
// one account since a cutoff, oldest first. Transfers are excluded because
// internal account movement is not a recurring obligation.
func (s *SQLiteStorage) GetTransactionsForDetection(ctx context.Context, accountID int64, since time.Time) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(accountID, "accountID"); err != nil {
		return nil, err
	}

	return s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE account_id = ? AND date >= ? AND txn_type IN ('expense', 'income')
		 ORDER BY date ASC, id ASC`,
		accountID, since)
}

func (s *SQLiteStorage) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", scanErr)
		}
		transactions = append(transactions, *txn)
	}
	return transactions, rows.Err()
}

// UpdateTransactionCategory assigns a category to a transaction.
func (s *SQLiteStorage) UpdateTransactionCategory(ctx context.Context, transactionID, categoryID int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(transactionID, "transactionID"); err != nil {
		return err
	}
	if err := validateID(categoryID, "categoryID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET category_id = ? WHERE id = ?`,
		categoryID, transactionID)
	if err != nil {
		return fmt.Errorf("failed to update transaction category: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %d: %w", transactionID, common.ErrNotFound)
	}
	return nil
}

// GetAmountHistory returns historical amounts for the unusual-amount
// baseline, selected by merchant, category, or description prefix.
func (s *SQLiteStorage) GetAmountHistory(ctx context.Context, q service.AmountHistoryQuery) ([]decimal.Decimal, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(q.AccountID, "q.AccountID"); err != nil {
		return nil, err
	}

	query := `SELECT amount FROM transactions
		WHERE account_id = ? AND txn_type = ? AND date >= ? AND id != ?`
	args := []any{q.AccountID, string(q.Type), q.Since, q.ExcludeID}

	switch {
	case q.Merchant != "":
		query += ` AND merchant_name = ?`
		args = append(args, q.Merchant)
	case q.CategoryID != nil:
		query += ` AND category_id = ?`
		args = append(args, *q.CategoryID)
	case q.DescriptionPrefix != "":
		query += ` AND description LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(q.DescriptionPrefix)+"%")
	default:
		return nil, fmt.Errorf("%w: amount history selector", ErrEmptyString)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query amount history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var amounts []decimal.Decimal
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan amount: %w", err)
		}
		amount, parseErr := scanDecimal(raw)
		if parseErr != nil {
			return nil, fmt.Errorf("failed to parse amount: %w", parseErr)
		}
		amounts = append(amounts, amount)
	}
	return amounts, rows.Err()
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

// FindRecentSameAmount returns the most recent transaction on the account
// with the exact same amount and type in [since, before), excluding one ID.
// Returns nil when none exists.
func (s *SQLiteStorage) FindRecentSameAmount(ctx context.Context, accountID int64, amount decimal.Decimal, txnType model.TransactionType, since, before time.Time, excludeID int64) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(accountID, "accountID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE account_id = ? AND amount = ? AND txn_type = ?
		   AND date >= ? AND date < ? AND id != ?
		 ORDER BY date DESC, id DESC LIMIT 1`,
		accountID, amount.String(), string(txnType), since, before, excludeID)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find recent same amount: %w", err)
	}
	return txn, nil
}

// MerchantSeen reports whether a merchant appears on any other transaction
// of the account.
func (s *SQLiteStorage) MerchantSeen(ctx context.Context, accountID int64, merchant string, excludeID int64) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateID(accountID, "accountID"); err != nil {
		return false, err
	}
	if err := validateString(merchant, "merchant"); err != nil {
		return false, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions
		 WHERE account_id = ? AND merchant_name = ? AND id != ?`,
		accountID, merchant, excludeID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check merchant history: %w", err)
	}
	return count > 0, nil
}

// MonthlyCategoryCounts returns per-month expense counts for one category
// on an account in [since, before), ordered oldest month first.
func (s *SQLiteStorage) MonthlyCategoryCounts(ctx context.Context, accountID, categoryID int64, since, before time.Time) ([]service.MonthCount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(accountID, "accountID"); err != nil {
		return nil, err
	}
	if err := validateID(categoryID, "categoryID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT CAST(strftime('%Y', date) AS INTEGER) AS y,
		        CAST(strftime('%m', date) AS INTEGER) AS m,
		        COUNT(*)
		 FROM transactions
		 WHERE account_id = ? AND category_id = ? AND txn_type = 'expense'
		   AND date >= ? AND date < ?
		 GROUP BY y, m ORDER BY y, m`,
		accountID, categoryID, since, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []service.MonthCount
	for rows.Next() {
		var (
			year, month, count int
		)
		if err := rows.Scan(&year, &month, &count); err != nil {
			return nil, fmt.Errorf("failed to scan monthly count: %w", err)
		}
		counts = append(counts, service.MonthCount{
			Year:  year,
			Month: time.Month(month),
			Count: count,
		})
	}
	return counts, rows.Err()
}

// CountCategoryExpenses counts expense transactions for one category on
// an account since the cutoff.
func (s *SQLiteStorage) CountCategoryExpenses(ctx context.Context, accountID, categoryID int64, since time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateID(accountID, "accountID"); err != nil {
		return 0, err
	}
	if err := validateID(categoryID, "categoryID"); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions
		 WHERE account_id = ? AND category_id = ? AND txn_type = 'expense' AND date >= ?`,
		accountID, categoryID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count category expenses: %w", err)
	}
	return count, nil
}

// LastTransactionDate returns the newest transaction date on an account,
// or nil when the account has no transactions.
func (s *SQLiteStorage) LastTransactionDate(ctx context.Context, accountID int64) (*time.Time, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(accountID, "accountID"); err != nil {
		return nil, err
	}

	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM transactions WHERE account_id = ?`,
		accountID).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to get last transaction date: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

// RecentByMerchant returns the newest transactions for one merchant and
// type on an account since the cutoff.
func (s *SQLiteStorage) RecentByMerchant(ctx context.Context, accountID int64, merchant string, txnType model.TransactionType, since time.Time, limit int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(accountID, "accountID"); err != nil {
		return nil, err
	}
	if err := validateString(merchant, "merchant"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	return s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE account_id = ? AND merchant_name = ? AND txn_type = ? AND date >= ?
		 ORDER BY date DESC, id DESC LIMIT ?`,
		accountID, merchant, string(txnType), since, limit)
}
