package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/finsentry/finsentry/internal/common"
	"github.com/finsentry/finsentry/internal/model"
)

// GetCategories returns all active categories for a user, ordered by name.
func (s *SQLiteStorage) GetCategories(ctx context.Context, userID int64) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, description, is_active, created_at
		 FROM categories WHERE user_id = ? AND is_active = 1 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var cat model.Category
		if err := rows.Scan(&cat.ID, &cat.UserID, &cat.Name, &cat.Description,
			&cat.IsActive, &cat.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, cat)
	}
	return categories, rows.Err()
}

// GetCategoryByName looks up a category by its unique name.
func (s *SQLiteStorage) GetCategoryByName(ctx context.Context, userID int64, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	var cat model.Category
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, description, is_active, created_at
		 FROM categories WHERE user_id = ? AND name = ?`, userID, name).
		Scan(&cat.ID, &cat.UserID, &cat.Name, &cat.Description, &cat.IsActive, &cat.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %s: %w", name, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &cat, nil
}

// CreateCategory inserts a new category. Names are unique per user.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, userID int64, name, description string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (user_id, name, description, is_active)
		 VALUES (?, ?, ?, 1)`, userID, name, description)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("category %s: %w", name, common.ErrDuplicateEntry)
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get category ID: %w", err)
	}

	var cat model.Category
	err = s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, description, is_active, created_at
		 FROM categories WHERE id = ?`, id).
		Scan(&cat.ID, &cat.UserID, &cat.Name, &cat.Description, &cat.IsActive, &cat.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load created category: %w", err)
	}
	return &cat, nil
}

const ruleColumns = `id, user_id, name, description_like, merchant_pattern,
	amount_min, amount_max, date_from, date_to, txn_type, has_category,
	category_id, priority, is_active, created_at, updated_at`

func scanRule(scanner interface{ Scan(...any) error }) (*model.Rule, error) {
	var (
		rule        model.Rule
		amountMin   sql.NullString
		amountMax   sql.NullString
		dateFrom    sql.NullTime
		dateTo      sql.NullTime
		hasCategory sql.NullBool
		txnType     string
	)
	err := scanner.Scan(&rule.ID, &rule.UserID, &rule.Name, &rule.DescriptionLike,
		&rule.MerchantPattern, &amountMin, &amountMax, &dateFrom, &dateTo,
		&txnType, &hasCategory, &rule.CategoryID, &rule.Priority,
		&rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rule.Type = model.TransactionType(txnType)
	if rule.AmountMin, err = nullDecimal(amountMin); err != nil {
		return nil, fmt.Errorf("failed to parse amount_min: %w", err)
	}
	if rule.AmountMax, err = nullDecimal(amountMax); err != nil {
		return nil, fmt.Errorf("failed to parse amount_max: %w", err)
	}
	if dateFrom.Valid {
		rule.DateFrom = &dateFrom.Time
	}
	if dateTo.Valid {
		rule.DateTo = &dateTo.Time
	}
	if hasCategory.Valid {
		rule.HasCategory = &hasCategory.Bool
	}
	return &rule, nil
}

// GetActiveRules returns a user's active rules in ascending priority order.
func (s *SQLiteStorage) GetActiveRules(ctx context.Context, userID int64) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM rules
		 WHERE user_id = ? AND is_active = 1
		 ORDER BY priority ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", scanErr)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// CreateRule inserts a categorization rule.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.Rule) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := validateID(rule.UserID, "rule.UserID"); err != nil {
		return nil, err
	}
	if err := validateID(rule.CategoryID, "rule.CategoryID"); err != nil {
		return nil, err
	}
	if err := validateString(rule.Name, "rule.Name"); err != nil {
		return nil, err
	}

	var dateFrom, dateTo any
	if rule.DateFrom != nil {
		dateFrom = *rule.DateFrom
	}
	if rule.DateTo != nil {
		dateTo = *rule.DateTo
	}
	var hasCategory any
	if rule.HasCategory != nil {
		hasCategory = *rule.HasCategory
	}

	priority := rule.Priority
	if priority == 0 {
		priority = 100
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO rules (
			user_id, name, description_like, merchant_pattern, amount_min,
			amount_max, date_from, date_to, txn_type, has_category,
			category_id, priority, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		rule.UserID, rule.Name, rule.DescriptionLike, rule.MerchantPattern,
		decimalString(rule.AmountMin), decimalString(rule.AmountMax),
		dateFrom, dateTo, string(rule.Type), hasCategory,
		rule.CategoryID, priority)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get rule ID: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id)
	created, err := scanRule(row)
	if err != nil {
		return nil, fmt.Errorf("failed to load created rule: %w", err)
	}
	return created, nil
}
