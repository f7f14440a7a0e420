package storage

import (
	"context"
	"fmt"

	"github.com/finsentry/finsentry/internal/model"
)

// SaveImport records one import session.
func (s *SQLiteStorage) SaveImport(ctx context.Context, imp *model.Import) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if imp == nil {
		return fmt.Errorf("%w: import", ErrNilParameter)
	}
	if err := validateString(imp.ID, "import.ID"); err != nil {
		return err
	}
	if err := validateID(imp.AccountID, "import.AccountID"); err != nil {
		return err
	}
	if err := validateID(imp.UserID, "import.UserID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO imports (id, account_id, user_id, source, file_name, total, succeeded, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			total = excluded.total,
			succeeded = excluded.succeeded,
			failed = excluded.failed`,
		imp.ID, imp.AccountID, imp.UserID, imp.Source, imp.FileName,
		imp.Total, imp.Succeeded, imp.Failed)
	if err != nil {
		return fmt.Errorf("failed to save import: %w", err)
	}
	return nil
}

// LinkImportTransactions associates inserted transactions with their
// import session.
func (s *SQLiteStorage) LinkImportTransactions(ctx context.Context, importID string, transactionIDs []int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(importID, "importID"); err != nil {
		return err
	}
	if len(transactionIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO import_transactions (import_id, transaction_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range transactionIDs {
		if _, err := stmt.ExecContext(ctx, importID, id); err != nil {
			return fmt.Errorf("failed to link transaction %d: %w", id, err)
		}
	}
	return tx.Commit()
}
