package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/finsentry/finsentry/internal/common"
	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/rules"
	"github.com/finsentry/finsentry/internal/service"
)

// StatementParser converts one statement format into transactions.
// Row-level failures come back as errors alongside the good rows.
type StatementParser interface {
	ParseFile(ctx context.Context, reader io.Reader, accountID int64) ([]model.Transaction, []error)
}

// Importer loads parsed statements into storage, applying categorization
// rules and recording an import session.
type Importer struct {
	store    service.Storage
	logger   *slog.Logger
	progress bool
}

// NewImporter creates an importer. When progress is true a progress bar
// is rendered on stderr during large imports.
func NewImporter(store service.Storage, logger *slog.Logger, progress bool) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, logger: logger, progress: progress}
}

// parserForFile selects a parser by file extension.
func parserForFile(path string) (StatementParser, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return NewCSVParser(), "csv", nil
	case ".json":
		return NewJSONParser(), "json", nil
	case ".ofx", ".qfx":
		return NewOFXParser(), "ofx", nil
	default:
		return nil, "", fmt.Errorf("%w: %s", common.ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ImportFile parses a statement file and persists its transactions for
// the given account. Rows that fail to parse are counted, logged, and
// skipped; the import succeeds as long as the file itself is readable.
func (i *Importer) ImportFile(ctx context.Context, userID, accountID int64, path string) (*model.Import, error) {
	account, err := i.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	parser, source, err := parserForFile(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path) // #nosec G304 -- user-supplied statement path
	if err != nil {
		return nil, fmt.Errorf("failed to open statement file: %w", err)
	}
	defer func() { _ = file.Close() }()

	transactions, rowErrors := parser.ParseFile(ctx, file, account.ID)
	for _, rowErr := range rowErrors {
		i.logger.Warn("skipping statement row", "file", filepath.Base(path), "error", rowErr)
	}
	if len(transactions) == 0 && len(rowErrors) > 0 {
		return nil, fmt.Errorf("no importable rows in %s: %w", filepath.Base(path), common.ErrNoTransactions)
	}

	return i.importTransactions(ctx, userID, account, transactions, source, filepath.Base(path), len(rowErrors))
}

// ImportTransactions persists already-fetched transactions (e.g. from a
// bank API) under a new import session.
func (i *Importer) ImportTransactions(ctx context.Context, userID, accountID int64, transactions []model.Transaction, source string) (*model.Import, error) {
	account, err := i.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for idx := range transactions {
		transactions[idx].AccountID = account.ID
		if transactions[idx].Hash == "" {
			transactions[idx].Hash = transactions[idx].GenerateHash()
		}
	}
	return i.importTransactions(ctx, userID, account, transactions, source, "", 0)
}

func (i *Importer) importTransactions(ctx context.Context, userID int64, account *model.Account, transactions []model.Transaction, source, fileName string, failed int) (*model.Import, error) {
	imp := &model.Import{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		UserID:    userID,
		Source:    source,
		FileName:  fileName,
		Total:     len(transactions) + failed,
		Failed:    failed,
	}

	if len(transactions) == 0 {
		if err := i.store.SaveImport(ctx, imp); err != nil {
			return nil, err
		}
		return imp, nil
	}

	var bar *progressbar.ProgressBar
	if i.progress {
		bar = progressbar.NewOptions(len(transactions),
			progressbar.OptionSetDescription("Importing transactions"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish())
	}

	if err := i.applyRules(ctx, userID, transactions); err != nil {
		i.logger.Warn("rule application failed, importing uncategorized", "error", err)
	}

	ids, err := i.store.SaveTransactions(ctx, transactions)
	if err != nil {
		return nil, fmt.Errorf("failed to save transactions: %w", err)
	}
	if bar != nil {
		_ = bar.Set(len(transactions))
		_ = bar.Finish()
	}

	imp.Succeeded = len(ids)
	if err := i.store.SaveImport(ctx, imp); err != nil {
		return nil, err
	}
	if err := i.store.LinkImportTransactions(ctx, imp.ID, ids); err != nil {
		return nil, err
	}

	i.logger.Info("import complete",
		"import_id", imp.ID,
		"account", account.Name,
		"source", source,
		"total", imp.Total,
		"inserted", imp.Succeeded,
		"duplicates", len(transactions)-len(ids),
		"failed", imp.Failed)
	return imp, nil
}

// applyRules runs the user's categorization rules over uncategorized rows.
func (i *Importer) applyRules(ctx context.Context, userID int64, transactions []model.Transaction) error {
	ruleSet, err := i.store.GetActiveRules(ctx, userID)
	if err != nil {
		return err
	}
	if len(ruleSet) == 0 {
		return nil
	}

	engine := rules.NewEngine(ruleSet, i.logger)
	matched := engine.Apply(transactions)
	if matched > 0 {
		i.logger.Info("applied categorization rules", "matched", matched, "rules", len(ruleSet))
	}
	return nil
}
