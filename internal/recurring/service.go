package recurring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/finsentry/finsentry/internal/common"
	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/service"
)

// Service runs detection against storage and upserts the results.
type Service struct {
	store    service.Storage
	detector *Detector
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a detection service backed by the given storage.
func NewService(store service.Storage, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		detector: NewDetector(cfg, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// Detect loads an account's analyzable transactions within the lookback
// window and returns detected patterns, without persisting anything.
func (s *Service) Detect(ctx context.Context, accountID int64, daysBack int) ([]model.RecurringPattern, error) {
	if daysBack <= 0 {
		daysBack = s.detector.cfg.LookbackDays
	}

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: account %d: %v", common.ErrAccountNotFound, accountID, err)
	}

	since := s.now().AddDate(0, 0, -daysBack)
	txns, err := s.store.GetTransactionsForDetection(ctx, account.ID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(txns) == 0 {
		return nil, nil
	}

	patterns := s.detector.DetectPatterns(txns)
	s.logger.Info("recurring detection finished",
		"account_id", accountID,
		"transactions", len(txns),
		"patterns", len(patterns))
	return patterns, nil
}

// DetectAndStore runs Detect and upserts every pattern keyed by
// (account, description, frequency). Re-running on an unchanged
// transaction set updates rows in place rather than creating duplicates.
// A failed upsert skips that pattern and continues the batch.
func (s *Service) DetectAndStore(ctx context.Context, userID, accountID int64, daysBack int) ([]model.RecurringTransaction, error) {
	patterns, err := s.Detect(ctx, accountID, daysBack)
	if err != nil {
		return nil, err
	}

	var stored []model.RecurringTransaction
	for i := range patterns {
		row, created, err := s.store.UpsertRecurring(ctx, userID, accountID, &patterns[i])
		if err != nil {
			s.logger.Warn("failed to upsert recurring pattern",
				"account_id", accountID,
				"description", patterns[i].Description,
				"frequency", patterns[i].Frequency,
				"error", err)
			continue
		}
		s.logger.Debug("recurring pattern stored",
			"description", row.Description,
			"frequency", row.Frequency,
			"confidence", row.ConfidenceScore,
			"created", created)
		stored = append(stored, *row)
	}
	return stored, nil
}
