// Package jobs runs scheduled detection sweeps across accounts.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finsentry/finsentry/internal/common"
	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/service"
)

// RecurringDetector is the recurring-detection entry point the runner drives.
type RecurringDetector interface {
	DetectAndStore(ctx context.Context, userID, accountID int64, daysBack int) ([]model.RecurringTransaction, error)
}

// AnomalySweeper is the account-level anomaly sweep the runner drives.
type AnomalySweeper interface {
	DetectAndPersistForAccount(ctx context.Context, userID, accountID int64) ([]model.Anomaly, error)
}

// Runner executes detection jobs per account. It owns the retry policy:
// errors wrapped as retryable are attempted up to three times with
// exponential backoff; everything else fails the account immediately.
// One failing account never aborts the sweep.
type Runner struct {
	store     service.Storage
	recurring RecurringDetector
	anomalies AnomalySweeper
	logger    *slog.Logger
	retryOpts service.RetryOptions

	// DaysBack bounds the recurring detection window per run.
	DaysBack int
}

// NewRunner creates a job runner.
func NewRunner(store service.Storage, recurring RecurringDetector, anomalies AnomalySweeper, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:     store,
		recurring: recurring,
		anomalies: anomalies,
		logger:    logger,
		DaysBack:  365,
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Result summarizes one sweep.
type Result struct {
	AccountErrors     map[int64]error
	Accounts          int
	RecurringPatterns int
	AnomaliesCreated  int
}

// RunForUser sweeps every account of a user: recurring detection first,
// then the anomaly account sweep (which needs fresh patterns).
func (r *Runner) RunForUser(ctx context.Context, userID int64) (*Result, error) {
	accounts, err := r.store.ListAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	result := &Result{AccountErrors: make(map[int64]error)}
	for _, account := range accounts {
		if !account.IsActive {
			continue
		}
		result.Accounts++

		patterns, anomalies, runErr := r.runAccount(ctx, userID, account.ID)
		if runErr != nil {
			r.logger.Error("detection run failed for account",
				"account_id", account.ID,
				"account", account.Name,
				"error", runErr)
			result.AccountErrors[account.ID] = runErr
			continue
		}
		result.RecurringPatterns += patterns
		result.AnomaliesCreated += anomalies
	}

	r.logger.Info("detection sweep finished",
		"user_id", userID,
		"accounts", result.Accounts,
		"patterns", result.RecurringPatterns,
		"anomalies", result.AnomaliesCreated,
		"failed_accounts", len(result.AccountErrors))
	return result, nil
}

// RunForAccount runs both detection stages for a single account.
func (r *Runner) RunForAccount(ctx context.Context, userID, accountID int64) (patterns, anomalies int, err error) {
	return r.runAccount(ctx, userID, accountID)
}

func (r *Runner) runAccount(ctx context.Context, userID, accountID int64) (int, int, error) {
	var stored []model.RecurringTransaction
	err := common.WithRetry(ctx, func() error {
		var detectErr error
		stored, detectErr = r.recurring.DetectAndStore(ctx, userID, accountID, r.DaysBack)
		return classify(detectErr)
	}, r.retryOpts)
	if err != nil {
		return 0, 0, fmt.Errorf("recurring detection: %w", err)
	}

	var created []model.Anomaly
	err = common.WithRetry(ctx, func() error {
		var sweepErr error
		created, sweepErr = r.anomalies.DetectAndPersistForAccount(ctx, userID, accountID)
		return classify(sweepErr)
	}, r.retryOpts)
	if err != nil {
		return len(stored), 0, fmt.Errorf("anomaly sweep: %w", err)
	}

	return len(stored), len(created), nil
}

// classify decides whether an error is worth retrying. Domain errors
// (missing account, no transactions) will not improve on retry; anything
// already classified keeps its marker; the rest is treated as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var retryable *common.RetryableError
	if errors.As(err, &retryable) {
		return err
	}
	if errors.Is(err, common.ErrAccountNotFound) ||
		errors.Is(err, common.ErrNoTransactions) ||
		errors.Is(err, context.Canceled) {
		return common.Fatal(err)
	}
	return common.Retryable(err)
}
