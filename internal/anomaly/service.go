package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/service"
)

// Env carries the dependencies a detector needs. The preferences value is
// materialized once per run; the caller owns it.
type Env struct {
	Store  service.Storage
	Prefs  *model.AnomalyPreferences
	Now    time.Time
	UserID int64
}

// Service orchestrates detectors, applies preference gating, and persists
// results with duplicate suppression.
type Service struct {
	store  service.Storage
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates an anomaly detection service.
func NewService(store service.Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// env loads (or lazily creates) the user's preferences and builds the
// detector environment. Returns nil when detection is globally disabled.
func (s *Service) env(ctx context.Context, userID int64) (*Env, error) {
	prefs, err := s.store.GetOrCreatePreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load anomaly preferences: %w", err)
	}
	if !prefs.DetectionEnabled {
		return nil, nil
	}
	return &Env{Store: s.store, Prefs: prefs, Now: s.now(), UserID: userID}, nil
}

// run executes one detector with error isolation: a failing detector is
// logged and treated as "no anomaly" so one bad rule cannot poison the
// rest of the batch.
func (s *Service) run(ctx context.Context, env *Env, anomalyType model.AnomalyType, subject Subject) *model.Anomaly {
	if !env.Prefs.TypeEnabled(anomalyType) {
		return nil
	}
	detect, ok := detectors()[anomalyType]
	if !ok {
		return nil
	}
	anomaly, err := detect(ctx, env, subject)
	if err != nil {
		s.logger.Warn("anomaly detector failed",
			"type", anomalyType,
			"account_id", subject.AccountID,
			"error", err)
		return nil
	}
	return anomaly
}

// DetectForTransaction runs the per-transaction detectors for a newly
// imported transaction, plus the spending-spike check when the
// transaction is categorized.
func (s *Service) DetectForTransaction(ctx context.Context, userID int64, txn *model.Transaction) ([]model.Anomaly, error) {
	env, err := s.env(ctx, userID)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, nil
	}

	subject := Subject{Transaction: txn, AccountID: txn.AccountID}

	var found []model.Anomaly
	for _, anomalyType := range transactionDetectors {
		if anomaly := s.run(ctx, env, anomalyType, subject); anomaly != nil {
			found = append(found, *anomaly)
		}
	}

	if txn.CategoryID != nil && txn.Type == model.TypeExpense {
		spikeSubject := Subject{AccountID: txn.AccountID, CategoryID: txn.CategoryID}
		if anomaly := s.run(ctx, env, model.AnomalySpendingSpike, spikeSubject); anomaly != nil {
			found = append(found, *anomaly)
		}
	}

	return found, nil
}

// DetectForAccount runs the account-level sweep: inactivity plus
// missing/changed checks for every active recurring pattern.
func (s *Service) DetectForAccount(ctx context.Context, userID, accountID int64) ([]model.Anomaly, error) {
	env, err := s.env(ctx, userID)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, nil
	}

	var found []model.Anomaly
	subject := Subject{AccountID: accountID}
	for _, anomalyType := range accountDetectors {
		if anomaly := s.run(ctx, env, anomalyType, subject); anomaly != nil {
			found = append(found, *anomaly)
		}
	}

	active, err := s.store.ActiveRecurring(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recurring patterns: %w", err)
	}
	for i := range active {
		recurringSubject := Subject{Recurring: &active[i], AccountID: accountID}
		if anomaly := s.run(ctx, env, model.AnomalyMissingRecurring, recurringSubject); anomaly != nil {
			found = append(found, *anomaly)
		}
		if anomaly := s.run(ctx, env, model.AnomalyChangedRecurring, recurringSubject); anomaly != nil {
			found = append(found, *anomaly)
		}
	}

	return found, nil
}

// CreateAnomalyIfNew persists the anomaly unless one of the same
// (user, account, type) was created within the last 24 hours, in which
// case it returns nil. The suppression deliberately ignores the anomaly's
// specific subject: two distinct unusual-amount findings for different
// merchants on the same account and day collapse to one.
//
// On creation a notification row is written carrying the user's email and
// push preference flags.
func (s *Service) CreateAnomalyIfNew(ctx context.Context, anomaly *model.Anomaly) (*model.Anomaly, error) {
	since := s.now().Add(-dedupWindowHours * time.Hour)
	exists, err := s.store.HasRecentAnomaly(ctx, anomaly.UserID, anomaly.AccountID, anomaly.Type, since)
	if err != nil {
		return nil, fmt.Errorf("failed to check recent anomalies: %w", err)
	}
	if exists {
		return nil, nil
	}

	if err := s.store.SaveAnomaly(ctx, anomaly); err != nil {
		return nil, fmt.Errorf("failed to save anomaly: %w", err)
	}

	prefs, err := s.store.GetOrCreatePreferences(ctx, anomaly.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences for notification: %w", err)
	}
	notification := &model.AnomalyNotification{
		UserID:           anomaly.UserID,
		AnomalyID:        anomaly.ID,
		NotifiedViaEmail: prefs.EmailNotifications,
		NotifiedViaPush:  prefs.PushNotifications,
	}
	if err := s.store.SaveNotification(ctx, notification); err != nil {
		return nil, fmt.Errorf("failed to save notification: %w", err)
	}

	return anomaly, nil
}

// DetectAndPersistForTransaction combines detection and deduplicated
// persistence, returning only the anomalies actually created.
func (s *Service) DetectAndPersistForTransaction(ctx context.Context, userID int64, txn *model.Transaction) ([]model.Anomaly, error) {
	found, err := s.DetectForTransaction(ctx, userID, txn)
	if err != nil {
		return nil, err
	}
	return s.persistAll(ctx, found)
}

// DetectAndPersistForAccount combines the account sweep with deduplicated
// persistence.
func (s *Service) DetectAndPersistForAccount(ctx context.Context, userID, accountID int64) ([]model.Anomaly, error) {
	found, err := s.DetectForAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	return s.persistAll(ctx, found)
}

func (s *Service) persistAll(ctx context.Context, found []model.Anomaly) ([]model.Anomaly, error) {
	var created []model.Anomaly
	for i := range found {
		saved, err := s.CreateAnomalyIfNew(ctx, &found[i])
		if err != nil {
			s.logger.Warn("failed to persist anomaly",
				"type", found[i].Type,
				"account_id", found[i].AccountID,
				"error", err)
			continue
		}
		if saved != nil {
			created = append(created, *saved)
		}
	}
	return created, nil
}
