package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/finsentry/finsentry/internal/common"
	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/service"
)

// CategoryLister is the slice of storage the suggester needs.
type CategoryLister interface {
	GetCategories(ctx context.Context, userID int64) ([]model.Category, error)
}

// Suggester proposes a category for a transaction, constrained to the
// user's existing categories.
type Suggester struct {
	client    Client
	store     CategoryLister
	logger    *slog.Logger
	retryOpts service.RetryOptions
}

// NewSuggester creates a suggester around an LLM client.
func NewSuggester(client Client, store CategoryLister, logger *slog.Logger) *Suggester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Suggester{
		client: client,
		store:  store,
		logger: logger,
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Suggestion is a category proposal for one transaction.
type Suggestion struct {
	Category   *model.Category
	Reason     string
	Confidence float64
}

// SuggestCategory asks the LLM for a category, retrying transient
// provider failures. The suggestion must name one of the user's existing
// categories or it is rejected.
func (s *Suggester) SuggestCategory(ctx context.Context, userID int64, txn *model.Transaction) (*Suggestion, error) {
	categories, err := s.store.GetCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("user %d has no categories: %w", userID, common.ErrNotFound)
	}

	prompt := s.buildPrompt(txn, categories)

	var response SuggestionResponse
	err = common.WithRetry(ctx, func() error {
		var suggestErr error
		response, suggestErr = s.client.Suggest(ctx, prompt)
		return suggestErr
	}, s.retryOpts)
	if err != nil {
		return nil, fmt.Errorf("suggestion failed: %w", err)
	}

	matched := matchCategory(categories, response.Category)
	if matched == nil {
		s.logger.Warn("LLM suggested unknown category",
			"suggested", response.Category,
			"transaction", txn.Description)
		return nil, fmt.Errorf("suggested category %q does not exist", response.Category)
	}

	return &Suggestion{
		Category:   matched,
		Confidence: response.Confidence,
		Reason:     response.Reason,
	}, nil
}

func (s *Suggester) buildPrompt(txn *model.Transaction, categories []model.Category) string {
	var b strings.Builder
	b.WriteString("Categorize this bank transaction into exactly one of the given categories.\n\n")
	b.WriteString("Transaction:\n")
	fmt.Fprintf(&b, "- Description: %s\n", txn.Description)
	if txn.MerchantName != "" {
		fmt.Fprintf(&b, "- Merchant: %s\n", txn.MerchantName)
	}
	if txn.PartnerName != "" {
		fmt.Fprintf(&b, "- Counterparty: %s\n", txn.PartnerName)
	}
	fmt.Fprintf(&b, "- Amount: %s\n", txn.Amount.StringFixed(2))
	fmt.Fprintf(&b, "- Type: %s\n", txn.Type)
	fmt.Fprintf(&b, "- Date: %s\n\n", txn.Date.Format("2006-01-02"))

	b.WriteString("Categories:\n")
	for _, cat := range categories {
		if cat.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", cat.Name, cat.Description)
		} else {
			fmt.Fprintf(&b, "- %s\n", cat.Name)
		}
	}

	b.WriteString("\nRespond with JSON: {\"category\": \"<name>\", \"confidence\": <0.0-1.0>, \"reason\": \"<one sentence>\"}")
	return b.String()
}

func matchCategory(categories []model.Category, name string) *model.Category {
	for i := range categories {
		if strings.EqualFold(categories[i].Name, strings.TrimSpace(name)) {
			return &categories[i]
		}
	}
	return nil
}
