package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsentry/finsentry/internal/common"
	"github.com/finsentry/finsentry/internal/model"
)

type stubCategoryLister struct {
	categories []model.Category
}

func (s *stubCategoryLister) GetCategories(_ context.Context, _ int64) ([]model.Category, error) {
	return s.categories, nil
}

func testCategories() []model.Category {
	return []model.Category{
		{ID: 1, Name: "Groceries"},
		{ID: 2, Name: "Streaming", Description: "Video and music subscriptions"},
	}
}

func testTransaction() *model.Transaction {
	return &model.Transaction{
		Date:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Amount:       decimal.RequireFromString("12.99"),
		Description:  "NETFLIX.COM ABO",
		MerchantName: "Netflix",
		Type:         model.TypeExpense,
		AccountID:    1,
	}
}

func TestSuggester_SuggestCategory(t *testing.T) {
	mock := &MockClient{
		SuggestFunc: func(_ context.Context, _ string) (SuggestionResponse, error) {
			return SuggestionResponse{Category: "streaming", Confidence: 0.93, Reason: "subscription merchant"}, nil
		},
	}
	suggester := NewSuggester(mock, &stubCategoryLister{categories: testCategories()}, nil)

	got, err := suggester.SuggestCategory(context.Background(), 1, testTransaction())
	require.NoError(t, err)

	// Matching is case-insensitive against existing categories.
	assert.Equal(t, int64(2), got.Category.ID)
	assert.InDelta(t, 0.93, got.Confidence, 1e-9)
	assert.NotEmpty(t, got.Reason)

	require.Len(t, mock.Prompts, 1)
	assert.Contains(t, mock.Prompts[0], "NETFLIX.COM ABO")
	assert.Contains(t, mock.Prompts[0], "Groceries")
}

func TestSuggester_RejectsUnknownCategory(t *testing.T) {
	mock := &MockClient{
		SuggestFunc: func(_ context.Context, _ string) (SuggestionResponse, error) {
			return SuggestionResponse{Category: "Entertainment", Confidence: 0.8}, nil
		},
	}
	suggester := NewSuggester(mock, &stubCategoryLister{categories: testCategories()}, nil)

	_, err := suggester.SuggestCategory(context.Background(), 1, testTransaction())
	assert.Error(t, err)
}

func TestSuggester_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	mock := &MockClient{
		SuggestFunc: func(_ context.Context, _ string) (SuggestionResponse, error) {
			attempts++
			if attempts < 3 {
				return SuggestionResponse{}, &common.RetryableError{
					Err:       fmt.Errorf("provider hiccup"),
					Retryable: true,
				}
			}
			return SuggestionResponse{Category: "Groceries", Confidence: 0.7}, nil
		},
	}
	suggester := NewSuggester(mock, &stubCategoryLister{categories: testCategories()}, nil)
	suggester.retryOpts.InitialDelay = time.Millisecond
	suggester.retryOpts.MaxDelay = 2 * time.Millisecond

	got, err := suggester.SuggestCategory(context.Background(), 1, testTransaction())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "Groceries", got.Category.Name)
}

func TestParseSuggestion_MarkdownWrapper(t *testing.T) {
	content := "```json\n{\"category\": \"Groceries\", \"confidence\": 0.9, \"reason\": \"supermarket\"}\n```"
	got, err := parseSuggestion(content)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Category)
}
