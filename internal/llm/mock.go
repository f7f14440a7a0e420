package llm

import "context"

// MockClient is a test double for the Client interface.
type MockClient struct {
	SuggestFunc func(ctx context.Context, prompt string) (SuggestionResponse, error)
	Prompts     []string
}

// Suggest records the prompt and delegates to SuggestFunc.
func (m *MockClient) Suggest(ctx context.Context, prompt string) (SuggestionResponse, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.SuggestFunc != nil {
		return m.SuggestFunc(ctx, prompt)
	}
	return SuggestionResponse{Category: "Other", Confidence: 0.5}, nil
}
