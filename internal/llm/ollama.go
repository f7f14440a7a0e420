package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/finsentry/finsentry/internal/common"
)

// ollamaClient implements the Client interface against a local Ollama
// server using its /api/chat endpoint.
type ollamaClient struct {
	httpClient *http.Client
	model      string
	baseURL    string
}

func newOllamaClient(cfg Config) (Client, error) {
	model := cfg.Model
	if model == "" {
		model = "llama3.1"
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		// Local models can be slow on first load.
		timeout = 120 * time.Second
	}

	return &ollamaClient{
		model:      model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Suggest sends a category suggestion request to Ollama.
func (c *ollamaClient) Suggest(ctx context.Context, prompt string) (SuggestionResponse, error) {
	requestBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": suggestSystemPrompt},
			{"role": "user", "content": prompt},
		},
		"format": "json",
		"stream": false,
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return SuggestionResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/chat", strings.NewReader(string(jsonBody)))
	if err != nil {
		return SuggestionResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SuggestionResponse{}, &common.RetryableError{
			Err:       fmt.Errorf("%w: %w", common.ErrProviderUnavailable, err),
			Retryable: true,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SuggestionResponse{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return SuggestionResponse{}, fmt.Errorf("Ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	var response ollamaResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return SuggestionResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}

	return parseSuggestion(response.Message.Content)
}
