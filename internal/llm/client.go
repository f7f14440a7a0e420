// Package llm suggests transaction categories via a language model
// provider. It supports OpenAI-compatible APIs and local Ollama, with
// retry logic around provider calls.
package llm

import (
	"context"
	"strings"
)

// Client defines the interface for LLM providers.
type Client interface {
	Suggest(ctx context.Context, prompt string) (SuggestionResponse, error)
}

// SuggestionResponse contains the LLM's category suggestion.
type SuggestionResponse struct {
	Category   string
	Reason     string
	Confidence float64
}

// cleanMarkdownWrapper strips code fences some models wrap JSON in.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	return strings.TrimSpace(content)
}
