package llm

import (
	"context"
	"fmt"
)

// CompletionOptions are the per-call knobs a caller may set.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
}

// Completion is one provider answer together with its token usage.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Client defines the interface for a single LLM provider.
type Client interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (*Completion, error)
	GetModelInfo() ModelInfo
}

// Completer is what the query services depend on: prompt in, text out.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// ModelInfo contains information about the LLM model
type ModelInfo struct {
	Name                string
	Provider            string
	MaxCompletionTokens int
}

// Config holds configuration for LLM clients
type Config struct {
	Provider            string
	Model               string
	APIKey              string
	MaxCompletionTokens int
}

// ProviderError carries the provider's verdict on whether a failed call is
// worth repeating.
type ProviderError struct {
	Provider   string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s API error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s API error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func isTransientStatus(status int) bool {
	return status == 408 || status == 429 || status >= 500
}

func maxTokensOrDefault(requested, fallback int) int {
	if requested > 0 && (fallback <= 0 || requested < fallback) {
		return requested
	}
	return fallback
}
