package services

import (
	"context"
	"fmt"
	"log/slog"
	"querypilot-ai/internal/constants"
	"querypilot-ai/internal/observability"
	"querypilot-ai/pkg/llm"
	"strings"
)

type IntentClassifier struct {
	llm         llm.Completer
	temperature float64
	logger      *slog.Logger
}

func NewIntentClassifier(completer llm.Completer, temperature float64, logger *slog.Logger) *IntentClassifier {
	return &IntentClassifier{llm: completer, temperature: temperature, logger: logger}
}

// Classify asks the model for exactly one intent keyword. Anything else is a
// *ClassificationError; there is no default intent.
func (c *IntentClassifier) Classify(ctx context.Context, query string) (Intent, error) {
	prompt := constants.RenderPrompt(constants.IntentClassificationPrompt, map[string]string{"query": query})

	raw, err := c.llm.Complete(ctx, prompt, llm.CompletionOptions{
		Temperature: c.temperature,
		MaxTokens:   constants.IntentMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("intent classification call failed: %w", err)
	}

	intent, err := ParseIntent(raw)
	if err != nil {
		c.logger.Warn("IntentClassifier -> Classify -> unexpected model output",
			slog.String("request_id", observability.RequestIDFromContext(ctx)),
			slog.String("output", observability.Truncate(raw, 100)))
		return "", err
	}

	c.logger.Info("IntentClassifier -> Classify -> classified",
		slog.String("request_id", observability.RequestIDFromContext(ctx)),
		slog.String("intent", string(intent)))
	return intent, nil
}

// ParseIntent accepts a single keyword, ignoring case, surrounding quotes or
// backticks and a trailing period.
func ParseIntent(raw string) (Intent, error) {
	token := strings.TrimSpace(raw)
	token = strings.Trim(token, "\"'`")
	token = strings.TrimSuffix(token, ".")
	token = strings.TrimSpace(token)

	switch Intent(strings.ToUpper(token)) {
	case IntentChitchat:
		return IntentChitchat, nil
	case IntentDataRetrieval:
		return IntentDataRetrieval, nil
	case IntentInsights:
		return IntentInsights, nil
	}
	return "", &ClassificationError{Raw: raw}
}
