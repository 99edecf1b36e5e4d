package services

import (
	"context"
	"errors"
	"fmt"
	"querypilot-ai/internal/constants"
	"querypilot-ai/pkg/llm"
	"strings"
)

// ChitchatResponder answers messages that need no data.
type ChitchatResponder struct {
	llm         llm.Completer
	temperature float64
}

func NewChitchatResponder(completer llm.Completer, temperature float64) *ChitchatResponder {
	return &ChitchatResponder{llm: completer, temperature: temperature}
}

func (r *ChitchatResponder) Respond(ctx context.Context, query string) (string, error) {
	prompt := constants.RenderPrompt(constants.ChitchatPrompt, map[string]string{"query": query})

	reply, err := r.llm.Complete(ctx, prompt, llm.CompletionOptions{
		Temperature: r.temperature,
		MaxTokens:   constants.ChitchatMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chitchat call failed: %w", err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", errors.New("chitchat reply was empty")
	}
	return reply, nil
}
