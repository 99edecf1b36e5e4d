package llm

import (
	"context"
	"errors"
	"log/slog"
	"querypilot-ai/internal/observability"
	"time"
)

// GatewayConfig controls per-attempt timeouts and content logging.
type GatewayConfig struct {
	Timeout             time.Duration
	LogContent          bool
	LogContentMaxLength int
}

// Gateway is the single entry point the query services use to talk to a
// model. It owns the retry policy and the per-attempt timeout.
type Gateway struct {
	client Client
	policy RetryPolicy
	config GatewayConfig
	logger *slog.Logger
}

func NewGateway(client Client, policy RetryPolicy, config GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		client: client,
		policy: policy,
		config: config,
		logger: logger,
	}
}

// Policy exposes the retry contract the gateway runs with.
func (g *Gateway) Policy() RetryPolicy {
	return g.policy
}

// Complete sends prompt to the model and returns the completion text. Transient
// failures are retried according to the gateway's RetryPolicy; the caller only
// ever sees a text or a terminal error.
func (g *Gateway) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	info := g.client.GetModelInfo()
	logger := g.logger.With(
		slog.String("request_id", observability.RequestIDFromContext(ctx)),
		slog.String("provider", info.Provider),
		slog.String("model", info.Name),
	)

	if g.config.LogContent {
		logger.DebugContext(ctx, "Gateway -> Complete -> prompt",
			slog.String("prompt", observability.Truncate(prompt, g.config.LogContentMaxLength)))
	}

	var text string
	err := g.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		attemptCtx := ctx
		cancel := func() {}
		if g.config.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		}
		defer cancel()

		start := time.Now()
		completion, err := g.client.Complete(attemptCtx, prompt, opts)
		elapsed := time.Since(start)

		if err != nil {
			// A per-attempt timeout while the caller is still waiting is a
			// transient failure of this attempt only.
			if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				err = &ProviderError{Provider: info.Provider, Transient: true, Err: err}
			}
			observability.ObserveLLMCall(info.Provider, "error", elapsed)
			logger.WarnContext(ctx, "Gateway -> Complete -> attempt failed",
				slog.Int("attempt", attempt),
				slog.Duration("duration", elapsed),
				slog.Bool("transient", IsTransient(err)),
				slog.String("error", err.Error()),
			)
			return err
		}

		observability.ObserveLLMCall(info.Provider, "ok", elapsed)
		logger.InfoContext(ctx, "Gateway -> Complete -> completion received",
			slog.Int("attempt", attempt),
			slog.Duration("duration", elapsed),
			slog.Int("prompt_tokens", completion.PromptTokens),
			slog.Int("completion_tokens", completion.CompletionTokens),
		)
		text = completion.Text
		return nil
	})
	if err != nil {
		return "", err
	}

	if g.config.LogContent {
		logger.DebugContext(ctx, "Gateway -> Complete -> response",
			slog.String("response", observability.Truncate(text, g.config.LogContentMaxLength)))
	}
	return text, nil
}
