package services

import (
	"context"
	"fmt"
	"log/slog"
	"querypilot-ai/internal/constants"
	"querypilot-ai/internal/observability"
	"querypilot-ai/pkg/llm"
	"strconv"
)

type GenerateRequest struct {
	Query         string
	Intent        Intent
	Schema        string
	Context       *CompiledData // insight flow only
	Iteration     int
	MaxIterations int
	Guidance      string // assessor hint from the previous iteration
}

type SQLGenerator struct {
	llm            llm.Completer
	temperature    float64
	dialect        string
	maxPreviewRows int
	logMaxLength   int
	logger         *slog.Logger
}

func NewSQLGenerator(completer llm.Completer, cfg OrchestratorConfig, logger *slog.Logger) *SQLGenerator {
	return &SQLGenerator{
		llm:            completer,
		temperature:    cfg.Temperatures.SQLGeneration,
		dialect:        cfg.Dialect,
		maxPreviewRows: cfg.MaxPreviewRows,
		logMaxLength:   cfg.SQLLogMaxLength,
		logger:         logger,
	}
}

// Generate returns ErrNoUsableSQL when the model declines or answers with
// something that is not a statement. Callers must not retry on it.
func (g *SQLGenerator) Generate(ctx context.Context, req GenerateRequest) (*SQLStatement, error) {
	prompt, err := g.buildPrompt(req)
	if err != nil {
		return nil, err
	}

	response, err := g.llm.Complete(ctx, prompt, llm.CompletionOptions{
		Temperature: g.temperature,
		MaxTokens:   constants.SQLGenerationMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("sql generation call failed: %w", err)
	}

	logger := g.logger.With(
		slog.String("request_id", observability.RequestIDFromContext(ctx)),
		slog.String("intent", string(req.Intent)),
		slog.Int("iteration", req.Iteration),
	)

	sql, ok := extractSQL(response)
	if !ok {
		logger.Warn("SQLGenerator -> Generate -> no usable SQL in model output",
			slog.String("output", observability.Truncate(response, 200)))
		return nil, ErrNoUsableSQL
	}

	if !isReadQuery(sql) {
		logger.Warn("SQLGenerator -> Generate -> generated statement is not a SELECT",
			slog.String("sql", observability.Truncate(sql, g.logMaxLength)))
	}

	logger.Info("SQLGenerator -> Generate -> generated SQL",
		slog.String("sql", observability.Truncate(sql, g.logMaxLength)))
	return &SQLStatement{SQL: sql, Iteration: req.Iteration}, nil
}

func (g *SQLGenerator) buildPrompt(req GenerateRequest) (string, error) {
	switch req.Intent {
	case IntentDataRetrieval:
		return constants.RenderPrompt(constants.SQLRetrievalPrompt, map[string]string{
			"dialect": g.dialect,
			"schema":  req.Schema,
			"query":   req.Query,
		}), nil
	case IntentInsights:
		guidance := req.Guidance
		if guidance == "" {
			guidance = "(none)"
		}
		return constants.RenderPrompt(constants.SQLInsightPrompt, map[string]string{
			"dialect":        g.dialect,
			"schema":         req.Schema,
			"query":          req.Query,
			"iteration":      strconv.Itoa(req.Iteration),
			"max_iterations": strconv.Itoa(req.MaxIterations),
			"compiled_data":  renderDatasets(req.Context, g.maxPreviewRows),
			"guidance":       guidance,
		}), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedIntent, req.Intent)
	}
}
