package services

import (
	"context"
	"fmt"
	"log/slog"
	"querypilot-ai/internal/constants"
	"querypilot-ai/internal/observability"
	"querypilot-ai/pkg/llm"
	"regexp"
	"strings"
)

var (
	suggestedSQLLabel = regexp.MustCompile(`(?i)suggested\s+sql\s*:`)
	correctionLabel   = regexp.MustCompile(`(?i)correction\s*:\s*(.*)`)
)

// errorMarkers in a suggestion mean the model is still describing a failure.
var errorMarkers = []string{"error:", "-- error"}

type ErrorCorrector struct {
	llm          llm.Completer
	temperature  float64
	dialect      string
	logMaxLength int
	logger       *slog.Logger
}

func NewErrorCorrector(completer llm.Completer, cfg OrchestratorConfig, logger *slog.Logger) *ErrorCorrector {
	return &ErrorCorrector{
		llm:          completer,
		temperature:  cfg.Temperatures.ErrorCorrection,
		dialect:      cfg.Dialect,
		logMaxLength: cfg.SQLLogMaxLength,
		logger:       logger,
	}
}

// Correct asks for a replacement of failedSQL. It returns ErrUncorrectable
// when the suggestion is missing, unchanged or still an error.
func (c *ErrorCorrector) Correct(ctx context.Context, failedSQL, errorMessage, schema string) (*SQLStatement, error) {
	prompt := constants.RenderPrompt(constants.ErrorCorrectionPrompt, map[string]string{
		"dialect": c.dialect,
		"schema":  schema,
		"sql":     failedSQL,
		"error":   errorMessage,
	})

	response, err := c.llm.Complete(ctx, prompt, llm.CompletionOptions{
		Temperature: c.temperature,
		MaxTokens:   constants.ErrorCorrectionMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("error correction call failed: %w", err)
	}

	logger := c.logger.With(slog.String("request_id", observability.RequestIDFromContext(ctx)))

	sql, reason := parseCorrection(response, failedSQL)
	if reason != "" {
		logger.Warn("ErrorCorrector -> Correct -> no usable correction",
			slog.String("reason", reason),
			slog.String("output", observability.Truncate(response, 200)))
		return nil, ErrUncorrectable
	}

	attrs := []any{slog.String("sql", observability.Truncate(sql, c.logMaxLength))}
	if m := correctionLabel.FindStringSubmatch(response); m != nil {
		attrs = append(attrs, slog.String("explanation", observability.Truncate(strings.TrimSpace(m[1]), 200)))
	}
	logger.Info("ErrorCorrector -> Correct -> suggested corrected SQL", attrs...)

	return &SQLStatement{SQL: sql, Corrects: errorMessage}, nil
}

// parseCorrection returns the suggested statement, or a non-empty reason why
// there is none.
func parseCorrection(response, failedSQL string) (string, string) {
	if strings.Contains(strings.ToUpper(response), constants.CannotCorrectMarker) {
		return "", "model declined"
	}

	candidate := response
	if loc := suggestedSQLLabel.FindStringIndex(response); loc != nil {
		candidate = response[loc[1]:]
	}
	candidate = strings.TrimSpace(stripCodeFences(candidate))

	if candidate == "" || strings.EqualFold(strings.TrimSuffix(candidate, "."), "none") {
		return "", "empty suggestion"
	}

	sql, ok := extractSQL(candidate)
	if !ok {
		return "", "no statement in suggestion"
	}

	lower := strings.ToLower(sql)
	for _, marker := range errorMarkers {
		if strings.Contains(lower, marker) {
			return "", "suggestion contains an error marker"
		}
	}

	if normalizeSQL(sql) == normalizeSQL(failedSQL) {
		return "", "suggestion is identical to the failed SQL"
	}
	return sql, ""
}
