package services

import (
	"context"
	"log/slog"
	"querypilot-ai/internal/constants"
	"querypilot-ai/internal/observability"
	"querypilot-ai/pkg/llm"
	"strconv"
	"strings"
	"unicode"
)

type CompletenessAssessor struct {
	llm            llm.Completer
	temperature    float64
	maxPreviewRows int
	logger         *slog.Logger
}

func NewCompletenessAssessor(completer llm.Completer, cfg OrchestratorConfig, logger *slog.Logger) *CompletenessAssessor {
	return &CompletenessAssessor{
		llm:            completer,
		temperature:    cfg.Temperatures.Completeness,
		maxPreviewRows: cfg.MaxPreviewRows,
		logger:         logger,
	}
}

// Assess never fails: an unusable answer or a failed call is reported as an
// ambiguous "not complete", and the iteration cap ends the loop.
func (a *CompletenessAssessor) Assess(ctx context.Context, query string, compiled *CompiledData, iteration int) CompletenessVerdict {
	prompt := constants.RenderPrompt(constants.CompletenessPrompt, map[string]string{
		"query":         query,
		"iteration":     strconv.Itoa(iteration),
		"compiled_data": renderDatasets(compiled, a.maxPreviewRows),
	})

	logger := a.logger.With(
		slog.String("request_id", observability.RequestIDFromContext(ctx)),
		slog.Int("iteration", iteration),
	)

	response, err := a.llm.Complete(ctx, prompt, llm.CompletionOptions{
		Temperature: a.temperature,
		MaxTokens:   constants.CompletenessMaxTokens,
	})
	if err != nil {
		logger.Warn("CompletenessAssessor -> Assess -> call failed, treating as not complete",
			slog.String("error", err.Error()))
		return CompletenessVerdict{Ambiguous: true}
	}

	verdict := ParseVerdict(response)
	logger.Info("CompletenessAssessor -> Assess -> verdict",
		slog.Bool("complete", verdict.Complete),
		slog.Bool("ambiguous", verdict.Ambiguous))
	return verdict
}

// ParseVerdict reads a leading YES or NO. Text after NO is the guidance for
// the next iteration.
func ParseVerdict(response string) CompletenessVerdict {
	text := strings.TrimSpace(response)
	text = strings.TrimLeft(text, "*\"'`")

	end := strings.IndexFunc(text, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		end = len(text)
	}
	switch strings.ToUpper(text[:end]) {
	case "YES":
		return CompletenessVerdict{Complete: true}
	case "NO":
		guidance := strings.TrimLeft(text[end:], " \t\r\n.,:;-*")
		return CompletenessVerdict{Guidance: strings.TrimSpace(guidance)}
	}
	return CompletenessVerdict{Ambiguous: true}
}
