package services

import (
	"context"
	"fmt"
	"querypilot-ai/internal/constants"
	"querypilot-ai/pkg/dbmanager"
	"querypilot-ai/pkg/llm"
	"strconv"
	"strings"
)

// ResponseSynthesizer turns gathered data into the narrative answer. Numbers
// are left to the PresentationFormatter.
type ResponseSynthesizer struct {
	llm            llm.Completer
	temperature    float64
	maxPreviewRows int
}

func NewResponseSynthesizer(completer llm.Completer, cfg OrchestratorConfig) *ResponseSynthesizer {
	return &ResponseSynthesizer{
		llm:            completer,
		temperature:    cfg.Temperatures.Synthesis,
		maxPreviewRows: cfg.MaxPreviewRows,
	}
}

func (s *ResponseSynthesizer) SynthesizeRetrieval(ctx context.Context, query string, result *dbmanager.ResultSet) (string, error) {
	var columns []string
	var rows []map[string]interface{}
	if result != nil {
		columns, rows = result.Columns, result.Rows
	}

	prompt := constants.RenderPrompt(constants.RetrievalSynthesisPrompt, map[string]string{
		"query":     query,
		"row_count": strconv.Itoa(result.RowCount()),
		"table":     renderTable(columns, rows, s.maxPreviewRows),
	})
	return s.complete(ctx, prompt)
}

func (s *ResponseSynthesizer) SynthesizeInsight(ctx context.Context, query string, compiled *CompiledData) (string, error) {
	prompt := constants.RenderPrompt(constants.InsightSynthesisPrompt, map[string]string{
		"query":    query,
		"datasets": renderDatasets(compiled, s.maxPreviewRows),
	})
	return s.complete(ctx, prompt)
}

func (s *ResponseSynthesizer) complete(ctx context.Context, prompt string) (string, error) {
	answer, err := s.llm.Complete(ctx, prompt, llm.CompletionOptions{
		Temperature: s.temperature,
		MaxTokens:   constants.SynthesisMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%w: empty answer", ErrSynthesisFailed)
	}
	return answer, nil
}
