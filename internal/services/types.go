package services

import (
	"context"
	"errors"
	"fmt"
	"querypilot-ai/config"
	"querypilot-ai/internal/constants"
	"querypilot-ai/internal/models"
	"querypilot-ai/pkg/dbmanager"
	"strings"
)

// Intent is the closed set of request categories.
type Intent string

const (
	IntentChitchat      Intent = "CHITCHAT"
	IntentDataRetrieval Intent = "DATA_RETRIEVAL"
	IntentInsights      Intent = "INSIGHTS"
)

// ClassificationError is returned when the model answers with anything other
// than one of the three intent keywords.
type ClassificationError struct {
	Raw string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("unrecognized intent %q", e.Raw)
}

var (
	ErrNoUsableSQL       = errors.New("model produced no usable SQL")
	ErrUncorrectable     = errors.New("model could not correct the SQL")
	ErrUnsupportedIntent = errors.New("intent does not use SQL")
	ErrSchemaUnavailable = errors.New("schema unavailable")
	ErrSynthesisFailed   = errors.New("response synthesis failed")
)

// SQLStatement is one statement headed for the executor.
type SQLStatement struct {
	SQL       string
	Iteration int
	Corrects  string // error message this statement was generated to fix
}

// Dataset is one labelled result gathered during an insight flow.
type Dataset struct {
	Label     string
	SQL       string
	Iteration int
	Result    *dbmanager.ResultSet
}

// CompiledData accumulates datasets in arrival order. It only grows.
type CompiledData struct {
	datasets []Dataset
}

const datasetLabelSQLLength = 80

func (c *CompiledData) Append(sql string, iteration int, result *dbmanager.ResultSet) Dataset {
	dataset := Dataset{
		Label:     fmt.Sprintf("Dataset %d (Query: %s)", len(c.datasets)+1, shortenSQL(sql, datasetLabelSQLLength)),
		SQL:       sql,
		Iteration: iteration,
		Result:    result,
	}
	c.datasets = append(c.datasets, dataset)
	return dataset
}

func (c *CompiledData) Len() int {
	if c == nil {
		return 0
	}
	return len(c.datasets)
}

// Datasets returns a copy so callers cannot rewrite history.
func (c *CompiledData) Datasets() []Dataset {
	if c == nil {
		return nil
	}
	out := make([]Dataset, len(c.datasets))
	copy(out, c.datasets)
	return out
}

func shortenSQL(sql string, max int) string {
	flat := strings.Join(strings.Fields(sql), " ")
	runes := []rune(flat)
	if len(runes) <= max {
		return flat
	}
	return string(runes[:max]) + "…"
}

// CompletenessVerdict is the assessor's answer for one insight iteration.
type CompletenessVerdict struct {
	Complete  bool
	Guidance  string
	Ambiguous bool
}

// SQLExecutor runs one statement. Errors are *dbmanager.ExecutionError.
type SQLExecutor interface {
	Execute(ctx context.Context, sql string) (*dbmanager.ResultSet, error)
}

// SchemaProvider hands out the schema description used in prompts.
type SchemaProvider interface {
	GetSchema(ctx context.Context, forceRefresh bool) (string, error)
}

// QueryRecorder persists the audit record of a finished flow.
type QueryRecorder interface {
	Create(ctx context.Context, log *models.QueryLog) error
}

// Temperatures per LLM-calling component.
type Temperatures struct {
	Intent          float64
	Chitchat        float64
	SQLGeneration   float64
	ErrorCorrection float64
	Completeness    float64
	Synthesis       float64
}

type OrchestratorConfig struct {
	SQLMaxRetryAttempts           int
	MaxInsightIterations          int
	SQLErrorCorrectionMaxAttempts int
	MaxPreviewRows                int
	SQLLogMaxLength               int
	Dialect                       string
	CurrencyCode                  string
	Temperatures                  Temperatures
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		SQLMaxRetryAttempts:           3,
		MaxInsightIterations:          3,
		SQLErrorCorrectionMaxAttempts: 2,
		MaxPreviewRows:                10,
		SQLLogMaxLength:               1000,
		Dialect:                       constants.DialectName(constants.DatabaseTypePostgreSQL),
		CurrencyCode:                  "SAR",
		Temperatures: Temperatures{
			Intent:          0.0,
			Chitchat:        0.7,
			SQLGeneration:   0.1,
			ErrorCorrection: 0.1,
			Completeness:    0.0,
			Synthesis:       0.3,
		},
	}
}

func NewOrchestratorConfig(env *config.Environment) OrchestratorConfig {
	return OrchestratorConfig{
		SQLMaxRetryAttempts:           env.SQLMaxRetryAttempts,
		MaxInsightIterations:          env.MaxInsightIterations,
		SQLErrorCorrectionMaxAttempts: env.SQLErrorCorrectionMaxAttempts,
		MaxPreviewRows:                env.MaxPreviewRows,
		SQLLogMaxLength:               env.SQLQueryLogMaxLength,
		Dialect:                       constants.DialectName(env.DatabaseType),
		CurrencyCode:                  env.CurrencyCode,
		Temperatures: Temperatures{
			Intent:          env.IntentTemperature,
			Chitchat:        env.ChitchatTemperature,
			SQLGeneration:   env.SQLGenerationTemperature,
			ErrorCorrection: env.ErrorCorrectionTemperature,
			Completeness:    env.CompletenessTemperature,
			Synthesis:       env.SynthesisTemperature,
		},
	}
}
