package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"querypilot-ai/internal/constants"
	"querypilot-ai/internal/models"
	"querypilot-ai/internal/observability"
	"querypilot-ai/pkg/dbmanager"
	"querypilot-ai/pkg/llm"
	"strings"
	"time"

	"github.com/google/uuid"
)

type QueryStatus string

const (
	StatusAnswered             QueryStatus = "answered"
	StatusClassificationFailed QueryStatus = "classification_failed"
	StatusSchemaUnavailable    QueryStatus = "schema_unavailable"
	StatusGenerationFailed     QueryStatus = "generation_failed"
	StatusDatabaseError        QueryStatus = "database_error"
	StatusDatabaseUnavailable  QueryStatus = "database_unavailable"
	StatusInsightUnavailable   QueryStatus = "insight_unavailable"
	StatusSynthesisFailed      QueryStatus = "synthesis_failed"
)

var statusMessages = map[QueryStatus]string{
	StatusClassificationFailed: constants.MsgClassificationFailed,
	StatusSchemaUnavailable:    constants.MsgSchemaUnavailable,
	StatusGenerationFailed:     constants.MsgGenerationFailed,
	StatusDatabaseError:        constants.MsgDatabaseError,
	StatusDatabaseUnavailable:  constants.MsgDatabaseUnavailable,
	StatusInsightUnavailable:   constants.MsgInsightUnavailable,
	StatusSynthesisFailed:      constants.MsgProcessingError,
}

// QueryOutcome is everything one request produced. Response is always safe to
// show to the user.
type QueryOutcome struct {
	Response    string
	Intent      Intent
	Status      QueryStatus
	RequestID   string
	Statements  []models.ExecutedStatement
	Datasets    []Dataset
	Iterations  int
	Corrections int
	Duration    time.Duration
}

const recordTimeout = 5 * time.Second

type QueryOrchestrator struct {
	classifier  *IntentClassifier
	chitchat    *ChitchatResponder
	generator   *SQLGenerator
	corrector   *ErrorCorrector
	assessor    *CompletenessAssessor
	synthesizer *ResponseSynthesizer
	formatter   *PresentationFormatter
	executor    SQLExecutor
	schema      SchemaProvider
	recorder    QueryRecorder
	config      OrchestratorConfig
	logger      *slog.Logger
}

// NewQueryOrchestrator wires every component to the same completer. recorder
// may be nil, in which case no audit record is written.
func NewQueryOrchestrator(completer llm.Completer, executor SQLExecutor, schema SchemaProvider, recorder QueryRecorder, cfg OrchestratorConfig, logger *slog.Logger) *QueryOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryOrchestrator{
		classifier:  NewIntentClassifier(completer, cfg.Temperatures.Intent, logger),
		chitchat:    NewChitchatResponder(completer, cfg.Temperatures.Chitchat),
		generator:   NewSQLGenerator(completer, cfg, logger),
		corrector:   NewErrorCorrector(completer, cfg, logger),
		assessor:    NewCompletenessAssessor(completer, cfg, logger),
		synthesizer: NewResponseSynthesizer(completer, cfg),
		formatter:   NewPresentationFormatter(cfg.CurrencyCode, logger),
		executor:    executor,
		schema:      schema,
		recorder:    recorder,
		config:      cfg,
		logger:      logger,
	}
}

// flowRun is the mutable state of one request.
type flowRun struct {
	query    string
	outcome  *QueryOutcome
	compiled *CompiledData
	lastErr  error
	logger   *slog.Logger
}

func (r *flowRun) record(stmt *SQLStatement, result *dbmanager.ResultSet, err error) {
	executed := models.ExecutedStatement{
		SQL:       stmt.SQL,
		Iteration: stmt.Iteration,
		Corrects:  stmt.Corrects,
		Succeeded: err == nil,
		RowCount:  result.RowCount(),
	}
	if err != nil {
		executed.ErrorKind = string(dbmanager.AsExecutionError(err).Kind)
	}
	r.outcome.Statements = append(r.outcome.Statements, executed)
}

// Process answers one natural-language query. The returned error is non-nil
// only when ctx ended before the flow finished; every other failure is
// reported through the outcome's Status and Response.
func (o *QueryOrchestrator) Process(ctx context.Context, query string) (*QueryOutcome, error) {
	startTime := time.Now()

	requestID := observability.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = observability.ContextWithRequestID(ctx, requestID)
	}

	run := &flowRun{
		query:    query,
		outcome:  &QueryOutcome{RequestID: requestID},
		compiled: &CompiledData{},
		logger:   o.logger.With(slog.String("request_id", requestID)),
	}
	run.logger.Info("QueryOrchestrator -> Process -> received query",
		slog.String("query", observability.Truncate(query, o.config.SQLLogMaxLength)))

	if err := o.dispatch(ctx, run); err != nil {
		run.logger.Info("QueryOrchestrator -> Process -> request cancelled",
			slog.String("intent", string(run.outcome.Intent)),
			slog.Duration("elapsed", time.Since(startTime)))
		return nil, err
	}

	outcome := run.outcome
	outcome.Datasets = run.compiled.Datasets()
	outcome.Duration = time.Since(startTime)

	intentLabel := string(outcome.Intent)
	if intentLabel == "" {
		intentLabel = "unknown"
	}
	observability.ObserveQuery(intentLabel, string(outcome.Status), outcome.Duration)

	run.logger.Info("QueryOrchestrator -> Process -> finished",
		slog.String("intent", intentLabel),
		slog.String("status", string(outcome.Status)),
		slog.Int("statements", len(outcome.Statements)),
		slog.Int("corrections", outcome.Corrections),
		slog.Duration("elapsed", outcome.Duration))

	o.writeQueryLog(ctx, run)
	return outcome, nil
}

func (o *QueryOrchestrator) dispatch(ctx context.Context, run *flowRun) error {
	if strings.TrimSpace(run.query) == "" {
		o.fail(run, StatusClassificationFailed, errors.New("empty query"))
		return nil
	}

	intent, err := o.classifier.Classify(ctx, run.query)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		o.fail(run, StatusClassificationFailed, err)
		return nil
	}

	run.outcome.Intent = intent
	run.logger = run.logger.With(slog.String("intent", string(intent)))

	switch intent {
	case IntentChitchat:
		return o.chitchatFlow(ctx, run)
	case IntentDataRetrieval:
		return o.retrievalFlow(ctx, run)
	case IntentInsights:
		return o.insightFlow(ctx, run)
	default:
		o.fail(run, StatusClassificationFailed, &ClassificationError{Raw: string(intent)})
		return nil
	}
}

func (o *QueryOrchestrator) chitchatFlow(ctx context.Context, run *flowRun) error {
	reply, err := o.chitchat.Respond(ctx, run.query)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		o.fail(run, StatusSynthesisFailed, err)
		return nil
	}
	o.answer(run, reply)
	return nil
}

func (o *QueryOrchestrator) retrievalFlow(ctx context.Context, run *flowRun) error {
	schema, err := o.schema.GetSchema(ctx, false)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		o.fail(run, StatusSchemaUnavailable, fmt.Errorf("%w: %w", ErrSchemaUnavailable, err))
		return nil
	}

	run.outcome.Iterations = 1
	stmt, err := o.generator.Generate(ctx, GenerateRequest{
		Query:         run.query,
		Intent:        IntentDataRetrieval,
		Schema:        schema,
		Iteration:     1,
		MaxIterations: 1,
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		o.fail(run, StatusGenerationFailed, err)
		return nil
	}

	final, result, err := o.executeWithCorrection(ctx, run, stmt, o.config.SQLMaxRetryAttempts, schema)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		o.fail(run, executionStatus(err), err)
		return nil
	}
	dataset := run.compiled.Append(final.SQL, 1, result)

	narrative, err := o.synthesizer.SynthesizeRetrieval(ctx, run.query, result)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		o.fail(run, StatusSynthesisFailed, err)
		return nil
	}

	formatted := o.formatter.FormatResultSet(result)
	o.checkFormatting(run, dataset.Label, formatted)
	o.answer(run, narrative+"\n\n"+renderTable(formatted.Columns, formatted.Rows, o.config.MaxPreviewRows))
	return nil
}

func (o *QueryOrchestrator) insightFlow(ctx context.Context, run *flowRun) error {
	schema, err := o.schema.GetSchema(ctx, false)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		o.fail(run, StatusSchemaUnavailable, fmt.Errorf("%w: %w", ErrSchemaUnavailable, err))
		return nil
	}

	maxIterations := o.config.MaxInsightIterations
	guidance := ""

	for iteration := 1; iteration <= maxIterations; iteration++ {
		run.outcome.Iterations = iteration
		logger := run.logger.With(slog.Int("iteration", iteration))

		stmt, err := o.generator.Generate(ctx, GenerateRequest{
			Query:         run.query,
			Intent:        IntentInsights,
			Schema:        schema,
			Context:       run.compiled,
			Iteration:     iteration,
			MaxIterations: maxIterations,
			Guidance:      guidance,
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			run.lastErr = err
			if iteration == 1 {
				o.fail(run, StatusGenerationFailed, err)
				return nil
			}
			logger.Warn("QueryOrchestrator -> insightFlow -> generation failed, stopping early",
				slog.String("error", err.Error()))
			break
		}

		final, result, err := o.executeWithCorrection(ctx, run, stmt, o.config.SQLErrorCorrectionMaxAttempts, schema)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			run.lastErr = err
			if iteration == 1 && run.compiled.Len() == 0 {
				o.fail(run, executionStatus(err), err)
				return nil
			}
			logger.Warn("QueryOrchestrator -> insightFlow -> iteration produced no data",
				slog.String("error", err.Error()))
		} else {
			dataset := run.compiled.Append(final.SQL, iteration, result)
			logger.Info("QueryOrchestrator -> insightFlow -> compiled dataset",
				slog.String("label", dataset.Label),
				slog.Int("rows", result.RowCount()))
		}

		if run.compiled.Len() > 0 && iteration < maxIterations {
			verdict := o.assessor.Assess(ctx, run.query, run.compiled, iteration)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if verdict.Complete {
				break
			}
			guidance = verdict.Guidance
		}
	}

	observability.ObserveInsightIterations(run.outcome.Iterations)

	if run.compiled.Len() == 0 {
		o.fail(run, StatusInsightUnavailable, run.lastErr)
		return nil
	}

	narrative, err := o.synthesizer.SynthesizeInsight(ctx, run.query, run.compiled)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		o.fail(run, StatusSynthesisFailed, err)
		return nil
	}

	tables := make([]string, 0, run.compiled.Len())
	for _, dataset := range run.compiled.Datasets() {
		formatted := o.formatter.FormatResultSet(dataset.Result)
		o.checkFormatting(run, dataset.Label, formatted)
		tables = append(tables, dataset.Label+"\n"+renderTable(formatted.Columns, formatted.Rows, o.config.MaxPreviewRows))
	}
	o.answer(run, narrative+"\n\n"+strings.Join(tables, "\n\n"))
	return nil
}

// executeWithCorrection runs stmt and, for correctable failures, asks the
// corrector for a replacement. At most maxAttempts statements are executed,
// so the corrector is called at most maxAttempts-1 times. It returns the
// statement that succeeded.
func (o *QueryOrchestrator) executeWithCorrection(ctx context.Context, run *flowRun, stmt *SQLStatement, maxAttempts int, schema string) (*SQLStatement, *dbmanager.ResultSet, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	current := stmt
	for attempt := 1; ; attempt++ {
		result, err := o.executor.Execute(ctx, current.SQL)
		run.record(current, result, err)
		if err == nil {
			return current, result, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		execErr := dbmanager.AsExecutionError(err)
		logger := run.logger.With(
			slog.Int("attempt", attempt),
			slog.String("error_kind", string(execErr.Kind)),
		)

		if !execErr.Correctable() {
			logger.Warn("QueryOrchestrator -> executeWithCorrection -> error is not correctable",
				slog.String("error", execErr.Message))
			return nil, nil, execErr
		}
		if attempt >= maxAttempts {
			logger.Warn("QueryOrchestrator -> executeWithCorrection -> attempts exhausted",
				slog.Int("max_attempts", maxAttempts))
			return nil, nil, execErr
		}

		corrected, err := o.corrector.Correct(ctx, current.SQL, execErr.Message, schema)
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if err != nil {
			observability.IncrementSQLCorrection("failed")
			logger.Warn("QueryOrchestrator -> executeWithCorrection -> correction failed",
				slog.String("error", err.Error()))
			return nil, nil, fmt.Errorf("%w: %w", ErrUncorrectable, execErr)
		}

		observability.IncrementSQLCorrection("suggested")
		run.outcome.Corrections++
		corrected.Iteration = current.Iteration
		current = corrected
	}
}

// executionStatus maps an execution failure to the status the user sees.
func executionStatus(err error) QueryStatus {
	var execErr *dbmanager.ExecutionError
	if errors.As(err, &execErr) {
		switch execErr.Kind {
		case dbmanager.ErrorKindTimeout, dbmanager.ErrorKindConnection, dbmanager.ErrorKindCancelled:
			return StatusDatabaseUnavailable
		}
	}
	return StatusDatabaseError
}

func (o *QueryOrchestrator) checkFormatting(run *flowRun, label string, result *dbmanager.ResultSet) {
	if result == nil {
		return
	}
	issues := o.formatter.Validate(result.Columns, result.Rows)
	if len(issues) == 0 {
		return
	}
	first := issues[0]
	run.logger.Warn("QueryOrchestrator -> checkFormatting -> values left unformatted",
		slog.String("dataset", label),
		slog.Int("issues", len(issues)),
		slog.String("column", first.Column),
		slog.String("value", first.Value),
		slog.String("expected", first.Expected))
}

func (o *QueryOrchestrator) answer(run *flowRun, response string) {
	run.outcome.Status = StatusAnswered
	run.outcome.Response = response
}

func (o *QueryOrchestrator) fail(run *flowRun, status QueryStatus, err error) {
	run.outcome.Status = status
	run.outcome.Response = statusMessages[status]
	run.lastErr = err

	branch := string(run.outcome.Intent)
	if branch == "" {
		branch = "classification"
	}
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	run.logger.Error("QueryOrchestrator -> Process -> request failed",
		slog.String("query", observability.Truncate(run.query, o.config.SQLLogMaxLength)),
		slog.String("branch", branch),
		slog.String("status", string(status)),
		slog.Int("iterations", run.outcome.Iterations),
		slog.String("error", errText))
}

func (o *QueryOrchestrator) writeQueryLog(ctx context.Context, run *flowRun) {
	if o.recorder == nil {
		return
	}

	outcome := run.outcome
	entry := models.NewQueryLog(outcome.RequestID, run.query, outcome.Duration)
	entry.Intent = string(outcome.Intent)
	entry.Status = string(outcome.Status)
	entry.Statements = outcome.Statements
	entry.Datasets = len(outcome.Datasets)
	entry.Iterations = outcome.Iterations
	entry.Corrections = outcome.Corrections
	if run.lastErr != nil {
		entry.LastError = run.lastErr.Error()
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := o.recorder.Create(recordCtx, entry); err != nil {
		run.logger.Warn("QueryOrchestrator -> writeQueryLog -> failed to store query log",
			slog.String("error", err.Error()))
	}
}
