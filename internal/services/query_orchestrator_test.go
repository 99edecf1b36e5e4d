package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"querypilot-ai/internal/constants"
	"querypilot-ai/internal/observability"
	"querypilot-ai/pkg/dbmanager"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	llm      *scriptedLLM
	executor *fakeExecutor
	schema   *fakeSchema
	recorder *memoryRecorder
	cfg      OrchestratorConfig
}

func newHarness() *harness {
	return &harness{
		llm:      newScriptedLLM(),
		executor: &fakeExecutor{},
		schema:   &fakeSchema{description: shopSchema},
		recorder: &memoryRecorder{},
		cfg:      testConfig(),
	}
}

func (h *harness) orchestrator() *QueryOrchestrator {
	return NewQueryOrchestrator(h.llm, h.executor, h.schema, h.recorder, h.cfg, quietLogger())
}

func (h *harness) process(t *testing.T, query string) *QueryOutcome {
	t.Helper()
	outcome, err := h.orchestrator().Process(context.Background(), query)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	return outcome
}

func TestChitchatIsAnsweredVerbatim(t *testing.T) {
	h := newHarness()
	h.llm.on(stageClassify, "CHITCHAT").on(stageChitchat, "  I'm doing great, thanks for asking!  ")

	outcome := h.process(t, "Hello, how are you?")

	assert.Equal(t, StatusAnswered, outcome.Status)
	assert.Equal(t, IntentChitchat, outcome.Intent)
	assert.Equal(t, "I'm doing great, thanks for asking!", outcome.Response)
	assert.Equal(t, 1, h.llm.count(stageChitchat))
	assert.Empty(t, h.executor.executed())
	assert.Zero(t, h.schema.calls)
}

func TestRetrievalAnswersWithFormattedCount(t *testing.T) {
	h := newHarness()
	h.llm.on(stageClassify, "DATA_RETRIEVAL").
		on(stageGenerate, "```sql\nSELECT COUNT(*) AS active_users_count FROM users WHERE active\n```").
		on(stageSynthesize, "There are 1234 active users.")
	h.executor.succeed([]string{"active_users_count"}, row("active_users_count", 1234.0))

	outcome := h.process(t, "How many active users?")

	assert.Equal(t, StatusAnswered, outcome.Status)
	assert.Equal(t, IntentDataRetrieval, outcome.Intent)
	assert.Equal(t, 1, h.schema.calls)
	assert.Equal(t, 1, h.llm.count(stageGenerate))
	assert.Equal(t, 1, h.llm.count(stageSynthesize))
	assert.Equal(t, []string{"SELECT COUNT(*) AS active_users_count FROM users WHERE active"}, h.executor.executed())
	assert.True(t, strings.HasPrefix(outcome.Response, "There are 1234 active users.\n\n"))
	assert.Contains(t, outcome.Response, "1,234")
	require.Len(t, outcome.Datasets, 1)
	assert.Equal(t, 1, outcome.Datasets[0].Result.RowCount())
}

func TestRetrievalKeepsNonFiniteValues(t *testing.T) {
	h := newHarness()
	h.llm.on(stageClassify, "DATA_RETRIEVAL").
		on(stageGenerate, "SELECT AVG(price) AS avg_price, AVG(qty) AS avg_count FROM items").
		on(stageSynthesize, "The average price is unbounded.")
	h.executor.succeed([]string{"avg_price", "avg_count"}, row("avg_price", math.Inf(1), "avg_count", math.NaN()))

	outcome := h.process(t, "What is the average price?")

	assert.Equal(t, StatusAnswered, outcome.Status)
	assert.Contains(t, outcome.Response, "+Inf")
	assert.Contains(t, outcome.Response, "NaN")
}

func TestInsightKeepsNonFiniteValues(t *testing.T) {
	h := newHarness()
	h.cfg.MaxInsightIterations = 1
	h.llm.on(stageClassify, "INSIGHTS").
		on(stageGenerate, "SELECT region, SUM(amount) AS total_sales FROM orders GROUP BY region").
		on(stageSynthesize, "North has no finite total.")
	h.executor.succeed([]string{"region", "total_sales"}, row("region", "north", "total_sales", math.Inf(-1)))

	outcome := h.process(t, "Why are sales odd in the north?")

	assert.Equal(t, StatusAnswered, outcome.Status)
	assert.Contains(t, outcome.Response, "-Inf")
}

func TestRetrievalCorrectsFailedQuery(t *testing.T) {
	h := newHarness()
	h.llm.on(stageClassify, "DATA_RETRIEVAL").
		on(stageGenerate, "SELECT COUNT(*) AS user_count FROM users").
		on(stageCorrect, "Correction: the table lives in the crm schema.\nSuggested SQL: SELECT COUNT(*) AS user_count FROM crm.users").
		on(stageSynthesize, "You have 42 users.")
	h.executor.
		failWith(dbmanager.ErrorKindQuery, `relation "users" does not exist`).
		succeed([]string{"user_count"}, row("user_count", int64(42)))

	outcome := h.process(t, "How many active users?")

	assert.Equal(t, StatusAnswered, outcome.Status)
	assert.Equal(t, 1, h.llm.count(stageCorrect))
	correction := h.llm.promptsFor(stageCorrect)[0]
	assert.Contains(t, correction, "SELECT COUNT(*) AS user_count FROM users")
	assert.Contains(t, correction, `relation "users" does not exist`)

	assert.Equal(t, []string{
		"SELECT COUNT(*) AS user_count FROM users",
		"SELECT COUNT(*) AS user_count FROM crm.users",
	}, h.executor.executed())
	assert.Equal(t, 1, h.llm.count(stageSynthesize))
	assert.Contains(t, h.llm.promptsFor(stageSynthesize)[0], "42")
	assert.Equal(t, 1, outcome.Corrections)

	require.Len(t, outcome.Statements, 2)
	assert.False(t, outcome.Statements[0].Succeeded)
	assert.Equal(t, "query", outcome.Statements[0].ErrorKind)
	assert.True(t, outcome.Statements[1].Succeeded)
	assert.Equal(t, `relation "users" does not exist`, outcome.Statements[1].Corrects)
	assert.Equal(t, "SELECT COUNT(*) AS user_count FROM crm.users", outcome.Datasets[0].SQL)
}

func TestRetrievalGivesUpWhenCorrectionsAreExhausted(t *testing.T) {
	h := newHarness()
	h.cfg.SQLMaxRetryAttempts = 2
	h.llm.on(stageClassify, "DATA_RETRIEVAL").
		on(stageGenerate, "SELECT * FROM userz").
		on(stageCorrect, "Correction: typo.\nSuggested SQL: SELECT * FROM usrs").
		on(stageSynthesize, "unused")
	h.executor.failWith(dbmanager.ErrorKindQuery, `relation "userz" does not exist`)

	outcome := h.process(t, "List users")

	assert.Equal(t, StatusDatabaseError, outcome.Status)
	assert.Equal(t, constants.MsgDatabaseError, outcome.Response)
	assert.Len(t, h.executor.executed(), 2)
	assert.Equal(t, 1, h.llm.count(stageCorrect))
	assert.Zero(t, h.llm.count(stageSynthesize))
	assert.NotContains(t, outcome.Response, "SELECT")
}

func TestCorrectorCallBound(t *testing.T) {
	for maxAttempts := 1; maxAttempts <= 4; maxAttempts++ {
		t.Run(fmt.Sprintf("max_%d", maxAttempts), func(t *testing.T) {
			h := newHarness()
			h.cfg.SQLMaxRetryAttempts = maxAttempts
			h.llm.on(stageClassify, "DATA_RETRIEVAL").on(stageGenerate, "SELECT 0")
			for i := 1; i <= 5; i++ {
				h.llm.on(stageCorrect, fmt.Sprintf("Suggested SQL: SELECT %d", i))
			}
			h.executor.failWith(dbmanager.ErrorKindQuery, "syntax error")

			outcome := h.process(t, "q")

			assert.Equal(t, StatusDatabaseError, outcome.Status)
			assert.Equal(t, maxAttempts-1, h.llm.count(stageCorrect))
			assert.Len(t, h.executor.executed(), maxAttempts)
		})
	}
}

func TestUncorrectableSuggestionStopsRetries(t *testing.T) {
	h := newHarness()
	h.llm.on(stageClassify, "DATA_RETRIEVAL").
		on(stageGenerate, "SELECT * FROM userz").
		on(stageCorrect, "CANNOT_CORRECT")
	h.executor.failWith(dbmanager.ErrorKindQuery, "no such table")

	outcome := h.process(t, "q")

	assert.Equal(t, StatusDatabaseError, outcome.Status)
	assert.Len(t, h.executor.executed(), 1)
	assert.Equal(t, 1, h.llm.count(stageCorrect))
}

func TestInfrastructureErrorsAreNotCorrected(t *testing.T) {
	for _, kind := range []dbmanager.ErrorKind{dbmanager.ErrorKindTimeout, dbmanager.ErrorKindConnection} {
		t.Run(string(kind), func(t *testing.T) {
			h := newHarness()
			h.llm.on(stageClassify, "DATA_RETRIEVAL").on(stageGenerate, "SELECT pg_sleep(100)")
			h.executor.failWith(kind, "statement timeout")

			outcome := h.process(t, "q")

			assert.Equal(t, StatusDatabaseUnavailable, outcome.Status)
			assert.Equal(t, constants.MsgDatabaseUnavailable, outcome.Response)
			assert.Zero(t, h.llm.count(stageCorrect))
		})
	}
}

func TestInsightStopsWhenAssessorIsSatisfied(t *testing.T) {
	h := newHarness()
	h.llm.on(stageClassify, "INSIGHTS").
		on(stageGenerate,
			"SELECT region, SUM(amount) AS total_sales FROM sales GROUP BY region",
			"SELECT month, COUNT(*) AS order_count FROM orders GROUP BY month").
		on(stageAssess, "NO. Break it down by month.", "YES").
		on(stageSynthesize, "North leads on sales and orders peak in March.")
	h.executor.
		succeed([]string{"region", "total_sales"}, row("region", "north", "total_sales", 98765.432)).
		succeed([]string{"month", "order_count"}, row("month", "March", "order_count", int64(15230)))

	outcome := h.process(t, "Why is the north region doing better?")

	assert.Equal(t, StatusAnswered, outcome.Status)
	assert.Equal(t, 2, h.llm.count(stageGenerate))
	assert.Len(t, h.executor.executed(), 2)
	assert.Equal(t, 2, h.llm.count(stageAssess))
	assert.Equal(t, 1, h.llm.count(stageSynthesize))
	assert.Equal(t, 2, outcome.Iterations)

	synthesis := h.llm.promptsFor(stageSynthesize)[0]
	assert.Contains(t, synthesis, "Dataset 1 (Query: SELECT region")
	assert.Contains(t, synthesis, "Dataset 2 (Query: SELECT month")
	assert.Contains(t, h.llm.promptsFor(stageGenerate)[1], "Break it down by month.")

	require.Len(t, outcome.Datasets, 2)
	assert.Contains(t, outcome.Response, "98,765.43 SAR")
	assert.Contains(t, outcome.Response, "15,230")
}

func TestInsightTerminatesWhenNeverComplete(t *testing.T) {
	h := newHarness()
	h.cfg.MaxInsightIterations = 3
	h.llm.on(stageClassify, "INSIGHTS").
		on(stageGenerate, "SELECT 1 AS x").
		on(stageAssess, "NO, need more").
		on(stageSynthesize, "Here is what I found.")
	h.executor.succeed([]string{"x"}, row("x", 1))

	outcome := h.process(t, "Explain churn")

	assert.Equal(t, StatusAnswered, outcome.Status)
	assert.Equal(t, 3, outcome.Iterations)
	assert.Equal(t, 3, h.llm.count(stageGenerate))
	assert.Equal(t, 2, h.llm.count(stageAssess))
	assert.Len(t, outcome.Datasets, 3)
}

func TestInsightFailsFastOnFirstExecution(t *testing.T) {
	h := newHarness()
	h.llm.on(stageClassify, "INSIGHTS").on(stageGenerate, "SELECT 1")
	h.executor.failWith(dbmanager.ErrorKindConnection, "connection refused")

	outcome := h.process(t, "Explain churn")

	assert.Equal(t, StatusDatabaseUnavailable, outcome.Status)
	assert.Equal(t, 1, outcome.Iterations)
	assert.Zero(t, h.llm.count(stageAssess))
	assert.Zero(t, h.llm.count(stageSynthesize))
}

func TestInsightGenerationFailure(t *testing.T) {
	h := newHarness()
	h.llm.on(stageClassify, "INSIGHTS").on(stageGenerate, "NO_QUERY")

	outcome := h.process(t, "Explain churn")

	assert.Equal(t, StatusGenerationFailed, outcome.Status)
	assert.Equal(t, constants.MsgGenerationFailed, outcome.Response)
	assert.Empty(t, h.executor.executed())
}

func TestInsightKeepsDataWhenLaterGenerationFails(t *testing.T) {
	h := newHarness()
	h.llm.on(stageClassify, "INSIGHTS").
		on(stageGenerate, "SELECT 1 AS x", "NO_QUERY").
		on(stageAssess, "NO").
		on(stageSynthesize, "Partial answer.")
	h.executor.succeed([]string{"x"}, row("x", 1))

	outcome := h.process(t, "Explain churn")

	assert.Equal(t, StatusAnswered, outcome.Status)
	assert.Len(t, outcome.Datasets, 1)
	assert.Equal(t, 2, outcome.Iterations)
	assert.True(t, strings.HasPrefix(outcome.Response, "Partial answer."))
}

func TestUnknownIntentIsClassificationFailure(t *testing.T) {
	h := newHarness()
	h.llm.on(stageClassify, "REPORT")

	outcome := h.process(t, "Give me a report")

	assert.Equal(t, StatusClassificationFailed, outcome.Status)
	assert.Equal(t, constants.MsgClassificationFailed, outcome.Response)
	assert.Zero(t, h.schema.calls)
	assert.Zero(t, h.llm.count(stageGenerate))
}

func TestSchemaUnavailable(t *testing.T) {
	h := newHarness()
	h.schema.err = errors.New("dial tcp: connection refused")
	h.llm.on(stageClassify, "DATA_RETRIEVAL")

	outcome := h.process(t, "How many users?")

	assert.Equal(t, StatusSchemaUnavailable, outcome.Status)
	assert.Equal(t, constants.MsgSchemaUnavailable, outcome.Response)
	assert.Zero(t, h.llm.count(stageGenerate))
}

func TestSynthesisFailure(t *testing.T) {
	h := newHarness()
	h.llm.on(stageClassify, "DATA_RETRIEVAL").
		on(stageGenerate, "SELECT 1 AS x").
		fail(stageSynthesize, errors.New("quota exceeded"))
	h.executor.succeed([]string{"x"}, row("x", 1))

	outcome := h.process(t, "q")

	assert.Equal(t, StatusSynthesisFailed, outcome.Status)
	assert.Equal(t, constants.MsgProcessingError, outcome.Response)
}

func TestCancellationDiscardsOutcome(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.llm.on(stageClassify, "DATA_RETRIEVAL").on(stageGenerate, "SELECT 1")
	h.llm.onCall = func(st stage) {
		if st == stageGenerate {
			cancel()
		}
	}

	outcome, err := h.orchestrator().Process(ctx, "How many users?")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, outcome)
	assert.Empty(t, h.executor.executed())
	assert.Empty(t, h.recorder.logs)
}

func TestProcessWritesQueryLog(t *testing.T) {
	h := newHarness()
	h.llm.on(stageClassify, "DATA_RETRIEVAL").
		on(stageGenerate, "SELECT * FROM userz").
		on(stageCorrect, "Suggested SQL: SELECT * FROM users").
		on(stageSynthesize, "Done.")
	h.executor.
		failWith(dbmanager.ErrorKindQuery, "no such table").
		succeed([]string{"id"}, row("id", 1))

	ctx := observability.ContextWithRequestID(context.Background(), "req-42")
	outcome, err := h.orchestrator().Process(ctx, "List users")
	require.NoError(t, err)

	assert.Equal(t, "req-42", outcome.RequestID)
	require.Len(t, h.recorder.logs, 1)
	entry := h.recorder.logs[0]
	assert.Equal(t, "req-42", entry.RequestID)
	assert.Equal(t, "DATA_RETRIEVAL", entry.Intent)
	assert.Equal(t, "answered", entry.Status)
	assert.Len(t, entry.Statements, 2)
	assert.Equal(t, 1, entry.Corrections)
	assert.Equal(t, 1, entry.Datasets)
}

func TestProcessGeneratesRequestID(t *testing.T) {
	h := newHarness()
	h.llm.on(stageClassify, "CHITCHAT").on(stageChitchat, "hi")

	outcome := h.process(t, "hello")

	assert.NotEmpty(t, outcome.RequestID)
}
