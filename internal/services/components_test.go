package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"querypilot-ai/pkg/dbmanager"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		raw  string
		want Intent
	}{
		{"CHITCHAT", IntentChitchat},
		{"data_retrieval", IntentDataRetrieval},
		{"  Insights.\n", IntentInsights},
		{"`INSIGHTS`", IntentInsights},
		{"\"DATA_RETRIEVAL\"", IntentDataRetrieval},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseIntent(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIntentRejectsUnknown(t *testing.T) {
	for _, raw := range []string{"", "REPORT", "DATA_RETRIEVAL please", "I think INSIGHTS"} {
		_, err := ParseIntent(raw)
		var classErr *ClassificationError
		require.ErrorAs(t, err, &classErr, raw)
		assert.Equal(t, raw, classErr.Raw)
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	completer := newScriptedLLM().on(stageClassify, "INSIGHTS")
	classifier := NewIntentClassifier(completer, 0, quietLogger())

	first, err := classifier.Classify(context.Background(), "Why did sales drop in March?")
	require.NoError(t, err)
	second, err := classifier.Classify(context.Background(), "Why did sales drop in March?")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, completer.count(stageClassify))
}

func TestClassifyPropagatesCallFailure(t *testing.T) {
	completer := newScriptedLLM().fail(stageClassify, errors.New("provider down"))
	classifier := NewIntentClassifier(completer, 0, quietLogger())

	_, err := classifier.Classify(context.Background(), "hi")
	assert.ErrorContains(t, err, "provider down")
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		ok       bool
	}{
		{"plain", "SELECT 1", "SELECT 1", true},
		{"fenced", "```sql\nSELECT id FROM users\n```", "SELECT id FROM users", true},
		{"fence without tag", "```\nSELECT id\nFROM users\n```", "SELECT id\nFROM users", true},
		{"json payload", `{"sql": "SELECT count(*) FROM users"}`, "SELECT count(*) FROM users", true},
		{"prose around", "Here you go:\nSELECT name\nFROM users;\nThis lists users.", "SELECT name\nFROM users;", true},
		{"cte", "WITH t AS (SELECT 1) SELECT * FROM t", "WITH t AS (SELECT 1) SELECT * FROM t", true},
		{"declined", "NO_QUERY", "", false},
		{"prose only", "I cannot answer that.", "", false},
		{"empty", "   ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractSQL(tt.response)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCorrection(t *testing.T) {
	failed := "SELECT * FROM userz"
	tests := []struct {
		name       string
		response   string
		wantSQL    string
		wantReject bool
	}{
		{"labelled", "Correction: the table is users.\nSuggested SQL: SELECT * FROM users", "SELECT * FROM users", false},
		{"fenced", "Correction: typo.\nSuggested SQL:\n```sql\nSELECT * FROM users\n```", "SELECT * FROM users", false},
		{"declined marker", "CANNOT_CORRECT", "", true},
		{"none", "Correction: the column does not exist.\nSuggested SQL: None", "", true},
		{"identical", "Correction: looks fine.\nSuggested SQL: select *  from userz;", "", true},
		{"error marker", "Suggested SQL: SELECT 1 -- error: unknown", "", true},
		{"no statement", "Suggested SQL: check the table name", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, reason := parseCorrection(tt.response, failed)
			if tt.wantReject {
				assert.NotEmpty(t, reason)
				assert.Empty(t, sql)
				return
			}
			assert.Empty(t, reason)
			assert.Equal(t, tt.wantSQL, sql)
		})
	}
}

func TestErrorCorrectorReturnsUncorrectable(t *testing.T) {
	completer := newScriptedLLM().on(stageCorrect, "Correction: none.\nSuggested SQL: None")
	corrector := NewErrorCorrector(completer, testConfig(), quietLogger())

	_, err := corrector.Correct(context.Background(), "SELECT * FROM userz", `relation "userz" does not exist`, shopSchema)
	assert.ErrorIs(t, err, ErrUncorrectable)

	prompt := completer.promptsFor(stageCorrect)[0]
	assert.Contains(t, prompt, "SELECT * FROM userz")
	assert.Contains(t, prompt, `relation "userz" does not exist`)
	assert.Contains(t, prompt, "PostgreSQL")
}

func TestSQLGeneratorRejectsNoQuery(t *testing.T) {
	completer := newScriptedLLM().on(stageGenerate, "NO_QUERY")
	generator := NewSQLGenerator(completer, testConfig(), quietLogger())

	_, err := generator.Generate(context.Background(), GenerateRequest{Query: "q", Intent: IntentDataRetrieval, Schema: shopSchema})
	assert.ErrorIs(t, err, ErrNoUsableSQL)

	_, err = generator.Generate(context.Background(), GenerateRequest{Query: "q", Intent: IntentChitchat})
	assert.ErrorIs(t, err, ErrUnsupportedIntent)
}

func TestSQLGeneratorInsightPromptCarriesContext(t *testing.T) {
	completer := newScriptedLLM().on(stageGenerate, "SELECT region, SUM(amount) FROM sales GROUP BY region")
	generator := NewSQLGenerator(completer, testConfig(), quietLogger())

	compiled := &CompiledData{}
	compiled.Append("SELECT count(*) FROM sales", 1, &dbmanager.ResultSet{
		Columns: []string{"count"},
		Rows:    []map[string]interface{}{row("count", 42)},
	})

	stmt, err := generator.Generate(context.Background(), GenerateRequest{
		Query:         "Compare regions",
		Intent:        IntentInsights,
		Schema:        shopSchema,
		Context:       compiled,
		Iteration:     2,
		MaxIterations: 3,
		Guidance:      "break down by region",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stmt.Iteration)

	prompt := completer.promptsFor(stageGenerate)[0]
	assert.Contains(t, prompt, "Iteration: 2 of 3")
	assert.Contains(t, prompt, "Dataset 1 (Query: SELECT count(*) FROM sales)")
	assert.Contains(t, prompt, "break down by region")
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		response string
		want     CompletenessVerdict
	}{
		{"YES", CompletenessVerdict{Complete: true}},
		{"yes, that covers it", CompletenessVerdict{Complete: true}},
		{"**YES**", CompletenessVerdict{Complete: true}},
		{"NO. Break it down by month.", CompletenessVerdict{Guidance: "Break it down by month."}},
		{"No", CompletenessVerdict{}},
		{"Nope", CompletenessVerdict{Ambiguous: true}},
		{"", CompletenessVerdict{Ambiguous: true}},
		{"Maybe", CompletenessVerdict{Ambiguous: true}},
	}
	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVerdict(tt.response))
		})
	}
}

func TestAssessTreatsFailureAsNotComplete(t *testing.T) {
	completer := newScriptedLLM().fail(stageAssess, errors.New("timeout"))
	assessor := NewCompletenessAssessor(completer, testConfig(), quietLogger())

	verdict := assessor.Assess(context.Background(), "q", &CompiledData{}, 1)
	assert.False(t, verdict.Complete)
	assert.True(t, verdict.Ambiguous)
}

func TestSynthesizerWrapsFailure(t *testing.T) {
	completer := newScriptedLLM().fail(stageSynthesize, errors.New("quota"))
	synthesizer := NewResponseSynthesizer(completer, testConfig())

	_, err := synthesizer.SynthesizeRetrieval(context.Background(), "q", &dbmanager.ResultSet{Columns: []string{"x"}})
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.ErrorContains(t, err, "quota")
}

func TestCompiledDataOnlyGrows(t *testing.T) {
	compiled := &CompiledData{}
	previous := 0
	for i := 1; i <= 4; i++ {
		compiled.Append("SELECT 1", i, &dbmanager.ResultSet{})
		assert.Greater(t, compiled.Len(), previous)
		previous = compiled.Len()
	}

	snapshot := compiled.Datasets()
	snapshot[0].Label = "rewritten"
	assert.Equal(t, "Dataset 1 (Query: SELECT 1)", compiled.Datasets()[0].Label)
	assert.Equal(t, "Dataset 4 (Query: SELECT 1)", compiled.Datasets()[3].Label)
}

func TestDatasetLabelShortensSQL(t *testing.T) {
	compiled := &CompiledData{}
	long := "SELECT " + strings.Repeat("column_name, ", 20) + "id FROM t"
	dataset := compiled.Append(long, 1, nil)

	assert.True(t, strings.HasSuffix(dataset.Label, "…)"))
	assert.Equal(t, long, dataset.SQL)
}

func TestRenderTable(t *testing.T) {
	rows := []map[string]interface{}{
		row("name", "north", "total", 10),
		row("name", "south", "total", nil),
		row("name", "east", "total", 3),
	}

	out := renderTable([]string{"name", "total"}, rows, 2)

	assert.Equal(t, "name   total\n----   -----\nnorth  10\nsouth  NULL\n(… 1 more rows)", out)
	assert.Equal(t, "a | b\n(no rows)", renderTable([]string{"a", "b"}, nil, 5))
}

func TestRenderTableCapsCellWidth(t *testing.T) {
	payload := strings.Repeat("x", 5000)
	out := renderTable([]string{"payload"}, []map[string]interface{}{row("payload", payload)}, 5)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Repeat("x", maxCellRunes)+"...(truncated)", strings.TrimSpace(lines[2]))
}
