package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestFromLookupDefaults(t *testing.T) {
	env, err := FromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "3000", env.Port)
	assert.Equal(t, "postgresql", env.DatabaseType)
	assert.Equal(t, "5432", env.DatabasePort)
	assert.Equal(t, "openai", env.DefaultLLMClient)
	assert.Equal(t, 3, env.SQLMaxRetryAttempts)
	assert.Equal(t, 3, env.MaxInsightIterations)
	assert.Equal(t, 2, env.SQLErrorCorrectionMaxAttempts)
	assert.Equal(t, 10, env.MaxPreviewRows)
	assert.Equal(t, 30*time.Second, env.SQLTimeout)
	assert.Equal(t, 180*time.Second, env.RequestTimeout)
	assert.Equal(t, 500*time.Millisecond, env.LLMRetryInitialBackoff)
	assert.True(t, env.SQLReadOnlyTransactions)
	assert.Equal(t, "SAR", env.CurrencyCode)
	assert.False(t, env.RedisEnabled())
	assert.False(t, env.QueryLogEnabled())
}

func TestFromLookupOverrides(t *testing.T) {
	env, err := FromLookup(lookupFrom(map[string]string{
		"DATABASE_TYPE":          "MySQL",
		"DEFAULT_LLM_CLIENT":     "gemini",
		"SQL_MAX_RETRY_ATTEMPTS": " 5 ",
		"SQL_TIMEOUT_SECONDS":    "12",
		"REDIS_HOST":             "cache",
		"MONGODB_URI":            "mongodb://logs:27017",
		"MAX_PREVIEW_ROWS":       "not-a-number",
		"LOG_FORMAT":             "TEXT",
	}))
	require.NoError(t, err)

	assert.Equal(t, "mysql", env.DatabaseType)
	assert.Equal(t, "3306", env.DatabasePort)
	assert.Equal(t, "gemini", env.DefaultLLMClient)
	assert.Equal(t, 5, env.SQLMaxRetryAttempts)
	assert.Equal(t, 12*time.Second, env.SQLTimeout)
	assert.Equal(t, 10, env.MaxPreviewRows)
	assert.Equal(t, "text", env.LogFormat)
	assert.True(t, env.RedisEnabled())
	assert.True(t, env.QueryLogEnabled())
}

func TestFromLookupRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		want   string
	}{
		{"database type", map[string]string{"DATABASE_TYPE": "oracle"}, "DATABASE_TYPE"},
		{"llm client", map[string]string{"DEFAULT_LLM_CLIENT": "llama"}, "DEFAULT_LLM_CLIENT"},
		{"retry attempts", map[string]string{"SQL_MAX_RETRY_ATTEMPTS": "0"}, "SQL_MAX_RETRY_ATTEMPTS"},
		{"insight iterations", map[string]string{"MAX_INSIGHT_ITERATIONS": "-1"}, "MAX_INSIGHT_ITERATIONS"},
		{"llm retries", map[string]string{"LLM_MAX_RETRIES": "-2"}, "LLM_MAX_RETRIES"},
		{"sql timeout", map[string]string{"SQL_TIMEOUT_SECONDS": "0"}, "SQL_TIMEOUT_SECONDS"},
		{"encryption key", map[string]string{"SCHEMA_ENCRYPTION_KEY": "short"}, "SCHEMA_ENCRYPTION_KEY"},
		{"log format", map[string]string{"LOG_FORMAT": "xml"}, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := FromLookup(lookupFrom(tt.values))
			assert.Nil(t, env)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
