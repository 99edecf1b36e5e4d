package config

import (
	"fmt"
	"os"
	"querypilot-ai/internal/constants"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Environment struct {
	// Server configs
	IsDocker          bool
	Port              string
	Environment       string
	CorsAllowedOrigin string
	RequestTimeout    time.Duration
	JWTSecret         string

	// Logging configs
	LogLevel                    string
	LogFormat                   string
	LLMLogPromptResponseContent bool
	LLMLogContentMaxLength      int
	SQLQueryLogMaxLength        int

	// Target database configs
	DatabaseType            string
	DatabaseURL             string
	DatabaseHost            string
	DatabasePort            string
	DatabaseName            string
	DatabaseUsername        string
	DatabasePassword        string
	DatabaseSSLMode         string
	DatabaseMaxOpenConns    int
	DatabaseMaxIdleConns    int
	DatabaseConnMaxLifetime time.Duration
	SQLTimeout              time.Duration
	SQLMaxRowsReturned      int
	SQLReadOnlyTransactions bool

	// Schema cache configs
	RedisHost           string
	RedisPort           string
	RedisUsername       string
	RedisPassword       string
	SchemaCacheTTL      time.Duration
	SchemaEncryptionKey string

	// Query log configs
	MongoURI          string
	MongoDatabaseName string

	// LLM configs
	DefaultLLMClient       string
	LLMTimeout             time.Duration
	LLMMaxRetries          int
	LLMRetryInitialBackoff time.Duration
	LLMRetryMaxBackoff     time.Duration

	// OpenAI configs
	OpenAIAPIKey              string
	OpenAIModel               string
	OpenAIMaxCompletionTokens int

	// Gemini configs
	GeminiAPIKey              string
	GeminiModel               string
	GeminiMaxCompletionTokens int

	// Orchestration configs
	SQLMaxRetryAttempts           int
	MaxInsightIterations          int
	SQLErrorCorrectionMaxAttempts int
	MaxPreviewRows                int
	IntentTemperature             float64
	ChitchatTemperature           float64
	SQLGenerationTemperature      float64
	ErrorCorrectionTemperature    float64
	CompletenessTemperature       float64
	SynthesisTemperature          float64
	CurrencyCode                  string
}

// LoadEnv loads environment variables from .env file if present
// and builds a validated Environment from them.
func LoadEnv() (*Environment, error) {
	// Load .env file only if not running in Docker
	if os.Getenv("IS_DOCKER") != "true" {
		if err := godotenv.Load(); err != nil {
			fmt.Printf("Warning: .env file not found: %v\n", err)
		}
	}

	return FromLookup(os.LookupEnv)
}

// FromLookup builds an Environment from an arbitrary key lookup. LoadEnv
// uses os.LookupEnv; tests pass a map.
func FromLookup(lookup func(string) (string, bool)) (*Environment, error) {
	r := reader{lookup: lookup}
	env := &Environment{}
	env.IsDocker = r.getBoolEnvWithDefault("IS_DOCKER", false)

	// Server configs
	env.Port = r.getEnvWithDefault("PORT", "3000")
	env.Environment = r.getEnvWithDefault("ENVIRONMENT", "DEVELOPMENT")
	env.CorsAllowedOrigin = r.getEnvWithDefault("CORS_ALLOWED_ORIGIN", "http://localhost:5173")
	env.RequestTimeout = r.getSecondsEnvWithDefault("REQUEST_TIMEOUT_SECONDS", 180)
	env.JWTSecret = r.getEnvWithDefault("JWT_SECRET", "")

	// Logging configs
	env.LogLevel = r.getEnvWithDefault("LOG_LEVEL", "info")
	env.LogFormat = strings.ToLower(r.getEnvWithDefault("LOG_FORMAT", "json"))
	env.LLMLogPromptResponseContent = r.getBoolEnvWithDefault("LLM_LOG_PROMPT_RESPONSE_CONTENT", false)
	env.LLMLogContentMaxLength = r.getIntEnvWithDefault("LLM_LOG_CONTENT_MAX_LENGTH", 500)
	env.SQLQueryLogMaxLength = r.getIntEnvWithDefault("SQL_QUERY_LOG_MAX_LENGTH", 1000)

	// Target database configs
	env.DatabaseType = strings.ToLower(r.getEnvWithDefault("DATABASE_TYPE", constants.DatabaseTypePostgreSQL))
	env.DatabaseURL = r.getEnvWithDefault("DATABASE_URL", "")
	env.DatabaseHost = r.getEnvWithDefault("DATABASE_HOST", "localhost")
	env.DatabasePort = r.getEnvWithDefault("DATABASE_PORT", defaultPort(env.DatabaseType))
	env.DatabaseName = r.getEnvWithDefault("DATABASE_NAME", "postgres")
	env.DatabaseUsername = r.getEnvWithDefault("DATABASE_USERNAME", "postgres")
	env.DatabasePassword = r.getEnvWithDefault("DATABASE_PASSWORD", "")
	env.DatabaseSSLMode = r.getEnvWithDefault("DATABASE_SSL_MODE", "disable")
	env.DatabaseMaxOpenConns = r.getIntEnvWithDefault("DATABASE_MAX_OPEN_CONNS", 25)
	env.DatabaseMaxIdleConns = r.getIntEnvWithDefault("DATABASE_MAX_IDLE_CONNS", 5)
	env.DatabaseConnMaxLifetime = r.getSecondsEnvWithDefault("DATABASE_CONN_MAX_LIFETIME_SECONDS", 3600)
	env.SQLTimeout = r.getSecondsEnvWithDefault("SQL_TIMEOUT_SECONDS", 30)
	env.SQLMaxRowsReturned = r.getIntEnvWithDefault("SQL_MAX_ROWS_RETURNED", 1000)
	env.SQLReadOnlyTransactions = r.getBoolEnvWithDefault("SQL_READ_ONLY_TRANSACTIONS", true)

	// Schema cache configs
	env.RedisHost = r.getEnvWithDefault("REDIS_HOST", "")
	env.RedisPort = r.getEnvWithDefault("REDIS_PORT", "6379")
	env.RedisUsername = r.getEnvWithDefault("REDIS_USERNAME", "")
	env.RedisPassword = r.getEnvWithDefault("REDIS_PASSWORD", "")
	env.SchemaCacheTTL = r.getSecondsEnvWithDefault("SCHEMA_CACHE_TTL_SECONDS", 3600)
	env.SchemaEncryptionKey = r.getEnvWithDefault("SCHEMA_ENCRYPTION_KEY", "")

	// Query log configs
	env.MongoURI = r.getEnvWithDefault("MONGODB_URI", "")
	env.MongoDatabaseName = r.getEnvWithDefault("MONGODB_NAME", "querypilot")

	// LLM configs
	env.DefaultLLMClient = strings.ToLower(r.getEnvWithDefault("DEFAULT_LLM_CLIENT", constants.OpenAI))
	env.LLMTimeout = r.getSecondsEnvWithDefault("LLM_TIMEOUT_SECONDS", 60)
	env.LLMMaxRetries = r.getIntEnvWithDefault("LLM_MAX_RETRIES", 3)
	env.LLMRetryInitialBackoff = time.Duration(r.getIntEnvWithDefault("LLM_RETRY_INITIAL_BACKOFF_MS", 500)) * time.Millisecond
	env.LLMRetryMaxBackoff = time.Duration(r.getIntEnvWithDefault("LLM_RETRY_MAX_BACKOFF_MS", 8000)) * time.Millisecond

	// OpenAI configs
	env.OpenAIAPIKey = r.getEnvWithDefault("OPENAI_API_KEY", "")
	env.OpenAIModel = r.getEnvWithDefault("OPENAI_MODEL", constants.OpenAIModel)
	env.OpenAIMaxCompletionTokens = r.getIntEnvWithDefault("OPENAI_MAX_COMPLETION_TOKENS", constants.OpenAIMaxCompletionTokens)

	// Gemini configs
	env.GeminiAPIKey = r.getEnvWithDefault("GEMINI_API_KEY", "")
	env.GeminiModel = r.getEnvWithDefault("GEMINI_MODEL", constants.GeminiModel)
	env.GeminiMaxCompletionTokens = r.getIntEnvWithDefault("GEMINI_MAX_COMPLETION_TOKENS", constants.GeminiMaxCompletionTokens)

	// Orchestration configs
	env.SQLMaxRetryAttempts = r.getIntEnvWithDefault("SQL_MAX_RETRY_ATTEMPTS", 3)
	env.MaxInsightIterations = r.getIntEnvWithDefault("MAX_INSIGHT_ITERATIONS", 3)
	env.SQLErrorCorrectionMaxAttempts = r.getIntEnvWithDefault("SQL_ERROR_CORRECTION_MAX_ATTEMPTS", 2)
	env.MaxPreviewRows = r.getIntEnvWithDefault("MAX_PREVIEW_ROWS", 10)
	env.IntentTemperature = r.getFloatEnvWithDefault("INTENT_TEMPERATURE", 0.0)
	env.ChitchatTemperature = r.getFloatEnvWithDefault("CHITCHAT_TEMPERATURE", 0.7)
	env.SQLGenerationTemperature = r.getFloatEnvWithDefault("SQL_GENERATION_TEMPERATURE", 0.1)
	env.ErrorCorrectionTemperature = r.getFloatEnvWithDefault("ERROR_CORRECTION_TEMPERATURE", 0.1)
	env.CompletenessTemperature = r.getFloatEnvWithDefault("COMPLETENESS_TEMPERATURE", 0.0)
	env.SynthesisTemperature = r.getFloatEnvWithDefault("SYNTHESIS_TEMPERATURE", 0.3)
	env.CurrencyCode = r.getEnvWithDefault("CURRENCY_CODE", "SAR")

	if err := env.validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// RedisEnabled reports whether a shared schema cache is configured.
func (e *Environment) RedisEnabled() bool {
	return e.RedisHost != ""
}

// QueryLogEnabled reports whether finished flows are persisted to MongoDB.
func (e *Environment) QueryLogEnabled() bool {
	return e.MongoURI != ""
}

func (e *Environment) validate() error {
	switch e.DatabaseType {
	case constants.DatabaseTypePostgreSQL, constants.DatabaseTypeMySQL, constants.DatabaseTypeClickhouse:
	default:
		return fmt.Errorf("unsupported DATABASE_TYPE: %s", e.DatabaseType)
	}

	switch e.DefaultLLMClient {
	case constants.OpenAI, constants.Gemini:
	default:
		return fmt.Errorf("unsupported DEFAULT_LLM_CLIENT: %s", e.DefaultLLMClient)
	}

	positive := map[string]int{
		"SQL_MAX_RETRY_ATTEMPTS":            e.SQLMaxRetryAttempts,
		"MAX_INSIGHT_ITERATIONS":            e.MaxInsightIterations,
		"SQL_ERROR_CORRECTION_MAX_ATTEMPTS": e.SQLErrorCorrectionMaxAttempts,
		"MAX_PREVIEW_ROWS":                  e.MaxPreviewRows,
		"SQL_MAX_ROWS_RETURNED":             e.SQLMaxRowsReturned,
	}
	for key, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got: %d", key, value)
		}
	}

	if e.LLMMaxRetries < 0 {
		return fmt.Errorf("LLM_MAX_RETRIES must not be negative, got: %d", e.LLMMaxRetries)
	}

	if e.SQLTimeout <= 0 {
		return fmt.Errorf("SQL_TIMEOUT_SECONDS must be positive")
	}

	if e.SchemaEncryptionKey != "" && len(e.SchemaEncryptionKey) != 32 {
		return fmt.Errorf("SCHEMA_ENCRYPTION_KEY must be exactly 32 bytes, got: %d", len(e.SchemaEncryptionKey))
	}

	if e.LogFormat != "json" && e.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got: %s", e.LogFormat)
	}

	return nil
}

func defaultPort(dbType string) string {
	switch dbType {
	case constants.DatabaseTypeMySQL:
		return "3306"
	case constants.DatabaseTypeClickhouse:
		return "9000"
	default:
		return "5432"
	}
}

// Helper functions to get environment variables with defaults and validation
type reader struct {
	lookup func(string) (string, bool)
}

func (r reader) getEnvWithDefault(key, defaultValue string) string {
	if value, ok := r.lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func (r reader) getIntEnvWithDefault(key string, defaultValue int) int {
	strValue := r.getEnvWithDefault(key, "")
	if strValue == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(strValue)
	if err != nil {
		fmt.Printf("Warning: Invalid value for %s, using default: %d\n", key, defaultValue)
		return defaultValue
	}
	return value
}

func (r reader) getFloatEnvWithDefault(key string, defaultValue float64) float64 {
	strValue := r.getEnvWithDefault(key, "")
	if strValue == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		fmt.Printf("Warning: Invalid value for %s, using default: %v\n", key, defaultValue)
		return defaultValue
	}
	return value
}

func (r reader) getBoolEnvWithDefault(key string, defaultValue bool) bool {
	strValue := r.getEnvWithDefault(key, "")
	if strValue == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(strValue)
	if err != nil {
		fmt.Printf("Warning: Invalid value for %s, using default: %v\n", key, defaultValue)
		return defaultValue
	}
	return value
}

func (r reader) getSecondsEnvWithDefault(key string, defaultSeconds int) time.Duration {
	return time.Duration(r.getIntEnvWithDefault(key, defaultSeconds)) * time.Second
}
