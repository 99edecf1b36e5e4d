package constants

const (
	OpenAI = "openai"
	Gemini = "gemini"
)

const (
	OpenAIModel               = "gpt-4o"
	OpenAIMaxCompletionTokens = 4096

	GeminiModel               = "gemini-2.0-flash"
	GeminiMaxCompletionTokens = 4096
)

// Per-call token budgets. Classification and assessment only need a keyword
// and a short follow-up, SQL and prose need more room.
const (
	IntentMaxTokens          = 16
	ChitchatMaxTokens        = 512
	SQLGenerationMaxTokens   = 1024
	ErrorCorrectionMaxTokens = 1024
	CompletenessMaxTokens    = 256
	SynthesisMaxTokens       = 2048
)
