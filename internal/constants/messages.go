package constants

// User facing messages. None of them may carry SQL text or error details.
const (
	MsgClassificationFailed = "Sorry, I couldn't understand your request. Could you rephrase it?"
	MsgSchemaUnavailable    = "I can't process data requests right now because the database schema is unavailable. Please try again later."
	MsgGenerationFailed     = "I couldn't turn your question into a database query. Could you rephrase it or add more detail?"
	MsgDatabaseError        = "Could not retrieve the requested data due to database errors."
	MsgDatabaseUnavailable  = "The database is not responding right now. Please try again in a moment."
	MsgInsightUnavailable   = "I couldn't gather enough data to produce an insight for that question."
	MsgProcessingError      = "Something went wrong while preparing your answer. Please try again."
	MsgRequestTimedOut      = "Your request took too long to process. Please try again with a narrower question."
)
