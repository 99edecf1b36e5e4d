package constants

import "strings"

// Prompt templates use {name} placeholders filled by RenderPrompt.

const IntentClassificationPrompt = `Classify the user's request into exactly one of these categories:
CHITCHAT - greetings, small talk, or questions that do not need the database.
DATA_RETRIEVAL - requests for specific data points, lists, counts or simple summaries.
INSIGHTS - requests for analysis, trends, comparisons or explanations that need several queries.

Respond with the category name only.

User request: {query}`

const ChitchatPrompt = `You are a friendly assistant for a data analytics service.
Reply briefly and conversationally to the message below. If it asks what you can do,
mention that you can answer questions about the connected database.

Message: {query}`

const SQLRetrievalPrompt = `You translate questions into a single read-only {dialect} SQL query.

{schema}

Question: {query}

Rules:
- Use only the tables and columns listed in the schema.
- Return only the SQL statement, without explanation.
- If the question cannot be answered from this schema, respond with NO_QUERY.`

const SQLInsightPrompt = `You are gathering data step by step to answer an analytical question with {dialect} SQL.

{schema}

Question: {query}
Iteration: {iteration} of {max_iterations}

Data gathered so far:
{compiled_data}

Reviewer guidance:
{guidance}

Write ONE new read-only SQL query that collects data not already gathered and helps answer the question.
Return only the SQL statement. If no further query would help, respond with NO_QUERY.`

const ErrorCorrectionPrompt = `The following {dialect} SQL query failed.

{schema}

Failed SQL:
{sql}

Database error:
{error}

Explain the problem in one sentence and provide a corrected query using exactly this format:
Correction: <explanation>
Suggested SQL: <corrected SQL, or None if it cannot be fixed>`

const CompletenessPrompt = `Question: {query}

Data gathered so far (after iteration {iteration}):
{compiled_data}

Is this data sufficient to fully answer the question?
Respond 'YES' or 'NO' as the first word. If NO, follow it with the suggested next steps.`

const RetrievalSynthesisPrompt = `Answer the user's question using only the query result below.
Be concise and do not invent values. Do not reformat numbers.

Question: {query}

Result ({row_count} rows):
{table}`

const InsightSynthesisPrompt = `Write an analytical answer to the user's question using only the datasets below.
Highlight trends, comparisons and notable values. Do not invent values and do not reformat numbers.

Question: {query}

{datasets}`

// Markers the model uses to say it has nothing to offer.
const (
	NoQueryMarker       = "NO_QUERY"
	CannotCorrectMarker = "CANNOT_CORRECT"
)

// RenderPrompt replaces every {key} in template with its value.
func RenderPrompt(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for key, value := range values {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
