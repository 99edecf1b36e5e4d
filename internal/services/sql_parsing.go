package services

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	sqlKeywordPattern   = regexp.MustCompile(`(?i)^(SELECT|WITH|INSERT|UPDATE|DELETE|SHOW|EXPLAIN|DESCRIBE|VALUES)\b`)
	readQueryPattern    = regexp.MustCompile(`(?i)^(SELECT|WITH)\b`)
	whitespaceCollapser = regexp.MustCompile(`\s+`)
)

// stripCodeFences returns the body of the first fenced block, or the text
// unchanged when there is none.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}

	body := text[start+3:]
	// drop the language tag, e.g. ```sql
	if newline := strings.IndexByte(body, '\n'); newline >= 0 && isFenceTag(body[:newline]) {
		body = body[newline+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func isFenceTag(line string) bool {
	tag := strings.TrimSpace(line)
	return !strings.ContainsAny(tag, " \t") && !sqlKeywordPattern.MatchString(tag)
}

// extractSQL pulls a single statement out of a model answer. It reports false
// when the model declined or no statement could be found.
func extractSQL(response string) (string, bool) {
	text := stripCodeFences(response)
	if text == "" || strings.HasPrefix(strings.ToUpper(text), "NO_QUERY") {
		return "", false
	}

	if strings.HasPrefix(text, "{") {
		var payload struct {
			SQL string `json:"sql"`
		}
		if err := json.Unmarshal([]byte(text), &payload); err == nil && payload.SQL != "" {
			text = strings.TrimSpace(payload.SQL)
		}
	}

	if sqlKeywordPattern.MatchString(text) {
		return text, true
	}

	// prose around the query: take the first SELECT/WITH line up to ';' or a blank line
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !readQueryPattern.MatchString(strings.TrimSpace(line)) {
			continue
		}
		var collected []string
		for _, l := range lines[i:] {
			trimmed := strings.TrimSpace(l)
			if trimmed == "" {
				break
			}
			if semi := strings.IndexByte(trimmed, ';'); semi >= 0 {
				collected = append(collected, trimmed[:semi+1])
				break
			}
			collected = append(collected, trimmed)
		}
		return strings.Join(collected, "\n"), true
	}
	return "", false
}

func isReadQuery(sql string) bool {
	return readQueryPattern.MatchString(strings.TrimSpace(sql))
}

// normalizeSQL collapses whitespace, drops a trailing ';' and lowercases, so
// that cosmetic rewrites of the same statement compare equal.
func normalizeSQL(sql string) string {
	flat := whitespaceCollapser.ReplaceAllString(strings.TrimSpace(sql), " ")
	flat = strings.TrimSuffix(flat, ";")
	return strings.ToLower(strings.TrimSpace(flat))
}
