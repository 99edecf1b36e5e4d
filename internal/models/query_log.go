package models

import "time"

// ExecutedStatement is one SQL statement a flow sent to the target database.
type ExecutedStatement struct {
	SQL       string `bson:"sql" json:"sql"`
	Iteration int    `bson:"iteration" json:"iteration"`
	Corrects  string `bson:"corrects,omitempty" json:"corrects,omitempty"` // error message this statement was generated to fix
	Succeeded bool   `bson:"succeeded" json:"succeeded"`
	RowCount  int    `bson:"row_count" json:"row_count"`
	ErrorKind string `bson:"error_kind,omitempty" json:"error_kind,omitempty"`
}

// QueryLog is the audit record of one finished query flow.
type QueryLog struct {
	RequestID   string              `bson:"request_id" json:"request_id"`
	Query       string              `bson:"query" json:"query"`
	Intent      string              `bson:"intent" json:"intent"`
	Status      string              `bson:"status" json:"status"`
	Statements  []ExecutedStatement `bson:"statements" json:"statements"`
	Datasets    int                 `bson:"datasets" json:"datasets"`
	Iterations  int                 `bson:"iterations" json:"iterations"`
	Corrections int                 `bson:"corrections" json:"corrections"`
	LastError   string              `bson:"last_error,omitempty" json:"last_error,omitempty"`
	DurationMs  int64               `bson:"duration_ms" json:"duration_ms"`
	Base        `bson:",inline"`
}

func NewQueryLog(requestID, query string, duration time.Duration) *QueryLog {
	return &QueryLog{
		RequestID:  requestID,
		Query:      query,
		DurationMs: duration.Milliseconds(),
		Base:       NewBase(),
	}
}
