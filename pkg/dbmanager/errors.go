package dbmanager

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// ErrorKind separates failures the SQL text caused from infrastructure ones.
type ErrorKind string

const (
	ErrorKindQuery      ErrorKind = "query"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindConnection ErrorKind = "connection"
	ErrorKindCancelled  ErrorKind = "cancelled"
)

const (
	CodeQueryExecutionFailed     = "QUERY_EXECUTION_FAILED"
	CodeQueryExecutionTimedOut   = "QUERY_EXECUTION_TIMED_OUT"
	CodeQueryExecutionCancelled  = "QUERY_EXECUTION_CANCELLED"
	CodeNoConnectionFound        = "NO_CONNECTION_FOUND"
	CodeFailedToStartTransaction = "FAILED_TO_START_TRANSACTION"
	CodeResultProcessingFailed   = "RESULT_PROCESSING_FAILED"
)

// ExecutionError is the only error type Manager.Execute returns.
type ExecutionError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Kind, e.Message)
}

// Correctable reports whether rewriting the SQL could fix the failure.
func (e *ExecutionError) Correctable() bool {
	return e.Kind == ErrorKindQuery
}

// AsExecutionError unwraps err into an ExecutionError, classifying it when
// it is not one already.
func AsExecutionError(err error) *ExecutionError {
	if err == nil {
		return nil
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	return classifyError(err, CodeQueryExecutionFailed)
}

// classifyError maps a driver error to an ExecutionError. code is used for
// query-kind failures, infrastructure kinds get their own codes.
func classifyError(err error, code string) *ExecutionError {
	kind := errorKind(err)
	switch kind {
	case ErrorKindTimeout:
		code = CodeQueryExecutionTimedOut
	case ErrorKindCancelled:
		code = CodeQueryExecutionCancelled
	}
	return &ExecutionError{
		Kind:    kind,
		Code:    code,
		Message: strings.TrimSpace(err.Error()),
		Details: fmt.Sprintf("%T", err),
	}
}

func errorKind(err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, context.Canceled):
		return ErrorKindCancelled
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone), errors.Is(err, mysqldriver.ErrInvalidConn):
		return ErrorKindConnection
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "57014":
			// query_canceled, raised when statement_timeout fires
			return ErrorKindTimeout
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "53", pqErr.Code == "57P01", pqErr.Code == "57P02", pqErr.Code == "57P03":
			return ErrorKindConnection
		}
		return ErrorKindQuery
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 3024, 1969:
			return ErrorKindTimeout
		case 1040, 1045, 1053, 1077, 1152, 1153, 1158, 1159, 1160, 1161, 2002, 2003, 2006, 2013:
			return ErrorKindConnection
		}
		return ErrorKindQuery
	}

	var chErr *clickhouse.Exception
	if errors.As(err, &chErr) {
		switch chErr.Code {
		case 159, 209:
			return ErrorKindTimeout
		case 210, 279:
			return ErrorKindConnection
		}
		return ErrorKindQuery
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorKindTimeout
		}
		return ErrorKindConnection
	}

	return ErrorKindQuery
}
