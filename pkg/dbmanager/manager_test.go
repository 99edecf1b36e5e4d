package dbmanager

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockManager(t *testing.T, cfg ExecutorConfig) (*Manager, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	driver := &PostgresDriver{}
	conn, err := driver.Wrap(db, ConnectionConfig{Type: "postgresql", Database: "shop"})
	require.NoError(t, err)

	manager := NewManager(cfg, nil)
	manager.Attach(driver, conn)
	return manager, mock
}

func TestExecuteCommitsOnSuccess(t *testing.T) {
	manager, mock := newMockManager(t, ExecutorConfig{StatementTimeout: 5 * time.Second, MaxRows: 100, ReadOnly: true})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL statement_timeout = 5000")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS active_users FROM users WHERE active")).
		WillReturnRows(sqlmock.NewRows([]string{"active_users"}).AddRow(int64(1234)))
	mock.ExpectCommit()

	result, err := manager.Execute(context.Background(), "SELECT COUNT(*) AS active_users FROM users WHERE active")
	require.NoError(t, err)

	assert.Equal(t, []string{"active_users"}, result.Columns)
	require.Equal(t, 1, result.RowCount())
	assert.Equal(t, int64(1234), result.Rows[0]["active_users"])
	assert.False(t, result.Truncated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteRollsBackOnQueryError(t *testing.T) {
	manager, mock := newMockManager(t, ExecutorConfig{MaxRows: 100})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM userz").
		WillReturnError(&pq.Error{Code: "42P01", Message: `relation "userz" does not exist`})
	mock.ExpectRollback()

	result, err := manager.Execute(context.Background(), "SELECT * FROM userz")
	assert.Nil(t, result)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ErrorKindQuery, execErr.Kind)
	assert.Equal(t, CodeQueryExecutionFailed, execErr.Code)
	assert.True(t, execErr.Correctable())
	assert.Contains(t, execErr.Message, "userz")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteCapsRows(t *testing.T) {
	manager, mock := newMockManager(t, ExecutorConfig{MaxRows: 2})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT name FROM products").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("a").
			AddRow("b").
			AddRow("c"))
	mock.ExpectCommit()

	result, err := manager.Execute(context.Background(), "SELECT name FROM products")
	require.NoError(t, err)

	assert.Equal(t, 2, result.RowCount())
	assert.True(t, result.Truncated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteNormalizesBytes(t *testing.T) {
	manager, mock := newMockManager(t, ExecutorConfig{MaxRows: 10})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT region FROM sales").
		WillReturnRows(sqlmock.NewRows([]string{"region"}).AddRow([]byte("north")))
	mock.ExpectCommit()

	result, err := manager.Execute(context.Background(), "SELECT region FROM sales")
	require.NoError(t, err)
	assert.Equal(t, "north", result.Rows[0]["region"])
}

func TestExecuteTimesOut(t *testing.T) {
	manager, mock := newMockManager(t, ExecutorConfig{StatementTimeout: 50 * time.Millisecond, MaxRows: 10})

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT pg_sleep").
		WillDelayFor(2 * time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(1))
	mock.ExpectRollback()

	startTime := time.Now()
	_, err := manager.Execute(context.Background(), "SELECT pg_sleep(10)")
	assert.Less(t, time.Since(startTime), time.Second)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ErrorKindTimeout, execErr.Kind)
	assert.Equal(t, CodeQueryExecutionTimedOut, execErr.Code)
	assert.False(t, execErr.Correctable())
}

func TestExecuteCancelled(t *testing.T) {
	manager, mock := newMockManager(t, ExecutorConfig{MaxRows: 10})

	ctx, cancel := context.WithCancel(context.Background())
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1").
		WillDelayFor(2 * time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(1))
	mock.ExpectRollback()

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := manager.Execute(ctx, "SELECT 1")
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ErrorKindCancelled, execErr.Kind)
}

func TestExecuteWithoutConnection(t *testing.T) {
	manager := NewManager(ExecutorConfig{}, nil)

	_, err := manager.Execute(context.Background(), "SELECT 1")

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ErrorKindConnection, execErr.Kind)
	assert.Equal(t, CodeNoConnectionFound, execErr.Code)
}

func TestExecuteBeginFailureIsConnectionError(t *testing.T) {
	manager, mock := newMockManager(t, ExecutorConfig{})

	mock.ExpectBegin().WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})

	_, err := manager.Execute(context.Background(), "SELECT 1")

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ErrorKindConnection, execErr.Kind)
	assert.Equal(t, CodeFailedToStartTransaction, execErr.Code)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadline", context.DeadlineExceeded, ErrorKindTimeout},
		{"wrapped deadline", errors.Join(errors.New("read"), context.DeadlineExceeded), ErrorKindTimeout},
		{"canceled", context.Canceled, ErrorKindCancelled},
		{"postgres statement timeout", &pq.Error{Code: "57014"}, ErrorKindTimeout},
		{"postgres connection failure", &pq.Error{Code: "08006"}, ErrorKindConnection},
		{"postgres admin shutdown", &pq.Error{Code: "57P01"}, ErrorKindConnection},
		{"postgres syntax error", &pq.Error{Code: "42601"}, ErrorKindQuery},
		{"mysql server gone", &mysqldriver.MySQLError{Number: 2006}, ErrorKindConnection},
		{"mysql max execution time", &mysqldriver.MySQLError{Number: 3024}, ErrorKindTimeout},
		{"mysql unknown column", &mysqldriver.MySQLError{Number: 1054}, ErrorKindQuery},
		{"bad conn", mysqldriver.ErrInvalidConn, ErrorKindConnection},
		{"other", errors.New("boom"), ErrorKindQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorKind(tt.err))
		})
	}
}

func TestAsExecutionErrorKeepsExisting(t *testing.T) {
	original := &ExecutionError{Kind: ErrorKindTimeout, Code: CodeQueryExecutionTimedOut, Message: "slow"}

	assert.Same(t, original, AsExecutionError(original))
	assert.Nil(t, AsExecutionError(nil))
}
