package dbmanager

import (
	"context"
	"fmt"
	"log/slog"
	"querypilot-ai/internal/observability"
	"strings"
	"sync"
	"time"
)

// Manager owns the connection to the target database and runs statements
// against it.
type Manager struct {
	drivers map[string]DatabaseDriver
	conn    *Connection
	driver  DatabaseDriver
	mu      sync.RWMutex
	config  ExecutorConfig
	logger  *slog.Logger
}

func NewManager(config ExecutorConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		drivers: make(map[string]DatabaseDriver),
		config:  config,
		logger:  logger,
	}
}

func (m *Manager) RegisterDriver(dbType string, driver DatabaseDriver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[dbType] = driver
}

// Connect opens the pool described by config, replacing any previous one.
func (m *Manager) Connect(ctx context.Context, config ConnectionConfig, pool PoolConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	driver, exists := m.drivers[config.Type]
	if !exists {
		return fmt.Errorf("no driver found for type: %s", config.Type)
	}

	conn, err := driver.Connect(ctx, config, pool)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", config.Type, err)
	}

	if m.conn != nil {
		if err := m.conn.SQL.Close(); err != nil {
			m.logger.Warn("Manager -> Connect -> failed to close previous pool", slog.String("error", err.Error()))
		}
	}

	m.conn = conn
	m.driver = driver
	m.logger.Info("Manager -> Connect -> connected to target database",
		slog.String("type", config.Type),
		slog.String("host", config.Host),
		slog.String("database", config.Database),
	)
	return nil
}

// Attach installs an already opened connection. Used when the pool is
// created outside the Manager.
func (m *Manager) Attach(driver DatabaseDriver, conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.driver = driver
	m.conn = conn
}

func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil
	}
	err := m.conn.SQL.Close()
	m.conn = nil
	m.driver = nil
	if err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

func (m *Manager) Ping(ctx context.Context) error {
	conn, _ := m.current()
	if conn == nil {
		return fmt.Errorf("no connection found")
	}
	return conn.SQL.PingContext(ctx)
}

// DatabaseType is the type of the connected database, empty when detached.
func (m *Manager) DatabaseType() string {
	conn, _ := m.current()
	if conn == nil {
		return ""
	}
	return conn.Config.Type
}

func (m *Manager) current() (*Connection, DatabaseDriver) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn, m.driver
}

type execResult struct {
	result *ResultSet
	err    error
}

// Execute runs query inside its own transaction with the configured statement
// timeout and row cap. The transaction is rolled back on every failure path,
// and the pooled connection is released before Execute returns. Errors are
// always *ExecutionError.
func (m *Manager) Execute(ctx context.Context, query string) (*ResultSet, error) {
	startTime := time.Now()
	logger := m.logger.With(slog.String("request_id", observability.RequestIDFromContext(ctx)))

	conn, driver := m.current()
	if conn == nil || driver == nil {
		execErr := &ExecutionError{
			Kind:    ErrorKindConnection,
			Code:    CodeNoConnectionFound,
			Message: "no connection found",
			Details: "The target database is not connected",
		}
		m.observe(execErr, startTime)
		return nil, execErr
	}

	execCtx := ctx
	cancel := func() {}
	if m.config.StatementTimeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, m.config.StatementTimeout)
	}
	defer cancel()

	logger.Debug("Manager -> Execute -> executing query",
		slog.String("sql", observability.Truncate(query, m.config.LogSQLMaxLength)))

	tx, err := driver.BeginTx(execCtx, conn, TxOptions{
		ReadOnly:         m.config.ReadOnly,
		StatementTimeout: m.config.StatementTimeout,
	})
	if err != nil {
		execErr := classifyError(err, CodeFailedToStartTransaction)
		m.observe(execErr, startTime)
		return nil, execErr
	}

	done := make(chan execResult, 1)
	go func() {
		rs, err := runQuery(execCtx, tx, query, m.config.MaxRows)
		done <- execResult{result: rs, err: err}
	}()

	select {
	case <-execCtx.Done():
		if err := tx.Rollback(); err != nil {
			logger.Debug("Manager -> Execute -> rollback after cancellation", slog.String("error", err.Error()))
		}
		execErr := classifyError(execCtx.Err(), CodeQueryExecutionFailed)
		m.observe(execErr, startTime)
		logger.Warn("Manager -> Execute -> query did not finish",
			slog.String("error_kind", string(execErr.Kind)),
			slog.Duration("elapsed", time.Since(startTime)),
		)
		return nil, execErr

	case res := <-done:
		if res.err != nil {
			if err := tx.Rollback(); err != nil {
				logger.Debug("Manager -> Execute -> rollback failed", slog.String("error", err.Error()))
			}
			execErr := AsExecutionError(res.err)
			if ctxErr := execCtx.Err(); ctxErr != nil {
				// drivers report cancellation in their own words
				execErr = classifyError(ctxErr, CodeQueryExecutionFailed)
			}
			m.observe(execErr, startTime)
			logger.Warn("Manager -> Execute -> query failed",
				slog.String("error_kind", string(execErr.Kind)),
				slog.String("code", execErr.Code),
				slog.String("error", execErr.Message),
			)
			return nil, execErr
		}

		if err := tx.Commit(); err != nil {
			execErr := classifyError(err, CodeQueryExecutionFailed)
			m.observe(execErr, startTime)
			return nil, execErr
		}

		res.result.ExecutionTime = time.Since(startTime)
		if res.result.Truncated {
			logger.Warn("Manager -> Execute -> result set truncated",
				slog.Int("max_rows", m.config.MaxRows))
		}
		m.observe(nil, startTime)
		logger.Info("Manager -> Execute -> query succeeded",
			slog.Int("rows", res.result.RowCount()),
			slog.Duration("elapsed", res.result.ExecutionTime),
		)
		return res.result, nil
	}
}

func runQuery(ctx context.Context, tx Transaction, query string, maxRows int) (*ResultSet, error) {
	rows, err := tx.QueryContext(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, results, truncated, err := processRows(rows, maxRows)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		execErr := classifyError(err, CodeResultProcessingFailed)
		return nil, execErr
	}

	return &ResultSet{
		Columns:   columns,
		Rows:      results,
		Truncated: truncated,
	}, nil
}

func (m *Manager) observe(execErr *ExecutionError, startTime time.Time) {
	result := "ok"
	if execErr != nil {
		result = string(execErr.Kind)
	}
	observability.ObserveSQLExecution(result, time.Since(startTime))
}

// FetchSchema introspects the connected database.
func (m *Manager) FetchSchema(ctx context.Context) (*SchemaInfo, error) {
	conn, driver := m.current()
	if conn == nil || driver == nil {
		return nil, fmt.Errorf("no connection found")
	}
	return driver.SchemaFetcher(conn).FetchSchema(ctx)
}
