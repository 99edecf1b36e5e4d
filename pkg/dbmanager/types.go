package dbmanager

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connection represents the open pool to the target database.
type Connection struct {
	DB       *gorm.DB
	SQL      *sql.DB
	Config   ConnectionConfig
	OpenedAt time.Time
}

// ConnectionConfig holds the configuration for a database connection
type ConnectionConfig struct {
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode,omitempty"`
}

// PoolConfig sizes the database/sql pool behind a Connection.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ExecutorConfig bounds every statement the Manager runs.
type ExecutorConfig struct {
	StatementTimeout time.Duration
	MaxRows          int
	ReadOnly         bool
	LogSQLMaxLength  int
}

// ResultSet is the outcome of one successful execution.
type ResultSet struct {
	Columns       []string                 `json:"columns"`
	Rows          []map[string]interface{} `json:"rows"`
	Truncated     bool                     `json:"truncated"`
	ExecutionTime time.Duration            `json:"execution_time"`
}

// RowCount is the number of rows held (after any cap was applied).
func (r *ResultSet) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

type DatabaseDriver interface {
	Connect(ctx context.Context, config ConnectionConfig, pool PoolConfig) (*Connection, error)
	BeginTx(ctx context.Context, conn *Connection, opts TxOptions) (Transaction, error)
	SchemaFetcher(conn *Connection) SchemaFetcher
}

// TxOptions configures the transaction a single statement runs in.
type TxOptions struct {
	ReadOnly         bool
	StatementTimeout time.Duration
}

// Transaction wraps whatever unit of work a driver offers.
type Transaction interface {
	QueryContext(ctx context.Context, query string) (*sql.Rows, error)
	Commit() error
	Rollback() error
}

// SchemaFetcher introspects the target database.
type SchemaFetcher interface {
	FetchSchema(ctx context.Context) (*SchemaInfo, error)
}

// sqlTransaction is the database/sql transaction shared by the postgres and
// mysql drivers.
type sqlTransaction struct {
	tx *sql.Tx
}

func (t *sqlTransaction) QueryContext(ctx context.Context, query string) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query)
}

func (t *sqlTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqlTransaction) Rollback() error {
	return t.tx.Rollback()
}

func applyPool(db *sql.DB, pool PoolConfig) {
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
}

// quietGormConfig keeps gorm from logging every introspection statement;
// the Manager logs SQL itself.
func quietGormConfig() *gorm.Config {
	return &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
}
