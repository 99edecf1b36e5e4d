package dbmanager

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	clickhousedriver "gorm.io/driver/clickhouse"
	"gorm.io/gorm"
)

// ClickHouseDriver implements the DatabaseDriver interface for ClickHouse
type ClickHouseDriver struct{}

func NewClickHouseDriver() DatabaseDriver {
	return &ClickHouseDriver{}
}

func (d *ClickHouseDriver) Connect(ctx context.Context, config ConnectionConfig, pool PoolConfig) (*Connection, error) {
	options, err := clickhouseOptions(config)
	if err != nil {
		return nil, err
	}

	db := clickhouse.OpenDB(options)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	applyPool(db, pool)

	conn, err := d.Wrap(db, config)
	if err != nil {
		db.Close()
		return nil, err
	}
	return conn, nil
}

// Wrap builds a Connection around an already opened pool.
func (d *ClickHouseDriver) Wrap(db *sql.DB, config ConnectionConfig) (*Connection, error) {
	gormDB, err := gorm.Open(clickhousedriver.New(clickhousedriver.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), quietGormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	return &Connection{
		DB:       gormDB,
		SQL:      db,
		Config:   config,
		OpenedAt: time.Now(),
	}, nil
}

func clickhouseOptions(config ConnectionConfig) (*clickhouse.Options, error) {
	if config.URL != "" {
		options, err := clickhouse.ParseDSN(config.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid clickhouse DSN: %w", err)
		}
		return options, nil
	}

	options := &clickhouse.Options{
		Addr: []string{net.JoinHostPort(config.Host, config.Port)},
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		DialTimeout: 10 * time.Second,
		ReadTimeout: 20 * time.Second,
	}
	if config.SSLMode != "" && config.SSLMode != "disable" {
		options.TLS = &tls.Config{
			ServerName:         config.Host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: config.SSLMode == "require",
		}
	}
	return options, nil
}

// BeginTx returns a pass-through unit of work: ClickHouse has no transactions
// for SELECTs, so the statement timeout travels as a query setting instead.
func (d *ClickHouseDriver) BeginTx(ctx context.Context, conn *Connection, opts TxOptions) (Transaction, error) {
	settings := clickhouse.Settings{}
	if opts.StatementTimeout > 0 {
		settings["max_execution_time"] = int(math.Ceil(opts.StatementTimeout.Seconds()))
	}
	return &clickhouseTransaction{db: conn.SQL, settings: settings}, nil
}

type clickhouseTransaction struct {
	db       *sql.DB
	settings clickhouse.Settings
}

func (t *clickhouseTransaction) QueryContext(ctx context.Context, query string) (*sql.Rows, error) {
	if len(t.settings) > 0 {
		ctx = clickhouse.Context(ctx, clickhouse.WithSettings(t.settings))
	}
	return t.db.QueryContext(ctx, query)
}

func (t *clickhouseTransaction) Commit() error   { return nil }
func (t *clickhouseTransaction) Rollback() error { return nil }

func (d *ClickHouseDriver) SchemaFetcher(conn *Connection) SchemaFetcher {
	return &ClickHouseSchemaFetcher{db: conn.DB, database: conn.Config.Database}
}

// ClickHouseSchemaFetcher reads system.columns for the current database.
// ClickHouse has no foreign keys; sorting-key columns are reported as PK.
type ClickHouseSchemaFetcher struct {
	db       *gorm.DB
	database string
}

const clickhouseColumnsQuery = `
        SELECT
            table AS table_name,
            name AS column_name,
            type AS data_type,
            if(startsWith(type, 'Nullable('), 'YES', 'NO') AS is_nullable,
            nullIf(default_expression, '') AS column_default
        FROM system.columns
        WHERE database = currentDatabase()
        ORDER BY table, position`

const clickhousePrimaryKeysQuery = `
        SELECT
            table AS table_name,
            name AS column_name
        FROM system.columns
        WHERE database = currentDatabase()
        AND is_in_primary_key = 1`

func (f *ClickHouseSchemaFetcher) FetchSchema(ctx context.Context) (*SchemaInfo, error) {
	db := f.db.WithContext(ctx)

	var columns []columnRow
	if err := db.Raw(clickhouseColumnsQuery).Scan(&columns).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch columns: %w", err)
	}

	var primaryKeys []keyRow
	if err := db.Raw(clickhousePrimaryKeysQuery).Scan(&primaryKeys).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch primary keys: %w", err)
	}

	return buildSchema(f.database, columns, primaryKeys, nil), nil
}
