package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLDriver implements the DatabaseDriver interface for MySQL
type MySQLDriver struct{}

func NewMySQLDriver() DatabaseDriver {
	return &MySQLDriver{}
}

func (d *MySQLDriver) Connect(ctx context.Context, config ConnectionConfig, pool PoolConfig) (*Connection, error) {
	dsn, err := mysqlDSN(config)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
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
func (d *MySQLDriver) Wrap(db *sql.DB, config ConnectionConfig) (*Connection, error) {
	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), quietGormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create GORM connection: %w", err)
	}

	return &Connection{
		DB:       gormDB,
		SQL:      db,
		Config:   config,
		OpenedAt: time.Now(),
	}, nil
}

// mysqlDSN accepts either a go-sql-driver DSN in URL or discrete fields.
func mysqlDSN(config ConnectionConfig) (string, error) {
	if config.URL != "" {
		cfg, err := mysqldriver.ParseDSN(config.URL)
		if err != nil {
			return "", fmt.Errorf("invalid mysql DSN: %w", err)
		}
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	}

	cfg := mysqldriver.NewConfig()
	cfg.User = config.Username
	cfg.Passwd = config.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(config.Host, config.Port)
	cfg.DBName = config.Database
	cfg.ParseTime = true
	if config.SSLMode != "" && config.SSLMode != "disable" {
		cfg.TLSConfig = "true"
	}
	return cfg.FormatDSN(), nil
}

// BeginTx opens a transaction. MySQL has no per-transaction statement
// timeout for every engine, so the client deadline is the bound.
func (d *MySQLDriver) BeginTx(ctx context.Context, conn *Connection, opts TxOptions) (Transaction, error) {
	tx, err := conn.SQL.BeginTx(ctx, &sql.TxOptions{ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, err
	}
	return &sqlTransaction{tx: tx}, nil
}

func (d *MySQLDriver) SchemaFetcher(conn *Connection) SchemaFetcher {
	return &MySQLSchemaFetcher{db: conn.DB, database: conn.Config.Database}
}

// MySQLSchemaFetcher reads the current database from information_schema.
type MySQLSchemaFetcher struct {
	db       *gorm.DB
	database string
}

const mysqlColumnsQuery = `
        SELECT
            table_name AS table_name,
            column_name AS column_name,
            column_type AS data_type,
            is_nullable AS is_nullable,
            column_default AS column_default
        FROM information_schema.columns
        WHERE table_schema = DATABASE()
        ORDER BY table_name, ordinal_position`

const mysqlPrimaryKeysQuery = `
        SELECT
            table_name AS table_name,
            column_name AS column_name
        FROM information_schema.key_column_usage
        WHERE table_schema = DATABASE()
        AND constraint_name = 'PRIMARY'`

const mysqlForeignKeysQuery = `
        SELECT
            table_name AS from_table,
            column_name AS from_column,
            referenced_table_name AS to_table,
            referenced_column_name AS to_column
        FROM information_schema.key_column_usage
        WHERE table_schema = DATABASE()
        AND referenced_table_name IS NOT NULL`

func (f *MySQLSchemaFetcher) FetchSchema(ctx context.Context) (*SchemaInfo, error) {
	db := f.db.WithContext(ctx)

	var columns []columnRow
	if err := db.Raw(mysqlColumnsQuery).Scan(&columns).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch columns: %w", err)
	}

	var primaryKeys []keyRow
	if err := db.Raw(mysqlPrimaryKeysQuery).Scan(&primaryKeys).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch primary keys: %w", err)
	}

	var foreignKeys []foreignKeyRow
	if err := db.Raw(mysqlForeignKeysQuery).Scan(&foreignKeys).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch foreign keys: %w", err)
	}

	return buildSchema(f.database, columns, primaryKeys, foreignKeys), nil
}
