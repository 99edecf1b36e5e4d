package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type PostgresDriver struct{}

func NewPostgresDriver() DatabaseDriver {
	return &PostgresDriver{}
}

func (d *PostgresDriver) Connect(ctx context.Context, config ConnectionConfig, pool PoolConfig) (*Connection, error) {
	dsn := config.URL
	if dsn == "" {
		dsn = postgresDSN(config)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
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
func (d *PostgresDriver) Wrap(db *sql.DB, config ConnectionConfig) (*Connection, error) {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
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

func postgresDSN(config ConnectionConfig) string {
	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s",
		config.Host, config.Port, config.Username, config.Database)
	if config.Password != "" {
		dsn += fmt.Sprintf(" password=%s", config.Password)
	}
	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return dsn + " sslmode=" + sslMode
}

// BeginTx opens a transaction and bounds it server-side with
// statement_timeout, so the database gives up even if the client is gone.
func (d *PostgresDriver) BeginTx(ctx context.Context, conn *Connection, opts TxOptions) (Transaction, error) {
	tx, err := conn.SQL.BeginTx(ctx, &sql.TxOptions{ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, err
	}

	if opts.StatementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", opts.StatementTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	return &sqlTransaction{tx: tx}, nil
}

func (d *PostgresDriver) SchemaFetcher(conn *Connection) SchemaFetcher {
	return &PostgresSchemaFetcher{db: conn.DB, database: conn.Config.Database}
}

// PostgresSchemaFetcher reads the public schema from information_schema.
type PostgresSchemaFetcher struct {
	db       *gorm.DB
	database string
}

const postgresColumnsQuery = `
        SELECT
            table_name,
            column_name,
            data_type,
            is_nullable,
            column_default
        FROM information_schema.columns
        WHERE table_schema = 'public'
        ORDER BY table_name, ordinal_position`

const postgresPrimaryKeysQuery = `
        SELECT
            kcu.table_name,
            kcu.column_name
        FROM information_schema.table_constraints tc
        JOIN information_schema.key_column_usage kcu
            ON tc.constraint_name = kcu.constraint_name
        WHERE tc.constraint_type = 'PRIMARY KEY'
        AND kcu.table_schema = 'public'`

const postgresForeignKeysQuery = `
        SELECT
            kcu.table_name AS from_table,
            kcu.column_name AS from_column,
            ccu.table_name AS to_table,
            ccu.column_name AS to_column
        FROM information_schema.table_constraints tc
        JOIN information_schema.key_column_usage kcu
            ON tc.constraint_name = kcu.constraint_name
        JOIN information_schema.constraint_column_usage ccu
            ON tc.constraint_name = ccu.constraint_name
        WHERE tc.constraint_type = 'FOREIGN KEY'
        AND kcu.table_schema = 'public'`

func (f *PostgresSchemaFetcher) FetchSchema(ctx context.Context) (*SchemaInfo, error) {
	db := f.db.WithContext(ctx)

	var columns []columnRow
	if err := db.Raw(postgresColumnsQuery).Scan(&columns).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch columns: %w", err)
	}

	var primaryKeys []keyRow
	if err := db.Raw(postgresPrimaryKeysQuery).Scan(&primaryKeys).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch primary keys: %w", err)
	}

	var foreignKeys []foreignKeyRow
	if err := db.Raw(postgresForeignKeysQuery).Scan(&foreignKeys).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch foreign keys: %w", err)
	}

	return buildSchema(f.database, columns, primaryKeys, foreignKeys), nil
}
