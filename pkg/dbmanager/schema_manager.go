package dbmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"querypilot-ai/internal/observability"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrEmptySchema is returned when introspection finds no tables.
var ErrEmptySchema = errors.New("schema has no tables")

// SchemaSource introspects the live database. *Manager implements it.
type SchemaSource interface {
	FetchSchema(ctx context.Context) (*SchemaInfo, error)
}

// SchemaStore is the shared second-level cache. *SchemaStorageService
// implements it.
type SchemaStore interface {
	Store(ctx context.Context, name string, schema *SchemaInfo) error
	Retrieve(ctx context.Context, name string) (*SchemaInfo, error)
	Delete(ctx context.Context, name string) error
}

// SchemaManager caches the rendered schema for the process lifetime.
// Concurrent cold misses share a single fetch. A nil store disables the
// shared cache.
type SchemaManager struct {
	source SchemaSource
	store  SchemaStore
	name   string
	logger *slog.Logger

	mu          sync.RWMutex
	schema      *SchemaInfo
	description string

	group singleflight.Group
}

func NewSchemaManager(source SchemaSource, store SchemaStore, name string, logger *slog.Logger) *SchemaManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SchemaManager{
		source: source,
		store:  store,
		name:   name,
		logger: logger,
	}
}

// GetSchema returns the schema description, loading it on a cold cache or
// when forceRefresh is set. forceRefresh also bypasses the shared cache.
func (m *SchemaManager) GetSchema(ctx context.Context, forceRefresh bool) (string, error) {
	if !forceRefresh {
		m.mu.RLock()
		description := m.description
		m.mu.RUnlock()
		if description != "" {
			observability.IncrementSchemaFetch("memory")
			return description, nil
		}
	}

	key := "load"
	if forceRefresh {
		key = "refresh"
	}

	ch := m.group.DoChan(key, func() (interface{}, error) {
		// detached so one caller's cancellation does not fail the others
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		return m.load(loadCtx, forceRefresh)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *SchemaManager) load(ctx context.Context, forceRefresh bool) (string, error) {
	requestID := observability.RequestIDFromContext(ctx)

	if !forceRefresh && m.store != nil {
		schema, err := m.store.Retrieve(ctx, m.name)
		switch {
		case err == nil && len(schema.Tables) > 0:
			observability.IncrementSchemaFetch("redis")
			return m.remember(schema), nil
		case err != nil && !errors.Is(err, ErrSchemaNotStored):
			m.logger.Warn("SchemaManager -> load -> shared cache read failed",
				slog.String("request_id", requestID),
				slog.String("error", err.Error()))
		}
	}

	startTime := time.Now()
	schema, err := m.source.FetchSchema(ctx)
	if err != nil {
		m.logger.Error("SchemaManager -> load -> introspection failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("failed to fetch schema: %w", err)
	}
	if len(schema.Tables) == 0 {
		return "", ErrEmptySchema
	}
	observability.IncrementSchemaFetch("database")

	m.logger.Info("SchemaManager -> load -> fetched schema",
		slog.String("request_id", requestID),
		slog.Int("tables", len(schema.Tables)),
		slog.Int("relationships", len(schema.Relationships)),
		slog.Duration("elapsed", time.Since(startTime)),
	)

	if m.store != nil {
		if err := m.store.Store(ctx, m.name, schema); err != nil {
			m.logger.Warn("SchemaManager -> load -> shared cache write failed",
				slog.String("request_id", requestID),
				slog.String("error", err.Error()))
		}
	}

	return m.remember(schema), nil
}

func (m *SchemaManager) remember(schema *SchemaInfo) string {
	description := schema.Describe()
	m.mu.Lock()
	m.schema = schema
	m.description = description
	m.mu.Unlock()
	return description
}

// Invalidate drops the cached schema here and in the shared cache.
func (m *SchemaManager) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	m.schema = nil
	m.description = ""
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Delete(ctx, m.name); err != nil {
			return fmt.Errorf("failed to delete shared schema: %w", err)
		}
	}
	m.logger.Info("SchemaManager -> Invalidate -> schema cache cleared")
	return nil
}

// Info returns the cached structured schema, nil when cold.
func (m *SchemaManager) Info() *SchemaInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schema
}
