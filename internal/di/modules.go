package di

import (
	"context"
	"fmt"
	"log/slog"
	"querypilot-ai/config"
	"querypilot-ai/internal/apis/handlers"
	"querypilot-ai/internal/constants"
	"querypilot-ai/internal/repositories"
	"querypilot-ai/internal/services"
	"querypilot-ai/internal/utils"
	"querypilot-ai/pkg/dbmanager"
	"querypilot-ai/pkg/llm"
	"querypilot-ai/pkg/mongodb"
	"querypilot-ai/pkg/redis"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/dig"
)

const tokenDuration = 24 * time.Hour

// Initialize registers every provider. Providers run lazily, so connections
// are opened on first resolution. Optional components (Redis, MongoDB, JWT)
// resolve to nil when they are not configured.
func Initialize(ctx context.Context, env *config.Environment, logger *slog.Logger) (*dig.Container, error) {
	container := dig.New()

	providers := []interface{}{
		func() *config.Environment { return env },
		func() *slog.Logger { return logger },
		func() services.OrchestratorConfig { return services.NewOrchestratorConfig(env) },

		// LLM
		provideLLMManager,
		provideCompleter,

		// Target database
		func(env *config.Environment, logger *slog.Logger) (*dbmanager.Manager, error) {
			return provideDatabaseManager(ctx, env, logger)
		},

		// Shared schema cache
		func(env *config.Environment, logger *slog.Logger) (*goredis.Client, error) {
			if !env.RedisEnabled() {
				return nil, nil
			}
			return redis.RedisClient(ctx, redis.Config{
				Host:     env.RedisHost,
				Port:     env.RedisPort,
				Username: env.RedisUsername,
				Password: env.RedisPassword,
			}, logger)
		},
		provideSchemaManager,

		// Query log
		func(env *config.Environment, logger *slog.Logger) (*mongodb.MongoDBClient, error) {
			if !env.QueryLogEnabled() {
				return nil, nil
			}
			return mongodb.InitializeDatabaseConnection(ctx, mongodb.MongoDbConfigModel{
				ConnectionUrl: env.MongoURI,
				DatabaseName:  env.MongoDatabaseName,
			}, logger)
		},
		func(client *mongodb.MongoDBClient) repositories.QueryLogRepository {
			if client == nil {
				return nil
			}
			return repositories.NewQueryLogRepository(client)
		},

		// Auth
		func(env *config.Environment) utils.JWTService {
			if env.JWTSecret == "" {
				return nil
			}
			return utils.NewJWTService(env.JWTSecret, tokenDuration)
		},

		provideOrchestrator,

		// Handlers
		func(orchestrator *services.QueryOrchestrator, schema *dbmanager.SchemaManager, db *dbmanager.Manager, env *config.Environment, logger *slog.Logger) *handlers.QueryHandler {
			return handlers.NewQueryHandler(orchestrator, schema, db, env.RequestTimeout, logger)
		},
		func(repo repositories.QueryLogRepository, logger *slog.Logger) *handlers.HistoryHandler {
			if repo == nil {
				return nil
			}
			return handlers.NewHistoryHandler(repo, logger)
		},
	}

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return nil, fmt.Errorf("failed to register provider: %w", err)
		}
	}
	return container, nil
}

func provideLLMManager(env *config.Environment) (*llm.Manager, error) {
	manager := llm.NewManager()

	cfg := llm.Config{Provider: env.DefaultLLMClient}
	switch env.DefaultLLMClient {
	case constants.OpenAI:
		cfg.Model = env.OpenAIModel
		cfg.APIKey = env.OpenAIAPIKey
		cfg.MaxCompletionTokens = env.OpenAIMaxCompletionTokens
	case constants.Gemini:
		cfg.Model = env.GeminiModel
		cfg.APIKey = env.GeminiAPIKey
		cfg.MaxCompletionTokens = env.GeminiMaxCompletionTokens
	}

	if err := manager.RegisterClient(env.DefaultLLMClient, cfg); err != nil {
		return nil, fmt.Errorf("failed to register %s client: %w", env.DefaultLLMClient, err)
	}
	return manager, nil
}

func provideCompleter(manager *llm.Manager, env *config.Environment, logger *slog.Logger) (llm.Completer, error) {
	client, err := manager.GetClient(env.DefaultLLMClient)
	if err != nil {
		return nil, err
	}

	policy := llm.DefaultRetryPolicy(env.LLMMaxRetries, env.LLMRetryInitialBackoff, env.LLMRetryMaxBackoff)
	return llm.NewGateway(client, policy, llm.GatewayConfig{
		Timeout:             env.LLMTimeout,
		LogContent:          env.LLMLogPromptResponseContent,
		LogContentMaxLength: env.LLMLogContentMaxLength,
	}, logger), nil
}

func provideDatabaseManager(ctx context.Context, env *config.Environment, logger *slog.Logger) (*dbmanager.Manager, error) {
	manager := dbmanager.NewManager(dbmanager.ExecutorConfig{
		StatementTimeout: env.SQLTimeout,
		MaxRows:          env.SQLMaxRowsReturned,
		ReadOnly:         env.SQLReadOnlyTransactions,
		LogSQLMaxLength:  env.SQLQueryLogMaxLength,
	}, logger)

	manager.RegisterDriver(constants.DatabaseTypePostgreSQL, dbmanager.NewPostgresDriver())
	manager.RegisterDriver(constants.DatabaseTypeMySQL, dbmanager.NewMySQLDriver())
	manager.RegisterDriver(constants.DatabaseTypeClickhouse, dbmanager.NewClickHouseDriver())

	err := manager.Connect(ctx, dbmanager.ConnectionConfig{
		Type:     env.DatabaseType,
		URL:      env.DatabaseURL,
		Host:     env.DatabaseHost,
		Port:     env.DatabasePort,
		Username: env.DatabaseUsername,
		Password: env.DatabasePassword,
		Database: env.DatabaseName,
		SSLMode:  env.DatabaseSSLMode,
	}, dbmanager.PoolConfig{
		MaxOpenConns:    env.DatabaseMaxOpenConns,
		MaxIdleConns:    env.DatabaseMaxIdleConns,
		ConnMaxLifetime: env.DatabaseConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	return manager, nil
}

func provideSchemaManager(db *dbmanager.Manager, client *goredis.Client, env *config.Environment, logger *slog.Logger) (*dbmanager.SchemaManager, error) {
	var store dbmanager.SchemaStore
	if client != nil {
		storage, err := dbmanager.NewSchemaStorageService(
			redis.NewRedisRepositories(client, logger),
			env.SchemaEncryptionKey,
			env.SchemaCacheTTL,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create schema storage: %w", err)
		}
		store = storage
	}
	return dbmanager.NewSchemaManager(db, store, env.DatabaseType+"/"+env.DatabaseName, logger), nil
}

func provideOrchestrator(completer llm.Completer, db *dbmanager.Manager, schema *dbmanager.SchemaManager, repo repositories.QueryLogRepository, cfg services.OrchestratorConfig, logger *slog.Logger) *services.QueryOrchestrator {
	var recorder services.QueryRecorder
	if repo != nil {
		recorder = repo
	}
	return services.NewQueryOrchestrator(completer, db, schema, recorder, cfg, logger)
}

// GetQueryHandler retrieves the QueryHandler from the DI container
func GetQueryHandler(container *dig.Container) (*handlers.QueryHandler, error) {
	var handler *handlers.QueryHandler
	err := container.Invoke(func(h *handlers.QueryHandler) {
		handler = h
	})
	if err != nil {
		return nil, err
	}
	return handler, nil
}

// GetHistoryHandler returns nil when the query log is not configured.
func GetHistoryHandler(container *dig.Container) (*handlers.HistoryHandler, error) {
	var handler *handlers.HistoryHandler
	err := container.Invoke(func(h *handlers.HistoryHandler) {
		handler = h
	})
	if err != nil {
		return nil, err
	}
	return handler, nil
}

func GetOrchestrator(container *dig.Container) (*services.QueryOrchestrator, error) {
	var orchestrator *services.QueryOrchestrator
	err := container.Invoke(func(o *services.QueryOrchestrator) {
		orchestrator = o
	})
	if err != nil {
		return nil, err
	}
	return orchestrator, nil
}

func GetSchemaManager(container *dig.Container) (*dbmanager.SchemaManager, error) {
	var manager *dbmanager.SchemaManager
	err := container.Invoke(func(m *dbmanager.SchemaManager) {
		manager = m
	})
	if err != nil {
		return nil, err
	}
	return manager, nil
}

// GetJWTService returns nil when JWT_SECRET is empty.
func GetJWTService(container *dig.Container) (utils.JWTService, error) {
	var service utils.JWTService
	err := container.Invoke(func(s utils.JWTService) {
		service = s
	})
	if err != nil {
		return nil, err
	}
	return service, nil
}

type closables struct {
	dig.In

	Database *dbmanager.Manager
	Redis    *goredis.Client        `optional:"true"`
	Mongo    *mongodb.MongoDBClient `optional:"true"`
}

// Shutdown closes every connection the container opened.
func Shutdown(ctx context.Context, container *dig.Container, logger *slog.Logger) {
	err := container.Invoke(func(c closables) {
		if err := c.Database.Disconnect(); err != nil {
			logger.Warn("Shutdown -> failed to close target database", slog.String("error", err.Error()))
		}
		if c.Redis != nil {
			if err := c.Redis.Close(); err != nil {
				logger.Warn("Shutdown -> failed to close redis", slog.String("error", err.Error()))
			}
		}
		if c.Mongo != nil {
			if err := c.Mongo.Disconnect(ctx); err != nil {
				logger.Warn("Shutdown -> failed to close mongodb", slog.String("error", err.Error()))
			}
		}
	})
	if err != nil {
		logger.Warn("Shutdown -> failed to resolve connections", slog.String("error", err.Error()))
	}
}
