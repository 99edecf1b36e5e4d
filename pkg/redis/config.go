package redis

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the connection settings for the shared cache.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
}

// RedisClient connects and pings with a bounded number of attempts.
func RedisClient(ctx context.Context, cfg Config, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MaxRetries:   3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		err := client.Ping(pingCtx).Err()
		if err == nil {
			logger.Info("Connected to Redis", slog.String("addr", client.Options().Addr))
			return client, nil
		}

		logger.Warn("Failed to connect to Redis",
			slog.Int("attempt", i+1),
			slog.Int("max_attempts", maxRetries),
			slog.String("error", err.Error()),
		)
		if i == maxRetries-1 {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", maxRetries, err)
		}

		select {
		case <-pingCtx.Done():
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", pingCtx.Err())
		case <-time.After(2 * time.Second):
		}
	}

	return client, nil
}
