package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrKeyNotFound is returned by Get when the key is absent or expired.
var ErrKeyNotFound = errors.New("key does not exist")

type RedisRepositories struct {
	Client *redis.Client
	logger *slog.Logger
}

type IRedisRepositories interface {
	Set(key string, data []byte, expiredTime time.Duration, ctx context.Context) error
	Get(key string, ctx context.Context) (string, error)
	Del(key string, ctx context.Context) error
	TTL(key string, ctx context.Context) (time.Duration, error)
}

func NewRedisRepositories(client *redis.Client, logger *slog.Logger) *RedisRepositories {
	return &RedisRepositories{
		Client: client,
		logger: logger,
	}
}

func (r *RedisRepositories) Set(key string, data []byte, expiredTime time.Duration, ctx context.Context) error {
	if err := r.Client.Set(ctx, key, string(data), expiredTime).Err(); err != nil {
		r.logger.Error("Error setting Redis key", slog.String("key", key), slog.String("error", err.Error()))
		return err
	}
	r.logger.Debug("Set Redis key", slog.String("key", key), slog.Duration("ttl", expiredTime))
	return nil
}

func (r *RedisRepositories) Get(key string, ctx context.Context) (string, error) {
	result, err := r.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	} else if err != nil {
		r.logger.Error("Error getting Redis key", slog.String("key", key), slog.String("error", err.Error()))
		return "", err
	}
	return result, nil
}

func (r *RedisRepositories) Del(key string, ctx context.Context) error {
	if _, err := r.Client.Del(ctx, key).Result(); err != nil {
		r.logger.Error("Error deleting Redis key", slog.String("key", key), slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (r *RedisRepositories) TTL(key string, ctx context.Context) (time.Duration, error) {
	return r.Client.TTL(ctx, key).Result()
}
