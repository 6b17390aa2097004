// Package kv writes resolution envelopes to a Redis key-value store, with
// the envelope's expiration as the key's TTL.
package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clean-dependency-project/winiso/internal/output"
)

// Hash fields an envelope is stored under.
const (
	FieldValue    = "value"
	FieldMetadata = "metadata"
)

// ErrAddrRequired is returned when no Redis address is configured.
var ErrAddrRequired = errors.New("redis address is required")

// Commander is the subset of the Redis client the writer uses.
type Commander interface {
	Ping(ctx context.Context) *redis.StatusCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	ExpireAt(ctx context.Context, key string, tm time.Time) *redis.BoolCmd
	Close() error
}

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// RedisWriter stores envelopes as hashes.
type RedisWriter struct {
	client Commander
	logger *slog.Logger
}

// NewRedisWriter connects to Redis and verifies the connection.
func NewRedisWriter(ctx context.Context, config Config, logger *slog.Logger) (*RedisWriter, error) {
	if config.Addr == "" {
		return nil, ErrAddrRequired
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	w := NewWriter(client, logger)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}
	return w, nil
}

// NewWriter wraps an existing client.
func NewWriter(client Commander, logger *slog.Logger) *RedisWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisWriter{client: client, logger: logger}
}

// Put stores env under env.Key and sets the key to expire at env.Expiration.
func (w *RedisWriter) Put(ctx context.Context, env output.Envelope) error {
	value, err := env.Value.Text()
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", env.Key, err)
	}
	metadata, err := env.Metadata.Text()
	if err != nil {
		return fmt.Errorf("failed to encode metadata for %s: %w", env.Key, err)
	}

	if err := w.client.HSet(ctx, env.Key, FieldValue, value, FieldMetadata, metadata).Err(); err != nil {
		return fmt.Errorf("failed to store %s: %w", env.Key, err)
	}
	expiration := time.Unix(env.Expiration, 0)
	if err := w.client.ExpireAt(ctx, env.Key, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set expiration of %s: %w", env.Key, err)
	}

	w.logger.Debug("stored envelope", "key", env.Key, "expiration", expiration.UTC())
	return nil
}

// Close closes the underlying client.
func (w *RedisWriter) Close() error {
	return w.client.Close()
}
