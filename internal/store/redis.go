package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "unigo"

// RedisConfig holds configuration for the Redis connection.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns a Redis configuration with sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisStore implements KV on Redis. Session-scope keys expire natively.
type RedisStore struct {
	client     *redis.Client
	sessionTTL time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg RedisConfig, sessionTTL time.Duration) (*RedisStore, error) {
	def := DefaultRedisConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = def.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = def.MinIdleConns
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisFromClient(client, sessionTTL), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, sessionTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, sessionTTL: sessionTTL}
}

func redisKey(scope Scope, namespace, key string) string {
	return fmt.Sprintf("%s:%s:%s:%s", redisKeyPrefix, scope, namespace, key)
}

// Get returns the value for key.
func (s *RedisStore) Get(ctx context.Context, scope Scope, namespace, key string) (string, bool, error) {
	if err := validScope(scope); err != nil {
		return "", false, err
	}
	value, err := s.client.Get(ctx, redisKey(scope, namespace, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s/%s: %w", scope, key, err)
	}
	return value, true, nil
}

// Set stores value; session-scope keys get the session TTL.
func (s *RedisStore) Set(ctx context.Context, scope Scope, namespace, key, value string) error {
	if err := validScope(scope); err != nil {
		return err
	}
	var ttl time.Duration
	if scope == ScopeSession {
		ttl = s.sessionTTL
	}
	if err := s.client.Set(ctx, redisKey(scope, namespace, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s/%s: %w", scope, key, err)
	}
	return nil
}

// Remove deletes key.
func (s *RedisStore) Remove(ctx context.Context, scope Scope, namespace, key string) error {
	if err := validScope(scope); err != nil {
		return err
	}
	if err := s.client.Del(ctx, redisKey(scope, namespace, key)).Err(); err != nil {
		return fmt.Errorf("redis del %s/%s: %w", scope, key, err)
	}
	return nil
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
