// Package remote implements the L3 backends: a Redis store for the common
// case, an S3 store for large payloads, and a size-threshold router that
// presents the pair as one store.
package remote

import (
	"context"
	stderr "errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/stratacache/stratacache/pkg/errors"
	"github.com/stratacache/stratacache/pkg/types"
)

const (
	defaultDialTimeout  = 500 * time.Millisecond
	defaultReadTimeout  = 300 * time.Millisecond
	defaultWriteTimeout = 300 * time.Millisecond
)

// RedisConfig holds connection settings for the Redis L3 backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// KeyPrefix namespaces this cache's keys inside a shared instance.
	KeyPrefix string `yaml:"key_prefix"`

	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

// RedisStore is the Redis-backed RemoteStore. Timeouts are kept sub-second
// so a degraded instance slows reads instead of stalling them.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ types.RemoteStore = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Newf(errors.ErrCodeConnectionFailed, "redis ping %s failed", cfg.Addr).
			WithCause(err).WithComponent("remote.redis")
	}

	return &RedisStore{client: client, prefix: cfg.KeyPrefix}, nil
}

func (r *RedisStore) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + k
}

// Get returns the stored bytes, ok=false on a clean miss.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if stderr.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, r.wrap(err, "GET", key)
	}
	return data, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		return r.wrap(err, "SET", key)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return r.wrap(err, "DEL", key)
	}
	return nil
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, r.wrap(err, "EXISTS", key)
	}
	return n > 0, nil
}

// FlushAll drops the whole database.
func (r *RedisStore) FlushAll(ctx context.Context) error {
	if err := r.client.FlushDB(ctx).Err(); err != nil {
		return errors.New(errors.ErrCodeFlushFailed, "redis FLUSHDB failed").
			WithCause(err).WithComponent("remote.redis")
	}
	return nil
}

// Close releases the connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) wrap(err error, op, key string) error {
	code := errors.ErrCodeConnectionFailed
	if stderr.Is(err, context.DeadlineExceeded) {
		code = errors.ErrCodeConnectionTimeout
	}
	return errors.Newf(code, "redis %s failed", op).
		WithCause(err).
		WithComponent("remote.redis").
		WithContext("key", key)
}
