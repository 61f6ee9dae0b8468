// Package stratacache is a hierarchical cache: an in-memory L1 for native
// values, a compressed local L2, and a remote L3 backed by Redis with an
// optional S3 blob store for large payloads. A predictive access model
// drives write placement, eviction scoring, background refresh, and
// correlation prefetch.
//
// The minimal usage is:
//
//	cache, err := stratacache.New(nil)
//	if err != nil {
//		// configuration or backend connection problem
//	}
//	defer cache.Close()
//
//	cache.Set(ctx, "user:42", profile)
//	if v, ok := cache.Get(ctx, "user:42"); ok {
//		// v came from the fastest tier holding it
//	}
package stratacache

import (
	"time"

	"go.uber.org/zap"

	"github.com/stratacache/stratacache/internal/cache"
	"github.com/stratacache/stratacache/internal/config"
	"github.com/stratacache/stratacache/pkg/types"
)

// Cache is the hierarchical cache.
type Cache = cache.Cache

// Config is the full cache configuration.
type Config = config.Configuration

// Option configures a Cache at construction.
type Option = cache.Option

// SetOption adjusts a single Set call.
type SetOption = cache.SetOption

// Snapshot is the point-in-time metrics view returned by Cache.Metrics.
type Snapshot = types.Snapshot

// RemoteStore is the pluggable L3 backend interface.
type RemoteStore = types.RemoteStore

// FetchFunc loads a fresh value from the system of record.
type FetchFunc = types.FetchFunc

// MetricsSink receives cache observability events.
type MetricsSink = types.MetricsSink

// Predictor models per-key access behavior.
type Predictor = types.Predictor

// New builds a Cache from cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config, opts ...Option) (*Cache, error) {
	return cache.New(cfg, opts...)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return config.NewDefault()
}

// LoadConfig reads a YAML configuration file over the defaults, applies
// environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := config.NewDefault()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	cfg.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WithLogger replaces the logger built from the logging configuration.
func WithLogger(log *zap.Logger) Option { return cache.WithLogger(log) }

// WithMetricsSink replaces the Prometheus collector with a custom sink.
func WithMetricsSink(sink MetricsSink) Option { return cache.WithMetricsSink(sink) }

// WithFetchFunc supplies the loader used by refresh and prefetch.
func WithFetchFunc(fetch FetchFunc) Option { return cache.WithFetchFunc(fetch) }

// WithPredictor replaces the built-in access model.
func WithPredictor(p Predictor) Option { return cache.WithPredictor(p) }

// WithRemoteStore injects the L3 backend directly.
func WithRemoteStore(store RemoteStore) Option { return cache.WithRemoteStore(store) }

// WithClock overrides the cache's clock.
func WithClock(now func() time.Time) Option { return cache.WithClock(now) }

// WithTTL overrides the configured default TTL for one entry.
func WithTTL(ttl time.Duration) SetOption { return cache.WithTTL(ttl) }

// WithMetadata attaches caller annotations to one entry.
func WithMetadata(metadata map[string]string) SetOption { return cache.WithMetadata(metadata) }
