package cache

import (
	"time"

	"go.uber.org/zap"

	"github.com/stratacache/stratacache/pkg/types"
)

// Option configures a Cache at construction.
type Option func(*Cache)

// WithLogger replaces the logger built from the logging configuration.
func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) {
		c.log = log
	}
}

// WithMetricsSink replaces the Prometheus collector with a custom sink and
// suppresses the built-in metrics endpoint.
func WithMetricsSink(sink types.MetricsSink) Option {
	return func(c *Cache) {
		c.sink = sink
	}
}

// WithFetchFunc supplies the system-of-record loader used by background
// refresh and correlation prefetch. Without it both stay disabled.
func WithFetchFunc(fetch types.FetchFunc) Option {
	return func(c *Cache) {
		c.fetch = fetch
	}
}

// WithClock overrides the cache's clock. Test seam.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.nowFunc = now
	}
}

// WithPredictor replaces the built-in access model.
func WithPredictor(p types.Predictor) Option {
	return func(c *Cache) {
		c.predictor = p
	}
}

// WithRemoteStore injects the L3 backend directly, skipping the Redis and
// S3 connections the configuration would otherwise establish.
func WithRemoteStore(store types.RemoteStore) Option {
	return func(c *Cache) {
		c.remote = store
	}
}

type setOptions struct {
	ttl      time.Duration
	metadata map[string]string
}

// SetOption adjusts a single Set call.
type SetOption func(*setOptions)

// WithTTL overrides the configured default TTL for this entry. Zero means
// the entry does not expire.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = ttl
	}
}

// WithMetadata attaches caller annotations to the entry.
func WithMetadata(metadata map[string]string) SetOption {
	return func(o *setOptions) {
		o.metadata = metadata
	}
}
