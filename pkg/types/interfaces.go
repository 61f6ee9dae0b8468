package types

import (
	"context"
	"time"
)

// RemoteStore is the bottom-tier key/value backend. Implementations own
// their serialized copies and enforce TTLs independently of the in-process
// tiers. All calls are bounded by the caller's context; connectivity
// failures surface as errors and the cache degrades them to misses.
type RemoteStore interface {
	// Get returns the stored bytes, or ok=false when the key is absent.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// FlushAll drops every key. Global and destructive, not per-namespace.
	FlushAll(ctx context.Context) error
}

// FetchFunc retrieves a fresh value for a key from the system of record.
// It is supplied per deployment; the cache has no notion of where data
// originates. A false return means the key has no source value.
type FetchFunc func(ctx context.Context, key string) (interface{}, bool, error)

// MetricsSink receives cache observability events. Implementations must be
// safe for concurrent use.
type MetricsSink interface {
	RecordHit(tier Tier)
	RecordMiss(tier Tier)
	RecordLatency(op string, d time.Duration)
	RecordEviction(tier Tier)
	RecordCompressionRatio(ratio float64)
	UpdateTierSize(tier Tier, bytes int64)
}

// Predictor models per-key access behavior. The cache consults it for
// write placement and eviction scoring; internal/predict provides the
// production implementation.
type Predictor interface {
	// Update records an access to key at ts.
	Update(key string, ts time.Time)
	// PredictNextAccess estimates when key will next be read. ok=false when
	// there is not enough history to predict.
	PredictNextAccess(key string) (t time.Time, ok bool)
	// TopCorrelated returns up to n keys whose access series correlate with
	// key above min, strongest first.
	TopCorrelated(key string, n int, min float64) []string
	// Forget drops all state held for key. Called when the key is deleted
	// so the model does not keep predicting or prefetching it.
	Forget(key string)
}
