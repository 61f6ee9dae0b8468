package remote

import (
	"context"
	"time"

	"github.com/stratacache/stratacache/internal/circuit"
	"github.com/stratacache/stratacache/pkg/types"
)

// BreakerStore wraps a RemoteStore with a circuit breaker. Misses are not
// failures; only transport errors count against the breaker. While open,
// every call fails immediately with the breaker's error and the cache
// degrades to local tiers.
type BreakerStore struct {
	inner   types.RemoteStore
	breaker *circuit.Breaker
}

var _ types.RemoteStore = (*BreakerStore)(nil)

// NewBreakerStore wraps inner with a breaker built from cfg.
func NewBreakerStore(inner types.RemoteStore, cfg circuit.Config) *BreakerStore {
	return &BreakerStore{inner: inner, breaker: circuit.New(cfg)}
}

// State exposes the breaker state for logging and status endpoints.
func (b *BreakerStore) State() circuit.State {
	return b.breaker.State()
}

func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := b.breaker.Allow(); err != nil {
		return nil, false, err
	}
	data, ok, err := b.inner.Get(ctx, key)
	b.breaker.Record(err)
	return data, ok, err
}

func (b *BreakerStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := b.breaker.Allow(); err != nil {
		return err
	}
	err := b.inner.Set(ctx, key, data, ttl)
	b.breaker.Record(err)
	return err
}

func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	if err := b.breaker.Allow(); err != nil {
		return err
	}
	err := b.inner.Delete(ctx, key)
	b.breaker.Record(err)
	return err
}

func (b *BreakerStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := b.breaker.Allow(); err != nil {
		return false, err
	}
	ok, err := b.inner.Exists(ctx, key)
	b.breaker.Record(err)
	return ok, err
}

func (b *BreakerStore) FlushAll(ctx context.Context) error {
	if err := b.breaker.Allow(); err != nil {
		return err
	}
	err := b.inner.FlushAll(ctx)
	b.breaker.Record(err)
	return err
}
