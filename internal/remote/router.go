package remote

import (
	"context"
	"time"

	"github.com/stratacache/stratacache/pkg/types"
)

// DefaultBlobThreshold is the payload size at which writes divert from the
// key/value store to the blob store.
const DefaultBlobThreshold = 256 * 1024

// Router splits the L3 tier by payload size: small entries go to the
// key/value store, large ones to the blob store. Reads consult the
// key/value store first since it serves the overwhelming majority of keys.
// With no blob store configured it degrades to the key/value store alone.
type Router struct {
	kv        types.RemoteStore
	blob      types.RemoteStore
	threshold int64
}

var _ types.RemoteStore = (*Router)(nil)

// NewRouter builds a Router. blob may be nil.
func NewRouter(kv, blob types.RemoteStore, threshold int64) *Router {
	if threshold <= 0 {
		threshold = DefaultBlobThreshold
	}
	return &Router{kv: kv, blob: blob, threshold: threshold}
}

func (r *Router) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := r.kv.Get(ctx, key)
	if err != nil || ok {
		return data, ok, err
	}
	if r.blob == nil {
		return nil, false, nil
	}
	return r.blob.Get(ctx, key)
}

func (r *Router) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if r.blob != nil && int64(len(data)) >= r.threshold {
		// The key may have shrunk below the threshold before; clear the
		// stale copy so reads cannot resurrect it.
		if err := r.blob.Set(ctx, key, data, ttl); err != nil {
			return err
		}
		return r.kv.Delete(ctx, key)
	}

	if err := r.kv.Set(ctx, key, data, ttl); err != nil {
		return err
	}
	if r.blob != nil {
		return r.blob.Delete(ctx, key)
	}
	return nil
}

func (r *Router) Delete(ctx context.Context, key string) error {
	err := r.kv.Delete(ctx, key)
	if r.blob != nil {
		if blobErr := r.blob.Delete(ctx, key); err == nil {
			err = blobErr
		}
	}
	return err
}

func (r *Router) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := r.kv.Exists(ctx, key)
	if err != nil || ok {
		return ok, err
	}
	if r.blob == nil {
		return false, nil
	}
	return r.blob.Exists(ctx, key)
}

func (r *Router) FlushAll(ctx context.Context) error {
	err := r.kv.FlushAll(ctx)
	if r.blob != nil {
		if blobErr := r.blob.FlushAll(ctx); err == nil {
			err = blobErr
		}
	}
	return err
}
