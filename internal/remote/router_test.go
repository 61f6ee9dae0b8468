package remote

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestRouterRoutesBySize(t *testing.T) {
	kv := NewMock()
	blob := NewMock()
	r := NewRouter(kv, blob, 1024)
	ctx := context.Background()

	small := []byte("small payload")
	large := []byte(strings.Repeat("x", 4096))

	if err := r.Set(ctx, "small", small, 0); err != nil {
		t.Fatalf("Set small: %v", err)
	}
	if err := r.Set(ctx, "large", large, 0); err != nil {
		t.Fatalf("Set large: %v", err)
	}

	if !kv.Has("small") || blob.Has("small") {
		t.Error("small payload must live in the key/value store only")
	}
	if !blob.Has("large") || kv.Has("large") {
		t.Error("large payload must live in the blob store only")
	}

	for _, key := range []string{"small", "large"} {
		data, ok, err := r.Get(ctx, key)
		if err != nil || !ok {
			t.Fatalf("Get(%s): ok=%v err=%v", key, ok, err)
		}
		want := small
		if key == "large" {
			want = large
		}
		if !bytes.Equal(data, want) {
			t.Errorf("Get(%s) returned wrong payload", key)
		}
	}
}

func TestRouterRewriteAcrossThreshold(t *testing.T) {
	kv := NewMock()
	blob := NewMock()
	r := NewRouter(kv, blob, 1024)
	ctx := context.Background()

	large := []byte(strings.Repeat("x", 4096))
	if err := r.Set(ctx, "k", large, 0); err != nil {
		t.Fatalf("Set large: %v", err)
	}
	// Shrinking the value must not leave a stale blob copy behind.
	if err := r.Set(ctx, "k", []byte("now small"), 0); err != nil {
		t.Fatalf("Set small: %v", err)
	}

	if blob.Has("k") {
		t.Error("stale blob copy survived rewrite below threshold")
	}
	data, ok, err := r.Get(ctx, "k")
	if err != nil || !ok || string(data) != "now small" {
		t.Errorf("Get after rewrite: data=%q ok=%v err=%v", data, ok, err)
	}
}

func TestRouterWithoutBlobStore(t *testing.T) {
	kv := NewMock()
	r := NewRouter(kv, nil, 1024)
	ctx := context.Background()

	large := []byte(strings.Repeat("x", 4096))
	if err := r.Set(ctx, "k", large, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !kv.Has("k") {
		t.Error("without a blob store everything lands in the key/value store")
	}
	if _, ok, err := r.Get(ctx, "missing"); ok || err != nil {
		t.Errorf("Get(missing): ok=%v err=%v", ok, err)
	}
}

func TestRouterDeleteAndFlushCoverBothStores(t *testing.T) {
	kv := NewMock()
	blob := NewMock()
	r := NewRouter(kv, blob, 1024)
	ctx := context.Background()

	_ = r.Set(ctx, "small", []byte("s"), 0)
	_ = r.Set(ctx, "large", []byte(strings.Repeat("x", 2048)), 0)

	if err := r.Delete(ctx, "large"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if blob.Has("large") {
		t.Error("Delete missed the blob store")
	}

	if err := r.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	if kv.Len() != 0 || blob.Len() != 0 {
		t.Error("FlushAll left residents behind")
	}
}

func TestRouterExists(t *testing.T) {
	kv := NewMock()
	blob := NewMock()
	r := NewRouter(kv, blob, 1024)
	ctx := context.Background()

	_ = r.Set(ctx, "large", []byte(strings.Repeat("x", 2048)), 0)

	ok, err := r.Exists(ctx, "large")
	if err != nil || !ok {
		t.Errorf("Exists(large): ok=%v err=%v", ok, err)
	}
	ok, err = r.Exists(ctx, "absent")
	if err != nil || ok {
		t.Errorf("Exists(absent): ok=%v err=%v", ok, err)
	}
}

func TestMockTTL(t *testing.T) {
	m := NewMock()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })
	ctx := context.Background()

	_ = m.Set(ctx, "k", []byte("v"), time.Minute)
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("expected miss after expiry")
	}
}
