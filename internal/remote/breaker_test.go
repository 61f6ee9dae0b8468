package remote

import (
	"context"
	stderr "errors"
	"testing"

	"github.com/stratacache/stratacache/internal/circuit"
)

func TestBreakerStorePassesThrough(t *testing.T) {
	mock := NewMock()
	bs := NewBreakerStore(mock, circuit.Config{TripAfter: 3})
	ctx := context.Background()

	if err := bs.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, ok, err := bs.Get(ctx, "k")
	if err != nil || !ok || string(data) != "v" {
		t.Fatalf("Get: data=%q ok=%v err=%v", data, ok, err)
	}
	if bs.State() != circuit.StateClosed {
		t.Errorf("state = %v, want CLOSED", bs.State())
	}
}

func TestBreakerStoreMissesAreNotFailures(t *testing.T) {
	bs := NewBreakerStore(NewMock(), circuit.Config{TripAfter: 2})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, ok, err := bs.Get(ctx, "absent"); ok || err != nil {
			t.Fatalf("Get: ok=%v err=%v", ok, err)
		}
	}
	if bs.State() != circuit.StateClosed {
		t.Errorf("state = %v, misses must not trip the breaker", bs.State())
	}
}

func TestBreakerStoreShortCircuitsWhenOpen(t *testing.T) {
	mock := NewMock()
	mock.Err = stderr.New("backend down")
	bs := NewBreakerStore(mock, circuit.Config{TripAfter: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := bs.Get(ctx, "k"); err == nil {
			t.Fatal("expected backend error")
		}
	}
	if bs.State() != circuit.StateOpen {
		t.Fatalf("state = %v, want OPEN after repeated failures", bs.State())
	}

	before := mock.GetCalls
	_, _, err := bs.Get(ctx, "k")
	if !stderr.Is(err, circuit.ErrOpen) {
		t.Errorf("Get while open = %v, want ErrOpen", err)
	}
	if mock.GetCalls != before {
		t.Error("open breaker must not reach the backend")
	}
}
