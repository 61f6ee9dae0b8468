package remote

import (
	"context"
	"sync"
	"time"

	"github.com/stratacache/stratacache/pkg/types"
)

// Mock is an in-memory RemoteStore with call counting, used by the cache
// tests to assert promotion and routing behavior without a live backend.
type Mock struct {
	mu      sync.Mutex
	data    map[string]mockEntry
	nowFunc func() time.Time

	// Err, when set, is returned by every operation. Simulates an outage.
	Err error

	GetCalls    int
	SetCalls    int
	DeleteCalls int
	ExistsCalls int
	FlushCalls  int
}

type mockEntry struct {
	data      []byte
	expiresAt time.Time
}

var _ types.RemoteStore = (*Mock)(nil)

// NewMock creates an empty mock store.
func NewMock() *Mock {
	return &Mock{
		data:    make(map[string]mockEntry),
		nowFunc: time.Now,
	}
}

// SetClock overrides the mock's clock for TTL tests.
func (m *Mock) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFunc = now
}

func (m *Mock) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.Err != nil {
		return nil, false, m.Err
	}
	e, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && m.nowFunc().After(e.expiresAt) {
		delete(m.data, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, true, nil
}

func (m *Mock) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetCalls++
	if m.Err != nil {
		return m.Err
	}
	e := mockEntry{data: append([]byte(nil), data...)}
	if ttl > 0 {
		e.expiresAt = m.nowFunc().Add(ttl)
	}
	m.data[key] = e
	return nil
}

func (m *Mock) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if m.Err != nil {
		return m.Err
	}
	delete(m.data, key)
	return nil
}

func (m *Mock) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExistsCalls++
	if m.Err != nil {
		return false, m.Err
	}
	e, ok := m.data[key]
	if !ok {
		return false, nil
	}
	if !e.expiresAt.IsZero() && m.nowFunc().After(e.expiresAt) {
		delete(m.data, key)
		return false, nil
	}
	return true, nil
}

func (m *Mock) FlushAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FlushCalls++
	if m.Err != nil {
		return m.Err
	}
	m.data = make(map[string]mockEntry)
	return nil
}

// Len returns the resident key count.
func (m *Mock) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Has reports whether key is resident, ignoring call counters.
func (m *Mock) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}
