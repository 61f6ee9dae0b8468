// Package tier implements the bounded in-process stores backing the L1 and
// L2 cache levels. A store holds items up to a byte capacity and evicts the
// lowest-scored items under its configured policy when space runs out.
package tier

import (
	"sync"
	"time"

	"github.com/stratacache/stratacache/internal/policy"
	"github.com/stratacache/stratacache/pkg/errors"
	"github.com/stratacache/stratacache/pkg/types"
)

// Store is a byte-bounded item store for one cache level. All methods are
// safe for concurrent use.
type Store struct {
	tier     types.Tier
	capacity int64
	pol      policy.Policy

	mu        sync.RWMutex
	items     map[string]*types.Item
	size      int64
	seq       uint64
	evictions uint64
}

// NewStore creates a store for the given tier with a byte capacity.
func NewStore(tier types.Tier, capacity int64, pol policy.Policy) *Store {
	return &Store{
		tier:     tier,
		capacity: capacity,
		pol:      pol,
		items:    make(map[string]*types.Item),
	}
}

// Tier returns the level this store backs.
func (s *Store) Tier() types.Tier { return s.tier }

// Capacity returns the store's byte capacity.
func (s *Store) Capacity() int64 { return s.capacity }

// Access looks up key and, when present and unexpired, records the read and
// returns the item. Expired items are removed on sight and reported as
// absent.
func (s *Store) Access(key string, now time.Time) (*types.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		return nil, false
	}
	if it.Expired(now) {
		s.removeLocked(key)
		return nil, false
	}
	it.Touch(now)
	return it, true
}

// Peek returns the item without touching access bookkeeping.
func (s *Store) Peek(key string) (*types.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[key]
	return it, ok
}

// AccessCount returns key's access count. Concurrent reads mutate the
// count under the store lock, so callers needing it must go through here
// rather than reading it off a peeked item.
func (s *Store) AccessCount(key string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[key]
	if !ok {
		return 0, false
	}
	return it.AccessCount, true
}

// Set inserts or replaces an item, evicting as needed to fit it. Evicted
// items are returned for the caller's accounting. An item larger than the
// store's whole capacity fails with INSUFFICIENT_SPACE.
func (s *Store) Set(it *types.Item, now time.Time) ([]*types.Item, error) {
	charged := it.ChargedBytes()
	if charged > s.capacity {
		return nil, errors.Newf(errors.ErrCodeInsufficientSpace,
			"item %q (%d bytes) exceeds %s capacity (%d bytes)",
			it.Key, charged, s.tier, s.capacity).
			WithContext("tier", s.tier.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Replacing an existing entry releases its charge first.
	if prev, ok := s.items[it.Key]; ok {
		s.size -= prev.ChargedBytes()
		delete(s.items, it.Key)
	}

	evicted := s.ensureSpaceLocked(charged, now)

	s.seq++
	it.Seq = s.seq
	s.items[it.Key] = it
	s.size += charged
	return evicted, nil
}

// Remove deletes key, reporting whether it was present.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	if ok {
		s.removeLocked(key)
	}
	return ok
}

// MarkStale flips the item's refresh flag. It returns false when the key is
// absent or the flag already held the requested value, which makes it the
// single-flight gate for background refresh.
func (s *Store) MarkStale(key string, stale bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	if !ok || it.Stale == stale {
		return false
	}
	it.Stale = stale
	return true
}

// Clear drops every item.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*types.Item)
	s.size = 0
}

// Len returns the resident item count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Size returns the charged bytes currently resident.
func (s *Store) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Evictions returns the lifetime eviction count.
func (s *Store) Evictions() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evictions
}

// Keys returns the resident keys in unspecified order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	return keys
}

// ensureSpaceLocked evicts lowest-scored items until needed bytes fit.
// Caller holds the write lock and has verified needed <= capacity.
func (s *Store) ensureSpaceLocked(needed int64, now time.Time) []*types.Item {
	var evicted []*types.Item
	for s.size+needed > s.capacity && len(s.items) > 0 {
		victim := s.victimLocked(now)
		evicted = append(evicted, victim)
		s.removeLocked(victim.Key)
		s.evictions++
	}
	return evicted
}

// victimLocked returns the lowest-scored item, oldest insertion first on
// exact ties.
func (s *Store) victimLocked(now time.Time) *types.Item {
	var victim *types.Item
	var victimScore float64
	for _, it := range s.items {
		score := s.pol.Score(it, now)
		if victim == nil || score < victimScore ||
			(score == victimScore && it.Seq < victim.Seq) {
			victim = it
			victimScore = score
		}
	}
	return victim
}

func (s *Store) removeLocked(key string) {
	if it, ok := s.items[key]; ok {
		s.size -= it.ChargedBytes()
		delete(s.items, key)
	}
}
