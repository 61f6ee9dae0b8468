package types

import (
	"time"
)

// Tier identifies one level of the cache hierarchy, ordered by ascending
// latency and descending capacity.
type Tier int

const (
	TierL1 Tier = iota // in-memory, native values
	TierL2             // local, compressed payloads
	TierL3             // remote store
)

// String returns the conventional tier label.
func (t Tier) String() string {
	switch t {
	case TierL1:
		return "L1"
	case TierL2:
		return "L2"
	case TierL3:
		return "L3"
	default:
		return "unknown"
	}
}

// NearExpiryFraction is the portion of an item's TTL after which a
// background refresh becomes eligible.
const NearExpiryFraction = 0.8

// Item is a single cached value plus its bookkeeping. L1 items carry the
// native Value; L2 items carry the compressed Payload. Exactly one of the
// two is populated per tier.
type Item struct {
	Key     string
	Value   interface{}
	Payload []byte

	// Method names the codec used to produce Payload ("none", "zlib", "s2").
	Method string

	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64

	// SizeBytes is the length of the canonical serialization before
	// compression. CompressedSizeBytes is zero when no codec was applied.
	SizeBytes           int64
	CompressedSizeBytes int64

	TTL time.Duration

	// Metadata carries caller-supplied annotations; the cache stores them
	// opaquely.
	Metadata map[string]string

	// Stale marks an item whose background refresh has been scheduled but
	// not yet completed; it gates duplicate refresh scheduling.
	Stale bool

	// Seq is the tier-local insertion sequence, used as the deterministic
	// eviction tie-break.
	Seq uint64
}

// Age returns how long the item has existed relative to now.
func (it *Item) Age(now time.Time) time.Duration {
	return now.Sub(it.CreatedAt)
}

// Expired reports whether the item's TTL has elapsed. Items with no TTL
// never expire.
func (it *Item) Expired(now time.Time) bool {
	if it.TTL <= 0 {
		return false
	}
	return it.Age(now) > it.TTL
}

// NearExpiry reports whether the item has consumed more than
// NearExpiryFraction of its TTL.
func (it *Item) NearExpiry(now time.Time) bool {
	if it.TTL <= 0 {
		return false
	}
	return it.Age(now).Seconds() > NearExpiryFraction*it.TTL.Seconds()
}

// ChargedBytes is the size used for tier space accounting: the compressed
// size when a codec was applied, the serialized size otherwise. Compression
// can expand tiny payloads, so no ordering between the two is assumed.
func (it *Item) ChargedBytes() int64 {
	if it.CompressedSizeBytes > 0 {
		return it.CompressedSizeBytes
	}
	return it.SizeBytes
}

// Touch records a successful read.
func (it *Item) Touch(now time.Time) {
	it.LastAccessedAt = now
	it.AccessCount++
}

// TierStats tracks per-tier counters.
type TierStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int64  `json:"size"`
	Capacity  int64  `json:"capacity"`
}

// HitRate returns hits / (hits + misses), or zero when idle.
func (s TierStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Snapshot is the point-in-time metrics view returned by the cache.
type Snapshot struct {
	Tiers map[string]TierStats `json:"tiers"`

	// AvgLatency is the mean wall time of Get calls since startup.
	AvgLatency time.Duration `json:"avg_latency"`

	// PredictionAccuracy is the rolling L1 hit rate, the proxy the design
	// uses for how well placement and prefetch anticipate reads.
	PredictionAccuracy float64 `json:"prediction_accuracy"`

	// CompressionRatio is original/compressed for the most recent Set.
	CompressionRatio float64 `json:"compression_ratio"`
}
