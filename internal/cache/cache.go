// Package cache implements the hierarchical cache: an in-memory L1 holding
// native values, a compressed local L2, and a remote L3, coordinated by a
// predictive access model. Reads walk the tiers in order and promote hits
// one level up in the background; writes land on the level the model
// expects them to be read from.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stratacache/stratacache/internal/circuit"
	"github.com/stratacache/stratacache/internal/codec"
	"github.com/stratacache/stratacache/internal/config"
	"github.com/stratacache/stratacache/internal/metrics"
	"github.com/stratacache/stratacache/internal/policy"
	"github.com/stratacache/stratacache/internal/predict"
	"github.com/stratacache/stratacache/internal/remote"
	"github.com/stratacache/stratacache/internal/tier"
	"github.com/stratacache/stratacache/pkg/errors"
	"github.com/stratacache/stratacache/pkg/retry"
	"github.com/stratacache/stratacache/pkg/types"
)

// Placement thresholds: how soon and how often a key must be read to earn
// a spot in the faster tiers.
const (
	l1PlacementWindow = time.Minute
	l1PlacementCount  = 10
	l2PlacementWindow = time.Hour
	l2PlacementCount  = 5
)

// Cache is the hierarchical cache. All methods are safe for concurrent
// use.
type Cache struct {
	cfg *config.Configuration
	log *zap.Logger

	l1      *tier.Store
	l2      *tier.Store
	l2Codec codec.Codec

	remote    types.RemoteStore
	retryer   *retry.Retryer
	predictor types.Predictor

	sink      types.MetricsSink
	collector *metrics.Collector

	fetch   types.FetchFunc
	nowFunc func() time.Time
	workers *workerPool

	statsMu    sync.Mutex
	tierHits   [3]uint64
	tierMisses [3]uint64
	getTotal   time.Duration
	getCount   uint64
	lastRatio  float64

	closers   []func() error
	closeOnce sync.Once
	closeErr  error
}

// New builds a Cache from cfg. A nil cfg uses defaults. Configuration
// problems and unreachable backends fail construction; runtime backend
// failures degrade to misses instead.
func New(cfg *config.Configuration, opts ...Option) (*Cache, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Cache{
		cfg:       cfg,
		nowFunc:   time.Now,
		lastRatio: 1.0,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.log == nil {
		log, err := buildLogger(cfg.Logging)
		if err != nil {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "building logger failed").WithCause(err)
		}
		c.log = log
	}

	if c.predictor == nil {
		c.predictor = predict.NewModel()
	}

	pol, err := policy.New(policy.Name(cfg.EvictionPolicy), c.predictor)
	if err != nil {
		return nil, err
	}
	c.l1 = tier.NewStore(types.TierL1, cfg.L1Bytes(), pol)
	c.l2 = tier.NewStore(types.TierL2, cfg.L2Bytes(), pol)

	method, err := codec.ParseMethod(cfg.L2.Codec)
	if err != nil {
		return nil, err
	}
	c.l2Codec = codec.New(method)

	if c.remote == nil {
		if err := c.connectRemote(); err != nil {
			c.log.Error("remote store connection failed", zap.Error(err))
			return nil, err
		}
	}

	if c.sink == nil {
		if cfg.Metrics.Enabled {
			collector, err := metrics.NewCollector(cfg.Metrics, c.log)
			if err != nil {
				return nil, err
			}
			if err := collector.Start(); err != nil {
				return nil, err
			}
			c.collector = collector
			c.sink = collector
		} else {
			c.sink = metrics.Noop{}
		}
	}

	c.retryer = retry.New(cfg.Retry)
	c.workers = newWorkerPool(cfg.Workers.Count, cfg.Workers.QueueDepth, cfg.Workers.TaskTimeout, c.log)

	c.log.Info("cache initialized",
		zap.String("policy", cfg.EvictionPolicy),
		zap.Int64("l1_bytes", cfg.L1Bytes()),
		zap.Int64("l2_bytes", cfg.L2Bytes()),
		zap.String("l2_codec", cfg.L2.Codec))
	return c, nil
}

func (c *Cache) connectRemote() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisStore, err := remote.NewRedisStore(ctx, c.cfg.Remote.Redis)
	if err != nil {
		return err
	}
	c.closers = append(c.closers, redisStore.Close)

	var blob types.RemoteStore
	if c.cfg.Remote.S3.Bucket != "" {
		s3Store, err := remote.NewS3Store(ctx, c.cfg.Remote.S3)
		if err != nil {
			_ = redisStore.Close()
			return err
		}
		blob = s3Store
	}

	router := remote.NewRouter(redisStore, blob, c.cfg.BlobThresholdBytes())
	cfg := c.cfg.Remote.Breaker
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(from, to circuit.State) {
			c.log.Warn("remote store breaker state change",
				zap.Stringer("from", from), zap.Stringer("to", to))
		}
	}
	c.remote = remote.NewBreakerStore(router, cfg)
	return nil
}

// Get returns the cached value for key. Tiers are consulted in order; a
// hit below L1 schedules a background promotion one level up, so the read
// after next is served faster. Backend failures are logged and reported as
// misses.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	start := time.Now()
	defer func() {
		c.recordGetLatency(time.Since(start))
	}()

	now := c.nowFunc()

	if it, ok := c.l1.Access(key, now); ok {
		c.recordHit(types.TierL1)
		c.predictor.Update(key, now)
		c.maybeRefresh(key, it, c.l1)
		c.triggerPrefetch(key)
		return it.Value, true
	}
	c.recordMiss(types.TierL1)

	if it, ok := c.l2.Access(key, now); ok {
		value, err := codec.Decode(it.Payload, codec.Method(it.Method))
		if err != nil {
			// Unreadable payloads cannot be served; drop and keep walking.
			c.log.Error("discarding undecodable L2 payload",
				zap.String("key", key), zap.Error(err))
			c.l2.Remove(key)
		} else {
			c.recordHit(types.TierL2)
			c.predictor.Update(key, now)
			c.maybeRefresh(key, it, c.l2)
			c.promoteToL1(key, it, value)
			c.triggerPrefetch(key)
			return value, true
		}
	}
	c.recordMiss(types.TierL2)

	data, ok, err := c.remote.Get(ctx, key)
	if err != nil {
		c.log.Warn("remote read failed, degrading to miss",
			zap.String("key", key), zap.Error(err))
		c.recordMiss(types.TierL3)
		return nil, false
	}
	if !ok {
		c.recordMiss(types.TierL3)
		return nil, false
	}

	value, err := codec.Decode(data, c.l2Codec.Method())
	if err != nil {
		c.log.Error("discarding undecodable remote payload",
			zap.String("key", key), zap.Error(err))
		c.recordMiss(types.TierL3)
		return nil, false
	}

	c.recordHit(types.TierL3)
	c.predictor.Update(key, now)
	c.promoteToL2(key, data)
	c.triggerPrefetch(key)
	return value, true
}

// Set stores value under key at the level the access model expects it to
// be read from, replacing any copies elsewhere. It returns false when the
// value cannot be stored: not serializable, too large for its level, or
// the remote write failed after retries.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, opts ...SetOption) bool {
	start := time.Now()
	defer func() {
		c.sink.RecordLatency("set", time.Since(start))
	}()

	o := setOptions{ttl: c.cfg.DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}

	payload, origSize, err := c.l2Codec.Compress(value)
	if err != nil {
		c.log.Error("set rejected", zap.String("key", key), zap.Error(err))
		return false
	}

	ratio := codec.Ratio(origSize, int64(len(payload)))
	if c.l2Codec.Method() == codec.MethodNone {
		ratio = 1.0
	}
	c.sink.RecordCompressionRatio(ratio)
	c.statsMu.Lock()
	c.lastRatio = ratio
	c.statsMu.Unlock()

	now := c.nowFunc()
	level := c.placementLevel(key, now)

	it := &types.Item{
		Key:            key,
		CreatedAt:      now,
		LastAccessedAt: now,
		SizeBytes:      origSize,
		TTL:            o.ttl,
		Metadata:       o.metadata,
	}

	switch level {
	case types.TierL1:
		it.Value = value
		evicted, err := c.l1.Set(it, now)
		if err != nil {
			c.log.Error("L1 set failed", zap.String("key", key), zap.Error(err))
			return false
		}
		c.recordEvictions(types.TierL1, evicted)
		c.l2.Remove(key)
		c.removeRemoteAsync(key)

	case types.TierL2:
		it.Payload = payload
		it.Method = string(c.l2Codec.Method())
		it.CompressedSizeBytes = int64(len(payload))
		evicted, err := c.l2.Set(it, now)
		if err != nil {
			c.log.Error("L2 set failed", zap.String("key", key), zap.Error(err))
			return false
		}
		c.recordEvictions(types.TierL2, evicted)
		c.l1.Remove(key)
		c.removeRemoteAsync(key)

	default:
		err := c.retryer.Do(ctx, func(ctx context.Context) error {
			return c.remote.Set(ctx, key, payload, o.ttl)
		})
		if err != nil {
			c.log.Error("remote set failed", zap.String("key", key), zap.Error(err))
			return false
		}
		c.l1.Remove(key)
		c.l2.Remove(key)
	}

	c.predictor.Update(key, now)
	c.triggerPrefetch(key)
	c.updateTierSizes()
	return true
}

// Delete removes key from every tier, reporting whether it was present
// anywhere. Remote failures degrade: local copies are gone regardless.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	present := c.l1.Remove(key)
	if c.l2.Remove(key) {
		present = true
	}

	ok, err := c.remote.Exists(ctx, key)
	if err != nil {
		c.log.Warn("remote existence check failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		present = true
	}
	if err := c.remote.Delete(ctx, key); err != nil {
		c.log.Warn("remote delete failed", zap.String("key", key), zap.Error(err))
	}

	c.predictor.Forget(key)
	c.updateTierSizes()
	return present
}

// Clear empties every tier, including the remote store.
func (c *Cache) Clear(ctx context.Context) error {
	c.l1.Clear()
	c.l2.Clear()
	c.updateTierSizes()

	err := c.retryer.Do(ctx, func(ctx context.Context) error {
		return c.remote.FlushAll(ctx)
	})
	if err != nil {
		c.log.Error("remote flush failed", zap.Error(err))
		return err
	}
	return nil
}

// Metrics returns a point-in-time snapshot of the cache's counters.
func (c *Cache) Metrics() types.Snapshot {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	l1 := types.TierStats{
		Hits:      c.tierHits[types.TierL1],
		Misses:    c.tierMisses[types.TierL1],
		Evictions: c.l1.Evictions(),
		Size:      c.l1.Size(),
		Capacity:  c.l1.Capacity(),
	}
	l2 := types.TierStats{
		Hits:      c.tierHits[types.TierL2],
		Misses:    c.tierMisses[types.TierL2],
		Evictions: c.l2.Evictions(),
		Size:      c.l2.Size(),
		Capacity:  c.l2.Capacity(),
	}
	l3 := types.TierStats{
		Hits:   c.tierHits[types.TierL3],
		Misses: c.tierMisses[types.TierL3],
	}

	var avg time.Duration
	if c.getCount > 0 {
		avg = c.getTotal / time.Duration(c.getCount)
	}

	return types.Snapshot{
		Tiers: map[string]types.TierStats{
			types.TierL1.String(): l1,
			types.TierL2.String(): l2,
			types.TierL3.String(): l3,
		},
		AvgLatency:         avg,
		PredictionAccuracy: l1.HitRate(),
		CompressionRatio:   c.lastRatio,
	}
}

// Close stops the background workers and metrics endpoint and releases
// remote connections. Safe to call more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.workers.stop()

		if c.collector != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.collector.Stop(ctx); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
			cancel()
		}
		for _, closer := range c.closers {
			if err := closer(); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}
		_ = c.log.Sync()
	})
	return c.closeErr
}

// placementLevel chooses the write level: keys the model expects to be
// read soon and often go high, unknown or cold keys go remote.
func (c *Cache) placementLevel(key string, now time.Time) types.Tier {
	next, ok := c.predictor.PredictNextAccess(key)
	if !ok {
		return types.TierL3
	}
	until := next.Sub(now)
	count := c.residentAccessCount(key)

	if until < l1PlacementWindow && count > l1PlacementCount {
		return types.TierL1
	}
	if until < l2PlacementWindow && count > l2PlacementCount {
		return types.TierL2
	}
	return types.TierL3
}

func (c *Cache) residentAccessCount(key string) int64 {
	if n, ok := c.l1.AccessCount(key); ok {
		return n
	}
	if n, ok := c.l2.AccessCount(key); ok {
		return n
	}
	return 0
}

// promoteToL1 copies an L2 hit into L1 in the background. The promoted
// item starts over at its new level: fresh timestamps, access count one.
// The read that triggered it already returned; a brief window where the
// item is in both tiers is accepted.
func (c *Cache) promoteToL1(key string, it *types.Item, value interface{}) {
	size := it.SizeBytes
	ttl := it.TTL
	metadata := it.Metadata
	c.workers.submit("promote-l1", func(context.Context) {
		now := c.nowFunc()
		promoted := &types.Item{
			Key:            key,
			Value:          value,
			CreatedAt:      now,
			LastAccessedAt: now,
			AccessCount:    1,
			SizeBytes:      size,
			TTL:            ttl,
			Metadata:       metadata,
		}
		evicted, err := c.l1.Set(promoted, now)
		if err != nil {
			c.log.Debug("L1 promotion skipped", zap.String("key", key), zap.Error(err))
			return
		}
		c.recordEvictions(types.TierL1, evicted)
		c.updateTierSizes()
	})
}

// promoteToL2 copies a remote hit into L2 in the background. Remote
// entries carry no local bookkeeping, so the promoted item starts fresh
// with the default TTL.
func (c *Cache) promoteToL2(key string, payload []byte) {
	data := append([]byte(nil), payload...)
	c.workers.submit("promote-l2", func(context.Context) {
		now := c.nowFunc()
		promoted := &types.Item{
			Key:                 key,
			Payload:             data,
			Method:              string(c.l2Codec.Method()),
			CreatedAt:           now,
			LastAccessedAt:      now,
			AccessCount:         1,
			CompressedSizeBytes: int64(len(data)),
			TTL:                 c.cfg.DefaultTTL,
		}
		evicted, err := c.l2.Set(promoted, now)
		if err != nil {
			c.log.Debug("L2 promotion skipped", zap.String("key", key), zap.Error(err))
			return
		}
		c.recordEvictions(types.TierL2, evicted)
		c.updateTierSizes()
	})
}

// maybeRefresh schedules a background reload for items past the
// near-expiry fraction of their TTL. The store's stale flag is the
// single-flight gate; losing it means a refresh is already in flight.
func (c *Cache) maybeRefresh(key string, it *types.Item, store *tier.Store) {
	if c.fetch == nil || !it.NearExpiry(c.nowFunc()) {
		return
	}
	if !store.MarkStale(key, true) {
		return
	}

	ttl := it.TTL
	if !c.workers.submit("refresh", func(ctx context.Context) {
		value, ok, err := c.fetch(ctx, key)
		if err != nil || !ok {
			if err != nil {
				c.log.Warn("background refresh failed", zap.String("key", key), zap.Error(err))
			}
			store.MarkStale(key, false)
			return
		}
		if !c.Set(ctx, key, value, WithTTL(ttl)) {
			store.MarkStale(key, false)
		}
	}) {
		store.MarkStale(key, false)
	}
}

// triggerPrefetch warms keys whose access series correlate with the one
// just read. Runs entirely on the worker pool; a full queue drops the
// prefetch rather than delaying the caller.
func (c *Cache) triggerPrefetch(key string) {
	if c.fetch == nil || c.cfg.PrefetchFanout <= 0 {
		return
	}
	related := c.predictor.TopCorrelated(key, c.cfg.PrefetchFanout, c.cfg.PrefetchThreshold)
	for _, rk := range related {
		rk := rk
		if _, ok := c.l1.Peek(rk); ok {
			continue
		}
		if _, ok := c.l2.Peek(rk); ok {
			continue
		}
		c.workers.submit("prefetch", func(ctx context.Context) {
			if ok, err := c.remote.Exists(ctx, rk); err == nil && ok {
				return
			}
			value, ok, err := c.fetch(ctx, rk)
			if err != nil || !ok {
				if err != nil {
					c.log.Debug("prefetch fetch failed", zap.String("key", rk), zap.Error(err))
				}
				return
			}
			c.Set(ctx, rk, value)
		})
	}
}

// removeRemoteAsync clears the remote copy after a write landed on a
// faster tier, so later tier walks cannot resurrect the old value.
func (c *Cache) removeRemoteAsync(key string) {
	c.workers.submit("remote-delete", func(ctx context.Context) {
		if err := c.remote.Delete(ctx, key); err != nil {
			c.log.Warn("remote cleanup failed", zap.String("key", key), zap.Error(err))
		}
	})
}

func (c *Cache) recordHit(t types.Tier) {
	c.sink.RecordHit(t)
	c.statsMu.Lock()
	c.tierHits[t]++
	c.statsMu.Unlock()
}

func (c *Cache) recordMiss(t types.Tier) {
	c.sink.RecordMiss(t)
	c.statsMu.Lock()
	c.tierMisses[t]++
	c.statsMu.Unlock()
}

func (c *Cache) recordEvictions(t types.Tier, evicted []*types.Item) {
	for range evicted {
		c.sink.RecordEviction(t)
	}
}

func (c *Cache) recordGetLatency(d time.Duration) {
	c.sink.RecordLatency("get", d)
	c.statsMu.Lock()
	c.getTotal += d
	c.getCount++
	c.statsMu.Unlock()
}

func (c *Cache) updateTierSizes() {
	c.sink.UpdateTierSize(types.TierL1, c.l1.Size())
	c.sink.UpdateTierSize(types.TierL2, c.l2.Size())
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	switch strings.ToUpper(cfg.Level) {
	case "DEBUG":
		level = zapcore.DebugLevel
	case "INFO":
		level = zapcore.InfoLevel
	case "WARN":
		level = zapcore.WarnLevel
	case "ERROR":
		level = zapcore.ErrorLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Format == "console" {
		zcfg.Encoding = "console"
	}
	return zcfg.Build()
}
