// Package metrics implements the Prometheus-backed MetricsSink and an
// optional HTTP endpoint exposing it.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stratacache/stratacache/pkg/types"
)

// Config represents metrics configuration.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// DefaultConfig returns the metrics defaults: enabled, on :9210/metrics.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Port:      9210,
		Path:      "/metrics",
		Namespace: "stratacache",
	}
}

// Collector implements types.MetricsSink on a private Prometheus registry.
type Collector struct {
	config   Config
	log      *zap.Logger
	registry *prometheus.Registry

	hitCounter       *prometheus.CounterVec
	missCounter      *prometheus.CounterVec
	evictionCounter  *prometheus.CounterVec
	latencyHistogram *prometheus.HistogramVec
	compressionRatio prometheus.Gauge
	tierSizeGauge    *prometheus.GaugeVec

	server *http.Server
}

var _ types.MetricsSink = (*Collector)(nil)

// NewCollector builds the collector and registers its metrics.
func NewCollector(config Config, log *zap.Logger) (*Collector, error) {
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if config.Namespace == "" {
		config.Namespace = "stratacache"
	}
	if log == nil {
		log = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	c := &Collector{
		config:   config,
		log:      log,
		registry: registry,

		hitCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "hits_total",
			Help:      "Cache hits by tier",
		}, []string{"tier"}),

		missCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "misses_total",
			Help:      "Cache misses by tier",
		}, []string{"tier"}),

		evictionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "evictions_total",
			Help:      "Evictions by tier",
		}, []string{"tier"}),

		latencyHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation wall time by operation",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 12),
		}, []string{"operation"}),

		compressionRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "compression_ratio",
			Help:      "Original/compressed ratio of the most recent write",
		}),

		tierSizeGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "tier_size_bytes",
			Help:      "Resident bytes by tier",
		}, []string{"tier"}),
	}

	for _, col := range []prometheus.Collector{
		c.hitCounter, c.missCounter, c.evictionCounter,
		c.latencyHistogram, c.compressionRatio, c.tierSizeGauge,
	} {
		if err := registry.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return c, nil
}

// Start exposes the registry over HTTP when the endpoint is enabled.
func (c *Collector) Start() error {
	if !c.config.Enabled || c.config.Port == 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.log.Error("metrics server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop shuts the HTTP endpoint down.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// Registry exposes the underlying registry for embedding into an existing
// metrics endpoint.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) RecordHit(tier types.Tier) {
	c.hitCounter.WithLabelValues(tier.String()).Inc()
}

func (c *Collector) RecordMiss(tier types.Tier) {
	c.missCounter.WithLabelValues(tier.String()).Inc()
}

func (c *Collector) RecordLatency(op string, d time.Duration) {
	c.latencyHistogram.WithLabelValues(op).Observe(d.Seconds())
}

func (c *Collector) RecordEviction(tier types.Tier) {
	c.evictionCounter.WithLabelValues(tier.String()).Inc()
}

func (c *Collector) RecordCompressionRatio(ratio float64) {
	c.compressionRatio.Set(ratio)
}

func (c *Collector) UpdateTierSize(tier types.Tier, bytes int64) {
	c.tierSizeGauge.WithLabelValues(tier.String()).Set(float64(bytes))
}

// Noop is the sink used when metrics are disabled.
type Noop struct{}

var _ types.MetricsSink = Noop{}

func (Noop) RecordHit(types.Tier)                {}
func (Noop) RecordMiss(types.Tier)               {}
func (Noop) RecordLatency(string, time.Duration) {}
func (Noop) RecordEviction(types.Tier)           {}
func (Noop) RecordCompressionRatio(float64)      {}
func (Noop) UpdateTierSize(types.Tier, int64)    {}
