// Package config defines the cache configuration surface: YAML file
// loading, environment overrides, defaults, and validation. Configuration
// errors are fatal at construction; nothing here degrades at runtime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/stratacache/stratacache/internal/circuit"
	"github.com/stratacache/stratacache/internal/metrics"
	"github.com/stratacache/stratacache/internal/remote"
	"github.com/stratacache/stratacache/pkg/errors"
	"github.com/stratacache/stratacache/pkg/retry"
)

// TierConfig configures one in-process cache level.
type TierConfig struct {
	// MaxSize is a human-readable byte size ("512MB", "2GB", "65536").
	MaxSize string `yaml:"max_size"`

	// Codec is the compression method for the level: "none", "zlib", "s2".
	Codec string `yaml:"codec"`
}

// RemoteConfig configures the L3 backends.
type RemoteConfig struct {
	Redis remote.RedisConfig `yaml:"redis"`

	// S3 is optional; with no bucket configured all L3 traffic stays on
	// Redis.
	S3 remote.S3Config `yaml:"s3"`

	// BlobThreshold is the payload size ("256KB") at which L3 writes divert
	// to the blob store.
	BlobThreshold string `yaml:"blob_threshold"`

	// Breaker guards the remote tier against a persistently failing
	// backend.
	Breaker circuit.Config `yaml:"breaker"`
}

// WorkersConfig bounds the background goroutine pool.
type WorkersConfig struct {
	// Count is the number of pool workers.
	Count int `yaml:"count"`

	// QueueDepth is the pending-task buffer; tasks past it are dropped.
	QueueDepth int `yaml:"queue_depth"`

	// TaskTimeout bounds each background task.
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Configuration is the full cache configuration.
type Configuration struct {
	L1 TierConfig `yaml:"l1"`
	L2 TierConfig `yaml:"l2"`

	Remote RemoteConfig `yaml:"remote"`

	// EvictionPolicy: "lru", "lfu", "adaptive", "predictive", "intelligent".
	EvictionPolicy string `yaml:"eviction_policy"`

	// DefaultTTL applies to Set calls that carry no explicit TTL. Zero
	// means entries do not expire.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// PrefetchThreshold is the minimum correlation coefficient for
	// prefetching related keys.
	PrefetchThreshold float64 `yaml:"prefetch_threshold"`

	// PrefetchFanout caps how many related keys one read may prefetch.
	PrefetchFanout int `yaml:"prefetch_fanout"`

	Workers WorkersConfig  `yaml:"workers"`
	Retry   retry.Config   `yaml:"retry"`
	Metrics metrics.Config `yaml:"metrics"`
	Logging LoggingConfig  `yaml:"logging"`
}

// NewDefault returns the default configuration.
func NewDefault() *Configuration {
	return &Configuration{
		L1: TierConfig{MaxSize: "100MB", Codec: "none"},
		L2: TierConfig{MaxSize: "500MB", Codec: "zlib"},
		Remote: RemoteConfig{
			Redis: remote.RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "stratacache:",
			},
			BlobThreshold: "256KB",
			Breaker:       circuit.DefaultConfig(),
		},
		EvictionPolicy:    "intelligent",
		DefaultTTL:        time.Hour,
		PrefetchThreshold: 0.7,
		PrefetchFanout:    5,
		Workers: WorkersConfig{
			Count:       4,
			QueueDepth:  256,
			TaskTimeout: 5 * time.Second,
		},
		Retry:   retry.DefaultConfig(),
		Metrics: metrics.DefaultConfig(),
		Logging: LoggingConfig{Level: "INFO", Format: "json"},
	}
}

// LoadFromFile overlays YAML from filename onto the configuration.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Newf(errors.ErrCodeConfigLoad, "failed to read config file %s", filename).WithCause(err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Newf(errors.ErrCodeConfigLoad, "failed to parse config file %s", filename).WithCause(err)
	}
	return nil
}

// LoadFromEnv overlays environment variables onto the configuration.
func (c *Configuration) LoadFromEnv() {
	if val := os.Getenv("STRATACACHE_L1_MAX_SIZE"); val != "" {
		c.L1.MaxSize = val
	}
	if val := os.Getenv("STRATACACHE_L2_MAX_SIZE"); val != "" {
		c.L2.MaxSize = val
	}
	if val := os.Getenv("STRATACACHE_REDIS_ADDR"); val != "" {
		c.Remote.Redis.Addr = val
	}
	if val := os.Getenv("STRATACACHE_REDIS_PASSWORD"); val != "" {
		c.Remote.Redis.Password = val
	}
	if val := os.Getenv("STRATACACHE_S3_BUCKET"); val != "" {
		c.Remote.S3.Bucket = val
	}
	if val := os.Getenv("STRATACACHE_EVICTION_POLICY"); val != "" {
		c.EvictionPolicy = val
	}
	if val := os.Getenv("STRATACACHE_DEFAULT_TTL"); val != "" {
		if ttl, err := time.ParseDuration(val); err == nil {
			c.DefaultTTL = ttl
		}
	}
	if val := os.Getenv("STRATACACHE_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("STRATACACHE_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Metrics.Port = port
		}
	}
}

// Validate checks the configuration, returning INVALID_CONFIG on the first
// problem found.
func (c *Configuration) Validate() error {
	if _, err := ParseSize(c.L1.MaxSize); err != nil {
		return errors.Newf(errors.ErrCodeInvalidConfig, "l1.max_size: %v", err)
	}
	if _, err := ParseSize(c.L2.MaxSize); err != nil {
		return errors.Newf(errors.ErrCodeInvalidConfig, "l2.max_size: %v", err)
	}
	if c.Remote.BlobThreshold != "" {
		if _, err := ParseSize(c.Remote.BlobThreshold); err != nil {
			return errors.Newf(errors.ErrCodeInvalidConfig, "remote.blob_threshold: %v", err)
		}
	}

	switch c.EvictionPolicy {
	case "lru", "lfu", "adaptive", "predictive", "intelligent":
	default:
		return errors.Newf(errors.ErrCodeInvalidConfig,
			"eviction_policy must be one of lru, lfu, adaptive, predictive, intelligent, got %q",
			c.EvictionPolicy)
	}

	for _, codec := range []string{c.L1.Codec, c.L2.Codec} {
		switch codec {
		case "none", "zlib", "s2":
		default:
			return errors.Newf(errors.ErrCodeInvalidConfig, "codec must be one of none, zlib, s2, got %q", codec)
		}
	}

	if c.PrefetchThreshold < 0 || c.PrefetchThreshold > 1 {
		return errors.Newf(errors.ErrCodeInvalidConfig,
			"prefetch_threshold must be in [0, 1], got %v", c.PrefetchThreshold)
	}
	if c.PrefetchFanout < 0 {
		return errors.Newf(errors.ErrCodeInvalidConfig, "prefetch_fanout must be >= 0")
	}
	if c.Workers.Count <= 0 {
		return errors.Newf(errors.ErrCodeInvalidConfig, "workers.count must be greater than 0")
	}
	if c.Workers.QueueDepth <= 0 {
		return errors.Newf(errors.ErrCodeInvalidConfig, "workers.queue_depth must be greater than 0")
	}
	if c.DefaultTTL < 0 {
		return errors.Newf(errors.ErrCodeInvalidConfig, "default_ttl must not be negative")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.EqualFold(c.Logging.Level, level) {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return errors.Newf(errors.ErrCodeInvalidConfig,
			"invalid logging.level: %s (must be one of: %s)",
			c.Logging.Level, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// L1Bytes returns the parsed L1 capacity. Call Validate first.
func (c *Configuration) L1Bytes() int64 {
	n, _ := ParseSize(c.L1.MaxSize)
	return n
}

// L2Bytes returns the parsed L2 capacity. Call Validate first.
func (c *Configuration) L2Bytes() int64 {
	n, _ := ParseSize(c.L2.MaxSize)
	return n
}

// BlobThresholdBytes returns the parsed blob threshold, or the router
// default when unset.
func (c *Configuration) BlobThresholdBytes() int64 {
	if c.Remote.BlobThreshold == "" {
		return remote.DefaultBlobThreshold
	}
	n, _ := ParseSize(c.Remote.BlobThreshold)
	return n
}

// ParseSize parses human-readable byte sizes: plain numbers are literal
// bytes, otherwise a B/KB/MB/GB suffix applies.
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	if val, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
		return val, nil
	}

	upper := strings.ToUpper(sizeStr)
	units := []struct {
		suffix     string
		multiplier int64
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(upper, u.suffix) {
			numStr := strings.TrimSuffix(upper, u.suffix)
			if val, err := strconv.ParseFloat(numStr, 64); err == nil {
				return int64(val * float64(u.multiplier)), nil
			}
		}
	}

	return 0, fmt.Errorf("invalid size format: %s", sizeStr)
}
