// Package retry provides retry logic with exponential backoff for remote
// store writes.
package retry

import (
	"context"
	stderr "errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/stratacache/stratacache/pkg/errors"
)

// Config defines retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier grows the delay after each attempt.
	Multiplier float64 `yaml:"multiplier"`

	// Jitter randomizes delays to avoid thundering herds.
	Jitter bool `yaml:"jitter"`

	// RetryableCodes lists error codes that trigger a retry in addition to
	// errors whose Retryable flag is set.
	RetryableCodes []errors.ErrorCode `yaml:"retryable_codes"`

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-"`
}

// DefaultConfig returns the retry configuration used for remote writes.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryableCodes: []errors.ErrorCode{
			errors.ErrCodeConnectionFailed,
			errors.ErrCodeConnectionTimeout,
			errors.ErrCodeFlushFailed,
		},
	}
}

// Retryer executes functions with exponential backoff.
type Retryer struct {
	config Config
}

// New creates a Retryer, applying defaults for zero values.
func New(config Config) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 50 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 2 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	return &Retryer{config: config}
}

// Do executes fn with retry logic and context support.
func (r *Retryer) Do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("operation canceled: %w", ctx.Err())
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.shouldRetry(err, attempt) {
			return err
		}

		if attempt < r.config.MaxAttempts {
			delay := r.delay(attempt)
			if r.config.OnRetry != nil {
				r.config.OnRetry(attempt, err, delay)
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("operation canceled after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", r.config.MaxAttempts, lastErr)
}

func (r *Retryer) shouldRetry(err error, attempt int) bool {
	if attempt >= r.config.MaxAttempts {
		return false
	}

	var ce *errors.CacheError
	if stderr.As(err, &ce) {
		if ce.Retryable {
			return true
		}
		for _, code := range r.config.RetryableCodes {
			if ce.Code == code {
				return true
			}
		}
	}
	return false
}

func (r *Retryer) delay(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		d += d * 0.2 * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}
