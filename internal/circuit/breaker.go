// Package circuit implements the circuit breaker guarding the remote tier.
// When the backend fails persistently the breaker opens and rejects calls
// immediately, so tier walks degrade to fast local misses instead of
// stacking up timeouts.
package circuit

import (
	"sync"
	"time"

	"github.com/stratacache/stratacache/pkg/errors"
)

// State represents the breaker state.
type State int

const (
	// StateClosed passes requests through.
	StateClosed State = iota
	// StateOpen rejects requests outright.
	StateOpen
	// StateHalfOpen allows a limited number of probes.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is returned while the breaker rejects requests.
var ErrOpen = errors.New(errors.ErrCodeConnectionFailed, "remote store circuit open")

// Config tunes the breaker.
type Config struct {
	// MaxProbes is how many requests may pass while half-open.
	MaxProbes uint32 `yaml:"max_probes"`

	// Interval is the closed-state window after which counts reset.
	Interval time.Duration `yaml:"interval"`

	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration `yaml:"cooldown"`

	// TripAfter is the consecutive-failure count that opens the breaker.
	TripAfter uint32 `yaml:"trip_after"`

	// OnStateChange is called on every transition.
	OnStateChange func(from, to State) `yaml:"-"`
}

// DefaultConfig returns the breaker settings used for the remote tier.
func DefaultConfig() Config {
	return Config{
		MaxProbes: 1,
		Interval:  30 * time.Second,
		Cooldown:  10 * time.Second,
		TripAfter: 5,
	}
}

// Counts holds the request tallies for the current window.
type Counts struct {
	Requests            uint32
	Successes           uint32
	Failures            uint32
	ConsecutiveFailures uint32
}

// Breaker is the circuit breaker. Safe for concurrent use.
type Breaker struct {
	config  Config
	nowFunc func() time.Time

	mu     sync.Mutex
	state  State
	counts Counts
	expiry time.Time
}

// New creates a breaker, applying defaults for zero values.
func New(config Config) *Breaker {
	if config.MaxProbes == 0 {
		config.MaxProbes = 1
	}
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 10 * time.Second
	}
	if config.TripAfter == 0 {
		config.TripAfter = 5
	}
	b := &Breaker{
		config:  config,
		nowFunc: time.Now,
		state:   StateClosed,
	}
	b.expiry = b.nowFunc().Add(config.Interval)
	return b
}

// SetClock overrides the breaker's clock. Test seam.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nowFunc = now
}

// Allow reports whether a request may proceed. The caller must report the
// outcome through Record.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	state := b.currentState(now)

	if state == StateOpen {
		return ErrOpen
	}
	if state == StateHalfOpen && b.counts.Requests >= b.config.MaxProbes {
		return ErrOpen
	}

	b.counts.Requests++
	return nil
}

// Record reports a request outcome.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	state := b.currentState(now)

	if err == nil {
		b.counts.Successes++
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen {
			b.setState(StateClosed, now)
		}
		return
	}

	b.counts.Failures++
	b.counts.ConsecutiveFailures++
	switch state {
	case StateClosed:
		if b.counts.ConsecutiveFailures >= b.config.TripAfter {
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		b.setState(StateOpen, now)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(b.nowFunc())
}

// Snapshot returns the current window's counts.
func (b *Breaker) Snapshot() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// currentState applies window expiry transitions. Caller holds the lock.
func (b *Breaker) currentState(now time.Time) State {
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.counts = Counts{}
			b.expiry = now.Add(b.config.Interval)
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.setState(StateHalfOpen, now)
		}
	}
	return b.state
}

func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	b.counts = Counts{}

	switch state {
	case StateClosed:
		b.expiry = now.Add(b.config.Interval)
	case StateOpen:
		b.expiry = now.Add(b.config.Cooldown)
	default:
		b.expiry = time.Time{}
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(prev, state)
	}
}
