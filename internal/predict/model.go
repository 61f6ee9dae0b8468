// Package predict models per-key access behavior: inter-access intervals,
// hourly seasonality, and pairwise correlation between keys. Placement,
// eviction scoring, and prefetch all consume it. Prediction failures are
// soft: any degenerate series yields "no prediction" or zero correlation,
// never an error.
package predict

import (
	"math"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultMaxHistory bounds the per-key timestamp ring. The original
	// design kept unbounded lists; bounding them trades a sliver of model
	// fidelity for a hard memory ceiling.
	DefaultMaxHistory = 256

	// correlationWindow is how recently another key must have been accessed
	// to be included in correlation recomputation.
	correlationWindow = time.Hour

	// seasonalMinSamples is the observation count required before the
	// hourly histogram participates in predictions.
	seasonalMinSamples = 24

	hoursPerDay = 24
)

// Model tracks access history and derives predictions from it.
type Model struct {
	mu         sync.RWMutex
	maxHistory int
	nowFunc    func() time.Time

	history      map[string][]time.Time
	correlations map[string]map[string]float64
	seasonal     map[string]*[hoursPerDay]float64
}

// Option configures a Model.
type Option func(*Model)

// WithMaxHistory bounds the per-key timestamp ring.
func WithMaxHistory(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.maxHistory = n
		}
	}
}

// WithClock overrides the model's clock. Test seam.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		m.nowFunc = now
	}
}

// NewModel creates an empty model.
func NewModel(opts ...Option) *Model {
	m := &Model{
		maxHistory:   DefaultMaxHistory,
		nowFunc:      time.Now,
		history:      make(map[string][]time.Time),
		correlations: make(map[string]map[string]float64),
		seasonal:     make(map[string]*[hoursPerDay]float64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Update records an access to key at ts, then recomputes the key's
// correlations against every other key seen within the last hour and, once
// enough samples exist, its hourly histogram.
func (m *Model) Update(key string, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := append(m.history[key], ts)
	if len(h) > m.maxHistory {
		h = h[len(h)-m.maxHistory:]
	}
	m.history[key] = h

	m.recomputeCorrelations(key, ts)
	m.recomputeSeasonal(key)
}

// PredictNextAccess estimates when key will next be read. It requires at
// least two prior accesses; the inter-access intervals are combined with an
// exponentially-weighted average favoring recent intervals, then scaled by
// the seasonal factor for the current hour.
func (m *Model) PredictNextAccess(key string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := m.history[key]
	if len(h) < 2 {
		return time.Time{}, false
	}

	intervals := make([]float64, len(h)-1)
	for i := 1; i < len(h); i++ {
		intervals[i-1] = h[i].Sub(h[i-1]).Seconds()
	}

	predicted := weightedInterval(intervals) * m.seasonalFactor(key)
	if math.IsNaN(predicted) || math.IsInf(predicted, 0) || predicted < 0 {
		return time.Time{}, false
	}

	last := h[len(h)-1]
	return last.Add(time.Duration(predicted * float64(time.Second))), true
}

// Correlation returns the most recently computed correlation coefficient
// between two keys, zero when none exists.
func (m *Model) Correlation(a, b string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.correlations[a][b]
}

// TopCorrelated returns up to n keys correlated with key above min,
// strongest first. Ties break by key name to keep ordering reproducible.
func (m *Model) TopCorrelated(key string, n int, min float64) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		key  string
		coef float64
	}
	candidates := make([]scored, 0, len(m.correlations[key]))
	for other, coef := range m.correlations[key] {
		if coef > min {
			candidates = append(candidates, scored{other, coef})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].coef != candidates[j].coef {
			return candidates[i].coef > candidates[j].coef
		}
		return candidates[i].key < candidates[j].key
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	keys := make([]string, len(candidates))
	for i, c := range candidates {
		keys[i] = c.key
	}
	return keys
}

// Forget drops all state for a key.
func (m *Model) Forget(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.history, key)
	delete(m.seasonal, key)
	delete(m.correlations, key)
	for _, inner := range m.correlations {
		delete(inner, key)
	}
}

// recomputeCorrelations refreshes key's coefficients against the cohort of
// keys accessed within the correlation window. Caller holds the lock.
func (m *Model) recomputeCorrelations(key string, ts time.Time) {
	cutoff := ts.Add(-correlationWindow)
	series := m.history[key]

	for other, otherSeries := range m.history {
		if other == key || len(otherSeries) == 0 {
			continue
		}
		if otherSeries[len(otherSeries)-1].Before(cutoff) {
			continue
		}

		coef := pearson(series, otherSeries)
		m.setCorrelation(key, other, coef)
		m.setCorrelation(other, key, coef)
	}
}

func (m *Model) setCorrelation(a, b string, coef float64) {
	inner, ok := m.correlations[a]
	if !ok {
		inner = make(map[string]float64)
		m.correlations[a] = inner
	}
	inner[b] = coef
}

// recomputeSeasonal rebuilds the hourly histogram once enough samples
// exist. Caller holds the lock.
func (m *Model) recomputeSeasonal(key string) {
	h := m.history[key]
	if len(h) < seasonalMinSamples {
		return
	}

	var hist [hoursPerDay]float64
	for _, ts := range h {
		hist[ts.Hour()]++
	}
	total := float64(len(h))
	for i := range hist {
		hist[i] /= total
	}
	m.seasonal[key] = &hist
}

// seasonalFactor normalizes the current hour's probability so an average
// hour yields 1.0. Caller holds at least the read lock.
func (m *Model) seasonalFactor(key string) float64 {
	hist := m.seasonal[key]
	if hist == nil {
		return 1.0
	}
	return hist[m.nowFunc().Hour()] * hoursPerDay
}

// weightedInterval applies weights exp(linspace(-1,0,n)) across intervals,
// favoring the most recent.
func weightedInterval(intervals []float64) float64 {
	n := len(intervals)
	if n == 0 {
		return 0
	}

	var weightSum, acc float64
	for i, iv := range intervals {
		var x float64
		if n == 1 {
			x = -1
		} else {
			x = -1 + float64(i)/float64(n-1)
		}
		w := math.Exp(x)
		weightSum += w
		acc += w * iv
	}
	if weightSum == 0 {
		return 0
	}
	return acc / weightSum
}

// pearson computes the correlation of two access-time series aligned to
// their common earliest timestamp and truncated to the shorter length.
// Degenerate series yield zero.
func pearson(a, b []time.Time) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}

	epoch := a[0]
	if b[0].Before(epoch) {
		epoch = b[0]
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		xs[i] = a[i].Sub(epoch).Seconds()
		ys[i] = b[i].Sub(epoch).Seconds()
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}

	coef := cov / math.Sqrt(varX*varY)
	if math.IsNaN(coef) || math.IsInf(coef, 0) {
		return 0
	}
	if coef > 1 {
		coef = 1
	}
	if coef < -1 {
		coef = -1
	}
	return coef
}
