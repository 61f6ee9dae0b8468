package policy

import (
	"math"
	"testing"
	"time"

	"github.com/stratacache/stratacache/pkg/types"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func item(key string, lastAccess time.Time, count, size int64) *types.Item {
	return &types.Item{
		Key:            key,
		LastAccessedAt: lastAccess,
		AccessCount:    count,
		SizeBytes:      size,
	}
}

// stubPredictor returns fixed next-access times per key.
type stubPredictor struct {
	next map[string]time.Time
}

func (s stubPredictor) Update(string, time.Time) {}

func (s stubPredictor) PredictNextAccess(key string) (time.Time, bool) {
	t, ok := s.next[key]
	return t, ok
}

func (s stubPredictor) TopCorrelated(string, int, float64) []string { return nil }

func (s stubPredictor) Forget(string) {}

func TestNew(t *testing.T) {
	for _, name := range []Name{LRU, LFU, Adaptive, Predictive, Intelligent} {
		p, err := New(name, nil)
		if err != nil {
			t.Errorf("New(%s): %v", name, err)
			continue
		}
		if p.Name() != name {
			t.Errorf("Name() = %s, want %s", p.Name(), name)
		}
	}

	if _, err := New("fifo", nil); err == nil {
		t.Error("expected error for unknown policy name")
	}
}

func TestLRUScore(t *testing.T) {
	p, _ := New(LRU, nil)
	older := item("old", now.Add(-time.Hour), 100, 10)
	newer := item("new", now.Add(-time.Minute), 1, 10)

	if p.Score(older, now) >= p.Score(newer, now) {
		t.Error("LRU must score least-recently-accessed item lowest")
	}
}

func TestLFUScore(t *testing.T) {
	p, _ := New(LFU, nil)
	cold := item("cold", now, 2, 10)
	hot := item("hot", now.Add(-time.Hour), 50, 10)

	if p.Score(cold, now) >= p.Score(hot, now) {
		t.Error("LFU must score least-frequently-accessed item lowest")
	}
}

func TestAdaptiveScore(t *testing.T) {
	p, _ := New(Adaptive, nil)

	// Same recency and frequency: the larger item scores lower.
	small := item("small", now, 5, 100)
	big := item("big", now, 5, 1<<20)
	if p.Score(big, now) >= p.Score(small, now) {
		t.Error("adaptive must penalize size")
	}

	// Exact weights.
	it := item("k", now, 10, 500)
	want := 0.4*10 + 0.4*(float64(now.UnixNano())/1e9) - 0.2*500
	if got := p.Score(it, now); math.Abs(got-want) > 1e-6 {
		t.Errorf("adaptive score = %v, want %v", got, want)
	}
}

func TestPredictiveScore(t *testing.T) {
	pred := stubPredictor{next: map[string]time.Time{
		"soon":  now.Add(time.Minute),
		"later": now.Add(time.Hour),
	}}
	p, _ := New(Predictive, pred)

	soon := item("soon", now, 1, 10)
	later := item("later", now, 1, 10)
	unknown := item("unknown", now, 1, 10)

	if p.Score(later, now) <= p.Score(soon, now) {
		t.Error("item expected sooner must outscore item expected later")
	}
	// No prediction scores as now: lowest of the three.
	if p.Score(unknown, now) >= p.Score(soon, now) {
		t.Error("unpredicted item must evict before predicted ones")
	}
}

func TestPredictiveScore_NilPredictor(t *testing.T) {
	p, _ := New(Predictive, nil)
	got := p.Score(item("k", now, 1, 10), now)
	want := float64(now.UnixNano()) / 1e9
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("score without predictor = %v, want now epoch %v", got, want)
	}
}

func TestIntelligentScore(t *testing.T) {
	pred := stubPredictor{next: map[string]time.Time{
		"predicted": now.Add(10 * time.Minute),
	}}
	p, _ := New(Intelligent, pred)

	predicted := item("predicted", now.Add(-time.Minute), 4, 400)
	unpredicted := item("unpredicted", now.Add(-time.Minute), 4, 400)

	// The infinite prediction term retains unpredicted items over
	// predicted ones.
	if !math.IsInf(p.Score(unpredicted, now), 1) {
		t.Error("unpredicted item must carry an infinite prediction term")
	}
	if math.IsInf(p.Score(predicted, now), 0) {
		t.Error("predicted item must have a finite score")
	}

	// Exact weights for the predicted item: recency 60s, frequency 4,
	// prediction 600s, size efficiency 4/401 accesses per byte.
	want := 0.3*60 - 0.2*4 + 0.3*600 - 0.2*(4.0/401.0)
	if got := p.Score(predicted, now); math.Abs(got-want) > 1e-6 {
		t.Errorf("intelligent score = %v, want %v", got, want)
	}
}

func TestIntelligentScore_SizeEfficiency(t *testing.T) {
	next := now.Add(10 * time.Minute)
	pred := stubPredictor{next: map[string]time.Time{
		"small": next,
		"big":   next,
	}}
	p, _ := New(Intelligent, pred)

	// Equal recency, frequency, and prediction; only size differs. The
	// small item packs more accesses per byte, so the efficiency penalty
	// scores it below the large one and it evicts first.
	small := item("small", now, 10, 100)
	big := item("big", now, 10, 1<<20)

	if p.Score(small, now) >= p.Score(big, now) {
		t.Errorf("small item must score below large: small=%v big=%v",
			p.Score(small, now), p.Score(big, now))
	}
}

func TestIntelligentScore_ZeroAccessCount(t *testing.T) {
	p, _ := New(Intelligent, stubPredictor{})
	it := item("k", now, 0, 1<<20)
	// Never-read items have zero size efficiency; the score must stay
	// well defined.
	if got := p.Score(it, now); math.IsNaN(got) {
		t.Error("score must not be NaN for zero access count")
	}
}
