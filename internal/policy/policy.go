// Package policy implements the eviction scoring strategies the tiers use
// to choose victims. A policy assigns each resident item a score; eviction
// removes the lowest-scored item first, breaking exact ties by insertion
// sequence so behavior is reproducible.
package policy

import (
	"math"
	"time"

	"github.com/stratacache/stratacache/pkg/errors"
	"github.com/stratacache/stratacache/pkg/types"
)

// Name identifies an eviction strategy.
type Name string

const (
	// LRU scores by last access time.
	LRU Name = "lru"
	// LFU scores by access count.
	LFU Name = "lfu"
	// Adaptive blends recency, frequency, and size.
	Adaptive Name = "adaptive"
	// Predictive scores by predicted next access time.
	Predictive Name = "predictive"
	// Intelligent blends recency, frequency, prediction, and size
	// efficiency.
	Intelligent Name = "intelligent"
)

// Policy scores items for eviction. Lower scores evict first.
type Policy interface {
	// Score returns the eviction score for item at the given time.
	Score(item *types.Item, now time.Time) float64
	// Name returns the policy's configured name.
	Name() Name
}

// New builds the named policy. Predictive and intelligent policies consult
// the predictor; passing nil degrades them to their no-prediction behavior.
func New(name Name, predictor types.Predictor) (Policy, error) {
	switch name {
	case LRU:
		return lruPolicy{}, nil
	case LFU:
		return lfuPolicy{}, nil
	case Adaptive:
		return adaptivePolicy{}, nil
	case Predictive:
		return predictivePolicy{predictor: predictor}, nil
	case Intelligent:
		return intelligentPolicy{predictor: predictor}, nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "unknown eviction policy %q", name)
	}
}

type lruPolicy struct{}

func (lruPolicy) Name() Name { return LRU }

func (lruPolicy) Score(item *types.Item, _ time.Time) float64 {
	return epochSeconds(item.LastAccessedAt)
}

type lfuPolicy struct{}

func (lfuPolicy) Name() Name { return LFU }

func (lfuPolicy) Score(item *types.Item, _ time.Time) float64 {
	return float64(item.AccessCount)
}

type adaptivePolicy struct{}

func (adaptivePolicy) Name() Name { return Adaptive }

// Score blends frequency and recency positively with size as a penalty, so
// large rarely-touched items leave first.
func (adaptivePolicy) Score(item *types.Item, _ time.Time) float64 {
	return 0.4*float64(item.AccessCount) +
		0.4*epochSeconds(item.LastAccessedAt) -
		0.2*float64(item.SizeBytes)
}

type predictivePolicy struct {
	predictor types.Predictor
}

func (predictivePolicy) Name() Name { return Predictive }

// Score is the predicted next-access epoch. Items with no prediction score
// as now, placing them behind anything expected to be read later.
func (p predictivePolicy) Score(item *types.Item, now time.Time) float64 {
	if p.predictor != nil {
		if next, ok := p.predictor.PredictNextAccess(item.Key); ok {
			return epochSeconds(next)
		}
	}
	return epochSeconds(now)
}

type intelligentPolicy struct {
	predictor types.Predictor
}

func (intelligentPolicy) Name() Name { return Intelligent }

// Score combines seconds-since-access, access count, seconds until the
// predicted next access, and accesses-per-byte. Unpredicted items take an
// infinite prediction term: under this blend they are retained over
// predicted ones, and among themselves ties fall to the sequence number.
func (p intelligentPolicy) Score(item *types.Item, now time.Time) float64 {
	recency := now.Sub(item.LastAccessedAt).Seconds()
	frequency := float64(item.AccessCount)

	prediction := math.Inf(1)
	if p.predictor != nil {
		if next, ok := p.predictor.PredictNextAccess(item.Key); ok {
			prediction = next.Sub(now).Seconds()
		}
	}

	sizeEfficiency := float64(item.AccessCount) / float64(item.SizeBytes+1)

	return 0.3*recency - 0.2*frequency + 0.3*prediction - 0.2*sizeEfficiency
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
