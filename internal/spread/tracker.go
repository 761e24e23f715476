// Package spread maintains rolling statistics over the price difference of a
// correlated instrument pair.
package spread

import (
	"math"

	"tapereader/internal/config"
)

// Statistics is the derived view over the rolling spread window. All fields
// except Current and Samples stay zero until MinSamples observations exist,
// which also keeps z-score math clear of divide-by-zero.
type Statistics struct {
	Current float64
	Mean    float64
	Std     float64
	ZScore  float64
	Min     float64
	Max     float64
	Samples int
}

// Ready reports whether enough samples back the statistical fields.
func (s Statistics) Ready(minSamples int) bool {
	return s.Samples >= minSamples
}

// Leader identifies which leg of the pair is driving the current move.
type Leader int

const (
	// LeaderNone means neither leg dominates.
	LeaderNone Leader = iota
	// LeaderA means the first leg is moving hardest.
	LeaderA
	// LeaderB means the second leg is moving hardest.
	LeaderB
)

// Tracker owns the rolling spread and mid-price windows. It is written by
// exactly one goroutine per tick; reads return copies.
type Tracker struct {
	cfg config.Statistics

	spreads []float64
	midA    []float64
	midB    []float64
}

// NewTracker builds a tracker from the statistics configuration.
func NewTracker(cfg config.Statistics) *Tracker {
	return &Tracker{
		cfg:     cfg,
		spreads: make([]float64, 0, cfg.HistorySize),
		midA:    make([]float64, 0, cfg.LeaderHistorySize),
		midB:    make([]float64, 0, cfg.LeaderHistorySize),
	}
}

// Update appends one observation to each rolling window, evicting the oldest
// entries once the configured capacity is reached.
func (t *Tracker) Update(spread, midA, midB float64) {
	t.spreads = appendBounded(t.spreads, spread, t.cfg.HistorySize)
	t.midA = appendBounded(t.midA, midA, t.cfg.LeaderHistorySize)
	t.midB = appendBounded(t.midB, midB, t.cfg.LeaderHistorySize)
}

func appendBounded(window []float64, v float64, capacity int) []float64 {
	window = append(window, v)
	if capacity > 0 && len(window) > capacity {
		copy(window, window[len(window)-capacity:])
		window = window[:capacity]
	}
	return window
}

// Len returns the number of spread samples currently held.
func (t *Tracker) Len() int { return len(t.spreads) }

// History returns a copy of the spread window, oldest first.
func (t *Tracker) History() []float64 {
	out := make([]float64, len(t.spreads))
	copy(out, t.spreads)
	return out
}

// Statistics derives current/mean/std/z-score/min/max from the spread window.
// Calling it twice without an Update in between yields identical values.
func (t *Tracker) Statistics() Statistics {
	n := len(t.spreads)
	stats := Statistics{Samples: n}
	if n == 0 {
		return stats
	}
	stats.Current = t.spreads[n-1]
	if n < t.cfg.MinSamples {
		return stats
	}

	var sum float64
	lo, hi := t.spreads[0], t.spreads[0]
	for _, v := range t.spreads {
		sum += v
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range t.spreads {
		d := v - mean
		sq += d * d
	}
	std := 0.0
	if n > 1 {
		std = math.Sqrt(sq / float64(n-1))
	}

	stats.Mean = mean
	stats.Std = std
	stats.Min = lo
	stats.Max = hi
	if std > 0 {
		stats.ZScore = (stats.Current - mean) / std
	}
	return stats
}

// Leadership compares each leg's move over the configured lookback. The leg
// whose move exceeds the other's by the imbalance ratio is leading; with
// fewer samples than the lookback the result is always LeaderNone.
func (t *Tracker) Leadership() Leader {
	lb := t.cfg.LeaderLookback
	if lb <= 0 || len(t.midA) < lb || len(t.midB) < lb {
		return LeaderNone
	}
	moveA := t.midA[len(t.midA)-1] - t.midA[len(t.midA)-lb]
	moveB := t.midB[len(t.midB)-1] - t.midB[len(t.midB)-lb]

	switch {
	case math.Abs(moveA) > math.Abs(moveB)*t.cfg.LeaderRatio:
		return LeaderA
	case math.Abs(moveB) > math.Abs(moveA)*t.cfg.LeaderRatio:
		return LeaderB
	default:
		return LeaderNone
	}
}
