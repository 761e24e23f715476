// Package flow summarizes aggression per instrument: normalized pressure,
// cumulative delta and cross-leg divergence.
package flow

import (
	"tapereader/internal/config"
	"tapereader/internal/market"
)

// Side labels for the aggregate flow summary.
const (
	SideBuy     = "BUY"
	SideSell    = "SELL"
	SideNeutral = "NEUTRAL"
)

// Strength labels ordered from weakest reading up.
const (
	StrengthWeak       = "WEAK"
	StrengthModerate   = "MODERATE"
	StrengthStrong     = "STRONG"
	StrengthAbsorption = "ABSORPTION"
)

// Analysis is one snapshot of the flow state across both legs.
type Analysis struct {
	// Pressure per symbol in [-1, 1]; positive means buy aggression.
	Pressure    map[string]float64
	Delta       map[string]float64
	Divergence  bool
	Absorption  bool
	Dominant    string
	Strength    string
	AvgPressure float64
}

// Analyzer keeps one bounded trade window and a cumulative session delta per
// tracked symbol.
type Analyzer struct {
	cfg     config.Flow
	symbols []string

	windows map[string][]market.Trade
	delta   map[string]float64
}

// NewAnalyzer tracks the given symbols.
func NewAnalyzer(cfg config.Flow, symbols ...string) *Analyzer {
	a := &Analyzer{
		cfg:     cfg,
		symbols: symbols,
		windows: make(map[string][]market.Trade, len(symbols)),
		delta:   make(map[string]float64, len(symbols)),
	}
	for _, s := range symbols {
		a.windows[s] = nil
		a.delta[s] = 0
	}
	return a
}

// Analyze folds new trades into the per-symbol windows and returns the
// refreshed summary. Trades for untracked symbols are ignored.
func (a *Analyzer) Analyze(trades []market.Trade) Analysis {
	for _, tr := range trades {
		window, tracked := a.windows[tr.Symbol]
		if !tracked {
			continue
		}
		window = append(window, tr)
		if len(window) > a.cfg.WindowSize {
			window = window[len(window)-a.cfg.WindowSize:]
		}
		a.windows[tr.Symbol] = window

		vol := tr.EffectiveVolume()
		if tr.Side == market.SideBuy {
			a.delta[tr.Symbol] += vol
		} else {
			a.delta[tr.Symbol] -= vol
		}
	}

	analysis := Analysis{
		Pressure: make(map[string]float64, len(a.symbols)),
		Delta:    make(map[string]float64, len(a.symbols)),
		Dominant: SideNeutral,
		Strength: StrengthWeak,
	}

	var sum float64
	for _, s := range a.symbols {
		p := a.pressure(s)
		analysis.Pressure[s] = p
		analysis.Delta[s] = a.delta[s]
		sum += p
	}
	if len(a.symbols) > 0 {
		analysis.AvgPressure = sum / float64(len(a.symbols))
	}
	if len(a.symbols) == 2 {
		diff := analysis.Pressure[a.symbols[0]] - analysis.Pressure[a.symbols[1]]
		if diff < 0 {
			diff = -diff
		}
		analysis.Divergence = diff > a.cfg.DivergenceThreshold
	}
	analysis.Absorption = a.detectAbsorption()

	switch {
	case analysis.AvgPressure > 0.3:
		analysis.Dominant = SideBuy
	case analysis.AvgPressure < -0.3:
		analysis.Dominant = SideSell
	}

	abs := analysis.AvgPressure
	if abs < 0 {
		abs = -abs
	}
	switch {
	case analysis.Absorption:
		analysis.Strength = StrengthAbsorption
	case abs > 0.7:
		analysis.Strength = StrengthStrong
	case abs > 0.4:
		analysis.Strength = StrengthModerate
	}

	return analysis
}

// pressure is (buy-sell)/total volume over the window, or zero with fewer
// than 10 trades.
func (a *Analyzer) pressure(symbol string) float64 {
	trades := a.windows[symbol]
	if len(trades) < 10 {
		return 0
	}
	var buy, sell float64
	for _, tr := range trades {
		if tr.Side == market.SideBuy {
			buy += tr.EffectiveVolume()
		} else {
			sell += tr.EffectiveVolume()
		}
	}
	total := buy + sell
	if total == 0 {
		return 0
	}
	return (buy - sell) / total
}

// detectAbsorption looks for heavy volume with almost no price movement in
// any symbol's recent trades.
func (a *Analyzer) detectAbsorption() bool {
	for _, trades := range a.windows {
		if len(trades) < 20 {
			continue
		}
		recent := trades[len(trades)-20:]

		var total float64
		lo, hi := recent[0].Price, recent[0].Price
		var priceSum float64
		for _, tr := range recent {
			total += tr.EffectiveVolume()
			priceSum += tr.Price
			if tr.Price < lo {
				lo = tr.Price
			}
			if tr.Price > hi {
				hi = tr.Price
			}
		}
		if total < a.cfg.AbsorptionThreshold {
			continue
		}
		avg := priceSum / float64(len(recent))
		if avg > 0 && (hi-lo)/avg < 0.001 {
			return true
		}
	}
	return false
}

// ResetDelta clears the cumulative session deltas.
func (a *Analyzer) ResetDelta() {
	for s := range a.delta {
		a.delta[s] = 0
	}
}
