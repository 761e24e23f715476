package behavior

import (
	"fmt"

	"tapereader/internal/config"
	"tapereader/internal/market"
	"tapereader/internal/signal"
)

// ExhaustionDetector separates a genuine trend exhaustion from a temporary
// pullback using moving-average trend strength, retracement depth and
// price/volume divergence.
type ExhaustionDetector struct {
	cfg config.Exhaustion
}

// NewExhaustionDetector builds the detector.
func NewExhaustionDetector(cfg config.Exhaustion) *ExhaustionDetector {
	return &ExhaustionDetector{cfg: cfg}
}

type movement struct {
	losingMomentum bool
	retracement    float64
	divergence     bool
}

// Detect reports a pullback (continuation) or exhaustion (reversal) pattern,
// or nil when the market is sideways or inconclusive.
func (d *ExhaustionDetector) Detect(trades []market.Trade) *Record {
	if len(trades) < d.cfg.TrendLookback {
		return nil
	}

	trendDir, trendStrength := d.mainTrend(trades)
	if trendDir == "" {
		return nil
	}

	move := d.recentMovement(trades, trendDir)

	// Shallow retracement in a strong trend reads as a pullback to join.
	if trendStrength > 0.6 && move.retracement > 0 && move.retracement < d.cfg.PullbackMax {
		return &Record{
			Type:        TypePullback,
			Direction:   string(trendDir),
			Strength:    trendStrength * 100,
			Description: fmt.Sprintf("pullback in %s trend", trendDir),
		}
	}

	if move.losingMomentum && (move.retracement > d.cfg.RetracementDeep || move.divergence) {
		counter := signal.ActionSell
		if trendDir == signal.ActionSell {
			counter = signal.ActionBuy
		}
		return &Record{
			Type:        TypeExhaustion,
			Direction:   string(counter),
			Strength:    (1 - trendStrength) * 100,
			Description: fmt.Sprintf("%s trend exhaustion", trendDir),
		}
	}
	return nil
}

// mainTrend compares fast and slow moving averages over the trade prices.
// An empty direction means sideways.
func (d *ExhaustionDetector) mainTrend(trades []market.Trade) (signal.Action, float64) {
	if len(trades) < d.cfg.SlowMAPeriod {
		return "", 0
	}

	fast := meanPrice(trades[len(trades)-d.cfg.FastMAPeriod:])
	slow := meanPrice(trades[len(trades)-d.cfg.SlowMAPeriod:])
	if slow <= 0 {
		return "", 0
	}

	strength := (fast - slow) / slow
	if strength < 0 {
		strength = -strength
	}
	strength = min1(strength * 100)

	switch {
	case fast > slow*d.cfg.BuyMultiplier:
		return signal.ActionBuy, strength
	case fast < slow*d.cfg.SellMultiplier:
		return signal.ActionSell, strength
	default:
		return "", 0
	}
}

func (d *ExhaustionDetector) recentMovement(trades []market.Trade, trendDir signal.Action) movement {
	lo, hi := trades[0].Price, trades[0].Price
	for _, tr := range trades {
		if tr.Price < lo {
			lo = tr.Price
		}
		if tr.Price > hi {
			hi = tr.Price
		}
	}
	current := trades[len(trades)-1].Price

	var retracement float64
	if hi > lo {
		if trendDir == signal.ActionBuy {
			retracement = (hi - current) / (hi - lo)
		} else {
			retracement = (current - lo) / (hi - lo)
		}
	}

	recent := trades
	if len(trades) > d.cfg.MomentumLookback {
		recent = trades[len(trades)-d.cfg.MomentumLookback:]
	}
	priceUp := recent[len(recent)-1].Price > recent[0].Price

	var buyVol, sellVol float64
	for _, tr := range recent {
		switch tr.Side {
		case market.SideBuy:
			buyVol += tr.EffectiveVolume()
		case market.SideSell:
			sellVol += tr.EffectiveVolume()
		}
	}
	divergence := priceUp != (buyVol > sellVol)

	return movement{
		losingMomentum: retracement > d.cfg.RetracementMin || divergence,
		retracement:    retracement,
		divergence:     divergence,
	}
}

func meanPrice(trades []market.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	var sum float64
	for _, tr := range trades {
		sum += tr.Price
	}
	return sum / float64(len(trades))
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
