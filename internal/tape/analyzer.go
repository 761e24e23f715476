// Package tape follows aggression flow on the time-and-sales stream and
// emits directional signals when one side dominates.
package tape

import (
	"fmt"
	"math"
	"time"

	"tapereader/internal/config"
	"tapereader/internal/market"
	"tapereader/internal/signal"
	"tapereader/internal/util"
)

// Pressure summarizes aggression counts and volume over the analysis window.
type Pressure struct {
	Dominant   market.Side
	CountRatio float64
	BuyCount   int
	SellCount  int
	BuyVolume  float64
	SellVolume float64
}

// SessionContext is the whole-session flow bias, independent of the recent
// analysis window.
type SessionContext struct {
	Bias     string
	Strength float64
	BuyPct   float64
	SellPct  float64
	Volume   float64
	Trades   int
}

// Session bias labels.
const (
	BiasBullish      = "BULLISH"
	BiasBearish      = "BEARISH"
	BiasNeutral      = "NEUTRAL"
	BiasInsufficient = "INSUFFICIENT"
)

// Statistics is the analyzer's session report.
type Statistics struct {
	HasData         bool
	SessionTrades   int
	SessionBuyPct   float64
	SessionSellPct  float64
	SessionMinutes  float64
	TradesPerMinute float64
	RecentTrades    int
	RecentBuyPct    float64
	RecentSellPct   float64
	TotalSignals    int
}

type dedupKey struct {
	timestamp string
	symbol    string
	side      market.Side
	price     float64
}

// Analyzer accumulates the session's trades and reads pressure off the most
// recent window. Duplicated feed deliveries are filtered against the last few
// stored trades.
type Analyzer struct {
	cfg   config.Tape
	mkt   config.Market
	clock util.Clock

	trades []market.Trade

	lastSignal   time.Time
	hasSignal    bool
	totalSignals int
	sessionStart time.Time
}

// NewAnalyzer builds a tape analyzer. A nil clock means wall time.
func NewAnalyzer(cfg config.Tape, mkt config.Market, clock util.Clock) *Analyzer {
	if clock == nil {
		clock = util.SystemClock()
	}
	return &Analyzer{
		cfg:          cfg,
		mkt:          mkt,
		clock:        clock,
		sessionStart: clock.Now(),
	}
}

const dedupLookback = 10

// Ingest appends trades the analyzer has not seen in its recent tail.
// Feeds redeliver overlapping windows, so exact key matches against the last
// few trades are dropped.
func (a *Analyzer) Ingest(trades []market.Trade) {
	for _, tr := range trades {
		key := dedupKey{tr.Timestamp, tr.Symbol, tr.Side, tr.Price}
		if a.seenRecently(key) {
			continue
		}
		a.trades = append(a.trades, tr)
	}
}

func (a *Analyzer) seenRecently(key dedupKey) bool {
	start := len(a.trades) - dedupLookback
	if start < 0 {
		start = 0
	}
	for _, tr := range a.trades[start:] {
		if (dedupKey{tr.Timestamp, tr.Symbol, tr.Side, tr.Price}) == key {
			return true
		}
	}
	return false
}

// Analyze reads current pressure and emits a signal when a side dominates
// strongly enough. The reason explains a nil signal.
func (a *Analyzer) Analyze(currentPrice float64) (*signal.Signal, string) {
	total := len(a.trades)
	if total < a.cfg.MinTrades {
		return nil, fmt.Sprintf("waiting for trades: %d/%d", total, a.cfg.MinTrades)
	}

	now := a.clock.Now()
	if a.hasSignal {
		elapsed := now.Sub(a.lastSignal)
		cooldown := time.Duration(a.cfg.CooldownSec) * time.Second
		if elapsed < cooldown {
			return nil, fmt.Sprintf("in cooldown (%ds left)", int((cooldown-elapsed).Seconds()))
		}
	}

	pressure := a.pressure(a.recent())
	session := a.sessionContext()

	window, _ := config.FindWindow(a.cfg.TimeWindows, now)
	multiplier := window.Multiplier
	if multiplier == 0 {
		multiplier = 1.0
	}
	minRatio := a.cfg.MinPressureRatio * multiplier
	if pressure.CountRatio < minRatio {
		return nil, fmt.Sprintf("insufficient pressure: %.1fx < %.1fx (session: %s)",
			pressure.CountRatio, minRatio, session.Bias)
	}

	sig := a.buildSignal(pressure, currentPrice, window.ConfidenceAdj, now)
	a.lastSignal = now
	a.hasSignal = true
	a.totalSignals++

	reason := fmt.Sprintf("%s by tape reading: pressure %.1fx, confidence %d%% (session: %s %.0f%%)",
		sig.Action, pressure.CountRatio, sig.Confidence, session.Bias, session.Strength)
	return sig, reason
}

// recent returns the trailing analysis window.
func (a *Analyzer) recent() []market.Trade {
	if len(a.trades) > a.cfg.AnalysisWindow {
		return a.trades[len(a.trades)-a.cfg.AnalysisWindow:]
	}
	return a.trades
}

func (a *Analyzer) pressure(trades []market.Trade) Pressure {
	p := Pressure{}
	for _, tr := range trades {
		switch tr.Side {
		case market.SideBuy:
			p.BuyCount++
			p.BuyVolume += tr.EffectiveVolume()
		case market.SideSell:
			p.SellCount++
			p.SellVolume += tr.EffectiveVolume()
		}
	}
	if p.BuyCount > p.SellCount {
		p.Dominant = market.SideBuy
		p.CountRatio = float64(p.BuyCount) / math.Max(float64(p.SellCount), 1)
	} else {
		p.Dominant = market.SideSell
		p.CountRatio = float64(p.SellCount) / math.Max(float64(p.BuyCount), 1)
	}
	return p
}

const sessionContextMinTrades = 100

// sessionContext reads the whole session's volume bias. A 60% share of the
// aggressive volume marks a directional session.
func (a *Analyzer) sessionContext() SessionContext {
	if len(a.trades) < sessionContextMinTrades {
		return SessionContext{Bias: BiasInsufficient}
	}

	var buyVol, sellVol float64
	for _, tr := range a.trades {
		switch tr.Side {
		case market.SideBuy:
			buyVol += tr.EffectiveVolume()
		case market.SideSell:
			sellVol += tr.EffectiveVolume()
		}
	}
	total := buyVol + sellVol
	if total == 0 {
		return SessionContext{Bias: BiasNeutral}
	}

	ctx := SessionContext{
		BuyPct:  buyVol / total * 100,
		SellPct: sellVol / total * 100,
		Volume:  total,
		Trades:  len(a.trades),
	}
	switch {
	case ctx.BuyPct > 60:
		ctx.Bias = BiasBullish
		ctx.Strength = ctx.BuyPct - 50
	case ctx.SellPct > 60:
		ctx.Bias = BiasBearish
		ctx.Strength = ctx.SellPct - 50
	default:
		ctx.Bias = BiasNeutral
	}
	return ctx
}

func (a *Analyzer) confidence(ratio float64) int {
	switch {
	case ratio >= a.cfg.HighRatio:
		return a.cfg.HighConfidence
	case ratio >= a.cfg.MediumRatio:
		return a.cfg.MediumConfidence
	case ratio >= a.cfg.LowRatio:
		return a.cfg.LowConfidence
	default:
		return a.cfg.BaseConfidence
	}
}

func (a *Analyzer) buildSignal(p Pressure, price float64, confidenceAdj int, now time.Time) *signal.Signal {
	confidence := a.confidence(p.CountRatio) + confidenceAdj

	contracts := 5
	if confidence >= 70 {
		contracts = 10
	}

	action := signal.ActionSell
	if p.Dominant == market.SideBuy {
		action = signal.ActionBuy
	}

	entry := price
	var stop, target2 float64
	if action == signal.ActionBuy {
		stop = entry * (1 - a.cfg.RiskPercent/100)
		target2 = entry * (1 + a.cfg.TargetPercent/100)
	} else {
		stop = entry * (1 + a.cfg.RiskPercent/100)
		target2 = entry * (1 - a.cfg.TargetPercent/100)
	}
	target1 := entry + (target2-entry)/2

	pointValue := a.mkt.PointValue
	riskPoints := math.Abs(stop - entry)
	profitPoints := math.Abs(target2 - entry)

	return &signal.Signal{
		Action:         action,
		Asset:          a.mkt.Asset,
		Entry:          entry,
		Targets:        [2]float64{round2(target1), round2(target2)},
		Stop:           round2(stop),
		Confidence:     confidence,
		Contracts:      contracts,
		ExpectedProfit: profitPoints * pointValue * float64(contracts),
		Risk:           riskPoints * pointValue * float64(contracts),
		Source:         signal.SourceTape,
		Triggers:       []string{fmt.Sprintf("Flow %s %.1fx", p.Dominant, p.CountRatio)},
		Ts:             now,
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Trim drops the oldest trades once the store exceeds the configured cap.
func (a *Analyzer) Trim() {
	max := a.cfg.MaxStoredTrades
	if max > 0 && len(a.trades) > max {
		a.trades = append([]market.Trade(nil), a.trades[len(a.trades)-max:]...)
	}
}

// Reset clears the session for a new trading day.
func (a *Analyzer) Reset() {
	a.trades = nil
	a.hasSignal = false
	a.lastSignal = time.Time{}
	a.totalSignals = 0
	a.sessionStart = a.clock.Now()
}

// Len returns the number of stored trades.
func (a *Analyzer) Len() int { return len(a.trades) }

// Statistics reports session and recent-window flow percentages.
func (a *Analyzer) Statistics() Statistics {
	total := len(a.trades)
	if total == 0 {
		return Statistics{}
	}

	var buys, sells int
	for _, tr := range a.trades {
		switch tr.Side {
		case market.SideBuy:
			buys++
		case market.SideSell:
			sells++
		}
	}
	recent := a.recent()
	var rBuys, rSells int
	for _, tr := range recent {
		switch tr.Side {
		case market.SideBuy:
			rBuys++
		case market.SideSell:
			rSells++
		}
	}

	minutes := a.clock.Now().Sub(a.sessionStart).Minutes()
	return Statistics{
		HasData:         true,
		SessionTrades:   total,
		SessionBuyPct:   float64(buys) / float64(total) * 100,
		SessionSellPct:  float64(sells) / float64(total) * 100,
		SessionMinutes:  minutes,
		TradesPerMinute: float64(total) / math.Max(1, minutes),
		RecentTrades:    len(recent),
		RecentBuyPct:    float64(rBuys) / float64(len(recent)) * 100,
		RecentSellPct:   float64(rSells) / float64(len(recent)) * 100,
		TotalSignals:    a.totalSignals,
	}
}
