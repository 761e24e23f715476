package arb

import (
	"fmt"
	"time"

	"tapereader/internal/config"
	"tapereader/internal/market"
	"tapereader/internal/signal"
	"tapereader/internal/spread"
)

// Confirmation is a behavior observation offered to the analyzer as
// supporting evidence for a signal.
type Confirmation struct {
	Description string
	Strength    float64
}

// Analyzer owns the spread window for the pair and turns statistical
// dislocations into signals.
type Analyzer struct {
	mkt       config.Market
	val       config.Validation
	tracker   *spread.Tracker
	validator *Validator

	minSamples int
	generated  int
}

// NewAnalyzer wires the tracker and validator for the configured pair.
func NewAnalyzer(mkt config.Market, stats config.Statistics, val config.Validation) *Analyzer {
	return &Analyzer{
		mkt:        mkt,
		val:        val,
		tracker:    spread.NewTracker(stats),
		validator:  NewValidator(val, mkt.PointValue),
		minSamples: stats.MinSamples,
	}
}

// Observe records one spread sample built from both legs' mid prices and
// returns the spread value.
func (a *Analyzer) Observe(midA, midB float64) float64 {
	s := midA - midB
	a.tracker.Update(s, midA, midB)
	return s
}

// Statistics exposes the current rolling spread statistics.
func (a *Analyzer) Statistics() spread.Statistics {
	return a.tracker.Statistics()
}

// Leadership names the leg currently driving the move, or the neutral marker.
func (a *Analyzer) Leadership() string {
	switch a.tracker.Leadership() {
	case spread.LeaderA:
		return a.mkt.LegA
	case spread.LeaderB:
		return a.mkt.LegB
	default:
		return signal.LeaderNeutral
	}
}

// Generated returns how many signals this analyzer has produced.
func (a *Analyzer) Generated() int { return a.generated }

// Evaluate checks the current statistics against the gate chain and, when
// every gate passes, formats a full signal priced off the second leg's book.
// activeThreshold and minProfit are the regime-adjusted values for this tick.
// The returned reason explains a nil signal.
func (a *Analyzer) Evaluate(legB market.Book, confirmations []Confirmation, activeThreshold, minProfit float64, now time.Time) (*signal.Signal, string) {
	if n := a.tracker.Len(); n < a.minSamples {
		return nil, fmt.Sprintf("waiting for samples: %d/%d", n, a.minSamples)
	}

	res, reason := a.validator.Validate(a.tracker.Statistics(), activeThreshold, minProfit)
	if res == nil {
		return nil, reason
	}

	if !legB.Complete() {
		return nil, "order book incomplete"
	}
	entry := legB.BestAsk()
	if res.Direction == signal.ActionSell {
		entry = legB.BestBid()
	}

	sig := a.format(res, entry)
	sig.Ts = now
	sig.Leader = a.Leadership()
	a.applyConfirmations(sig, confirmations)

	a.generated++
	return sig, fmt.Sprintf("%s opportunity at z-score %.2f (confidence %d%%)", res.Direction, res.ZScore, sig.Confidence)
}

// format prices entry, targets and stop in asset points. Targets sit 0.20 and
// 0.40 points past entry with the stop 0.30 points against it.
func (a *Analyzer) format(res *ValidationResult, entry float64) *signal.Signal {
	var targets [2]float64
	var stop float64
	if res.Direction == signal.ActionBuy {
		targets = [2]float64{entry + 0.20, entry + 0.40}
		stop = entry - 0.30
	} else {
		targets = [2]float64{entry - 0.20, entry - 0.40}
		stop = entry + 0.30
	}

	return &signal.Signal{
		Action:         res.Direction,
		Asset:          a.mkt.Asset,
		Entry:          entry,
		Targets:        targets,
		Stop:           stop,
		Confidence:     res.Confidence,
		Contracts:      res.Contracts,
		ExpectedProfit: res.ExpectedProfit,
		Risk:           res.Risk,
		Spread:         res.EntrySpread,
		ZScore:         res.ZScore,
		Source:         signal.SourceArbitrage,
		Triggers: []string{
			fmt.Sprintf("Z-Score: %+.2fσ", res.ZScore),
			fmt.Sprintf("Confidence: %d%%", res.Confidence),
		},
	}
}

// applyConfirmations folds qualifying behavior observations into the signal,
// each adding a capped confidence bonus.
func (a *Analyzer) applyConfirmations(sig *signal.Signal, confirmations []Confirmation) {
	for _, c := range confirmations {
		if c.Strength > a.val.BehaviorMinStrength {
			sig.Behaviors = append(sig.Behaviors, c.Description)
		}
	}
	if n := len(sig.Behaviors); n > 0 {
		sig.Confidence += n * a.val.BehaviorBonus
		if sig.Confidence > 95 {
			sig.Confidence = 95
		}
	}
}
