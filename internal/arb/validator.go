// Package arb evaluates the inter-instrument spread for mean-reversion
// opportunities and assembles tradeable signals from them.
package arb

import (
	"fmt"
	"math"

	"tapereader/internal/config"
	"tapereader/internal/signal"
	"tapereader/internal/spread"
)

// ValidationResult carries the sizing and statistical context of an approved
// opportunity.
type ValidationResult struct {
	Direction      signal.Action
	Confidence     int
	Contracts      int
	ExpectedProfit float64
	Risk           float64
	ZScore         float64
	EntrySpread    float64
	TargetSpread   float64
	StopSpread     float64
}

// Validator applies the statistical gates that stand between a spread reading
// and a signal. Gates run in a fixed order and the first failure wins.
type Validator struct {
	cfg        config.Validation
	pointValue float64
}

// NewValidator builds a validator from the validation thresholds and the
// contract point value.
func NewValidator(cfg config.Validation, pointValue float64) *Validator {
	return &Validator{cfg: cfg, pointValue: pointValue}
}

func (v *Validator) confidence(zAbs float64) int {
	switch {
	case zAbs >= v.cfg.ThresholdExtreme:
		return 95
	case zAbs >= v.cfg.ThresholdHigh:
		return 85
	case zAbs >= v.cfg.ThresholdMedium:
		return 75
	default:
		return 65
	}
}

func (v *Validator) contracts(zAbs float64) int {
	switch {
	case zAbs >= v.cfg.ThresholdExtreme:
		return v.cfg.ContractsExtreme
	case zAbs >= v.cfg.ThresholdHigh:
		return v.cfg.ContractsHigh
	case zAbs >= v.cfg.ThresholdMedium:
		return v.cfg.ContractsMedium
	default:
		return v.cfg.ContractsLow
	}
}

// Validate runs the gate chain against the current spread statistics.
// activeThreshold and minProfit come from the regime manager so profile and
// volatility adjustments take effect without rebuilding the validator.
// On rejection the result is nil and the reason names the failed gate.
func (v *Validator) Validate(stats spread.Statistics, activeThreshold, minProfit float64) (*ValidationResult, string) {
	zAbs := math.Abs(stats.ZScore)

	if zAbs < activeThreshold {
		return nil, fmt.Sprintf("z-score %.2f below minimum %.2f", stats.ZScore, activeThreshold)
	}
	if stats.Std < v.cfg.MinStdDev {
		return nil, fmt.Sprintf("volatility too low: %.4f", stats.Std)
	}
	if math.Abs(stats.Current) > v.cfg.MaxSpreadAbs {
		return nil, fmt.Sprintf("absolute spread too wide: %.2f", stats.Current)
	}

	// Spread above its mean sells the asset, below buys it.
	direction := signal.ActionBuy
	if stats.ZScore > 0 {
		direction = signal.ActionSell
	}

	confidence := v.confidence(zAbs)
	contracts := v.contracts(zAbs)

	expectedMove := math.Abs(stats.Current - stats.Mean)
	expectedProfit := expectedMove * float64(contracts) * v.pointValue
	risk := stats.Std * float64(contracts) * v.pointValue

	if expectedProfit < minProfit {
		return nil, fmt.Sprintf("expected profit below minimum: %.2f", expectedProfit)
	}

	stop := stats.Current - 2*stats.Std
	if direction == signal.ActionSell {
		stop = stats.Current + 2*stats.Std
	}

	return &ValidationResult{
		Direction:      direction,
		Confidence:     confidence,
		Contracts:      contracts,
		ExpectedProfit: expectedProfit,
		Risk:           risk,
		ZScore:         stats.ZScore,
		EntrySpread:    stats.Current,
		TargetSpread:   stats.Mean,
		StopSpread:     stop,
	}, ""
}
