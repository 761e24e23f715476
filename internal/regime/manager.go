// Package regime adapts the validator's thresholds to market volatility and
// time of day.
package regime

import (
	"math"
	"time"

	"tapereader/internal/config"
	"tapereader/internal/util"
)

// Regime labels the detected volatility state.
type Regime string

const (
	RegimeNormal  Regime = "normal"
	RegimeHighVol Regime = "high_volatility"
	RegimeLowVol  Regime = "low_volatility"
)

// Params are the adaptive thresholds consumed by the signal paths.
type Params struct {
	StdThreshold float64
	MinProfit    float64
	Slippage     float64
}

// regimeDetectMinSamples gates regime classification separately from the
// adjustment cadence; a shorter history keeps the previous regime.
const regimeDetectMinSamples = 100

// Manager tracks spread volatility, classifies the regime on a fixed cadence
// and blends the thresholds toward the regime's values. The time-of-day
// multiplier is applied when parameters are read so it never compounds into
// the blended state.
type Manager struct {
	cfg   config.Dynamic
	clock util.Clock

	volatility []float64
	volume     []float64
	results    []bool

	current    Params
	regime     Regime
	lastAdjust time.Time
}

// NewManager builds a manager seeded with the base parameters. A nil clock
// means wall time.
func NewManager(cfg config.Dynamic, clock util.Clock) *Manager {
	if clock == nil {
		clock = util.SystemClock()
	}
	return &Manager{
		cfg:        cfg,
		clock:      clock,
		current:    Params{StdThreshold: cfg.BaseStdThreshold, MinProfit: cfg.BaseMinProfit, Slippage: cfg.BaseSlippage},
		regime:     RegimeNormal,
		lastAdjust: clock.Now(),
	}
}

const (
	volatilityWindowCap = 200
	volumeWindowCap     = 100
	resultWindowCap     = 50
)

// Observe records one spread sample and, when positive, its traded volume.
func (m *Manager) Observe(spread float64, volume float64) {
	m.volatility = boundedAppend(m.volatility, spread, volatilityWindowCap)
	if volume > 0 {
		m.volume = boundedAppend(m.volume, volume, volumeWindowCap)
	}
}

// RegisterResult feeds a closed signal's outcome into the success window.
func (m *Manager) RegisterResult(success bool) {
	m.results = append(m.results, success)
	if len(m.results) > resultWindowCap {
		m.results = m.results[len(m.results)-resultWindowCap:]
	}
}

// SuccessRate returns the win share over the recent result window, or zero
// with no data.
func (m *Manager) SuccessRate() float64 {
	if len(m.results) == 0 {
		return 0
	}
	wins := 0
	for _, ok := range m.results {
		if ok {
			wins++
		}
	}
	return float64(wins) / float64(len(m.results)) * 100
}

// Regime returns the current classification.
func (m *Manager) Regime() Regime { return m.regime }

func boundedAppend(window []float64, v float64, capacity int) []float64 {
	window = append(window, v)
	if len(window) > capacity {
		copy(window, window[len(window)-capacity:])
		window = window[:capacity]
	}
	return window
}

func (m *Manager) shouldAdjust() bool {
	if !m.cfg.Enabled || len(m.volatility) < m.cfg.MinSamples {
		return false
	}
	return m.clock.Now().Sub(m.lastAdjust) >= time.Duration(m.cfg.AdjustIntervalSec)*time.Second
}

// Adjust re-detects the regime and blends the parameters toward its targets
// when the adjustment interval has elapsed. Calling it every tick is cheap.
func (m *Manager) Adjust() {
	if !m.shouldAdjust() {
		return
	}

	m.detectRegime()
	target := m.regimeTarget()

	w := m.cfg.GradualWeight
	m.current.StdThreshold = m.current.StdThreshold*(1-w) + target.StdThreshold*w
	m.current.MinProfit = m.current.MinProfit*(1-w) + target.MinProfit*w
	m.current.Slippage = m.current.Slippage*(1-w) + target.Slippage*w

	m.lastAdjust = m.clock.Now()
}

// detectRegime compares recent volatility against the whole window.
func (m *Manager) detectRegime() {
	if len(m.volatility) < regimeDetectMinSamples {
		return
	}

	start := len(m.volatility) - m.cfg.RecentWindow
	if start < 0 {
		start = 0
	}
	recentVol := stdev(m.volatility[start:])
	historicalVol := stdev(m.volatility)

	ratio := 1.0
	if historicalVol > 0 {
		ratio = recentVol / historicalVol
	}

	switch {
	case ratio > m.cfg.HighVolRatio:
		m.regime = RegimeHighVol
	case ratio < m.cfg.LowVolRatio:
		m.regime = RegimeLowVol
	default:
		m.regime = RegimeNormal
	}
}

func (m *Manager) regimeTarget() Params {
	base := Params{StdThreshold: m.cfg.BaseStdThreshold, MinProfit: m.cfg.BaseMinProfit, Slippage: m.cfg.BaseSlippage}
	var mult config.RegimeMultipliers
	switch m.regime {
	case RegimeHighVol:
		mult = m.cfg.HighVolatility
	case RegimeLowVol:
		mult = m.cfg.LowVolatility
	default:
		return base
	}
	return Params{
		StdThreshold: base.StdThreshold * mult.StdThreshold,
		MinProfit:    base.MinProfit * mult.MinProfit,
		Slippage:     base.Slippage * mult.Slippage,
	}
}

// Params returns the current thresholds with the time-of-day multiplier
// applied to this read only.
func (m *Manager) Params() Params {
	mult := 1.0
	if window, ok := config.FindWindow(m.cfg.TimeWindows, m.clock.Now()); ok && window.Multiplier != 0 {
		mult = window.Multiplier
	}
	return Params{
		StdThreshold: m.current.StdThreshold * mult,
		MinProfit:    m.current.MinProfit * mult,
		Slippage:     m.current.Slippage * mult,
	}
}

func stdev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n-1))
}
