// Package engine runs the analysis cycle: it pulls snapshots from the feed,
// keeps every analyzer fed, drives the position lifecycle and emits signals.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tapereader/internal/arb"
	"tapereader/internal/behavior"
	"tapereader/internal/config"
	"tapereader/internal/feed"
	"tapereader/internal/flow"
	"tapereader/internal/market"
	"tapereader/internal/metrics"
	"tapereader/internal/position"
	"tapereader/internal/regime"
	"tapereader/internal/siglog"
	"tapereader/internal/signal"
	"tapereader/internal/spread"
	"tapereader/internal/tape"
	"tapereader/internal/util"
)

// SessionStats accumulates per-session totals for the display.
type SessionStats struct {
	Snapshots    int
	Duplicates   int
	Errors       int
	Signals      int
	ArbSignals   int
	TapeSignals  int
	HighConf     int // confidence >= 80
	Wins         int
	Losses       int
	TotalPnL     float64
	SessionStart time.Time
}

// State is the read-only view of the latest cycle, consumed by the display.
type State struct {
	Timestamp  time.Time
	Spread     spread.Statistics
	Leadership string
	Regime     regime.Regime
	Params     regime.Params
	Tape       tape.Statistics
	Flow       flow.Analysis
	Behaviors  []behavior.Record
	LastSignal *signal.Signal
	LastReason string
	Positions  []position.Position
	History    []siglog.HistoryEntry
	Session    SessionStats
}

// Engine wires the collaborators together and owns the tick loop. Analyzers
// are touched under mu so State can be read from a render goroutine.
type Engine struct {
	mu    sync.Mutex
	cfg   *config.Config
	log   zerolog.Logger
	clock util.Clock

	provider   feed.Provider
	normalizer *market.VolumeNormalizer
	arb        *arb.Analyzer
	tape       *tape.Analyzer
	behaviors  *behavior.Manager
	monitor    *position.Monitor
	regime     *regime.Manager
	flow       *flow.Analyzer
	audit      *siglog.Logger
	history    *siglog.History

	lastHash    string
	lastSignal  *signal.Signal
	lastReason  string
	lastFlow    flow.Analysis
	lastRecords []behavior.Record

	stats SessionStats
}

// New assembles an engine from configuration. audit may be nil when signal
// logging is disabled.
func New(cfg *config.Config, provider feed.Provider, audit *siglog.Logger, log zerolog.Logger, clock util.Clock) *Engine {
	if clock == nil {
		clock = util.SystemClock()
	}
	return &Engine{
		cfg:        cfg,
		log:        log,
		clock:      clock,
		provider:   provider,
		normalizer: market.NewVolumeNormalizer(cfg.Market.VolumeWeights),
		arb:        arb.NewAnalyzer(cfg.Market, cfg.Statistics, cfg.Validation),
		tape:       tape.NewAnalyzer(cfg.Tape, cfg.Market, clock),
		behaviors:  behavior.NewManager(cfg.Behavior, clock),
		monitor:    position.NewMonitor(cfg.Position, cfg.Market.PointValue, clock),
		regime:     regime.NewManager(cfg.Dynamic, clock),
		flow:       flow.NewAnalyzer(cfg.Flow, cfg.Market.LegA, cfg.Market.LegB),
		audit:      audit,
		history:    siglog.NewHistory(cfg.Logging.HistorySize, clock),
		stats:      SessionStats{SessionStart: clock.Now()},
	}
}

// Run loops Tick until the context is canceled. Failures back off instead of
// stopping the engine.
func (e *Engine) Run(ctx context.Context) error {
	sleep := time.Duration(e.cfg.App.LoopSleepMs) * time.Millisecond
	backoff := time.Duration(e.cfg.App.ErrorBackoffMs) * time.Millisecond

	for {
		if err := e.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.noteError()
			e.log.Warn().Err(err).Msg("tick failed")
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			continue
		}
		if !sleepCtx(ctx, sleep) {
			return ctx.Err()
		}
	}
}

func (e *Engine) noteError() {
	e.mu.Lock()
	e.stats.Errors++
	e.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Tick executes one full analysis cycle.
func (e *Engine) Tick(ctx context.Context) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			metrics.DataErrors.WithLabelValues("panic").Inc()
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()

	snap, err := e.provider.Snapshot(ctx)
	if err != nil {
		metrics.DataErrors.WithLabelValues("snapshot").Inc()
		return fmt.Errorf("snapshot: %w", err)
	}

	legA, legB := e.cfg.Market.LegA, e.cfg.Market.LegB
	hash := snap.Hash(legA, legB)
	if hash == e.lastHash {
		metrics.SnapshotsDuplicate.Inc()
		e.stats.Duplicates++
		return nil
	}
	e.lastHash = hash
	metrics.SnapshotsTotal.Inc()
	e.stats.Snapshots++

	instA, okA := snap.Instrument(legA)
	instB, okB := snap.Instrument(legB)
	if !okA || !okB {
		metrics.DataErrors.WithLabelValues("instrument").Inc()
		return fmt.Errorf("snapshot missing instrument data")
	}
	midA, okA := instA.Book.Mid()
	midB, okB := instB.Book.Mid()
	if !okA || !okB {
		metrics.DataErrors.WithLabelValues("book").Inc()
		return fmt.Errorf("order book incomplete")
	}

	trades := e.collectTrades(instA, instB)
	e.tape.Ingest(trades)
	e.tape.Trim()

	spreadVal := e.arb.Observe(midA, midB)
	e.regime.Observe(spreadVal, totalVolume(trades))
	e.regime.Adjust()
	e.lastFlow = e.flow.Analyze(trades)

	stats := e.arb.Statistics()
	metrics.SpreadZScore.Set(stats.ZScore)

	e.updatePositions(midB, spreadVal, stats.ZScore)

	if !e.monitor.HasActive() {
		e.evaluate(instA, instB, midB)
	}
	metrics.ActivePositions.Set(float64(len(e.monitor.Active())))
	return nil
}

func (e *Engine) collectTrades(instA, instB market.Instrument) []market.Trade {
	raw := make([]market.Trade, 0, len(instA.Trades)+len(instB.Trades))
	raw = append(raw, instA.Trades...)
	raw = append(raw, instB.Trades...)
	for _, t := range raw {
		metrics.TradesIngested.WithLabelValues(t.Symbol).Inc()
	}
	return e.normalizer.Normalize(raw)
}

func totalVolume(trades []market.Trade) float64 {
	var sum float64
	for _, t := range trades {
		sum += t.EffectiveVolume()
	}
	return sum
}

func (e *Engine) updatePositions(price, spreadVal, zScore float64) {
	for _, pos := range e.monitor.Active() {
		res := e.monitor.Update(pos.ID, price, spreadVal, zScore)
		if !res.Found {
			continue
		}
		for _, alert := range res.Alerts {
			e.log.Info().
				Str("position", pos.ID).
				Str("alert", alert.Type).
				Str("severity", alert.Severity).
				Msg(alert.Message)
		}
		if !res.ShouldExit {
			continue
		}
		reason := exitReason(res.Alerts)
		summary, err := e.monitor.Remove(pos.ID, price, reason)
		if err != nil {
			e.log.Error().Err(err).Str("position", pos.ID).Msg("close position")
			continue
		}
		e.recordExit(summary)
	}
}

// exitReason picks the alert that forced the exit; target 1 and warnings
// never set ShouldExit on their own.
func exitReason(alerts []position.Alert) string {
	for i := len(alerts) - 1; i >= 0; i-- {
		switch alerts[i].Type {
		case position.AlertStopLoss, position.AlertTarget2,
			position.AlertTimeExceeded, position.AlertAdverseMove:
			return alerts[i].Type
		}
	}
	if len(alerts) > 0 {
		return alerts[len(alerts)-1].Type
	}
	return "EXIT"
}

func (e *Engine) recordExit(summary position.Summary) {
	metrics.PositionExits.WithLabelValues(summary.Reason).Inc()
	e.stats.TotalPnL += summary.PnL
	win := summary.PnL > 0
	if win {
		e.stats.Wins++
		e.history.UpdateLast(siglog.HistorySuccess, summary.PnL)
	} else {
		e.stats.Losses++
		e.history.UpdateLast(siglog.HistoryFailed, -summary.PnL)
	}
	e.regime.RegisterResult(win)
	e.log.Info().
		Str("position", summary.ID).
		Str("reason", summary.Reason).
		Float64("pnl", summary.PnL).
		Int("duration_min", summary.DurationMinutes).
		Msg("position closed")
}

// evaluate runs the flat-book signal paths: behaviors feed confirmations,
// tape reading has priority over the statistical path.
func (e *Engine) evaluate(instA, instB market.Instrument, priceB float64) {
	records := e.detectBehaviors(instA, instB)
	e.lastRecords = records

	sig, reason := e.tape.Analyze(priceB)
	if sig == nil {
		params := e.regime.Params()
		sig, reason = e.arb.Evaluate(
			instB.Book,
			confirmations(records),
			params.StdThreshold,
			params.MinProfit,
			e.clock.Now(),
		)
	}
	if sig == nil {
		e.lastReason = reason
		return
	}
	e.process(sig)
}

func (e *Engine) detectBehaviors(instA, instB market.Instrument) []behavior.Record {
	var records []behavior.Record
	for _, leg := range []struct {
		symbol string
		inst   market.Instrument
	}{
		{e.cfg.Market.LegA, instA},
		{e.cfg.Market.LegB, instB},
	} {
		trades := e.normalizer.Normalize(leg.inst.Trades)
		records = append(records, e.behaviors.AnalyzeSymbol(trades, leg.symbol)...)
		if rec := e.behaviors.DetectDefense(leg.inst.Book, leg.symbol); rec != nil {
			records = append(records, *rec)
		}
	}
	return records
}

func confirmations(records []behavior.Record) []arb.Confirmation {
	out := make([]arb.Confirmation, 0, len(records))
	for _, r := range records {
		out = append(out, arb.Confirmation{
			Description: r.Description,
			Strength:    r.Strength,
		})
	}
	return out
}

func (e *Engine) process(sig *signal.Signal) {
	if e.audit != nil {
		if _, err := e.audit.Log(sig); err != nil {
			e.log.Error().Err(err).Msg("audit log")
		}
	}
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if _, err := e.monitor.Add(sig); err != nil {
		e.log.Warn().Err(err).Msg("open position")
	}
	e.history.Add(sig)

	metrics.SignalsTotal.WithLabelValues(string(sig.Source), string(sig.Action)).Inc()
	e.stats.Signals++
	switch sig.Source {
	case signal.SourceTape:
		e.stats.TapeSignals++
	default:
		e.stats.ArbSignals++
	}
	if sig.Confidence >= 80 {
		e.stats.HighConf++
	}
	e.lastSignal = sig
	e.lastReason = ""

	e.log.Info().
		Str("id", sig.ID).
		Str("source", string(sig.Source)).
		Str("action", string(sig.Action)).
		Float64("entry", sig.Entry).
		Int("confidence", sig.Confidence).
		Int("contracts", sig.Contracts).
		Msg("signal generated")
}

// State snapshots the engine for rendering. Copies only; nothing here can
// mutate the analyzers.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Timestamp:  e.clock.Now(),
		Spread:     e.arb.Statistics(),
		Leadership: e.arb.Leadership(),
		Regime:     e.regime.Regime(),
		Params:     e.regime.Params(),
		Tape:       e.tape.Statistics(),
		Flow:       e.lastFlow,
		Behaviors:  e.lastRecords,
		LastSignal: e.lastSignal,
		LastReason: e.lastReason,
		Positions:  e.monitor.Active(),
		History:    e.history.Entries(),
		Session:    e.stats,
	}
}

// Statistics returns the session totals.
func (e *Engine) Statistics() SessionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
