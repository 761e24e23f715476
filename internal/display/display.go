// Package display renders the engine state as a plain-text terminal summary.
// It only reads the state it is handed; all analysis lives upstream.
package display

import (
	"fmt"
	"sort"
	"strings"

	"tapereader/internal/behavior"
	"tapereader/internal/engine"
	"tapereader/internal/siglog"
	"tapereader/internal/signal"
)

// Renderer formats engine state into a fixed-width text dashboard.
type Renderer struct {
	// MinBehaviorStrength hides weak detections from the behavior section.
	MinBehaviorStrength float64
}

// New builds a renderer with the given behavior display floor.
func New(minBehaviorStrength float64) *Renderer {
	return &Renderer{MinBehaviorStrength: minBehaviorStrength}
}

const rule = "================================================================"

// Render returns the full dashboard for one engine state.
func (r *Renderer) Render(s engine.State) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n TAPEREADER  %s  |  signals today: %d\n%s\n",
		rule, s.Timestamp.Format("15:04:05"), s.Session.Signals, rule)

	r.market(&b, s)
	r.tapeSection(&b, s)
	r.signalSection(&b, s)
	r.positions(&b, s)
	r.behaviors(&b, s)
	r.history(&b, s)
	r.stats(&b, s)

	return b.String()
}

func (r *Renderer) market(b *strings.Builder, s engine.State) {
	fmt.Fprintf(b, "\n[ MARKET ]\n")
	fmt.Fprintf(b, "  spread %.2f  mean %.2f  std %.3f  z %+.2f\n",
		s.Spread.Current, s.Spread.Mean, s.Spread.Std, s.Spread.ZScore)
	fmt.Fprintf(b, "  range [%.2f, %.2f]  samples %d  leader %s  regime %s\n",
		s.Spread.Min, s.Spread.Max, s.Spread.Samples, s.Leadership, s.Regime)
	fmt.Fprintf(b, "  thresholds: z >= %.2f  min profit %.1f  slippage %.2f\n",
		s.Params.StdThreshold, s.Params.MinProfit, s.Params.Slippage)
}

func (r *Renderer) tapeSection(b *strings.Builder, s engine.State) {
	fmt.Fprintf(b, "\n[ TAPE READING ]\n")
	if !s.Tape.HasData {
		fmt.Fprintf(b, "  waiting for trades\n")
		return
	}
	fmt.Fprintf(b, "  session: %d trades (%.1f/min)  buy %.0f%%  sell %.0f%%\n",
		s.Tape.SessionTrades, s.Tape.TradesPerMinute, s.Tape.SessionBuyPct, s.Tape.SessionSellPct)
	fmt.Fprintf(b, "  recent:  %d trades  buy %.0f%%  sell %.0f%%  signals %d\n",
		s.Tape.RecentTrades, s.Tape.RecentBuyPct, s.Tape.RecentSellPct, s.Tape.TotalSignals)
	if len(s.Flow.Pressure) > 0 {
		syms := make([]string, 0, len(s.Flow.Pressure))
		for sym := range s.Flow.Pressure {
			syms = append(syms, sym)
		}
		sort.Strings(syms)
		for _, sym := range syms {
			fmt.Fprintf(b, "  flow %s: pressure %+.2f  delta %+.0f\n", sym, s.Flow.Pressure[sym], s.Flow.Delta[sym])
		}
		flags := flowFlags(s)
		if flags != "" {
			fmt.Fprintf(b, "  %s\n", flags)
		}
	}
}

func flowFlags(s engine.State) string {
	var parts []string
	if s.Flow.Dominant != "" && s.Flow.Dominant != "NEUTRAL" {
		parts = append(parts, fmt.Sprintf("dominant %s (%s)", s.Flow.Dominant, s.Flow.Strength))
	}
	if s.Flow.Divergence {
		parts = append(parts, "divergence")
	}
	if s.Flow.Absorption {
		parts = append(parts, "absorption")
	}
	return strings.Join(parts, "  ")
}

func (r *Renderer) signalSection(b *strings.Builder, s engine.State) {
	if s.LastSignal == nil {
		fmt.Fprintf(b, "\n[ WAITING FOR SIGNAL ]\n")
		if s.LastReason != "" {
			fmt.Fprintf(b, "  %s\n", s.LastReason)
		}
		return
	}
	sig := s.LastSignal
	fmt.Fprintf(b, "\n[ SIGNAL %s ]  %s %s\n", sig.ID, sig.Action, sig.Asset)
	fmt.Fprintf(b, "  entry %.2f  targets %.2f / %.2f  stop %.2f\n",
		sig.Entry, sig.Targets[0], sig.Targets[1], sig.Stop)
	fmt.Fprintf(b, "  confidence %d%%  contracts %d  profit %.1f  risk %.1f\n",
		sig.Confidence, sig.Contracts, sig.ExpectedProfit, sig.Risk)
	for _, trig := range sig.Triggers {
		fmt.Fprintf(b, "  + %s\n", trig)
	}
	if sig.Leader != "" && sig.Leader != signal.LeaderNeutral {
		fmt.Fprintf(b, "  leader: %s\n", sig.Leader)
	}
	for _, behav := range sig.Behaviors {
		fmt.Fprintf(b, "  * %s\n", behav)
	}
}

func (r *Renderer) positions(b *strings.Builder, s engine.State) {
	fmt.Fprintf(b, "\n[ POSITIONS ]\n")
	if len(s.Positions) == 0 {
		fmt.Fprintf(b, "  none active\n")
		return
	}
	for _, p := range s.Positions {
		fmt.Fprintf(b, "  %s  %s %dx @ %.2f  now %.2f  pnl %+.1f  %s  %ds\n",
			p.ID, p.Action, p.Contracts, p.Entry, p.CurrentPrice, p.PnL, p.Status, p.TimeInPosition)
	}
}

func (r *Renderer) behaviors(b *strings.Builder, s engine.State) {
	shown := make([]behavior.Record, 0, len(s.Behaviors))
	for _, rec := range s.Behaviors {
		if rec.Strength >= r.MinBehaviorStrength {
			shown = append(shown, rec)
		}
	}
	fmt.Fprintf(b, "\n[ BEHAVIORS ]\n")
	if len(shown) == 0 {
		fmt.Fprintf(b, "  none detected\n")
		return
	}
	for _, rec := range shown {
		fmt.Fprintf(b, "  %-14s %s %s  strength %.0f  %s\n",
			rec.Type, rec.Symbol, rec.Direction, rec.Strength, rec.Description)
	}
}

func (r *Renderer) history(b *strings.Builder, s engine.State) {
	fmt.Fprintf(b, "\n[ HISTORY ]\n")
	if len(s.History) == 0 {
		fmt.Fprintf(b, "  no previous signals\n")
		return
	}
	for _, h := range s.History {
		outcome := h.Status
		switch h.Status {
		case siglog.HistorySuccess:
			outcome = fmt.Sprintf("success +%.1f", h.Profit)
		case siglog.HistoryFailed:
			outcome = fmt.Sprintf("failed -%.1f", h.Loss)
		}
		fmt.Fprintf(b, "  %s  %s @ %.2f  conf %d%%  %s\n",
			h.Time, h.Action, h.Price, h.Confidence, outcome)
	}
}

func (r *Renderer) stats(b *strings.Builder, s engine.State) {
	st := s.Session
	fmt.Fprintf(b, "\n[ SESSION ]\n")
	fmt.Fprintf(b, "  snapshots %d (dup %d, err %d)\n", st.Snapshots, st.Duplicates, st.Errors)
	fmt.Fprintf(b, "  signals %d (arb %d, tape %d, high conf %d)\n",
		st.Signals, st.ArbSignals, st.TapeSignals, st.HighConf)
	fmt.Fprintf(b, "  closed: %d wins / %d losses  pnl %+.1f\n", st.Wins, st.Losses, st.TotalPnL)
	fmt.Fprintf(b, "%s\n", rule)
}
