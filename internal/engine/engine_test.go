package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tapereader/internal/config"
	"tapereader/internal/market"
	"tapereader/internal/position"
	"tapereader/internal/siglog"
	"tapereader/internal/util"
)

type scriptedProvider struct {
	snaps []*market.Snapshot
	i     int
}

func (p *scriptedProvider) Start(ctx context.Context) {}

func (p *scriptedProvider) Snapshot(ctx context.Context) (*market.Snapshot, error) {
	if p.i >= len(p.snaps) {
		return nil, fmt.Errorf("script exhausted")
	}
	s := p.snaps[p.i]
	p.i++
	return s, nil
}

func bookAround(mid float64) market.Book {
	return market.Book{
		Bids: []market.BookLevel{{Price: mid - 0.25, Volume: 100}},
		Asks: []market.BookLevel{{Price: mid + 0.25, Volume: 100}},
	}
}

func snapshotAt(midA, midB float64, ts time.Time) *market.Snapshot {
	return &market.Snapshot{
		Instruments: map[string]market.Instrument{
			"WDOFUT": {Book: bookAround(midA)},
			"DOLFUT": {Book: bookAround(midB)},
		},
		Timestamp: ts,
	}
}

func newTestEngine(t *testing.T, snaps []*market.Snapshot) (*Engine, *util.FakeClock) {
	t.Helper()
	cfg := config.Default()
	clock := &util.FakeClock{T: time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)}
	return New(cfg, &scriptedProvider{snaps: snaps}, nil, zerolog.Nop(), clock), clock
}

// warmupSnapshots alternates the spread between 1 and 3 so the tracker ends
// with mean 2 and a standard deviation near 1.
func warmupSnapshots(midB float64, n int, start time.Time) []*market.Snapshot {
	snaps := make([]*market.Snapshot, 0, n)
	for i := 0; i < n; i++ {
		spread := 3.0
		if i%2 == 1 {
			spread = 1.0
		}
		snaps = append(snaps, snapshotAt(midB+spread, midB, start.Add(time.Duration(i)*time.Second)))
	}
	return snaps
}

func TestDuplicateSnapshotSkipped(t *testing.T) {
	snap := snapshotAt(5752, 5748.25, time.Now())
	e, _ := newTestEngine(t, []*market.Snapshot{snap, snap})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := e.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	s := e.Statistics()
	if s.Snapshots != 1 || s.Duplicates != 1 {
		t.Fatalf("snapshots=%d duplicates=%d, want 1/1", s.Snapshots, s.Duplicates)
	}
}

func TestSnapshotErrorSurfaces(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	if err := e.Tick(context.Background()); err == nil {
		t.Fatalf("expected error from exhausted provider")
	}
}

func TestArbSignalOpensPosition(t *testing.T) {
	const midB = 5748.25
	start := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	snaps := warmupSnapshots(midB, 24, start)
	snaps = append(snaps, snapshotAt(midB+4.0, midB, start.Add(24*time.Second)))

	e, clock := newTestEngine(t, snaps)
	ctx := context.Background()

	for i := 0; i < len(snaps); i++ {
		if err := e.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		clock.Advance(time.Second)
	}

	state := e.State()
	if state.LastSignal == nil {
		t.Fatalf("no signal generated; last reason %q", state.LastReason)
	}
	sig := state.LastSignal
	if sig.Action != "VENDA" {
		t.Fatalf("action = %s, want VENDA", sig.Action)
	}
	if sig.Entry != 5748.0 {
		t.Fatalf("entry = %v, want best bid 5748.0", sig.Entry)
	}
	if sig.Confidence != 75 || sig.Contracts != 2 {
		t.Fatalf("confidence/contracts = %d/%d, want 75/2", sig.Confidence, sig.Contracts)
	}
	if sig.ID == "" {
		t.Fatalf("signal has no id")
	}
	if len(state.Positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(state.Positions))
	}
	if state.Positions[0].Status != position.StatusActive {
		t.Fatalf("status = %s", state.Positions[0].Status)
	}
	s := e.Statistics()
	if s.Signals != 1 || s.ArbSignals != 1 || s.TapeSignals != 0 {
		t.Fatalf("signal counts = %d/%d/%d", s.Signals, s.ArbSignals, s.TapeSignals)
	}
	if len(state.History) != 1 || state.History[0].Status != siglog.HistoryActive {
		t.Fatalf("history = %+v", state.History)
	}
}

func TestStopExitUpdatesSessionStats(t *testing.T) {
	const midB = 5748.25
	start := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	snaps := warmupSnapshots(midB, 24, start)
	snaps = append(snaps, snapshotAt(midB+4.0, midB, start.Add(24*time.Second)))
	// Short from 5748.0 with the stop at 5748.3; a mid of 5748.75 trades
	// through it. The spread snaps back toward the mean so no new signal
	// follows the exit.
	snaps = append(snaps, snapshotAt(5748.75+2.0, 5748.75, start.Add(25*time.Second)))

	e, clock := newTestEngine(t, snaps)
	ctx := context.Background()

	for i := 0; i < len(snaps); i++ {
		if err := e.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		clock.Advance(time.Second)
	}

	state := e.State()
	if len(state.Positions) != 0 {
		t.Fatalf("positions still open: %+v", state.Positions)
	}
	s := e.Statistics()
	if s.Losses != 1 || s.Wins != 0 {
		t.Fatalf("wins/losses = %d/%d, want 0/1", s.Wins, s.Losses)
	}
	// (5748.75 - 5748.0) * -1 * 2 contracts * 10 point value
	if s.TotalPnL != -15.0 {
		t.Fatalf("total pnl = %v, want -15", s.TotalPnL)
	}
	if len(state.History) != 1 || state.History[0].Status != siglog.HistoryFailed {
		t.Fatalf("history = %+v", state.History)
	}
	if state.History[0].Loss != 15.0 {
		t.Fatalf("history loss = %v, want 15", state.History[0].Loss)
	}
}

func TestTargetExitRecordsWin(t *testing.T) {
	const midB = 5748.25
	start := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	snaps := warmupSnapshots(midB, 24, start)
	snaps = append(snaps, snapshotAt(midB+4.0, midB, start.Add(24*time.Second)))
	// Short from 5748.0 with the second target at 5747.6; a mid of 5747.5
	// trades through it and the position closes at full profit. The spread
	// snaps back toward the mean so no new signal follows.
	snaps = append(snaps, snapshotAt(5747.5+2.0, 5747.5, start.Add(25*time.Second)))

	e, clock := newTestEngine(t, snaps)
	ctx := context.Background()

	for i := 0; i < len(snaps); i++ {
		if err := e.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		clock.Advance(time.Second)
	}

	state := e.State()
	if len(state.Positions) != 0 {
		t.Fatalf("positions still open: %+v", state.Positions)
	}
	s := e.Statistics()
	if s.Wins != 1 || s.Losses != 0 {
		t.Fatalf("wins/losses = %d/%d, want 1/0", s.Wins, s.Losses)
	}
	// (5747.5 - 5748.0) * -1 * 2 contracts * 10 point value
	if s.TotalPnL != 10.0 {
		t.Fatalf("total pnl = %v, want 10", s.TotalPnL)
	}
	if len(state.History) != 1 || state.History[0].Status != siglog.HistorySuccess {
		t.Fatalf("history = %+v", state.History)
	}
	if state.History[0].Profit != 10.0 {
		t.Fatalf("history profit = %v, want 10", state.History[0].Profit)
	}
}

func TestTapeSignalTakesPriority(t *testing.T) {
	const midB = 5748.25
	start := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

	trades := make([]market.Trade, 0, 60)
	for i := 0; i < 60; i++ {
		side := market.SideBuy
		if i%6 == 5 {
			side = market.SideSell
		}
		trades = append(trades, market.Trade{
			Timestamp: fmt.Sprintf("10:30:00.%03d", i),
			Symbol:    "DOLFUT",
			Side:      side,
			Price:     5748.0,
			Volume:    10,
		})
	}
	snap := &market.Snapshot{
		Instruments: map[string]market.Instrument{
			"WDOFUT": {Book: bookAround(midB + 2.0)},
			"DOLFUT": {Book: bookAround(midB), Trades: trades},
		},
		Timestamp: start,
	}

	e, _ := newTestEngine(t, []*market.Snapshot{snap})
	if err := e.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	state := e.State()
	if state.LastSignal == nil {
		t.Fatalf("no signal; last reason %q", state.LastReason)
	}
	if state.LastSignal.Source != "TAPE_READING" {
		t.Fatalf("source = %s, want TAPE_READING", state.LastSignal.Source)
	}
	if state.LastSignal.Action != "COMPRA" {
		t.Fatalf("action = %s, want COMPRA", state.LastSignal.Action)
	}
	s := e.Statistics()
	if s.TapeSignals != 1 {
		t.Fatalf("tape signals = %d, want 1", s.TapeSignals)
	}
}

func TestStateSnapshotIsPopulated(t *testing.T) {
	const midB = 5748.25
	start := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	snaps := warmupSnapshots(midB, 30, start)

	e, clock := newTestEngine(t, snaps)
	ctx := context.Background()
	for i := 0; i < len(snaps); i++ {
		if err := e.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		clock.Advance(time.Second)
	}

	state := e.State()
	if state.Spread.Samples != 30 {
		t.Fatalf("samples = %d, want 30", state.Spread.Samples)
	}
	if state.Regime != "normal" {
		t.Fatalf("regime = %s", state.Regime)
	}
	if state.Params.StdThreshold != 1.5 {
		t.Fatalf("std threshold = %v, want base 1.5", state.Params.StdThreshold)
	}
	if state.Session.Snapshots != 30 {
		t.Fatalf("session snapshots = %d", state.Session.Snapshots)
	}
}
