package position

import (
	"fmt"
	"testing"
	"time"

	"tapereader/internal/config"
	"tapereader/internal/signal"
	"tapereader/internal/util"
)

func buySignal(id string) *signal.Signal {
	return &signal.Signal{
		ID:        id,
		Action:    signal.ActionBuy,
		Asset:     "DOLFUT",
		Entry:     5750.0,
		Targets:   [2]float64{5750.2, 5750.4},
		Stop:      5747.0,
		Contracts: 3,
		ZScore:    -2.0,
		Source:    signal.SourceArbitrage,
	}
}

func newTestMonitor(t *testing.T) (*Monitor, *util.FakeClock) {
	t.Helper()
	cfg := config.Default()
	clock := &util.FakeClock{T: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	return NewMonitor(cfg.Position, cfg.Market.PointValue, clock), clock
}

func hasAlert(alerts []Alert, typ string) bool {
	for _, a := range alerts {
		if a.Type == typ {
			return true
		}
	}
	return false
}

func TestStopLossExitsSameUpdate(t *testing.T) {
	m, _ := newTestMonitor(t)
	id, err := m.Add(buySignal("sig-1"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	res := m.Update(id, 5746.5, -2.0, -2.0)
	if !res.Found {
		t.Fatalf("position not found")
	}
	if res.Status != StatusStopped {
		t.Fatalf("status = %s, want %s", res.Status, StatusStopped)
	}
	if !res.ShouldExit {
		t.Fatalf("stop loss must force exit on the same update")
	}
	if !hasAlert(res.Alerts, AlertStopLoss) {
		t.Fatalf("missing stop loss alert: %+v", res.Alerts)
	}
	// 5746.5 - 5750 = -3.5 points, 3 contracts, 10 per point.
	if res.PnL != -105.0 {
		t.Fatalf("pnl = %v, want -105", res.PnL)
	}
}

func TestSinglePositionModeRejectsSecond(t *testing.T) {
	m, _ := newTestMonitor(t)
	if _, err := m.Add(buySignal("sig-1")); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := m.Add(buySignal("sig-2")); err == nil {
		t.Fatalf("expected rejection of second position in single mode")
	}
}

func TestTargetProgressionIsMonotonic(t *testing.T) {
	m, _ := newTestMonitor(t)
	id, _ := m.Add(buySignal("sig-1"))

	res := m.Update(id, 5750.2, -1.0, -1.0)
	if res.Status != StatusTarget1 {
		t.Fatalf("status = %s, want TARGET1", res.Status)
	}
	if res.ShouldExit {
		t.Fatalf("target 1 must not force an exit")
	}
	if !hasAlert(res.Alerts, AlertTarget1) {
		t.Fatalf("missing target 1 alert")
	}

	// Target 1 alert fires only once.
	res = m.Update(id, 5750.25, -1.0, -1.0)
	if hasAlert(res.Alerts, AlertTarget1) {
		t.Fatalf("target 1 alert repeated")
	}

	res = m.Update(id, 5750.5, -0.2, -0.2)
	if res.Status != StatusTarget2 {
		t.Fatalf("status = %s, want TARGET2 after target 1", res.Status)
	}
	if !hasAlert(res.Alerts, AlertTarget2) {
		t.Fatalf("missing target 2 alert")
	}

	// A dip below target 1 never demotes the status.
	res = m.Update(id, 5750.1, -0.5, -0.5)
	if res.Status != StatusTarget2 {
		t.Fatalf("status regressed to %s", res.Status)
	}
}

func TestTarget2ForcesExit(t *testing.T) {
	m, _ := newTestMonitor(t)
	id, _ := m.Add(buySignal("sig-1"))

	res := m.Update(id, 5750.5, -0.2, -0.2)
	if res.Status != StatusTarget2 {
		t.Fatalf("status = %s, want TARGET2", res.Status)
	}
	if !res.ShouldExit {
		t.Fatalf("the final target must close the position")
	}
}

func TestStopFiresAfterTarget2(t *testing.T) {
	m, _ := newTestMonitor(t)
	id, _ := m.Add(buySignal("sig-1"))

	if res := m.Update(id, 5750.5, -0.2, -0.2); res.Status != StatusTarget2 {
		t.Fatalf("setup: status = %s", res.Status)
	}
	res := m.Update(id, 5746.0, -2.5, -2.5)
	if res.Status != StatusStopped || !res.ShouldExit {
		t.Fatalf("full retrace should stop out, got %s exit=%v", res.Status, res.ShouldExit)
	}
}

func TestTimeInvalidation(t *testing.T) {
	m, clock := newTestMonitor(t)
	id, _ := m.Add(buySignal("sig-1"))

	clock.Advance(5*time.Minute + time.Second)
	res := m.Update(id, 5750.1, -2.0, -2.0)
	if res.Status != StatusInvalidated || !res.ShouldExit {
		t.Fatalf("expected time invalidation, got %s exit=%v", res.Status, res.ShouldExit)
	}
	if !hasAlert(res.Alerts, AlertTimeExceeded) {
		t.Fatalf("missing time alert: %+v", res.Alerts)
	}
}

func TestAdverseLimitsPerSource(t *testing.T) {
	m, _ := newTestMonitor(t)
	id, _ := m.Add(buySignal("arb-1"))

	// 0.6 points against an arbitrage position exceeds the 0.5 limit but
	// never reaches the 3.0 stop distance.
	res := m.Update(id, 5749.4, -2.0, -2.0)
	if res.Status != StatusInvalidated || !hasAlert(res.Alerts, AlertAdverseMove) {
		t.Fatalf("expected adverse invalidation, got %s %+v", res.Status, res.Alerts)
	}
	m.Remove(id, 5749.4, "adverse")

	// The same excursion is tolerated on a tape position.
	tapeSig := buySignal("tape-1")
	tapeSig.Source = signal.SourceTape
	tapeSig.Stop = 5741.0
	id2, _ := m.Add(tapeSig)
	res = m.Update(id2, 5749.4, 0, 0)
	if res.Status != StatusActive {
		t.Fatalf("tape position invalidated too early: %s %+v", res.Status, res.Alerts)
	}
}

func TestNoProgressWarnsOnce(t *testing.T) {
	m, clock := newTestMonitor(t)
	id, _ := m.Add(buySignal("sig-1"))

	clock.Advance(121 * time.Second)
	res := m.Update(id, 5750.05, -2.0, -2.0)
	if res.ShouldExit {
		t.Fatalf("no-progress must not force an exit")
	}
	if !hasAlert(res.Alerts, AlertNoProgress) {
		t.Fatalf("missing no-progress alert: %+v", res.Alerts)
	}
	res = m.Update(id, 5750.05, -2.0, -2.0)
	if hasAlert(res.Alerts, AlertNoProgress) {
		t.Fatalf("no-progress alert repeated")
	}
}

func TestSpreadConvergenceWarnsArbitrageOnly(t *testing.T) {
	m, _ := newTestMonitor(t)
	id, _ := m.Add(buySignal("arb-1"))

	res := m.Update(id, 5750.1, -0.2, -0.2)
	if !hasAlert(res.Alerts, AlertSpreadConverge) {
		t.Fatalf("expected convergence warning at z=-0.2: %+v", res.Alerts)
	}
	if res.ShouldExit {
		t.Fatalf("convergence is a warning, not an exit")
	}
	res = m.Update(id, 5750.1, -0.1, -0.1)
	if hasAlert(res.Alerts, AlertSpreadConverge) {
		t.Fatalf("convergence alert repeated")
	}
	m.Remove(id, 5750.1, "manual")

	tapeSig := buySignal("tape-1")
	tapeSig.Source = signal.SourceTape
	id2, _ := m.Add(tapeSig)
	res = m.Update(id2, 5750.1, 0, 0)
	if hasAlert(res.Alerts, AlertSpreadConverge) {
		t.Fatalf("tape positions must not get convergence warnings")
	}
}

func TestRemoveBooksPnLAndStats(t *testing.T) {
	m, _ := newTestMonitor(t)

	id, _ := m.Add(buySignal("win-1"))
	m.Update(id, 5750.4, -0.2, -0.2)
	sum, err := m.Remove(id, 5750.4, "target")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	// +0.4 points, 3 contracts, 10 per point.
	if sum.PnL != 12.0 {
		t.Fatalf("pnl = %v, want 12", sum.PnL)
	}

	id, _ = m.Add(buySignal("loss-1"))
	m.Update(id, 5746.5, -2.0, -2.0)
	sum, _ = m.Remove(id, 5746.5, "stop")
	if sum.Status != StatusStopped || sum.PnL != -105.0 {
		t.Fatalf("summary = %+v", sum)
	}

	stats := m.Statistics()
	if stats.TotalPositions != 2 || stats.SuccessfulExits != 1 || stats.Stopped != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.TotalPnL != -93.0 {
		t.Fatalf("total pnl = %v, want -93", stats.TotalPnL)
	}
	if stats.WinRate != 50.0 {
		t.Fatalf("win rate = %v, want 50", stats.WinRate)
	}
	if stats.ActivePositions != 0 {
		t.Fatalf("active = %d", stats.ActivePositions)
	}
}

func TestRemovePrunesClosedPositions(t *testing.T) {
	cfg := config.Default()
	cfg.Position.AllowMultiple = true
	clock := &util.FakeClock{T: time.Unix(0, 0)}
	m := NewMonitor(cfg.Position, 10.0, clock)

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("sig-%d", i)
		if _, err := m.Add(buySignal(id)); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
		if _, err := m.Remove(id, 5750.2, "manual"); err != nil {
			t.Fatalf("remove %s: %v", id, err)
		}
	}
	if len(m.order) != 0 {
		t.Fatalf("order still tracks %d closed positions", len(m.order))
	}

	id, _ := m.Add(buySignal("sig-live"))
	if got := m.Active(); len(got) != 1 || got[0].ID != id {
		t.Fatalf("active = %+v, want only %s", got, id)
	}
}

func TestPnLSignSymmetry(t *testing.T) {
	cfg := config.Default()
	cfg.Position.AllowMultiple = true
	clock := &util.FakeClock{T: time.Unix(0, 0)}
	m := NewMonitor(cfg.Position, 10.0, clock)

	buy := buySignal("buy-1")
	sell := buySignal("sell-1")
	sell.Action = signal.ActionSell
	sell.Stop = 5753.0
	sell.Targets = [2]float64{5749.8, 5749.6}
	sell.ZScore = 2.0

	idBuy, _ := m.Add(buy)
	idSell, _ := m.Add(sell)

	up := m.Update(idBuy, 5751.0, 0, 0)
	down := m.Update(idSell, 5751.0, 0, 0)
	if up.PnL != -down.PnL {
		t.Fatalf("pnl asymmetry: buy %v vs sell %v", up.PnL, down.PnL)
	}
}

func TestUpdateUnknownPosition(t *testing.T) {
	m, _ := newTestMonitor(t)
	res := m.Update("ghost", 5750, 0, 0)
	if res.Found || res.ShouldExit {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if _, err := m.Remove("ghost", 5750, "manual"); err == nil {
		t.Fatalf("expected error removing unknown position")
	}
}

func TestEmptyIDResolvesFirstInSingleMode(t *testing.T) {
	m, _ := newTestMonitor(t)
	m.Add(buySignal("sig-1"))

	res := m.Update("", 5750.2, -1.0, -1.0)
	if !res.Found || res.Position.ID != "sig-1" {
		t.Fatalf("empty id did not resolve: %+v", res)
	}
	if _, err := m.Remove("", 5750.2, "manual"); err != nil {
		t.Fatalf("remove by empty id: %v", err)
	}
}
