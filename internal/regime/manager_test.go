package regime

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"tapereader/internal/config"
	"tapereader/internal/util"
)

func newTestManager(t *testing.T) (*Manager, *util.FakeClock) {
	t.Helper()
	cfg := config.Default()
	cfg.Dynamic.Enabled = true
	cfg.Dynamic.TimeWindows = nil
	clock := &util.FakeClock{T: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	return NewManager(cfg.Dynamic, clock), clock
}

func TestParamsStartAtBase(t *testing.T) {
	m, _ := newTestManager(t)
	p := m.Params()
	if p.StdThreshold != 1.5 || p.MinProfit != 20.0 || p.Slippage != 0.5 {
		t.Fatalf("params = %+v", p)
	}
	if m.Regime() != RegimeNormal {
		t.Fatalf("regime = %s", m.Regime())
	}
}

func TestNoAdjustmentBeforeInterval(t *testing.T) {
	m, clock := newTestManager(t)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 150; i++ {
		m.Observe(rng.NormFloat64(), 0)
	}
	clock.Advance(100 * time.Second)
	m.Adjust()
	if p := m.Params(); p.StdThreshold != 1.5 {
		t.Fatalf("adjusted before interval elapsed: %+v", p)
	}
}

func TestHighVolatilityRaisesThreshold(t *testing.T) {
	m, clock := newTestManager(t)

	// Calm history followed by a violent recent window.
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 170; i++ {
		m.Observe(rng.NormFloat64()*0.1, 0)
	}
	for i := 0; i < 30; i++ {
		m.Observe(rng.NormFloat64()*3.0, 0)
	}

	clock.Advance(301 * time.Second)
	m.Adjust()

	if m.Regime() != RegimeHighVol {
		t.Fatalf("regime = %s, want %s", m.Regime(), RegimeHighVol)
	}
	// One blend step toward 1.5*1.3: 1.5*0.7 + 1.95*0.3 = 1.635.
	p := m.Params()
	if math.Abs(p.StdThreshold-1.635) > 1e-9 {
		t.Fatalf("std threshold = %v, want 1.635", p.StdThreshold)
	}
	if p.MinProfit <= 20.0 {
		t.Fatalf("min profit = %v, want raised above base", p.MinProfit)
	}
}

func TestLowVolatilityLowersThreshold(t *testing.T) {
	m, clock := newTestManager(t)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 170; i++ {
		m.Observe(rng.NormFloat64()*3.0, 0)
	}
	for i := 0; i < 30; i++ {
		m.Observe(rng.NormFloat64()*0.1, 0)
	}

	clock.Advance(301 * time.Second)
	m.Adjust()

	if m.Regime() != RegimeLowVol {
		t.Fatalf("regime = %s, want %s", m.Regime(), RegimeLowVol)
	}
	if p := m.Params(); p.StdThreshold >= 1.5 {
		t.Fatalf("std threshold = %v, want lowered below base", p.StdThreshold)
	}
}

func TestTimeMultiplierAppliedOnReadOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Dynamic.Enabled = true
	cfg.Dynamic.TimeWindows = []config.TimeWindow{
		{Name: "opening", Start: "09:00", End: "11:00", Multiplier: 1.2},
	}
	clock := &util.FakeClock{T: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	m := NewManager(cfg.Dynamic, clock)

	want := 1.5 * 1.2
	if p := m.Params(); math.Abs(p.StdThreshold-want) > 1e-9 {
		t.Fatalf("std threshold = %v, want %v inside window", p.StdThreshold, want)
	}
	// Repeated reads never compound the multiplier.
	if p := m.Params(); math.Abs(p.StdThreshold-want) > 1e-9 {
		t.Fatalf("std threshold compounded on read: %v", p.StdThreshold)
	}
	// Outside the window the base value returns untouched.
	clock.Advance(3 * time.Hour)
	if p := m.Params(); p.StdThreshold != 1.5 {
		t.Fatalf("std threshold = %v outside window, want 1.5", p.StdThreshold)
	}
}

func TestRecentWindowWiderThanHistory(t *testing.T) {
	cfg := config.Default()
	cfg.Dynamic.Enabled = true
	cfg.Dynamic.TimeWindows = nil
	cfg.Dynamic.RecentWindow = 150
	clock := &util.FakeClock{T: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	m := NewManager(cfg.Dynamic, clock)

	// 120 samples pass the detection gate but stay under the recent window.
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 120; i++ {
		m.Observe(rng.NormFloat64(), 0)
	}
	clock.Advance(301 * time.Second)
	m.Adjust()

	// Recent and historical windows coincide, so the ratio is 1.
	if m.Regime() != RegimeNormal {
		t.Fatalf("regime = %s, want %s", m.Regime(), RegimeNormal)
	}
}

func TestDisabledManagerNeverAdjusts(t *testing.T) {
	cfg := config.Default()
	cfg.Dynamic.Enabled = false
	clock := &util.FakeClock{T: time.Unix(0, 0)}
	m := NewManager(cfg.Dynamic, clock)

	for i := 0; i < 200; i++ {
		m.Observe(float64(i%17), 0)
	}
	clock.Advance(time.Hour)
	m.Adjust()
	if p := m.Params(); p.StdThreshold != 1.5 {
		t.Fatalf("disabled manager adjusted: %+v", p)
	}
}

func TestSuccessRate(t *testing.T) {
	m, _ := newTestManager(t)
	if m.SuccessRate() != 0 {
		t.Fatalf("empty success rate = %v", m.SuccessRate())
	}
	m.RegisterResult(true)
	m.RegisterResult(true)
	m.RegisterResult(false)
	m.RegisterResult(false)
	if m.SuccessRate() != 50.0 {
		t.Fatalf("success rate = %v, want 50", m.SuccessRate())
	}
}
