package spread

import (
	"math"
	"testing"

	"tapereader/internal/config"
)

func testCfg() config.Statistics {
	return config.Statistics{
		HistorySize:       100,
		LeaderHistorySize: 50,
		MinSamples:        20,
		LeaderLookback:    5,
		LeaderRatio:       1.2,
	}
}

func TestStatisticsBelowMinSamples(t *testing.T) {
	tr := NewTracker(testCfg())
	for i := 0; i < 10; i++ {
		tr.Update(float64(i), 5000, 5001)
	}
	s := tr.Statistics()
	if s.Samples != 10 {
		t.Fatalf("samples = %d, want 10", s.Samples)
	}
	if s.Current != 9 {
		t.Fatalf("current = %v, want 9", s.Current)
	}
	if s.Mean != 0 || s.Std != 0 || s.ZScore != 0 || s.Min != 0 || s.Max != 0 {
		t.Fatalf("statistical fields should stay zero below min samples: %+v", s)
	}
	if s.Ready(20) {
		t.Fatalf("Ready should be false at 10/20 samples")
	}
}

func TestStatisticsKnownValues(t *testing.T) {
	tr := NewTracker(testCfg())
	// 24 samples alternating -1/+1 around zero, then a final outlier at 2.
	for i := 0; i < 24; i++ {
		v := 1.0
		if i%2 == 0 {
			v = -1.0
		}
		tr.Update(v, 5000, 5001)
	}
	tr.Update(2.0, 5000, 5001)

	s := tr.Statistics()
	if s.Samples != 25 {
		t.Fatalf("samples = %d, want 25", s.Samples)
	}
	if s.Current != 2.0 {
		t.Fatalf("current = %v, want 2.0", s.Current)
	}
	wantMean := 2.0 / 25.0
	if math.Abs(s.Mean-wantMean) > 1e-9 {
		t.Fatalf("mean = %v, want %v", s.Mean, wantMean)
	}
	if s.Std <= 0 {
		t.Fatalf("std = %v, want > 0", s.Std)
	}
	wantZ := (2.0 - wantMean) / s.Std
	if math.Abs(s.ZScore-wantZ) > 1e-9 {
		t.Fatalf("z = %v, want %v", s.ZScore, wantZ)
	}
	if s.Min != -1.0 || s.Max != 2.0 {
		t.Fatalf("min/max = %v/%v, want -1/2", s.Min, s.Max)
	}
}

func TestStatisticsIdempotentWithoutUpdate(t *testing.T) {
	tr := NewTracker(testCfg())
	for i := 0; i < 30; i++ {
		tr.Update(float64(i%7)-3, 5000, 5001)
	}
	a := tr.Statistics()
	b := tr.Statistics()
	if a != b {
		t.Fatalf("repeated reads diverged: %+v vs %+v", a, b)
	}
}

func TestWindowEviction(t *testing.T) {
	cfg := testCfg()
	cfg.HistorySize = 5
	tr := NewTracker(cfg)
	for i := 0; i < 12; i++ {
		tr.Update(float64(i), 5000, 5001)
	}
	if tr.Len() != 5 {
		t.Fatalf("len = %d, want 5", tr.Len())
	}
	h := tr.History()
	want := []float64{7, 8, 9, 10, 11}
	for i, v := range want {
		if h[i] != v {
			t.Fatalf("history[%d] = %v, want %v", i, h[i], v)
		}
	}
}

func TestZeroStdGivesZeroZScore(t *testing.T) {
	tr := NewTracker(testCfg())
	for i := 0; i < 25; i++ {
		tr.Update(1.5, 5000, 5001)
	}
	s := tr.Statistics()
	if s.Std != 0 {
		t.Fatalf("std = %v, want 0 for constant series", s.Std)
	}
	if s.ZScore != 0 {
		t.Fatalf("z = %v, want 0 when std is 0", s.ZScore)
	}
}

func TestLeadership(t *testing.T) {
	tr := NewTracker(testCfg())
	// Leg A rallies 5 points while leg B barely moves.
	for i := 0; i < 6; i++ {
		tr.Update(0, 5000+float64(i), 5500+0.1*float64(i))
	}
	if got := tr.Leadership(); got != LeaderA {
		t.Fatalf("leadership = %v, want LeaderA", got)
	}

	tr = NewTracker(testCfg())
	for i := 0; i < 6; i++ {
		tr.Update(0, 5000+0.1*float64(i), 5500-float64(i))
	}
	if got := tr.Leadership(); got != LeaderB {
		t.Fatalf("leadership = %v, want LeaderB", got)
	}
}

func TestLeadershipNeutralCases(t *testing.T) {
	tr := NewTracker(testCfg())
	// Too few samples.
	tr.Update(0, 5000, 5500)
	tr.Update(0, 5010, 5510)
	if got := tr.Leadership(); got != LeaderNone {
		t.Fatalf("leadership with short history = %v, want LeaderNone", got)
	}

	// Comparable moves on both legs.
	tr = NewTracker(testCfg())
	for i := 0; i < 6; i++ {
		tr.Update(0, 5000+float64(i), 5500+float64(i))
	}
	if got := tr.Leadership(); got != LeaderNone {
		t.Fatalf("leadership with balanced moves = %v, want LeaderNone", got)
	}
}
