package feed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"tapereader/internal/market"
)

// Stub fabricates a correlated two-leg market with a mean-reverting spread.
// Deterministic for a given seed.
type Stub struct {
	legA, legB string

	mu       sync.Mutex
	rng      *rand.Rand
	seq      int
	baseA    float64
	baseB    float64
	interval time.Duration
	last     time.Time
	lastSnap *market.Snapshot
}

// NewStub builds a stub feed for the instrument pair.
func NewStub(legA, legB string) *Stub {
	return &Stub{
		legA:  legA,
		legB:  legB,
		rng:   rand.New(rand.NewSource(42)),
		baseA: 5752.0,
		baseB: 5750.0,
	}
}

// Seed replaces the random source, for tests.
func (s *Stub) Seed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = rand.New(rand.NewSource(seed))
}

// Throttle caps how often a fresh snapshot is fabricated; inside the interval
// the previous snapshot is served again and the engine's hash check skips it.
func (s *Stub) Throttle(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
}

// Start is a no-op; the stub fabricates data on demand.
func (s *Stub) Start(ctx context.Context) {}

// Snapshot fabricates the next market view. Both legs random-walk together
// while their spread oscillates around two points.
func (s *Stub) Snapshot(ctx context.Context) (*market.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interval > 0 && s.lastSnap != nil && time.Since(s.last) < s.interval {
		return s.lastSnap, nil
	}

	s.seq++
	drift := s.rng.NormFloat64() * 0.25
	s.baseA += drift + s.rng.NormFloat64()*0.1
	s.baseB += drift
	// Pull the spread gently back toward its resting level.
	s.baseA -= ((s.baseA - s.baseB) - 2.0) * 0.05

	now := time.Now()
	snap := &market.Snapshot{
		Timestamp:   now,
		Instruments: map[string]market.Instrument{},
	}
	snap.Instruments[s.legA] = s.instrument(s.legA, s.baseA, 400, now)
	snap.Instruments[s.legB] = s.instrument(s.legB, s.baseB, 100, now)
	s.last = now
	s.lastSnap = snap
	return snap, nil
}

func (s *Stub) instrument(symbol string, mid, baseVol float64, now time.Time) market.Instrument {
	const tick = 0.5
	bid := math.Floor(mid/tick)*tick - tick/2
	ask := bid + tick

	book := market.Book{
		Bids: []market.BookLevel{
			{Price: bid, Volume: baseVol + float64(s.rng.Intn(200)), Time: now.Format("15:04:05")},
			{Price: bid - tick, Volume: baseVol + float64(s.rng.Intn(200)), Time: now.Format("15:04:05")},
			{Price: bid - 2*tick, Volume: baseVol + float64(s.rng.Intn(200)), Time: now.Format("15:04:05")},
		},
		Asks: []market.BookLevel{
			{Price: ask, Volume: baseVol + float64(s.rng.Intn(200)), Time: now.Format("15:04:05")},
			{Price: ask + tick, Volume: baseVol + float64(s.rng.Intn(200)), Time: now.Format("15:04:05")},
			{Price: ask + 2*tick, Volume: baseVol + float64(s.rng.Intn(200)), Time: now.Format("15:04:05")},
		},
	}

	count := 1 + s.rng.Intn(3)
	trades := make([]market.Trade, count)
	for i := range trades {
		side := market.SideBuy
		price := ask
		if s.rng.Intn(2) == 0 {
			side = market.SideSell
			price = bid
		}
		trades[i] = market.Trade{
			Timestamp: fmt.Sprintf("%s.%03d", now.Format("15:04:05"), s.seq%1000*3+i),
			Symbol:    symbol,
			Side:      side,
			Price:     price,
			Volume:    float64(1 + s.rng.Intn(50)),
		}
	}
	return market.Instrument{Book: book, Trades: trades}
}
