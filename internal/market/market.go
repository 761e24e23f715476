// Package market standardizes the normalized snapshot shape shared between the
// data layer and the analysis components.
package market

import (
	"fmt"
	"hash/fnv"
	"time"
)

// Side identifies the aggressor side of a trade.
type Side string

const (
	// SideBuy marks a trade where the buyer crossed the spread.
	SideBuy Side = "BUY"
	// SideSell marks a trade where the seller crossed the spread.
	SideSell Side = "SELL"
)

// Trade is a single time-and-sales row. Timestamps are intraday strings with
// millisecond precision so that lexical order matches chronological order.
type Trade struct {
	Timestamp        string  `json:"timestamp"`
	Symbol           string  `json:"symbol"`
	Side             Side    `json:"side"`
	Price            float64 `json:"price"`
	Volume           float64 `json:"volume"`
	NormalizedVolume float64 `json:"normalized_volume,omitempty"`
}

// EffectiveVolume prefers the normalized volume when it has been populated.
func (t Trade) EffectiveVolume() float64 {
	if t.NormalizedVolume > 0 {
		return t.NormalizedVolume
	}
	return t.Volume
}

// BookLevel is one resting price level. ID and Time are optional queue
// metadata carried through from the venue when available.
type BookLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	ID     string  `json:"id,omitempty"`
	Time   string  `json:"time,omitempty"`
}

// Book is an order book snapshot, best price first on both sides.
type Book struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}

// Complete reports whether both sides have at least one level.
func (b Book) Complete() bool {
	return len(b.Bids) > 0 && len(b.Asks) > 0
}

// Mid returns the midpoint of the best bid and ask. ok is false when either
// side is empty.
func (b Book) Mid() (mid float64, ok bool) {
	if !b.Complete() {
		return 0, false
	}
	return (b.Bids[0].Price + b.Asks[0].Price) / 2, true
}

// BestBid returns the top bid price, or 0 when the side is empty.
func (b Book) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the top ask price, or 0 when the side is empty.
func (b Book) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// Instrument bundles the book and trade list delivered for one symbol.
type Instrument struct {
	Book   Book    `json:"book"`
	Trades []Trade `json:"trades"`
}

// Snapshot is one full market observation keyed by symbol, produced by the
// data collaborator once per engine cycle.
type Snapshot struct {
	Instruments map[string]Instrument `json:"instruments"`
	Timestamp   time.Time             `json:"timestamp"`
}

// Instrument returns the data for the given symbol, with ok=false when the
// snapshot does not carry it.
func (s *Snapshot) Instrument(symbol string) (Instrument, bool) {
	inst, ok := s.Instruments[symbol]
	return inst, ok
}

// Hash fingerprints the decision-relevant surface of the snapshot: the top of
// each book plus the newest trade timestamp per symbol. Two snapshots with the
// same hash carry no new information and the engine skips the cycle.
func (s *Snapshot) Hash(symbols ...string) string {
	h := fnv.New64a()
	for _, sym := range symbols {
		inst, ok := s.Instruments[sym]
		if !ok {
			continue
		}
		fmt.Fprintf(h, "%s|%.4f|%.4f", sym, inst.Book.BestBid(), inst.Book.BestAsk())
		if n := len(inst.Trades); n > 0 {
			fmt.Fprintf(h, "|%s", inst.Trades[n-1].Timestamp)
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
