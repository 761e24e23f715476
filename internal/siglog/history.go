package siglog

import (
	"tapereader/internal/signal"
	"tapereader/internal/util"
)

// History entry statuses.
const (
	HistoryActive  = "active"
	HistorySuccess = "success"
	HistoryFailed  = "failed"
)

// HistoryEntry is one line of the recent-signal display.
type HistoryEntry struct {
	Time       string
	Action     signal.Action
	Price      float64
	Confidence int
	Status     string
	Profit     float64
	Loss       float64
}

// History keeps the last N signals for display, newest last.
type History struct {
	max     int
	clock   util.Clock
	entries []HistoryEntry
}

// NewHistory builds a ring of the given size. A nil clock means wall time.
func NewHistory(max int, clock util.Clock) *History {
	if clock == nil {
		clock = util.SystemClock()
	}
	return &History{max: max, clock: clock}
}

// Add records a freshly generated signal.
func (h *History) Add(sig *signal.Signal) {
	h.entries = append(h.entries, HistoryEntry{
		Time:       h.clock.Now().Format("15:04"),
		Action:     sig.Action,
		Price:      sig.Entry,
		Confidence: sig.Confidence,
		Status:     HistoryActive,
	})
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
}

// UpdateLast sets the outcome of the most recent signal. The value books as
// profit on success and as loss on failure.
func (h *History) UpdateLast(status string, value float64) {
	if len(h.entries) == 0 {
		return
	}
	last := &h.entries[len(h.entries)-1]
	last.Status = status
	switch status {
	case HistorySuccess:
		last.Profit = value
	case HistoryFailed:
		last.Loss = value
	}
}

// Entries returns a copy of the history, oldest first.
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}
