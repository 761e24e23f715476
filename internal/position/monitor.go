// Package position tracks open positions through a monotonic lifecycle and
// raises the alerts that drive exits.
package position

import (
	"fmt"
	"time"

	"tapereader/internal/config"
	"tapereader/internal/signal"
	"tapereader/internal/util"
)

// Status is the lifecycle state of a position. Transitions only move forward:
// ACTIVE to TARGET1 to TARGET2, or ACTIVE/TARGET1 into a terminal state.
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusTarget1     Status = "TARGET1"
	StatusTarget2     Status = "TARGET2"
	StatusStopped     Status = "STOPPED"
	StatusInvalidated Status = "INVALIDATED"
)

// Alert types raised during updates.
const (
	AlertStopLoss       = "STOP_LOSS"
	AlertTarget1        = "TARGET1_REACHED"
	AlertTarget2        = "TARGET2_REACHED"
	AlertTimeExceeded   = "TIME_EXCEEDED"
	AlertAdverseMove    = "ADVERSE_MOVEMENT"
	AlertNoProgress     = "NO_PROGRESS"
	AlertSpreadConverge = "SPREAD_CONVERGED"
)

// Alert is one event raised by an update.
type Alert struct {
	Type     string
	Severity string
	Message  string
}

// Position is one monitored position. Monitor owns all mutation; callers get
// copies.
type Position struct {
	ID           string
	Source       signal.Source
	EntryTime    time.Time
	Action       signal.Action
	Entry        float64
	Stop         float64
	Target1      float64
	Target2      float64
	Contracts    int
	Direction    int
	ZScoreEntry  float64
	Status       Status
	PnL          float64
	CurrentPrice float64
	// TimeInPosition is seconds since entry as of the last update.
	TimeInPosition int
	MaxFavorable   float64
	MaxAdverse     float64

	alertsSent map[string]bool
}

// UpdateResult reports the outcome of one update call.
type UpdateResult struct {
	Found      bool
	Position   Position
	Status     Status
	PnL        float64
	Alerts     []Alert
	ShouldExit bool
}

// Summary describes a closed position.
type Summary struct {
	ID              string
	Action          signal.Action
	Entry           float64
	Exit            float64
	DurationMinutes int
	PnL             float64
	Status          Status
	Reason          string
}

// Stats aggregates session results across closed positions.
type Stats struct {
	TotalPositions  int
	SuccessfulExits int
	Stopped         int
	Invalidated     int
	TotalPnL        float64
	ActivePositions int
	WinRate         float64
}

// Monitor tracks active positions, applies exit logic on every price update
// and accumulates session statistics.
type Monitor struct {
	cfg        config.Position
	pointValue float64
	clock      util.Clock

	positions map[string]*Position
	order     []string

	stats Stats
}

// NewMonitor builds a monitor. A nil clock means wall time.
func NewMonitor(cfg config.Position, pointValue float64, clock util.Clock) *Monitor {
	if clock == nil {
		clock = util.SystemClock()
	}
	return &Monitor{
		cfg:        cfg,
		pointValue: pointValue,
		clock:      clock,
		positions:  make(map[string]*Position),
	}
}

// HasActive reports whether any position is open.
func (m *Monitor) HasActive() bool { return len(m.positions) > 0 }

// Add opens a position from an accepted signal. In single-position mode a
// second concurrent position is rejected.
func (m *Monitor) Add(sig *signal.Signal) (string, error) {
	if !m.cfg.AllowMultiple && m.HasActive() {
		return "", fmt.Errorf("position already active in single mode")
	}
	if sig.ID == "" {
		return "", fmt.Errorf("signal has no id")
	}
	if _, exists := m.positions[sig.ID]; exists {
		return "", fmt.Errorf("position %s already monitored", sig.ID)
	}

	pos := &Position{
		ID:          sig.ID,
		Source:      sig.Source,
		EntryTime:   m.clock.Now(),
		Action:      sig.Action,
		Entry:       sig.Entry,
		Stop:        sig.Stop,
		Target1:     sig.Targets[0],
		Target2:     sig.Targets[1],
		Contracts:   sig.Contracts,
		Direction:   sig.Action.Direction(),
		ZScoreEntry: sig.ZScore,
		Status:      StatusActive,
		alertsSent:  make(map[string]bool),
	}
	m.positions[pos.ID] = pos
	m.order = append(m.order, pos.ID)
	m.stats.TotalPositions++
	return pos.ID, nil
}

// first returns the oldest open position id.
func (m *Monitor) first() string {
	for _, id := range m.order {
		if _, ok := m.positions[id]; ok {
			return id
		}
	}
	return ""
}

// Update refreshes one position against the latest price, spread and z-score.
// An empty id resolves to the oldest position in single-position mode.
// Checks run in fixed priority: stop, then targets, then invalidations.
func (m *Monitor) Update(id string, currentPrice, currentSpread, currentZ float64) UpdateResult {
	if id == "" && !m.cfg.AllowMultiple {
		id = m.first()
	}
	pos, ok := m.positions[id]
	if !ok {
		return UpdateResult{}
	}

	now := m.clock.Now()
	pos.CurrentPrice = currentPrice
	pos.TimeInPosition = int(now.Sub(pos.EntryTime).Seconds())

	movement := (currentPrice - pos.Entry) * float64(pos.Direction)
	pos.PnL = movement * float64(pos.Contracts) * m.pointValue
	if movement > pos.MaxFavorable {
		pos.MaxFavorable = movement
	}
	if movement < pos.MaxAdverse {
		pos.MaxAdverse = movement
	}

	var alerts []Alert
	shouldExit := false

	stopMovement := (pos.Stop - pos.Entry) * float64(pos.Direction)
	terminal := pos.Status == StatusStopped || pos.Status == StatusInvalidated
	targetable := pos.Status == StatusActive || pos.Status == StatusTarget1

	switch {
	case !terminal && movement <= stopMovement:
		pos.Status = StatusStopped
		shouldExit = true
		alerts = append(alerts, Alert{
			Type:     AlertStopLoss,
			Severity: "HIGH",
			Message:  fmt.Sprintf("stop loss hit @ %.2f", currentPrice),
		})
	case targetable:
		t1 := (pos.Target1 - pos.Entry) * float64(pos.Direction)
		t2 := (pos.Target2 - pos.Entry) * float64(pos.Direction)
		if movement >= t2 {
			pos.Status = StatusTarget2
			shouldExit = true
			alerts = append(alerts, Alert{
				Type:     AlertTarget2,
				Severity: "LOW",
				Message:  fmt.Sprintf("target 2 reached @ %.2f", currentPrice),
			})
		} else if movement >= t1 && pos.Status == StatusActive {
			pos.Status = StatusTarget1
			if !pos.alertsSent[AlertTarget1] {
				pos.alertsSent[AlertTarget1] = true
				alerts = append(alerts, Alert{
					Type:     AlertTarget1,
					Severity: "LOW",
					Message:  fmt.Sprintf("target 1 reached @ %.2f", currentPrice),
				})
			}
		}
	}

	if pos.Status == StatusActive {
		exitAlerts, exit := m.checkInvalidations(pos, currentZ)
		alerts = append(alerts, exitAlerts...)
		shouldExit = shouldExit || exit
	}

	return UpdateResult{
		Found:      true,
		Position:   *pos,
		Status:     pos.Status,
		PnL:        pos.PnL,
		Alerts:     alerts,
		ShouldExit: shouldExit,
	}
}

func (m *Monitor) checkInvalidations(pos *Position, currentZ float64) ([]Alert, bool) {
	var alerts []Alert
	shouldExit := false

	if pos.TimeInPosition > m.cfg.MaxTimeMinutes*60 {
		pos.Status = StatusInvalidated
		shouldExit = true
		alerts = append(alerts, Alert{
			Type:     AlertTimeExceeded,
			Severity: "MEDIUM",
			Message:  fmt.Sprintf("max time of %dmin exceeded", m.cfg.MaxTimeMinutes),
		})
	}

	adverseLimit := m.cfg.AdverseLimit
	if pos.Source == signal.SourceTape {
		adverseLimit = m.cfg.TapeAdverseLimit
	}
	adverse := -pos.MaxAdverse
	if adverse > adverseLimit {
		pos.Status = StatusInvalidated
		shouldExit = true
		alerts = append(alerts, Alert{
			Type:     AlertAdverseMove,
			Severity: "HIGH",
			Message:  fmt.Sprintf("adverse movement of %.2f points", adverse),
		})
	} else if pos.TimeInPosition > m.cfg.NoProgressSec &&
		pos.MaxFavorable < m.cfg.FavorableFloor &&
		!pos.alertsSent[AlertNoProgress] {
		pos.alertsSent[AlertNoProgress] = true
		alerts = append(alerts, Alert{
			Type:     AlertNoProgress,
			Severity: "MEDIUM",
			Message:  fmt.Sprintf("no progress after %ds", m.cfg.NoProgressSec),
		})
	}

	// Arbitrage positions warn once when the spread has already reverted.
	if pos.Source == signal.SourceArbitrage && !pos.alertsSent[AlertSpreadConverge] {
		converged := (pos.Direction > 0 && currentZ > -m.cfg.SpreadConvergedZ) ||
			(pos.Direction < 0 && currentZ < m.cfg.SpreadConvergedZ)
		if converged {
			pos.alertsSent[AlertSpreadConverge] = true
			alerts = append(alerts, Alert{
				Type:     AlertSpreadConverge,
				Severity: "MEDIUM",
				Message:  fmt.Sprintf("spread converged, z-score %.2f", currentZ),
			})
		}
	}

	return alerts, shouldExit
}

// Remove closes a position at the given price, books its P&L into the session
// statistics and returns a summary. An empty id resolves to the oldest open
// position in single-position mode.
func (m *Monitor) Remove(id string, exitPrice float64, reason string) (Summary, error) {
	if id == "" && !m.cfg.AllowMultiple {
		id = m.first()
	}
	pos, ok := m.positions[id]
	if !ok {
		return Summary{}, fmt.Errorf("position %q not found", id)
	}
	delete(m.positions, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	pnl := (exitPrice - pos.Entry) * float64(pos.Direction) * float64(pos.Contracts) * m.pointValue
	m.stats.TotalPnL += pnl

	switch {
	case pnl > 0:
		m.stats.SuccessfulExits++
	case pos.Status == StatusStopped:
		m.stats.Stopped++
	default:
		m.stats.Invalidated++
	}

	return Summary{
		ID:              pos.ID,
		Action:          pos.Action,
		Entry:           pos.Entry,
		Exit:            exitPrice,
		DurationMinutes: pos.TimeInPosition / 60,
		PnL:             pnl,
		Status:          pos.Status,
		Reason:          reason,
	}, nil
}

// First returns a copy of the oldest open position.
func (m *Monitor) First() (Position, bool) {
	id := m.first()
	if id == "" {
		return Position{}, false
	}
	return *m.positions[id], true
}

// Active returns copies of every open position, oldest first.
func (m *Monitor) Active() []Position {
	out := make([]Position, 0, len(m.positions))
	for _, id := range m.order {
		if pos, ok := m.positions[id]; ok {
			out = append(out, *pos)
		}
	}
	return out
}

// Statistics returns the session counters including the win rate over closed
// positions.
func (m *Monitor) Statistics() Stats {
	stats := m.stats
	stats.ActivePositions = len(m.positions)
	closed := stats.SuccessfulExits + stats.Stopped + stats.Invalidated
	if closed > 0 {
		stats.WinRate = float64(stats.SuccessfulExits) / float64(closed) * 100
	}
	return stats
}
