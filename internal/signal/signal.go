// Package signal standardizes the payloads shared between the analysis,
// position, and logging layers.
package signal

import "time"

// Action is the trade direction carried on a signal. The values match the
// venue's aggressor terminology and are part of the audit-log contract.
type Action string

const (
	// ActionBuy opens or flags a long.
	ActionBuy Action = "COMPRA"
	// ActionSell opens or flags a short.
	ActionSell Action = "VENDA"
)

// Direction maps the action onto a +1/-1 sign for P&L math.
func (a Action) Direction() int {
	if a == ActionSell {
		return -1
	}
	return 1
}

// Source tags which analysis path produced a signal.
type Source string

const (
	// SourceArbitrage marks signals from the statistical spread path.
	SourceArbitrage Source = "ARBITRAGE"
	// SourceTape marks signals from the order-flow path.
	SourceTape Source = "TAPE_READING"
)

// Leadership values for the optional leading-instrument annotation.
const (
	LeaderNeutral = "NEUTRO"
)

// Signal is a fully formed trading recommendation. It is immutable once
// emitted; the position monitor and loggers only read it.
type Signal struct {
	ID             string     `json:"signal_id"`
	Action         Action     `json:"action"`
	Asset          string     `json:"asset"`
	Entry          float64    `json:"entry"`
	Targets        [2]float64 `json:"targets"`
	Stop           float64    `json:"stop"`
	Confidence     int        `json:"confidence"`
	Contracts      int        `json:"contracts"`
	ExpectedProfit float64    `json:"expected_profit"`
	Risk           float64    `json:"risk"`
	Spread         float64    `json:"spread"`
	ZScore         float64    `json:"z_score"`
	Triggers       []string   `json:"triggers"`
	Source         Source     `json:"source"`
	Leader         string     `json:"leader,omitempty"`
	Behaviors      []string   `json:"behaviors,omitempty"`
	Ts             time.Time  `json:"ts"`
}
