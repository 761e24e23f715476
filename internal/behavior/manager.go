package behavior

import (
	"tapereader/internal/config"
	"tapereader/internal/market"
	"tapereader/internal/util"
)

// Manager runs every detector over a symbol's flow and book.
type Manager struct {
	absorption    *AbsorptionDetector
	exhaustion    *ExhaustionDetector
	institutional *InstitutionalDetector
	defense       *DefenseDetector
}

// NewManager wires all detectors from configuration. A nil clock means wall
// time.
func NewManager(cfg config.Behavior, clock util.Clock) *Manager {
	return &Manager{
		absorption:    NewAbsorptionDetector(cfg.Absorption),
		exhaustion:    NewExhaustionDetector(cfg.Exhaustion),
		institutional: NewInstitutionalDetector(cfg.Institutional),
		defense:       NewDefenseDetector(cfg.PriceDefense, clock),
	}
}

// AnalyzeSymbol runs the trade-based detectors over one symbol's trades and
// returns every pattern found, tagged with the symbol.
func (m *Manager) AnalyzeSymbol(trades []market.Trade, symbol string) []Record {
	var own []market.Trade
	for _, tr := range trades {
		if tr.Symbol == symbol {
			own = append(own, tr)
		}
	}
	if len(own) == 0 {
		return nil
	}

	var records []Record
	for _, rec := range []*Record{
		m.absorption.Detect(own),
		m.institutional.Detect(own),
		m.exhaustion.Detect(own),
	} {
		if rec != nil {
			rec.Symbol = symbol
			records = append(records, *rec)
		}
	}
	return records
}

// DetectDefense runs the book-based detector for one symbol.
func (m *Manager) DetectDefense(book market.Book, symbol string) *Record {
	return m.defense.Detect(book, symbol)
}
