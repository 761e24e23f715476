// Package behavior detects order-flow patterns that confirm or warn against
// directional signals: absorption, exhaustion, institutional activity and
// price defense on the book.
package behavior

// Pattern types reported by the detectors.
const (
	TypeAbsorption    = "absorption"
	TypePullback      = "pullback"
	TypeExhaustion    = "exhaustion"
	TypeInstitutional = "institutional"
	TypePriceDefense  = "price_defense"
)

// Record is one detected pattern. Direction is the side the pattern favors,
// in venue terms (COMPRA or VENDA).
type Record struct {
	Type        string
	Symbol      string
	Direction   string
	Strength    float64
	Description string
}
