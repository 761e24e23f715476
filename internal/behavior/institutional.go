package behavior

import (
	"fmt"

	"tapereader/internal/config"
	"tapereader/internal/market"
	"tapereader/internal/signal"
)

// InstitutionalDetector finds large-lot activity and the side it favors.
type InstitutionalDetector struct {
	cfg config.Institutional
}

// NewInstitutionalDetector builds the detector.
func NewInstitutionalDetector(cfg config.Institutional) *InstitutionalDetector {
	return &InstitutionalDetector{cfg: cfg}
}

// Detect reports dominant large-lot flow, or nil when no lot clears the size
// floor or neither side dominates.
func (d *InstitutionalDetector) Detect(trades []market.Trade) *Record {
	var buyVol, sellVol float64
	found := false
	for _, tr := range trades {
		vol := tr.EffectiveVolume()
		if vol < d.cfg.SizeFloor {
			continue
		}
		found = true
		switch tr.Side {
		case market.SideBuy:
			buyVol += vol
		case market.SideSell:
			sellVol += vol
		}
	}
	if !found {
		return nil
	}

	var direction signal.Action
	var strength float64
	switch {
	case buyVol > sellVol*d.cfg.DominanceRatio:
		direction = signal.ActionBuy
		strength = buyVol / (sellVol + 1) * d.cfg.StrengthMultiplier
	case sellVol > buyVol*d.cfg.DominanceRatio:
		direction = signal.ActionSell
		strength = sellVol / (buyVol + 1) * d.cfg.StrengthMultiplier
	default:
		return nil
	}
	if strength > 100 {
		strength = 100
	}

	return &Record{
		Type:        TypeInstitutional,
		Direction:   string(direction),
		Strength:    strength,
		Description: fmt.Sprintf("institutional %s flow", direction),
	}
}
