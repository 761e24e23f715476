package behavior

import (
	"fmt"

	"tapereader/internal/config"
	"tapereader/internal/market"
	"tapereader/internal/signal"
)

// AbsorptionDetector flags heavy one-sided volume that fails to move price,
// which suggests a large passive player absorbing the aggression.
type AbsorptionDetector struct {
	cfg config.Absorption
}

// NewAbsorptionDetector builds the detector.
func NewAbsorptionDetector(cfg config.Absorption) *AbsorptionDetector {
	return &AbsorptionDetector{cfg: cfg}
}

// Detect reports absorption over the given trades, or nil.
func (d *AbsorptionDetector) Detect(trades []market.Trade) *Record {
	if len(trades) < d.cfg.MinTrades {
		return nil
	}

	var buyVol, sellVol float64
	lo, hi := trades[0].Price, trades[0].Price
	for _, tr := range trades {
		switch tr.Side {
		case market.SideBuy:
			buyVol += tr.EffectiveVolume()
		case market.SideSell:
			sellVol += tr.EffectiveVolume()
		}
		if tr.Price < lo {
			lo = tr.Price
		}
		if tr.Price > hi {
			hi = tr.Price
		}
	}
	priceRange := hi - lo
	maxRange := d.cfg.PriceImpactTicks * d.cfg.TickSize

	// Heavy selling that fails to push price down means a buyer is absorbing.
	if sellVol > buyVol*d.cfg.VolumeRatio && priceRange <= maxRange {
		return &Record{
			Type:        TypeAbsorption,
			Direction:   string(signal.ActionBuy),
			Strength:    70,
			Description: fmt.Sprintf("sell-side absorption in %.2f point range", priceRange),
		}
	}
	if buyVol > sellVol*d.cfg.VolumeRatio && priceRange <= maxRange {
		return &Record{
			Type:        TypeAbsorption,
			Direction:   string(signal.ActionSell),
			Strength:    70,
			Description: fmt.Sprintf("buy-side absorption in %.2f point range", priceRange),
		}
	}
	return nil
}
