package market

// VolumeNormalizer rescales trade volume across instruments to a common unit
// using fixed per-symbol weights (e.g. 5 mini contracts equal 1 full contract).
type VolumeNormalizer struct {
	weights map[string]float64
}

// NewVolumeNormalizer builds a normalizer from per-symbol weights. Symbols
// without a weight keep their raw volume (weight 1.0).
func NewVolumeNormalizer(weights map[string]float64) *VolumeNormalizer {
	w := make(map[string]float64, len(weights))
	for sym, weight := range weights {
		if weight > 0 {
			w[sym] = weight
		}
	}
	return &VolumeNormalizer{weights: w}
}

// Weight returns the configured weight for a symbol, defaulting to 1.0.
func (n *VolumeNormalizer) Weight(symbol string) float64 {
	if w, ok := n.weights[symbol]; ok {
		return w
	}
	return 1.0
}

// Normalize returns a copy of trades with NormalizedVolume populated. The
// input slice is left untouched; trades are immutable once created.
func (n *VolumeNormalizer) Normalize(trades []Trade) []Trade {
	out := make([]Trade, len(trades))
	for i, t := range trades {
		t.NormalizedVolume = t.Volume * n.Weight(t.Symbol)
		out[i] = t
	}
	return out
}
