package behavior

import (
	"fmt"
	"strings"
	"time"

	"tapereader/internal/config"
	"tapereader/internal/market"
	"tapereader/internal/signal"
	"tapereader/internal/util"
)

// Defense classifications, from most to least aggressive.
const (
	DefenseAggressive = "aggressive_defense"
	DefenseActive     = "active_defense"
	DefensePassive    = "passive_accumulation"
	DefenseHolding    = "position_holding"
)

type levelSample struct {
	at     time.Time
	volume float64
	bid    bool
}

// DefenseDetector watches the top book levels across snapshots for volume
// that keeps being replaced at the same price, the footprint of someone
// defending a level.
type DefenseDetector struct {
	cfg   config.PriceDefense
	clock util.Clock

	// per symbol, per price level
	history map[string]map[float64][]levelSample
}

// NewDefenseDetector builds the detector. A nil clock means wall time.
func NewDefenseDetector(cfg config.PriceDefense, clock util.Clock) *DefenseDetector {
	if clock == nil {
		clock = util.SystemClock()
	}
	return &DefenseDetector{
		cfg:     cfg,
		clock:   clock,
		history: make(map[string]map[float64][]levelSample),
	}
}

type defense struct {
	price       float64
	bid         bool
	class       string
	renovations int
	avgVolume   float64
	persistence float64
	strength    float64
}

// Detect inspects the current book and returns the strongest defense found,
// or nil.
func (d *DefenseDetector) Detect(book market.Book, symbol string) *Record {
	if !book.Complete() {
		return nil
	}
	now := d.clock.Now()

	var found []defense
	track := d.cfg.TrackLevels
	for i, lvl := range book.Bids {
		if i >= track {
			break
		}
		if d.significant(lvl, symbol) {
			if def := d.check(symbol, lvl.Price, lvl.Volume, true, now); def != nil {
				found = append(found, *def)
			}
		}
	}
	for i, lvl := range book.Asks {
		if i >= track {
			break
		}
		if d.significant(lvl, symbol) {
			if def := d.check(symbol, lvl.Price, lvl.Volume, false, now); def != nil {
				found = append(found, *def)
			}
		}
	}

	d.prune(symbol, now)

	if len(found) == 0 {
		return nil
	}
	best := found[0]
	for _, def := range found[1:] {
		if def.strength > best.strength {
			best = def
		}
	}
	return d.record(best, symbol)
}

func (d *DefenseDetector) significantSize(symbol string) float64 {
	if v, ok := d.cfg.SignificantSizes[symbol]; ok {
		return v
	}
	for key, v := range d.cfg.SignificantSizes {
		if strings.Contains(symbol, key) {
			return v
		}
	}
	return 0
}

func (d *DefenseDetector) significant(lvl market.BookLevel, symbol string) bool {
	min := d.significantSize(symbol)
	return min > 0 && lvl.Volume >= min
}

func (d *DefenseDetector) check(symbol string, price, volume float64, bid bool, now time.Time) *defense {
	levels := d.history[symbol]
	if levels == nil {
		levels = make(map[float64][]levelSample)
		d.history[symbol] = levels
	}
	history := append(levels[price], levelSample{at: now, volume: volume, bid: bid})

	cutoff := now.Add(-time.Duration(d.cfg.TimeWindowSec) * time.Second)
	for len(history) > 0 && history[0].at.Before(cutoff) {
		history = history[1:]
	}
	levels[price] = history

	if len(history) < 3 {
		return nil
	}

	renovations := d.countRenovations(history, symbol)
	if renovations < d.cfg.MinRenovations {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.volume
	}
	avg := total / float64(len(history))
	persistence := history[len(history)-1].at.Sub(history[0].at).Seconds()

	return &defense{
		price:       price,
		bid:         bid,
		class:       d.classify(renovations, persistence),
		renovations: renovations,
		avgVolume:   avg,
		persistence: persistence,
		strength:    d.strength(renovations, persistence, avg, symbol),
	}
}

// countRenovations counts volume growth and quick same-size replacement at a
// level. Growth over half the significant size or a fast refill both count.
func (d *DefenseDetector) countRenovations(history []levelSample, symbol string) int {
	if len(history) < 2 {
		return 0
	}
	minSize := d.significantSize(symbol)
	count := 0
	for i := 1; i < len(history); i++ {
		prev, curr := history[i-1], history[i]
		if curr.volume > prev.volume+minSize*0.5 {
			count++
		} else if prev.volume > minSize && curr.volume > minSize*0.8 &&
			curr.at.Sub(prev.at).Seconds() < d.cfg.QuickReplacementSec {
			count++
		}
	}
	return count
}

func (d *DefenseDetector) classify(renovations int, persistence float64) string {
	switch {
	case renovations >= d.cfg.AggressiveRenovation && persistence < d.cfg.AggressiveMaxSec:
		return DefenseAggressive
	case renovations >= d.cfg.ActiveRenovations && persistence < d.cfg.ActiveMaxSec:
		return DefenseActive
	case persistence > d.cfg.PassiveMinSec:
		return DefensePassive
	default:
		return DefenseHolding
	}
}

func (d *DefenseDetector) strength(renovations int, persistence, avgVolume float64, symbol string) float64 {
	score := 0.0

	renoScore := float64(renovations) / (float64(d.cfg.MinRenovations) * d.cfg.RenovationDivisor)
	score += min1(renoScore) * d.cfg.RenovationWeight

	if persistence > 0 {
		score += min1(persistence/float64(d.cfg.TimeWindowSec)) * d.cfg.PersistenceWeight
	}

	expected := d.significantSize(symbol)
	if expected > 0 {
		score += min1(avgVolume/(expected*d.cfg.VolumeDivisor)) * d.cfg.VolumeWeight
	}

	if score > 100 {
		score = 100
	}
	return score
}

func (d *DefenseDetector) record(def defense, symbol string) *Record {
	direction := signal.ActionBuy
	levelType := "support"
	if !def.bid {
		direction = signal.ActionSell
		levelType = "resistance"
	}

	var desc string
	switch def.class {
	case DefenseAggressive:
		desc = fmt.Sprintf("aggressive %s defense on %s @ %.2f", levelType, symbol, def.price)
	case DefenseActive:
		desc = fmt.Sprintf("active %s defense on %s @ %.2f", levelType, symbol, def.price)
	case DefensePassive:
		desc = fmt.Sprintf("passive accumulation on %s @ %.2f", symbol, def.price)
	default:
		desc = fmt.Sprintf("position holding on %s @ %.2f", symbol, def.price)
	}

	return &Record{
		Type:        TypePriceDefense,
		Symbol:      symbol,
		Direction:   string(direction),
		Strength:    def.strength,
		Description: desc,
	}
}

// prune drops levels that have gone quiet for two full windows.
func (d *DefenseDetector) prune(symbol string, now time.Time) {
	cutoff := now.Add(-2 * time.Duration(d.cfg.TimeWindowSec) * time.Second)
	for price, history := range d.history[symbol] {
		if len(history) == 0 || history[len(history)-1].at.Before(cutoff) {
			delete(d.history[symbol], price)
		}
	}
}
