package microstructure

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/store"
)

// Config tunes the pattern detectors. Zero values fall back to defaults.
type Config struct {
	// Window is how much snapshot history feeds one analysis pass.
	Window time.Duration `yaml:"window" default:"60s"`
	// TickSize groups price levels and bounds wall-trend classification.
	TickSize float64 `yaml:"tick_size" default:"0.5"`
	// MinLevelSize filters noise levels out of spoof tracking.
	MinLevelSize float64 `yaml:"min_level_size" default:"1.0"`
	// SpoofCycles is the appear/disappear count that qualifies a candidate.
	SpoofCycles int `yaml:"spoof_cycles" default:"3"`
	// IcebergRefills is the refill count that qualifies a candidate.
	IcebergRefills int `yaml:"iceberg_refills" default:"3"`
	// RefillRatio is the fraction of prior size a level must recover to
	// count as a refill.
	RefillRatio float64 `yaml:"refill_ratio" default:"0.8"`
	// WallSizeMultiple is the median-size multiple that qualifies a wall.
	WallSizeMultiple float64 `yaml:"wall_size_multiple" default:"2.0"`
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 60 * time.Second
	}
	if c.TickSize <= 0 {
		c.TickSize = 0.5
	}
	if c.MinLevelSize <= 0 {
		c.MinLevelSize = 1.0
	}
	if c.SpoofCycles <= 0 {
		c.SpoofCycles = 3
	}
	if c.IcebergRefills <= 0 {
		c.IcebergRefills = 3
	}
	if c.RefillRatio <= 0 {
		c.RefillRatio = 0.8
	}
	if c.WallSizeMultiple <= 0 {
		c.WallSizeMultiple = 2.0
	}
	return c
}

// Detector consumes the rolling order book window and reports spoofing,
// iceberg refills, and wall migration. The ingestion scheduler is the only
// writer; Analyze is read-only and safe for concurrent callers.
type Detector struct {
	cfg    Config
	mu     sync.RWMutex
	byInst map[string][]domain.OrderBookSnapshot
	trades *store.TradeLog // optional fill cross-reference; nil lowers confidence
	now    func() time.Time
}

// NewDetector builds a detector. trades may be nil when no print feed is
// available; spoof findings are then flagged unconfirmed.
func NewDetector(cfg Config, trades *store.TradeLog) *Detector {
	return &Detector{
		cfg:    cfg.withDefaults(),
		byInst: make(map[string][]domain.OrderBookSnapshot),
		trades: trades,
		now:    time.Now,
	}
}

// Record appends one atomic snapshot and prunes the window.
func (d *Detector) Record(snap domain.OrderBookSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	window := append(d.byInst[snap.Instrument], snap)
	cutoff := d.now().Add(-d.cfg.Window)
	i := 0
	for i < len(window) && window[i].Timestamp.Before(cutoff) {
		i++
	}
	d.byInst[snap.Instrument] = window[i:]
}

// SnapshotCount reports the current window length for one instrument.
func (d *Detector) SnapshotCount(instrument string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byInst[instrument])
}

// Latest returns the newest recorded snapshot for one instrument.
func (d *Detector) Latest(instrument string) (domain.OrderBookSnapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	window := d.byInst[instrument]
	if len(window) == 0 {
		return domain.OrderBookSnapshot{}, false
	}
	return window[len(window)-1], true
}

type levelObs struct {
	index int // snapshot index within the window
	ts    time.Time
	size  float64
}

type levelKey struct {
	side Side
	tick int64
}

// Side alias keeps the key struct compact.
type Side = domain.Side

// Analyze runs all three detectors over the current window. Fewer than
// three snapshots yields an empty report, never an error.
func (d *Detector) Analyze(instrument string) domain.MicrostructureReport {
	d.mu.RLock()
	window := make([]domain.OrderBookSnapshot, len(d.byInst[instrument]))
	copy(window, d.byInst[instrument])
	d.mu.RUnlock()

	report := domain.MicrostructureReport{
		Instrument: instrument,
		Timestamp:  d.now(),
		BidWall:    domain.WallState{Side: domain.SideBid, Trend: domain.WallAbsent},
		AskWall:    domain.WallState{Side: domain.SideAsk, Trend: domain.WallAbsent},
	}
	report.SnapshotCount = len(window)
	if len(window) < 3 {
		return report
	}

	levels := d.collectLevels(window)
	times := make([]time.Time, len(window))
	for i, snap := range window {
		times[i] = snap.Timestamp
	}
	var prints []domain.Trade
	if d.trades != nil {
		prints = d.trades.Since(instrument, window[0].Timestamp)
		report.TradeConfirmed = len(prints) > 0
	}

	icebergLevels := make(map[levelKey]bool)
	for key, obs := range levels {
		if ib, ok := d.detectIceberg(key, obs); ok {
			icebergLevels[key] = true
			report.Icebergs = append(report.Icebergs, ib)
		}
	}
	for key, obs := range levels {
		if icebergLevels[key] {
			// A confirmed partial fill pattern wins over spoof at the same level.
			continue
		}
		if sp, ok := d.detectSpoof(key, obs, times, prints); ok {
			report.Spoofing = append(report.Spoofing, sp)
		}
	}
	sortSpoofs(report.Spoofing)
	sortIcebergs(report.Icebergs)

	report.BidWall = d.trackWall(domain.SideBid, window)
	report.AskWall = d.trackWall(domain.SideAsk, window)

	report.Tags = buildTags(report)
	if len(report.Tags) > 0 {
		log.Debug().Str("instrument", instrument).Strs("tags", report.Tags).
			Int("snapshots", report.SnapshotCount).Msg("microstructure patterns detected")
	}
	return report
}

func (d *Detector) tickOf(price float64) int64 {
	return int64(math.Round(price / d.cfg.TickSize))
}

func (d *Detector) collectLevels(window []domain.OrderBookSnapshot) map[levelKey][]levelObs {
	levels := make(map[levelKey][]levelObs)
	record := func(side Side, lv domain.PriceLevel, idx int, ts time.Time) {
		if lv.Size < d.cfg.MinLevelSize {
			return
		}
		key := levelKey{side: side, tick: d.tickOf(lv.Price)}
		levels[key] = append(levels[key], levelObs{index: idx, ts: ts, size: lv.Size})
	}
	for i, snap := range window {
		for _, lv := range snap.Bids {
			record(domain.SideBid, lv, i, snap.Timestamp)
		}
		for _, lv := range snap.Asks {
			record(domain.SideAsk, lv, i, snap.Timestamp)
		}
	}
	return levels
}

// detectSpoof counts full appear->disappear cycles for one level. A
// disappearance backed by a print at that price within the same snapshot
// interval is treated as an execution, not a cancellation; prints outside
// that interval say nothing about it.
func (d *Detector) detectSpoof(key levelKey, obs []levelObs, times []time.Time, prints []domain.Trade) (domain.SpoofCandidate, bool) {
	price := float64(key.tick) * d.cfg.TickSize

	present := make([]bool, len(times))
	var sizeSum float64
	for _, o := range obs {
		present[o.index] = true
		sizeSum += o.size
	}

	cycles := 0
	for i := 1; i < len(times); i++ {
		if present[i-1] && !present[i] && !d.executedBetween(price, times[i-1], times[i], prints) {
			cycles++
		}
	}
	if cycles < d.cfg.SpoofCycles {
		return domain.SpoofCandidate{}, false
	}

	confidence := "moderate"
	if cycles >= 5 {
		confidence = "high"
	}
	return domain.SpoofCandidate{
		Side:              key.side,
		Price:             price,
		FirstSeen:         obs[0].ts,
		LastSeen:          obs[len(obs)-1].ts,
		ReappearanceCount: cycles,
		AvgSize:           sizeSum / float64(len(obs)),
		Confidence:        confidence,
	}, true
}

func (d *Detector) executedBetween(price float64, from, to time.Time, prints []domain.Trade) bool {
	half := d.cfg.TickSize / 2
	for _, t := range prints {
		if t.Timestamp.Before(from) || t.Timestamp.After(to) {
			continue
		}
		if math.Abs(t.Price-price) <= half {
			return true
		}
	}
	return false
}

// detectIceberg looks for reduce-then-refill sequences on consecutive
// snapshots: size drops, then recovers to >= RefillRatio of the prior size
// within one snapshot interval.
func (d *Detector) detectIceberg(key levelKey, obs []levelObs) (domain.IcebergCandidate, bool) {
	if len(obs) < 3 {
		return domain.IcebergCandidate{}, false
	}

	refills := 0
	var filled float64
	for i := 1; i < len(obs)-1; i++ {
		prev, cur, next := obs[i-1], obs[i], obs[i+1]
		consecutive := cur.index == prev.index+1 && next.index == cur.index+1
		if !consecutive {
			continue
		}
		if cur.size < prev.size && next.size >= d.cfg.RefillRatio*prev.size {
			refills++
			filled += prev.size - cur.size
		}
	}
	if refills < d.cfg.IcebergRefills {
		return domain.IcebergCandidate{}, false
	}

	confidence := "moderate"
	if refills >= 5 {
		confidence = "high"
	}
	return domain.IcebergCandidate{
		Side:            key.side,
		Price:           float64(key.tick) * d.cfg.TickSize,
		RefillCount:     refills,
		CumulativeFills: filled,
		Confidence:      confidence,
	}, true
}

// trackWall follows the single largest resting order above the median-size
// multiple through the window and classifies its drift.
func (d *Detector) trackWall(side Side, window []domain.OrderBookSnapshot) domain.WallState {
	state := domain.WallState{Side: side, Trend: domain.WallAbsent}

	for _, snap := range window {
		levels := snap.Bids
		if side == domain.SideAsk {
			levels = snap.Asks
		}
		if len(levels) == 0 {
			continue
		}
		med := medianSize(levels)
		best := levels[0]
		for _, lv := range levels[1:] {
			if lv.Size > best.Size {
				best = lv
			}
		}
		if med > 0 && best.Size > d.cfg.WallSizeMultiple*med {
			state.PricePath = append(state.PricePath, domain.WallPoint{
				Timestamp: snap.Timestamp,
				Price:     best.Price,
				Size:      best.Size,
			})
		}
	}

	if len(state.PricePath) < 3 {
		if len(state.PricePath) > 0 {
			state.Trend = domain.WallStable
		}
		return state
	}

	state.Trend = classifyTrend(state.PricePath, d.cfg.TickSize)
	return state
}

// classifyTrend requires a monotonic move larger than one tick across the
// observed path; anything else is stable.
func classifyTrend(path []domain.WallPoint, tick float64) domain.WallTrend {
	up, down := true, true
	for i := 1; i < len(path); i++ {
		if path[i].Price < path[i-1].Price {
			up = false
		}
		if path[i].Price > path[i-1].Price {
			down = false
		}
	}
	move := path[len(path)-1].Price - path[0].Price
	switch {
	case up && move > tick:
		return domain.WallUp
	case down && -move > tick:
		return domain.WallDown
	}
	return domain.WallStable
}

func medianSize(levels []domain.PriceLevel) float64 {
	sizes := make([]float64, len(levels))
	for i, lv := range levels {
		sizes[i] = lv.Size
	}
	sort.Float64s(sizes)
	n := len(sizes)
	if n%2 == 1 {
		return sizes[n/2]
	}
	return (sizes[n/2-1] + sizes[n/2]) / 2
}

func buildTags(r domain.MicrostructureReport) []string {
	var tags []string
	if n := len(r.Spoofing); n > 0 {
		tags = append(tags, "spoofing_detected")
	}
	if n := len(r.Icebergs); n > 0 {
		tags = append(tags, "iceberg_orders")
	}
	if r.BidWall.Trend == domain.WallUp {
		tags = append(tags, "bid_wall_up")
	}
	if r.BidWall.Trend == domain.WallDown {
		tags = append(tags, "bid_wall_down")
	}
	if r.AskWall.Trend == domain.WallUp {
		tags = append(tags, "ask_wall_up")
	}
	if r.AskWall.Trend == domain.WallDown {
		tags = append(tags, "ask_wall_down")
	}
	return tags
}

func sortSpoofs(s []domain.SpoofCandidate) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].ReappearanceCount != s[j].ReappearanceCount {
			return s[i].ReappearanceCount > s[j].ReappearanceCount
		}
		return s[i].Price < s[j].Price
	})
}

func sortIcebergs(s []domain.IcebergCandidate) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].RefillCount != s[j].RefillCount {
			return s[i].RefillCount > s[j].RefillCount
		}
		return s[i].Price < s[j].Price
	})
}
