package signals

import (
	"math"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/store"
)

// OrderBook scores bid/ask pressure from a single L2 snapshot, with a
// Herfindahl concentration check that demotes likely fake walls and a
// quote-stuffing filter that zeroes out manipulated books.
type OrderBook struct {
	th Thresholds
}

// NewOrderBook builds the calculator.
func NewOrderBook(th Thresholds) *OrderBook { return &OrderBook{th: th} }

// Calculate is pure: same snapshot, same result.
func (c *OrderBook) Calculate(snap domain.OrderBookSnapshot) (domain.SignalResult, error) {
	if len(snap.Bids) == 0 && len(snap.Asks) == 0 {
		return domain.SignalResult{}, store.ErrInsufficientData
	}

	imbalance := BookImbalance(snap.Bids, snap.Asks, c.th.BookDepth)
	bidConc := Herfindahl(snap.Bids, c.th.BookDepth)
	askConc := Herfindahl(snap.Asks, c.th.BookDepth)
	maxConc := math.Max(bidConc, askConc)
	stuffed := c.quoteStuffed(snap)

	quality := domain.QualityHigh
	switch {
	case stuffed:
		quality = domain.QualityLow
	case maxConc > c.th.ConcentrationMax:
		// Concentrated size at one level reads as a fake wall.
		quality = domain.QualityLow
	case maxConc > c.th.ConcentrationMax/2:
		quality = domain.QualityMedium
	}

	direction := domain.DirectionNeutral
	abs := math.Abs(imbalance)
	if abs >= c.th.ImbalanceModerate && !stuffed {
		if imbalance > 0 {
			direction = domain.DirectionBullish
		} else {
			direction = domain.DirectionBearish
		}
	}

	var strength float64
	switch {
	case stuffed:
		strength = 0
	case abs >= c.th.ImbalanceStrong:
		strength = 10
	case abs >= c.th.ImbalanceModerate:
		strength = 6
	default:
		strength = clampStrength(abs / c.th.ImbalanceModerate * 5)
	}

	details := map[string]float64{
		"imbalance":         imbalance,
		"bid_concentration": bidConc,
		"ask_concentration": askConc,
		"spread_bps":        snap.SpreadBps(),
	}
	if stuffed {
		details["quote_stuffing"] = 1
	}

	return domain.SignalResult{
		Metric:    MetricOrderBook,
		Direction: direction,
		Strength:  strength,
		Quality:   quality,
		Details:   details,
	}, nil
}

// quoteStuffed flags books made of many tiny resting orders, the HFT
// fake-liquidity pattern. The snapshot is shared with the detector window,
// so both sides are summed in place without building a combined slice.
func (c *OrderBook) quoteStuffed(snap domain.OrderBookSnapshot) bool {
	var sum float64
	n := 0
	for _, lv := range topLevels(snap.Bids, c.th.BookDepth) {
		sum += lv.Size
		n++
	}
	for _, lv := range topLevels(snap.Asks, c.th.BookDepth) {
		sum += lv.Size
		n++
	}
	if n == 0 {
		return false
	}
	return sum/float64(n) < c.th.StuffingAvgLevelSize
}
