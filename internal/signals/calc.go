// Package signals holds the per-metric calculators that turn raw market
// state into normalized {direction, strength, quality} results, plus the
// pure math they share.
package signals

import (
	"math"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
)

// BookImbalance computes notional-weighted bid/ask imbalance over the top
// depth levels. Range [-1, 1]: -1 all asks, 0 balanced, +1 all bids.
func BookImbalance(bids, asks []domain.PriceLevel, depth int) float64 {
	var bidNotional, askNotional float64
	for _, lv := range topLevels(bids, depth) {
		bidNotional += lv.Notional()
	}
	for _, lv := range topLevels(asks, depth) {
		askNotional += lv.Notional()
	}
	total := bidNotional + askNotional
	if total == 0 {
		return 0
	}
	return (bidNotional - askNotional) / total
}

// Herfindahl is the size-concentration index of one book side over the top
// depth levels. Distributed books score low; a single dominant level (a
// likely fake wall) pushes it toward 1.
func Herfindahl(levels []domain.PriceLevel, depth int) float64 {
	subset := topLevels(levels, depth)
	var total float64
	for _, lv := range subset {
		total += lv.Size
	}
	if total == 0 {
		return 0
	}
	var h float64
	for _, lv := range subset {
		p := lv.Size / total
		h += p * p
	}
	return h
}

// VWAP is the volume-weighted average of typical prices. With zero total
// volume it falls back to a simple typical-price average.
func VWAP(candles []domain.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	var pv, vol float64
	for _, c := range candles {
		pv += c.TypicalPrice() * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		var sum float64
		for _, c := range candles {
			sum += c.TypicalPrice()
		}
		return sum / float64(len(candles))
	}
	return pv / vol
}

// ZScore returns how many standard deviations current sits from the mean of
// samples, together with the standard deviation. Fewer than two samples or
// zero variance yields (0, 0).
func ZScore(current float64, samples []float64) (z, stdev float64) {
	if len(samples) < 2 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))
	var variance float64
	for _, s := range samples {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(samples))
	stdev = math.Sqrt(variance)
	if stdev == 0 {
		return 0, 0
	}
	return (current - mean) / stdev, stdev
}

// VolumeRatio compares the latest candle volume against the average of the
// preceding lookback candles. Empty history yields 1.0 (no surge either way).
func VolumeRatio(candles []domain.Candle, lookback int) float64 {
	if len(candles) < 2 {
		return 1.0
	}
	current := candles[len(candles)-1].Volume
	hist := candles[:len(candles)-1]
	if len(hist) > lookback {
		hist = hist[len(hist)-lookback:]
	}
	var sum float64
	for _, c := range hist {
		sum += c.Volume
	}
	avg := sum / float64(len(hist))
	if avg == 0 {
		return 1.0
	}
	return current / avg
}

// ATR is the average true range over the trailing period candles.
func ATR(candles []domain.Candle, period int) float64 {
	if len(candles) < 2 {
		return 0
	}
	if len(candles) > period+1 {
		candles = candles[len(candles)-period-1:]
	}
	var sum float64
	n := 0
	for i := 1; i < len(candles); i++ {
		prevClose := candles[i-1].Close
		c := candles[i]
		tr := math.Max(c.High-c.Low,
			math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
		sum += tr
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// VWAPBands returns the band edges at mult standard deviations around vwap.
func VWAPBands(vwap, stdev, mult float64) (upper, lower float64) {
	return vwap + mult*stdev, vwap - mult*stdev
}

// AnnualizeFunding converts an 8h funding rate (decimal) to an annualized
// percentage: rate x 3 periods/day x 365 x 100.
func AnnualizeFunding(rate8h float64) float64 {
	return rate8h * 3 * 365 * 100
}

// BasisPct is the perp-vs-spot premium as a percentage of spot.
func BasisPct(spot, perp float64) float64 {
	if spot == 0 {
		return 0
	}
	return (perp - spot) / spot * 100
}

func topLevels(levels []domain.PriceLevel, depth int) []domain.PriceLevel {
	if depth > 0 && len(levels) > depth {
		return levels[:depth]
	}
	return levels
}

func clampStrength(s float64) float64 {
	return math.Min(10, math.Max(0, s))
}
