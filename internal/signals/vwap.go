package signals

import (
	"math"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/store"
)

// VWAPDeviation measures how stretched price is from session VWAP in
// standard deviations. The directional vote follows the displacement
// itself: sustained trade above fair value is buyers in control. The
// stretch still caps quality once it reaches statistical extremes,
// where reversion risk grows.
type VWAPDeviation struct {
	th Thresholds
}

func NewVWAPDeviation(th Thresholds) *VWAPDeviation { return &VWAPDeviation{th: th} }

// Calculate expects candles oldest-first; the last candle is current.
func (c *VWAPDeviation) Calculate(candles []domain.Candle) (domain.SignalResult, error) {
	if len(candles) < 2 {
		return domain.SignalResult{}, store.ErrInsufficientData
	}
	if len(candles) > c.th.VWAPLookback {
		candles = candles[len(candles)-c.th.VWAPLookback:]
	}

	vwap := VWAP(candles)
	closes := make([]float64, len(candles))
	for i, cd := range candles {
		closes[i] = cd.Close
	}
	current := closes[len(closes)-1]
	z, stdev := ZScore(current, closes)
	if stdev == 0 {
		return domain.SignalResult{}, store.ErrInsufficientData
	}

	abs := math.Abs(z)
	direction := domain.DirectionNeutral
	if abs >= c.th.ZStretched {
		if z > 0 {
			direction = domain.DirectionBullish
		} else {
			direction = domain.DirectionBearish
		}
	}

	var strength float64
	var quality domain.Quality
	var note string
	switch {
	case abs >= c.th.ZExtreme:
		strength, quality = 10, domain.QualityHigh
		note = "statistical extreme, reversion risk"
	case abs >= c.th.ZStretched:
		strength, quality = 7, domain.QualityMedium
	case abs >= c.th.ZModerate:
		strength, quality = 4, domain.QualityLow
	default:
		strength, quality = clampStrength(abs*4), domain.QualityLow
	}

	deviationPct := 0.0
	if vwap != 0 {
		deviationPct = (current - vwap) / vwap * 100
	}
	upper, lower := VWAPBands(vwap, stdev, c.th.ZExtreme)
	return domain.SignalResult{
		Metric:    MetricVWAP,
		Direction: direction,
		Strength:  strength,
		Quality:   quality,
		Details: map[string]float64{
			"vwap":          vwap,
			"z_score":       z,
			"stdev":         stdev,
			"deviation_pct": deviationPct,
			"band_upper":    upper,
			"band_lower":    lower,
		},
		Note: note,
	}, nil
}
