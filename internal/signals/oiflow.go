package signals

import (
	"math"
	"time"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/store"
)

// OIFlow reads open interest change against price change across two windows.
// OI rising with price is genuine accumulation; OI rising into falling price
// is distribution; OI falling either way is position closing and fades the
// move that forced it.
type OIFlow struct {
	th     Thresholds
	series *store.TimeSeries
}

func NewOIFlow(th Thresholds, series *store.TimeSeries) *OIFlow {
	return &OIFlow{th: th, series: series}
}

func (c *OIFlow) Calculate(instrument string) (domain.SignalResult, error) {
	day := 24 * time.Hour
	week := 7 * day

	oiChanges := c.series.Changes(instrument, domain.MetricOpenInterest, day, week)
	pxChanges := c.series.Changes(instrument, domain.MetricMarkPrice, day, week)

	oiDay, okOI := oiChanges[day]
	pxDay, okPx := pxChanges[day]
	if !okOI || !okPx {
		return domain.SignalResult{}, store.ErrInsufficientData
	}

	dirDay, genuine := c.classify(oiDay, pxDay)

	details := map[string]float64{
		"oi_change_24h":    oiDay,
		"price_change_24h": pxDay,
	}

	var strength float64
	switch {
	case dirDay == domain.DirectionNeutral:
		strength = 2
	case genuine:
		strength = 8
	default:
		strength = 6
	}

	quality := domain.QualityMedium
	direction := dirDay
	oiWeek, okOIW := oiChanges[week]
	pxWeek, okPxW := pxChanges[week]
	if okOIW && okPxW {
		details["oi_change_7d"] = oiWeek
		details["price_change_7d"] = pxWeek
		dirWeek, _ := c.classify(oiWeek, pxWeek)
		switch {
		case dirWeek == dirDay:
			quality = domain.QualityHigh
			if direction != domain.DirectionNeutral {
				strength = clampStrength(strength + 2)
			}
		case dirDay == domain.DirectionNeutral || dirWeek == domain.DirectionNeutral:
			quality = domain.QualityMedium
		default:
			// Windows point opposite ways; abstain rather than guess.
			direction = domain.DirectionSkip
			strength = 0
			quality = domain.QualityLow
		}
	}

	result := domain.SignalResult{
		Metric:    MetricOIFlow,
		Direction: direction,
		Strength:  strength,
		Quality:   quality,
		Details:   details,
	}
	if direction == domain.DirectionSkip {
		result.Note = "24h and 7d windows disagree"
	}
	return result, nil
}

// classify maps one (oi change, price change) pair onto a direction. The
// second return reports whether the read is new positioning rather than a
// fade of forced closing.
func (c *OIFlow) classify(oiChange, priceChange float64) (domain.Direction, bool) {
	if math.Abs(oiChange) < c.th.OIChangeSignificant || math.Abs(priceChange) < c.th.OIChangeSignificant {
		return domain.DirectionNeutral, false
	}
	switch {
	case oiChange > 0 && priceChange > 0:
		return domain.DirectionBullish, true
	case oiChange > 0 && priceChange < 0:
		return domain.DirectionBearish, true
	case oiChange < 0 && priceChange > 0:
		// Short covering drove the rally; it exhausts.
		return domain.DirectionBearish, false
	default:
		// Long liquidation drove the drop; it exhausts.
		return domain.DirectionBullish, false
	}
}
