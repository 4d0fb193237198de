package signals

import (
	"math"
	"time"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/store"
)

// FundingVelocityOffset is the window each funding velocity sample spans.
const FundingVelocityOffset = 4 * time.Hour

// Funding classifies the funding-rate regime from velocity, acceleration and
// volume participation. Rate level alone is ignored; how fast positioning is
// repricing carries the information.
type Funding struct {
	th      Thresholds
	series  *store.TimeSeries
	candles *store.CandleLog
	offset  time.Duration
}

func NewFunding(th Thresholds, series *store.TimeSeries, candles *store.CandleLog) *Funding {
	return &Funding{th: th, series: series, candles: candles, offset: FundingVelocityOffset}
}

func (c *Funding) Calculate(instrument string) (domain.SignalResult, error) {
	latest, err := c.series.Latest(instrument, domain.MetricFundingAnnualized)
	if err != nil {
		return domain.SignalResult{}, err
	}
	velocity, err := c.series.Velocity(instrument, domain.MetricFundingAnnualized, c.offset)
	if err != nil {
		return domain.SignalResult{}, err
	}
	accel, err := c.series.Acceleration(instrument, domain.MetricFundingAnnualized, c.offset)
	if err != nil {
		return domain.SignalResult{}, err
	}

	volumeRatio := 1.0
	if recent := c.candles.Recent(instrument, c.th.VolumeLookback+1); len(recent) >= 2 {
		volumeRatio = VolumeRatio(recent, c.th.VolumeLookback)
	}

	regime, direction := c.classify(velocity, accel, volumeRatio)
	strength := c.strength(velocity, accel, volumeRatio)
	if regime == domain.RegimeNeutral {
		direction = domain.DirectionNeutral
		strength = math.Min(strength, 3)
	}

	quality := domain.QualityLow
	switch regime {
	case domain.RegimeAccumulation, domain.RegimeDistribution:
		quality = domain.QualityHigh
	case domain.RegimeMomentum, domain.RegimeExhaustion:
		quality = domain.QualityMedium
	}

	details := map[string]float64{
		"annualized_pct": latest.Value,
		"velocity":       velocity,
		"acceleration":   accel,
		"volume_ratio":   volumeRatio,
	}
	if math.Abs(latest.Value) > c.th.FundingExtreme {
		details["extreme"] = 1
	}

	return domain.SignalResult{
		Metric:    MetricFunding,
		Direction: direction,
		Strength:  strength,
		Quality:   quality,
		Details:   details,
		Note:      string(regime),
	}, nil
}

// classify applies the regime rules in precedence order.
func (c *Funding) classify(velocity, accel, volumeRatio float64) (domain.Regime, domain.Direction) {
	sameSign := velocity*accel > 0

	switch {
	case math.Abs(accel) > c.th.AccelerationHigh && volumeRatio > c.th.VolumeSurge && sameSign:
		if velocity > 0 {
			return domain.RegimeAccumulation, domain.DirectionBullish
		}
		return domain.RegimeDistribution, domain.DirectionBearish
	case math.Abs(velocity) > c.th.VelocityHigh && accel*velocity < 0 &&
		math.Abs(accel) > c.th.AccelerationModerate && volumeRatio < c.th.VolumeDecline:
		// Fast move decelerating on fading volume: fade it.
		if velocity > 0 {
			return domain.RegimeExhaustion, domain.DirectionBearish
		}
		return domain.RegimeExhaustion, domain.DirectionBullish
	case math.Abs(accel) > c.th.AccelerationModerate && volumeRatio > c.th.VolumeElevated && sameSign:
		if velocity > 0 {
			return domain.RegimeMomentum, domain.DirectionBullish
		}
		return domain.RegimeMomentum, domain.DirectionBearish
	default:
		return domain.RegimeNeutral, domain.DirectionNeutral
	}
}

// strength is a point score over the three inputs, capped at 10.
func (c *Funding) strength(velocity, accel, volumeRatio float64) float64 {
	var pts float64
	switch a := math.Abs(accel); {
	case a > c.th.AccelerationHigh*1.6:
		pts += 4
	case a > c.th.AccelerationHigh:
		pts += 3
	case a > c.th.AccelerationModerate:
		pts += 2
	}
	switch v := math.Abs(velocity); {
	case v > c.th.VelocityHigh*2:
		pts += 3
	case v > c.th.VelocityHigh*1.2:
		pts += 2
	case v > c.th.VelocityModerate:
		pts += 1
	}
	switch {
	case volumeRatio > c.th.VolumeSurge*1.2:
		pts += 2
	case volumeRatio > c.th.VolumeElevated:
		pts += 1
	}
	return clampStrength(pts + 1)
}
