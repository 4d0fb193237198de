package signals

import (
	"math"
	"time"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/store"
)

// TradeFlowLookback is how far back prints are considered live.
const TradeFlowLookback = 60 * time.Second

// TradeFlow measures net aggressor pressure from recent prints, ignoring
// retail dust below a notional floor. When no qualifying prints exist it
// degrades to a candle momentum proxy at reduced quality.
type TradeFlow struct {
	th      Thresholds
	trades  *store.TradeLog
	candles *store.CandleLog
	now     func() time.Time
}

func NewTradeFlow(th Thresholds, trades *store.TradeLog, candles *store.CandleLog) *TradeFlow {
	return &TradeFlow{th: th, trades: trades, candles: candles, now: time.Now}
}

// Calculate takes the current book mid to classify prints whose aggressor
// side was not reported by the venue.
func (c *TradeFlow) Calculate(instrument string, mid float64) (domain.SignalResult, error) {
	prints := c.trades.Since(instrument, c.now().Add(-TradeFlowLookback))

	var buyNotional, sellNotional float64
	var counted int
	for _, t := range prints {
		notional := t.Price * t.Size
		if notional < c.th.MinPrintNotional {
			continue
		}
		counted++
		if c.isBuy(t, mid) {
			buyNotional += notional
		} else {
			sellNotional += notional
		}
	}

	if counted == 0 {
		return c.candleProxy(instrument)
	}

	total := buyNotional + sellNotional
	imbalance := (buyNotional - sellNotional) / total

	direction := domain.DirectionNeutral
	abs := math.Abs(imbalance)
	if abs >= c.th.FlowModerate {
		if imbalance > 0 {
			direction = domain.DirectionBullish
		} else {
			direction = domain.DirectionBearish
		}
	}

	var strength float64
	switch {
	case abs >= c.th.FlowStrong:
		strength = 10
	case abs >= c.th.FlowModerate:
		strength = 6
	default:
		strength = clampStrength(abs / c.th.FlowModerate * 5)
	}

	quality := domain.QualityMedium
	if counted >= 10 {
		quality = domain.QualityHigh
	}

	return domain.SignalResult{
		Metric:    MetricTradeFlow,
		Direction: direction,
		Strength:  strength,
		Quality:   quality,
		Details: map[string]float64{
			"imbalance":     imbalance,
			"buy_notional":  buyNotional,
			"sell_notional": sellNotional,
			"print_count":   float64(counted),
		},
	}, nil
}

func (c *TradeFlow) isBuy(t domain.Trade, mid float64) bool {
	switch t.Side {
	case domain.SideBuy:
		return true
	case domain.SideSell:
		return false
	}
	return mid > 0 && t.Price >= mid
}

// candleProxy infers flow from short-term price drift when the tape is empty.
func (c *TradeFlow) candleProxy(instrument string) (domain.SignalResult, error) {
	recent := c.candles.Recent(instrument, 10)
	if len(recent) < 2 {
		return domain.SignalResult{}, store.ErrInsufficientData
	}
	first, last := recent[0].Open, recent[len(recent)-1].Close
	if first == 0 {
		return domain.SignalResult{}, store.ErrInsufficientData
	}
	changePct := (last - first) / first * 100

	imbalance := 0.0
	switch {
	case changePct > 0.3:
		imbalance = 0.8
	case changePct > 0.1:
		imbalance = 0.6
	case changePct < -0.3:
		imbalance = -0.8
	case changePct < -0.1:
		imbalance = -0.6
	}

	direction := domain.DirectionNeutral
	if imbalance > 0 {
		direction = domain.DirectionBullish
	} else if imbalance < 0 {
		direction = domain.DirectionBearish
	}

	strength := clampStrength(math.Abs(imbalance) * 10)
	return domain.SignalResult{
		Metric:    MetricTradeFlow,
		Direction: direction,
		Strength:  strength,
		Quality:   domain.QualityLow,
		Details: map[string]float64{
			"imbalance":        imbalance,
			"proxy_change_pct": changePct,
			"print_count":      0,
		},
		Note: "candle proxy, no qualifying prints",
	}, nil
}
