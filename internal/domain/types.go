package domain

import (
	"time"

	"github.com/google/uuid"
)

// Direction is the directional read of a single signal or of the
// aggregated convergence result.
type Direction string

const (
	DirectionBullish Direction = "BULLISH"
	DirectionBearish Direction = "BEARISH"
	DirectionNeutral Direction = "NEUTRAL"
	// DirectionSkip marks a calculator that explicitly abstains, e.g. when
	// its confirmation windows disagree. Skipped signals never contribute
	// votes or score weight.
	DirectionSkip Direction = "SKIP"
)

// Opposite returns the inverse direction; NEUTRAL and SKIP map to themselves.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBullish:
		return DirectionBearish
	case DirectionBearish:
		return DirectionBullish
	}
	return d
}

// Quality grades how trustworthy a signal's inputs were.
type Quality string

const (
	QualityHigh   Quality = "HIGH"
	QualityMedium Quality = "MEDIUM"
	QualityLow    Quality = "LOW"
)

// Confidence grades the aggregated convergence result.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Action is the trade recommendation verb.
type Action string

const (
	ActionLong  Action = "LONG"
	ActionShort Action = "SHORT"
	ActionSkip  Action = "SKIP"
)

// Regime classifies the positioning backdrop derived from funding dynamics.
type Regime string

const (
	RegimeAccumulation Regime = "INSTITUTIONAL_ACCUMULATION"
	RegimeDistribution Regime = "INSTITUTIONAL_DISTRIBUTION"
	RegimeMomentum     Regime = "MOMENTUM"
	RegimeExhaustion   Regime = "EXHAUSTION"
	RegimeNeutral      Regime = "NEUTRAL"
)

// Side of the order book.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
	// Aggressor side of a print, when the venue reports it.
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// SignalResult is the normalized output of one calculator. It is pure:
// recomputed on every evaluation, never mutated in place.
type SignalResult struct {
	Metric    string             `json:"metric"`
	Direction Direction          `json:"direction"`
	Strength  float64            `json:"strength"` // 0..10
	Quality   Quality            `json:"quality"`
	Details   map[string]float64 `json:"details,omitempty"`
	Note      string             `json:"note,omitempty"`
}

// ConvergenceResult is the aggregated 0-100 verdict for one instrument at
// one instant. Derived, not stored long-term.
type ConvergenceResult struct {
	ID             uuid.UUID               `json:"id"`
	Instrument     string                  `json:"instrument"`
	Timestamp      time.Time               `json:"timestamp"`
	Score          float64                 `json:"score"` // 0..100 after clip
	Direction      Direction               `json:"direction"`
	Confidence     Confidence              `json:"confidence"`
	Regime         Regime                  `json:"regime"`
	Signals        map[string]SignalResult `json:"contributing_signals"`
	Unavailable    []string                `json:"unavailable_signals,omitempty"`
	Modifiers      map[string]float64      `json:"modifiers,omitempty"`
	Recommendation TradeRecommendation     `json:"recommendation"`
}

// TradeRecommendation carries the derived trade levels. Execution is out of
// scope; nothing here is persisted.
type TradeRecommendation struct {
	Action       Action  `json:"action"`
	Entry        float64 `json:"entry,omitempty"`
	StopLoss     float64 `json:"stop_loss,omitempty"`
	TakeProfit1  float64 `json:"take_profit_1,omitempty"`
	TakeProfit2  float64 `json:"take_profit_2,omitempty"`
	SizeFraction float64 `json:"position_size_fraction"`
}

// PriceLevel is one resting order book level. Levels are unique by price
// within a snapshot.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Notional returns price x size.
func (l PriceLevel) Notional() float64 { return l.Price * l.Size }

// OrderBookSnapshot is an atomic L2 view. It must not be modified after
// creation; detectors and calculators only read it.
type OrderBookSnapshot struct {
	Instrument string       `json:"instrument"`
	Timestamp  time.Time    `json:"timestamp"`
	Bids       []PriceLevel `json:"bids"` // best first
	Asks       []PriceLevel `json:"asks"` // best first
}

// Mid returns the midpoint of the best bid/ask, or 0 on an empty side.
func (s OrderBookSnapshot) Mid() float64 {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return 0
	}
	return (s.Bids[0].Price + s.Asks[0].Price) / 2
}

// SpreadBps returns the bid-ask spread in basis points of the mid.
func (s OrderBookSnapshot) SpreadBps() float64 {
	mid := s.Mid()
	if mid == 0 {
		return 0
	}
	return (s.Asks[0].Price - s.Bids[0].Price) / mid * 10000
}

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// TypicalPrice is (H+L+C)/3, the VWAP input.
func (c Candle) TypicalPrice() float64 { return (c.High + c.Low + c.Close) / 3 }

// Trade is one executed print.
type Trade struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Side      Side      `json:"side,omitempty"` // aggressor side when the venue reports it
}

// Notional returns price x size.
func (t Trade) Notional() float64 { return t.Price * t.Size }

// MetricPoint is one scalar observation of a named metric. Immutable.
type MetricPoint struct {
	Instrument string    `json:"instrument"`
	Metric     string    `json:"metric"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
}

// Canonical metric series names written by the ingestion scheduler.
const (
	MetricFundingAnnualized = "funding_annualized_pct"
	MetricOpenInterest      = "open_interest"
	MetricMarkPrice         = "mark_price"
	MetricBasisPct          = "basis_pct"
	MetricBookImbalance     = "order_book_imbalance"
)
