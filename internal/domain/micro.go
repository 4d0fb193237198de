package domain

import "time"

// SpoofCandidate is a price level that appeared and fully disappeared from
// the book repeatedly without an observed execution.
type SpoofCandidate struct {
	Side              Side      `json:"side"`
	Price             float64   `json:"price"`
	FirstSeen         time.Time `json:"first_seen"`
	LastSeen          time.Time `json:"last_seen"`
	ReappearanceCount int       `json:"reappearance_count"`
	AvgSize           float64   `json:"avg_size"`
	Confidence        string    `json:"confidence"` // "moderate" (3-4 cycles) or "high" (5+)
}

// IcebergCandidate is a price level whose resting size keeps replenishing
// after partial execution.
type IcebergCandidate struct {
	Side            Side    `json:"side"`
	Price           float64 `json:"price"`
	RefillCount     int     `json:"refill_count"`
	CumulativeFills float64 `json:"cumulative_filled_size"`
	Confidence      string  `json:"confidence"`
}

// WallTrend classifies the price trajectory of the dominant resting order.
type WallTrend string

const (
	WallUp     WallTrend = "up"
	WallDown   WallTrend = "down"
	WallStable WallTrend = "stable"
	WallAbsent WallTrend = "absent"
)

// WallPoint is one observation of the largest wall on a side.
type WallPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
}

// WallState tracks the dominant wall's path over the window.
type WallState struct {
	Side      Side        `json:"side"`
	Trend     WallTrend   `json:"trend"`
	PricePath []WallPoint `json:"price_path"`
}

// MicrostructureReport is the detector's full output for one instrument.
type MicrostructureReport struct {
	Instrument     string             `json:"instrument"`
	Timestamp      time.Time          `json:"timestamp"`
	SnapshotCount  int                `json:"snapshots_analyzed"`
	Spoofing       []SpoofCandidate   `json:"spoofing"`
	Icebergs       []IcebergCandidate `json:"icebergs"`
	BidWall        WallState          `json:"bid_wall"`
	AskWall        WallState          `json:"ask_wall"`
	TradeConfirmed bool               `json:"trade_confirmed"` // false when no prints were available to rule out fills
	Tags           []string           `json:"signals"`
}

// Bias returns the directional lean implied by the detected patterns:
// bid-side icebergs and rising bid walls lean bullish, mirrored for asks.
func (r MicrostructureReport) Bias() Direction {
	score := 0
	for _, ib := range r.Icebergs {
		if ib.Side == SideBid {
			score++
		} else {
			score--
		}
	}
	if r.BidWall.Trend == WallUp {
		score++
	}
	if r.AskWall.Trend == WallDown {
		score--
	}
	switch {
	case score > 0:
		return DirectionBullish
	case score < 0:
		return DirectionBearish
	}
	return DirectionNeutral
}
