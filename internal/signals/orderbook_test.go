package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/store"
)

func makeBook(bidSize, askSize float64) domain.OrderBookSnapshot {
	snap := domain.OrderBookSnapshot{
		Instrument: "BTC",
		Timestamp:  time.Now(),
	}
	for i := 0; i < 10; i++ {
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: 100 - float64(i)*0.5, Size: bidSize})
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: 100.5 + float64(i)*0.5, Size: askSize})
	}
	return snap
}

func TestOrderBookBalancedIsNeutral(t *testing.T) {
	calc := NewOrderBook(Defaults())

	res, err := calc.Calculate(makeBook(5, 5))
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionNeutral, res.Direction)
	assert.InDelta(t, 0, res.Details["imbalance"], 0.05)
}

func TestOrderBookHeavyBidsIsBullish(t *testing.T) {
	calc := NewOrderBook(Defaults())

	res, err := calc.Calculate(makeBook(8, 3))
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionBullish, res.Direction)
	assert.Equal(t, 10.0, res.Strength)
	assert.Equal(t, domain.QualityHigh, res.Quality)
	assert.GreaterOrEqual(t, res.Details["imbalance"], 0.4)
}

func TestOrderBookHeavyAsksIsBearish(t *testing.T) {
	calc := NewOrderBook(Defaults())

	res, err := calc.Calculate(makeBook(3, 7))
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionBearish, res.Direction)
	assert.Negative(t, res.Details["imbalance"])
}

func TestOrderBookFakeWallCapsQuality(t *testing.T) {
	calc := NewOrderBook(Defaults())

	snap := makeBook(1, 1)
	snap.Bids[2].Size = 100 // one level dominating the side

	res, err := calc.Calculate(snap)
	require.NoError(t, err)

	assert.Equal(t, domain.QualityLow, res.Quality)
	assert.Greater(t, res.Details["bid_concentration"], 0.6)
}

func TestOrderBookQuoteStuffingZeroesSignal(t *testing.T) {
	calc := NewOrderBook(Defaults())

	res, err := calc.Calculate(makeBook(0.005, 0.003))
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionNeutral, res.Direction)
	assert.Zero(t, res.Strength)
	assert.Equal(t, domain.QualityLow, res.Quality)
	assert.Equal(t, 1.0, res.Details["quote_stuffing"])
}

func TestOrderBookEmptyBook(t *testing.T) {
	calc := NewOrderBook(Defaults())

	_, err := calc.Calculate(domain.OrderBookSnapshot{Instrument: "BTC"})
	assert.ErrorIs(t, err, store.ErrInsufficientData)
}

func TestOrderBookCalculateLeavesSnapshotUntouched(t *testing.T) {
	calc := NewOrderBook(Defaults())

	// Exact-capacity slices with more levels than BookDepth, the shape the
	// wire parser hands over: any in-place append would land inside them.
	snap := domain.OrderBookSnapshot{Instrument: "BTC", Timestamp: time.Now()}
	snap.Bids = make([]domain.PriceLevel, 0, 20)
	snap.Asks = make([]domain.PriceLevel, 0, 20)
	for i := 0; i < 20; i++ {
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: 100 - float64(i)*0.5, Size: 2})
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: 100.5 + float64(i)*0.5, Size: 2})
	}
	bids := append([]domain.PriceLevel(nil), snap.Bids...)
	asks := append([]domain.PriceLevel(nil), snap.Asks...)

	_, err := calc.Calculate(snap)
	require.NoError(t, err)

	assert.Equal(t, bids, snap.Bids)
	assert.Equal(t, asks, snap.Asks)
}

func TestOrderBookImbalanceBounded(t *testing.T) {
	calc := NewOrderBook(Defaults())

	cases := []struct {
		name     string
		bid, ask float64
	}{
		{"all bids", 50, 0.0001},
		{"all asks", 0.0001, 50},
		{"balanced", 2, 2},
		{"slight skew", 2.2, 1.8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := calc.Calculate(makeBook(tc.bid, tc.ask))
			require.NoError(t, err)
			imb := res.Details["imbalance"]
			assert.GreaterOrEqual(t, imb, -1.0)
			assert.LessOrEqual(t, imb, 1.0)
		})
	}
}
