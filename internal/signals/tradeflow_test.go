package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/store"
)

func tradeAt(ago time.Duration, price, size float64, side domain.Side) domain.Trade {
	return domain.Trade{
		Timestamp: time.Now().Add(-ago),
		Price:     price,
		Size:      size,
		Side:      side,
	}
}

func TestTradeFlowAggressiveBuying(t *testing.T) {
	trades := store.NewTradeLog(time.Hour)
	candles := store.NewCandleLog(time.Hour)
	trades.Append("BTC",
		tradeAt(5*time.Second, 100, 40, domain.SideBuy),
		tradeAt(10*time.Second, 100, 40, domain.SideBuy),
		tradeAt(20*time.Second, 100, 20, domain.SideSell),
	)

	res, err := NewTradeFlow(Defaults(), trades, candles).Calculate("BTC", 100)
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionBullish, res.Direction)
	assert.Equal(t, 10.0, res.Strength)
	assert.InDelta(t, 0.6, res.Details["imbalance"], 1e-9)
	assert.Equal(t, 3.0, res.Details["print_count"])
}

func TestTradeFlowClassifiesByMidWithoutSide(t *testing.T) {
	trades := store.NewTradeLog(time.Hour)
	candles := store.NewCandleLog(time.Hour)
	trades.Append("BTC",
		tradeAt(5*time.Second, 100.5, 30, ""), // above mid, lifted the offer
		tradeAt(10*time.Second, 99.5, 10, ""), // below mid, hit the bid
	)

	res, err := NewTradeFlow(Defaults(), trades, candles).Calculate("BTC", 100)
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionBullish, res.Direction)
	assert.Positive(t, res.Details["imbalance"])
}

func TestTradeFlowIgnoresDust(t *testing.T) {
	trades := store.NewTradeLog(time.Hour)
	candles := store.NewCandleLog(time.Hour)
	trades.Append("BTC",
		tradeAt(5*time.Second, 100, 50, domain.SideBuy),
		tradeAt(6*time.Second, 100, 0.001, domain.SideSell), // $0.10 print
		tradeAt(7*time.Second, 100, 0.001, domain.SideSell),
	)

	res, err := NewTradeFlow(Defaults(), trades, candles).Calculate("BTC", 100)
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.Details["print_count"])
	assert.Equal(t, domain.DirectionBullish, res.Direction)
}

func TestTradeFlowCandleProxyOnEmptyTape(t *testing.T) {
	trades := store.NewTradeLog(time.Hour)
	candles := store.NewCandleLog(time.Hour)
	// Drift the closes up ~0.5% across the window.
	base := time.Now()
	candles.Append("BTC",
		domain.Candle{Timestamp: base.Add(-2 * time.Minute), Open: 100, High: 100.3, Low: 99.9, Close: 100.2, Volume: 10},
		domain.Candle{Timestamp: base, Open: 100.2, High: 100.6, Low: 100.1, Close: 100.5, Volume: 10},
	)

	res, err := NewTradeFlow(Defaults(), trades, candles).Calculate("BTC", 100)
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionBullish, res.Direction)
	assert.Equal(t, domain.QualityLow, res.Quality)
	assert.NotEmpty(t, res.Note)
	assert.Zero(t, res.Details["print_count"])
}

func TestTradeFlowNoDataAtAll(t *testing.T) {
	trades := store.NewTradeLog(time.Hour)
	candles := store.NewCandleLog(time.Hour)

	_, err := NewTradeFlow(Defaults(), trades, candles).Calculate("BTC", 100)
	assert.ErrorIs(t, err, store.ErrInsufficientData)
}
