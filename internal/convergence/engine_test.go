package convergence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/microstructure"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/signals"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/store"
)

type fixture struct {
	series  *store.TimeSeries
	candles *store.CandleLog
	trades  *store.TradeLog
}

func newFixture() *fixture {
	return &fixture{
		series:  store.NewTimeSeries(),
		candles: store.NewCandleLog(24 * time.Hour),
		trades:  store.NewTradeLog(time.Hour),
	}
}

func (f *fixture) engine(detector *microstructure.Detector) *Engine {
	return NewEngine(DefaultConfig(), signals.Defaults(), f.series, f.candles, f.trades, detector)
}

// book returns a snapshot with the given per-level bid/ask sizes.
func book(bidSize, askSize float64) domain.OrderBookSnapshot {
	snap := domain.OrderBookSnapshot{Instrument: "BTC", Timestamp: time.Now()}
	for i := 0; i < 10; i++ {
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: 100 - float64(i)*0.5, Size: bidSize})
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: 100.5 + float64(i)*0.5, Size: askSize})
	}
	return snap
}

// seedBullishTape sets up every metric pointing the same way: heavy bid
// book is supplied by the caller, here we add climbing price with a volume
// surge, accelerating positive funding, and aggressive buying.
func seedBullishTape(t *testing.T, f *fixture, basisPct float64) {
	t.Helper()
	now := time.Now()

	base := now.Add(-30 * time.Minute)
	for i := 0; i < 29; i++ {
		c := 99.5
		if i%2 == 1 {
			c = 100.5
		}
		f.candles.Append("BTC", domain.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c, High: c + 0.2, Low: c - 0.2, Close: c,
			Volume: 10,
		})
	}
	f.candles.Append("BTC", domain.Candle{
		Timestamp: base.Add(29 * time.Minute),
		Open:      100.5, High: 103.2, Low: 100.4, Close: 103,
		Volume: 18, // 1.8x baseline
	})

	require.NoError(t, f.series.Append("BTC", domain.MetricFundingAnnualized, 11.0, now.Add(-8*time.Hour)))
	require.NoError(t, f.series.Append("BTC", domain.MetricFundingAnnualized, 11.5, now.Add(-4*time.Hour)))
	require.NoError(t, f.series.Append("BTC", domain.MetricFundingAnnualized, 12.2, now))
	require.NoError(t, f.series.Append("BTC", domain.MetricBasisPct, basisPct, now))

	f.trades.Append("BTC",
		domain.Trade{Timestamp: now.Add(-5 * time.Second), Price: 100, Size: 40, Side: domain.SideBuy},
		domain.Trade{Timestamp: now.Add(-10 * time.Second), Price: 100, Size: 40, Side: domain.SideBuy},
		domain.Trade{Timestamp: now.Add(-20 * time.Second), Price: 100, Size: 20, Side: domain.SideSell},
	)
}

func TestEvaluateAlignedBullishTape(t *testing.T) {
	f := newFixture()
	seedBullishTape(t, f, 0.5) // basis extreme, same sign as funding

	res := f.engine(nil).Evaluate("BTC", book(7, 3))

	assert.GreaterOrEqual(t, res.Score, 85.0)
	assert.Equal(t, domain.DirectionBullish, res.Direction)
	assert.Equal(t, domain.ConfidenceHigh, res.Confidence)
	assert.Equal(t, domain.ActionLong, res.Recommendation.Action)
	assert.Equal(t, domain.RegimeAccumulation, res.Regime)
	assert.NotContains(t, res.Modifiers, "funding_basis_divergence")
	assert.Contains(t, res.Unavailable, signals.MetricOIFlow)

	rec := res.Recommendation
	assert.Equal(t, 1.0, rec.SizeFraction)
	assert.Less(t, rec.StopLoss, rec.Entry)
	assert.Greater(t, rec.TakeProfit1, rec.Entry)
	assert.Greater(t, rec.TakeProfit2, rec.TakeProfit1)
	// Stop floor: never tighter than 3% of entry.
	assert.GreaterOrEqual(t, rec.Entry-rec.StopLoss, 0.03*rec.Entry-1e-9)
}

func TestEvaluateFundingBasisDivergenceVeto(t *testing.T) {
	aligned := newFixture()
	seedBullishTape(t, aligned, 0.5)
	baseline := aligned.engine(nil).Evaluate("BTC", book(7, 3))

	diverged := newFixture()
	seedBullishTape(t, diverged, -0.4) // spot refuses to confirm crowded longs
	penalized := diverged.engine(nil).Evaluate("BTC", book(7, 3))

	assert.Equal(t, -15.0, penalized.Modifiers["funding_basis_divergence"])
	assert.LessOrEqual(t, penalized.Score, baseline.Score-15.0+1e-9)
}

func TestEvaluateTooFewSignalsSkips(t *testing.T) {
	f := newFixture()
	f.trades.Append("BTC",
		domain.Trade{Timestamp: time.Now(), Price: 100, Size: 50, Side: domain.SideBuy},
	)

	res := f.engine(nil).Evaluate("BTC", book(7, 3))

	// Order book and trade flow both scream long, but two signals can
	// never clear the alignment bar.
	assert.Equal(t, domain.ActionSkip, res.Recommendation.Action)
	assert.Equal(t, domain.DirectionNeutral, res.Direction)
	assert.Equal(t, domain.ConfidenceLow, res.Confidence)
	assert.Len(t, res.Unavailable, 3)
}

func TestEvaluateNothingAvailable(t *testing.T) {
	f := newFixture()

	res := f.engine(nil).Evaluate("BTC", domain.OrderBookSnapshot{Instrument: "BTC"})

	assert.Zero(t, res.Score)
	assert.Equal(t, domain.ActionSkip, res.Recommendation.Action)
	assert.Len(t, res.Unavailable, 5)
}

func TestEvaluateShortSideLevels(t *testing.T) {
	f := newFixture()
	now := time.Now()

	base := now.Add(-30 * time.Minute)
	for i := 0; i < 29; i++ {
		c := 100.5
		if i%2 == 1 {
			c = 99.5
		}
		f.candles.Append("BTC", domain.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c, High: c + 0.2, Low: c - 0.2, Close: c,
			Volume: 10,
		})
	}
	f.candles.Append("BTC", domain.Candle{
		Timestamp: base.Add(29 * time.Minute),
		Open:      99.5, High: 99.6, Low: 96.8, Close: 97,
		Volume: 18,
	})
	require.NoError(t, f.series.Append("BTC", domain.MetricFundingAnnualized, -11.0, now.Add(-8*time.Hour)))
	require.NoError(t, f.series.Append("BTC", domain.MetricFundingAnnualized, -11.5, now.Add(-4*time.Hour)))
	require.NoError(t, f.series.Append("BTC", domain.MetricFundingAnnualized, -12.2, now))
	require.NoError(t, f.series.Append("BTC", domain.MetricBasisPct, -0.5, now))
	f.trades.Append("BTC",
		domain.Trade{Timestamp: now.Add(-5 * time.Second), Price: 100, Size: 40, Side: domain.SideSell},
		domain.Trade{Timestamp: now.Add(-10 * time.Second), Price: 100, Size: 40, Side: domain.SideSell},
		domain.Trade{Timestamp: now.Add(-20 * time.Second), Price: 100, Size: 20, Side: domain.SideBuy},
	)

	res := f.engine(nil).Evaluate("BTC", book(3, 7))

	require.Equal(t, domain.ActionShort, res.Recommendation.Action)
	rec := res.Recommendation
	assert.Greater(t, rec.StopLoss, rec.Entry)
	assert.Less(t, rec.TakeProfit1, rec.Entry)
	assert.Less(t, rec.TakeProfit2, rec.TakeProfit1)
}

func TestEvaluateAbstainingSignalCarriesNoWeight(t *testing.T) {
	f := newFixture()
	seedBullishTape(t, f, 0.5)
	now := time.Now()
	// OI up on both windows while price windows disagree: 24h down, 7d up.
	require.NoError(t, f.series.Append("BTC", domain.MetricOpenInterest, 100, now.Add(-7*24*time.Hour+time.Minute)))
	require.NoError(t, f.series.Append("BTC", domain.MetricOpenInterest, 102, now.Add(-24*time.Hour)))
	require.NoError(t, f.series.Append("BTC", domain.MetricOpenInterest, 105, now))
	require.NoError(t, f.series.Append("BTC", domain.MetricMarkPrice, 50, now.Add(-7*24*time.Hour+time.Minute)))
	require.NoError(t, f.series.Append("BTC", domain.MetricMarkPrice, 54, now.Add(-24*time.Hour)))
	require.NoError(t, f.series.Append("BTC", domain.MetricMarkPrice, 52.5, now))

	res := f.engine(nil).Evaluate("BTC", book(7, 3))

	require.Contains(t, res.Signals, signals.MetricOIFlow)
	assert.Equal(t, domain.DirectionSkip, res.Signals[signals.MetricOIFlow].Direction)
	// The abstention neither blocks the trade nor dilutes the score.
	assert.GreaterOrEqual(t, res.Score, 85.0)
	assert.Equal(t, domain.ActionLong, res.Recommendation.Action)
}

func TestEvaluateMicrostructureBonus(t *testing.T) {
	f := newFixture()
	seedBullishTape(t, f, 0.5)

	detector := microstructure.NewDetector(microstructure.Config{}, f.trades)
	now := time.Now()
	for i := 0; i < 4; i++ {
		snap := book(2, 2)
		snap.Timestamp = now.Add(time.Duration(i-4) * 10 * time.Second)
		// A dominant bid wall stepping upward, clear of the resting levels.
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: 90 + float64(i), Size: 100})
		detector.Record(snap)
	}

	res := f.engine(detector).Evaluate("BTC", book(7, 3))

	assert.Equal(t, 10.0, res.Modifiers["microstructure_alignment"])
	assert.Equal(t, domain.ActionLong, res.Recommendation.Action)
}

func TestEvaluateScoreClipsAtHundred(t *testing.T) {
	f := newFixture()
	seedBullishTape(t, f, 0.5)

	detector := microstructure.NewDetector(microstructure.Config{}, f.trades)
	now := time.Now()
	for i := 0; i < 4; i++ {
		snap := book(2, 2)
		snap.Timestamp = now.Add(time.Duration(i-4) * 10 * time.Second)
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: 90 + float64(i), Size: 100})
		detector.Record(snap)
	}

	// A maxed-out book pushes the weighted sum past 100 once the
	// microstructure bonus lands; the ceiling has to hold exactly.
	res := f.engine(detector).Evaluate("BTC", book(8, 3))

	assert.Equal(t, 10.0, res.Modifiers["microstructure_alignment"])
	assert.Equal(t, 100.0, res.Score)
	assert.Equal(t, domain.ActionLong, res.Recommendation.Action)
}

func TestEvaluateVetoClipsAtZero(t *testing.T) {
	f := newFixture()
	now := time.Now()
	// Flat funding alone scores 10; the divergence penalty drags the
	// raw total to -5, which must floor at zero.
	require.NoError(t, f.series.Append("BTC", domain.MetricFundingAnnualized, 11.0, now.Add(-8*time.Hour)))
	require.NoError(t, f.series.Append("BTC", domain.MetricFundingAnnualized, 11.0, now.Add(-4*time.Hour)))
	require.NoError(t, f.series.Append("BTC", domain.MetricFundingAnnualized, 11.0, now))
	require.NoError(t, f.series.Append("BTC", domain.MetricBasisPct, -0.4, now))

	res := f.engine(nil).Evaluate("BTC", domain.OrderBookSnapshot{Instrument: "BTC"})

	assert.Equal(t, -15.0, res.Modifiers["funding_basis_divergence"])
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, domain.ActionSkip, res.Recommendation.Action)
}

func TestEvaluateNeutralVoteBlocksHighConfidence(t *testing.T) {
	f := newFixture()
	now := time.Now()

	base := now.Add(-30 * time.Minute)
	for i := 0; i < 29; i++ {
		c := 99.5
		if i%2 == 1 {
			c = 100.5
		}
		f.candles.Append("BTC", domain.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c, High: c + 0.2, Low: c - 0.2, Close: c,
			Volume: 10,
		})
	}
	f.candles.Append("BTC", domain.Candle{
		Timestamp: base.Add(29 * time.Minute),
		Open:      100.5, High: 103.2, Low: 100.4, Close: 103,
		Volume: 18,
	})
	// Flat funding votes neutral while book, trade flow, and VWAP all
	// vote long. Basis shares funding's sign, so no divergence penalty.
	require.NoError(t, f.series.Append("BTC", domain.MetricFundingAnnualized, 11.0, now.Add(-8*time.Hour)))
	require.NoError(t, f.series.Append("BTC", domain.MetricFundingAnnualized, 11.0, now.Add(-4*time.Hour)))
	require.NoError(t, f.series.Append("BTC", domain.MetricFundingAnnualized, 11.0, now))
	require.NoError(t, f.series.Append("BTC", domain.MetricBasisPct, 0.5, now))
	f.trades.Append("BTC",
		domain.Trade{Timestamp: now.Add(-5 * time.Second), Price: 100, Size: 40, Side: domain.SideBuy},
		domain.Trade{Timestamp: now.Add(-10 * time.Second), Price: 100, Size: 40, Side: domain.SideBuy},
		domain.Trade{Timestamp: now.Add(-20 * time.Second), Price: 100, Size: 20, Side: domain.SideSell},
	)

	res := f.engine(nil).Evaluate("BTC", book(8, 3))

	require.GreaterOrEqual(t, res.Score, 85.0)
	require.Equal(t, domain.DirectionBullish, res.Direction)
	// One abstention from consensus caps conviction even at a top score.
	assert.Equal(t, domain.ConfidenceMedium, res.Confidence)
	assert.Equal(t, 0.5, res.Recommendation.SizeFraction)
}
