package microstructure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/store"
)

// baseBook builds a snapshot of ten small levels per side around 100.
func baseBook(at time.Time) domain.OrderBookSnapshot {
	snap := domain.OrderBookSnapshot{Instrument: "BTC", Timestamp: at}
	for i := 0; i < 10; i++ {
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: 100 - float64(i)*0.5, Size: 2})
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: 100.5 + float64(i)*0.5, Size: 2})
	}
	return snap
}

// recordFlicker records n snapshots where a large ask at 105 is present on
// even indices only, yielding one disappearance per odd index.
func recordFlicker(d *Detector, n int) {
	start := time.Now().Add(-time.Duration(n) * 5 * time.Second)
	for i := 0; i < n; i++ {
		snap := baseBook(start.Add(time.Duration(i) * 5 * time.Second))
		if i%2 == 0 {
			snap.Asks = append(snap.Asks, domain.PriceLevel{Price: 106, Size: 50})
		}
		d.Record(snap)
	}
}

func TestAnalyzeNeedsThreeSnapshots(t *testing.T) {
	d := NewDetector(Config{}, nil)
	now := time.Now()
	d.Record(baseBook(now.Add(-10 * time.Second)))
	d.Record(baseBook(now))

	report := d.Analyze("BTC")

	assert.Equal(t, 2, report.SnapshotCount)
	assert.Empty(t, report.Spoofing)
	assert.Empty(t, report.Icebergs)
	assert.Equal(t, domain.WallAbsent, report.BidWall.Trend)
}

func TestSpoofFiveCyclesNoFillIsHighConfidence(t *testing.T) {
	d := NewDetector(Config{}, nil)
	recordFlicker(d, 11) // present on 0,2,..,10: five appear/disappear cycles

	report := d.Analyze("BTC")

	require.Len(t, report.Spoofing, 1)
	sp := report.Spoofing[0]
	assert.Equal(t, domain.SideAsk, sp.Side)
	assert.Equal(t, 106.0, sp.Price)
	assert.Equal(t, 5, sp.ReappearanceCount)
	assert.Equal(t, "high", sp.Confidence)
	assert.False(t, report.TradeConfirmed)
	assert.Contains(t, report.Tags, "spoofing_detected")
}

func TestSpoofTwoCyclesIsNotFlagged(t *testing.T) {
	d := NewDetector(Config{}, nil)
	recordFlicker(d, 5) // present on 0,2,4: two cycles only

	report := d.Analyze("BTC")

	assert.Empty(t, report.Spoofing)
}

func TestSpoofDisappearanceWithFillIsExecution(t *testing.T) {
	trades := store.NewTradeLog(time.Hour)
	d := NewDetector(Config{}, trades)
	recordFlicker(d, 11)
	// One print inside every disappearance interval: each vanish is a fill.
	for _, ago := range []int{52, 43, 32, 22, 12} {
		trades.Append("BTC", domain.Trade{
			Timestamp: time.Now().Add(-time.Duration(ago) * time.Second), Price: 106.1, Size: 8,
		})
	}

	report := d.Analyze("BTC")

	assert.Empty(t, report.Spoofing)
	assert.True(t, report.TradeConfirmed)
}

func TestSpoofFillSuppressesOnlyItsOwnCycle(t *testing.T) {
	trades := store.NewTradeLog(time.Hour)
	d := NewDetector(Config{}, trades)
	recordFlicker(d, 11)
	// A single fill explains one disappearance; the other four still count.
	trades.Append("BTC", domain.Trade{
		Timestamp: time.Now().Add(-22 * time.Second), Price: 106.1, Size: 8,
	})

	report := d.Analyze("BTC")

	require.Len(t, report.Spoofing, 1)
	assert.Equal(t, 4, report.Spoofing[0].ReappearanceCount)
	assert.Equal(t, "moderate", report.Spoofing[0].Confidence)
}

func TestIcebergRefillPattern(t *testing.T) {
	d := NewDetector(Config{}, nil)
	sizes := []float64{20, 5, 18, 4, 19, 3, 17}
	start := time.Now().Add(-40 * time.Second)
	for i, size := range sizes {
		snap := baseBook(start.Add(time.Duration(i) * 5 * time.Second))
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: 94, Size: size})
		d.Record(snap)
	}

	report := d.Analyze("BTC")

	require.Len(t, report.Icebergs, 1)
	ib := report.Icebergs[0]
	assert.Equal(t, domain.SideBid, ib.Side)
	assert.Equal(t, 94.0, ib.Price)
	assert.Equal(t, 3, ib.RefillCount)
	assert.Equal(t, "moderate", ib.Confidence)
	assert.Positive(t, ib.CumulativeFills)
	assert.Contains(t, report.Tags, "iceberg_orders")
}

func TestIcebergFiveRefillsIsHighConfidence(t *testing.T) {
	d := NewDetector(Config{}, nil)
	sizes := []float64{20, 5, 18, 4, 19, 3, 17, 2, 18, 3, 17}
	start := time.Now().Add(-55 * time.Second)
	for i, size := range sizes {
		snap := baseBook(start.Add(time.Duration(i) * 5 * time.Second))
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: 94, Size: size})
		d.Record(snap)
	}

	report := d.Analyze("BTC")

	require.Len(t, report.Icebergs, 1)
	assert.Equal(t, 5, report.Icebergs[0].RefillCount)
	assert.Equal(t, "high", report.Icebergs[0].Confidence)
}

func TestWallMigration(t *testing.T) {
	d := NewDetector(Config{}, nil)
	start := time.Now().Add(-30 * time.Second)
	for i := 0; i < 4; i++ {
		snap := baseBook(start.Add(time.Duration(i) * 5 * time.Second))
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: 90 + float64(i), Size: 100})
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: 112 - float64(i), Size: 80})
		d.Record(snap)
	}

	report := d.Analyze("BTC")

	assert.Equal(t, domain.WallUp, report.BidWall.Trend)
	assert.Equal(t, domain.WallDown, report.AskWall.Trend)
	assert.Len(t, report.BidWall.PricePath, 4)
	assert.Contains(t, report.Tags, "bid_wall_up")
	assert.Contains(t, report.Tags, "ask_wall_down")
	assert.Equal(t, domain.DirectionNeutral, report.Bias()) // opposing walls cancel
}

func TestWallStableWhenPricePinned(t *testing.T) {
	d := NewDetector(Config{}, nil)
	start := time.Now().Add(-30 * time.Second)
	for i := 0; i < 4; i++ {
		snap := baseBook(start.Add(time.Duration(i) * 5 * time.Second))
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: 94, Size: 100})
		d.Record(snap)
	}

	report := d.Analyze("BTC")

	assert.Equal(t, domain.WallStable, report.BidWall.Trend)
	assert.Equal(t, domain.WallAbsent, report.AskWall.Trend)
}

func TestRecordPrunesOutsideWindow(t *testing.T) {
	d := NewDetector(Config{Window: 60 * time.Second}, nil)
	now := time.Now()
	d.Record(baseBook(now.Add(-5 * time.Minute)))
	d.Record(baseBook(now.Add(-4 * time.Minute)))
	d.Record(baseBook(now.Add(-10 * time.Second)))
	d.Record(baseBook(now))

	assert.Equal(t, 2, d.SnapshotCount("BTC"))
}
