package store

import (
	"sync"
	"time"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
)

// CandleLog keeps a bounded per-instrument candle history for VWAP, volume
// ratio, and ATR computation. Same single-writer discipline as TimeSeries.
type CandleLog struct {
	mu        sync.RWMutex
	byInst    map[string][]domain.Candle
	retention time.Duration
	now       func() time.Time
}

// NewCandleLog builds a log retaining the given duration of candles.
func NewCandleLog(retention time.Duration) *CandleLog {
	return &CandleLog{
		byInst:    make(map[string][]domain.Candle),
		retention: retention,
		now:       time.Now,
	}
}

// Append adds candles in order, dropping any not newer than the last kept
// bar, then evicts expired history.
func (l *CandleLog) Append(instrument string, candles ...domain.Candle) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.byInst[instrument]
	for _, c := range candles {
		if n := len(existing); n > 0 && !c.Timestamp.After(existing[n-1].Timestamp) {
			continue
		}
		existing = append(existing, c)
	}

	cutoff := l.now().Add(-l.retention)
	i := 0
	for i < len(existing) && existing[i].Timestamp.Before(cutoff) {
		i++
	}
	l.byInst[instrument] = existing[i:]
}

// Recent returns up to n of the newest candles, oldest first. The returned
// slice is a copy; callers may not mutate store state.
func (l *CandleLog) Recent(instrument string, n int) []domain.Candle {
	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.byInst[instrument]
	if len(all) > n {
		all = all[len(all)-n:]
	}
	out := make([]domain.Candle, len(all))
	copy(out, all)
	return out
}

// TradeLog keeps a short rolling buffer of prints for trade-flow analysis
// and spoof/fill disambiguation.
type TradeLog struct {
	mu        sync.RWMutex
	byInst    map[string][]domain.Trade
	retention time.Duration
	now       func() time.Time
}

// NewTradeLog builds a log retaining the given duration of prints.
func NewTradeLog(retention time.Duration) *TradeLog {
	return &TradeLog{
		byInst:    make(map[string][]domain.Trade),
		retention: retention,
		now:       time.Now,
	}
}

// Append records prints and evicts expired ones.
func (l *TradeLog) Append(instrument string, trades ...domain.Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := append(l.byInst[instrument], trades...)
	cutoff := l.now().Add(-l.retention)
	i := 0
	for i < len(existing) && existing[i].Timestamp.Before(cutoff) {
		i++
	}
	l.byInst[instrument] = existing[i:]
}

// Since returns a copy of all prints at or after the cutoff.
func (l *TradeLog) Since(instrument string, cutoff time.Time) []domain.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.byInst[instrument]
	i := 0
	for i < len(all) && all[i].Timestamp.Before(cutoff) {
		i++
	}
	out := make([]domain.Trade, len(all)-i)
	copy(out, all[i:])
	return out
}
