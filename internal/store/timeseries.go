package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
)

var (
	// ErrOutOfOrderWrite means an append carried a timestamp older than the
	// series' latest entry. Logged and dropped by the ingestion layer.
	ErrOutOfOrderWrite = errors.New("out-of-order write")

	// ErrInsufficientData means a lookup found nothing within tolerance.
	// It is a first-class skip outcome, not a failure path.
	ErrInsufficientData = errors.New("insufficient data")
)

// DefaultTolerance bounds how far a point-in-time lookup may stray from the
// requested offset.
const DefaultTolerance = 15 * time.Minute

// series is one (instrument, metric) history. Points are strictly ordered by
// timestamp. Eviction advances start; the backing slice is compacted once the
// dead prefix dominates, keeping appends amortized O(1).
type series struct {
	points  []domain.MetricPoint
	start   int
	horizon time.Duration
}

func (s *series) live() []domain.MetricPoint { return s.points[s.start:] }

func (s *series) evictBefore(cutoff time.Time) {
	for s.start < len(s.points) && s.points[s.start].Timestamp.Before(cutoff) {
		s.start++
	}
	if s.start > 0 && s.start*2 >= len(s.points) {
		s.points = append([]domain.MetricPoint(nil), s.points[s.start:]...)
		s.start = 0
	}
}

// TimeSeries is the bounded multi-timeframe metric store. One instance is
// injected into calculators and the scorer; there are no ambient singletons.
// Write access belongs to the ingestion scheduler alone; evaluations only
// read. A single RWMutex keeps readers consistent during appends.
type TimeSeries struct {
	mu       sync.RWMutex
	series   map[string]*series
	horizons map[string]time.Duration
	fallback time.Duration
	now      func() time.Time
}

// Option configures a TimeSeries.
type Option func(*TimeSeries)

// WithHorizon sets the retention horizon for one metric name.
func WithHorizon(metric string, d time.Duration) Option {
	return func(ts *TimeSeries) { ts.horizons[metric] = d }
}

// WithFallbackHorizon sets the retention used for metrics without an
// explicit horizon.
func WithFallbackHorizon(d time.Duration) Option {
	return func(ts *TimeSeries) { ts.fallback = d }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(ts *TimeSeries) { ts.now = now }
}

// NewTimeSeries builds an empty store. Default horizons follow the metric
// cadences: order-book derived series keep 1h, everything else 7d.
func NewTimeSeries(opts ...Option) *TimeSeries {
	ts := &TimeSeries{
		series: make(map[string]*series),
		horizons: map[string]time.Duration{
			domain.MetricBookImbalance: time.Hour,
		},
		fallback: 7 * 24 * time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

func seriesKey(instrument, metric string) string { return instrument + "\x00" + metric }

func (ts *TimeSeries) horizonFor(metric string) time.Duration {
	if h, ok := ts.horizons[metric]; ok {
		return h
	}
	return ts.fallback
}

// Append records one observation. Duplicate timestamps are idempotent
// no-ops; older timestamps fail with ErrOutOfOrderWrite. Retention is
// enforced lazily here, so memory stays bounded without external cleanup.
func (ts *TimeSeries) Append(instrument, metric string, value float64, at time.Time) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	key := seriesKey(instrument, metric)
	s, ok := ts.series[key]
	if !ok {
		s = &series{horizon: ts.horizonFor(metric)}
		ts.series[key] = s
	}

	if live := s.live(); len(live) > 0 {
		latest := live[len(live)-1].Timestamp
		if at.Equal(latest) {
			return nil
		}
		if at.Before(latest) {
			return fmt.Errorf("%w: %s/%s at %s precedes %s",
				ErrOutOfOrderWrite, instrument, metric, at.Format(time.RFC3339), latest.Format(time.RFC3339))
		}
	}

	s.points = append(s.points, domain.MetricPoint{
		Instrument: instrument,
		Metric:     metric,
		Timestamp:  at,
		Value:      value,
	})
	s.evictBefore(ts.now().Add(-s.horizon))
	return nil
}

// Latest returns the most recent value for a series.
func (ts *TimeSeries) Latest(instrument, metric string) (domain.MetricPoint, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	s, ok := ts.series[seriesKey(instrument, metric)]
	if !ok {
		return domain.MetricPoint{}, ErrInsufficientData
	}
	live := s.live()
	if len(live) == 0 {
		return domain.MetricPoint{}, ErrInsufficientData
	}
	return live[len(live)-1], nil
}

// ValueAt returns the value closest to now-ago, provided it lies within
// tolerance of the requested instant. Lookup is a binary search over the
// ordered series rather than a scan.
func (ts *TimeSeries) ValueAt(instrument, metric string, ago, tolerance time.Duration) (float64, error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	ts.mu.RLock()
	defer ts.mu.RUnlock()

	s, ok := ts.series[seriesKey(instrument, metric)]
	if !ok {
		return 0, ErrInsufficientData
	}
	live := s.live()
	if len(live) == 0 {
		return 0, ErrInsufficientData
	}

	target := ts.now().Add(-ago)
	i := sort.Search(len(live), func(i int) bool {
		return !live[i].Timestamp.Before(target)
	})

	best := -1
	bestDiff := tolerance
	for _, idx := range []int{i - 1, i} {
		if idx < 0 || idx >= len(live) {
			continue
		}
		diff := absDuration(live[idx].Timestamp.Sub(target))
		if diff <= bestDiff {
			bestDiff = diff
			best = idx
		}
	}
	if best < 0 {
		return 0, ErrInsufficientData
	}
	return live[best].Value, nil
}

// Changes computes percentage change from each offset to the latest value.
// Offsets lacking data within tolerance are simply omitted.
func (ts *TimeSeries) Changes(instrument, metric string, offsets ...time.Duration) map[time.Duration]float64 {
	out := make(map[time.Duration]float64, len(offsets))
	latest, err := ts.Latest(instrument, metric)
	if err != nil {
		return out
	}
	for _, off := range offsets {
		past, err := ts.ValueAt(instrument, metric, off, DefaultTolerance)
		if err != nil || past == 0 {
			continue
		}
		out[off] = (latest.Value - past) / past * 100
	}
	return out
}

// Velocity is the simple difference between the latest value and the value
// one offset ago.
func (ts *TimeSeries) Velocity(instrument, metric string, offset time.Duration) (float64, error) {
	latest, err := ts.Latest(instrument, metric)
	if err != nil {
		return 0, err
	}
	past, err := ts.ValueAt(instrument, metric, offset, DefaultTolerance)
	if err != nil {
		return 0, err
	}
	return latest.Value - past, nil
}

// Acceleration is the change in velocity across two adjacent offset windows:
// (v_now - v_offset_ago), each velocity itself measured over offset.
func (ts *TimeSeries) Acceleration(instrument, metric string, offset time.Duration) (float64, error) {
	vNow, err := ts.Velocity(instrument, metric, offset)
	if err != nil {
		return 0, err
	}
	mid, err := ts.ValueAt(instrument, metric, offset, DefaultTolerance)
	if err != nil {
		return 0, err
	}
	far, err := ts.ValueAt(instrument, metric, 2*offset, DefaultTolerance)
	if err != nil {
		return 0, err
	}
	return vNow - (mid - far), nil
}

// Len reports the live length of one series, for tests and diagnostics.
func (ts *TimeSeries) Len(instrument, metric string) int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	s, ok := ts.series[seriesKey(instrument, metric)]
	if !ok {
		return 0
	}
	return len(s.live())
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
