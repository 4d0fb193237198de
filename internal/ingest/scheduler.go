package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/metrics"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/microstructure"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/signals"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/store"
)

// Cadence group names, used in logs and metric labels.
const (
	groupBook        = "order_book"
	groupTrades      = "trades"
	groupCandles     = "candles"
	groupDerivatives = "derivatives"
)

// fundingBackfill covers the velocity and acceleration lookbacks plus one
// settlement of slack.
const fundingBackfill = 16 * time.Hour

// Config tunes the scheduler cadences and retry policy.
type Config struct {
	Instruments         []string      `yaml:"instruments" validate:"min=1"`
	BookInterval        time.Duration `yaml:"book_interval" default:"2s"`
	TradeInterval       time.Duration `yaml:"trade_interval" default:"5s"`
	CandleInterval      time.Duration `yaml:"candle_interval" default:"1m"`
	DerivativesInterval time.Duration `yaml:"derivatives_interval" default:"5m"`
	CandleLookback      int           `yaml:"candle_lookback" default:"120"`
	FetchTimeout        time.Duration `yaml:"fetch_timeout" default:"10s"`
	Retries             int           `yaml:"retries" default:"2"`
	RetryBackoff        time.Duration `yaml:"retry_backoff" default:"500ms"`
}

func (c Config) withDefaults() Config {
	if c.BookInterval <= 0 {
		c.BookInterval = 2 * time.Second
	}
	if c.TradeInterval <= 0 {
		c.TradeInterval = 5 * time.Second
	}
	if c.CandleInterval <= 0 {
		c.CandleInterval = time.Minute
	}
	if c.DerivativesInterval <= 0 {
		c.DerivativesInterval = 5 * time.Minute
	}
	if c.CandleLookback <= 0 {
		c.CandleLookback = 120
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return c
}

// Scheduler owns all writes into the stores and the detector window. One
// goroutine per cadence group; a failed cycle is logged and skipped,
// leaving last-known values to age out naturally.
type Scheduler struct {
	cfg      Config
	src      Source
	series   *store.TimeSeries
	candles  *store.CandleLog
	trades   *store.TradeLog
	detector *microstructure.Detector
	metrics  *metrics.Set

	// touched only by the derivatives loop goroutine
	backfilled map[string]bool
}

// NewScheduler wires a scheduler onto the shared stores. metrics may be nil.
func NewScheduler(cfg Config, src Source, series *store.TimeSeries, candles *store.CandleLog,
	trades *store.TradeLog, detector *microstructure.Detector, m *metrics.Set) *Scheduler {
	return &Scheduler{
		cfg:        cfg.withDefaults(),
		src:        src,
		series:     series,
		candles:    candles,
		trades:     trades,
		detector:   detector,
		metrics:    m,
		backfilled: make(map[string]bool),
	}
}

// Run blocks until ctx is cancelled, polling each cadence group on its own
// ticker. Every group fires once immediately so evaluations have data
// without waiting a full derivatives interval.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	loops := []struct {
		group    string
		interval time.Duration
		cycle    func(context.Context, string)
	}{
		{groupBook, s.cfg.BookInterval, s.pollBook},
		{groupTrades, s.cfg.TradeInterval, s.pollTrades},
		{groupCandles, s.cfg.CandleInterval, s.pollCandles},
		{groupDerivatives, s.cfg.DerivativesInterval, s.pollDerivatives},
	}
	for _, loop := range loops {
		loop := loop
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runLoop(ctx, loop.group, loop.interval, loop.cycle)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, group string, interval time.Duration, cycle func(context.Context, string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick := func() {
		for _, instrument := range s.cfg.Instruments {
			cycle(ctx, instrument)
		}
	}
	tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

// fetch runs one bounded-timeout fetch with retries. Malformed payloads are
// not retried; the data will not get better by asking again.
func (s *Scheduler) fetch(ctx context.Context, group, instrument string, do func(context.Context) error) bool {
	var err error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 {
			s.metrics.ObserveRetry()
			select {
			case <-ctx.Done():
				return false
			case <-time.After(s.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}
		fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
		err = do(fctx)
		cancel()
		if err == nil {
			s.metrics.ObserveIngest(group, metrics.OutcomeOK)
			return true
		}
		if errors.Is(err, ErrMalformedSnapshot) {
			s.metrics.ObserveIngest(group, metrics.OutcomeMalformed)
			log.Warn().Str("group", group).Str("instrument", instrument).
				Err(err).Msg("discarding malformed payload")
			return false
		}
	}
	s.metrics.ObserveIngest(group, metrics.OutcomeError)
	log.Warn().Str("group", group).Str("instrument", instrument).
		Err(err).Msg("fetch failed, skipping cycle")
	return false
}

func (s *Scheduler) pollBook(ctx context.Context, instrument string) {
	s.fetch(ctx, groupBook, instrument, func(fctx context.Context) error {
		snap, err := s.src.OrderBook(fctx, instrument)
		if err != nil {
			return err
		}
		s.detector.Record(snap)
		imb := signals.BookImbalance(snap.Bids, snap.Asks, 10)
		if err := s.series.Append(instrument, domain.MetricBookImbalance, imb, snap.Timestamp); err != nil {
			logDropped(instrument, domain.MetricBookImbalance, err)
		}
		return nil
	})
}

func (s *Scheduler) pollTrades(ctx context.Context, instrument string) {
	s.fetch(ctx, groupTrades, instrument, func(fctx context.Context) error {
		prints, err := s.src.RecentTrades(fctx, instrument, s.cfg.TradeInterval)
		if err != nil {
			return err
		}
		s.trades.Append(instrument, prints...)
		return nil
	})
}

func (s *Scheduler) pollCandles(ctx context.Context, instrument string) {
	s.fetch(ctx, groupCandles, instrument, func(fctx context.Context) error {
		bars, err := s.src.Candles(fctx, instrument, "1m", s.cfg.CandleLookback)
		if err != nil {
			return err
		}
		s.candles.Append(instrument, bars...)
		return nil
	})
}

// backfillFunding seeds the funding series from settlement history so
// velocity and acceleration have their 4h and 8h lookbacks on the very
// first evaluation. Runs once per instrument; a failure just means the
// reads stay unavailable until live sampling catches up.
func (s *Scheduler) backfillFunding(ctx context.Context, instrument string) {
	if s.backfilled[instrument] {
		return
	}
	s.backfilled[instrument] = true
	s.fetch(ctx, groupDerivatives, instrument, func(fctx context.Context) error {
		history, err := s.src.FundingHistory(fctx, instrument, fundingBackfill)
		if err != nil {
			return err
		}
		for _, sample := range history {
			annualized := signals.AnnualizeFunding(sample.Rate8h)
			if err := s.series.Append(instrument, domain.MetricFundingAnnualized, annualized, sample.Timestamp); err != nil {
				logDropped(instrument, domain.MetricFundingAnnualized, err)
			}
		}
		return nil
	})
}

// pollDerivatives refreshes funding, open interest, and the mark/oracle
// basis in one cadence group.
func (s *Scheduler) pollDerivatives(ctx context.Context, instrument string) {
	s.backfillFunding(ctx, instrument)
	s.fetch(ctx, groupDerivatives, instrument, func(fctx context.Context) error {
		funding, err := s.src.FundingRate(fctx, instrument)
		if err != nil {
			return err
		}
		annualized := signals.AnnualizeFunding(funding.Rate8h)
		if err := s.series.Append(instrument, domain.MetricFundingAnnualized, annualized, funding.Timestamp); err != nil {
			logDropped(instrument, domain.MetricFundingAnnualized, err)
		}

		oi, err := s.src.OpenInterest(fctx, instrument)
		if err != nil {
			return err
		}
		if err := s.series.Append(instrument, domain.MetricOpenInterest, oi.Value, oi.Timestamp); err != nil {
			logDropped(instrument, domain.MetricOpenInterest, err)
		}

		prices, err := s.src.Prices(fctx, instrument)
		if err != nil {
			return err
		}
		if err := s.series.Append(instrument, domain.MetricMarkPrice, prices.MarkPrice, prices.Timestamp); err != nil {
			logDropped(instrument, domain.MetricMarkPrice, err)
		}
		basis := signals.BasisPct(prices.OraclePrice, prices.MarkPrice)
		if err := s.series.Append(instrument, domain.MetricBasisPct, basis, prices.Timestamp); err != nil {
			logDropped(instrument, domain.MetricBasisPct, err)
		}
		return nil
	})
}

// Out-of-order writes are dropped, never fatal.
func logDropped(instrument, metric string, err error) {
	if errors.Is(err, store.ErrOutOfOrderWrite) {
		log.Debug().Str("instrument", instrument).Str("metric", metric).
			Err(err).Msg("dropping out-of-order point")
		return
	}
	log.Warn().Str("instrument", instrument).Str("metric", metric).
		Err(err).Msg("store append failed")
}
