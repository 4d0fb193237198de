package main

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/config"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/convergence"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/hyperliquid"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/ingest"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/metrics"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/microstructure"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/store"
)

// app bundles the wired process components shared by the subcommands.
type app struct {
	cfg      config.Config
	registry *prometheus.Registry
	metrics  *metrics.Set

	series   *store.TimeSeries
	candles  *store.CandleLog
	trades   *store.TradeLog
	detector *microstructure.Detector
	engine   *convergence.Engine

	stream    *hyperliquid.TradeStream
	client    *hyperliquid.Client
	scheduler *ingest.Scheduler
}

// newApp loads config from the --config flag and wires every component.
// withStream controls whether the websocket trade stream is constructed;
// one-shot commands skip it.
func newApp(cmd *cobra.Command, withStream bool) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	setLogLevel(cfg.Logging.Level)
	if !cfg.Logging.Pretty {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	registry := prometheus.NewRegistry()
	set := metrics.New(registry)

	a := &app{
		cfg:      cfg,
		registry: registry,
		metrics:  set,
		series: store.NewTimeSeries(
			store.WithFallbackHorizon(cfg.Store.SeriesHorizon),
		),
		candles: store.NewCandleLog(cfg.Store.CandleHorizon),
		trades:  store.NewTradeLog(cfg.Store.TradeHorizon),
	}
	a.detector = microstructure.NewDetector(cfg.Microstructure, a.trades)
	a.engine = convergence.NewEngine(cfg.Convergence, cfg.Thresholds,
		a.series, a.candles, a.trades, a.detector)

	if withStream {
		a.stream = hyperliquid.NewTradeStream(cfg.StreamURL, cfg.Instruments, set)
	}
	a.client = hyperliquid.NewClient(cfg.Hyperliquid, a.stream)
	a.scheduler = ingest.NewScheduler(cfg.Ingest, a.client,
		a.series, a.candles, a.trades, a.detector, set)
	return a, nil
}

// instrument resolves the positional instrument argument, defaulting to the
// first configured one.
func (a *app) instrument(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return a.cfg.Instruments[0]
}
