package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/signals"
)

// runEvaluate pulls one snapshot of everything and scores it. Signals that
// need longer history than a single pull provides are reported unavailable.
func runEvaluate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	instrument := a.instrument(args)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	candles, err := a.client.Candles(ctx, instrument, "1m", a.cfg.Ingest.CandleLookback)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}
	a.candles.Append(instrument, candles...)

	if history, err := a.client.FundingHistory(ctx, instrument, 16*time.Hour); err == nil {
		for _, sample := range history {
			seed(a, instrument, domain.MetricFundingAnnualized, signals.AnnualizeFunding(sample.Rate8h), sample.Timestamp)
		}
	} else {
		log.Warn().Err(err).Msg("funding history unavailable")
	}
	if funding, err := a.client.FundingRate(ctx, instrument); err == nil {
		seed(a, instrument, domain.MetricFundingAnnualized, signals.AnnualizeFunding(funding.Rate8h), funding.Timestamp)
	} else {
		log.Warn().Err(err).Msg("funding unavailable")
	}
	if oi, err := a.client.OpenInterest(ctx, instrument); err == nil {
		seed(a, instrument, domain.MetricOpenInterest, oi.Value, oi.Timestamp)
	} else {
		log.Warn().Err(err).Msg("open interest unavailable")
	}
	if prices, err := a.client.Prices(ctx, instrument); err == nil {
		seed(a, instrument, domain.MetricMarkPrice, prices.MarkPrice, prices.Timestamp)
		seed(a, instrument, domain.MetricBasisPct, signals.BasisPct(prices.OraclePrice, prices.MarkPrice), prices.Timestamp)
	} else {
		log.Warn().Err(err).Msg("prices unavailable")
	}

	snap, err := a.client.OrderBook(ctx, instrument)
	if err != nil {
		return fmt.Errorf("fetch order book: %w", err)
	}
	a.detector.Record(snap)

	result := a.engine.Evaluate(instrument, snap)
	a.metrics.ObserveEvaluation(instrument, string(result.Recommendation.Action), result.Score, len(result.Signals))

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func seed(a *app, instrument, metric string, value float64, ts time.Time) {
	if err := a.series.Append(instrument, metric, value, ts); err != nil {
		log.Debug().Str("metric", metric).Err(err).Msg("seed skipped")
	}
}
