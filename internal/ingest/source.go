// Package ingest drives the periodic market-data pull loops that keep the
// stores and the microstructure window fresh.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
)

// ErrMalformedSnapshot marks a payload missing required fields. The single
// offending snapshot is discarded; ingestion continues with the next cycle.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// FundingSample is one funding-rate observation, as the 8h rate.
type FundingSample struct {
	Rate8h    float64
	Timestamp time.Time
}

// OpenInterestSample is one open-interest observation in contracts.
type OpenInterestSample struct {
	Value     float64
	Timestamp time.Time
}

// PriceSample carries the mark and oracle prices used for the basis metric.
type PriceSample struct {
	MarkPrice   float64
	OraclePrice float64
	Timestamp   time.Time
}

// Source is the external market-data collaborator. All fetches are
// read-only and idempotent; failures are treated as transient.
type Source interface {
	OrderBook(ctx context.Context, instrument string) (domain.OrderBookSnapshot, error)
	FundingRate(ctx context.Context, instrument string) (FundingSample, error)
	FundingHistory(ctx context.Context, instrument string, lookback time.Duration) ([]FundingSample, error)
	OpenInterest(ctx context.Context, instrument string) (OpenInterestSample, error)
	Prices(ctx context.Context, instrument string) (PriceSample, error)
	Candles(ctx context.Context, instrument, interval string, lookback int) ([]domain.Candle, error)
	RecentTrades(ctx context.Context, instrument string, lookback time.Duration) ([]domain.Trade, error)
}
