// Package hyperliquid implements the market-data source against the
// Hyperliquid public info API and its websocket trade feed.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/ingest"
)

// DefaultBaseURL is the production REST endpoint.
const DefaultBaseURL = "https://api.hyperliquid.xyz"

// Config tunes the REST client.
type Config struct {
	BaseURL           string        `yaml:"base_url" default:"https://api.hyperliquid.xyz"`
	Timeout           time.Duration `yaml:"timeout" default:"15s"`
	RequestsPerSecond float64       `yaml:"requests_per_second" default:"5"`
	Burst             int           `yaml:"burst" default:"10"`
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	return c
}

// Client talks to POST /info. All calls go through a shared rate limiter
// and a circuit breaker, so a misbehaving venue degrades to skipped cycles
// instead of hammering a dead endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	stream  *TradeStream
}

var _ ingest.Source = (*Client)(nil)

// NewClient builds a REST client. stream may be nil; RecentTrades then
// reports no prints and trade flow falls back to its candle proxy.
func NewClient(cfg Config, stream *TradeStream) *Client {
	cfg = cfg.withDefaults()
	settings := gobreaker.Settings{
		Name:     "hyperliquid-info",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		stream:  stream,
	}
}

// post sends one info request and decodes the response into out.
func (c *Client) post(ctx context.Context, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/info", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("info request: unexpected status %d", resp.StatusCode)
		}
		return nil, json.NewDecoder(resp.Body).Decode(out)
	})
	return err
}

type l2Level struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

type l2Book struct {
	Coin   string      `json:"coin"`
	Time   int64       `json:"time"`
	Levels [][]l2Level `json:"levels"`
}

// OrderBook fetches one atomic L2 snapshot.
func (c *Client) OrderBook(ctx context.Context, instrument string) (domain.OrderBookSnapshot, error) {
	var book l2Book
	err := c.post(ctx, map[string]any{"type": "l2Book", "coin": instrument}, &book)
	if err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	if len(book.Levels) != 2 {
		return domain.OrderBookSnapshot{}, fmt.Errorf("%w: l2Book for %s has %d sides",
			ingest.ErrMalformedSnapshot, instrument, len(book.Levels))
	}

	snap := domain.OrderBookSnapshot{
		Instrument: instrument,
		Timestamp:  time.UnixMilli(book.Time),
	}
	if book.Time == 0 {
		snap.Timestamp = time.Now()
	}
	if snap.Bids, err = parseLevels(book.Levels[0]); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("%w: %v", ingest.ErrMalformedSnapshot, err)
	}
	if snap.Asks, err = parseLevels(book.Levels[1]); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("%w: %v", ingest.ErrMalformedSnapshot, err)
	}
	return snap, nil
}

func parseLevels(raw []l2Level) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, lv := range raw {
		px, err := strconv.ParseFloat(lv.Px, 64)
		if err != nil {
			return nil, fmt.Errorf("bad price %q", lv.Px)
		}
		sz, err := strconv.ParseFloat(lv.Sz, 64)
		if err != nil {
			return nil, fmt.Errorf("bad size %q", lv.Sz)
		}
		out = append(out, domain.PriceLevel{Price: px, Size: sz})
	}
	return out, nil
}

type assetCtx struct {
	Funding      string `json:"funding"`
	OpenInterest string `json:"openInterest"`
	MarkPx       string `json:"markPx"`
	OraclePx     string `json:"oraclePx"`
}

type assetMeta struct {
	Universe []struct {
		Name string `json:"name"`
	} `json:"universe"`
}

// assetContext resolves one instrument's context from metaAndAssetCtxs,
// matching the universe entry by name.
func (c *Client) assetContext(ctx context.Context, instrument string) (assetCtx, error) {
	var raw []json.RawMessage
	if err := c.post(ctx, map[string]any{"type": "metaAndAssetCtxs"}, &raw); err != nil {
		return assetCtx{}, err
	}
	if len(raw) < 2 {
		return assetCtx{}, fmt.Errorf("%w: metaAndAssetCtxs returned %d elements", ingest.ErrMalformedSnapshot, len(raw))
	}
	var meta assetMeta
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return assetCtx{}, fmt.Errorf("%w: %v", ingest.ErrMalformedSnapshot, err)
	}
	var ctxs []assetCtx
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return assetCtx{}, fmt.Errorf("%w: %v", ingest.ErrMalformedSnapshot, err)
	}
	for i, entry := range meta.Universe {
		if entry.Name == instrument && i < len(ctxs) {
			return ctxs[i], nil
		}
	}
	return assetCtx{}, fmt.Errorf("%w: instrument %s not in universe", ingest.ErrMalformedSnapshot, instrument)
}

// FundingRate fetches the current funding rate.
func (c *Client) FundingRate(ctx context.Context, instrument string) (ingest.FundingSample, error) {
	actx, err := c.assetContext(ctx, instrument)
	if err != nil {
		return ingest.FundingSample{}, err
	}
	rate, err := strconv.ParseFloat(actx.Funding, 64)
	if err != nil {
		return ingest.FundingSample{}, fmt.Errorf("%w: bad funding %q", ingest.ErrMalformedSnapshot, actx.Funding)
	}
	return ingest.FundingSample{Rate8h: rate, Timestamp: time.Now()}, nil
}

type rawFundingEvent struct {
	Coin        string `json:"coin"`
	FundingRate string `json:"fundingRate"`
	Time        int64  `json:"time"`
}

// FundingHistory fetches past funding settlements back to lookback ago,
// oldest first. It backfills the velocity and acceleration reads that would
// otherwise need hours of live sampling.
func (c *Client) FundingHistory(ctx context.Context, instrument string, lookback time.Duration) ([]ingest.FundingSample, error) {
	req := map[string]any{
		"type":      "fundingHistory",
		"coin":      instrument,
		"startTime": time.Now().Add(-lookback).UnixMilli(),
	}
	var raw []rawFundingEvent
	if err := c.post(ctx, req, &raw); err != nil {
		return nil, err
	}
	out := make([]ingest.FundingSample, 0, len(raw))
	for _, ev := range raw {
		rate, err := strconv.ParseFloat(ev.FundingRate, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad fundingRate %q", ingest.ErrMalformedSnapshot, ev.FundingRate)
		}
		out = append(out, ingest.FundingSample{Rate8h: rate, Timestamp: time.UnixMilli(ev.Time)})
	}
	return out, nil
}

// OpenInterest fetches the current open interest.
func (c *Client) OpenInterest(ctx context.Context, instrument string) (ingest.OpenInterestSample, error) {
	actx, err := c.assetContext(ctx, instrument)
	if err != nil {
		return ingest.OpenInterestSample{}, err
	}
	oi, err := strconv.ParseFloat(actx.OpenInterest, 64)
	if err != nil {
		return ingest.OpenInterestSample{}, fmt.Errorf("%w: bad openInterest %q", ingest.ErrMalformedSnapshot, actx.OpenInterest)
	}
	return ingest.OpenInterestSample{Value: oi, Timestamp: time.Now()}, nil
}

// Prices fetches the mark and oracle prices for the basis metric.
func (c *Client) Prices(ctx context.Context, instrument string) (ingest.PriceSample, error) {
	actx, err := c.assetContext(ctx, instrument)
	if err != nil {
		return ingest.PriceSample{}, err
	}
	mark, err := strconv.ParseFloat(actx.MarkPx, 64)
	if err != nil {
		return ingest.PriceSample{}, fmt.Errorf("%w: bad markPx %q", ingest.ErrMalformedSnapshot, actx.MarkPx)
	}
	oracle, err := strconv.ParseFloat(actx.OraclePx, 64)
	if err != nil {
		return ingest.PriceSample{}, fmt.Errorf("%w: bad oraclePx %q", ingest.ErrMalformedSnapshot, actx.OraclePx)
	}
	return ingest.PriceSample{MarkPrice: mark, OraclePrice: oracle, Timestamp: time.Now()}, nil
}

type rawCandle struct {
	T int64  `json:"t"` // open time, ms
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
	V string `json:"v"`
}

// Candles fetches up to lookback bars of the given interval, oldest first.
func (c *Client) Candles(ctx context.Context, instrument, interval string, lookback int) ([]domain.Candle, error) {
	intervalDur := intervalDuration(interval)
	now := time.Now()
	payload := map[string]any{
		"type": "candleSnapshot",
		"req": map[string]any{
			"coin":      instrument,
			"interval":  interval,
			"startTime": now.Add(-time.Duration(lookback) * intervalDur).UnixMilli(),
			"endTime":   now.UnixMilli(),
		},
	}
	var raw []rawCandle
	if err := c.post(ctx, payload, &raw); err != nil {
		return nil, err
	}

	out := make([]domain.Candle, 0, len(raw))
	for _, rc := range raw {
		candle, err := rc.parse()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ingest.ErrMalformedSnapshot, err)
		}
		out = append(out, candle)
	}
	return out, nil
}

func (rc rawCandle) parse() (domain.Candle, error) {
	fields := [5]string{rc.O, rc.H, rc.L, rc.C, rc.V}
	var vals [5]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("bad candle field %q", f)
		}
		vals[i] = v
	}
	return domain.Candle{
		Timestamp: time.UnixMilli(rc.T),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	}
	return time.Minute
}

// RecentTrades drains prints buffered by the websocket stream. Without a
// stream there are no prints; callers degrade to their candle proxies.
func (c *Client) RecentTrades(ctx context.Context, instrument string, lookback time.Duration) ([]domain.Trade, error) {
	if c.stream == nil {
		return nil, nil
	}
	return c.stream.Drain(instrument), nil
}
