package hyperliquid

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/metrics"
)

// DefaultWSURL is the production websocket endpoint.
const DefaultWSURL = "wss://api.hyperliquid.xyz/ws"

const reconnectBackoff = 2 * time.Second

// TradeStream subscribes to per-instrument trade prints and buffers them
// until the ingestion scheduler drains the buffer. Reconnects forever with
// backoff until the context is cancelled.
type TradeStream struct {
	url         string
	instruments []string
	metrics     *metrics.Set

	mu  sync.Mutex
	buf map[string][]domain.Trade
}

// NewTradeStream builds a stream for the given instruments. metrics may be
// nil.
func NewTradeStream(url string, instruments []string, m *metrics.Set) *TradeStream {
	if url == "" {
		url = DefaultWSURL
	}
	return &TradeStream{
		url:         url,
		instruments: instruments,
		metrics:     m,
		buf:         make(map[string][]domain.Trade),
	}
}

type wsSubscription struct {
	Method       string `json:"method"`
	Subscription struct {
		Type string `json:"type"`
		Coin string `json:"coin"`
	} `json:"subscription"`
}

type wsTrade struct {
	Coin string `json:"coin"`
	Side string `json:"side"` // "B" buy, "A" sell
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	Time int64  `json:"time"`
}

type wsMessage struct {
	Channel string    `json:"channel"`
	Data    []wsTrade `json:"data"`
}

// Run blocks until ctx is cancelled, maintaining the connection.
func (s *TradeStream) Run(ctx context.Context) {
	for {
		if err := s.connectAndRead(ctx); err != nil {
			log.Warn().Str("url", s.url).Err(err).Msg("trade stream disconnected")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff):
			s.metrics.ObserveReconnect()
		}
	}
}

func (s *TradeStream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Drop the connection when the context ends; ReadJSON has no ctx.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for _, instrument := range s.instruments {
		var sub wsSubscription
		sub.Method = "subscribe"
		sub.Subscription.Type = "trades"
		sub.Subscription.Coin = instrument
		if err := conn.WriteJSON(sub); err != nil {
			return err
		}
	}
	log.Info().Strs("instruments", s.instruments).Msg("trade stream subscribed")

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Channel != "trades" {
			continue
		}
		s.buffer(msg.Data)
	}
}

func (s *TradeStream) buffer(raw []wsTrade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wt := range raw {
		px, errPx := strconv.ParseFloat(wt.Px, 64)
		sz, errSz := strconv.ParseFloat(wt.Sz, 64)
		if errPx != nil || errSz != nil {
			continue
		}
		side := domain.SideSell
		if wt.Side == "B" {
			side = domain.SideBuy
		}
		s.buf[wt.Coin] = append(s.buf[wt.Coin], domain.Trade{
			Timestamp: time.UnixMilli(wt.Time),
			Price:     px,
			Size:      sz,
			Side:      side,
		})
	}
}

// Drain returns and clears the buffered prints for one instrument.
func (s *TradeStream) Drain(instrument string) []domain.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.buf[instrument]
	delete(s.buf, instrument)
	return out
}
