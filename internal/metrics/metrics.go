// Package metrics exposes the process counters and gauges served on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcome label values.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeMalformed = "malformed"
)

// Set bundles every collector the engine emits. One Set per process,
// registered on a caller-owned registry so tests stay isolated.
type Set struct {
	IngestCycles *prometheus.CounterVec
	FetchRetries prometheus.Counter
	Evaluations  *prometheus.CounterVec
	Score        *prometheus.GaugeVec
	SignalCount  *prometheus.GaugeVec
	WSReconnects prometheus.Counter
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)
	return &Set{
		IngestCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emerald",
			Subsystem: "ingest",
			Name:      "cycles_total",
			Help:      "Ingestion cycles by cadence group and outcome.",
		}, []string{"group", "outcome"}),
		FetchRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "emerald",
			Subsystem: "ingest",
			Name:      "fetch_retries_total",
			Help:      "Fetch attempts beyond the first.",
		}),
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emerald",
			Subsystem: "convergence",
			Name:      "evaluations_total",
			Help:      "Convergence evaluations by recommended action.",
		}, []string{"action"}),
		Score: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "emerald",
			Subsystem: "convergence",
			Name:      "score",
			Help:      "Latest convergence score per instrument.",
		}, []string{"instrument"}),
		SignalCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "emerald",
			Subsystem: "convergence",
			Name:      "signals_available",
			Help:      "Signals that produced a result in the latest evaluation.",
		}, []string{"instrument"}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "emerald",
			Subsystem: "stream",
			Name:      "ws_reconnects_total",
			Help:      "Trade stream reconnect attempts.",
		}),
	}
}

// ObserveEvaluation records the outcome of one evaluation.
func (s *Set) ObserveEvaluation(instrument, action string, score float64, signals int) {
	if s == nil {
		return
	}
	s.Evaluations.WithLabelValues(action).Inc()
	s.Score.WithLabelValues(instrument).Set(score)
	s.SignalCount.WithLabelValues(instrument).Set(float64(signals))
}

// ObserveIngest records one ingestion cycle outcome.
func (s *Set) ObserveIngest(group, outcome string) {
	if s == nil {
		return
	}
	s.IngestCycles.WithLabelValues(group, outcome).Inc()
}

// ObserveRetry records one fetch retry.
func (s *Set) ObserveRetry() {
	if s == nil {
		return
	}
	s.FetchRetries.Inc()
}

// ObserveReconnect records one websocket reconnect.
func (s *Set) ObserveReconnect() {
	if s == nil {
		return
	}
	s.WSReconnects.Inc()
}
