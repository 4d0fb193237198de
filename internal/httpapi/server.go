// Package httpapi serves the read-only JSON surface: latest convergence
// verdicts, microstructure reports, health, and prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/convergence"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/metrics"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/microstructure"
)

// Server exposes the engine over HTTP. Evaluations run on demand; nothing
// is persisted between requests.
type Server struct {
	engine      *convergence.Engine
	detector    *microstructure.Detector
	metrics     *metrics.Set
	gatherer    prometheus.Gatherer
	instruments map[string]bool
	http        *http.Server
}

// New builds the server. instruments whitelists path parameters so a typo
// returns 404 instead of an empty evaluation.
func New(addr string, engine *convergence.Engine, detector *microstructure.Detector,
	m *metrics.Set, gatherer prometheus.Gatherer, instruments []string) *Server {
	allowed := make(map[string]bool, len(instruments))
	for _, inst := range instruments {
		allowed[inst] = true
	}
	s := &Server{
		engine:      engine,
		detector:    detector,
		metrics:     m,
		gatherer:    gatherer,
		instruments: allowed,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/v1/signal/{instrument}", s.handleSignal).Methods(http.MethodGet)
	r.HandleFunc("/v1/microstructure/{instrument}", s.handleMicrostructure).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled, then drains with a short grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.http.Addr).Msg("http api listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	instrument, ok := s.instrument(w, r)
	if !ok {
		return
	}
	snap, _ := s.detector.Latest(instrument)
	result := s.engine.Evaluate(instrument, snap)
	s.metrics.ObserveEvaluation(instrument, string(result.Recommendation.Action), result.Score, len(result.Signals))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMicrostructure(w http.ResponseWriter, r *http.Request) {
	instrument, ok := s.instrument(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.detector.Analyze(instrument))
}

func (s *Server) instrument(w http.ResponseWriter, r *http.Request) (string, bool) {
	instrument := mux.Vars(r)["instrument"]
	if !s.instruments[instrument] {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown instrument " + instrument})
		return "", false
	}
	return instrument, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response encode failed")
	}
}
