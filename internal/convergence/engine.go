// Package convergence aggregates per-metric signal results into a single
// 0-100 score with direction, confidence, regime, and derived trade levels.
package convergence

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/domain"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/microstructure"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/signals"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/store"
)

// Weights maps a metric name to its fraction of the total score. Fractions
// are renormalized at evaluation time over the signals that actually
// produced a result, so missing data never deflates the score mechanically.
type Weights map[string]float64

// DefaultWeights splits the score 25/25/30/10/10 across the five metrics.
func DefaultWeights() Weights {
	return Weights{
		signals.MetricOrderBook: 0.25,
		signals.MetricTradeFlow: 0.25,
		signals.MetricVWAP:      0.30,
		signals.MetricFunding:   0.10,
		signals.MetricOIFlow:    0.10,
	}
}

// Config holds the scorer knobs. Zero value is unusable; start from
// DefaultConfig.
type Config struct {
	Weights             Weights
	MinScore            float64 `yaml:"min_score" default:"70"`
	HighConfidenceScore float64 `yaml:"high_confidence_score" default:"85"`
	MinAligned          int     `yaml:"min_aligned" default:"3"`
	DivergencePenalty   float64 `yaml:"divergence_penalty" default:"15"`
	MicroBonus          float64 `yaml:"micro_bonus" default:"10"`
	StopATRMultiple     float64 `yaml:"stop_atr_multiple" default:"1.5"`
	StopPctFloor        float64 `yaml:"stop_pct_floor" default:"0.03"`
	ATRPeriod           int     `yaml:"atr_period" default:"14"`
	TargetRiskMultiple  float64 `yaml:"target_risk_multiple" default:"2"`
	RunnerRiskMultiple  float64 `yaml:"runner_risk_multiple" default:"3"`
}

// DefaultConfig returns the production scorer settings.
func DefaultConfig() Config {
	return Config{
		Weights:             DefaultWeights(),
		MinScore:            70,
		HighConfidenceScore: 85,
		MinAligned:          3,
		DivergencePenalty:   15,
		MicroBonus:          10,
		StopATRMultiple:     1.5,
		StopPctFloor:        0.03,
		ATRPeriod:           14,
		TargetRiskMultiple:  2,
		RunnerRiskMultiple:  3,
	}
}

// Engine runs the calculators and folds their outputs into one verdict.
// Every Evaluate call is independent: same store contents, same result.
type Engine struct {
	cfg      Config
	th       signals.Thresholds
	series   *store.TimeSeries
	candles  *store.CandleLog
	detector *microstructure.Detector

	orderBook *signals.OrderBook
	vwap      *signals.VWAPDeviation
	funding   *signals.Funding
	oiFlow    *signals.OIFlow
	tradeFlow *signals.TradeFlow

	now func() time.Time
}

// NewEngine wires the calculators onto the shared stores. The detector may
// be nil, in which case the microstructure bonus is never applied.
func NewEngine(cfg Config, th signals.Thresholds, series *store.TimeSeries,
	candles *store.CandleLog, trades *store.TradeLog, detector *microstructure.Detector) *Engine {
	if cfg.Weights == nil {
		cfg.Weights = DefaultWeights()
	}
	return &Engine{
		cfg:       cfg,
		th:        th,
		series:    series,
		candles:   candles,
		detector:  detector,
		orderBook: signals.NewOrderBook(th),
		vwap:      signals.NewVWAPDeviation(th),
		funding:   signals.NewFunding(th, series, candles),
		oiFlow:    signals.NewOIFlow(th, series),
		tradeFlow: signals.NewTradeFlow(th, trades, candles),
		now:       time.Now,
	}
}

// Evaluate scores one instrument against the latest book snapshot.
// Calculators without enough history are skipped and do not count toward
// the weight denominator.
func (e *Engine) Evaluate(instrument string, snap domain.OrderBookSnapshot) domain.ConvergenceResult {
	results := make(map[string]domain.SignalResult, 5)
	var unavailable []string

	run := func(metric string, res domain.SignalResult, err error) {
		if err != nil {
			unavailable = append(unavailable, metric)
			log.Debug().Str("instrument", instrument).Str("metric", metric).
				Err(err).Msg("signal unavailable")
			return
		}
		results[metric] = res
	}

	obRes, obErr := e.orderBook.Calculate(snap)
	run(signals.MetricOrderBook, obRes, obErr)

	vwapRes, vwapErr := e.vwap.Calculate(e.candles.Recent(instrument, e.th.VWAPLookback))
	run(signals.MetricVWAP, vwapRes, vwapErr)

	fundRes, fundErr := e.funding.Calculate(instrument)
	run(signals.MetricFunding, fundRes, fundErr)

	oiRes, oiErr := e.oiFlow.Calculate(instrument)
	run(signals.MetricOIFlow, oiRes, oiErr)

	flowRes, flowErr := e.tradeFlow.Calculate(instrument, snap.Mid())
	run(signals.MetricTradeFlow, flowRes, flowErr)

	score := e.score(results)
	bullish, bearish, neutral := countVotes(results)
	direction, aligned := e.direction(bullish, bearish)

	modifiers := make(map[string]float64)
	if penalty, ok := e.divergencePenalty(instrument); ok {
		score -= penalty
		modifiers["funding_basis_divergence"] = -penalty
	}
	regime := domain.RegimeNeutral
	if f, ok := results[signals.MetricFunding]; ok && f.Note != "" {
		regime = domain.Regime(f.Note)
	}
	if bonus, ok := e.microBonus(instrument, direction); ok {
		score += bonus
		modifiers["microstructure_alignment"] = bonus
	}
	score = math.Min(100, math.Max(0, score))

	confidence := e.confidence(score, direction, aligned, bullish, bearish, neutral)
	result := domain.ConvergenceResult{
		ID:          uuid.New(),
		Instrument:  instrument,
		Timestamp:   e.now(),
		Score:       score,
		Direction:   direction,
		Confidence:  confidence,
		Regime:      regime,
		Signals:     results,
		Unavailable: unavailable,
		Modifiers:   modifiers,
	}
	result.Recommendation = e.recommend(instrument, snap, score, direction, confidence)

	log.Info().Str("instrument", instrument).
		Float64("score", score).
		Str("direction", string(direction)).
		Str("confidence", string(confidence)).
		Str("action", string(result.Recommendation.Action)).
		Int("signals", len(results)).
		Msg("convergence evaluated")
	return result
}

// score renormalizes weights over the signals that produced a usable
// result, then sums strength-weighted contributions. Abstaining signals
// carry no weight.
func (e *Engine) score(results map[string]domain.SignalResult) float64 {
	var denom float64
	for metric, res := range results {
		if res.Direction == domain.DirectionSkip {
			continue
		}
		denom += e.cfg.Weights[metric]
	}
	if denom == 0 {
		return 0
	}
	var score float64
	for metric, res := range results {
		if res.Direction == domain.DirectionSkip {
			continue
		}
		score += res.Strength / 10 * (e.cfg.Weights[metric] / denom) * 100
	}
	return score
}

func countVotes(results map[string]domain.SignalResult) (bullish, bearish, neutral int) {
	for _, res := range results {
		switch res.Direction {
		case domain.DirectionBullish:
			bullish++
		case domain.DirectionBearish:
			bearish++
		case domain.DirectionNeutral:
			neutral++
		}
	}
	return bullish, bearish, neutral
}

func (e *Engine) direction(bullish, bearish int) (domain.Direction, int) {
	switch {
	case bullish >= e.cfg.MinAligned && bullish > bearish:
		return domain.DirectionBullish, bullish
	case bearish >= e.cfg.MinAligned && bearish > bullish:
		return domain.DirectionBearish, bearish
	}
	return domain.DirectionNeutral, max(bullish, bearish)
}

// divergencePenalty fires when funding and basis are both at extremes but
// disagree in sign. Crowded positioning the spot market refuses to confirm
// is a veto, not a missed bonus.
func (e *Engine) divergencePenalty(instrument string) (float64, bool) {
	funding, err := e.series.Latest(instrument, domain.MetricFundingAnnualized)
	if err != nil {
		return 0, false
	}
	basis, err := e.series.Latest(instrument, domain.MetricBasisPct)
	if err != nil {
		return 0, false
	}
	fundingExtreme := math.Abs(funding.Value) > e.th.FundingExtreme
	basisExtreme := math.Abs(basis.Value) > e.th.BasisExtreme
	if fundingExtreme && basisExtreme && funding.Value*basis.Value < 0 {
		return e.cfg.DivergencePenalty, true
	}
	return 0, false
}

// microBonus rewards a fill-confirmed microstructure read that leans the
// same way as the scored direction.
func (e *Engine) microBonus(instrument string, direction domain.Direction) (float64, bool) {
	if e.detector == nil || direction == domain.DirectionNeutral {
		return 0, false
	}
	report := e.detector.Analyze(instrument)
	if !report.TradeConfirmed {
		return 0, false
	}
	if report.Bias() != direction {
		return 0, false
	}
	return e.cfg.MicroBonus, true
}

/// confidence grades the verdict. HIGH demands unanimity: every signal that
// voted at all voted the scored direction; a neutral vote caps it at MEDIUM.
func (e *Engine) confidence(score float64, direction domain.Direction, aligned, bullish, bearish, neutral int) domain.Confidence {
	opposing := bearish
	if direction == domain.DirectionBearish {
		opposing = bullish
	}
	switch {
	case direction != domain.DirectionNeutral && score >= e.cfg.HighConfidenceScore &&
		opposing == 0 && neutral == 0:
		return domain.ConfidenceHigh
	case score >= e.cfg.MinScore && aligned >= e.cfg.MinAligned:
		return domain.ConfidenceMedium
	}
	return domain.ConfidenceLow
}

// recommend derives trade levels. The stop is the wider of a volatility
// bound and a fixed percentage floor; targets sit at fixed risk multiples.
func (e *Engine) recommend(instrument string, snap domain.OrderBookSnapshot,
	score float64, direction domain.Direction, confidence domain.Confidence) domain.TradeRecommendation {
	if score < e.cfg.MinScore || direction == domain.DirectionNeutral {
		return domain.TradeRecommendation{Action: domain.ActionSkip}
	}

	entry := snap.Mid()
	if entry == 0 {
		if mark, err := e.series.Latest(instrument, domain.MetricMarkPrice); err == nil {
			entry = mark.Value
		}
	}
	if entry == 0 {
		return domain.TradeRecommendation{Action: domain.ActionSkip}
	}

	atr := signals.ATR(e.candles.Recent(instrument, e.cfg.ATRPeriod+1), e.cfg.ATRPeriod)
	risk := math.Max(e.cfg.StopATRMultiple*atr, e.cfg.StopPctFloor*entry)

	rec := domain.TradeRecommendation{SizeFraction: sizeFraction(confidence)}
	if direction == domain.DirectionBullish {
		rec.Action = domain.ActionLong
		rec.Entry = entry
		rec.StopLoss = entry - risk
		rec.TakeProfit1 = entry + e.cfg.TargetRiskMultiple*risk
		rec.TakeProfit2 = entry + e.cfg.RunnerRiskMultiple*risk
	} else {
		rec.Action = domain.ActionShort
		rec.Entry = entry
		rec.StopLoss = entry + risk
		rec.TakeProfit1 = entry - e.cfg.TargetRiskMultiple*risk
		rec.TakeProfit2 = entry - e.cfg.RunnerRiskMultiple*risk
	}
	return rec
}

func sizeFraction(c domain.Confidence) float64 {
	switch c {
	case domain.ConfidenceHigh:
		return 1.0
	case domain.ConfidenceMedium:
		return 0.5
	}
	return 0.25
}
