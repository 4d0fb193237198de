package signals

// Metric names carried on SignalResult and used as weight keys by the
// convergence scorer.
const (
	MetricOrderBook = "order_book"
	MetricTradeFlow = "trade_flow"
	MetricVWAP      = "vwap"
	MetricFunding   = "funding"
	MetricOIFlow    = "oi_flow"
)

// Thresholds centralizes every tunable cut-off used by the calculators.
// The zero value is unusable; start from Defaults() and override via config.
type Thresholds struct {
	// Order book.
	BookDepth            int     `yaml:"book_depth" default:"10"`
	ImbalanceStrong      float64 `yaml:"imbalance_strong" default:"0.4"`
	ImbalanceModerate    float64 `yaml:"imbalance_moderate" default:"0.2"`
	ConcentrationMax     float64 `yaml:"concentration_max" default:"0.6"`
	StuffingAvgLevelSize float64 `yaml:"stuffing_avg_level_size" default:"0.01"`

	// VWAP deviation.
	VWAPLookback int     `yaml:"vwap_lookback" default:"60"`
	ZExtreme     float64 `yaml:"z_extreme" default:"2.0"`
	ZStretched   float64 `yaml:"z_stretched" default:"1.5"`
	ZModerate    float64 `yaml:"z_moderate" default:"1.0"`

	// Funding dynamics (annualized percentage points).
	FundingExtreme       float64 `yaml:"funding_extreme" default:"10.0"`
	FundingElevated      float64 `yaml:"funding_elevated" default:"7.0"`
	AccelerationHigh     float64 `yaml:"acceleration_high" default:"0.05"`
	AccelerationModerate float64 `yaml:"acceleration_moderate" default:"0.03"`
	VelocityHigh         float64 `yaml:"velocity_high" default:"0.05"`
	VelocityModerate     float64 `yaml:"velocity_moderate" default:"0.03"`
	VolumeSurge          float64 `yaml:"volume_surge" default:"1.5"`
	VolumeElevated       float64 `yaml:"volume_elevated" default:"1.2"`
	VolumeDecline        float64 `yaml:"volume_decline" default:"0.8"`
	VolumeLookback       int     `yaml:"volume_lookback" default:"20"`

	// OI flow.
	OIChangeSignificant float64 `yaml:"oi_change_significant" default:"1.5"`

	// Trade flow.
	FlowStrong       float64 `yaml:"flow_strong" default:"0.5"`
	FlowModerate     float64 `yaml:"flow_moderate" default:"0.3"`
	MinPrintNotional float64 `yaml:"min_print_notional" default:"1000"`

	// Basis.
	BasisExtreme float64 `yaml:"basis_extreme" default:"0.3"`
}

// Defaults returns the production thresholds.
func Defaults() Thresholds {
	return Thresholds{
		BookDepth:            10,
		ImbalanceStrong:      0.4,
		ImbalanceModerate:    0.2,
		ConcentrationMax:     0.6,
		StuffingAvgLevelSize: 0.01,

		VWAPLookback: 60,
		ZExtreme:     2.0,
		ZStretched:   1.5,
		ZModerate:    1.0,

		FundingExtreme:       10.0,
		FundingElevated:      7.0,
		AccelerationHigh:     0.05,
		AccelerationModerate: 0.03,
		VelocityHigh:         0.05,
		VelocityModerate:     0.03,
		VolumeSurge:          1.5,
		VolumeElevated:       1.2,
		VolumeDecline:        0.8,
		VolumeLookback:       20,

		OIChangeSignificant: 1.5,

		FlowStrong:       0.5,
		FlowModerate:     0.3,
		MinPrintNotional: 1000,

		BasisExtreme: 0.3,
	}
}
