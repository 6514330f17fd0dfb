package risk

// Limits defines the portfolio risk thresholds.
type Limits struct {
	CooldownDays     int     `yaml:"cooldown_days"`
	StopLoss         float64 `yaml:"stop_loss"`          // relative loss triggering exit, e.g. 0.10
	TakeProfit       float64 `yaml:"take_profit"`        // relative gain triggering exit, e.g. 0.20
	MaxSymbolRatio   float64 `yaml:"max_symbol_ratio"`   // single-symbol share of portfolio
	MaxIndustryRatio float64 `yaml:"max_industry_ratio"` // single-industry share of portfolio
}

// DefaultLimits returns the standard thresholds.
func DefaultLimits() Limits {
	return Limits{
		CooldownDays:     5,
		StopLoss:         0.10,
		TakeProfit:       0.20,
		MaxSymbolRatio:   0.10,
		MaxIndustryRatio: 0.30,
	}
}

// RiskMetrics are derived portfolio analytics computed from a NAV series.
// Recomputed on demand, never mutated in place.
type RiskMetrics struct {
	MaxDrawdown      float64 `json:"max_drawdown"`
	Volatility       float64 `json:"volatility"` // annualized
	Sharpe           float64 `json:"sharpe"`
	Sortino          float64 `json:"sortino"`
	Calmar           float64 `json:"calmar"`
	Beta             float64 `json:"beta"`
	Alpha            float64 `json:"alpha"`
	InformationRatio float64 `json:"information_ratio"`
}
