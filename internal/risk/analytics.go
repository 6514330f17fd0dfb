package risk

import "math"

// NavPoint is one observation of portfolio net asset value.
type NavPoint struct {
	NAV float64
}

const tradingDaysPerYear = 252

// ComputeMetrics derives portfolio analytics from a NAV series and an
// optional benchmark return series of the same length minus one.
// riskFree is the annualized risk-free rate.
func ComputeMetrics(nav []NavPoint, benchmarkReturns []float64, riskFree float64) RiskMetrics {
	if len(nav) < 2 {
		return RiskMetrics{}
	}

	returns := make([]float64, 0, len(nav)-1)
	for i := 1; i < len(nav); i++ {
		if nav[i-1].NAV <= 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, nav[i].NAV/nav[i-1].NAV-1)
	}

	mean := meanOf(returns)
	sd := stddevOf(returns, mean)

	annReturn := mean * tradingDaysPerYear
	annVol := sd * math.Sqrt(tradingDaysPerYear)

	m := RiskMetrics{
		MaxDrawdown: maxDrawdown(nav),
		Volatility:  annVol,
	}

	if annVol > 0 {
		m.Sharpe = (annReturn - riskFree) / annVol
	}

	downside := downsideDeviation(returns) * math.Sqrt(tradingDaysPerYear)
	if downside > 0 {
		m.Sortino = (annReturn - riskFree) / downside
	}

	if m.MaxDrawdown > 0 {
		m.Calmar = annReturn / m.MaxDrawdown
	}

	if len(benchmarkReturns) == len(returns) && len(returns) > 1 {
		bMean := meanOf(benchmarkReturns)
		bVar := 0.0
		cov := 0.0
		for i := range returns {
			cov += (returns[i] - mean) * (benchmarkReturns[i] - bMean)
			bVar += (benchmarkReturns[i] - bMean) * (benchmarkReturns[i] - bMean)
		}
		n := float64(len(returns) - 1)
		cov /= n
		bVar /= n

		if bVar > 0 {
			m.Beta = cov / bVar
			annBench := bMean * tradingDaysPerYear
			m.Alpha = annReturn - riskFree - m.Beta*(annBench-riskFree)
		}

		active := make([]float64, len(returns))
		for i := range returns {
			active[i] = returns[i] - benchmarkReturns[i]
		}
		aMean := meanOf(active)
		te := stddevOf(active, aMean) * math.Sqrt(tradingDaysPerYear)
		if te > 0 {
			m.InformationRatio = aMean * tradingDaysPerYear / te
		}
	}

	return m
}

// maxDrawdown is the largest peak-to-trough relative decline.
func maxDrawdown(nav []NavPoint) float64 {
	peak := nav[0].NAV
	worst := 0.0
	for _, p := range nav {
		if p.NAV > peak {
			peak = p.NAV
		}
		if peak > 0 {
			dd := (peak - p.NAV) / peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddevOf(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += (x - mean) * (x - mean)
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

func downsideDeviation(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	sum := 0.0
	for _, r := range returns {
		if r < 0 {
			sum += r * r
		}
	}
	return math.Sqrt(sum / float64(len(returns)-1))
}
