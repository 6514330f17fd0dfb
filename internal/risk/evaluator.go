package risk

import (
	"time"

	"dividend-core/internal/history"
)

// Evaluator runs the stateless risk checks. Every check is a pure function
// of the trade ledger and the snapshot passed in; there is no hidden state.
type Evaluator struct {
	history *history.Store
	limits  Limits
}

// NewEvaluator wires the evaluator to the trade ledger.
func NewEvaluator(hist *history.Store, limits Limits) *Evaluator {
	return &Evaluator{history: hist, limits: limits}
}

// Limits returns the configured thresholds.
func (e *Evaluator) Limits() Limits {
	return e.limits
}

// CanTrade reports whether the symbol is outside its trade cooldown.
// Symbols with no history are always tradable.
func (e *Evaluator) CanTrade(symbol string, now time.Time) bool {
	last, ok := e.history.LastTrade(symbol)
	if !ok {
		return true
	}
	days := now.Sub(last.Time).Hours() / 24
	return days >= float64(e.limits.CooldownDays)
}

// CheckStopLoss reports whether the loss versus the last trade price has
// reached the stop-loss threshold. False when no trade history exists.
func (e *Evaluator) CheckStopLoss(symbol string, currentPrice float64) bool {
	last, ok := e.history.LastPrice(symbol)
	if !ok || last <= 0 {
		return false
	}
	change := (currentPrice - last) / last
	return change <= -e.limits.StopLoss
}

// CheckTakeProfit reports whether the gain versus the last trade price has
// reached the take-profit threshold. False when no trade history exists.
func (e *Evaluator) CheckTakeProfit(symbol string, currentPrice float64) bool {
	last, ok := e.history.LastPrice(symbol)
	if !ok || last <= 0 {
		return false
	}
	change := (currentPrice - last) / last
	return change >= e.limits.TakeProfit
}

// CheckPositionLimit reports whether adding incrementalAmount to the symbol
// keeps its share of the portfolio within the single-symbol cap.
func (e *Evaluator) CheckPositionLimit(snap PortfolioSnapshot, symbol string, incrementalAmount float64) bool {
	if snap.TotalValue <= 0 {
		return false
	}
	current := snap.Positions[symbol].MarketValue
	return (current+incrementalAmount)/snap.TotalValue <= e.limits.MaxSymbolRatio
}

// CheckIndustryLimit reports whether adding incrementalAmount to the industry
// keeps its aggregate share of the portfolio within the industry cap.
func (e *Evaluator) CheckIndustryLimit(snap PortfolioSnapshot, industryCode string, incrementalAmount float64) bool {
	if snap.TotalValue <= 0 {
		return false
	}
	current := snap.IndustryValue[industryCode]
	return (current+incrementalAmount)/snap.TotalValue <= e.limits.MaxIndustryRatio
}
