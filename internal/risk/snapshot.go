package risk

import (
	"log"

	"dividend-core/internal/account"
	"dividend-core/internal/industry"
)

// PortfolioSnapshot is a point-in-time view of positions, industry exposure
// and total value. All limit checks within one decision cycle must run
// against the same snapshot; recomputing the total between checks would let
// sequential buys double-count remaining headroom.
type PortfolioSnapshot struct {
	Positions     map[string]account.Position
	IndustryOf    map[string]string
	IndustryValue map[string]float64
	Committed     float64 // exposure added by fills earlier in this cycle
	TotalValue    float64 // positions + cash at capture time
}

// TakeSnapshot captures positions and cash, resolving industry membership for
// the full symbol set up front so the industry partition is consistent for
// the whole cycle. Symbols the classifier cannot place are logged and carry
// no industry exposure.
func TakeSnapshot(positions map[string]account.Position, cash account.Cash, classifier industry.Classifier) PortfolioSnapshot {
	snap := PortfolioSnapshot{
		Positions:     positions,
		IndustryOf:    make(map[string]string, len(positions)),
		IndustryValue: make(map[string]float64),
	}

	snap.TotalValue = cash.Available + cash.Frozen
	for sym, p := range positions {
		snap.TotalValue += p.MarketValue

		code, err := classifier.IndustryOf(sym)
		if err != nil {
			log.Printf("risk: industry lookup %s: %v", sym, err)
			continue
		}
		snap.IndustryOf[sym] = code
		snap.IndustryValue[code] += p.MarketValue
	}
	return snap
}

// Commit records exposure added by a fill during the cycle so later checks in
// the same cycle see it.
func (s *PortfolioSnapshot) Commit(symbol, industryCode string, amount float64) {
	p := s.Positions[symbol]
	p.Symbol = symbol
	p.MarketValue += amount
	s.Positions[symbol] = p
	if industryCode != "" {
		s.IndustryValue[industryCode] += amount
	}
	s.Committed += amount
}

// Release records exposure removed by a sell fill during the cycle, making
// the freed headroom visible to later checks in the same cycle. qty is the
// number of shares sold; exposure is removed at the snapshot's own valuation,
// not the sale proceeds, so a full exit clears the symbol entirely.
func (s *PortfolioSnapshot) Release(symbol, industryCode string, qty float64) {
	p, ok := s.Positions[symbol]
	if !ok || qty <= 0 {
		return
	}

	value := p.MarketValue
	if p.Qty > 0 && qty < p.Qty {
		value = p.MarketValue * qty / p.Qty
	}

	p.Qty -= qty
	p.MarketValue -= value
	if p.Qty <= 0 || p.MarketValue <= 0 {
		delete(s.Positions, symbol)
	} else {
		s.Positions[symbol] = p
	}
	if industryCode != "" {
		if v := s.IndustryValue[industryCode] - value; v > 0 {
			s.IndustryValue[industryCode] = v
		} else {
			delete(s.IndustryValue, industryCode)
		}
	}
	s.Committed -= value
}
