package account

import "context"

// Position is a read snapshot of one holding.
// Invariants: Qty >= 0, Available <= Qty.
type Position struct {
	Symbol      string  `json:"symbol"`
	Qty         float64 `json:"qty"`
	AvgPrice    float64 `json:"avg_price"`
	MarketValue float64 `json:"market_value"`
	Available   float64 `json:"available"`
}

// Cash is the account cash split.
type Cash struct {
	Available float64 `json:"available"`
	Frozen    float64 `json:"frozen"`
}

// Provider exposes the account boundary the strategy core reads from.
type Provider interface {
	Positions(ctx context.Context) (map[string]Position, error)
	AccountCash(ctx context.Context) (Cash, error)
}
