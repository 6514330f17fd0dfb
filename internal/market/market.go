package market

import (
	"context"
	"errors"
)

// ErrDataUnavailable signals that the provider could not answer this cycle.
// Callers treat it as "skip symbol this cycle", never as fatal.
var ErrDataUnavailable = errors.New("market data unavailable")

// Fundamental is a point-in-time fundamental snapshot for one symbol.
// Refreshed once per evaluation cycle, never mutated in place.
type Fundamental struct {
	Symbol        string  `json:"symbol"`
	Industry      string  `json:"industry"`
	PB            float64 `json:"pb"`
	PE            float64 `json:"pe"`
	DividendYield float64 `json:"dividend_yield"`
	Price         float64 `json:"price"`
	Volume        float64 `json:"volume"`
}

// Quote is a best bid/ask pair.
type Quote struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// Spread returns the absolute bid/ask spread.
func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// Mid returns the quote midpoint.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Provider supplies live market data. All methods return ErrDataUnavailable
// (possibly wrapped) when the underlying feed cannot answer.
type Provider interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	CurrentVolume(ctx context.Context, symbol string) (float64, error)
	BidAskSpread(ctx context.Context, symbol string) (Quote, error)
	Volatility(ctx context.Context, symbol string) (float64, error)
	FundamentalSnapshots(ctx context.Context, symbols []string) (map[string]Fundamental, error)
}
