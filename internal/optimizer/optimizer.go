package optimizer

import (
	"context"
	"fmt"
	"math"
	"time"

	"dividend-core/internal/costs"
	"dividend-core/internal/history"
	"dividend-core/internal/market"
)

// Config tunes the timing/cost scoring.
type Config struct {
	MaxVolumeShare    float64 `yaml:"max_volume_share"`   // cap on qty as share of recent volume
	SlippageThreshold float64 `yaml:"slippage_threshold"` // relative spread beyond which size is shaded
	SpreadShade       float64 `yaml:"spread_shade"`       // size reduction applied beyond the threshold
	ImpactShare       float64 `yaml:"impact_share"`       // volume share beyond which price is widened
	LotSize           float64 `yaml:"lot_size"`
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		MaxVolumeShare:    0.10,
		SlippageThreshold: 0.002,
		SpreadShade:       0.20,
		ImpactShare:       0.05,
		LotSize:           100,
	}
}

// Advice is the optimizer's recommendation. Advisory only: it feeds the
// decision engine but never overrides its risk gating.
type Advice struct {
	Symbol           string  `json:"symbol"`
	TimingScore      float64 `json:"timing_score"` // 0..1
	PriceScore       float64 `json:"price_score"`
	LiquidityScore   float64 `json:"liquidity_score"`
	SpreadScore      float64 `json:"spread_score"`
	RecencyScore     float64 `json:"recency_score"`
	EstimatedSaving  float64 `json:"estimated_saving"`
	RecommendedQty   float64 `json:"recommended_qty"`
	RecommendedPrice float64 `json:"recommended_price"`
}

// Optimizer scores candidate executions against recent history and live quotes.
type Optimizer struct {
	history *history.Store
	market  market.Provider
	costs   costs.Model
	cfg     Config
}

// New builds an optimizer.
func New(hist *history.Store, provider market.Provider, model costs.Model, cfg Config) *Optimizer {
	if cfg.LotSize <= 0 {
		cfg = DefaultConfig()
	}
	return &Optimizer{history: hist, market: provider, costs: model, cfg: cfg}
}

// Evaluate produces an execution recommendation for buying qty shares of
// symbol near targetPrice.
func (o *Optimizer) Evaluate(ctx context.Context, symbol string, targetPrice, qty float64) (Advice, error) {
	if targetPrice <= 0 || qty <= 0 {
		return Advice{}, fmt.Errorf("optimizer %s: invalid target price %.2f or qty %.2f", symbol, targetPrice, qty)
	}

	price, err := o.market.CurrentPrice(ctx, symbol)
	if err != nil {
		return Advice{}, fmt.Errorf("optimizer %s: %w", symbol, err)
	}
	volume, err := o.market.CurrentVolume(ctx, symbol)
	if err != nil {
		return Advice{}, fmt.Errorf("optimizer %s: %w", symbol, err)
	}
	quote, err := o.market.BidAskSpread(ctx, symbol)
	if err != nil {
		return Advice{}, fmt.Errorf("optimizer %s: %w", symbol, err)
	}

	adv := Advice{Symbol: symbol}

	// Price deviation from target: at the target scores 1, 10% away scores 0.
	deviation := math.Abs(price-targetPrice) / targetPrice
	adv.PriceScore = clamp01(1 - deviation*10)

	// Quantity versus available liquidity.
	volumeShare := 1.0
	if volume > 0 {
		volumeShare = qty * price / volume
	}
	adv.LiquidityScore = clamp01(1 - volumeShare/o.cfg.MaxVolumeShare)

	// Spread tightness.
	relSpread := 0.0
	if quote.Mid() > 0 {
		relSpread = quote.Spread() / quote.Mid()
	}
	adv.SpreadScore = clamp01(1 - relSpread/o.cfg.SlippageThreshold)

	// Recency: a fresh trade on the symbol means acting again now is poorly
	// timed; a symbol untouched for a week scores full marks.
	adv.RecencyScore = 1
	if last, ok := o.history.LastTrade(symbol); ok {
		age := time.Since(last.Time).Hours() / 24
		adv.RecencyScore = clamp01(age / 7)
	}

	adv.TimingScore = (adv.PriceScore + adv.LiquidityScore + adv.SpreadScore + adv.RecencyScore) / 4

	adv.RecommendedQty = o.recommendQty(qty, price, volume, relSpread)
	adv.RecommendedPrice = o.recommendPrice(price, quote, adv.RecommendedQty, volume)

	// Saving from executing at the recommendation instead of crossing the
	// spread at the ask.
	if quote.Ask > 0 && adv.RecommendedQty > 0 {
		naive, err1 := o.costs.Trade(costs.Buy, quote.Ask, adv.RecommendedQty)
		tuned, err2 := o.costs.Trade(costs.Buy, adv.RecommendedPrice, adv.RecommendedQty)
		if err1 == nil && err2 == nil {
			adv.EstimatedSaving = naive.Total() - tuned.Total()
		}
	}

	return adv, nil
}

// recommendQty caps size at the configured volume share, shades it down when
// the spread is wide, and rounds to the lot.
func (o *Optimizer) recommendQty(qty, price, volume, relSpread float64) float64 {
	rec := qty
	if volume > 0 && price > 0 {
		maxQty := volume * o.cfg.MaxVolumeShare / price
		if rec > maxQty {
			rec = maxQty
		}
	}
	if relSpread > o.cfg.SlippageThreshold {
		rec *= 1 - o.cfg.SpreadShade
	}
	return math.Floor(rec/o.cfg.LotSize) * o.cfg.LotSize
}

// recommendPrice stays inside the quote, widening toward the ask when the
// order is large enough to move recent volume.
func (o *Optimizer) recommendPrice(price float64, quote market.Quote, qty, volume float64) float64 {
	if quote.Bid <= 0 || quote.Ask <= 0 {
		return price
	}
	rec := quote.Mid()
	if volume > 0 && qty*price/volume > o.cfg.ImpactShare {
		// material impact: pay up toward the ask to get filled
		rec = quote.Mid() + quote.Spread()/4
	}
	if rec < quote.Bid {
		rec = quote.Bid
	}
	if rec > quote.Ask {
		rec = quote.Ask
	}
	return rec
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
