package optimizer

import (
	"context"
	"testing"

	"dividend-core/internal/costs"
	"dividend-core/internal/history"
	"dividend-core/internal/market"
)

func fixture() (*Optimizer, *market.MockProvider, *history.Store) {
	hist := history.NewStore(nil)
	provider := market.NewMockProvider()
	opt := New(hist, provider, costs.DefaultModel(), DefaultConfig())
	return opt, provider, hist
}

func TestTimingScoreBounds(t *testing.T) {
	opt, provider, _ := fixture()
	provider.SetFundamental(market.Fundamental{Symbol: "600036", Price: 30, Volume: 5e8})
	provider.SetQuote("600036", 29.99, 30.01)

	adv, err := opt.Evaluate(context.Background(), "600036", 30, 1000)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if adv.TimingScore < 0 || adv.TimingScore > 1 {
		t.Errorf("TimingScore=%v, expected in [0,1]", adv.TimingScore)
	}
	// At target price, tight spread, small size, no history: near-perfect.
	if adv.TimingScore < 0.9 {
		t.Errorf("TimingScore=%v, expected > 0.9 for ideal conditions", adv.TimingScore)
	}
}

func TestRecommendedQtyCappedByVolume(t *testing.T) {
	opt, provider, _ := fixture()
	// Tiny daily volume relative to the requested order.
	provider.SetFundamental(market.Fundamental{Symbol: "600036", Price: 10, Volume: 100000})
	provider.SetQuote("600036", 9.99, 10.01)

	adv, err := opt.Evaluate(context.Background(), "600036", 10, 100000)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// 10% of 100000 turnover at price 10 = 1000 shares.
	if adv.RecommendedQty > 1000 {
		t.Errorf("RecommendedQty=%v, expected <= 1000 (10%% of volume)", adv.RecommendedQty)
	}
	if int(adv.RecommendedQty)%100 != 0 {
		t.Errorf("RecommendedQty=%v, expected whole lots of 100", adv.RecommendedQty)
	}
}

func TestWideSpreadShadesSize(t *testing.T) {
	opt, provider, _ := fixture()
	provider.SetFundamental(market.Fundamental{Symbol: "600036", Price: 10, Volume: 1e9})
	provider.SetQuote("600036", 9.90, 10.10) // 2% spread, far beyond threshold

	adv, err := opt.Evaluate(context.Background(), "600036", 10, 10000)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// 20% shade then lot rounding: 10000 -> 8000.
	if adv.RecommendedQty != 8000 {
		t.Errorf("RecommendedQty=%v, expected 8000 after spread shading", adv.RecommendedQty)
	}
	if adv.SpreadScore != 0 {
		t.Errorf("SpreadScore=%v, expected 0 for a 2%% spread", adv.SpreadScore)
	}
}

func TestRecommendedPriceInsideQuote(t *testing.T) {
	opt, provider, _ := fixture()
	provider.SetFundamental(market.Fundamental{Symbol: "600036", Price: 10, Volume: 1e6})
	provider.SetQuote("600036", 9.95, 10.05)

	adv, err := opt.Evaluate(context.Background(), "600036", 10, 50000)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if adv.RecommendedPrice < 9.95 || adv.RecommendedPrice > 10.05 {
		t.Errorf("RecommendedPrice=%v, expected inside [9.95,10.05]", adv.RecommendedPrice)
	}
}

func TestDataUnavailablePropagates(t *testing.T) {
	opt, _, _ := fixture()
	if _, err := opt.Evaluate(context.Background(), "999999", 10, 100); err == nil {
		t.Error("expected error for unknown symbol")
	}
}
