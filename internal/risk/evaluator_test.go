package risk

import (
	"testing"
	"time"

	"dividend-core/internal/account"
	"dividend-core/internal/costs"
	"dividend-core/internal/history"
	"dividend-core/internal/industry"
)

func newEvaluator(t *testing.T) (*Evaluator, *history.Store) {
	t.Helper()
	hist := history.NewStore(nil)
	return NewEvaluator(hist, DefaultLimits()), hist
}

func TestStopLossAndTakeProfitWithoutHistory(t *testing.T) {
	ev, _ := newEvaluator(t)

	if ev.CheckStopLoss("600036", 50) {
		t.Error("CheckStopLoss without history should be false")
	}
	if ev.CheckTakeProfit("600036", 50) {
		t.Error("CheckTakeProfit without history should be false")
	}
}

func TestStopLossThreshold(t *testing.T) {
	ev, hist := newEvaluator(t)
	hist.Record("600036", 100, 100, costs.Buy)

	// 11% drop breaches the 10% threshold.
	if !ev.CheckStopLoss("600036", 89) {
		t.Error("11%% drop should trigger stop loss")
	}
	// 9% drop does not.
	if ev.CheckStopLoss("600036", 91) {
		t.Error("9%% drop should not trigger stop loss")
	}
}

func TestTakeProfitThreshold(t *testing.T) {
	ev, hist := newEvaluator(t)
	hist.Record("601318", 100, 100, costs.Buy)

	if !ev.CheckTakeProfit("601318", 121) {
		t.Error("21%% gain should trigger take profit")
	}
	if ev.CheckTakeProfit("601318", 115) {
		t.Error("15%% gain should not trigger take profit")
	}
}

func TestCooldown(t *testing.T) {
	ev, hist := newEvaluator(t)
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	hist.RecordAt("600519", 1800, 100, costs.Buy, now.Add(-3*24*time.Hour))
	if ev.CanTrade("600519", now) {
		t.Error("3 days since last trade should be inside the 5 day cooldown")
	}

	hist.RecordAt("000858", 150, 100, costs.Buy, now.Add(-6*24*time.Hour))
	if !ev.CanTrade("000858", now) {
		t.Error("6 days since last trade should be outside the cooldown")
	}

	if !ev.CanTrade("300750", now) {
		t.Error("symbol with no history should be tradable")
	}
}

func snapshotFixture() PortfolioSnapshot {
	classifier := industry.NewStaticClassifier(industry.Table{
		Symbols: map[string]string{
			"600036": "bank",
			"601288": "bank",
			"600519": "liquor",
		},
	})
	positions := map[string]account.Position{
		"600036": {Symbol: "600036", Qty: 1000, MarketValue: 40000, Available: 1000},
		"601288": {Symbol: "601288", Qty: 5000, MarketValue: 150000, Available: 5000},
		"600519": {Symbol: "600519", Qty: 100, MarketValue: 180000, Available: 100},
	}
	cash := account.Cash{Available: 630000}
	// total value = 1,000,000
	return TakeSnapshot(positions, cash, classifier)
}

func TestPositionLimitAgainstSharedSnapshot(t *testing.T) {
	ev, _ := newEvaluator(t)
	snap := snapshotFixture()

	if snap.TotalValue != 1000000 {
		t.Fatalf("snapshot total=%v, expected 1000000", snap.TotalValue)
	}

	// 600036 holds 4%; adding 5% keeps it within the 10% cap.
	if !ev.CheckPositionLimit(snap, "600036", 50000) {
		t.Error("9%% symbol exposure should pass")
	}
	// Adding 7% would push to 11%.
	if ev.CheckPositionLimit(snap, "600036", 70000) {
		t.Error("11%% symbol exposure should fail")
	}
}

func TestIndustryLimitAggregation(t *testing.T) {
	ev, _ := newEvaluator(t)
	snap := snapshotFixture()

	// banks hold 19%; +10% stays within 30%.
	if !ev.CheckIndustryLimit(snap, "bank", 100000) {
		t.Error("29%% industry exposure should pass")
	}
	// +12% pushes to 31%.
	if ev.CheckIndustryLimit(snap, "bank", 120000) {
		t.Error("31%% industry exposure should fail")
	}
}

func TestCommittedExposureVisibleToLaterChecks(t *testing.T) {
	ev, _ := newEvaluator(t)
	snap := snapshotFixture()

	// A fill earlier in the cycle consumes industry headroom.
	snap.Commit("601288", "bank", 100000)

	if ev.CheckIndustryLimit(snap, "bank", 50000) {
		t.Error("committed fill should count against later industry checks")
	}
}
