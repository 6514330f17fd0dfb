package account

import (
	"context"
	"testing"

	"dividend-core/internal/costs"
)

func TestApplyFillBuyThenSettle(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil, 100000)
	model := costs.DefaultModel()

	cost, err := model.Trade(costs.Buy, 10, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.ApplyFill(ctx, "600036", costs.Buy, 10, 1000, cost); err != nil {
		t.Fatalf("ApplyFill buy: %v", err)
	}

	pos, _ := m.Positions(ctx)
	p := pos["600036"]
	if p.Qty != 1000 {
		t.Errorf("qty=%v, expected 1000", p.Qty)
	}
	if p.Available != 0 {
		t.Errorf("available=%v before settle, expected 0", p.Available)
	}

	cash, _ := m.AccountCash(ctx)
	wantCash := 100000 - cost.Total()
	if cash.Available != wantCash {
		t.Errorf("cash=%v, expected %v", cash.Available, wantCash)
	}

	m.SettlePending(ctx)
	pos, _ = m.Positions(ctx)
	if pos["600036"].Available != 1000 {
		t.Errorf("available=%v after settle, expected 1000", pos["600036"].Available)
	}
}

func TestSellExceedingAvailableRejected(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil, 100000)
	model := costs.DefaultModel()

	buyCost, _ := model.Trade(costs.Buy, 10, 500)
	_ = m.ApplyFill(ctx, "601318", costs.Buy, 10, 500, buyCost)

	sellCost, _ := model.Trade(costs.Sell, 11, 500)
	if err := m.ApplyFill(ctx, "601318", costs.Sell, 11, 500, sellCost); err == nil {
		t.Error("expected error selling unsettled shares")
	}

	m.SettlePending(ctx)
	if err := m.ApplyFill(ctx, "601318", costs.Sell, 11, 500, sellCost); err != nil {
		t.Errorf("sell after settle failed: %v", err)
	}

	pos, _ := m.Positions(ctx)
	if _, held := pos["601318"]; held {
		t.Error("position should be removed after full exit")
	}
}

func TestBuyExceedingCashRejected(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil, 10000)
	model := costs.DefaultModel()

	// 100000 gross against 10000 cash.
	cost, _ := model.Trade(costs.Buy, 100, 1000)
	if err := m.ApplyFill(ctx, "600000", costs.Buy, 100, 1000, cost); err == nil {
		t.Fatal("expected error buying beyond available cash")
	}

	cash, _ := m.AccountCash(ctx)
	if cash.Available != 10000 {
		t.Errorf("cash=%v after rejected buy, expected 10000 untouched", cash.Available)
	}
	pos, _ := m.Positions(ctx)
	if _, held := pos["600000"]; held {
		t.Error("rejected buy must not create a position")
	}
}

func TestNAVMarksPositions(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil, 50000)
	model := costs.DefaultModel()

	cost, _ := model.Trade(costs.Buy, 20, 1000)
	_ = m.ApplyFill(ctx, "600519", costs.Buy, 20, 1000, cost)

	m.MarkPrices(map[string]float64{"600519": 25})
	nav, cash, posVal := m.NAV()
	if posVal != 25000 {
		t.Errorf("positions value=%v, expected 25000", posVal)
	}
	if nav != cash+posVal {
		t.Errorf("nav=%v, expected cash+positions=%v", nav, cash+posVal)
	}
}
