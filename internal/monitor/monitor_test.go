package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dividend-core/internal/account"
	"dividend-core/internal/costs"
	"dividend-core/internal/history"
	"dividend-core/internal/market"
	"dividend-core/internal/risk"
)

type captureSubscriber struct {
	mu     sync.Mutex
	alerts []Alert
}

func (c *captureSubscriber) Notify(a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *captureSubscriber) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

type monitorFixture struct {
	monitor *Monitor
	market  *market.MockProvider
	book    *account.Manager
	history *history.Store
	sink    *captureSubscriber
	now     time.Time
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()
	mkt := market.NewMockProvider()
	book := account.NewManager(nil, 1_000_000)
	hist := history.NewStore(nil)
	evaluator := risk.NewEvaluator(hist, risk.DefaultLimits())

	f := &monitorFixture{
		market:  mkt,
		book:    book,
		history: hist,
		sink:    &captureSubscriber{},
		now:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	m := New(DefaultConfig(), mkt, book, evaluator, NewAggregator(), nil, nil)
	m.now = func() time.Time { return f.now }
	m.Subscribe(f.sink)
	f.monitor = m
	return f
}

func (f *monitorFixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func TestPriceAnomalyDetected(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	syms := []string{"600000"}

	f.market.SetFundamental(market.Fundamental{Symbol: "600000", Price: 100, Volume: 1e8})
	f.monitor.Tick(ctx, syms) // baseline, no alert
	if f.sink.count() != 0 {
		t.Fatalf("baseline tick must not alert, got %d", f.sink.count())
	}

	// 6% move breaches the 5% threshold.
	f.market.SetPrice("600000", 106)
	f.advance(time.Minute)
	f.monitor.Tick(ctx, syms)

	if f.sink.count() != 1 {
		t.Fatalf("want 1 alert, got %d", f.sink.count())
	}
	if got := f.sink.alerts[0].Type; got != PriceAnomaly {
		t.Fatalf("want %s, got %s", PriceAnomaly, got)
	}
}

func TestSmallMoveIsQuiet(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	syms := []string{"600000"}

	f.market.SetFundamental(market.Fundamental{Symbol: "600000", Price: 100, Volume: 1e8})
	f.monitor.Tick(ctx, syms)
	f.market.SetPrice("600000", 103) // 3% < 5%
	f.advance(time.Minute)
	f.monitor.Tick(ctx, syms)

	if f.sink.count() != 0 {
		t.Fatalf("3%% move must not alert, got %d", f.sink.count())
	}
}

func TestVolumeAnomalyDetected(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	syms := []string{"600000"}

	f.market.SetFundamental(market.Fundamental{Symbol: "600000", Price: 100, Volume: 1e8})
	f.monitor.Tick(ctx, syms)

	f.market.SetFundamental(market.Fundamental{Symbol: "600000", Price: 100, Volume: 2.5e8})
	f.advance(time.Minute)
	f.monitor.Tick(ctx, syms)

	if f.sink.count() != 1 || f.sink.alerts[0].Type != VolumeAnomaly {
		t.Fatalf("want one volume anomaly, got %+v", f.sink.alerts)
	}
}

func TestRepeatAnomalySuppressedWithinInterval(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	syms := []string{"600000"}

	f.market.SetFundamental(market.Fundamental{Symbol: "600000", Price: 100, Volume: 1e8})
	f.monitor.Tick(ctx, syms)

	f.market.SetPrice("600000", 106)
	f.advance(time.Second)
	f.monitor.Tick(ctx, syms) // emitted

	f.market.SetPrice("600000", 113)
	f.advance(30 * time.Second)
	f.monitor.Tick(ctx, syms) // 30s later: throttled

	if f.sink.count() != 1 {
		t.Fatalf("second anomaly within 60s must be throttled, got %d alerts", f.sink.count())
	}

	f.market.SetPrice("600000", 120)
	f.advance(35 * time.Second) // 65s after the first alert
	f.monitor.Tick(ctx, syms)

	if f.sink.count() != 2 {
		t.Fatalf("anomaly after the interval must be emitted, got %d alerts", f.sink.count())
	}
}

func TestSubscriberFailureDoesNotBlockOthers(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	syms := []string{"600000"}

	panicking := SubscriberFunc(func(Alert) error { panic("subscriber bug") })
	failing := SubscriberFunc(func(Alert) error { return errors.New("sink down") })
	healthy := &captureSubscriber{}

	// Deliberately ahead of the healthy sink in registration order.
	f.monitor.subscribers = nil
	f.monitor.Subscribe(panicking)
	f.monitor.Subscribe(failing)
	f.monitor.Subscribe(healthy)

	f.market.SetFundamental(market.Fundamental{Symbol: "600000", Price: 100, Volume: 1e8})
	f.monitor.Tick(ctx, syms)
	f.market.SetPrice("600000", 110)
	f.advance(time.Minute)
	f.monitor.Tick(ctx, syms)

	if healthy.count() != 1 {
		t.Fatalf("healthy subscriber must still be notified, got %d", healthy.count())
	}
}

func TestRiskBreachSurfacedAsAlert(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()

	// Held position bought at 100, now at 88: stop-loss territory.
	f.history.Seed([]history.TradeRecord{{
		Symbol: "600000", Price: 100, Qty: 1000,
		Time: f.now.Add(-10 * 24 * time.Hour),
	}})
	cost, _ := costs.DefaultModel().Trade(costs.Buy, 100, 1000)
	if err := f.book.ApplyFill(ctx, "600000", costs.Buy, 100, 1000, cost); err != nil {
		t.Fatalf("seed fill: %v", err)
	}
	f.market.SetFundamental(market.Fundamental{Symbol: "600000", Price: 88, Volume: 1e8})

	f.monitor.Tick(ctx, []string{})

	found := false
	for _, a := range f.sink.alerts {
		if a.Type == RiskAlert && a.Subject == "600000" {
			found = true
		}
	}
	if !found {
		t.Fatalf("want a risk alert for 600000, got %+v", f.sink.alerts)
	}
}

func TestAPISuccessRateWindow(t *testing.T) {
	agg := NewAggregator()
	if got := agg.APISuccessRate(); got != 1.0 {
		t.Fatalf("empty window must read 1.0, got %f", got)
	}
	for i := 0; i < 8; i++ {
		agg.RecordAPICall(true)
	}
	agg.RecordAPICall(false)
	agg.RecordAPICall(false)
	if got := agg.APISuccessRate(); got != 0.8 {
		t.Fatalf("want 0.8, got %f", got)
	}
}
