package monitor

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"dividend-core/internal/account"
	"dividend-core/internal/events"
	"dividend-core/internal/market"
	"dividend-core/internal/risk"
	"dividend-core/pkg/db"
)

// Config holds the anomaly thresholds and alert rate limits.
type Config struct {
	PriceDelta      float64       `yaml:"price_delta"`       // |Δprice/price| above this is an anomaly
	VolumeRatio     float64       `yaml:"volume_ratio"`      // volume vs last observed
	VolatilityDelta float64       `yaml:"volatility_delta"`  // absolute volatility change
	MemoryLimit     uint64        `yaml:"memory_limit"`      // heap bytes before a system alert
	MinAPISuccess   float64       `yaml:"min_api_success"`   // success rate floor
	AlertInterval   time.Duration `yaml:"alert_interval"`    // per-subject minimum spacing
	MaxAlertsPerHr  int           `yaml:"max_alerts_per_hr"` // per-subject hourly budget
	HealthEvery     int           `yaml:"health_every"`      // system-health check cadence in ticks
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		PriceDelta:      0.05,
		VolumeRatio:     2.0,
		VolatilityDelta: 0.02,
		MemoryLimit:     1 << 30,
		MinAPISuccess:   0.90,
		AlertInterval:   60 * time.Second,
		MaxAlertsPerHr:  10,
		HealthEvery:     10,
	}
}

// observed is the last reading for one symbol.
type observed struct {
	price      float64
	volume     float64
	volatility float64
	hasVol     bool
}

// Monitor watches market data and positions on its own cadence, separate
// from the decision cycle. It only observes and alerts; it never places
// orders.
type Monitor struct {
	cfg       Config
	market    market.Provider
	book      account.Provider
	evaluator *risk.Evaluator
	metrics   *Aggregator
	throttle  *Throttle
	bus       *events.Bus
	db        *db.Database
	instance  string

	mu          sync.Mutex
	last        map[string]observed
	subscribers []Subscriber
	ticks       int

	now func() time.Time
}

// New wires the monitor. bus and database may be nil.
func New(cfg Config, mkt market.Provider, book account.Provider, evaluator *risk.Evaluator,
	metrics *Aggregator, bus *events.Bus, database *db.Database) *Monitor {
	return &Monitor{
		cfg:       cfg,
		market:    mkt,
		book:      book,
		evaluator: evaluator,
		metrics:   metrics,
		throttle:  NewThrottle(cfg.AlertInterval, cfg.MaxAlertsPerHr),
		bus:       bus,
		db:        database,
		instance:  instanceID(),
		last:      make(map[string]observed),
		now:       time.Now,
	}
}

// Subscribe registers an alert receiver.
func (m *Monitor) Subscribe(s Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, s)
}

// Run ticks until the context is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, symbols []string) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	log.Printf("monitor: started, interval %s, %d symbols, instance %s", interval, len(symbols), m.instance)
	for {
		select {
		case <-ctx.Done():
			log.Println("monitor: stopped")
			return
		case <-t.C:
			m.Tick(ctx, symbols)
		}
	}
}

// Tick runs one monitoring pass.
func (m *Monitor) Tick(ctx context.Context, symbols []string) {
	if m.metrics != nil {
		m.metrics.IncrementTicks()
	}
	for _, sym := range symbols {
		m.checkSymbol(ctx, sym)
	}
	m.checkRisk(ctx)

	m.mu.Lock()
	m.ticks++
	due := m.cfg.HealthEvery > 0 && m.ticks%m.cfg.HealthEvery == 0
	m.mu.Unlock()
	if due {
		m.checkSystemHealth()
	}
}

// checkSymbol compares current market readings against the last observation.
func (m *Monitor) checkSymbol(ctx context.Context, sym string) {
	price, err := m.market.CurrentPrice(ctx, sym)
	if m.metrics != nil {
		m.metrics.RecordAPICall(err == nil)
	}
	if err != nil {
		log.Printf("monitor: %s price unavailable: %v", sym, err)
		return
	}
	volume, volErr := m.market.CurrentVolume(ctx, sym)
	vol, vErr := m.market.Volatility(ctx, sym)

	m.mu.Lock()
	prev, seen := m.last[sym]
	cur := observed{price: price}
	if volErr == nil {
		cur.volume = volume
	} else {
		cur.volume = prev.volume
	}
	if vErr == nil {
		cur.volatility = vol
		cur.hasVol = true
	} else {
		cur.volatility = prev.volatility
		cur.hasVol = prev.hasVol
	}
	m.last[sym] = cur
	m.mu.Unlock()

	if !seen {
		return
	}

	if prev.price > 0 {
		delta := math.Abs(price-prev.price) / prev.price
		if delta > m.cfg.PriceDelta {
			m.emit(newAlert(PriceAnomaly, sym,
				fmt.Sprintf("price moved %.1f%% (%.2f -> %.2f)", delta*100, prev.price, price),
				delta, m.instance, m.now()))
		}
	}
	if volErr == nil && prev.volume > 0 {
		ratio := volume / prev.volume
		if ratio > m.cfg.VolumeRatio {
			m.emit(newAlert(VolumeAnomaly, sym,
				fmt.Sprintf("volume %.1fx last observed", ratio),
				ratio, m.instance, m.now()))
		}
	}
	if vErr == nil && prev.hasVol {
		dv := math.Abs(vol - prev.volatility)
		if dv > m.cfg.VolatilityDelta {
			m.emit(newAlert(VolatilityAnomaly, sym,
				fmt.Sprintf("volatility shifted %.2fpp", dv*100),
				dv, m.instance, m.now()))
		}
	}
}

// checkRisk surfaces stop-loss/take-profit/exposure breaches on current
// holdings. Observation only; exits stay with the decision engine.
func (m *Monitor) checkRisk(ctx context.Context) {
	positions, err := m.book.Positions(ctx)
	if err != nil {
		log.Printf("monitor: positions unavailable: %v", err)
		if m.metrics != nil {
			m.metrics.IncrementErrors()
		}
		return
	}
	cash, err := m.book.AccountCash(ctx)
	if err != nil {
		log.Printf("monitor: cash unavailable: %v", err)
		return
	}

	total := cash.Available + cash.Frozen
	for _, p := range positions {
		total += p.MarketValue
	}
	limits := m.evaluator.Limits()

	for sym, p := range positions {
		price, err := m.market.CurrentPrice(ctx, sym)
		if err != nil {
			continue
		}
		if m.evaluator.CheckStopLoss(sym, price) {
			m.emit(newAlert(RiskAlert, sym,
				fmt.Sprintf("stop loss breached at %.2f", price), price, m.instance, m.now()))
		}
		if m.evaluator.CheckTakeProfit(sym, price) {
			m.emit(newAlert(RiskAlert, sym,
				fmt.Sprintf("take profit reached at %.2f", price), price, m.instance, m.now()))
		}
		if total > 0 {
			ratio := p.MarketValue / total
			if ratio > limits.MaxSymbolRatio {
				m.emit(newAlert(RiskAlert, sym,
					fmt.Sprintf("position is %.1f%% of portfolio, cap %.0f%%", ratio*100, limits.MaxSymbolRatio*100),
					ratio, m.instance, m.now()))
			}
		}
	}
}

// checkSystemHealth reads the aggregator and the runtime.
func (m *Monitor) checkSystemHealth() {
	if m.metrics == nil {
		return
	}
	snap := m.metrics.GetSnapshot()

	if snap.APISuccessRate < m.cfg.MinAPISuccess {
		m.emit(newAlert(SystemAlert, "market-data",
			fmt.Sprintf("api success rate %.1f%% below %.0f%%", snap.APISuccessRate*100, m.cfg.MinAPISuccess*100),
			snap.APISuccessRate, m.instance, m.now()))
	}
	if m.cfg.MemoryLimit > 0 && snap.HeapAlloc > m.cfg.MemoryLimit {
		m.emit(newAlert(SystemAlert, "memory",
			fmt.Sprintf("heap %d bytes over limit %d", snap.HeapAlloc, m.cfg.MemoryLimit),
			float64(snap.HeapAlloc), m.instance, m.now()))
	}
}

// emit pushes one alert through the throttle and fans it out. A panicking
// or failing subscriber is logged and skipped; the rest still receive the
// alert.
func (m *Monitor) emit(a Alert) {
	if !m.throttle.Allow(a.Subject, a.Time) {
		if m.metrics != nil {
			m.metrics.countAlert(true)
		}
		log.Printf("monitor: alert throttled for %s (%s), budget %d left this hour",
			a.Subject, a.Type, m.throttle.Pending(a.Subject, a.Time))
		if m.bus != nil {
			m.bus.Publish(events.EventAlertSuppressed, a)
		}
		return
	}

	if m.metrics != nil {
		m.metrics.countAlert(false)
	}
	mtxAlerts.WithLabelValues(string(a.Type)).Inc()

	m.mu.Lock()
	subs := make([]Subscriber, len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	for i, s := range subs {
		m.deliver(i, s, a)
	}

	if m.bus != nil {
		m.bus.Publish(events.EventAlertEmitted, a)
	}
	if m.db != nil {
		if err := m.db.InsertAlert(context.Background(), db.AlertRow{
			ID: a.ID, Kind: string(a.Type), Severity: a.Severity, Subject: a.Subject,
			Message: a.Message, Payload: a.Instance, CreatedAt: a.Time,
		}); err != nil {
			log.Printf("monitor: persist alert %s: %v", a.ID, err)
		}
	}
}

func (m *Monitor) deliver(i int, s Subscriber, a Alert) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("monitor: subscriber %d panicked on alert %s: %v", i, a.ID, r)
		}
	}()
	if err := s.Notify(a); err != nil {
		log.Printf("monitor: subscriber %d failed on alert %s: %v", i, a.ID, err)
	}
}
