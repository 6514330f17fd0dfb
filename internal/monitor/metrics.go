package monitor

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dividend-core/internal/engine"
	"dividend-core/internal/events"
	"dividend-core/internal/gateway"
)

var (
	mtxDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strategy_decisions_total",
			Help: "Decisions taken, by action",
		},
		[]string{"action"},
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strategy_orders_filled_total",
			Help: "Confirmed fills, by side",
		},
		[]string{"side"},
	)

	mtxAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strategy_alerts_total",
			Help: "Alerts emitted, by type",
		},
		[]string{"type"},
	)

	mtxAlertsSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strategy_alerts_suppressed_total",
			Help: "Alerts suppressed by the per-subject throttle",
		},
	)

	mtxCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strategy_cycles_total",
			Help: "Completed decision cycles",
		},
	)

	mtxNAV = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strategy_nav",
			Help: "Net asset value at last mark",
		},
	)

	mtxAPISuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strategy_api_success_rate",
			Help: "Rolling market-data call success rate",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxDecisions, mtxOrders, mtxCycles)
	prometheus.MustRegister(mtxAlerts, mtxAlertsSuppressed)
	prometheus.MustRegister(mtxNAV, mtxAPISuccess)
}

// SetNAVMetric publishes the current net asset value.
func SetNAVMetric(nav float64) { mtxNAV.Set(nav) }

// Aggregator tracks runtime performance: operation latencies, throughput
// counters and the market-data success rate the health checks read.
type Aggregator struct {
	CycleLatency *LatencyHistogram
	OrderLatency *LatencyHistogram
	DBLatency    *LatencyHistogram
	APILatency   *LatencyHistogram

	ticksProcessed   uint64
	decisionsMade    uint64
	alertsEmitted    uint64
	alertsSuppressed uint64
	errorsCount      uint64
	apiRequests      uint64
	apiErrors        uint64

	mu       sync.Mutex
	apiCalls []bool // rolling window, newest last
	apiMax   int
}

// NewAggregator creates an aggregator with a 200-call API success window.
func NewAggregator() *Aggregator {
	return &Aggregator{
		CycleLatency: NewLatencyHistogram(1000),
		OrderLatency: NewLatencyHistogram(1000),
		DBLatency:    NewLatencyHistogram(1000),
		APILatency:   NewLatencyHistogram(1000),
		apiMax:       200,
	}
}

// LatencyHistogram tracks latency samples over a sliding window. Stats are
// recomputed lazily, only when samples changed since the last call.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// IncrementTicks counts a processed monitor tick.
func (m *Aggregator) IncrementTicks() {
	atomic.AddUint64(&m.ticksProcessed, 1)
}

// IncrementErrors counts an operational error.
func (m *Aggregator) IncrementErrors() {
	atomic.AddUint64(&m.errorsCount, 1)
}

// IncrementAPI counts a served HTTP request.
func (m *Aggregator) IncrementAPI() {
	atomic.AddUint64(&m.apiRequests, 1)
}

// IncrementAPIErrors counts an HTTP request that finished with status >= 400.
func (m *Aggregator) IncrementAPIErrors() {
	atomic.AddUint64(&m.apiErrors, 1)
}

func (m *Aggregator) countAlert(suppressed bool) {
	if suppressed {
		atomic.AddUint64(&m.alertsSuppressed, 1)
		mtxAlertsSuppressed.Inc()
		return
	}
	atomic.AddUint64(&m.alertsEmitted, 1)
}

// RecordAPICall feeds the rolling market-data success window.
func (m *Aggregator) RecordAPICall(ok bool) {
	m.mu.Lock()
	if len(m.apiCalls) >= m.apiMax {
		m.apiCalls = m.apiCalls[1:]
	}
	m.apiCalls = append(m.apiCalls, ok)
	m.mu.Unlock()
	mtxAPISuccess.Set(m.APISuccessRate())
}

// APISuccessRate returns the success fraction over the window, 1.0 when no
// calls have been observed yet.
func (m *Aggregator) APISuccessRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.apiCalls) == 0 {
		return 1.0
	}
	ok := 0
	for _, v := range m.apiCalls {
		if v {
			ok++
		}
	}
	return float64(ok) / float64(len(m.apiCalls))
}

// Snapshot is a point-in-time view served by the API.
type Snapshot struct {
	CycleLatency     LatencyStats `json:"cycle_latency"`
	OrderLatency     LatencyStats `json:"order_latency"`
	DBLatency        LatencyStats `json:"db_latency"`
	APILatency       LatencyStats `json:"api_latency"`
	APIRequests      uint64       `json:"api_requests"`
	APIErrors        uint64       `json:"api_errors"`
	TicksProcessed   uint64       `json:"ticks_processed"`
	DecisionsMade    uint64       `json:"decisions_made"`
	AlertsEmitted    uint64       `json:"alerts_emitted"`
	AlertsSuppressed uint64       `json:"alerts_suppressed"`
	ErrorsCount      uint64       `json:"errors_count"`
	APISuccessRate   float64      `json:"api_success_rate"`
	GoroutineCount   int          `json:"goroutine_count"`
	HeapAlloc        uint64       `json:"heap_alloc_bytes"`
	HeapSys          uint64       `json:"heap_sys_bytes"`
	Timestamp        time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *Aggregator) GetSnapshot() Snapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return Snapshot{
		CycleLatency:     m.CycleLatency.Stats(),
		OrderLatency:     m.OrderLatency.Stats(),
		DBLatency:        m.DBLatency.Stats(),
		APILatency:       m.APILatency.Stats(),
		APIRequests:      atomic.LoadUint64(&m.apiRequests),
		APIErrors:        atomic.LoadUint64(&m.apiErrors),
		TicksProcessed:   atomic.LoadUint64(&m.ticksProcessed),
		DecisionsMade:    atomic.LoadUint64(&m.decisionsMade),
		AlertsEmitted:    atomic.LoadUint64(&m.alertsEmitted),
		AlertsSuppressed: atomic.LoadUint64(&m.alertsSuppressed),
		ErrorsCount:      atomic.LoadUint64(&m.errorsCount),
		APISuccessRate:   m.APISuccessRate(),
		GoroutineCount:   runtime.NumGoroutine(),
		HeapAlloc:        memStats.HeapAlloc,
		HeapSys:          memStats.HeapSys,
		Timestamp:        time.Now(),
	}
}

// Collect consumes engine events from the bus and keeps counters and
// Prometheus series current. Runs until the context is cancelled.
func (m *Aggregator) Collect(ctx context.Context, bus *events.Bus) {
	decisions, unsubDec := bus.Subscribe(events.EventDecision, 100)
	fills, unsubFill := bus.Subscribe(events.EventOrderFilled, 100)
	cycles, unsubCyc := bus.Subscribe(events.EventCycleCompleted, 10)

	go func() {
		defer unsubDec()
		defer unsubFill()
		defer unsubCyc()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-decisions:
				if !ok {
					return
				}
				atomic.AddUint64(&m.decisionsMade, 1)
				if d, ok := msg.(engine.Decision); ok {
					mtxDecisions.WithLabelValues(d.Action).Inc()
				}
			case msg, ok := <-fills:
				if !ok {
					return
				}
				if f, ok := msg.(gateway.Fill); ok {
					mtxOrders.WithLabelValues(string(f.Side)).Inc()
				}
			case _, ok := <-cycles:
				if !ok {
					return
				}
				mtxCycles.Inc()
			}
		}
	}()
}

// Timer measures one operation and records to a histogram on Stop.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{start: time.Now(), histogram: h}
}

// Stop records elapsed time to the histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
