package indicators

import (
	"math"
	"sync"
)

// Tracker maintains per-symbol price windows and derives realized
// volatility from the tick stream. It backs the market provider's
// volatility reads when the venue publishes no volatility of its own.
type Tracker struct {
	mu     sync.Mutex
	prices map[string][]float64
	window int
}

// NewTracker builds a tracker keeping the last window prices per symbol.
func NewTracker(window int) *Tracker {
	if window < 2 {
		window = 120
	}
	return &Tracker{
		prices: make(map[string][]float64),
		window: window,
	}
}

// Update ingests a new price observation.
func (t *Tracker) Update(symbol string, price float64) {
	if price <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	arr := append(t.prices[symbol], price)
	if len(arr) > t.window {
		arr = arr[len(arr)-t.window:]
	}
	t.prices[symbol] = arr
}

// Volatility returns the standard deviation of log returns over the
// window. ok is false until at least three observations exist.
func (t *Tracker) Volatility(symbol string) (vol float64, ok bool) {
	t.mu.Lock()
	arr := t.prices[symbol]
	returns := make([]float64, 0, len(arr))
	for i := 1; i < len(arr); i++ {
		if arr[i-1] > 0 {
			returns = append(returns, math.Log(arr[i]/arr[i-1]))
		}
	}
	t.mu.Unlock()

	if len(returns) < 2 {
		return 0, false
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance), true
}
