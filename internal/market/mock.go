package market

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"dividend-core/internal/events"
)

// MockProvider is a deterministic in-memory Provider for tests and local runs.
type MockProvider struct {
	mu           sync.RWMutex
	fundamentals map[string]Fundamental
	quotes       map[string]Quote
	volatility   map[string]float64
}

// NewMockProvider creates an empty provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		fundamentals: make(map[string]Fundamental),
		quotes:       make(map[string]Quote),
		volatility:   make(map[string]float64),
	}
}

// SetFundamental installs or replaces the snapshot for a symbol.
func (p *MockProvider) SetFundamental(f Fundamental) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fundamentals[f.Symbol] = f
}

// SetQuote installs the best bid/ask for a symbol.
func (p *MockProvider) SetQuote(symbol string, bid, ask float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[symbol] = Quote{Bid: bid, Ask: ask}
}

// SetVolatility installs the volatility reading for a symbol.
func (p *MockProvider) SetVolatility(symbol string, vol float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volatility[symbol] = vol
}

// SetPrice adjusts only the price of an existing fundamental snapshot.
func (p *MockProvider) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.fundamentals[symbol]
	f.Symbol = symbol
	f.Price = price
	p.fundamentals[symbol] = f
}

func (p *MockProvider) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.fundamentals[symbol]
	if !ok || f.Price <= 0 {
		return 0, ErrDataUnavailable
	}
	return f.Price, nil
}

func (p *MockProvider) CurrentVolume(_ context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.fundamentals[symbol]
	if !ok {
		return 0, ErrDataUnavailable
	}
	return f.Volume, nil
}

func (p *MockProvider) BidAskSpread(_ context.Context, symbol string) (Quote, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quotes[symbol]
	if !ok {
		return Quote{}, ErrDataUnavailable
	}
	return q, nil
}

func (p *MockProvider) Volatility(_ context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.volatility[symbol]
	if !ok {
		return 0, ErrDataUnavailable
	}
	return v, nil
}

func (p *MockProvider) FundamentalSnapshots(_ context.Context, symbols []string) (map[string]Fundamental, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]Fundamental, len(symbols))
	for _, sym := range symbols {
		if f, ok := p.fundamentals[sym]; ok {
			out[sym] = f
		}
	}
	return out, nil
}

// MockFeed drives the mock provider with a random walk and publishes
// price ticks on the bus. Local development only.
type MockFeed struct {
	Bus      *events.Bus
	Provider *MockProvider
	Symbols  []string
	Step     float64
	Interval time.Duration
}

func (m *MockFeed) Start(ctx context.Context) {
	if m.Bus == nil || m.Provider == nil {
		log.Println("mock feed: bus or provider not set")
		return
	}
	if m.Step == 0 {
		m.Step = 0.05
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				for _, sym := range m.Symbols {
					price, err := m.Provider.CurrentPrice(ctx, sym)
					if err != nil {
						continue
					}
					// simple random walk
					price += (rand.Float64()*2 - 1) * m.Step
					if price <= 0 {
						price = m.Step
					}
					m.Provider.SetPrice(sym, price)
					m.Bus.Publish(events.EventPriceTick, Tick{Symbol: sym, Price: price, Time: time.Now()})
				}
			}
		}
	}()
}

// Tick is a single published price update.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Time   time.Time `json:"time"`
}
