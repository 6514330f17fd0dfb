package account

import (
	"context"
	"fmt"
	"log"
	"sync"

	"dividend-core/internal/costs"
	"dividend-core/pkg/db"
)

// Manager keeps an in-memory view of positions and cash, persisting to the DB
// for durability. Shares bought today are not sellable until the next session
// (T+1); SettlePending rolls them into the available bucket at session open.
type Manager struct {
	mu        sync.RWMutex
	positions map[string]Position
	cash      Cash
	pending   map[string]float64 // bought today, settles next session
	db        *db.Database
}

// NewManager creates a manager with the given starting cash. database may be nil.
func NewManager(database *db.Database, startingCash float64) *Manager {
	return &Manager{
		positions: make(map[string]Position),
		pending:   make(map[string]float64),
		cash:      Cash{Available: startingCash},
		db:        database,
	}
}

// Load seeds in-memory state from the DB on startup.
func (m *Manager) Load(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	rows, err := m.db.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	cash, ok, err := m.db.GetCash(ctx)
	if err != nil {
		return fmt.Errorf("load cash: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range rows {
		m.positions[p.Symbol] = Position{
			Symbol:    p.Symbol,
			Qty:       p.Qty,
			AvgPrice:  p.AvgPrice,
			Available: p.Available,
		}
	}
	if ok {
		m.cash = Cash{Available: cash.Available, Frozen: cash.Frozen}
	}
	return nil
}

// Positions returns a copy of current holdings.
func (m *Manager) Positions(_ context.Context) (map[string]Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Position, len(m.positions))
	for sym, p := range m.positions {
		out[sym] = p
	}
	return out, nil
}

// AccountCash returns the current cash split.
func (m *Manager) AccountCash(_ context.Context) (Cash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cash, nil
}

// ApplyFill mutates positions and cash for a confirmed fill.
// Buys consume cash including fees; sells free cash net of fees.
func (m *Manager) ApplyFill(ctx context.Context, symbol string, side costs.Side, price, qty float64, cost costs.TradeCost) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.positions[symbol]
	p.Symbol = symbol

	switch side {
	case costs.Buy:
		if cost.Total() > m.cash.Available {
			return fmt.Errorf("apply fill %s: buy cost %.2f exceeds available cash %.2f", symbol, cost.Total(), m.cash.Available)
		}
		newQty := p.Qty + qty
		p.AvgPrice = (p.AvgPrice*p.Qty + price*qty) / newQty
		p.Qty = newQty
		m.pending[symbol] += qty
		m.cash.Available -= cost.Total()
	case costs.Sell:
		if qty > p.Available {
			return fmt.Errorf("apply fill %s: sell %.0f exceeds available %.0f", symbol, qty, p.Available)
		}
		p.Qty -= qty
		p.Available -= qty
		m.cash.Available += cost.Amount - cost.Fees()
	default:
		return fmt.Errorf("apply fill %s: unknown side %q", symbol, side)
	}

	if p.Qty <= 0 {
		delete(m.positions, symbol)
		delete(m.pending, symbol)
		if m.db != nil {
			if err := m.db.DeletePosition(ctx, symbol); err != nil {
				log.Printf("account: delete position %s: %v", symbol, err)
			}
		}
	} else {
		p.MarketValue = p.Qty * price
		m.positions[symbol] = p
		if m.db != nil {
			if err := m.db.UpsertPosition(ctx, db.Position{
				Symbol: symbol, Qty: p.Qty, AvgPrice: p.AvgPrice, Available: p.Available,
			}); err != nil {
				log.Printf("account: persist position %s: %v", symbol, err)
			}
		}
	}

	if m.db != nil {
		if err := m.db.UpsertCash(ctx, db.Cash{Available: m.cash.Available, Frozen: m.cash.Frozen}); err != nil {
			log.Printf("account: persist cash: %v", err)
		}
	}
	return nil
}

// SettlePending makes yesterday's buys sellable. Called at session open.
func (m *Manager) SettlePending(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sym, qty := range m.pending {
		p, ok := m.positions[sym]
		if !ok {
			continue
		}
		p.Available += qty
		if p.Available > p.Qty {
			p.Available = p.Qty
		}
		m.positions[sym] = p
		if m.db != nil {
			if err := m.db.UpsertPosition(ctx, db.Position{
				Symbol: sym, Qty: p.Qty, AvgPrice: p.AvgPrice, Available: p.Available,
			}); err != nil {
				log.Printf("account: settle %s: %v", sym, err)
			}
		}
	}
	m.pending = make(map[string]float64)
}

// MarkPrices refreshes market values from current prices.
func (m *Manager) MarkPrices(prices map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sym, p := range m.positions {
		if px, ok := prices[sym]; ok && px > 0 {
			p.MarketValue = p.Qty * px
			m.positions[sym] = p
		}
	}
}

// NAV returns total net asset value: cash plus marked position values.
func (m *Manager) NAV() (nav, cash, positionsValue float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cash = m.cash.Available + m.cash.Frozen
	for _, p := range m.positions {
		positionsValue += p.MarketValue
	}
	return cash + positionsValue, cash, positionsValue
}
