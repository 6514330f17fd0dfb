package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"dividend-core/internal/costs"
	"dividend-core/internal/events"
	"dividend-core/internal/market"
)

// PaperGateway fills orders against the live provider's price, with
// simulated slippage and latency. Submissions are paced by a rate limiter
// to mirror venue throttling.
type PaperGateway struct {
	Provider market.Provider
	Bus      *events.Bus

	SlippageBps float64
	FillDelay   time.Duration

	limiter *rate.Limiter
	rng     *rand.Rand

	mu    sync.Mutex
	fills map[string]Fill
}

// NewPaperGateway creates a gateway allowing rps order submissions per second.
func NewPaperGateway(provider market.Provider, bus *events.Bus, rps float64) *PaperGateway {
	if rps <= 0 {
		rps = 5
	}
	return &PaperGateway{
		Provider:    provider,
		Bus:         bus,
		SlippageBps: 2,
		limiter:     rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		fills:       make(map[string]Fill),
	}
}

// SubmitOrder validates, paces, prices and queues the fill.
func (g *PaperGateway) SubmitOrder(ctx context.Context, o Order) (string, error) {
	if o.Qty <= 0 {
		return "", g.reject(o, fmt.Errorf("%w: non-positive quantity %.2f", ErrRejected, o.Qty))
	}
	if o.Type == Limit && o.Price <= 0 {
		return "", g.reject(o, fmt.Errorf("%w: limit order without price", ErrRejected))
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("submit %s: %w", o.Symbol, err)
	}

	price := o.Price
	if o.Type == Market {
		p, err := g.Provider.CurrentPrice(ctx, o.Symbol)
		if err != nil {
			return "", g.reject(o, fmt.Errorf("%w: no price for %s", ErrRejected, o.Symbol))
		}
		price = p
	}

	// slippage against the taker
	frac := g.SlippageBps / 10000.0
	if frac > 0 {
		noise := g.rng.Float64() * frac
		if o.Side == costs.Buy {
			price *= 1 + noise
		} else {
			price *= 1 - noise
		}
	}

	id := uuid.NewString()
	fill := Fill{
		OrderID: id,
		Symbol:  o.Symbol,
		Side:    o.Side,
		Price:   price,
		Qty:     o.Qty,
		Time:    time.Now(),
	}

	g.mu.Lock()
	g.fills[id] = fill
	g.mu.Unlock()

	if g.Bus != nil {
		g.Bus.Publish(events.EventOrderSubmitted, o)
	}
	return id, nil
}

func (g *PaperGateway) reject(o Order, err error) error {
	if g.Bus != nil {
		g.Bus.Publish(events.EventOrderRejected, o)
	}
	return err
}

// AwaitFill returns the fill for a submitted order, honoring the timeout.
func (g *PaperGateway) AwaitFill(ctx context.Context, orderID string, timeout time.Duration) (Fill, error) {
	if g.FillDelay > 0 {
		select {
		case <-time.After(g.FillDelay):
		case <-ctx.Done():
			return Fill{}, ctx.Err()
		case <-time.After(timeout):
			return Fill{}, ErrTimeout
		}
	}

	g.mu.Lock()
	fill, ok := g.fills[orderID]
	if ok {
		delete(g.fills, orderID)
	}
	g.mu.Unlock()

	if !ok {
		return Fill{}, fmt.Errorf("await fill %s: %w", orderID, ErrTimeout)
	}

	if g.Bus != nil {
		g.Bus.Publish(events.EventOrderFilled, fill)
	}
	return fill, nil
}
