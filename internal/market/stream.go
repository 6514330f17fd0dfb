package market

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dividend-core/internal/events"
)

// quoteMessage is the wire format pushed by the vendor quote stream.
type quoteMessage struct {
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	Volume     float64 `json:"volume"`
	Volatility float64 `json:"volatility"`
}

type liveQuote struct {
	msg       quoteMessage
	updatedAt time.Time
}

// StreamProvider overlays live websocket quotes on top of a base Provider.
// Price, volume, spread and volatility come from the stream once a symbol
// has ticked; fundamentals always come from the base provider. A symbol with
// no live quote yet falls back to the base provider.
type StreamProvider struct {
	base    Provider
	bus     *events.Bus
	url     string
	symbols []string
	dialer  *websocket.Dialer

	mu     sync.RWMutex
	quotes map[string]liveQuote

	// quotes older than this are considered stale and ignored
	maxAge time.Duration
}

// NewStreamProvider builds a provider reading from the given quote stream URL.
func NewStreamProvider(base Provider, bus *events.Bus, url string, symbols []string) *StreamProvider {
	return &StreamProvider{
		base:    base,
		bus:     bus,
		url:     url,
		symbols: symbols,
		dialer:  websocket.DefaultDialer,
		quotes:  make(map[string]liveQuote),
		maxAge:  time.Minute,
	}
}

// Start connects and keeps reading until ctx is cancelled, reconnecting
// with capped backoff after read failures.
func (p *StreamProvider) Start(ctx context.Context) {
	go func() {
		backoff := time.Second
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := p.readLoop(ctx); err != nil {
				log.Printf("quote stream: %v, reconnecting in %s", err, backoff)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
}

func (p *StreamProvider) readLoop(ctx context.Context) error {
	conn, _, err := p.dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := struct {
		Op      string   `json:"op"`
		Symbols []string `json:"symbols"`
	}{Op: "subscribe", Symbols: p.symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return err
		}

		var msg quoteMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("quote stream: parse error: %v", err)
			continue
		}
		if msg.Symbol == "" {
			continue
		}

		p.mu.Lock()
		p.quotes[msg.Symbol] = liveQuote{msg: msg, updatedAt: time.Now()}
		p.mu.Unlock()

		if p.bus != nil && msg.Price > 0 {
			p.bus.Publish(events.EventPriceTick, Tick{Symbol: msg.Symbol, Price: msg.Price, Time: time.Now()})
		}
	}
}

func (p *StreamProvider) fresh(symbol string) (quoteMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quotes[symbol]
	if !ok || time.Since(q.updatedAt) > p.maxAge {
		return quoteMessage{}, false
	}
	return q.msg, true
}

func (p *StreamProvider) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if q, ok := p.fresh(symbol); ok && q.Price > 0 {
		return q.Price, nil
	}
	return p.base.CurrentPrice(ctx, symbol)
}

func (p *StreamProvider) CurrentVolume(ctx context.Context, symbol string) (float64, error) {
	if q, ok := p.fresh(symbol); ok && q.Volume > 0 {
		return q.Volume, nil
	}
	return p.base.CurrentVolume(ctx, symbol)
}

func (p *StreamProvider) BidAskSpread(ctx context.Context, symbol string) (Quote, error) {
	if q, ok := p.fresh(symbol); ok && q.Bid > 0 && q.Ask > 0 {
		return Quote{Bid: q.Bid, Ask: q.Ask}, nil
	}
	return p.base.BidAskSpread(ctx, symbol)
}

func (p *StreamProvider) Volatility(ctx context.Context, symbol string) (float64, error) {
	if q, ok := p.fresh(symbol); ok && q.Volatility > 0 {
		return q.Volatility, nil
	}
	return p.base.Volatility(ctx, symbol)
}

func (p *StreamProvider) FundamentalSnapshots(ctx context.Context, symbols []string) (map[string]Fundamental, error) {
	return p.base.FundamentalSnapshots(ctx, symbols)
}
