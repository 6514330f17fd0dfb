package history

import (
	"hash/fnv"
	"log"
	"sort"
	"sync"
	"time"

	"dividend-core/internal/costs"
)

const numShards = 16

// TradeRecord is one executed trade. Immutable once appended.
type TradeRecord struct {
	Symbol string     `json:"symbol"`
	Time   time.Time  `json:"time"`
	Price  float64    `json:"price"`
	Qty    float64    `json:"qty"`
	Side   costs.Side `json:"side"`
}

// HoldingPeriod pairs a buy with the next sell for the same symbol, FIFO by time.
type HoldingPeriod struct {
	Symbol   string
	Entry    TradeRecord
	Exit     TradeRecord
	Duration time.Duration
}

// Journal persists appended records. Implementations must be safe for
// concurrent use; failures are logged, they never block the in-memory ledger.
type Journal interface {
	AppendTrade(rec TradeRecord) error
}

// Store is an append-only per-symbol trade ledger. Symbols hash onto shards
// so writers for different symbols do not contend; writes for the same
// symbol serialize under the shard lock.
type Store struct {
	shards  [numShards]*ledgerShard
	journal Journal
}

type ledgerShard struct {
	mu sync.RWMutex
	// most recent first
	trades map[string][]TradeRecord
}

// NewStore creates an empty ledger. journal may be nil.
func NewStore(journal Journal) *Store {
	s := &Store{journal: journal}
	for i := 0; i < numShards; i++ {
		s.shards[i] = &ledgerShard{trades: make(map[string][]TradeRecord)}
	}
	return s
}

func (s *Store) shardFor(symbol string) *ledgerShard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return s.shards[h.Sum32()%numShards]
}

// Record appends a trade with the current timestamp.
func (s *Store) Record(symbol string, price, qty float64, side costs.Side) TradeRecord {
	return s.RecordAt(symbol, price, qty, side, time.Now())
}

// RecordAt appends a trade with an explicit timestamp.
func (s *Store) RecordAt(symbol string, price, qty float64, side costs.Side, at time.Time) TradeRecord {
	rec := TradeRecord{Symbol: symbol, Time: at, Price: price, Qty: qty, Side: side}

	shard := s.shardFor(symbol)
	shard.mu.Lock()
	shard.trades[symbol] = append([]TradeRecord{rec}, shard.trades[symbol]...)
	shard.mu.Unlock()

	if s.journal != nil {
		if err := s.journal.AppendTrade(rec); err != nil {
			log.Printf("history: journal append %s failed: %v", symbol, err)
		}
	}
	return rec
}

// Seed loads previously persisted records without journaling them again.
// Intended for startup; records may arrive in any order.
func (s *Store) Seed(recs []TradeRecord) {
	bySymbol := make(map[string][]TradeRecord)
	for _, r := range recs {
		bySymbol[r.Symbol] = append(bySymbol[r.Symbol], r)
	}
	for sym, rs := range bySymbol {
		sort.Slice(rs, func(i, j int) bool { return rs[i].Time.After(rs[j].Time) })
		shard := s.shardFor(sym)
		shard.mu.Lock()
		shard.trades[sym] = append(rs, shard.trades[sym]...)
		shard.mu.Unlock()
	}
}

// LastTrade returns the most recent record for a symbol.
func (s *Store) LastTrade(symbol string) (TradeRecord, bool) {
	shard := s.shardFor(symbol)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	recs := shard.trades[symbol]
	if len(recs) == 0 {
		return TradeRecord{}, false
	}
	return recs[0], true
}

// LastPrice returns the price of the most recent trade.
func (s *Store) LastPrice(symbol string) (float64, bool) {
	rec, ok := s.LastTrade(symbol)
	if !ok {
		return 0, false
	}
	return rec.Price, true
}

// History returns the symbol's trades, most recent first.
func (s *Store) History(symbol string) []TradeRecord {
	shard := s.shardFor(symbol)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	recs := shard.trades[symbol]
	out := make([]TradeRecord, len(recs))
	copy(out, recs)
	return out
}

// HoldingPeriods pairs each buy with the next sell for the symbol, FIFO by time.
// Unmatched buys (still held) are excluded.
func (s *Store) HoldingPeriods(symbol string) []HoldingPeriod {
	recs := s.History(symbol)
	// oldest first for FIFO pairing
	chrono := make([]TradeRecord, len(recs))
	for i, r := range recs {
		chrono[len(recs)-1-i] = r
	}

	var buys []TradeRecord
	var periods []HoldingPeriod
	for _, r := range chrono {
		switch r.Side {
		case costs.Buy:
			buys = append(buys, r)
		case costs.Sell:
			if len(buys) == 0 {
				continue
			}
			entry := buys[0]
			buys = buys[1:]
			periods = append(periods, HoldingPeriod{
				Symbol:   symbol,
				Entry:    entry,
				Exit:     r,
				Duration: r.Time.Sub(entry.Time),
			})
		}
	}
	return periods
}

// Symbols returns every symbol with at least one record.
func (s *Store) Symbols() []string {
	var out []string
	for _, shard := range s.shards {
		shard.mu.RLock()
		for sym := range shard.trades {
			out = append(out, sym)
		}
		shard.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}
