package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"dividend-core/pkg/db"
)

const numShards = 16

// BatchState is the per-symbol batch-buy progress. Created on the first
// filled batch, cleared when the target count is reached or the position
// is exited. CompletedBatches only ever grows while the state lives.
type BatchState struct {
	LastTradeDate    time.Time `json:"last_trade_date"`
	CompletedBatches int       `json:"completed_batches"`
}

// BatchStore holds batch state keyed by symbol. Symbols hash onto shards so
// the store never takes a global lock; each symbol's state is owned and
// updated under its shard.
type BatchStore struct {
	shards [numShards]*batchShard
	db     *db.Database
}

type batchShard struct {
	mu     sync.RWMutex
	states map[string]BatchState
}

// NewBatchStore creates an empty store. database may be nil.
func NewBatchStore(database *db.Database) *BatchStore {
	s := &BatchStore{db: database}
	for i := 0; i < numShards; i++ {
		s.shards[i] = &batchShard{states: make(map[string]BatchState)}
	}
	return s
}

func (s *BatchStore) shardFor(symbol string) *batchShard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return s.shards[h.Sum32()%numShards]
}

// Load seeds batch state from the DB on startup. Partially built positions
// must survive restarts.
func (s *BatchStore) Load(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	rows, err := s.db.ListBatchStates(ctx)
	if err != nil {
		return fmt.Errorf("load batch states: %w", err)
	}
	for _, r := range rows {
		shard := s.shardFor(r.Symbol)
		shard.mu.Lock()
		shard.states[r.Symbol] = BatchState{
			LastTradeDate:    r.LastTradeDate,
			CompletedBatches: r.CompletedBatches,
		}
		shard.mu.Unlock()
	}
	return nil
}

// Get returns the state for a symbol.
func (s *BatchStore) Get(symbol string) (BatchState, bool) {
	shard := s.shardFor(symbol)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	st, ok := shard.states[symbol]
	return st, ok
}

// Advance increments the completed-batch counter and stamps the trade date.
func (s *BatchStore) Advance(ctx context.Context, symbol string, at time.Time) BatchState {
	shard := s.shardFor(symbol)
	shard.mu.Lock()
	st := shard.states[symbol]
	st.CompletedBatches++
	st.LastTradeDate = at
	shard.states[symbol] = st
	shard.mu.Unlock()

	if s.db != nil {
		if err := s.db.UpsertBatchState(ctx, db.BatchState{
			Symbol: symbol, LastTradeDate: st.LastTradeDate, CompletedBatches: st.CompletedBatches,
		}); err != nil {
			log.Printf("engine: persist batch state %s: %v", symbol, err)
		}
	}
	return st
}

// Clear removes the state for a symbol.
func (s *BatchStore) Clear(ctx context.Context, symbol string) {
	shard := s.shardFor(symbol)
	shard.mu.Lock()
	delete(shard.states, symbol)
	shard.mu.Unlock()

	if s.db != nil {
		if err := s.db.DeleteBatchState(ctx, symbol); err != nil {
			log.Printf("engine: delete batch state %s: %v", symbol, err)
		}
	}
}
