package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"dividend-core/internal/account"
	"dividend-core/internal/costs"
	"dividend-core/internal/events"
	"dividend-core/internal/gateway"
	"dividend-core/internal/history"
	"dividend-core/internal/industry"
	"dividend-core/internal/market"
	"dividend-core/internal/optimizer"
	"dividend-core/internal/risk"
)

// AccountBook is the account boundary the engine reads from and posts
// confirmed fills to.
type AccountBook interface {
	account.Provider
	ApplyFill(ctx context.Context, symbol string, side costs.Side, price, qty float64, cost costs.TradeCost) error
}

// Decision describes what the engine did for a symbol in one cycle.
type Decision struct {
	Symbol string  `json:"symbol"`
	Action string  `json:"action"` // BUY, SELL, HOLD, SKIP
	Qty    float64 `json:"qty"`
	Price  float64 `json:"price"`
	Reason string  `json:"reason"`
}

// Engine drives the per-symbol buy/sell state machine once per evaluation
// cycle. Symbols are evaluated sequentially against a portfolio snapshot
// captured at cycle start; the snapshot is the single source of truth for
// exposure during the cycle.
type Engine struct {
	cfg        Config
	market     market.Provider
	gateway    gateway.Gateway
	book       AccountBook
	classifier industry.Classifier
	evaluator  *risk.Evaluator
	history    *history.Store
	batches    *BatchStore
	optimizer  *optimizer.Optimizer
	costs      costs.Model
	bus        *events.Bus

	now func() time.Time
}

// New validates the configuration and wires the engine. A configuration
// error here is fatal for the process.
func New(cfg Config, mkt market.Provider, gw gateway.Gateway, book AccountBook,
	classifier industry.Classifier, evaluator *risk.Evaluator, hist *history.Store,
	batches *BatchStore, opt *optimizer.Optimizer, model costs.Model, bus *events.Bus) (*Engine, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SweepSymbol != "" && cfg.SweepLot <= 0 {
		cfg.SweepLot = sweepLots[cfg.SweepSymbol]
	}
	return &Engine{
		cfg:        cfg,
		market:     mkt,
		gateway:    gw,
		book:       book,
		classifier: classifier,
		evaluator:  evaluator,
		history:    hist,
		batches:    batches,
		optimizer:  opt,
		costs:      model,
		bus:        bus,
		now:        time.Now,
	}, nil
}

// RunCycle evaluates every symbol once. Account-level failures abort the
// cycle; per-symbol failures are logged and isolated.
func (e *Engine) RunCycle(ctx context.Context, symbols []string) error {
	positions, err := e.book.Positions(ctx)
	if err != nil {
		return fmt.Errorf("cycle aborted, positions unavailable: %w", err)
	}
	cash, err := e.book.AccountCash(ctx)
	if err != nil {
		return fmt.Errorf("cycle aborted, cash unavailable: %w", err)
	}
	funds, err := e.market.FundamentalSnapshots(ctx, symbols)
	if err != nil {
		return fmt.Errorf("cycle aborted, fundamentals unavailable: %w", err)
	}

	snap := risk.TakeSnapshot(positions, cash, e.classifier)

	for _, sym := range symbols {
		f, ok := funds[sym]
		if !ok {
			log.Printf("engine: %s skipped, no fundamental snapshot this cycle", sym)
			continue
		}
		e.evaluateSymbol(ctx, &snap, sym, f)
	}

	if e.bus != nil {
		e.bus.Publish(events.EventCycleCompleted, len(symbols))
	}
	return nil
}

func (e *Engine) evaluateSymbol(ctx context.Context, snap *risk.PortfolioSnapshot, sym string, f market.Fundamental) {
	pos, held := snap.Positions[sym]
	if held && pos.Qty > 0 {
		if e.evaluateSell(ctx, snap, sym, pos, f) {
			// Freed capital is immediately eligible again this cycle.
			e.evaluateBuy(ctx, snap, sym, f)
			return
		}
		// A position still being built keeps taking batches.
		if _, building := e.batches.Get(sym); building {
			e.evaluateBuy(ctx, snap, sym, f)
		}
		return
	}
	e.evaluateBuy(ctx, snap, sym, f)
}

// evaluateBuy walks screen -> gate -> batch order for one symbol.
func (e *Engine) evaluateBuy(ctx context.Context, snap *risk.PortfolioSnapshot, sym string, f market.Fundamental) {
	bs, building := e.batches.Get(sym)
	if building && bs.CompletedBatches >= e.cfg.BatchCount {
		// Target reached; stale state from an earlier run.
		e.batches.Clear(ctx, sym)
		building = false
	}

	// Screen applies on entry; a symbol mid-build skips straight to the gate.
	if !building && !e.screen(sym, f) {
		return
	}

	now := e.now()
	if !e.evaluator.CanTrade(sym, now) {
		log.Printf("engine: %s gated, inside %d-day cooldown", sym, e.evaluator.Limits().CooldownDays)
		return
	}

	qty, amount := e.batchOrder(snap, sym, f.Price, bs)
	if qty <= 0 {
		return
	}
	qty, amount = e.affordable(ctx, sym, f.Price, qty)
	if qty <= 0 {
		return
	}

	code, err := e.classifier.IndustryOf(sym)
	if err != nil {
		log.Printf("engine: %s skipped, industry unknown: %v", sym, err)
		return
	}
	if !e.evaluator.CheckPositionLimit(*snap, sym, amount) {
		log.Printf("engine: %s gated, symbol exposure cap (incr %.0f, total %.0f)", sym, amount, snap.TotalValue)
		return
	}
	if !e.evaluator.CheckIndustryLimit(*snap, code, amount) {
		log.Printf("engine: %s gated, industry %s exposure cap (incr %.0f)", sym, code, amount)
		return
	}

	// Advisory timing check; it can shrink the order but never unlock a gate.
	if e.optimizer != nil {
		if adv, err := e.optimizer.Evaluate(ctx, sym, f.Price, qty); err == nil {
			log.Printf("engine: %s timing score %.2f (est. saving %.2f)", sym, adv.TimingScore, adv.EstimatedSaving)
			if adv.RecommendedQty > 0 && adv.RecommendedQty < qty {
				qty = adv.RecommendedQty
			}
		}
	}

	fill, err := e.execute(ctx, gateway.Order{Symbol: sym, Side: costs.Buy, Qty: qty, Type: gateway.Market})
	if err != nil {
		log.Printf("engine: %s buy failed: %v", sym, err)
		return
	}

	cost, err := e.costs.Trade(costs.Buy, fill.Price, fill.Qty)
	if err != nil {
		log.Printf("engine: %s cost calc failed: %v", sym, err)
		return
	}
	if err := e.book.ApplyFill(ctx, sym, costs.Buy, fill.Price, fill.Qty, cost); err != nil {
		log.Printf("engine: %s book update failed: %v", sym, err)
		return
	}
	e.history.RecordAt(sym, fill.Price, fill.Qty, costs.Buy, fill.Time)
	st := e.batches.Advance(ctx, sym, fill.Time)
	snap.Commit(sym, code, fill.Price*fill.Qty)
	if e.bus != nil {
		e.bus.Publish(events.EventPositionChange, fill)
	}

	if st.CompletedBatches >= e.cfg.BatchCount {
		e.batches.Clear(ctx, sym)
		log.Printf("engine: %s position fully built (%d batches)", sym, st.CompletedBatches)
	}

	e.publish(Decision{Symbol: sym, Action: "BUY", Qty: fill.Qty, Price: fill.Price,
		Reason: fmt.Sprintf("batch %d/%d", st.CompletedBatches, e.cfg.BatchCount)})
}

// screen applies the entry filter. Prior trade history replaces the
// fundamental screen entirely: re-entry requires the configured further
// decline from the last recorded trade.
func (e *Engine) screen(sym string, f market.Fundamental) bool {
	if last, ok := e.history.LastPrice(sym); ok {
		return f.Price > 0 && f.Price <= last*e.cfg.DropThreshold
	}
	return f.PB > 0 && f.PB < e.cfg.MaxPB &&
		f.Volume > e.cfg.MinVolume &&
		f.DividendYield > e.cfg.MinYield
}

// batchOrder sizes the next batch: remaining target over remaining batches,
// rounded down to the lot. A zero-lot round is a no-op, not a failure.
func (e *Engine) batchOrder(snap *risk.PortfolioSnapshot, sym string, price float64, bs BatchState) (qty, amount float64) {
	if price <= 0 {
		return 0, 0
	}
	remaining := e.cfg.BatchCount - bs.CompletedBatches
	if remaining <= 0 {
		return 0, 0
	}

	pos := snap.Positions[sym]
	invested := pos.Qty * pos.AvgPrice
	remainingTarget := e.cfg.TargetPerSymbol - invested
	if remainingTarget <= 0 {
		return 0, 0
	}

	batchAmount := remainingTarget / float64(remaining)
	qty = math.Floor(batchAmount/price/e.cfg.LotSize) * e.cfg.LotSize
	if qty <= 0 {
		log.Printf("engine: %s batch rounds to zero lots (%.0f at %.2f), no-op", sym, batchAmount, price)
		return 0, 0
	}
	return qty, qty * price
}

// affordable shrinks a buy to what available cash covers, fees included,
// dropping whole lots until the estimated cost fits. Never grows the order.
func (e *Engine) affordable(ctx context.Context, sym string, price, qty float64) (float64, float64) {
	cash, err := e.book.AccountCash(ctx)
	if err != nil {
		log.Printf("engine: %s skipped, cash unavailable: %v", sym, err)
		return 0, 0
	}

	if maxQty := math.Floor(cash.Available/(price*e.cfg.LotSize)) * e.cfg.LotSize; qty > maxQty {
		qty = maxQty
	}
	for qty > 0 {
		est, err := e.costs.Trade(costs.Buy, price, qty)
		if err != nil {
			log.Printf("engine: %s cost estimate failed: %v", sym, err)
			return 0, 0
		}
		if est.Total() <= cash.Available {
			return qty, qty * price
		}
		qty -= e.cfg.LotSize
	}
	log.Printf("engine: %s batch skipped, %.2f cash cannot cover one lot", sym, cash.Available)
	return 0, 0
}

// evaluateSell checks the exit conditions and, when one holds, exits the
// full position. Returns true when the position was sold this cycle.
func (e *Engine) evaluateSell(ctx context.Context, snap *risk.PortfolioSnapshot, sym string, pos account.Position, f market.Fundamental) bool {
	price := f.Price
	if price <= 0 {
		log.Printf("engine: %s hold, no price this cycle", sym)
		return false
	}

	reason := e.sellReason(sym, price, f)
	if reason == "" {
		return false
	}

	if pos.Available <= 0 {
		log.Printf("engine: %s exit (%s) deferred, no settled shares", sym, reason)
		return false
	}

	fill, err := e.execute(ctx, gateway.Order{Symbol: sym, Side: costs.Sell, Qty: pos.Available, Type: gateway.Market})
	if err != nil {
		log.Printf("engine: %s sell failed (%s): %v", sym, reason, err)
		return false
	}

	cost, err := e.costs.Trade(costs.Sell, fill.Price, fill.Qty)
	if err != nil {
		log.Printf("engine: %s sell cost calc failed: %v", sym, err)
		return false
	}
	if err := e.book.ApplyFill(ctx, sym, costs.Sell, fill.Price, fill.Qty, cost); err != nil {
		log.Printf("engine: %s book update failed: %v", sym, err)
		return false
	}
	e.history.RecordAt(sym, fill.Price, fill.Qty, costs.Sell, fill.Time)
	e.batches.Clear(ctx, sym)

	snap.Release(sym, snap.IndustryOf[sym], fill.Qty)
	if e.bus != nil {
		e.bus.Publish(events.EventPositionChange, fill)
	}

	e.publish(Decision{Symbol: sym, Action: "SELL", Qty: fill.Qty, Price: fill.Price, Reason: reason})
	return true
}

// sellReason returns the first matching exit condition, or "".
func (e *Engine) sellReason(sym string, price float64, f market.Fundamental) string {
	if e.evaluator.CheckStopLoss(sym, price) {
		return fmt.Sprintf("stop loss at %.2f", price)
	}
	if e.evaluator.CheckTakeProfit(sym, price) {
		return fmt.Sprintf("take profit at %.2f", price)
	}
	if code, err := e.classifier.IndustryOf(sym); err == nil {
		if avg, err := e.classifier.AveragePB(code); err == nil && avg > 0 && f.PB >= avg {
			return fmt.Sprintf("pb %.2f above industry average %.2f", f.PB, avg)
		}
	}
	if pct, err := e.classifier.PEHistoryPercentile(sym, e.cfg.PELookbackDays); err == nil && pct > e.cfg.HighPEPercentile {
		return fmt.Sprintf("pe percentile %.0f%%", pct*100)
	}
	return ""
}

// execute submits an order and waits for its fill within the configured
// timeout. A timeout surfaces as gateway.ErrTimeout.
func (e *Engine) execute(ctx context.Context, o gateway.Order) (gateway.Fill, error) {
	id, err := e.gateway.SubmitOrder(ctx, o)
	if err != nil {
		return gateway.Fill{}, err
	}
	fill, err := e.gateway.AwaitFill(ctx, id, e.cfg.FillTimeout)
	if err != nil {
		if errors.Is(err, gateway.ErrTimeout) {
			return gateway.Fill{}, fmt.Errorf("order %s: %w", id, gateway.ErrTimeout)
		}
		return gateway.Fill{}, err
	}
	return fill, nil
}

func (e *Engine) publish(d Decision) {
	log.Printf("engine: %s %s %.0f @ %.2f (%s)", d.Symbol, d.Action, d.Qty, d.Price, d.Reason)
	if e.bus != nil {
		e.bus.Publish(events.EventDecision, d)
	}
}

// SweepIdleCash moves uninvested cash into the configured cash-equivalent
// instrument in whole lot units. Fractional remainders stay as cash.
// Intended to run once per day near session close.
func (e *Engine) SweepIdleCash(ctx context.Context) error {
	if e.cfg.SweepSymbol == "" {
		return nil
	}

	cash, err := e.book.AccountCash(ctx)
	if err != nil {
		return fmt.Errorf("sweep: cash unavailable: %w", err)
	}

	price, err := e.market.CurrentPrice(ctx, e.cfg.SweepSymbol)
	if err != nil {
		return fmt.Errorf("sweep: price for %s: %w", e.cfg.SweepSymbol, err)
	}
	if price <= 0 {
		return fmt.Errorf("sweep: bad price %.2f for %s", price, e.cfg.SweepSymbol)
	}

	lots := math.Floor(cash.Available / (price * e.cfg.SweepLot))
	qty := lots * e.cfg.SweepLot
	if qty <= 0 {
		log.Printf("engine: sweep no-op, %.2f cash below one lot of %s", cash.Available, e.cfg.SweepSymbol)
		return nil
	}

	fill, err := e.execute(ctx, gateway.Order{Symbol: e.cfg.SweepSymbol, Side: costs.Buy, Qty: qty, Type: gateway.Market})
	if err != nil {
		return fmt.Errorf("sweep order: %w", err)
	}

	// Cash-equivalent repos trade without the equity fee schedule.
	cost := costs.TradeCost{Amount: fill.Price * fill.Qty}
	if err := e.book.ApplyFill(ctx, e.cfg.SweepSymbol, costs.Buy, fill.Price, fill.Qty, cost); err != nil {
		return fmt.Errorf("sweep book update: %w", err)
	}
	e.history.RecordAt(e.cfg.SweepSymbol, fill.Price, fill.Qty, costs.Buy, fill.Time)

	log.Printf("engine: swept %.0f into %s at %.3f", fill.Qty, e.cfg.SweepSymbol, fill.Price)
	if e.bus != nil {
		e.bus.Publish(events.EventSweepExecuted, fill)
	}
	return nil
}

// RedeemSweep matures the overnight cash-equivalent back into cash. Repo
// placements redeem at par automatically; no order goes to the venue. Runs
// at session open, after settlement has made the shares available.
func (e *Engine) RedeemSweep(ctx context.Context) error {
	if e.cfg.SweepSymbol == "" {
		return nil
	}

	positions, err := e.book.Positions(ctx)
	if err != nil {
		return fmt.Errorf("redeem sweep: positions unavailable: %w", err)
	}
	pos, ok := positions[e.cfg.SweepSymbol]
	if !ok || pos.Available <= 0 {
		return nil
	}

	cost := costs.TradeCost{Amount: pos.AvgPrice * pos.Available}
	if err := e.book.ApplyFill(ctx, e.cfg.SweepSymbol, costs.Sell, pos.AvgPrice, pos.Available, cost); err != nil {
		return fmt.Errorf("redeem sweep book update: %w", err)
	}

	fill := gateway.Fill{
		Symbol: e.cfg.SweepSymbol,
		Side:   costs.Sell,
		Price:  pos.AvgPrice,
		Qty:    pos.Available,
		Time:   e.now(),
	}
	e.history.RecordAt(fill.Symbol, fill.Price, fill.Qty, costs.Sell, fill.Time)

	log.Printf("engine: redeemed %.0f of %s at maturity, %.2f returned to cash",
		fill.Qty, e.cfg.SweepSymbol, cost.Amount)
	if e.bus != nil {
		e.bus.Publish(events.EventSweepExecuted, fill)
	}
	return nil
}
