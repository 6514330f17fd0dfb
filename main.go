package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"dividend-core/internal/account"
	"dividend-core/internal/api"
	"dividend-core/internal/costs"
	"dividend-core/internal/engine"
	"dividend-core/internal/events"
	"dividend-core/internal/gateway"
	"dividend-core/internal/history"
	"dividend-core/internal/indicators"
	"dividend-core/internal/industry"
	"dividend-core/internal/market"
	"dividend-core/internal/monitor"
	"dividend-core/internal/optimizer"
	"dividend-core/internal/risk"
	"dividend-core/internal/scheduler"
	"dividend-core/pkg/config"
	"dividend-core/pkg/db"
)

// tradeJournal persists ledger appends to sqlite.
type tradeJournal struct {
	db *db.Database
}

func (j *tradeJournal) AppendTrade(rec history.TradeRecord) error {
	return j.db.InsertTrade(context.Background(), db.Trade{
		ID:         uuid.NewString(),
		Symbol:     rec.Symbol,
		Side:       string(rec.Side),
		Price:      rec.Price,
		Qty:        rec.Qty,
		ExecutedAt: rec.Time,
	})
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	strat, err := config.LoadStrategy(cfg.StrategyPath)
	if err != nil {
		log.Fatalf("load strategy: %v", err)
	}
	log.Printf("starting dividend-core %s, port %s, db %s", cfg.Version, cfg.Port, cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	// Trade ledger, journaled to sqlite and seeded from it on startup.
	hist := history.NewStore(&tradeJournal{db: database})
	if trades, err := database.ListTrades(ctx); err != nil {
		log.Printf("seed trade history: %v", err)
	} else {
		recs := make([]history.TradeRecord, len(trades))
		for i, t := range trades {
			recs[i] = history.TradeRecord{
				Symbol: t.Symbol, Time: t.ExecutedAt,
				Price: t.Price, Qty: t.Qty, Side: costsSide(t.Side),
			}
		}
		hist.Seed(recs)
		log.Printf("seeded %d trades into the ledger", len(recs))
	}

	// Account book.
	book := account.NewManager(database, cfg.InitialCash)
	if err := book.Load(ctx); err != nil {
		log.Fatalf("load account state: %v", err)
	}

	// Industry table.
	var classifier industry.Classifier
	if static, err := industry.LoadClassifier(cfg.IndustryPath); err != nil {
		log.Printf("industry table %s unavailable (%v), using empty table", cfg.IndustryPath, err)
		classifier = industry.NewStaticClassifier(industry.Table{})
	} else {
		classifier = static
	}

	// Market data: mock feed for local runs, optional live quote stream
	// layered on top.
	mock := market.NewMockProvider()
	var provider market.Provider = mock
	if cfg.UseMockFeed {
		for _, sym := range cfg.Symbols {
			mock.SetFundamental(market.Fundamental{
				Symbol: sym, PB: 0.8, PE: 6, DividendYield: 0.015,
				Price: 10, Volume: 2e8,
			})
			mock.SetQuote(sym, 9.99, 10.01)
			mock.SetVolatility(sym, 0.02)
		}
		feed := &market.MockFeed{
			Bus:      bus,
			Provider: mock,
			Symbols:  cfg.Symbols,
			Interval: time.Second,
		}
		feed.Start(ctx)
		log.Println("mock market feed started")
	}
	if cfg.QuoteStreamURL != "" {
		stream := market.NewStreamProvider(provider, bus, cfg.QuoteStreamURL, cfg.Symbols)
		stream.Start(ctx)
		provider = stream
		log.Printf("live quote stream connected to %s", cfg.QuoteStreamURL)
	}

	// Realized volatility off the tick stream, preferred over whatever
	// the feed reports once enough observations accumulate.
	tracker := indicators.NewTracker(cfg.VolatilityWindow)
	go func() {
		ticks, unsub := bus.Subscribe(events.EventPriceTick, 100)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-ticks:
				if tick, ok := msg.(market.Tick); ok {
					tracker.Update(tick.Symbol, tick.Price)
				}
			}
		}
	}()
	provider = market.WithVolatility(provider, tracker)

	evaluator := risk.NewEvaluator(hist, strat.Limits)
	metrics := monitor.NewAggregator()
	metrics.Collect(ctx, bus)

	// Execution gateway. Only paper trading is wired; refusing to start
	// beats silently simulating.
	if !cfg.Paper {
		log.Fatal("live execution is not configured; set PAPER_TRADING=true")
	}
	gw := gateway.NewPaperGateway(provider, bus, cfg.GatewayRate)
	gw.SlippageBps = cfg.SlippageBps

	batches := engine.NewBatchStore(database)
	if err := batches.Load(ctx); err != nil {
		log.Printf("load batch states: %v", err)
	}

	opt := optimizer.New(hist, provider, strat.Costs, strat.Optimizer)

	eng, err := engine.New(strat.Engine, provider, gw, book, classifier,
		evaluator, hist, batches, opt, strat.Costs, bus)
	if err != nil {
		log.Fatalf("engine init: %v", err)
	}

	// Monitor on its own cadence.
	mon := monitor.New(strat.Monitor, provider, book, evaluator, metrics, bus, database)
	mon.Subscribe(monitor.LogSubscriber{})
	go mon.Run(ctx, time.Duration(cfg.MonitorIntervalSec)*time.Second, cfg.Symbols)

	// Trading-day cadence.
	sched := scheduler.New(ctx, eng, book, provider, metrics, database, cfg.Symbols)
	if cfg.ExecutionEnabled {
		if err := sched.RegisterAll(cfg.CycleCron, cfg.SessionOpenCron, cfg.SessionCloseCron); err != nil {
			log.Fatalf("register schedule: %v", err)
		}
		sched.Start()
		defer sched.Stop()
	} else {
		log.Println("execution disabled, decision cycles will not run")
	}

	// HTTP surface.
	operatorHash := ""
	if cfg.OperatorPassword != "" {
		operatorHash, err = api.HashPassword(cfg.OperatorPassword)
		if err != nil {
			log.Fatalf("hash operator password: %v", err)
		}
	}
	server := api.NewServer(bus, database, book, hist, evaluator, metrics, sched,
		api.SystemMeta{
			Paper:       cfg.Paper,
			Symbols:     cfg.Symbols,
			UseMockFeed: cfg.UseMockFeed,
			Version:     cfg.Version,
		},
		api.HTTPOptions{
			RatePerSec: cfg.APIRateLimit,
			Burst:      cfg.APIRateBurst,
			Timeout:    time.Duration(cfg.APITimeoutSec) * time.Second,
		}, cfg.JWTSecret, operatorHash)

	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("http server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutting down")
	cancel()
	time.Sleep(200 * time.Millisecond)
}

func costsSide(s string) costs.Side {
	if s == string(costs.Sell) {
		return costs.Sell
	}
	return costs.Buy
}
