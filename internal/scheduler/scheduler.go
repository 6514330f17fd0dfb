package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"dividend-core/internal/account"
	"dividend-core/internal/engine"
	"dividend-core/internal/market"
	"dividend-core/internal/monitor"
	"dividend-core/pkg/db"
)

// Scheduler owns the trading-day cadence: decision cycles during the
// session, settlement at open, sweep and NAV bookkeeping at close.
type Scheduler struct {
	Cron    *cron.Cron
	Engine  *engine.Engine
	Book    *account.Manager
	Market  market.Provider
	Metrics *monitor.Aggregator
	DB      *db.Database
	Symbols []string
	Ctx     context.Context
}

// New creates a scheduler with second-resolution cron specs.
func New(ctx context.Context, eng *engine.Engine, book *account.Manager, mkt market.Provider,
	metrics *monitor.Aggregator, database *db.Database, symbols []string) *Scheduler {
	return &Scheduler{
		Cron:    cron.New(cron.WithSeconds()),
		Engine:  eng,
		Book:    book,
		Market:  mkt,
		Metrics: metrics,
		DB:      database,
		Symbols: symbols,
		Ctx:     ctx,
	}
}

// RegisterAll installs the cycle, session-open and session-close tasks.
func (s *Scheduler) RegisterAll(cycleCron, openCron, closeCron string) error {
	if _, err := s.Cron.AddFunc(cycleCron, s.cycleTask); err != nil {
		return fmt.Errorf("register cycle task: %w", err)
	}
	if _, err := s.Cron.AddFunc(openCron, s.sessionOpenTask); err != nil {
		return fmt.Errorf("register session-open task: %w", err)
	}
	if _, err := s.Cron.AddFunc(closeCron, s.sessionCloseTask); err != nil {
		return fmt.Errorf("register session-close task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("scheduler stopped")
}

// RunCycleNow executes one decision cycle immediately (manual trigger).
func (s *Scheduler) RunCycleNow() {
	s.cycleTask()
}

func (s *Scheduler) cycleTask() {
	var timer *monitor.Timer
	if s.Metrics != nil {
		timer = monitor.NewTimer(s.Metrics.CycleLatency)
	}
	if err := s.Engine.RunCycle(s.Ctx, s.Symbols); err != nil {
		log.Printf("scheduler: decision cycle: %v", err)
		if s.Metrics != nil {
			s.Metrics.IncrementErrors()
		}
	}
	if timer != nil {
		timer.Stop()
	}
	s.markPositions()
}

func (s *Scheduler) sessionOpenTask() {
	log.Println("scheduler: session open, settling pending shares")
	s.Book.SettlePending(s.Ctx)
	if err := s.Engine.RedeemSweep(s.Ctx); err != nil {
		log.Printf("scheduler: sweep redemption: %v", err)
	}
	s.markPositions()
}

func (s *Scheduler) sessionCloseTask() {
	log.Println("scheduler: session close")
	if err := s.Engine.SweepIdleCash(s.Ctx); err != nil {
		log.Printf("scheduler: idle cash sweep: %v", err)
	}
	s.markPositions()
	s.recordNAV()
}

// markPositions refreshes position market values from current prices and
// republishes the NAV gauge.
func (s *Scheduler) markPositions() {
	positions, err := s.Book.Positions(s.Ctx)
	if err != nil {
		log.Printf("scheduler: mark positions: %v", err)
		return
	}
	prices := make(map[string]float64, len(positions))
	for sym := range positions {
		px, err := s.Market.CurrentPrice(s.Ctx, sym)
		if err != nil {
			continue
		}
		prices[sym] = px
	}
	s.Book.MarkPrices(prices)

	nav, _, _ := s.Book.NAV()
	monitor.SetNAVMetric(nav)
}

// recordNAV appends today's net asset value to the history used by the
// performance analytics.
func (s *Scheduler) recordNAV() {
	if s.DB == nil {
		return
	}
	nav, cash, positionsValue := s.Book.NAV()
	point := db.NavPoint{
		Date:           time.Now().Format("2006-01-02"),
		NAV:            nav,
		Cash:           cash,
		PositionsValue: positionsValue,
	}
	if err := s.DB.UpsertNav(s.Ctx, point); err != nil {
		log.Printf("scheduler: record nav: %v", err)
		return
	}
	log.Printf("scheduler: nav recorded %.2f (cash %.2f, positions %.2f)", nav, cash, positionsValue)
}
