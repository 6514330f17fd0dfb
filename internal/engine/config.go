package engine

import (
	"fmt"
	"time"
)

// Config holds the strategy thresholds and execution tuning.
type Config struct {
	// Entry screen
	MaxPB     float64 `yaml:"max_pb"`
	MinVolume float64 `yaml:"min_volume"`
	MinYield  float64 `yaml:"min_yield"`
	// Re-entry override: with prior history a buy is allowed only below
	// lastTradePrice * DropThreshold, regardless of fundamentals.
	DropThreshold float64 `yaml:"drop_threshold"`

	// Batch execution
	BatchCount      int     `yaml:"batch_count"`
	TargetPerSymbol float64 `yaml:"target_per_symbol"`
	LotSize         float64 `yaml:"lot_size"`

	// Exit
	HighPEPercentile float64 `yaml:"high_pe_percentile"`
	PELookbackDays   int     `yaml:"pe_lookback_days"`

	// Execution
	FillTimeout time.Duration `yaml:"fill_timeout"`

	// Session-close cash sweep
	SweepSymbol string  `yaml:"sweep_symbol"`
	SweepLot    float64 `yaml:"sweep_lot"`
}

// DefaultConfig returns the standard strategy parameters.
func DefaultConfig() Config {
	return Config{
		MaxPB:            1.0,
		MinVolume:        1e8,
		MinYield:         0.01,
		DropThreshold:    0.5,
		BatchCount:       3,
		TargetPerSymbol:  100000,
		LotSize:          100,
		HighPEPercentile: 0.70,
		PELookbackDays:   250,
		FillTimeout:      10 * time.Second,
		SweepSymbol:      "204001",
		SweepLot:         1000,
	}
}

// sweepLots lists the supported cash-equivalent repo instruments and their
// minimum lot sizes, shortest tenor first.
var sweepLots = map[string]float64{
	"204001": 1000, // 1-day
	"204002": 1000, // 2-day
	"204003": 1000, // 3-day
	"204007": 1000, // 7-day
	"131810": 1000, // Shenzhen 1-day
}

// Validate rejects configurations that cannot run. Called once at startup;
// a failure here is fatal, never retried per cycle.
func (c Config) Validate() error {
	if c.BatchCount <= 0 {
		return fmt.Errorf("engine config: batch_count %d must be positive", c.BatchCount)
	}
	if c.TargetPerSymbol <= 0 {
		return fmt.Errorf("engine config: target_per_symbol %.2f must be positive", c.TargetPerSymbol)
	}
	if c.LotSize <= 0 {
		return fmt.Errorf("engine config: lot_size %.2f must be positive", c.LotSize)
	}
	if c.DropThreshold <= 0 || c.DropThreshold > 1 {
		return fmt.Errorf("engine config: drop_threshold %.2f must be in (0,1]", c.DropThreshold)
	}
	if c.SweepSymbol != "" {
		if _, ok := sweepLots[c.SweepSymbol]; !ok {
			return fmt.Errorf("engine config: unsupported cash-equivalent instrument %q", c.SweepSymbol)
		}
	}
	return nil
}
