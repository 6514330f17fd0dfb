package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"dividend-core/internal/costs"
	"dividend-core/internal/engine"
	"dividend-core/internal/monitor"
	"dividend-core/internal/optimizer"
	"dividend-core/internal/risk"
)

// strategyDoc is the on-disk yaml layout. Durations are plain seconds so
// the file stays editable without Go duration syntax.
type strategyDoc struct {
	Engine struct {
		MaxPB            *float64 `yaml:"max_pb"`
		MinVolume        *float64 `yaml:"min_volume"`
		MinYield         *float64 `yaml:"min_yield"`
		DropThreshold    *float64 `yaml:"drop_threshold"`
		BatchCount       *int     `yaml:"batch_count"`
		TargetPerSymbol  *float64 `yaml:"target_per_symbol"`
		LotSize          *float64 `yaml:"lot_size"`
		HighPEPercentile *float64 `yaml:"high_pe_percentile"`
		PELookbackDays   *int     `yaml:"pe_lookback_days"`
		FillTimeoutSec   *int     `yaml:"fill_timeout_sec"`
		SweepSymbol      *string  `yaml:"sweep_symbol"`
		SweepLot         *float64 `yaml:"sweep_lot"`
	} `yaml:"engine"`
	Limits    *risk.Limits      `yaml:"limits"`
	Optimizer *optimizer.Config `yaml:"optimizer"`
	Costs     *costs.Model      `yaml:"costs"`
	Monitor   struct {
		PriceDelta       *float64 `yaml:"price_delta"`
		VolumeRatio      *float64 `yaml:"volume_ratio"`
		VolatilityDelta  *float64 `yaml:"volatility_delta"`
		MinAPISuccess    *float64 `yaml:"min_api_success"`
		AlertIntervalSec *int     `yaml:"alert_interval_sec"`
		MaxAlertsPerHr   *int     `yaml:"max_alerts_per_hr"`
	} `yaml:"monitor"`
}

// Strategy bundles the tunable parameter sets, defaulted and optionally
// overridden from a yaml file.
type Strategy struct {
	Engine    engine.Config
	Limits    risk.Limits
	Optimizer optimizer.Config
	Costs     costs.Model
	Monitor   monitor.Config
}

// LoadStrategy returns defaults overridden by the yaml file at path. A
// missing file is not an error; a malformed one is.
func LoadStrategy(path string) (*Strategy, error) {
	s := &Strategy{
		Engine:    engine.DefaultConfig(),
		Limits:    risk.DefaultLimits(),
		Optimizer: optimizer.DefaultConfig(),
		Costs:     costs.DefaultModel(),
		Monitor:   monitor.DefaultConfig(),
	}
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: strategy file %s not found, using defaults", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read strategy file: %w", err)
	}

	// Point the sub-documents at the defaults so a partial file only
	// overrides the keys it names.
	var doc strategyDoc
	doc.Limits = &s.Limits
	doc.Optimizer = &s.Optimizer
	doc.Costs = &s.Costs
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse strategy file: %w", err)
	}

	e := doc.Engine
	setF(&s.Engine.MaxPB, e.MaxPB)
	setF(&s.Engine.MinVolume, e.MinVolume)
	setF(&s.Engine.MinYield, e.MinYield)
	setF(&s.Engine.DropThreshold, e.DropThreshold)
	setI(&s.Engine.BatchCount, e.BatchCount)
	setF(&s.Engine.TargetPerSymbol, e.TargetPerSymbol)
	setF(&s.Engine.LotSize, e.LotSize)
	setF(&s.Engine.HighPEPercentile, e.HighPEPercentile)
	setI(&s.Engine.PELookbackDays, e.PELookbackDays)
	if e.FillTimeoutSec != nil {
		s.Engine.FillTimeout = time.Duration(*e.FillTimeoutSec) * time.Second
	}
	if e.SweepSymbol != nil {
		s.Engine.SweepSymbol = *e.SweepSymbol
	}
	setF(&s.Engine.SweepLot, e.SweepLot)

	m := doc.Monitor
	setF(&s.Monitor.PriceDelta, m.PriceDelta)
	setF(&s.Monitor.VolumeRatio, m.VolumeRatio)
	setF(&s.Monitor.VolatilityDelta, m.VolatilityDelta)
	setF(&s.Monitor.MinAPISuccess, m.MinAPISuccess)
	if m.AlertIntervalSec != nil {
		s.Monitor.AlertInterval = time.Duration(*m.AlertIntervalSec) * time.Second
	}
	setI(&s.Monitor.MaxAlertsPerHr, m.MaxAlertsPerHr)

	return s, nil
}

func setF(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setI(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
