package industry

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"dividend-core/internal/market"
)

// Classifier resolves industry membership and valuation references.
type Classifier interface {
	IndustryOf(symbol string) (string, error)
	AveragePB(industryCode string) (float64, error)
	PEHistoryPercentile(symbol string, lookbackDays int) (float64, error)
}

// Table is the yaml document backing StaticClassifier.
type Table struct {
	Symbols    map[string]string    `yaml:"symbols"`     // symbol -> industry code
	AveragePBs map[string]float64   `yaml:"average_pbs"` // industry code -> avg PB
	PEHistory  map[string][]float64 `yaml:"pe_history"`  // symbol -> historical PE values, oldest first
}

// StaticClassifier serves classification from a fixed table. PE history is
// held per symbol; the percentile rank of the latest value is computed on
// demand over the lookback window.
type StaticClassifier struct {
	mu    sync.RWMutex
	table Table
}

// NewStaticClassifier wraps an in-memory table.
func NewStaticClassifier(table Table) *StaticClassifier {
	return &StaticClassifier{table: table}
}

// LoadClassifier reads a Table from a yaml file.
func LoadClassifier(path string) (*StaticClassifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read industry table: %w", err)
	}
	var table Table
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse industry table: %w", err)
	}
	return NewStaticClassifier(table), nil
}

func (c *StaticClassifier) IndustryOf(symbol string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	code, ok := c.table.Symbols[symbol]
	if !ok {
		return "", fmt.Errorf("industry of %s: %w", symbol, market.ErrDataUnavailable)
	}
	return code, nil
}

func (c *StaticClassifier) AveragePB(industryCode string) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pb, ok := c.table.AveragePBs[industryCode]
	if !ok {
		return 0, fmt.Errorf("average pb of %s: %w", industryCode, market.ErrDataUnavailable)
	}
	return pb, nil
}

// PEHistoryPercentile returns the fraction of lookback observations at or
// below the most recent PE, in [0,1].
func (c *StaticClassifier) PEHistoryPercentile(symbol string, lookbackDays int) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hist, ok := c.table.PEHistory[symbol]
	if !ok || len(hist) == 0 {
		return 0, fmt.Errorf("pe history of %s: %w", symbol, market.ErrDataUnavailable)
	}
	if lookbackDays > 0 && len(hist) > lookbackDays {
		hist = hist[len(hist)-lookbackDays:]
	}

	current := hist[len(hist)-1]
	atOrBelow := sort.SearchFloat64s(sortedCopy(hist), current+1e-12)
	return float64(atOrBelow) / float64(len(hist)), nil
}

// AppendPE records a new PE observation for a symbol.
func (c *StaticClassifier) AppendPE(symbol string, pe float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.table.PEHistory == nil {
		c.table.PEHistory = make(map[string][]float64)
	}
	c.table.PEHistory[symbol] = append(c.table.PEHistory[symbol], pe)
}

func sortedCopy(in []float64) []float64 {
	out := make([]float64, len(in))
	copy(out, in)
	sort.Float64s(out)
	return out
}
