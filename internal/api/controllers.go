package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dividend-core/internal/risk"
)

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"paper":         s.Meta.Paper,
		"symbols":       s.Meta.Symbols,
		"use_mock_feed": s.Meta.UseMockFeed,
		"version":       s.Meta.Version,
	})
}

func (s *Server) getPositions(c *gin.Context) {
	positions, err := s.Book.Positions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	nav, cash, positionsValue := s.Book.NAV()
	c.JSON(http.StatusOK, gin.H{
		"positions":       positions,
		"nav":             nav,
		"cash":            cash,
		"positions_value": positionsValue,
	})
}

func (s *Server) getCash(c *gin.Context) {
	cash, err := s.Book.AccountCash(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, cash)
}

// getHistory serves the in-memory trade ledger for one symbol, most recent
// first, plus completed holding periods.
func (s *Server) getHistory(c *gin.Context) {
	symbol := c.Param("symbol")
	records := s.History.History(symbol)
	periods := s.History.HoldingPeriods(symbol)
	c.JSON(http.StatusOK, gin.H{
		"symbol":          symbol,
		"trades":          records,
		"holding_periods": periods,
	})
}

func (s *Server) getTrades(c *gin.Context) {
	if s.DB == nil {
		c.JSON(http.StatusOK, gin.H{"trades": []any{}})
		return
	}
	trades, err := s.DB.ListTrades(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) getAlerts(c *gin.Context) {
	if s.DB == nil {
		c.JSON(http.StatusOK, gin.H{"alerts": []any{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	alerts, err := s.DB.ListAlerts(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":  "METRICS_UNAVAILABLE",
			"error": "metrics aggregator not running",
		})
		return
	}
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

// getRiskMetrics computes performance analytics over the persisted NAV
// series, alongside the configured limits.
func (s *Server) getRiskMetrics(c *gin.Context) {
	resp := gin.H{"limits": s.Evaluator.Limits()}

	if s.DB != nil {
		points, err := s.DB.ListNav(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":  "INTERNAL_ERROR",
				"error": err.Error(),
			})
			return
		}
		nav := make([]risk.NavPoint, len(points))
		for i, p := range points {
			nav[i] = risk.NavPoint{NAV: p.NAV}
		}
		riskFree, _ := strconv.ParseFloat(c.DefaultQuery("risk_free", "0.02"), 64)
		resp["performance"] = risk.ComputeMetrics(nav, nil, riskFree)
		resp["samples"] = len(nav)
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) getNav(c *gin.Context) {
	if s.DB == nil {
		c.JSON(http.StatusOK, gin.H{"nav": []any{}})
		return
	}
	points, err := s.DB.ListNav(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nav": points})
}

// runCycle triggers one out-of-band decision cycle.
func (s *Server) runCycle(c *gin.Context) {
	if s.Cycle == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":  "ENGINE_UNAVAILABLE",
			"error": "decision engine not running",
		})
		return
	}
	go s.Cycle.RunCycleNow()
	c.JSON(http.StatusAccepted, gin.H{"status": "cycle scheduled"})
}
