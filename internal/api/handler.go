package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dividend-core/internal/account"
	"dividend-core/internal/events"
	"dividend-core/internal/history"
	"dividend-core/internal/monitor"
	"dividend-core/internal/risk"
	"dividend-core/pkg/db"
)

// CycleRunner triggers one decision cycle out of band.
type CycleRunner interface {
	RunCycleNow()
}

// Server wires the HTTP surface around the strategy core.
type Server struct {
	Router       *gin.Engine
	Bus          *events.Bus
	DB           *db.Database
	Book         *account.Manager
	History      *history.Store
	Evaluator    *risk.Evaluator
	Metrics      *monitor.Aggregator
	Cycle        CycleRunner
	JWTSecret    string
	OperatorHash string
	Meta         SystemMeta
}

// SystemMeta describes runtime status exposed to operators.
type SystemMeta struct {
	Paper       bool
	Symbols     []string
	UseMockFeed bool
	Version     string
}

func NewServer(bus *events.Bus, database *db.Database, book *account.Manager, hist *history.Store,
	evaluator *risk.Evaluator, metrics *monitor.Aggregator, cycle CycleRunner,
	meta SystemMeta, opts HTTPOptions, jwtSecret, operatorHash string) *Server {
	r := gin.New()
	opts = opts.withDefaults()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(metrics))
	r.Use(RateLimit(newIPLimiters(opts.RatePerSec, opts.Burst)))
	r.Use(Timeout(opts.Timeout))
	r.Use(CORS())

	s := &Server{
		Router:       r,
		Bus:          bus,
		DB:           database,
		Book:         book,
		History:      hist,
		Evaluator:    evaluator,
		Metrics:      metrics,
		Cycle:        cycle,
		JWTSecret:    jwtSecret,
		OperatorHash: operatorHash,
		Meta:         meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.POST("/auth/login", s.login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/positions", s.getPositions)
			protected.GET("/cash", s.getCash)
			protected.GET("/history/:symbol", s.getHistory)
			protected.GET("/trades", s.getTrades)
			protected.GET("/alerts", s.getAlerts)
			protected.GET("/metrics", s.getMetrics)
			protected.GET("/risk", s.getRiskMetrics)
			protected.GET("/nav", s.getNav)

			protected.POST("/cycle/run", s.runCycle)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
