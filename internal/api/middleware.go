package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"dividend-core/internal/monitor"
)

// HTTPOptions tunes the middleware stack. Zero values fall back to
// defaults suitable for a single-operator deployment.
type HTTPOptions struct {
	RatePerSec float64       // per-client request rate
	Burst      int           // per-client burst allowance
	Timeout    time.Duration // per-request deadline
}

func (o HTTPOptions) withDefaults() HTTPOptions {
	if o.RatePerSec <= 0 {
		o.RatePerSec = 20
	}
	if o.Burst <= 0 {
		o.Burst = 50
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// ipLimiters hands out one token bucket per client address. Stale entries
// expire individually instead of resetting everyone's budget at once.
type ipLimiters struct {
	mu      sync.Mutex
	rate    rate.Limit
	burst   int
	ttl     time.Duration
	clients map[string]*ipClient
}

type ipClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiters(perSec float64, burst int) *ipLimiters {
	return &ipLimiters{
		rate:    rate.Limit(perSec),
		burst:   burst,
		ttl:     10 * time.Minute,
		clients: make(map[string]*ipClient),
	}
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, ok := l.clients[ip]
	if !ok {
		// New client; drop whoever has gone quiet while we hold the lock.
		for addr, st := range l.clients {
			if now.Sub(st.lastSeen) > l.ttl {
				delete(l.clients, addr)
			}
		}
		c = &ipClient{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

// RateLimit rejects clients that exceed their token bucket.
func RateLimit(limiters *ipLimiters) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiters.get(ip).Allow() {
			log.Printf("api: rate limit exceeded for %s", ip)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":  "RATE_LIMITED",
				"error": "too many requests",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestID tags every request so log lines can be correlated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("RequestID", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// Timeout bounds each request. Handlers receive the deadline through the
// request context; a handler that overruns without writing gets a 408.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{})
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("api: panic in %s %s: %v", c.Request.Method, c.Request.URL.Path, r)
					if !c.Writer.Written() {
						c.JSON(http.StatusInternalServerError, gin.H{
							"code":  "INTERNAL_ERROR",
							"error": "internal server error",
						})
					}
					c.Abort()
				}
				close(done)
			}()
			c.Next()
		}()

		select {
		case <-done:
		case <-ctx.Done():
			log.Printf("api: timeout on %s %s", c.Request.Method, c.Request.URL.Path)
			if !c.Writer.Written() {
				c.JSON(http.StatusRequestTimeout, gin.H{
					"code":  "REQUEST_TIMEOUT",
					"error": "request took too long",
				})
			}
			c.Abort()
		}
	}
}

// CORS allows the status dashboard to call from another origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestLogger records latency and status per request and feeds the
// aggregator's API counters.
func RequestLogger(metrics *monitor.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if metrics != nil {
			metrics.IncrementAPI()
			metrics.APILatency.RecordDuration(latency)
			if status >= 400 {
				metrics.IncrementAPIErrors()
			}
		}

		id := c.GetString("RequestID")
		if len(id) > 8 {
			id = id[:8]
		}
		log.Printf("api: %s %s %s -> %d in %v", id, c.Request.Method, c.Request.URL.Path, status, latency)
	}
}
