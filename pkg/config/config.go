package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the strategy core.
type Config struct {
	Port string

	// Universe
	Symbols     []string
	UseMockFeed bool

	// Market data stream (optional websocket quote feed)
	QuoteStreamURL string

	// Execution
	Paper            bool
	InitialCash      float64
	SlippageBps      float64
	GatewayRate      float64 // orders per second on the paper gateway
	ExecutionEnabled bool

	// Cadence (cron specs with seconds)
	CycleCron          string
	SessionOpenCron    string
	SessionCloseCron   string
	MonitorIntervalSec int
	VolatilityWindow   int // price observations per symbol for realized vol

	// Files
	DBPath        string
	StrategyPath  string
	IndustryPath  string

	// HTTP surface
	APIRateLimit  float64
	APIRateBurst  int
	APITimeoutSec int

	// Auth
	JWTSecret        string
	OperatorPassword string // hashed at startup when set

	Version string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/dividend.db")
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Symbols:            splitAndTrim(getEnv("SYMBOLS", "600000,600036,601088,601988")),
		UseMockFeed:        getEnv("USE_MOCK_FEED", "true") == "true",
		QuoteStreamURL:     getEnv("QUOTE_STREAM_URL", ""),
		Paper:              getEnv("PAPER_TRADING", "true") == "true",
		InitialCash:        getEnvFloat("INITIAL_CASH", 1_000_000),
		SlippageBps:        getEnvFloat("SLIPPAGE_BPS", 2),
		GatewayRate:        getEnvFloat("GATEWAY_RATE", 5),
		ExecutionEnabled:   getEnv("EXECUTION_ENABLED", "true") == "true",
		CycleCron:          getEnv("CYCLE_CRON", "0 */5 9-14 * * 1-5"),
		SessionOpenCron:    getEnv("SESSION_OPEN_CRON", "0 30 9 * * 1-5"),
		SessionCloseCron:   getEnv("SESSION_CLOSE_CRON", "0 55 14 * * 1-5"),
		MonitorIntervalSec: getEnvInt("MONITOR_INTERVAL_SEC", 5),
		VolatilityWindow:   getEnvInt("VOLATILITY_WINDOW", 120),
		DBPath:             dbPath,
		StrategyPath:       getEnv("STRATEGY_PATH", "./config/strategy.yaml"),
		IndustryPath:       getEnv("INDUSTRY_PATH", "./config/industries.yaml"),
		APIRateLimit:       getEnvFloat("API_RATE_LIMIT", 20),
		APIRateBurst:       getEnvInt("API_RATE_BURST", 50),
		APITimeoutSec:      getEnvInt("API_TIMEOUT_SEC", 30),
		JWTSecret:          getEnv("JWT_SECRET", "dev-secret"),
		OperatorPassword:   os.Getenv("OPERATOR_PASSWORD"),
		Version:            getEnv("VERSION", "dev"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
