package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"dividend-core/internal/account"
	"dividend-core/internal/costs"
	"dividend-core/internal/events"
	"dividend-core/internal/history"
	"dividend-core/internal/monitor"
	"dividend-core/internal/risk"
	"dividend-core/pkg/db"
)

type fakeCycle struct{ ran chan struct{} }

func (f *fakeCycle) RunCycleNow() {
	select {
	case f.ran <- struct{}{}:
	default:
	}
}

const testPassword = "correct horse"

func newTestAPIServer(t *testing.T) (*httptest.Server, *account.Manager, *db.Database, *fakeCycle) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	book := account.NewManager(database, 1_000_000)
	hist := history.NewStore(nil)
	evaluator := risk.NewEvaluator(hist, risk.DefaultLimits())
	cycle := &fakeCycle{ran: make(chan struct{}, 1)}

	hash, err := HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	srv := NewServer(events.NewBus(), database, book, hist, evaluator,
		monitor.NewAggregator(), cycle,
		SystemMeta{Paper: true, Symbols: []string{"600000"}, Version: "test"},
		HTTPOptions{}, "test-secret", hash)

	ts := httptest.NewServer(srv.Router)
	t.Cleanup(ts.Close)
	return ts, book, database, cycle
}

func loginToken(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"operator": "ops",
		"password": testPassword,
	})
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return out.Token
}

func authedGet(t *testing.T, ts *httptest.Server, token, path string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts, _, _, _ := newTestAPIServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts, _, _, _ := newTestAPIServer(t)
	resp, err := http.Get(ts.URL + "/api/positions")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401 without token, got %d", resp.StatusCode)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ts, _, _, _ := newTestAPIServer(t)
	body, _ := json.Marshal(map[string]string{"operator": "ops", "password": "wrong"})
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", resp.StatusCode)
	}
}

func TestPositionsEndpoint(t *testing.T) {
	ts, book, _, _ := newTestAPIServer(t)
	token := loginToken(t, ts)

	cost, _ := costs.DefaultModel().Trade(costs.Buy, 10, 1000)
	if err := book.ApplyFill(context.Background(), "600000", costs.Buy, 10, 1000, cost); err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}

	resp := authedGet(t, ts, token, "/api/positions")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var out struct {
		Positions map[string]account.Position `json:"positions"`
		NAV       float64                     `json:"nav"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Positions["600000"].Qty != 1000 {
		t.Fatalf("want 1000 shares, got %+v", out.Positions)
	}
	if out.NAV <= 0 {
		t.Fatalf("want positive nav, got %f", out.NAV)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	ts, _, database, _ := newTestAPIServer(t)
	token := loginToken(t, ts)

	err := database.InsertAlert(context.Background(), db.AlertRow{
		ID: "a-1", Kind: "PRICE_ANOMALY", Subject: "600000",
		Message: "price moved 6.0%", CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}

	resp := authedGet(t, ts, token, "/api/alerts?limit=10")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var out struct {
		Alerts []db.AlertRow `json:"alerts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Alerts) != 1 || out.Alerts[0].Subject != "600000" {
		t.Fatalf("want the inserted alert, got %+v", out.Alerts)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _, _ := newTestAPIServer(t)
	token := loginToken(t, ts)

	resp := authedGet(t, ts, token, "/api/metrics")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var snap monitor.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Timestamp.IsZero() {
		t.Fatal("snapshot timestamp not set")
	}
}

func TestRiskEndpointServesLimits(t *testing.T) {
	ts, _, database, _ := newTestAPIServer(t)
	token := loginToken(t, ts)

	for i, nav := range []float64{100, 102, 101, 105} {
		err := database.UpsertNav(context.Background(), db.NavPoint{
			Date: time.Now().AddDate(0, 0, i-4).Format("2006-01-02"), NAV: nav,
		})
		if err != nil {
			t.Fatalf("UpsertNav: %v", err)
		}
	}

	resp := authedGet(t, ts, token, "/api/risk")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var out struct {
		Limits      risk.Limits      `json:"limits"`
		Performance risk.RiskMetrics `json:"performance"`
		Samples     int              `json:"samples"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Limits.CooldownDays != 5 {
		t.Fatalf("want default cooldown 5, got %d", out.Limits.CooldownDays)
	}
	if out.Samples != 4 {
		t.Fatalf("want 4 nav samples, got %d", out.Samples)
	}
}

func TestRunCycleEndpoint(t *testing.T) {
	ts, _, _, cycle := newTestAPIServer(t)
	token := loginToken(t, ts)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/cycle/run", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("want 202, got %d", resp.StatusCode)
	}
	select {
	case <-cycle.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle trigger never reached the runner")
	}
}
