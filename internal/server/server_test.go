package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/storesense/storesense/internal/analytics"
	"github.com/storesense/storesense/internal/audit"
	"github.com/storesense/storesense/internal/config"
	"github.com/storesense/storesense/internal/dataset"
	"github.com/storesense/storesense/internal/db"
	"github.com/storesense/storesense/internal/middleware"
	"github.com/storesense/storesense/internal/models"
)

// ─── Helpers ─────────────────────────────────────────────────────────────────

// stubPredictor satisfies ml.Predictor with canned outputs.
type stubPredictor struct {
	anomalyFlag  int
	anomalyScore float64
	cluster      int
	forecastErr  error
	anomalyErr   error
	clusterErr   error
}

func (p *stubPredictor) Forecast(series []models.Point, periods int) ([]models.ForecastPoint, error) {
	if p.forecastErr != nil {
		return nil, p.forecastErr
	}
	last := series[len(series)-1].Timestamp
	out := make([]models.ForecastPoint, periods)
	for i := range out {
		out[i] = models.ForecastPoint{
			Timestamp: last.AddDate(0, 0, 7*(i+1)),
			Forecast:  1000000 + float64(i)*1000,
		}
	}
	return out, nil
}

func (p *stubPredictor) DetectAnomaly(rec models.FeatureRecord) (models.AnomalyResult, error) {
	if p.anomalyErr != nil {
		return models.AnomalyResult{}, p.anomalyErr
	}
	flag := p.anomalyFlag
	if flag == 0 {
		flag = 1
	}
	return models.AnomalyResult{Flag: flag, Score: p.anomalyScore}, nil
}

func (p *stubPredictor) Cluster(rec models.FeatureRecord) (int, error) {
	if p.clusterErr != nil {
		return 0, p.clusterErr
	}
	return p.cluster, nil
}

// writeSalesCSV writes a small two-store weekly dataset and returns its
// path. Each store gets twelve consecutive weeks.
func writeSalesCSV(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Store,Dept,Date,Weekly_Sales,Temperature,Fuel_Price,CPI,Unemployment,IsHoliday\n")
	start := time.Date(2012, 1, 6, 0, 0, 0, 0, time.UTC)
	for store := 1; store <= 2; store++ {
		for week := 0; week < 12; week++ {
			date := start.AddDate(0, 0, 7*week)
			sales := 1000000.0 + float64(store)*100000 + float64(week)*5000
			holiday := 0
			if week%6 == 5 {
				holiday = 1
			}
			fmt.Fprintf(&b, "%d,1,%s,%.2f,42.5,3.1,211.5,7.8,%d\n",
				store, date.Format("2006-01-02"), sales, holiday)
		}
	}
	path := filepath.Join(t.TempDir(), "sales.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

// newTestServer builds a Server over a temp dataset, an in-memory
// database and a stub predictor.
func newTestServer(t *testing.T, predictor *stubPredictor) *Server {
	t.Helper()
	if predictor == nil {
		predictor = &stubPredictor{}
	}

	logger := zap.NewNop()
	cfg := config.DefaultConfig()
	cfg.Dataset.CSVPath = writeSalesCSV(t)
	cfg.Database.Path = ":memory:"

	ds, err := dataset.NewStore(cfg.Dataset.CSVPath, logger)
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	store, err := db.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("db: %v", err)
	}

	tmp := t.TempDir()
	auditCfg := audit.DefaultConfig()
	auditCfg.EventLogPath = filepath.Join(tmp, "events.log")
	auditCfg.AppLogPath = filepath.Join(tmp, "app.log")
	auditLogger, err := audit.NewLogger(auditCfg)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		cfg:     cfg,
		log:     logger,
		dataset: ds,
		models:  predictor,
		store:   store,
		scanner: analytics.NewScanner(),
		hub:     NewHub(logger),
		audit:   auditLogger,
		limiter: middleware.NewRateLimiter(10000, 10000),
		ctx:     ctx,
		cancel:  cancel,
	}
	srv.auditEvictions()

	t.Cleanup(func() {
		srv.hub.Close()
		srv.limiter.Close()
		store.Close()
		ds.Close()
		auditLogger.Close()
		cancel()
	})
	return srv
}

// doJSON performs a request against the full handler chain and decodes
// the JSON response body.
func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var decoded map[string]interface{}
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
			// Array bodies are decoded by the caller
			decoded = nil
		}
	}
	return rr, decoded
}

// ─── Health and readiness ─────────────────────────────────────────────────────

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	rr, body := doJSON(t, srv.buildHandler(), http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestHandleReady(t *testing.T) {
	srv := newTestServer(t, nil)
	rr, body := doJSON(t, srv.buildHandler(), http.MethodGet, "/ready", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rr.Code, body)
	}
	components, ok := body["components"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected components map, got %v", body)
	}
	for _, name := range []string{"dataset", "models", "database"} {
		if components[name] != "ok" {
			t.Errorf("component %s = %v, want ok", name, components[name])
		}
	}
}

func TestHandleReadyDegraded(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.cfg.Dataset.CSVPath = "/nonexistent/sales.csv"
	ds, err := dataset.NewStore(srv.cfg.Dataset.CSVPath, zap.NewNop())
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	srv.dataset = ds

	rr, body := doJSON(t, srv.buildHandler(), http.MethodGet, "/ready", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if body["status"] != "unavailable" {
		t.Errorf("expected status unavailable, got %v", body["status"])
	}
	components := body["components"].(map[string]interface{})
	if components["dataset"] == "ok" {
		t.Error("expected dataset component to report the failure")
	}
	if components["database"] != "ok" {
		t.Errorf("database component = %v, want ok", components["database"])
	}
}

// ─── Stores ──────────────────────────────────────────────────────────────────

func TestHandleStores(t *testing.T) {
	srv := newTestServer(t, nil)
	rr, body := doJSON(t, srv.buildHandler(), http.MethodGet, "/stores/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body["count"] != float64(2) {
		t.Errorf("expected count 2, got %v", body["count"])
	}
	stores, ok := body["stores"].([]interface{})
	if !ok || len(stores) != 2 {
		t.Fatalf("expected two stores, got %v", body["stores"])
	}
	if stores[0] != float64(1) || stores[1] != float64(2) {
		t.Errorf("expected sorted ids [1 2], got %v", stores)
	}
}

// ─── Routing and error shape ─────────────────────────────────────────────────

func TestUnknownRouteDetailBody(t *testing.T) {
	srv := newTestServer(t, nil)
	rr, body := doJSON(t, srv.buildHandler(), http.MethodGet, "/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if body["detail"] != "Not Found" {
		t.Errorf("expected detail body, got %v", body)
	}
}

func TestMethodNotAllowedDetailBody(t *testing.T) {
	srv := newTestServer(t, nil)
	rr, body := doJSON(t, srv.buildHandler(), http.MethodDelete, "/forecast/", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if body["detail"] != "Method Not Allowed" {
		t.Errorf("expected detail body, got %v", body)
	}
}

func TestAPIKeyGateWiredWhenConfigured(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.cfg.Auth.APIKey = "gate-key"

	h := srv.buildHandler()

	rr, body := doJSON(t, h, http.MethodGet, "/stores/", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rr.Code)
	}
	if detail, _ := body["detail"].(string); !strings.Contains(detail, "API key required") {
		t.Errorf("unexpected detail: %v", body)
	}

	req := httptest.NewRequest(http.MethodGet, "/stores/", nil)
	req.Header.Set("X-API-Key", "gate-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rec.Code)
	}

	// Health stays reachable for probes
	rr, _ = doJSON(t, h, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected exempt /health to return 200, got %d", rr.Code)
	}
}

func TestCORSHeadersPresent(t *testing.T) {
	srv := newTestServer(t, nil)
	h := srv.buildHandler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://dashboard.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestRecoveryGuardsPanickingRoute(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.models = &panicPredictor{}

	rr, body := doJSON(t, srv.buildHandler(), http.MethodPost, "/anomaly/", `{"Weekly_Sales":1}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if body["detail"] != "Internal server error" {
		t.Errorf("expected recovery detail body, got %v", body)
	}
}

type panicPredictor struct{}

func (p *panicPredictor) Forecast([]models.Point, int) ([]models.ForecastPoint, error) {
	panic("forecast")
}
func (p *panicPredictor) DetectAnomaly(models.FeatureRecord) (models.AnomalyResult, error) {
	panic("anomaly")
}
func (p *panicPredictor) Cluster(models.FeatureRecord) (int, error) { panic("cluster") }

// ─── Lifecycle ───────────────────────────────────────────────────────────────

func TestServerLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.cfg.Server.Host = "127.0.0.1"
	srv.cfg.Server.Port = 0

	if srv.IsRunning() {
		t.Fatal("new server reports running")
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !srv.IsRunning() {
		t.Error("started server does not report running")
	}
	if err := srv.Start(); err == nil {
		t.Error("expected error starting a running server")
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if srv.IsRunning() {
		t.Error("stopped server still reports running")
	}
	if err := srv.Stop(); err == nil {
		t.Error("expected error stopping a stopped server")
	}
}
