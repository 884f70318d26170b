package server

import (
	"math"
	"net/http"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

func TestHandleKPIStoreOverview(t *testing.T) {
	srv := newTestServer(t, nil)
	rr, body := doJSON(t, srv.buildHandler(), http.MethodGet, "/kpi/?store_id=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// Store 1 ramps 1,100,000 to 1,155,000 in 5,000 steps with holidays
	// on weeks 5 and 11.
	if avg := body["avg_weekly_sales"].(float64); !almostEqual(avg, 1127500) {
		t.Errorf("avg_weekly_sales = %v, want 1127500", avg)
	}
	if max := body["max_sales"].(float64); !almostEqual(max, 1155000) {
		t.Errorf("max_sales = %v, want 1155000", max)
	}
	if min := body["min_sales"].(float64); !almostEqual(min, 1100000) {
		t.Errorf("min_sales = %v, want 1100000", min)
	}
	if holiday := body["holiday_sales_avg"].(float64); !almostEqual(holiday, 1140000) {
		t.Errorf("holiday_sales_avg = %v, want 1140000", holiday)
	}
	if _, ok := body["volatility"].(float64); !ok {
		t.Errorf("volatility missing: %v", body)
	}
}

func TestHandleKPIAllStores(t *testing.T) {
	srv := newTestServer(t, nil)
	rr, body := doJSON(t, srv.buildHandler(), http.MethodGet, "/kpi/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if avg := body["avg_weekly_sales"].(float64); !almostEqual(avg, 1177500) {
		t.Errorf("avg_weekly_sales = %v, want 1177500", avg)
	}
	if max := body["max_sales"].(float64); !almostEqual(max, 1255000) {
		t.Errorf("max_sales = %v, want 1255000", max)
	}
}

func TestHandleKPIUnknownStore(t *testing.T) {
	srv := newTestServer(t, nil)
	rr, body := doJSON(t, srv.buildHandler(), http.MethodGet, "/kpi/?store_id=7", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if body["detail"] != "no data for store 7" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestHandleKPIUnknownDept(t *testing.T) {
	srv := newTestServer(t, nil)
	rr, body := doJSON(t, srv.buildHandler(), http.MethodGet, "/kpi/?dept=9", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if body["detail"] != "no data for the requested selection" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestHandleKPIBadQuery(t *testing.T) {
	srv := newTestServer(t, nil)
	rr, body := doJSON(t, srv.buildHandler(), http.MethodGet, "/kpi/?store_id=first", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if body["detail"] != "store_id must be an integer" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestHandleKPISeries(t *testing.T) {
	srv := newTestServer(t, nil)
	rr, body := doJSON(t, srv.buildHandler(), http.MethodGet, "/kpi/series?store_id=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if latest := body["latest_value"].(float64); !almostEqual(latest, 1155000) {
		t.Errorf("latest_value = %v, want 1155000", latest)
	}
	if body["trend"] != "up" {
		t.Errorf("trend = %v, want up on a rising ramp", body["trend"])
	}
	if mean := body["mean"].(float64); !almostEqual(mean, 1127500) {
		t.Errorf("mean = %v, want 1127500", mean)
	}
	for _, key := range []string{"std_dev", "min", "max", "volatility"} {
		if _, ok := body[key].(float64); !ok {
			t.Errorf("summary missing %s: %v", key, body)
		}
	}
}

func TestHandleKPISeriesUnknownStore(t *testing.T) {
	srv := newTestServer(t, nil)
	rr, body := doJSON(t, srv.buildHandler(), http.MethodGet, "/kpi/series?store_id=12", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if body["detail"] != "no data for store 12" {
		t.Errorf("detail = %v", body["detail"])
	}
}
