package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/storesense/storesense/internal/models"
	"github.com/storesense/storesense/internal/risk"
)

// wsPair upgrades one connection through a throwaway test server and
// returns both ends.
func wsPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()
	connCh := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- conn
	}))
	t.Cleanup(ts.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server side of the pair never arrived")
	}
	t.Cleanup(func() { server.Close() })
	return server, client
}

// waitFor polls a condition until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func readBroadcast(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	return msg
}

// ─── Hub ─────────────────────────────────────────────────────────────────────

func TestHubBroadcastIoTUpdate(t *testing.T) {
	serverConn, clientConn := wsPair(t)

	hub := NewHub(zap.NewNop())
	defer hub.Close()
	if !hub.register(newClient(serverConn)) {
		t.Fatal("register failed on open hub")
	}

	reading := models.IoTReading{
		Store: 3, Dept: 2, WeeklySales: 2400000, Temperature: 81.5, IsHoliday: 1,
	}
	assessment := models.RiskAssessment{
		RiskScore: 70, RiskLevel: risk.LevelHigh, Cluster: 6, Anomaly: -1, AnomalyScore: -0.2,
	}
	if err := hub.BroadcastIoTUpdate(reading, assessment); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	msg := readBroadcast(t, clientConn)
	if msg["type"] != MessageTypeIoTUpdate {
		t.Errorf("type = %v, want %s", msg["type"], MessageTypeIoTUpdate)
	}
	if ts, _ := msg["timestamp"].(string); ts == "" {
		t.Error("missing timestamp")
	} else if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", ts, err)
	}

	data := msg["data"].(map[string]interface{})
	if data["store"] != float64(3) || data["dept"] != float64(2) {
		t.Errorf("data identity = %v", data)
	}
	if data["weekly_sales"] != float64(2400000) || data["is_holiday"] != float64(1) {
		t.Errorf("data payload = %v", data)
	}

	analysis := msg["analysis"].(map[string]interface{})
	if analysis["anomaly_detected"] != true {
		t.Errorf("anomaly_detected = %v, want true", analysis["anomaly_detected"])
	}
	if analysis["risk_level"] != risk.LevelHigh || analysis["risk_score"] != float64(70) {
		t.Errorf("risk fields = %v", analysis)
	}
	if analysis["cluster"] != float64(6) {
		t.Errorf("cluster = %v, want 6", analysis["cluster"])
	}
}

func TestHubBroadcastAlert(t *testing.T) {
	serverConn, clientConn := wsPair(t)

	hub := NewHub(zap.NewNop())
	defer hub.Close()
	hub.register(newClient(serverConn))

	if err := hub.BroadcastAlert(4, 1, risk.AlertIoTHighRisk, 70); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	msg := readBroadcast(t, clientConn)
	if msg["type"] != MessageTypeAlert || msg["priority"] != "HIGH" {
		t.Errorf("header fields = %v / %v", msg["type"], msg["priority"])
	}
	if msg["store"] != float64(4) || msg["dept"] != float64(1) {
		t.Errorf("identity fields = %v / %v", msg["store"], msg["dept"])
	}
	if msg["message"] != risk.AlertIoTHighRisk || msg["risk_score"] != float64(70) {
		t.Errorf("payload fields = %v / %v", msg["message"], msg["risk_score"])
	}
}

func TestHubEvictsUnreachableClient(t *testing.T) {
	deadConn, _ := wsPair(t)
	liveConn, liveClient := wsPair(t)

	hub := NewHub(zap.NewNop())
	defer hub.Close()
	var evicted []string
	hub.onEvict = func(id string) { evicted = append(evicted, id) }

	dead := newClient(deadConn)
	hub.register(dead)
	hub.register(newClient(liveConn))
	deadConn.Close()

	if err := hub.Broadcast(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if hub.ClientCount() != 1 {
		t.Errorf("client count = %d, want 1 after eviction", hub.ClientCount())
	}
	if len(evicted) != 1 || evicted[0] != dead.ID {
		t.Errorf("evicted = %v, want [%s]", evicted, dead.ID)
	}

	// The surviving client still got the message.
	msg := readBroadcast(t, liveClient)
	if msg["type"] != "ping" {
		t.Errorf("surviving client got %v", msg)
	}
}

func TestHubBroadcastWithoutClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()
	if err := hub.Broadcast(map[string]string{"type": "ping"}); err != nil {
		t.Errorf("expected silent no-op, got %v", err)
	}
}

func TestHubCloseRejectsRegistrations(t *testing.T) {
	serverConn, _ := wsPair(t)

	hub := NewHub(zap.NewNop())
	hub.Close()
	if hub.register(newClient(serverConn)) {
		t.Error("register succeeded on closed hub")
	}
	if hub.remove("never-registered") {
		t.Error("remove reported success for an unknown client")
	}
}

func TestHubStats(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	stats := hub.Stats()
	if stats["active_connections"] != 0 {
		t.Errorf("active_connections = %v, want 0", stats["active_connections"])
	}

	serverConn, _ := wsPair(t)
	c := newClient(serverConn)
	hub.register(c)

	stats = hub.Stats()
	if stats["active_connections"] != 1 {
		t.Errorf("active_connections = %v, want 1", stats["active_connections"])
	}
	clients := stats["clients"].([]clientInfo)
	if len(clients) != 1 || clients[0].ClientID != c.ID || clients[0].ConnectedAt == "" {
		t.Errorf("clients = %v", clients)
	}
}

// ─── Endpoint ────────────────────────────────────────────────────────────────

func TestWebSocketEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.buildHandler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, "client registration", func() bool { return srv.hub.ClientCount() == 1 })

	resp, err := http.Get(ts.URL + "/ws/stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	defer resp.Body.Close()
	var stats map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["active_connections"] != float64(1) {
		t.Errorf("active_connections = %v, want 1", stats["active_connections"])
	}
	clients := stats["clients"].([]interface{})
	row := clients[0].(map[string]interface{})
	if row["client_id"] == "" || row["connected_at"] == "" {
		t.Errorf("client row = %v", row)
	}

	// A scored ingest reaches the connected dashboard.
	reading := models.IoTReading{Store: 1, WeeklySales: 1100000}
	if err := srv.hub.BroadcastIoTUpdate(reading, models.RiskAssessment{RiskLevel: risk.LevelLow}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	msg := readBroadcast(t, conn)
	if msg["type"] != MessageTypeIoTUpdate {
		t.Errorf("type = %v", msg["type"])
	}

	conn.Close()
	waitFor(t, "client deregistration", func() bool { return srv.hub.ClientCount() == 0 })
}
