package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/storesense/storesense/internal/metrics"
	"github.com/storesense/storesense/internal/models"
)

// WebSocket message types.
const (
	MessageTypeIoTUpdate = "iot_update"
	MessageTypeAlert     = "alert"
)

const (
	// Time allowed to write a message to a peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from a peer.
	pongWait = 60 * time.Second

	// Ping period; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound message size. Clients only send control traffic.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Dashboards connect from arbitrary origins
		return true
	},
}

// Client is one connected WebSocket peer. The mutex serializes writes;
// gorilla connections allow only one concurrent writer.
type Client struct {
	ID          string
	ConnectedAt time.Time

	conn *websocket.Conn
	mu   sync.Mutex
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:          uuid.New().String(),
		ConnectedAt: time.Now().UTC(),
		conn:        conn,
		done:        make(chan struct{}),
	}
}

// send writes one text message under the write deadline.
func (c *Client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// close tears the connection down exactly once.
func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// pingLoop keeps the connection alive until the client goes away.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// readLoop consumes and discards inbound frames so close frames and
// pongs are processed. It returns when the peer disconnects.
func (c *Client) readLoop() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Hub tracks connected WebSocket clients and fans messages out to all
// of them. Broadcasts may run concurrently from any handler goroutine.
type Hub struct {
	log     *zap.Logger
	onEvict func(clientID string)

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:     log,
		clients: make(map[string]*Client),
	}
}

// register adds a client. Closed hubs reject new clients.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.ID] = c
	metrics.WebSocketConnections.Inc()
	return true
}

// remove closes and deletes a client. It reports whether the client was
// still registered, so disconnect and eviction paths do not double count.
func (h *Hub) remove(id string) bool {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	if !ok {
		return false
	}
	c.close()
	metrics.WebSocketConnections.Dec()
	return true
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast marshals the message once and sends it to every client.
// Clients whose send fails are evicted after the pass; a failed peer
// never affects delivery to the others. With no clients it is a no-op.
func (h *Hub) Broadcast(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}

	var failed []string
	for _, c := range targets {
		if err := c.send(data); err != nil {
			h.log.Debug("websocket send failed",
				zap.String("client_id", c.ID), zap.Error(err))
			failed = append(failed, c.ID)
		}
	}

	for _, id := range failed {
		if h.remove(id) {
			metrics.WebSocketEvictionsTotal.Inc()
			h.log.Info("websocket client evicted", zap.String("client_id", id))
			if h.onEvict != nil {
				h.onEvict(id)
			}
		}
	}
	return nil
}

// BroadcastIoTUpdate fans out one scored reading.
func (h *Hub) BroadcastIoTUpdate(reading models.IoTReading, assessment models.RiskAssessment) error {
	metrics.WebSocketMessagesTotal.WithLabelValues(MessageTypeIoTUpdate).Inc()
	return h.Broadcast(map[string]interface{}{
		"type":      MessageTypeIoTUpdate,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"data": map[string]interface{}{
			"store":        reading.Store,
			"dept":         reading.Dept,
			"weekly_sales": reading.WeeklySales,
			"temperature":  reading.Temperature,
			"is_holiday":   reading.IsHoliday,
		},
		"analysis": map[string]interface{}{
			"anomaly_detected": assessment.Anomaly == -1,
			"anomaly_score":    assessment.AnomalyScore,
			"risk_level":       assessment.RiskLevel,
			"risk_score":       assessment.RiskScore,
			"cluster":          assessment.Cluster,
		},
	})
}

// BroadcastAlert fans out one high-priority alert.
func (h *Hub) BroadcastAlert(store, dept int, message string, riskScore int) error {
	metrics.WebSocketMessagesTotal.WithLabelValues(MessageTypeAlert).Inc()
	return h.Broadcast(map[string]interface{}{
		"type":       MessageTypeAlert,
		"priority":   "HIGH",
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"store":      store,
		"dept":       dept,
		"message":    message,
		"risk_score": riskScore,
	})
}

// clientInfo is one row of the stats listing.
type clientInfo struct {
	ClientID    string `json:"client_id"`
	ConnectedAt string `json:"connected_at"`
}

// Stats snapshots the connected clients.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]clientInfo, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, clientInfo{
			ClientID:    c.ID,
			ConnectedAt: c.ConnectedAt.Format(time.RFC3339),
		})
	}
	return map[string]interface{}{
		"active_connections": len(clients),
		"clients":            clients,
	}
}

// Close disconnects every client and rejects future registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.closed = true
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
		metrics.WebSocketConnections.Dec()
	}
}

// handleWebSocket upgrades the connection and serves it until the peer
// disconnects.
//
// GET /ws
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(conn)
	if !s.hub.register(client) {
		conn.Close()
		return
	}
	s.log.Info("websocket client connected",
		zap.String("client_id", client.ID),
		zap.Int("active", s.hub.ClientCount()))

	go client.pingLoop()
	client.readLoop()

	s.hub.remove(client.ID)
	s.log.Info("websocket client disconnected",
		zap.String("client_id", client.ID),
		zap.Int("active", s.hub.ClientCount()))
}

// handleWSStats reports the hub's connection snapshot.
//
// GET /ws/stats
func (s *Server) handleWSStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Stats())
}

// auditEvictions routes hub evictions into the audit trail.
func (s *Server) auditEvictions() {
	s.hub.onEvict = func(clientID string) {
		s.audit.LogClientEvicted(context.Background(), clientID)
	}
}
