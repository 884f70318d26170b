// Package server assembles the StoreSense HTTP and WebSocket surface:
// forecasting, anomaly and risk scoring, KPI summaries, IoT ingestion
// with persistence and live fan-out, plus admin auth endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/storesense/storesense/internal/analytics"
	"github.com/storesense/storesense/internal/audit"
	"github.com/storesense/storesense/internal/config"
	"github.com/storesense/storesense/internal/dataset"
	"github.com/storesense/storesense/internal/db"
	"github.com/storesense/storesense/internal/middleware"
	"github.com/storesense/storesense/internal/ml"
)

// Server runs the StoreSense analytics API.
type Server struct {
	cfg *config.Config
	log *zap.Logger

	// Core components
	dataset *dataset.Store
	models  ml.Predictor
	store   db.Store
	scanner *analytics.Scanner
	hub     *Hub
	audit   audit.Logger
	limiter *middleware.RateLimiter

	// HTTP server
	httpServer *http.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.RWMutex
	running bool
}

// New creates a server from configuration: dataset store (plus change
// watcher), trained model artifacts, SQLite persistence, WebSocket hub
// and audit trail.
func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		cfg:    cfg,
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := srv.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return srv, nil
}

// initializeComponents constructs every dependency in order.
func (s *Server) initializeComponents() error {
	// 1. Dataset store and optional file watcher
	ds, err := dataset.NewStore(s.cfg.Dataset.CSVPath, s.log)
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	s.dataset = ds
	if s.cfg.Dataset.Watch {
		if err := ds.Watch(); err != nil {
			s.log.Warn("dataset watcher unavailable", zap.Error(err))
		}
	}

	// 2. Trained model artifacts
	models, err := ml.Load(s.cfg.Models.Dir)
	if err != nil {
		return fmt.Errorf("failed to load model artifacts: %w", err)
	}
	s.models = models

	// 3. Persistence (runs migrations on open)
	store, err := db.NewSQLiteStore(s.cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.store = store

	// 4. Audit trail
	auditCfg := audit.DefaultConfig()
	auditCfg.EventLogPath = s.cfg.Audit.EventLogPath
	auditCfg.AppLogPath = s.cfg.Audit.AppLogPath
	auditCfg.LogLevel = s.cfg.Logging.Level
	auditLogger, err := audit.NewLogger(auditCfg)
	if err != nil {
		return fmt.Errorf("failed to create audit logger: %w", err)
	}
	s.audit = auditLogger

	// 5. Historical scan, hub, rate limiter
	s.scanner = analytics.NewScanner()
	s.hub = NewHub(s.log)
	s.auditEvictions()
	s.limiter = middleware.NewRateLimiter(s.cfg.RateLimit.PerMinute, s.cfg.RateLimit.Burst)

	return nil
}

// registerRoutes mounts every endpoint on the router.
func (s *Server) registerRoutes(r *mux.Router) {
	// Health and readiness
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)

	// Analytics
	r.HandleFunc("/forecast/", s.handleForecast).Methods(http.MethodGet)
	r.HandleFunc("/anomaly/", s.handleAnomalyScore).Methods(http.MethodPost)
	r.HandleFunc("/anomaly/", s.handleAnomalyScan).Methods(http.MethodGet)
	r.HandleFunc("/cluster/", s.handleCluster).Methods(http.MethodPost)
	r.HandleFunc("/risk/", s.handleRisk).Methods(http.MethodPost)
	r.HandleFunc("/alerts/", s.handleAlerts).Methods(http.MethodPost)
	r.HandleFunc("/alerts/recent", s.handleRecentAlerts).Methods(http.MethodGet)
	r.HandleFunc("/kpi/", s.handleKPI).Methods(http.MethodGet)
	r.HandleFunc("/kpi/series", s.handleKPISeries).Methods(http.MethodGet)
	r.HandleFunc("/stores/", s.handleStores).Methods(http.MethodGet)
	r.HandleFunc("/recommendations/", s.handleRecommendations).Methods(http.MethodGet)

	// IoT ingestion and logs
	r.HandleFunc("/iot/", s.handleIoTIngest).Methods(http.MethodPost)
	r.HandleFunc("/iot/logs", s.handleIoTLogs).Methods(http.MethodGet)

	// WebSocket
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/ws/stats", s.handleWSStats).Methods(http.MethodGet)

	// Auth
	r.HandleFunc("/auth/login", s.handleLoginForm).Methods(http.MethodPost)
	r.HandleFunc("/auth/login/json", s.handleLoginJSON).Methods(http.MethodPost)
	r.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)
	r.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)

	// Prometheus
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
}

// buildHandler wires the middleware chain around the router: recovery
// outermost, then CORS, request logging, metrics, the per-IP rate limit
// and finally the API-key gate when auth is configured.
func (s *Server) buildHandler() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Metrics)
	r.Use(s.limiter.Middleware)
	if s.cfg.AuthEnabled() {
		onFailure := func(req *http.Request, reason string) {
			s.audit.LogAuthFailure(req.Context(), clientAddr(req), reason)
		}
		r.Use(middleware.APIKey(s.cfg.Auth.APIKey, onFailure))
	}
	s.registerRoutes(r)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-API-Key"},
		AllowCredentials: false,
	})

	var h http.Handler = r
	h = middleware.Logging(s.log)(h)
	h = c.Handler(h)
	h = middleware.Recovery(s.log)(h)
	return h
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.buildHandler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info("http server listening", zap.String("addr", s.cfg.Addr()))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server error", zap.Error(err))
		}
	}()

	s.audit.Log(s.ctx, audit.NewEvent(audit.EventServerStarted).
		WithDescription(fmt.Sprintf("listening on %s", s.cfg.Addr())))
	s.log.Info("server started",
		zap.String("dataset", s.cfg.Dataset.CSVPath),
		zap.String("models", s.cfg.Models.Dir),
		zap.String("database", s.cfg.Database.Path),
		zap.Bool("auth", s.cfg.AuthEnabled()))

	return nil
}

// Stop shuts the server down: WebSocket clients first, then the HTTP
// listener (graceful, bounded), then persistence, watcher and logs.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	s.log.Info("stopping server")

	s.hub.Close()

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error("http shutdown error", zap.Error(err))
		}
	}

	s.limiter.Close()

	if err := s.store.Close(); err != nil {
		s.log.Error("database close error", zap.Error(err))
	}
	if err := s.dataset.Close(); err != nil {
		s.log.Error("dataset close error", zap.Error(err))
	}

	s.audit.Log(context.Background(), audit.NewEvent(audit.EventServerShutdown))
	if err := s.audit.Close(); err != nil {
		s.log.Error("audit close error", zap.Error(err))
	}

	s.cancel()
	s.wg.Wait()

	s.log.Info("server stopped")
	return nil
}

// Wait blocks until the server is stopped.
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning reports whether the server is accepting traffic.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
