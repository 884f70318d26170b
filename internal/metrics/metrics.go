package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreSense service metrics for production monitoring
var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storesense_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storesense_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
		},
		[]string{"method", "path"},
	)

	// IoT ingest metrics
	IoTIngestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storesense_iot_ingests_total",
			Help: "Total number of IoT sensor ingests",
		},
		[]string{"status"}, // status: accepted/rejected/error
	)

	AnomaliesDetectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storesense_anomalies_detected_total",
			Help: "Total number of anomalies flagged by the isolation forest",
		},
	)

	RiskLevelsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storesense_risk_levels_total",
			Help: "Total number of risk scorings by resulting level",
		},
		[]string{"level"},
	)

	AlertsRaisedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storesense_alerts_raised_total",
			Help: "Total number of high-risk alerts raised",
		},
	)

	// Model metrics
	ModelPredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storesense_model_predictions_total",
			Help: "Total number of model predictions served",
		},
		[]string{"model"}, // model: forecast/anomaly/cluster/risk
	)

	// Dataset cache metrics
	DatasetCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storesense_dataset_cache_hits_total",
			Help: "Total number of time-series cache hits",
		},
	)

	DatasetCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storesense_dataset_cache_misses_total",
			Help: "Total number of time-series cache misses",
		},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storesense_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WebSocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storesense_websocket_messages_total",
			Help: "Total number of WebSocket messages broadcast",
		},
		[]string{"type"}, // type: iot_update/alert
	)

	WebSocketEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storesense_websocket_evictions_total",
			Help: "Total number of clients evicted for slow consumption",
		},
	)

	// Access control metrics
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storesense_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	AuthFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storesense_auth_failures_total",
			Help: "Total number of failed authentication attempts",
		},
	)
)
