// Package db persists the analytics trail: live anomaly evaluations,
// cluster assignments, risk scores and raised alerts.
package db

import (
	"context"
	"time"
)

// Store is the persistence interface for the analytics trail.
type Store interface {
	AnomalyLogStore
	ClusterLogStore
	RiskLogStore
	AlertStore

	// SaveIngest writes the rows produced by one IoT reading in a
	// single transaction.
	SaveIngest(ctx context.Context, entry *IngestEntry) error

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// IngestEntry bundles the rows one IoT reading produces. Alert is nil
// when the reading stayed below the HIGH threshold.
type IngestEntry struct {
	Anomaly AnomalyLog
	Cluster ClusterLog
	Risk    RiskLog
	Alert   *Alert
}

// LogQuery filters the log listings. Zero values mean no filter; Level
// applies to risk rows only.
type LogQuery struct {
	Store  int
	Dept   int
	Level  string
	Since  time.Time
	Limit  int
	Offset int
}

// ─── Anomaly logs ─────────────────────────────────────────────────────────────

// AnomalyLog is one live anomaly evaluation. IsAnomaly is 1 when the
// model flagged the reading, else 0.
type AnomalyLog struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Score     float64   `json:"score"`
	IsAnomaly int       `json:"is_anomaly"`
	CreatedAt time.Time `json:"created_at"`
}

// AnomalyLogStore persists anomaly evaluations.
type AnomalyLogStore interface {
	// AppendAnomalyLog writes a single evaluation row.
	AppendAnomalyLog(ctx context.Context, rec *AnomalyLog) error

	// ListAnomalyLogs returns evaluations, newest first.
	ListAnomalyLogs(ctx context.Context, q LogQuery) ([]*AnomalyLog, error)
}

// ─── Cluster logs ─────────────────────────────────────────────────────────────

// ClusterLog is one store/dept cluster assignment. Features holds the
// scored feature record as a JSON blob.
type ClusterLog struct {
	ID        int64     `json:"id"`
	Store     int       `json:"store"`
	Dept      int       `json:"dept"`
	Cluster   int       `json:"cluster"`
	Features  string    `json:"features"`
	CreatedAt time.Time `json:"created_at"`
}

// ClusterLogStore persists cluster assignments.
type ClusterLogStore interface {
	// AppendClusterLog writes a single assignment row.
	AppendClusterLog(ctx context.Context, rec *ClusterLog) error

	// ListClusterLogs returns assignments, newest first.
	ListClusterLogs(ctx context.Context, q LogQuery) ([]*ClusterLog, error)
}

// ─── Risk logs ────────────────────────────────────────────────────────────────

// RiskLog is one combined risk evaluation.
type RiskLog struct {
	ID        int64     `json:"id"`
	Store     int       `json:"store"`
	Dept      int       `json:"dept"`
	RiskScore int       `json:"risk_score"`
	RiskLevel string    `json:"risk_level"`
	Anomaly   int       `json:"anomaly"`
	Cluster   int       `json:"cluster"`
	CreatedAt time.Time `json:"created_at"`
}

// RiskLogStore persists risk evaluations.
type RiskLogStore interface {
	// AppendRiskLog writes a single evaluation row.
	AppendRiskLog(ctx context.Context, rec *RiskLog) error

	// ListRiskLogs returns evaluations, newest first.
	ListRiskLogs(ctx context.Context, q LogQuery) ([]*RiskLog, error)
}

// ─── Alerts ───────────────────────────────────────────────────────────────────

// Alert is a raised high-risk alert.
type Alert struct {
	ID        int64     `json:"id"`
	Store     int       `json:"store"`
	Dept      int       `json:"dept"`
	Message   string    `json:"message"`
	RiskScore int       `json:"risk_score"`
	CreatedAt time.Time `json:"created_at"`
}

// AlertStore persists raised alerts.
type AlertStore interface {
	// AppendAlert writes a single alert row.
	AppendAlert(ctx context.Context, rec *Alert) error

	// ListAlerts returns the most recent alerts, newest first.
	ListAlerts(ctx context.Context, limit int) ([]*Alert, error)
}
