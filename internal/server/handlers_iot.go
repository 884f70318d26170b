package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/storesense/storesense/internal/db"
	"github.com/storesense/storesense/internal/metrics"
	"github.com/storesense/storesense/internal/models"
	"github.com/storesense/storesense/internal/risk"
)

// defaultLogLimit bounds log listings when the caller does not ask for
// a specific page size.
const defaultLogLimit = 50

// readingTimestampLayouts are the accepted formats for the optional
// reading timestamp, tried in order.
var readingTimestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseReadingTimestamp resolves the reading's own timestamp, stamping
// receipt time when the producer sent none.
func parseReadingTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Now().UTC(), true
	}
	for _, layout := range readingTimestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// handleIoTIngest accepts one store reading, scores it through the full
// model chain, persists the analytics trail in one transaction and fans
// the outcome out to WebSocket clients. Broadcast failures never fail
// the request; by then the data is committed.
//
// POST /iot/
func (s *Server) handleIoTIngest(w http.ResponseWriter, r *http.Request) {
	var reading models.IoTReading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		s.rejectIngest(w, r, "invalid request body")
		return
	}
	if reading.Store < 1 {
		s.rejectIngest(w, r, "store must be a positive integer")
		return
	}
	if reading.Dept < 0 {
		s.rejectIngest(w, r, "dept must not be negative")
		return
	}
	ts, ok := parseReadingTimestamp(reading.Timestamp)
	if !ok {
		s.rejectIngest(w, r, "timestamp format not recognized")
		return
	}

	// Score before any write; a failed evaluation leaves no trace.
	rec := reading.FeatureRecord()
	anomaly, err := s.models.DetectAnomaly(rec)
	if err != nil {
		s.log.Error("anomaly detection failed", zap.Error(err))
		metrics.IoTIngestsTotal.WithLabelValues("error").Inc()
		writeDetail(w, http.StatusInternalServerError, "anomaly detection failed")
		return
	}
	cluster, err := s.models.Cluster(rec)
	if err != nil {
		s.log.Error("clustering failed", zap.Error(err))
		metrics.IoTIngestsTotal.WithLabelValues("error").Inc()
		writeDetail(w, http.StatusInternalServerError, "clustering failed")
		return
	}
	assessment := risk.Assess(anomaly, cluster)

	features, err := json.Marshal(reading)
	if err != nil {
		s.log.Error("feature serialization failed", zap.Error(err))
		metrics.IoTIngestsTotal.WithLabelValues("error").Inc()
		writeDetail(w, http.StatusInternalServerError, "feature serialization failed")
		return
	}

	entry := &db.IngestEntry{
		Anomaly: db.AnomalyLog{
			Timestamp: ts,
			Value:     reading.WeeklySales,
			Score:     anomaly.Score,
			IsAnomaly: boolToInt(anomaly.Flag == risk.AnomalyDetected),
		},
		Cluster: db.ClusterLog{
			Store:    reading.Store,
			Dept:     reading.Dept,
			Cluster:  cluster,
			Features: string(features),
		},
		Risk: db.RiskLog{
			Store:     reading.Store,
			Dept:      reading.Dept,
			RiskScore: assessment.RiskScore,
			RiskLevel: assessment.RiskLevel,
			Anomaly:   anomaly.Flag,
			Cluster:   cluster,
		},
	}
	if assessment.RiskLevel == risk.LevelHigh {
		entry.Alert = &db.Alert{
			Store:     reading.Store,
			Dept:      reading.Dept,
			Message:   risk.AlertIoTHighRisk,
			RiskScore: assessment.RiskScore,
		}
	}

	if err := s.store.SaveIngest(r.Context(), entry); err != nil {
		s.log.Error("ingest persistence failed", zap.Error(err))
		metrics.IoTIngestsTotal.WithLabelValues("error").Inc()
		writeDetail(w, http.StatusInternalServerError, "failed to persist reading")
		return
	}

	metrics.IoTIngestsTotal.WithLabelValues("accepted").Inc()
	metrics.RiskLevelsTotal.WithLabelValues(assessment.RiskLevel).Inc()
	if anomaly.Flag == risk.AnomalyDetected {
		metrics.AnomaliesDetectedTotal.Inc()
	}
	s.audit.LogIngestAccepted(r.Context(), reading.Store, reading.Dept,
		assessment.RiskLevel, float64(assessment.RiskScore), anomaly.Flag == risk.AnomalyDetected)

	// The transaction is committed; fan-out is best effort from here.
	if err := s.hub.BroadcastIoTUpdate(reading, assessment); err != nil {
		s.log.Error("iot update broadcast failed", zap.Error(err))
	}
	if assessment.RiskLevel == risk.LevelHigh {
		metrics.AlertsRaisedTotal.Inc()
		s.audit.LogAlertRaised(r.Context(), reading.Store, reading.Dept,
			risk.AlertIoTHighRisk, float64(assessment.RiskScore))
		if err := s.hub.BroadcastAlert(reading.Store, reading.Dept,
			risk.AlertIoTHighRisk, assessment.RiskScore); err != nil {
			s.log.Error("alert broadcast failed", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "success",
		"anomaly":       anomaly.Flag,
		"anomaly_score": anomaly.Score,
		"cluster":       cluster,
		"risk_level":    assessment.RiskLevel,
		"risk_score":    assessment.RiskScore,
	})
}

// rejectIngest records and answers a validation failure.
func (s *Server) rejectIngest(w http.ResponseWriter, r *http.Request, reason string) {
	metrics.IoTIngestsTotal.WithLabelValues("rejected").Inc()
	s.audit.LogIngestRejected(r.Context(), 0, 0, reason)
	writeDetail(w, http.StatusUnprocessableEntity, reason)
}

// handleIoTLogs lists the persisted analytics trail by record type.
//
// GET /iot/logs?type=&store_id=&limit=
func (s *Server) handleIoTLogs(w http.ResponseWriter, r *http.Request) {
	logType := r.URL.Query().Get("type")
	if logType == "" {
		logType = "risk"
	}

	storeID, err := queryInt(r, "store_id")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeDetail(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
			return
		}
		limit = v
	}

	q := db.LogQuery{Limit: limit}
	if storeID != nil {
		q.Store = *storeID
	}

	var (
		logs  interface{}
		count int
	)
	switch logType {
	case "anomaly":
		rows, err := s.store.ListAnomalyLogs(r.Context(), q)
		if err != nil {
			s.log.Error("anomaly log listing failed", zap.Error(err))
			writeDetail(w, http.StatusInternalServerError, "failed to list logs")
			return
		}
		logs, count = rows, len(rows)
	case "cluster":
		rows, err := s.store.ListClusterLogs(r.Context(), q)
		if err != nil {
			s.log.Error("cluster log listing failed", zap.Error(err))
			writeDetail(w, http.StatusInternalServerError, "failed to list logs")
			return
		}
		logs, count = rows, len(rows)
	case "risk":
		rows, err := s.store.ListRiskLogs(r.Context(), q)
		if err != nil {
			s.log.Error("risk log listing failed", zap.Error(err))
			writeDetail(w, http.StatusInternalServerError, "failed to list logs")
			return
		}
		logs, count = rows, len(rows)
	default:
		writeDetail(w, http.StatusUnprocessableEntity, "type must be one of: anomaly, cluster, risk")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"type":  logType,
		"logs":  logs,
		"count": count,
	})
}

// handleRecentAlerts lists the persisted alerts, newest first.
//
// GET /alerts/recent?limit=
func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeDetail(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
			return
		}
		limit = v
	}

	alerts, err := s.store.ListAlerts(r.Context(), limit)
	if err != nil {
		s.log.Error("alert listing failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
