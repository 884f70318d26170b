package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/storesense/storesense/internal/analytics"
	"github.com/storesense/storesense/internal/metrics"
	"github.com/storesense/storesense/internal/models"
	"github.com/storesense/storesense/internal/report"
	"github.com/storesense/storesense/internal/risk"
)

const (
	defaultPeriods = 6
	maxPeriods     = 26
)

// dateLayout is the wire format for series timestamps.
const dateLayout = "2006-01-02"

// queryInt parses an optional integer query parameter. A nil result
// means the parameter was absent.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", name)
	}
	return &v, nil
}

// queryPeriods parses the forecast horizon with its default and bounds.
func queryPeriods(r *http.Request) (int, error) {
	periods := defaultPeriods
	if raw := r.URL.Query().Get("periods"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("periods must be an integer")
		}
		periods = v
	}
	if periods < 1 || periods > maxPeriods {
		return 0, fmt.Errorf("periods must be between 1 and %d", maxPeriods)
	}
	return periods, nil
}

// decodeFeatureRecord reads a scoring payload from the request body.
func decodeFeatureRecord(r *http.Request) (models.FeatureRecord, error) {
	var rec models.FeatureRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		return rec, fmt.Errorf("invalid request body")
	}
	return rec, nil
}

// storeSeries loads the weekly series for an optional store filter and
// maps an empty result to the canonical not-found error.
func (s *Server) storeSeries(w http.ResponseWriter, storeID *int) ([]models.Point, bool) {
	series, err := s.dataset.TimeSeries(storeID)
	if err != nil {
		s.log.Error("time series load failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "failed to load dataset")
		return nil, false
	}
	if len(series) == 0 {
		if storeID != nil {
			writeDetail(w, http.StatusNotFound, fmt.Sprintf("no data for store %d", *storeID))
		} else {
			writeDetail(w, http.StatusNotFound, "no data")
		}
		return nil, false
	}
	return series, true
}

// assess runs the full scoring chain for one record: anomaly detection,
// clustering and the combined risk score.
func (s *Server) assess(rec models.FeatureRecord) (models.RiskAssessment, error) {
	anomaly, err := s.models.DetectAnomaly(rec)
	if err != nil {
		return models.RiskAssessment{}, err
	}
	cluster, err := s.models.Cluster(rec)
	if err != nil {
		return models.RiskAssessment{}, err
	}
	assessment := risk.Assess(anomaly, cluster)
	metrics.RiskLevelsTotal.WithLabelValues(assessment.RiskLevel).Inc()
	if anomaly.Flag == risk.AnomalyDetected {
		metrics.AnomaliesDetectedTotal.Inc()
	}
	return assessment, nil
}

// handleForecast predicts the next weekly sales values for one store or
// the aggregate series.
//
// GET /forecast/?store_id=&periods=
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	storeID, err := queryInt(r, "store_id")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	periods, err := queryPeriods(r)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	series, ok := s.storeSeries(w, storeID)
	if !ok {
		return
	}

	points, err := s.models.Forecast(series, periods)
	if err != nil {
		s.log.Error("forecast failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "forecast failed")
		return
	}
	metrics.ModelPredictionsTotal.WithLabelValues("forecast").Inc()

	out := make([]map[string]interface{}, len(points))
	for i, p := range points {
		out[i] = map[string]interface{}{
			"timestamp": p.Timestamp.Format(dateLayout),
			"forecast":  p.Forecast,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAnomalyScore scores one submitted record against the trained
// isolation forest.
//
// POST /anomaly/
func (s *Server) handleAnomalyScore(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeFeatureRecord(r)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	result, err := s.models.DetectAnomaly(rec)
	if err != nil {
		s.log.Error("anomaly detection failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "anomaly detection failed")
		return
	}
	metrics.ModelPredictionsTotal.WithLabelValues("anomaly").Inc()
	if result.Flag == risk.AnomalyDetected {
		metrics.AnomaliesDetectedTotal.Inc()
	}

	writeJSON(w, http.StatusOK, result)
}

// handleAnomalyScan scans a store's history for anomalous weeks with a
// freshly fitted forest.
//
// GET /anomaly/?store_id=&contamination=
func (s *Server) handleAnomalyScan(w http.ResponseWriter, r *http.Request) {
	storeID, err := queryInt(r, "store_id")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	contamination := analytics.DefaultContamination
	if raw := r.URL.Query().Get("contamination"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "contamination must be a number")
			return
		}
		contamination = v
	}

	series, ok := s.storeSeries(w, storeID)
	if !ok {
		return
	}

	flagged, err := s.scanner.Scan(r.Context(), series, contamination)
	switch {
	case err == nil:
	case errors.Is(err, analytics.ErrBadContamination):
		writeDetail(w, http.StatusUnprocessableEntity, "contamination must be in (0, 0.5]")
		return
	case errors.Is(err, analytics.ErrTooFewPoints):
		writeDetail(w, http.StatusUnprocessableEntity, "not enough data points to scan")
		return
	default:
		s.log.Error("anomaly scan failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "anomaly scan failed")
		return
	}

	out := make([]map[string]interface{}, len(flagged))
	for i, p := range flagged {
		out[i] = map[string]interface{}{
			"timestamp":     p.Timestamp.Format(dateLayout),
			"value":         p.Value,
			"anomaly_score": p.Score,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": out,
		"count":     len(out),
	})
}

// handleCluster assigns one record to its behavior group.
//
// POST /cluster/
func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeFeatureRecord(r)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	cluster, err := s.models.Cluster(rec)
	if err != nil {
		s.log.Error("clustering failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "clustering failed")
		return
	}
	metrics.ModelPredictionsTotal.WithLabelValues("cluster").Inc()

	writeJSON(w, http.StatusOK, map[string]int{"cluster": cluster})
}

// handleRisk runs the combined scoring chain for one record.
//
// POST /risk/
func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeFeatureRecord(r)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	assessment, err := s.assess(rec)
	if err != nil {
		s.log.Error("risk assessment failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "risk assessment failed")
		return
	}
	metrics.ModelPredictionsTotal.WithLabelValues("risk").Inc()

	writeJSON(w, http.StatusOK, assessment)
}

// handleAlerts evaluates one record and renders its warnings.
//
// POST /alerts/
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeFeatureRecord(r)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	assessment, err := s.assess(rec)
	if err != nil {
		s.log.Error("risk assessment failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "risk assessment failed")
		return
	}
	metrics.ModelPredictionsTotal.WithLabelValues("risk").Inc()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts":  risk.Warnings(assessment),
		"details": assessment,
	})
}

// handleRecommendations forecasts a store and runs the weekly action
// rules over its history plus the forecast horizon.
//
// GET /recommendations/?store_id=&periods=
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	storeID, err := queryInt(r, "store_id")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	periods, err := queryPeriods(r)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	series, ok := s.storeSeries(w, storeID)
	if !ok {
		return
	}

	points, err := s.models.Forecast(series, periods)
	if err != nil {
		s.log.Error("forecast failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "forecast failed")
		return
	}
	metrics.ModelPredictionsTotal.WithLabelValues("forecast").Inc()

	// The rules need the history for percentiles and trailing windows,
	// so analyze history plus horizon and emit only the horizon rows.
	store := 0
	if storeID != nil {
		store = *storeID
	}
	inputs := make([]report.Input, 0, len(series)+len(points))
	for _, p := range series {
		inputs = append(inputs, report.Input{Store: store, Date: p.Timestamp, Forecast: p.Value})
	}
	for _, p := range points {
		inputs = append(inputs, report.Input{Store: store, Date: p.Timestamp, Forecast: p.Forecast})
	}
	rows := report.Analyze(inputs)

	horizon := rows[len(rows)-len(points):]
	out := make([]map[string]interface{}, len(horizon))
	for i, row := range horizon {
		out[i] = map[string]interface{}{
			"timestamp": row.Date.Format(dateLayout),
			"forecast":  row.Forecast,
			"action":    row.Action,
			"reason":    row.Reason,
		}
	}
	writeJSON(w, http.StatusOK, out)
}
