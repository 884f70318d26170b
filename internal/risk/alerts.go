package risk

import "github.com/storesense/storesense/internal/models"

// Alert messages, in evaluation order.
const (
	AlertHighRisk    = "⚠ High operational risk detected"
	AlertAnomaly     = "⚠ Anomaly detected in sales behavior"
	AlertRiskCluster = "⚠ Store belongs to high-risk behavior group"
	AlertNone        = "No alerts. Situation normal."

	// AlertIoTHighRisk is the persisted message for HIGH assessments
	// raised by the ingestion pipeline.
	AlertIoTHighRisk = "⚠ High risk detected from IoT update"
)

// Warnings derives the alert list for an assessment. Checks run in a
// fixed order so the high-risk message always precedes the anomaly and
// cluster messages. When nothing triggers, the all-clear message is
// returned alone.
func Warnings(r models.RiskAssessment) []string {
	var alerts []string
	if r.RiskLevel == LevelHigh {
		alerts = append(alerts, AlertHighRisk)
	}
	if r.Anomaly == AnomalyDetected {
		alerts = append(alerts, AlertAnomaly)
	}
	if HighRiskClusters[r.Cluster] {
		alerts = append(alerts, AlertRiskCluster)
	}
	if len(alerts) == 0 {
		return []string{AlertNone}
	}
	return alerts
}
