// Package risk converts model outputs into an operational risk score and
// the alert messages derived from it.
package risk

import (
	"math"

	"github.com/storesense/storesense/internal/models"
)

// AnomalyDetected is the isolation-forest flag value for anomalous rows.
// Normal rows carry +1.
const AnomalyDetected = -1

// Additive weights applied by Score.
const (
	WeightAnomaly     = 40
	WeightStrictScore = 10
	WeightRiskCluster = 20
)

// StrictScoreThreshold is the |anomaly score| above which the strict
// penalty applies. The comparison is strict: exactly 0.15 does not count.
const StrictScoreThreshold = 0.15

// Level boundaries.
const (
	HighThreshold   = 60
	MediumThreshold = 30
)

// Risk levels.
const (
	LevelHigh   = "HIGH"
	LevelMedium = "MEDIUM"
	LevelLow    = "LOW"
)

// HighRiskClusters are the behavior groups treated as elevated risk.
// Cluster ids outside the trained range simply fail the membership test.
var HighRiskClusters = map[int]bool{6: true, 7: true}

// Score combines the anomaly flag, the continuous anomaly score and the
// cluster assignment into a risk score and its level. Achievable scores
// are the sums of the three weights: 0 through 70 in steps of 10.
func Score(anomalyFlag int, anomalyScore float64, clusterID int) (int, string) {
	score := 0
	if anomalyFlag == AnomalyDetected {
		score += WeightAnomaly
	}
	if math.Abs(anomalyScore) > StrictScoreThreshold {
		score += WeightStrictScore
	}
	if HighRiskClusters[clusterID] {
		score += WeightRiskCluster
	}
	return score, Level(score)
}

// Level maps a numeric risk score to HIGH, MEDIUM or LOW.
func Level(score int) string {
	switch {
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Assess bundles the model outputs and the derived score into a single
// assessment ready for persistence or the wire.
func Assess(anomaly models.AnomalyResult, clusterID int) models.RiskAssessment {
	score, level := Score(anomaly.Flag, anomaly.Score, clusterID)
	return models.RiskAssessment{
		RiskScore:    score,
		RiskLevel:    level,
		Cluster:      clusterID,
		Anomaly:      anomaly.Flag,
		AnomalyScore: anomaly.Score,
	}
}
