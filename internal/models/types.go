package models

import "time"

// Package models defines the shared domain types that flow between the
// dataset layer, the model wrapper, risk scoring, persistence and the
// HTTP/WebSocket surface.

// SalesRecord is one row of the retail sales dataset.
type SalesRecord struct {
	Store        int
	Dept         int
	Date         time.Time
	WeeklySales  float64
	Temperature  float64
	FuelPrice    float64
	CPI          float64
	Unemployment float64
	IsHoliday    bool
}

// Point is a single observation of a weekly sales time series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ForecastPoint is a single predicted observation. Timestamp is the Sunday
// the prediction refers to.
type ForecastPoint struct {
	Timestamp time.Time
	Forecast  float64
}

// FeatureRecord carries the raw feature vector submitted for scoring.
// JSON field names mirror the dataset column headers used by upstream
// producers, so payloads from the ingestion fleet deserialize directly.
type FeatureRecord struct {
	WeeklySales  float64 `json:"Weekly_Sales"`
	Temperature  float64 `json:"Temperature"`
	FuelPrice    float64 `json:"Fuel_Price"`
	CPI          float64 `json:"CPI"`
	Unemployment float64 `json:"Unemployment"`
	Store        int     `json:"Store"`
	Dept         int     `json:"Dept"`
	IsHoliday    int     `json:"IsHoliday"`
}

// NumericFeatures returns the numeric feature vector in dataset column
// order: Weekly_Sales, Temperature, Fuel_Price, CPI, Unemployment.
func (f FeatureRecord) NumericFeatures() []float64 {
	return []float64{f.WeeklySales, f.Temperature, f.FuelPrice, f.CPI, f.Unemployment}
}

// Feature returns the named feature value. The bool reports whether the
// name is a known column.
func (f FeatureRecord) Feature(name string) (float64, bool) {
	switch name {
	case "Weekly_Sales":
		return f.WeeklySales, true
	case "Temperature":
		return f.Temperature, true
	case "Fuel_Price":
		return f.FuelPrice, true
	case "CPI":
		return f.CPI, true
	case "Unemployment":
		return f.Unemployment, true
	case "Store":
		return float64(f.Store), true
	case "Dept":
		return float64(f.Dept), true
	case "IsHoliday":
		return float64(f.IsHoliday), true
	}
	return 0, false
}

// AnomalyResult is the outcome of scoring one record against the trained
// isolation forest. Flag is -1 for detected anomalies and 1 for normal
// observations; Score is the continuous decision value (lower means more
// anomalous, negative means flagged).
type AnomalyResult struct {
	Flag  int     `json:"anomaly"`
	Score float64 `json:"anomaly_score"`
}

// RiskAssessment bundles the combined model outputs for one record.
type RiskAssessment struct {
	RiskScore    int     `json:"risk_score"`
	RiskLevel    string  `json:"risk_level"`
	Cluster      int     `json:"cluster"`
	Anomaly      int     `json:"anomaly"`
	AnomalyScore float64 `json:"anomaly_score"`
}

// IoTReading is the ingestion payload pushed by store-level producers.
// Timestamp is optional; the ingest pipeline stamps receipt time when it
// is absent.
type IoTReading struct {
	Timestamp    string  `json:"timestamp,omitempty"`
	Store        int     `json:"store"`
	Dept         int     `json:"dept"`
	WeeklySales  float64 `json:"Weekly_Sales"`
	Temperature  float64 `json:"Temperature"`
	FuelPrice    float64 `json:"Fuel_Price"`
	CPI          float64 `json:"CPI"`
	Unemployment float64 `json:"Unemployment"`
	IsHoliday    int     `json:"IsHoliday"`
}

// FeatureRecord converts the reading into the scoring feature vector.
func (r IoTReading) FeatureRecord() FeatureRecord {
	return FeatureRecord{
		WeeklySales:  r.WeeklySales,
		Temperature:  r.Temperature,
		FuelPrice:    r.FuelPrice,
		CPI:          r.CPI,
		Unemployment: r.Unemployment,
		Store:        r.Store,
		Dept:         r.Dept,
		IsHoliday:    r.IsHoliday,
	}
}
