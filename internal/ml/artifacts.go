// Package ml loads the trained model artifacts and evaluates them: the
// weekly sales forecaster, the anomaly scaler plus isolation forest pair
// and the store behavior clusterer. Artifacts are JSON parameter files
// produced by the offline training pipeline; nothing here trains at
// request time except the small forests the historical scan fits on
// demand.
package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/storesense/storesense/internal/models"
)

// Artifact file names produced by the training pipeline.
const (
	ForecastModelFile  = "forecast_model.json"
	PreprocessorFile   = "preprocessor.json"
	AnomalyScalerFile  = "scaler_anomaly.json"
	IsolationModelFile = "iso_model.json"
	KMeansModelFile    = "kmeans_model.json"
)

// Predictor is the model surface the HTTP and ingestion layers depend
// on. The concrete implementation loads trained artifacts from disk;
// tests swap in stubs.
type Predictor interface {
	// Forecast predicts the next periods weekly values following series.
	Forecast(series []models.Point, periods int) ([]models.ForecastPoint, error)

	// DetectAnomaly scores one record against the trained isolation forest.
	DetectAnomaly(rec models.FeatureRecord) (models.AnomalyResult, error)

	// Cluster assigns one record to its behavior group.
	Cluster(rec models.FeatureRecord) (int, error)
}

// Models bundles the five trained artifacts behind the Predictor interface.
type Models struct {
	forecast *ForecastModel
	pre      *ScalerParams
	anomaly  *ScalerParams
	forest   *IsolationForest
	kmeans   *KMeansModel
}

// Load reads and validates every artifact from dir.
func Load(dir string) (*Models, error) {
	m := &Models{
		forecast: &ForecastModel{},
		pre:      &ScalerParams{},
		anomaly:  &ScalerParams{},
		forest:   &IsolationForest{},
		kmeans:   &KMeansModel{},
	}

	artifacts := []struct {
		file     string
		v        interface{}
		validate func() error
	}{
		{ForecastModelFile, m.forecast, m.forecast.Validate},
		{PreprocessorFile, m.pre, m.pre.Validate},
		{AnomalyScalerFile, m.anomaly, m.anomaly.Validate},
		{IsolationModelFile, m.forest, m.forest.Validate},
		{KMeansModelFile, m.kmeans, m.kmeans.Validate},
	}

	for _, a := range artifacts {
		if err := readArtifact(filepath.Join(dir, a.file), a.v); err != nil {
			return nil, err
		}
		if err := a.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", a.file, err)
		}
	}

	return m, nil
}

// readArtifact reads a JSON parameter file into v.
func readArtifact(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse artifact %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Forecast implements Predictor.
func (m *Models) Forecast(series []models.Point, periods int) ([]models.ForecastPoint, error) {
	return m.forecast.Forecast(series, periods)
}

// DetectAnomaly implements Predictor: standardize the numeric features
// with the anomaly scaler, then score with the isolation forest.
func (m *Models) DetectAnomaly(rec models.FeatureRecord) (models.AnomalyResult, error) {
	x, err := m.anomaly.TransformRecord(rec)
	if err != nil {
		return models.AnomalyResult{}, err
	}
	flag, score := m.forest.Predict(x)
	return models.AnomalyResult{Flag: flag, Score: score}, nil
}

// Cluster implements Predictor: run the preprocessor, then assign the
// nearest centroid.
func (m *Models) Cluster(rec models.FeatureRecord) (int, error) {
	x, err := m.pre.TransformRecord(rec)
	if err != nil {
		return 0, err
	}
	return m.kmeans.Predict(x)
}
