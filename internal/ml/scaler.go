package ml

import (
	"fmt"

	"github.com/storesense/storesense/internal/models"
)

// ScalerParams holds fitted standardization parameters for a feature
// matrix: per-column mean and scale, in Columns order.
type ScalerParams struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

// Validate checks internal consistency.
func (s *ScalerParams) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("scaler: no columns")
	}
	if len(s.Mean) != len(s.Columns) || len(s.Scale) != len(s.Columns) {
		return fmt.Errorf("scaler: %d columns but %d means and %d scales",
			len(s.Columns), len(s.Mean), len(s.Scale))
	}
	for i, sc := range s.Scale {
		if sc == 0 {
			return fmt.Errorf("scaler: zero scale for column %s", s.Columns[i])
		}
	}
	return nil
}

// Transform standardizes one row given in the scaler's column order.
func (s *ScalerParams) Transform(row []float64) ([]float64, error) {
	if len(row) != len(s.Columns) {
		return nil, fmt.Errorf("scaler: expected %d features, got %d", len(s.Columns), len(row))
	}
	out := make([]float64, len(row))
	for i, v := range row {
		out[i] = (v - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}

// TransformRecord standardizes the scaler's columns drawn from a feature
// record by name.
func (s *ScalerParams) TransformRecord(rec models.FeatureRecord) ([]float64, error) {
	row := make([]float64, len(s.Columns))
	for i, col := range s.Columns {
		v, ok := rec.Feature(col)
		if !ok {
			return nil, fmt.Errorf("scaler: unknown column %s", col)
		}
		row[i] = v
	}
	return s.Transform(row)
}
