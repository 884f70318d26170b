// Package analytics fits small in-process models over historical sales
// series. Live scoring goes through the trained artifact grid in the ml
// package; this package covers the exploratory scan path, where a forest
// is fit on demand against whatever series the caller selected.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storesense/storesense/internal/ml"
	"github.com/storesense/storesense/internal/models"
)

// DefaultContamination is the assumed share of anomalous points when the
// caller does not pick one.
const DefaultContamination = 0.05

const (
	maxContamination = 0.5
	minScanPoints    = 10
)

// Scan guards.
var (
	ErrTooFewPoints     = errors.New("analytics: too few points to scan")
	ErrBadContamination = errors.New("analytics: contamination out of range")
)

// FlaggedPoint is one series observation the scan marked anomalous.
// Score is the signed decision value, negative by construction.
type FlaggedPoint struct {
	Timestamp time.Time
	Value     float64
	Score     float64
}

// Scanner fits a fixed-seed isolation forest over a series and reports
// the points it isolates fastest.
type Scanner struct {
	numTrees   int
	sampleSize int
	seed       int64
}

// NewScanner creates a scanner with the stock forest shape.
func NewScanner() *Scanner {
	return &Scanner{
		numTrees:   100,
		sampleSize: 256,
		seed:       42,
	}
}

// Scan fits a forest over the series values, calibrates the cutoff at
// the contamination quantile and returns the flagged points in series
// order. The seed is fixed, so rescanning the same series agrees with
// the previous pass.
func (s *Scanner) Scan(ctx context.Context, series []models.Point, contamination float64) ([]FlaggedPoint, error) {
	if contamination <= 0 || contamination > maxContamination {
		return nil, fmt.Errorf("%w: %g not in (0, %g]", ErrBadContamination, contamination, maxContamination)
	}
	if len(series) < minScanPoints {
		return nil, fmt.Errorf("%w: need at least %d, got %d", ErrTooFewPoints, minScanPoints, len(series))
	}

	data := make([][]float64, len(series))
	for i, p := range series {
		data[i] = []float64{p.Value}
	}

	forest := ml.NewIsolationForest(s.numTrees, s.sampleSize, s.seed)
	if err := forest.Fit(data); err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}
	forest.CalibrateOffset(data, contamination)

	flagged := make([]FlaggedPoint, 0)
	for i, row := range data {
		if flag, score := forest.Predict(row); flag == -1 {
			flagged = append(flagged, FlaggedPoint{
				Timestamp: series[i].Timestamp,
				Value:     series[i].Value,
				Score:     score,
			})
		}
	}
	return flagged, nil
}
