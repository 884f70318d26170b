package ml

import (
	"fmt"
	"math"
)

// KMeansModel holds the centroid matrix fitted by the offline training
// pipeline, one row per behavior group.
type KMeansModel struct {
	Centroids [][]float64 `json:"centroids"`
}

// Validate checks the centroid matrix is non-empty and rectangular.
func (m *KMeansModel) Validate() error {
	if len(m.Centroids) == 0 {
		return fmt.Errorf("kmeans: no centroids")
	}
	width := len(m.Centroids[0])
	for i, c := range m.Centroids {
		if len(c) != width {
			return fmt.Errorf("kmeans: centroid %d has %d features, want %d", i, len(c), width)
		}
	}
	return nil
}

// Predict returns the index of the centroid nearest to x by squared
// Euclidean distance.
func (m *KMeansModel) Predict(x []float64) (int, error) {
	if len(m.Centroids) == 0 {
		return 0, fmt.Errorf("kmeans: no centroids")
	}
	if len(x) != len(m.Centroids[0]) {
		return 0, fmt.Errorf("kmeans: expected %d features, got %d", len(m.Centroids[0]), len(x))
	}

	best, bestDist := 0, math.Inf(1)
	for i, c := range m.Centroids {
		d := 0.0
		for j := range c {
			diff := x[j] - c[j]
			d += diff * diff
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, nil
}
