// Package kpi computes summary indicators over sales records and weekly
// time series.
package kpi

import (
	"errors"
	"math"

	"github.com/storesense/storesense/internal/models"
)

var (
	// ErrNoData is returned when a selection matches no records.
	ErrNoData = errors.New("kpi: no matching records")

	// ErrShortSeries is returned when a series summary is requested over
	// fewer than two points.
	ErrShortSeries = errors.New("kpi: series needs at least two points")
)

// Overview summarizes weekly sales over a record selection.
type Overview struct {
	AvgWeeklySales  float64 `json:"avg_weekly_sales"`
	MaxSales        float64 `json:"max_sales"`
	MinSales        float64 `json:"min_sales"`
	Volatility      float64 `json:"volatility"`
	HolidaySalesAvg float64 `json:"holiday_sales_avg"`
}

// SeriesSummary describes the shape of one weekly time series.
type SeriesSummary struct {
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Volatility  float64 `json:"volatility"`
	LatestValue float64 `json:"latest_value"`
	Trend       string  `json:"trend"`
}

// Compute derives the sales overview for a record selection. Volatility
// is the sample standard deviation of weekly sales; with fewer than two
// records it is zero. The holiday average covers holiday-flagged rows
// and is zero when the selection has none.
func Compute(recs []models.SalesRecord) (Overview, error) {
	if len(recs) == 0 {
		return Overview{}, ErrNoData
	}

	values := make([]float64, len(recs))
	var holidaySum float64
	holidayCount := 0
	for i, r := range recs {
		values[i] = r.WeeklySales
		if r.IsHoliday {
			holidaySum += r.WeeklySales
			holidayCount++
		}
	}

	o := Overview{
		AvgWeeklySales: mean(values),
		MaxSales:       values[0],
		MinSales:       values[0],
		Volatility:     sampleStd(values),
	}
	for _, v := range values {
		if v > o.MaxSales {
			o.MaxSales = v
		}
		if v < o.MinSales {
			o.MinSales = v
		}
	}
	if holidayCount > 0 {
		o.HolidaySalesAvg = holidaySum / float64(holidayCount)
	}
	return o, nil
}

// Summarize describes a weekly series: central tendency, spread,
// relative volatility and the direction of the last step.
func Summarize(series []models.Point) (SeriesSummary, error) {
	if len(series) < 2 {
		return SeriesSummary{}, ErrShortSeries
	}

	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}

	s := SeriesSummary{
		Mean:        mean(values),
		StdDev:      sampleStd(values),
		Min:         values[0],
		Max:         values[0],
		LatestValue: values[len(values)-1],
		Trend:       "down",
	}
	for _, v := range values {
		if v > s.Max {
			s.Max = v
		}
		if v < s.Min {
			s.Min = v
		}
	}
	if s.Mean != 0 {
		s.Volatility = s.StdDev / s.Mean
	}
	if values[len(values)-1] > values[len(values)-2] {
		s.Trend = "up"
	}
	return s, nil
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStd is the n-1 standard deviation; zero when n < 2.
func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	ss := 0.0
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}
