package ml

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/storesense/storesense/internal/models"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNextSunday(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2012-10-26", "2012-10-28"}, // Friday rolls forward
		{"2012-10-28", "2012-10-28"}, // Sunday stays
		{"2012-10-22", "2012-10-28"}, // Monday rolls forward
		{"2012-10-27", "2012-10-28"}, // Saturday rolls forward
	}
	for _, tt := range tests {
		got := nextSunday(date(tt.in))
		if !got.Equal(date(tt.want)) {
			t.Errorf("nextSunday(%s) = %s, want %s", tt.in, got.Format("2006-01-02"), tt.want)
		}
	}
}

func TestForecastDates(t *testing.T) {
	m := &ForecastModel{Origin: "2010-02-05", Base: 100}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	series := []models.Point{
		{Timestamp: date("2012-10-19"), Value: 1000},
		{Timestamp: date("2012-10-26"), Value: 1100}, // Friday
	}
	got, err := m.Forecast(series, 3)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}

	want := []string{"2012-11-04", "2012-11-11", "2012-11-18"}
	if len(got) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Timestamp.Format("2006-01-02") != w {
			t.Errorf("point %d: timestamp %s, want %s", i, got[i].Timestamp.Format("2006-01-02"), w)
		}
	}

	// A series already ending on Sunday anchors at that same date.
	series[1].Timestamp = date("2012-10-28")
	got, err = m.Forecast(series, 1)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if got[0].Timestamp.Format("2006-01-02") != "2012-11-04" {
		t.Errorf("Sunday-anchored first forecast at %s, want 2012-11-04", got[0].Timestamp.Format("2006-01-02"))
	}
}

func TestForecastConstantModel(t *testing.T) {
	m := &ForecastModel{Origin: "2012-10-28", Base: 1500000}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	series := []models.Point{{Timestamp: date("2012-10-28"), Value: 42}}
	got, err := m.Forecast(series, 6)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	for i, p := range got {
		if p.Forecast != 1500000 {
			t.Errorf("point %d: forecast %f, want 1500000", i, p.Forecast)
		}
	}
}

func TestForecastLinearTrend(t *testing.T) {
	m := &ForecastModel{Origin: "2012-10-28", Base: 0, TrendPerWeek: 7}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	series := []models.Point{{Timestamp: date("2012-10-28"), Value: 0}}
	got, err := m.Forecast(series, 3)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	for i, want := range []float64{7, 14, 21} {
		if math.Abs(got[i].Forecast-want) > 1e-9 {
			t.Errorf("point %d: forecast %f, want %f", i, got[i].Forecast, want)
		}
	}
}

func TestPredictYearlySeasonality(t *testing.T) {
	m := &ForecastModel{
		Origin:       "2012-10-28",
		Base:         100,
		FourierOrder: 1,
		CosCoef:      []float64{5},
		SinCoef:      []float64{0},
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	// cos term peaks at the origin and again one full period later.
	if got := m.Predict(date("2012-10-28")); math.Abs(got-105) > 1e-9 {
		t.Errorf("Predict(origin) = %f, want 105", got)
	}
	oneYear := date("2012-10-28").Add(time.Duration(yearDays * 24 * float64(time.Hour)))
	if got := m.Predict(oneYear); math.Abs(got-105) > 1e-6 {
		t.Errorf("Predict(origin+period) = %f, want 105", got)
	}
}

func TestForecastErrors(t *testing.T) {
	m := &ForecastModel{Origin: "2012-10-28"}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if _, err := m.Forecast(nil, 6); !errors.Is(err, ErrEmptySeries) {
		t.Errorf("empty series: err = %v, want ErrEmptySeries", err)
	}
	series := []models.Point{{Timestamp: date("2012-10-28"), Value: 1}}
	if _, err := m.Forecast(series, 0); !errors.Is(err, ErrBadPeriods) {
		t.Errorf("zero periods: err = %v, want ErrBadPeriods", err)
	}
}

func TestForecastModelValidate(t *testing.T) {
	m := &ForecastModel{Origin: "not-a-date"}
	if err := m.Validate(); err == nil {
		t.Error("expected error for bad origin date")
	}

	m = &ForecastModel{Origin: "2012-10-28", FourierOrder: 3, CosCoef: []float64{1, 2}, SinCoef: []float64{1, 2, 3}}
	if err := m.Validate(); err == nil {
		t.Error("expected error for mismatched coefficient lengths")
	}
}
