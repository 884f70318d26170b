package ml

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/storesense/storesense/internal/models"
)

// yearDays is the period of the yearly Fourier terms.
const yearDays = 365.25

var (
	// ErrEmptySeries is returned when a forecast is requested over a
	// series with no observations.
	ErrEmptySeries = errors.New("ml: empty series")

	// ErrBadPeriods is returned when the requested horizon is not positive.
	ErrBadPeriods = errors.New("ml: periods must be positive")
)

// ForecastModel is an additive trend plus yearly-seasonality regressor
// fitted by the offline training pipeline: a base level at the origin
// date, a linear per-week trend and K yearly Fourier harmonics.
type ForecastModel struct {
	Origin       string    `json:"origin"`
	Base         float64   `json:"base"`
	TrendPerWeek float64   `json:"trend_per_week"`
	FourierOrder int       `json:"fourier_order"`
	CosCoef      []float64 `json:"cos_coef"`
	SinCoef      []float64 `json:"sin_coef"`

	origin time.Time
}

// Validate parses the origin date and checks coefficient lengths.
func (m *ForecastModel) Validate() error {
	t, err := time.Parse("2006-01-02", m.Origin)
	if err != nil {
		return fmt.Errorf("forecast model: bad origin date %q: %w", m.Origin, err)
	}
	m.origin = t
	if len(m.CosCoef) != m.FourierOrder || len(m.SinCoef) != m.FourierOrder {
		return fmt.Errorf("forecast model: order %d but %d cos and %d sin coefficients",
			m.FourierOrder, len(m.CosCoef), len(m.SinCoef))
	}
	return nil
}

// Predict evaluates the regressor at date d.
func (m *ForecastModel) Predict(d time.Time) float64 {
	days := d.Sub(m.origin).Hours() / 24
	y := m.Base + m.TrendPerWeek*days/7
	for n := 1; n <= m.FourierOrder; n++ {
		angle := 2 * math.Pi * float64(n) * days / yearDays
		y += m.CosCoef[n-1]*math.Cos(angle) + m.SinCoef[n-1]*math.Sin(angle)
	}
	return y
}

// Forecast produces periods weekly predictions following the last
// observation of series. Future timestamps are the run of Sundays after
// the last observed date: the last date rolls forward to its Sunday
// (kept when it already is one) and predictions land 7, 14, ... days
// past that anchor.
func (m *ForecastModel) Forecast(series []models.Point, periods int) ([]models.ForecastPoint, error) {
	if len(series) == 0 {
		return nil, ErrEmptySeries
	}
	if periods < 1 {
		return nil, ErrBadPeriods
	}

	anchor := nextSunday(series[len(series)-1].Timestamp)
	out := make([]models.ForecastPoint, periods)
	for i := 1; i <= periods; i++ {
		d := anchor.AddDate(0, 0, 7*i)
		out[i-1] = models.ForecastPoint{Timestamp: d, Forecast: m.Predict(d)}
	}
	return out, nil
}

// nextSunday rolls t forward to the following Sunday. A date already on
// Sunday stays put.
func nextSunday(t time.Time) time.Time {
	return t.AddDate(0, 0, (7-int(t.Weekday()))%7)
}
