// Package report derives the weekly action plan from forecasted store
// sales: week-over-week change, rolling volatility, anomaly marking,
// a combined risk score and per-store normal-range bands, ending in an
// ordered rule list that picks one action and reason per row.
//
// The thresholds here belong to the batch heuristic and are deliberately
// independent of the live scoring weights in the risk package.
package report

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Decision thresholds for the weekly action plan.
const (
	// DropThresholdPct and SpikeThresholdPct bound the acceptable
	// week-over-week change, in percent.
	DropThresholdPct  = -5.0
	SpikeThresholdPct = 5.0

	// VolatilityRatio flags rows whose rolling deviation exceeds this
	// share of the forecast.
	VolatilityRatio = 0.05

	// windowSize is the trailing window of the rolling deviation.
	windowSize = 3
)

// Risk classification bounds for the batch score.
const (
	highRiskScore   = 60.0
	mediumRiskScore = 30.0
)

// Input is one raw forecast row. Extra carries untouched passthrough
// columns for re-emission.
type Input struct {
	Store    int
	Date     time.Time
	Forecast float64
	Extra    []string
}

// Row is an input row plus its derived analytics. Undefined numeric
// values are NaN; they classify as LOW risk, never mark anomalies and
// render as empty CSV fields.
type Row struct {
	Input

	ChangePct  float64
	Volatility float64
	Anomaly    bool
	RiskScore  float64
	RiskLevel  string
	LowBand    float64
	HighBand   float64
	Action     string
	Reason     string
}

// Analyze sorts rows by store and date, derives the week-over-week
// analytics for each store independently and fills in the action plan.
func Analyze(rows []Input) []Row {
	out := make([]Row, len(rows))
	for i, in := range rows {
		out[i] = Row{
			Input:      in,
			ChangePct:  math.NaN(),
			Volatility: math.NaN(),
			RiskScore:  math.NaN(),
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Store != out[j].Store {
			return out[i].Store < out[j].Store
		}
		return out[i].Date.Before(out[j].Date)
	})

	for start := 0; start < len(out); {
		end := start
		for end < len(out) && out[end].Store == out[start].Store {
			end++
		}
		analyzeStore(out[start:end])
		start = end
	}
	return out
}

// analyzeStore fills the derived columns for one store's date-ordered
// rows.
func analyzeStore(rows []Row) {
	// Week-over-week change. The first row, and any row following a
	// zero forecast, stays undefined.
	for i := 1; i < len(rows); i++ {
		prev := rows[i-1].Forecast
		if prev != 0 {
			rows[i].ChangePct = (rows[i].Forecast - prev) / prev * 100
		}
	}

	// Trailing sample deviation over the last windowSize forecasts.
	window := make([]float64, windowSize)
	for i := windowSize - 1; i < len(rows); i++ {
		for j := 0; j < windowSize; j++ {
			window[j] = rows[i-windowSize+1+j].Forecast
		}
		rows[i].Volatility = sampleStd(window)
	}

	// 95th percentile of |change| over the defined values.
	var absPcts []float64
	for _, r := range rows {
		if !math.IsNaN(r.ChangePct) {
			absPcts = append(absPcts, math.Abs(r.ChangePct))
		}
	}
	sort.Float64s(absPcts)
	q95 := percentile(absPcts, 95)

	// Normal-range bands over the store's forecasts.
	yhats := make([]float64, len(rows))
	for i, r := range rows {
		yhats[i] = r.Forecast
	}
	sort.Float64s(yhats)
	low := percentile(yhats, 10)
	high := percentile(yhats, 90)

	absThreshold := math.Max(SpikeThresholdPct, -DropThresholdPct)
	for i := range rows {
		r := &rows[i]
		r.LowBand = low
		r.HighBand = high

		// NaN comparisons are false, so undefined rows never mark.
		abs := math.Abs(r.ChangePct)
		r.Anomaly = abs > absThreshold || abs >= q95

		// NaN and division by zero propagate the way the score should:
		// undefined inputs stay undefined, a zero forecast with real
		// volatility blows up to +Inf and classifies HIGH.
		r.RiskScore = abs + 100*r.Volatility/r.Forecast
		r.RiskLevel = riskLevel(r.RiskScore)

		r.Action, r.Reason = actionPlan(r)
	}
}

// riskLevel classifies the batch score. NaN falls through to LOW.
func riskLevel(score float64) string {
	switch {
	case score >= highRiskScore:
		return "HIGH"
	case score >= mediumRiskScore:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// actionPlan applies the ordered decision rules; the first match wins.
func actionPlan(r *Row) (string, string) {
	pct := r.ChangePct
	switch {
	case math.IsNaN(pct):
		return "No Action",
			"First week or insufficient historical data to assess change."
	case pct < DropThresholdPct:
		return "Investigate / Promote",
			fmt.Sprintf("Sales predicted to drop by %.1f%% compared to last week. Consider marketing actions or promotions.", math.Abs(pct))
	case pct > SpikeThresholdPct:
		return "Prepare Inventory",
			fmt.Sprintf("Sales predicted to increase by %.1f%% compared to last week. Ensure sufficient stock.", pct)
	case r.Volatility > VolatilityRatio*r.Forecast:
		return "Monitor Closely",
			"Sales forecast shows high week-to-week volatility. Watch inventory and marketing closely."
	case r.Forecast < r.LowBand:
		return "Review Marketing",
			fmt.Sprintf("Forecasted weekly sales (%.2fM) are below this store’s normal range (%.2fM–%.2fM). Consider promotions or cost management.",
				r.Forecast/1e6, r.LowBand/1e6, r.HighBand/1e6)
	case r.Forecast > r.HighBand:
		return "Prepare Inventory",
			fmt.Sprintf("Forecasted weekly sales (%.2fM) exceed this store’s normal range (%.2fM–%.2fM). Ensure stock and logistics are ready.",
				r.Forecast/1e6, r.LowBand/1e6, r.HighBand/1e6)
	case r.Anomaly:
		return "Investigate Anomaly",
			"Week shows unusual sales change compared to historical patterns."
	default:
		return "No Action",
			fmt.Sprintf("Forecast is normal. Expected weekly sales are within the store’s normal range (%.2fM–%.2fM).",
				r.LowBand/1e6, r.HighBand/1e6)
	}
}

// percentile computes the p-th percentile of sorted values with linear
// interpolation between ranks. Empty input yields NaN.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// sampleStd is the n-1 standard deviation.
func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	m := sum / float64(len(values))
	ss := 0.0
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}
