package main

// Package main is the offline forecast analysis tool. It reads a
// per-store weekly forecast CSV, derives the dashboard analytics
// (week-over-week change, volatility, anomalies, risk and normal-range
// bands) and writes the rows back out with one action and reason per
// week.
//
// Input columns: Store, ds (week date) and yhat (forecasted sales).
// Every other column passes through untouched. Output rows are sorted
// by store and date; undefined numeric values render as empty fields.

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/storesense/storesense/internal/report"
)

// Appended output columns, in order.
var derivedColumns = []string{
	"yhat_change_pct",
	"volatility",
	"anomaly",
	"risk_score",
	"risk_level",
	"low_sales_threshold",
	"high_sales_threshold",
	"action",
	"reason",
}

// Accepted layouts for the ds column.
var dsLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func main() {
	input := flag.String("input", "csv/forecast_stores.csv", "forecast CSV to analyze")
	output := flag.String("output", "outputs/forecast_analysis_weekly_dashboard.csv", "analysis CSV to write")
	flag.Parse()

	if err := run(*input, *output); err != nil {
		fmt.Fprintf(os.Stderr, "salesreport: %v\n", err)
		os.Exit(1)
	}
}

func run(inputPath, outputPath string) error {
	header, inputs, err := readForecasts(inputPath)
	if err != nil {
		return err
	}

	rows := report.Analyze(inputs)

	if err := writeReport(outputPath, header, rows); err != nil {
		return err
	}

	stores := make(map[int]bool)
	for _, r := range rows {
		stores[r.Store] = true
	}
	fmt.Printf("Analyzed %d forecast rows across %d stores -> %s\n",
		len(rows), len(stores), outputPath)
	return nil
}

// readForecasts loads the forecast rows. Extra carries the complete
// original record so every input column survives into the output.
func readForecasts(path string) ([]string, []report.Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read input: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("input %s is empty", path)
	}

	header := records[0]
	storeCol, dsCol, yhatCol := -1, -1, -1
	for i, name := range header {
		switch name {
		case "Store":
			storeCol = i
		case "ds":
			dsCol = i
		case "yhat":
			yhatCol = i
		}
	}
	for col, idx := range map[string]int{"Store": storeCol, "ds": dsCol, "yhat": yhatCol} {
		if idx < 0 {
			return nil, nil, fmt.Errorf("input is missing required column %q", col)
		}
	}

	inputs := make([]report.Input, 0, len(records)-1)
	for n, rec := range records[1:] {
		line := n + 2
		if len(rec) != len(header) {
			return nil, nil, fmt.Errorf("line %d: %d fields, header has %d", line, len(rec), len(header))
		}
		store, err := strconv.Atoi(rec[storeCol])
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: Store %q is not an integer", line, rec[storeCol])
		}
		date, err := parseDS(rec[dsCol])
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		yhat, err := strconv.ParseFloat(rec[yhatCol], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: yhat %q is not a number", line, rec[yhatCol])
		}
		inputs = append(inputs, report.Input{
			Store:    store,
			Date:     date,
			Forecast: yhat,
			Extra:    rec,
		})
	}
	return header, inputs, nil
}

func parseDS(raw string) (time.Time, error) {
	for _, layout := range dsLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("ds %q is not a recognized date", raw)
}

// writeReport writes the original columns plus the derived analytics.
func writeReport(path string, header []string, rows []report.Row) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append(append([]string{}, header...), derivedColumns...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	// Analyze already ordered the rows by store and date.
	for _, row := range rows {
		rec := append([]string{}, row.Extra...)
		rec = append(rec,
			formatFloat(row.ChangePct),
			formatFloat(row.Volatility),
			formatBool(row.Anomaly),
			formatFloat(row.RiskScore),
			row.RiskLevel,
			formatFloat(row.LowBand),
			formatFloat(row.HighBand),
			row.Action,
			row.Reason,
		)
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// formatFloat renders a derived value; undefined stays empty and
// infinities keep their sign.
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return ""
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
