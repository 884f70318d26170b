// Package dataset serves the historical retail sales data: raw records,
// filtered views and per-store weekly time series. The backing CSV is
// read lazily, cached in memory and invalidated when the file changes on
// disk.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/storesense/storesense/internal/metrics"
	"github.com/storesense/storesense/internal/models"
)

// seriesCacheSize bounds the per-store time series cache.
const seriesCacheSize = 64

// aggregateKey is the cache key for the all-stores series. Store ids in
// the dataset are positive.
const aggregateKey = -1

// dateLayouts are the accepted date formats, tried in order. Exports of
// the sales data have shipped with all three.
var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
}

// Store loads and serves the sales dataset.
type Store struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	records []models.SalesRecord
	loaded  bool

	series *lru.Cache[int, []models.Point]

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStore creates a dataset store for the CSV at path. The file is read
// lazily on first access; call Watch to invalidate cached data when the
// file changes.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[int, []models.Point](seriesCacheSize)
	if err != nil {
		return nil, fmt.Errorf("dataset: create series cache: %w", err)
	}
	return &Store{path: path, logger: logger, series: cache}, nil
}

// Records returns a copy of every record in the dataset.
func (s *Store) Records() ([]models.SalesRecord, error) {
	recs, err := s.ensureLoaded()
	if err != nil {
		return nil, err
	}
	out := make([]models.SalesRecord, len(recs))
	copy(out, recs)
	return out, nil
}

// Stores returns the sorted distinct store ids.
func (s *Store) Stores() ([]int, error) {
	recs, err := s.ensureLoaded()
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool)
	var ids []int
	for _, r := range recs {
		if !seen[r.Store] {
			seen[r.Store] = true
			ids = append(ids, r.Store)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// TimeSeries returns the weekly sales series sorted by date. With a
// store id it is that store's observations; with nil it is the total
// across stores per date. Results are cached; callers receive a copy.
func (s *Store) TimeSeries(storeID *int) ([]models.Point, error) {
	key := aggregateKey
	if storeID != nil {
		key = *storeID
	}
	if pts, ok := s.series.Get(key); ok {
		metrics.DatasetCacheHitsTotal.Inc()
		return clonePoints(pts), nil
	}
	metrics.DatasetCacheMissesTotal.Inc()

	recs, err := s.ensureLoaded()
	if err != nil {
		return nil, err
	}

	var pts []models.Point
	if storeID != nil {
		for _, r := range recs {
			if r.Store == *storeID {
				pts = append(pts, models.Point{Timestamp: r.Date, Value: r.WeeklySales})
			}
		}
	} else {
		totals := make(map[time.Time]float64)
		for _, r := range recs {
			totals[r.Date] += r.WeeklySales
		}
		pts = make([]models.Point, 0, len(totals))
		for ts, v := range totals {
			pts = append(pts, models.Point{Timestamp: ts, Value: v})
		}
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].Timestamp.Before(pts[j].Timestamp) })

	s.series.Add(key, pts)
	return clonePoints(pts), nil
}

// Filter returns the records matching the optional store and department
// filters.
func (s *Store) Filter(storeID, dept *int) ([]models.SalesRecord, error) {
	recs, err := s.ensureLoaded()
	if err != nil {
		return nil, err
	}
	var out []models.SalesRecord
	for _, r := range recs {
		if storeID != nil && r.Store != *storeID {
			continue
		}
		if dept != nil && r.Dept != *dept {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Invalidate drops the loaded records and every cached series. The next
// access reloads from disk.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.records = nil
	s.loaded = false
	s.mu.Unlock()
	s.series.Purge()
}

// Watch starts invalidating cached data when the CSV changes on disk.
// The parent directory is watched so file replacement is caught too.
func (s *Store) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("dataset: create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("dataset: watch %s: %w", filepath.Dir(s.path), err)
	}
	s.watcher = w
	s.done = make(chan struct{})
	go s.watchLoop()
	return nil
}

// Close stops the watcher if one is running.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

func (s *Store) watchLoop() {
	base := filepath.Base(s.path)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				s.logger.Info("sales data changed on disk, dropping caches",
					zap.String("event", ev.Op.String()),
					zap.String("path", s.path),
				)
				s.Invalidate()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("dataset watcher error", zap.Error(err))
		case <-s.done:
			return
		}
	}
}

// ensureLoaded returns the loaded records, reading the CSV on first use
// or after an invalidation.
func (s *Store) ensureLoaded() ([]models.SalesRecord, error) {
	s.mu.RLock()
	if s.loaded {
		recs := s.records
		s.mu.RUnlock()
		return recs, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.records, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", s.path, err)
	}
	defer f.Close()

	recs, err := parseRecords(f)
	if err != nil {
		return nil, fmt.Errorf("dataset: parse %s: %w", s.path, err)
	}

	s.records = recs
	s.loaded = true
	s.logger.Info("sales data loaded",
		zap.String("path", s.path),
		zap.Int("records", len(recs)),
	)
	return s.records, nil
}

// parseRecords reads the CSV by header name. Store, Date and
// Weekly_Sales are required; Dept, the macro columns and the holiday
// flag are optional and default to zero. The holiday column accepts
// either the IsHoliday or Holiday_Flag header.
func parseRecords(r io.Reader) ([]models.SalesRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"Store", "Date", "Weekly_Sales"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %s", required)
		}
	}
	holidayCol, hasHoliday := cols["IsHoliday"]
	if !hasHoliday {
		holidayCol, hasHoliday = cols["Holiday_Flag"]
	}

	var recs []models.SalesRecord
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		store, err := strconv.Atoi(strings.TrimSpace(row[cols["Store"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: bad Store: %w", line, err)
		}
		date, err := parseDate(row[cols["Date"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		sales, err := strconv.ParseFloat(strings.TrimSpace(row[cols["Weekly_Sales"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad Weekly_Sales: %w", line, err)
		}

		rec := models.SalesRecord{Store: store, Date: date, WeeklySales: sales}
		if rec.Dept, err = optionalInt(row, cols, "Dept", line); err != nil {
			return nil, err
		}
		if rec.Temperature, err = optionalFloat(row, cols, "Temperature", line); err != nil {
			return nil, err
		}
		if rec.FuelPrice, err = optionalFloat(row, cols, "Fuel_Price", line); err != nil {
			return nil, err
		}
		if rec.CPI, err = optionalFloat(row, cols, "CPI", line); err != nil {
			return nil, err
		}
		if rec.Unemployment, err = optionalFloat(row, cols, "Unemployment", line); err != nil {
			return nil, err
		}
		if hasHoliday {
			v := strings.TrimSpace(row[holidayCol])
			if v != "" {
				b, err := strconv.ParseBool(v)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad holiday flag %q", line, v)
				}
				rec.IsHoliday = b
			}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// parseDate tries every accepted layout in order.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad Date %q", s)
}

func optionalInt(row []string, cols map[string]int, name string, line int) (int, error) {
	idx, ok := cols[name]
	if !ok {
		return 0, nil
	}
	v := strings.TrimSpace(row[idx])
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("line %d: bad %s: %w", line, name, err)
	}
	return n, nil
}

func optionalFloat(row []string, cols map[string]int, name string, line int) (float64, error) {
	idx, ok := cols[name]
	if !ok {
		return 0, nil
	}
	v := strings.TrimSpace(row[idx])
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: bad %s: %w", line, name, err)
	}
	return f, nil
}

func clonePoints(pts []models.Point) []models.Point {
	out := make([]models.Point, len(pts))
	copy(out, pts)
	return out
}
