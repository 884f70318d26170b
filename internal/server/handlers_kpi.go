package server

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/storesense/storesense/internal/kpi"
)

// handleKPI summarizes weekly sales over an optional store and
// department selection.
//
// GET /kpi/?store_id=&dept=
func (s *Server) handleKPI(w http.ResponseWriter, r *http.Request) {
	storeID, err := queryInt(r, "store_id")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	dept, err := queryInt(r, "dept")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	recs, err := s.dataset.Filter(storeID, dept)
	if err != nil {
		s.log.Error("dataset filter failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "failed to load dataset")
		return
	}

	overview, err := kpi.Compute(recs)
	if errors.Is(err, kpi.ErrNoData) {
		if storeID != nil {
			writeDetail(w, http.StatusNotFound, fmt.Sprintf("no data for store %d", *storeID))
		} else {
			writeDetail(w, http.StatusNotFound, "no data for the requested selection")
		}
		return
	}
	if err != nil {
		s.log.Error("kpi computation failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "kpi computation failed")
		return
	}

	writeJSON(w, http.StatusOK, overview)
}

// handleKPISeries describes the shape of one weekly series.
//
// GET /kpi/series?store_id=
func (s *Server) handleKPISeries(w http.ResponseWriter, r *http.Request) {
	storeID, err := queryInt(r, "store_id")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	series, ok := s.storeSeries(w, storeID)
	if !ok {
		return
	}

	summary, err := kpi.Summarize(series)
	if errors.Is(err, kpi.ErrShortSeries) {
		writeDetail(w, http.StatusUnprocessableEntity, "series needs at least two points")
		return
	}
	if err != nil {
		s.log.Error("series summary failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "series summary failed")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
