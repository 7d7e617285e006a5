// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/uawatch/uawatch/internal/fact"
	"github.com/uawatch/uawatch/internal/logging"
	"github.com/uawatch/uawatch/internal/report"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// dateParam parses the {date} URL parameter as a UTC day.
func dateParam(r *http.Request) (time.Time, bool) {
	raw := chi.URLParam(r, "date")
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return fact.Day(t), true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetReport serves the stored report for a date.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	body, found, err := s.store.Report(r.Context(), date)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load report")
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no report for date")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleGetRollups serves the persisted rollup rows for a date.
func (s *Server) handleGetRollups(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	rows, err := s.store.RollupsForDate(r.Context(), date)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load rollups")
		writeError(w, http.StatusInternalServerError, "failed to load rollups")
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, "no rollups for date")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleRunPipeline triggers a synchronous batch run for a date and returns
// the finished report.
func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	rep, err := s.pipeline.Run(r.Context(), date)
	if err != nil {
		logging.Error().Err(err).Str("date", date.Format("2006-01-02")).Msg("Pipeline run failed")
		writeError(w, http.StatusInternalServerError, "pipeline run failed")
		return
	}

	data, err := report.Marshal(rep)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to marshal report")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
