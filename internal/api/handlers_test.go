// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uawatch/uawatch/internal/config"
	"github.com/uawatch/uawatch/internal/detection"
	"github.com/uawatch/uawatch/internal/fact"
	"github.com/uawatch/uawatch/internal/money"
	"github.com/uawatch/uawatch/internal/pipeline"
	"github.com/uawatch/uawatch/internal/rollup"
	"github.com/uawatch/uawatch/internal/store"
)

var day = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

type mapProvider struct {
	days map[string][]fact.Record
}

func (p *mapProvider) FactsForDay(_ context.Context, date time.Time) ([]fact.Record, fact.BatchReport, error) {
	records := p.days[date.Format("2006-01-02")]
	return records, fact.BatchReport{Accepted: len(records)}, nil
}

func testServer(t *testing.T) (*Server, *store.Store, *mapProvider) {
	t.Helper()
	st, err := store.New(config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	provider := &mapProvider{days: map[string][]fact.Record{}}
	rules := []detection.Rule{{
		Metric:          rollup.MetricQualityUsers,
		ThresholdKind:   detection.ThresholdPercentage,
		ThresholdValue:  30,
		Direction:       detection.DirectionEither,
		Severity:        detection.SeverityMedium,
		MinBaselineDays: 3,
	}}
	p, err := pipeline.New(provider, st, 7, rules, nil)
	require.NoError(t, err)

	srv := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 8093, Timeout: 5 * time.Second}, st, p)
	return srv, st, provider
}

func doRequest(srv *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doRequest(srv, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doRequest(srv, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestGetReportNotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/v1/reports/2026-08-20")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetReportBadDate(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/v1/reports/not-a-date")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetReportServesStoredBody(t *testing.T) {
	srv, st, _ := testServer(t)
	body := []byte(`{"summary":{"status":"ok"}}`)
	require.NoError(t, st.PutReport(context.Background(), day, "id-1", time.Now(), body))

	rec := doRequest(srv, http.MethodGet, "/api/v1/reports/2026-08-20")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, string(body), rec.Body.String())
}

func TestGetRollups(t *testing.T) {
	srv, st, _ := testServer(t)
	require.NoError(t, st.PutRollups(context.Background(), day, []rollup.Row{{
		Date:         day,
		Granularity:  rollup.GranularityGlobal,
		QualityUsers: 120,
		TotalRevenue: money.Amount(100000),
	}}))

	rec := doRequest(srv, http.MethodGet, "/api/v1/rollups/2026-08-20")
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []rollup.Row
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, int64(120), rows[0].QualityUsers)

	rec = doRequest(srv, http.MethodGet, "/api/v1/rollups/2026-08-21")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunPipelineEndpoint(t *testing.T) {
	srv, st, provider := testServer(t)
	provider.days["2026-08-20"] = []fact.Record{{
		Date:         day,
		Channel:      "organic",
		Status:       fact.StatusGood,
		Verification: fact.VerificationVerified,
		NewUsers:     100,
		GrossRevenue: money.Amount(50000),
		NetRevenue:   money.Amount(50000),
	}}

	rec := doRequest(srv, http.MethodPost, "/api/v1/pipeline/run/2026-08-20")
	require.Equal(t, http.StatusOK, rec.Code)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Contains(t, decoded, "summary")

	// The run persisted its rollups.
	rows, err := st.RollupsForDate(context.Background(), day)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// GET with a body-less POST path is not routed.
	rec = doRequest(srv, http.MethodGet, "/api/v1/pipeline/run/2026-08-20")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
