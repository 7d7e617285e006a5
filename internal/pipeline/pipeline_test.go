// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uawatch/uawatch/internal/config"
	"github.com/uawatch/uawatch/internal/detection"
	"github.com/uawatch/uawatch/internal/fact"
	"github.com/uawatch/uawatch/internal/money"
	"github.com/uawatch/uawatch/internal/report"
	"github.com/uawatch/uawatch/internal/rollup"
	"github.com/uawatch/uawatch/internal/store"
)

var day = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

// mapProvider serves canned records per date.
type mapProvider struct {
	days map[string][]fact.Record
	err  error
}

func (p *mapProvider) FactsForDay(_ context.Context, date time.Time) ([]fact.Record, fact.BatchReport, error) {
	if p.err != nil {
		return nil, fact.BatchReport{}, p.err
	}
	records := p.days[date.Format("2006-01-02")]
	return records, fact.BatchReport{Accepted: len(records)}, nil
}

type captureConsumer struct {
	reports []*report.Report
	err     error
}

func (c *captureConsumer) Consume(_ context.Context, r *report.Report) error {
	if c.err != nil {
		return c.err
	}
	c.reports = append(c.reports, r)
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func qualityRecord(date time.Time, channel string, users, netCents int64) fact.Record {
	return fact.Record{
		Date:          date,
		Channel:       channel,
		Status:        fact.StatusGood,
		Verification:  fact.VerificationVerified,
		NewUsers:      users,
		RetainedUsers: users / 2,
		GrossRevenue:  money.Amount(netCents),
		NetRevenue:    money.Amount(netCents),
		CashCost:      money.Amount(netCents / 2),
	}
}

func arpuDropRule() []detection.Rule {
	return []detection.Rule{{
		Metric:          rollup.MetricARPU,
		ThresholdKind:   detection.ThresholdPercentage,
		ThresholdValue:  15,
		Direction:       detection.DirectionDecrease,
		Severity:        detection.SeverityHigh,
		MinBaselineDays: 3,
	}}
}

// seedHistory runs the pipeline over a steady week so the target day has a
// full baseline.
func seedHistory(t *testing.T, p *Pipeline, provider *mapProvider) {
	t.Helper()
	for i := 7; i >= 1; i-- {
		d := day.AddDate(0, 0, -i)
		provider.days[d.Format("2006-01-02")] = []fact.Record{
			qualityRecord(d, "organic", 80, 80000),
			qualityRecord(d, "paid_search", 40, 40000),
		}
	}
	require.NoError(t, p.RunRange(context.Background(), day.AddDate(0, 0, -7), day.AddDate(0, 0, -1)))
}

func TestRunEndToEndDetectsAnomalyWithContributions(t *testing.T) {
	st := newTestStore(t)
	provider := &mapProvider{days: map[string][]fact.Record{}}
	consumer := &captureConsumer{}

	p, err := New(provider, st, 7, arpuDropRule(), []report.Consumer{consumer})
	require.NoError(t, err)
	seedHistory(t, p, provider)

	// Baseline ARPU = 120000/120 = 10.00. Organic revenue halves: global
	// ARPU 80000/120 = 6.67, a 33% drop.
	provider.days["2026-08-20"] = []fact.Record{
		qualityRecord(day, "organic", 80, 40000),
		qualityRecord(day, "paid_search", 40, 40000),
	}

	rep, err := p.Run(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, rep.Findings, 1)

	f := rep.Findings[0]
	assert.Equal(t, rollup.MetricARPU, f.Metric)
	assert.Equal(t, detection.SeverityHigh, f.Severity)

	require.Len(t, f.Contributions, 2)
	assert.Equal(t, "organic", f.Contributions[0].ChannelKey, "organic drove the drop")
	assert.InDelta(t, -40000, f.Contributions[0].Delta, 1e-9)

	assert.Equal(t, detection.StatusAttention, rep.Summary.Status)
	require.Len(t, consumer.reports, 1)

	// The day's rollups are persisted.
	rows, err := st.RollupsForDate(context.Background(), day)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestRunQuietDayProducesOKReport(t *testing.T) {
	st := newTestStore(t)
	provider := &mapProvider{days: map[string][]fact.Record{}}
	p, err := New(provider, st, 7, arpuDropRule(), nil)
	require.NoError(t, err)
	seedHistory(t, p, provider)

	provider.days["2026-08-20"] = []fact.Record{
		qualityRecord(day, "organic", 80, 80000),
		qualityRecord(day, "paid_search", 40, 40000),
	}

	rep, err := p.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Empty(t, rep.Findings)
	assert.Equal(t, detection.StatusOK, rep.Summary.Status)
	assert.Equal(t, "green", rep.Summary.SeverityLevel)
}

func TestRunEmptyDayStillReports(t *testing.T) {
	st := newTestStore(t)
	provider := &mapProvider{days: map[string][]fact.Record{}}
	p, err := New(provider, st, 7, arpuDropRule(), nil)
	require.NoError(t, err)

	rep, err := p.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Empty(t, rep.Findings, "short baseline keeps rules silent")
	assert.Zero(t, rep.Overview.Row.AllUsers)

	// The empty global row is persisted so the day counts as present.
	_, ok, err := st.Rollup(context.Background(), day, rollup.GranularityGlobal, "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunRerunDoesNotSeeItself(t *testing.T) {
	st := newTestStore(t)
	provider := &mapProvider{days: map[string][]fact.Record{}}
	p, err := New(provider, st, 7, arpuDropRule(), nil)
	require.NoError(t, err)
	seedHistory(t, p, provider)

	provider.days["2026-08-20"] = []fact.Record{qualityRecord(day, "organic", 120, 48000)}

	first, err := p.Run(context.Background(), day)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), day)
	require.NoError(t, err)

	// The rerun's baseline excludes the target date, so findings match.
	assert.Equal(t, len(first.Findings), len(second.Findings))
	if len(first.Findings) > 0 {
		assert.InDelta(t, *first.Findings[0].PercentChange, *second.Findings[0].PercentChange, 1e-9)
	}
}

func TestRunProviderErrorAborts(t *testing.T) {
	st := newTestStore(t)
	provider := &mapProvider{err: errors.New("warehouse down")}
	p, err := New(provider, st, 7, arpuDropRule(), nil)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), day)
	assert.Error(t, err)

	n, err := st.FactCount(context.Background(), day)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunConsumerFailureDoesNotFailRun(t *testing.T) {
	st := newTestStore(t)
	provider := &mapProvider{days: map[string][]fact.Record{
		"2026-08-20": {qualityRecord(day, "organic", 80, 80000)},
	}}
	failing := &captureConsumer{err: errors.New("disk full")}
	healthy := &captureConsumer{}

	p, err := New(provider, st, 7, arpuDropRule(), []report.Consumer{failing, healthy})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Len(t, healthy.reports, 1, "other consumers still run")
}

func TestRunRangeAscending(t *testing.T) {
	st := newTestStore(t)
	provider := &mapProvider{days: map[string][]fact.Record{}}
	consumer := &captureConsumer{}
	p, err := New(provider, st, 7, arpuDropRule(), []report.Consumer{consumer})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		d := day.AddDate(0, 0, i)
		provider.days[d.Format("2006-01-02")] = []fact.Record{qualityRecord(d, "organic", 80, 80000)}
	}

	require.NoError(t, p.RunRange(context.Background(), day, day.AddDate(0, 0, 2)))
	require.Len(t, consumer.reports, 3)
	assert.True(t, consumer.reports[0].Date.Before(consumer.reports[1].Date))

	assert.Error(t, p.RunRange(context.Background(), day, day.AddDate(0, 0, -1)), "inverted range")
}

func TestNewRejectsInvalidRules(t *testing.T) {
	st := newTestStore(t)
	bad := []detection.Rule{{Metric: "bogus"}}
	_, err := New(&mapProvider{}, st, 7, bad, nil)
	assert.Error(t, err)
}

func TestSchedulerNextRun(t *testing.T) {
	s := NewScheduler(nil, 6)

	before := time.Date(2026, 8, 20, 5, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC), s.nextRun(before))

	after := time.Date(2026, 8, 20, 7, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 21, 6, 0, 0, 0, time.UTC), s.nextRun(after))

	exact := time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 21, 6, 0, 0, 0, time.UTC), s.nextRun(exact), "strictly after now")
}
