// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package baseline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uawatch/uawatch/internal/money"
	"github.com/uawatch/uawatch/internal/rollup"
)

type memStore struct {
	rows map[string]rollup.Row
	err  error
}

func storeKey(date time.Time, g rollup.Granularity, key string) string {
	return date.Format("2006-01-02") + "|" + string(g) + "|" + key
}

func (m *memStore) put(row rollup.Row) {
	if m.rows == nil {
		m.rows = make(map[string]rollup.Row)
	}
	m.rows[storeKey(row.Date, row.Granularity, row.Key)] = row
}

func (m *memStore) Rollup(_ context.Context, date time.Time, g rollup.Granularity, key string) (rollup.Row, bool, error) {
	if m.err != nil {
		return rollup.Row{}, false, m.err
	}
	row, ok := m.rows[storeKey(date, g, key)]
	return row, ok, nil
}

var target = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

func globalRow(date time.Time, qualityUsers int64, revenueCents int64) rollup.Row {
	return rollup.Row{
		Date:         date,
		Granularity:  rollup.GranularityGlobal,
		QualityUsers: qualityUsers,
		TotalRevenue: money.Amount(revenueCents),
	}
}

func TestWindowAscendingSkippingGaps(t *testing.T) {
	store := &memStore{}
	// Days -7, -5, -2 exist; -1, -3, -4, -6 are absent.
	for _, offset := range []int{7, 5, 2} {
		store.put(globalRow(target.AddDate(0, 0, -offset), 100, 100000))
	}
	// Target date itself and a day outside the window must not appear.
	store.put(globalRow(target, 999, 1))
	store.put(globalRow(target.AddDate(0, 0, -8), 999, 1))

	sel := NewSelector(store, 7)
	w, err := sel.Window(context.Background(), rollup.GranularityGlobal, "", target)
	require.NoError(t, err)

	require.Equal(t, 3, w.Days())
	assert.Equal(t, target.AddDate(0, 0, -7), w.Rows[0].Date)
	assert.Equal(t, target.AddDate(0, 0, -5), w.Rows[1].Date)
	assert.Equal(t, target.AddDate(0, 0, -2), w.Rows[2].Date)
}

func TestWindowShortIsNotAnError(t *testing.T) {
	sel := NewSelector(&memStore{}, 7)
	w, err := sel.Window(context.Background(), rollup.GranularityGlobal, "", target)
	require.NoError(t, err)
	assert.Equal(t, 0, w.Days())
}

func TestWindowPropagatesStoreError(t *testing.T) {
	sel := NewSelector(&memStore{err: errors.New("disk gone")}, 7)
	_, err := sel.Window(context.Background(), rollup.GranularityGlobal, "", target)
	assert.Error(t, err)
}

func TestWindowMeanExcludesUndefinedDays(t *testing.T) {
	store := &memStore{}
	store.put(globalRow(target.AddDate(0, 0, -3), 100, 100000)) // arpu 10.00
	store.put(globalRow(target.AddDate(0, 0, -2), 50, 100000))  // arpu 20.00
	store.put(globalRow(target.AddDate(0, 0, -1), 0, 0))        // arpu undefined

	sel := NewSelector(store, 7)
	w, err := sel.Window(context.Background(), rollup.GranularityGlobal, "", target)
	require.NoError(t, err)

	mean, validDays, ok := w.Mean(rollup.MetricARPU)
	require.True(t, ok)
	assert.Equal(t, 2, validDays)
	assert.InDelta(t, 15.0, mean, 1e-9)

	assert.Equal(t, 2, w.ValidDays(rollup.MetricARPU))
	assert.Equal(t, 3, w.ValidDays(rollup.MetricQualityUsers))
}

func TestWindowMeanAllUndefined(t *testing.T) {
	store := &memStore{}
	store.put(globalRow(target.AddDate(0, 0, -1), 0, 0))

	sel := NewSelector(store, 7)
	w, err := sel.Window(context.Background(), rollup.GranularityGlobal, "", target)
	require.NoError(t, err)

	_, _, ok := w.Mean(rollup.MetricARPU)
	assert.False(t, ok)
}

func TestWindowNumeratorMean(t *testing.T) {
	store := &memStore{}
	store.put(globalRow(target.AddDate(0, 0, -2), 100, 80000))
	store.put(globalRow(target.AddDate(0, 0, -1), 100, 120000))

	sel := NewSelector(store, 7)
	w, err := sel.Window(context.Background(), rollup.GranularityGlobal, "", target)
	require.NoError(t, err)

	mean, validDays, ok := w.NumeratorMean(rollup.MetricARPU)
	require.True(t, ok)
	assert.Equal(t, 2, validDays)
	assert.InDelta(t, 100000, mean, 1e-9)
}

func TestNewSelectorDefaultWindow(t *testing.T) {
	sel := NewSelector(&memStore{}, 0)
	assert.Equal(t, DefaultWindowDays, sel.WindowDays())
}
