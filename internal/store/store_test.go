// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uawatch/uawatch/internal/config"
	"github.com/uawatch/uawatch/internal/fact"
	"github.com/uawatch/uawatch/internal/money"
	"github.com/uawatch/uawatch/internal/rollup"
)

var day = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "256MB",
		Threads:   1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(ch string, users int64, netCents int64) fact.Record {
	return fact.Record{
		Date:          day,
		Channel:       ch,
		Status:        fact.StatusGood,
		Verification:  fact.VerificationVerified,
		NewUsers:      users,
		RetainedUsers: users / 2,
		GrossRevenue:  money.Amount(netCents),
		NetRevenue:    money.Amount(netCents),
		CashCost:      money.Amount(netCents / 2),
	}
}

func TestPutFactsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []fact.Record{
		testRecord("organic", 100, 50000),
		testRecord("paid_search", 40, 20000),
	}
	require.NoError(t, s.PutFacts(ctx, day, records))

	got, err := s.Facts(ctx, day)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.ElementsMatch(t, records, got)

	n, err := s.FactCount(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPutFactsReplacesDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutFacts(ctx, day, []fact.Record{
		testRecord("organic", 100, 50000),
		testRecord("paid_search", 40, 20000),
	}))
	require.NoError(t, s.PutFacts(ctx, day, []fact.Record{
		testRecord("organic", 90, 45000),
	}))

	got, err := s.Facts(ctx, day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(90), got[0].NewUsers)

	// Other days are untouched.
	other := day.AddDate(0, 0, -1)
	n, err := s.FactCount(ctx, other)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testRollupRow(g rollup.Granularity, key string, quality int64, revenueCents int64) rollup.Row {
	return rollup.Row{
		Date:          day,
		Granularity:   g,
		Key:           key,
		AllUsers:      quality + 10,
		GoodUsers:     quality + 5,
		VerifiedUsers: quality + 3,
		QualityUsers:  quality,
		RetainedUsers: quality / 2,
		PayingUsers:   quality / 3,
		FemaleUsers:   quality / 4,
		YoungUsers:    quality / 5,
		HighTierUsers: quality / 6,
		TotalRevenue:  money.Amount(revenueCents),
		GrossRevenue:  money.Amount(revenueCents + 1000),
		TotalCost:     money.Amount(revenueCents / 2),
	}
}

func TestPutRollupsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows := []rollup.Row{
		testRollupRow(rollup.GranularityGlobal, "", 120, 100000),
		testRollupRow(rollup.GranularityChannel, "organic", 80, 80000),
		testRollupRow(rollup.GranularityChannel, "paid_search", 40, 20000),
	}
	require.NoError(t, s.PutRollups(ctx, day, rows))

	got, err := s.RollupsForDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.ElementsMatch(t, rows, got)

	global, ok, err := s.Rollup(ctx, day, rollup.GranularityGlobal, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rows[0], global)

	channels, err := s.ChannelRollups(ctx, day)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "organic", channels[0].Key)
	assert.Equal(t, "paid_search", channels[1].Key)
}

func TestRollupAbsentDay(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.Rollup(context.Background(), day, rollup.GranularityGlobal, "")
	require.NoError(t, err)
	assert.False(t, ok, "absent day is not an error")
}

func TestPutRollupsReplacesDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutRollups(ctx, day, []rollup.Row{
		testRollupRow(rollup.GranularityGlobal, "", 120, 100000),
		testRollupRow(rollup.GranularityChannel, "gone", 120, 100000),
	}))
	require.NoError(t, s.PutRollups(ctx, day, []rollup.Row{
		testRollupRow(rollup.GranularityGlobal, "", 90, 70000),
	}))

	got, err := s.RollupsForDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, got, 1, "rerun fully replaces the day")
	assert.Equal(t, int64(90), got[0].QualityUsers)
}

func TestMoneySurvivesRoundTripExactly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A sum that loses precision in binary floating point.
	row := testRollupRow(rollup.GranularityGlobal, "", 3, 30) // 0.10+0.10+0.10
	require.NoError(t, s.PutRollups(ctx, day, []rollup.Row{row}))

	got, ok, err := s.Rollup(ctx, day, rollup.GranularityGlobal, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, money.Amount(30), got.TotalRevenue)
	assert.Equal(t, "0.30", got.TotalRevenue.String())
}

func TestReportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	body := []byte(`{"status":"ok"}`)
	require.NoError(t, s.PutReport(ctx, day, "a2b4", time.Now(), body))

	got, ok, err := s.Report(ctx, day)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(body), string(got))

	_, ok, err = s.Report(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, ok)
}
