// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package fact

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uawatch/uawatch/internal/money"
)

func validRow() RawRow {
	return RawRow{
		"date":           "2026-08-20",
		"channel":        "organic",
		"agent":          "agency-a",
		"status":         "good",
		"verification":   "verified",
		"os":             "android",
		"gender":         "female",
		"age_band":       "20~23",
		"city_tier":      "tier1",
		"new_users":      float64(100),
		"retained_users": float64(40),
		"gross_revenue":  "800.00",
		"net_revenue":    "720.00",
		"cash_cost":      "400.00",
	}
}

func TestNormalizeValidRow(t *testing.T) {
	rec, err := Normalize(validRow())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), rec.Date)
	assert.Equal(t, "organic", rec.Channel)
	assert.Equal(t, int64(100), rec.NewUsers)
	assert.Equal(t, int64(40), rec.RetainedUsers)
	assert.Equal(t, money.Amount(80000), rec.GrossRevenue)
	assert.Equal(t, money.Amount(72000), rec.NetRevenue)
	assert.Equal(t, money.Amount(40000), rec.CashCost)
	assert.True(t, rec.IsQuality())
}

func TestNormalizeMissingDimensionsBecomeEmpty(t *testing.T) {
	row := validRow()
	delete(row, "channel")
	row["gender"] = nil

	rec, err := Normalize(row)
	require.NoError(t, err)

	// Empty string is a defined "unspecified" category, not a null marker.
	assert.Equal(t, "", rec.Channel)
	assert.Equal(t, "", rec.Gender)
	assert.False(t, rec.IsQuality() && rec.Status != "good")
}

func TestNormalizeIdempotent(t *testing.T) {
	row := validRow()

	first, err := Normalize(row)
	require.NoError(t, err)
	second, err := Normalize(row)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNormalizeRejectsRetainedAboveNew(t *testing.T) {
	row := validRow()
	row["new_users"] = float64(10)
	row["retained_users"] = float64(11)

	_, err := Normalize(row)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "must surface a ValidationError, never clamp")
	assert.Equal(t, "retained_users", verr.Field)
}

func TestNormalizeRejectsNetAboveGross(t *testing.T) {
	row := validRow()
	row["gross_revenue"] = "100.00"
	row["net_revenue"] = "100.01"

	_, err := Normalize(row)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "net_revenue", verr.Field)
}

func TestNormalizeRejectsNegatives(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value any
	}{
		{name: "negative count", field: "new_users", value: float64(-1)},
		{name: "negative revenue", field: "gross_revenue", value: "-5.00"},
		{name: "negative cost", field: "cash_cost", value: "-0.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validRow()
			if tt.field == "new_users" {
				row["retained_users"] = float64(-5)
			}
			row[tt.field] = tt.value

			_, err := Normalize(row)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
		})
	}
}

func TestNormalizeRejectsSubCentMoney(t *testing.T) {
	row := validRow()
	row["cash_cost"] = "400.0001"

	_, err := Normalize(row)
	require.Error(t, err)

	var perr *money.PrecisionError
	assert.True(t, errors.As(err, &perr))
}

func TestNormalizeRejectsFractionalCount(t *testing.T) {
	row := validRow()
	row["new_users"] = 99.5

	_, err := Normalize(row)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "new_users", verr.Field)
}

func TestNormalizeBatchCollectsErrors(t *testing.T) {
	bad := validRow()
	bad["retained_users"] = float64(9999)

	subCent := validRow()
	subCent["net_revenue"] = "1.00001"
	subCent["gross_revenue"] = "2.00"

	rows := []RawRow{validRow(), bad, subCent, validRow()}
	records, report := NormalizeBatch(rows)

	assert.Len(t, records, 2)
	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, 2, report.Rejected)
	assert.Equal(t, 1, report.ValidationErrors)
	assert.Equal(t, 1, report.PrecisionErrors)
	assert.Len(t, report.Examples, 2)
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	in := time.Date(2026, 8, 20, 2, 30, 0, 0, loc) // 2026-08-19T18:30Z
	assert.Equal(t, time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC), Day(in))
}
