// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

// Package rollup aggregates canonical fact records into KPI rows at declared
// granularities and computes the derived ratios.
//
// A Row stores integer sums only. Every derived ratio is exposed as a
// money.Ratio built from those sums on demand, so recomputation is always
// bit-identical and floats never enter accumulation.
package rollup

import (
	"time"

	"github.com/uawatch/uawatch/internal/money"
)

// Granularity names a key-extraction scheme for rollup rows.
type Granularity string

const (
	// GranularityGlobal aggregates all records under the empty key.
	GranularityGlobal Granularity = "global"

	// GranularityChannel aggregates per acquisition channel.
	GranularityChannel Granularity = "channel"
)

// Row is one aggregation result for a (date, granularity, key) scope.
// The empty Key on the global granularity denotes the whole population.
type Row struct {
	Date        time.Time   `json:"date"`
	Granularity Granularity `json:"granularity"`
	Key         string      `json:"key"`

	AllUsers      int64 `json:"all_users"`
	GoodUsers     int64 `json:"good_users"`
	VerifiedUsers int64 `json:"verified_users"`
	QualityUsers  int64 `json:"quality_users"`
	RetainedUsers int64 `json:"retained_users"`
	PayingUsers   int64 `json:"paying_users"`

	// Demographic splits within the quality population.
	FemaleUsers   int64 `json:"female_users"`
	YoungUsers    int64 `json:"young_users"`
	HighTierUsers int64 `json:"high_tier_users"`

	// Monetary sums in minor units, restricted to the quality population
	// (the ARPU/CPA business definition).
	TotalRevenue money.Amount `json:"total_revenue"`
	GrossRevenue money.Amount `json:"gross_revenue"`
	TotalCost    money.Amount `json:"total_cost"`
}

// GoodRate is goodUsers/allUsers.
func (r *Row) GoodRate() money.Ratio {
	return money.SafeRatio(r.GoodUsers, r.AllUsers)
}

// VerifiedRate is verifiedUsers/allUsers.
func (r *Row) VerifiedRate() money.Ratio {
	return money.SafeRatio(r.VerifiedUsers, r.AllUsers)
}

// QualityRate is qualityUsers/allUsers.
func (r *Row) QualityRate() money.Ratio {
	return money.SafeRatio(r.QualityUsers, r.AllUsers)
}

// RetentionRate is retainedUsers/qualityUsers.
func (r *Row) RetentionRate() money.Ratio {
	return money.SafeRatio(r.RetainedUsers, r.QualityUsers)
}

// ARPU is totalRevenue/qualityUsers in minor units per user.
func (r *Row) ARPU() money.Ratio {
	return money.SafeRatio(r.TotalRevenue.Cents(), r.QualityUsers)
}

// CPA is totalCost/qualityUsers in minor units per user.
func (r *Row) CPA() money.Ratio {
	return money.SafeRatio(r.TotalCost.Cents(), r.QualityUsers)
}

// ConversionRate is payingUsers/qualityUsers.
func (r *Row) ConversionRate() money.Ratio {
	return money.SafeRatio(r.PayingUsers, r.QualityUsers)
}

// FemaleRatio is femaleUsers/qualityUsers.
func (r *Row) FemaleRatio() money.Ratio {
	return money.SafeRatio(r.FemaleUsers, r.QualityUsers)
}

// YoungRatio is youngUsers/qualityUsers.
func (r *Row) YoungRatio() money.Ratio {
	return money.SafeRatio(r.YoungUsers, r.QualityUsers)
}

// HighTierRatio is highTierUsers/qualityUsers.
func (r *Row) HighTierRatio() money.Ratio {
	return money.SafeRatio(r.HighTierUsers, r.QualityUsers)
}
