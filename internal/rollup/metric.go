// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package rollup

import "github.com/uawatch/uawatch/internal/money"

// Metric names a KPI carried by a Row: either an absolute count/money sum or
// a derived ratio. Detection rules and contribution ranking address rows
// through this enumeration.
type Metric string

const (
	MetricAllUsers      Metric = "all_users"
	MetricQualityUsers  Metric = "quality_users"
	MetricRetainedUsers Metric = "retained_users"
	MetricPayingUsers   Metric = "paying_users"
	MetricTotalRevenue  Metric = "total_revenue"
	MetricTotalCost     Metric = "total_cost"

	MetricGoodRate       Metric = "good_rate"
	MetricVerifiedRate   Metric = "verified_rate"
	MetricQualityRate    Metric = "quality_rate"
	MetricRetentionRate  Metric = "retention_rate"
	MetricARPU           Metric = "arpu"
	MetricCPA            Metric = "cpa"
	MetricConversionRate Metric = "conversion_rate"
)

// Metrics lists every supported metric name.
func Metrics() []Metric {
	return []Metric{
		MetricAllUsers, MetricQualityUsers, MetricRetainedUsers,
		MetricPayingUsers, MetricTotalRevenue, MetricTotalCost,
		MetricGoodRate, MetricVerifiedRate, MetricQualityRate,
		MetricRetentionRate, MetricARPU, MetricCPA, MetricConversionRate,
	}
}

// Valid reports whether m is a known metric name.
func (m Metric) Valid() bool {
	for _, known := range Metrics() {
		if m == known {
			return true
		}
	}
	return false
}

// IsRatio reports whether the metric is a derived ratio (as opposed to an
// absolute count or money sum).
func (m Metric) IsRatio() bool {
	switch m {
	case MetricGoodRate, MetricVerifiedRate, MetricQualityRate,
		MetricRetentionRate, MetricARPU, MetricCPA, MetricConversionRate:
		return true
	default:
		return false
	}
}

// Value returns the metric's presentation value for the row. For counts this
// is the count itself; for money sums the major-unit value; for ratios the
// float quotient. ok is false when the metric is undefined for this row
// (zero denominator) or unknown.
func (r *Row) Value(m Metric) (v float64, ok bool) {
	switch m {
	case MetricAllUsers:
		return float64(r.AllUsers), true
	case MetricQualityUsers:
		return float64(r.QualityUsers), true
	case MetricRetainedUsers:
		return float64(r.RetainedUsers), true
	case MetricPayingUsers:
		return float64(r.PayingUsers), true
	case MetricTotalRevenue:
		return r.TotalRevenue.Major(), true
	case MetricTotalCost:
		return r.TotalCost.Major(), true
	case MetricGoodRate:
		return r.GoodRate().Value()
	case MetricVerifiedRate:
		return r.VerifiedRate().Value()
	case MetricQualityRate:
		return r.QualityRate().Value()
	case MetricRetentionRate:
		return r.RetentionRate().Value()
	case MetricARPU:
		return ratioMajor(r.ARPU())
	case MetricCPA:
		return ratioMajor(r.CPA())
	case MetricConversionRate:
		return r.ConversionRate().Value()
	default:
		return 0, false
	}
}

// Numerator returns the metric's underlying integer numerator: the count or
// minor-unit sum itself for absolute metrics, the ratio's numerator for
// derived ones. Contribution ranking decomposes deviations over this value.
func (r *Row) Numerator(m Metric) int64 {
	switch m {
	case MetricAllUsers:
		return r.AllUsers
	case MetricQualityUsers:
		return r.QualityUsers
	case MetricRetainedUsers, MetricRetentionRate:
		return r.RetainedUsers
	case MetricPayingUsers, MetricConversionRate:
		return r.PayingUsers
	case MetricTotalRevenue, MetricARPU:
		return r.TotalRevenue.Cents()
	case MetricTotalCost, MetricCPA:
		return r.TotalCost.Cents()
	case MetricGoodRate:
		return r.GoodUsers
	case MetricVerifiedRate:
		return r.VerifiedUsers
	case MetricQualityRate:
		return r.QualityUsers
	default:
		return 0
	}
}

// ratioMajor converts a minor-unit money ratio to major units for display.
func ratioMajor(r money.Ratio) (float64, bool) {
	v, ok := r.Value()
	return v / 100, ok
}
