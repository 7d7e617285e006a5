// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package rollup

import (
	"errors"
	"fmt"
)

// InconsistentRollupError reports a failed reconciliation between the global
// row and the sum of per-channel rows. It indicates a defect in the fact set
// or the engine itself; the date's rollup must be aborted, not persisted.
type InconsistentRollupError struct {
	Field      string
	Global     int64
	ChannelSum int64
}

func (e *InconsistentRollupError) Error() string {
	return fmt.Sprintf("rollup reconciliation failed on %s: global=%d, channel sum=%d",
		e.Field, e.Global, e.ChannelSum)
}

// IsInconsistent reports whether err is a reconciliation failure.
func IsInconsistent(err error) bool {
	var target *InconsistentRollupError
	return errors.As(err, &target)
}

// Reconcile verifies that every raw integer sum on the global row equals the
// sum over the per-channel rows for the same date. Ratios are exempt (they
// do not distribute additively); the raw sums must match exactly.
func Reconcile(global Row, channels []Row) error {
	var sum Row
	for i := range channels {
		c := &channels[i]
		sum.AllUsers += c.AllUsers
		sum.GoodUsers += c.GoodUsers
		sum.VerifiedUsers += c.VerifiedUsers
		sum.QualityUsers += c.QualityUsers
		sum.RetainedUsers += c.RetainedUsers
		sum.PayingUsers += c.PayingUsers
		sum.FemaleUsers += c.FemaleUsers
		sum.YoungUsers += c.YoungUsers
		sum.HighTierUsers += c.HighTierUsers
		sum.TotalRevenue += c.TotalRevenue
		sum.GrossRevenue += c.GrossRevenue
		sum.TotalCost += c.TotalCost
	}

	checks := []struct {
		field       string
		global, got int64
	}{
		{"all_users", global.AllUsers, sum.AllUsers},
		{"good_users", global.GoodUsers, sum.GoodUsers},
		{"verified_users", global.VerifiedUsers, sum.VerifiedUsers},
		{"quality_users", global.QualityUsers, sum.QualityUsers},
		{"retained_users", global.RetainedUsers, sum.RetainedUsers},
		{"paying_users", global.PayingUsers, sum.PayingUsers},
		{"female_users", global.FemaleUsers, sum.FemaleUsers},
		{"young_users", global.YoungUsers, sum.YoungUsers},
		{"high_tier_users", global.HighTierUsers, sum.HighTierUsers},
		{"total_revenue", global.TotalRevenue.Cents(), sum.TotalRevenue.Cents()},
		{"gross_revenue", global.GrossRevenue.Cents(), sum.GrossRevenue.Cents()},
		{"total_cost", global.TotalCost.Cents(), sum.TotalCost.Cents()},
	}
	for _, c := range checks {
		if c.global != c.got {
			return &InconsistentRollupError{Field: c.field, Global: c.global, ChannelSum: c.got}
		}
	}
	return nil
}

// SplitGlobal separates the global row from the channel rows in an engine
// result. ok is false when no global row is present.
func SplitGlobal(rows []Row) (global Row, channels []Row, ok bool) {
	for i := range rows {
		switch rows[i].Granularity {
		case GranularityGlobal:
			global = rows[i]
			ok = true
		case GranularityChannel:
			channels = append(channels, rows[i])
		}
	}
	return global, channels, ok
}
