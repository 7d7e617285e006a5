// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package rollup

import (
	"fmt"
	"sort"
	"time"

	"github.com/uawatch/uawatch/internal/fact"
)

// Age bands and city tiers that feed the young/high-tier quality splits.
// Values mirror the upstream categorical vocabulary.
var (
	youngAgeBands = map[string]bool{"20-": true, "20~23": true}
	highCityTiers = map[string]bool{"tier0": true, "tier1": true, "tier2": true}
)

// keyFunc extracts the grouping key for a granularity.
var keyFuncs = map[Granularity]func(*fact.Record) string{
	GranularityGlobal:  func(*fact.Record) string { return "" },
	GranularityChannel: func(r *fact.Record) string { return r.Channel },
}

// Engine aggregates one date's fact records into rollup rows at its
// configured granularities. The engine is stateless and safe for concurrent
// use; each Rollup call is a pure function of its inputs.
type Engine struct {
	granularities []Granularity
}

// NewEngine creates an engine for the given granularities, defaulting to
// global + channel when none are given.
func NewEngine(granularities ...Granularity) (*Engine, error) {
	if len(granularities) == 0 {
		granularities = []Granularity{GranularityGlobal, GranularityChannel}
	}
	for _, g := range granularities {
		if _, ok := keyFuncs[g]; !ok {
			return nil, fmt.Errorf("unknown granularity %q", g)
		}
	}
	return &Engine{granularities: granularities}, nil
}

// Granularities returns the engine's configured granularities.
func (e *Engine) Granularities() []Granularity {
	out := make([]Granularity, len(e.granularities))
	copy(out, e.granularities)
	return out
}

// Rollup groups the records by key for every configured granularity and
// returns one Row per distinct key, sorted by (granularity, key) so the
// output is independent of input order. All records must carry the batch
// date; a stray date indicates a defective fact set.
func (e *Engine) Rollup(date time.Time, records []fact.Record) ([]Row, error) {
	date = fact.Day(date)
	for i := range records {
		if !records[i].Date.Equal(date) {
			return nil, fmt.Errorf("record date %s does not match batch date %s",
				records[i].Date.Format("2006-01-02"), date.Format("2006-01-02"))
		}
	}

	var rows []Row
	for _, g := range e.granularities {
		rows = append(rows, e.rollupGranularity(g, date, records)...)
	}
	return rows, nil
}

func (e *Engine) rollupGranularity(g Granularity, date time.Time, records []fact.Record) []Row {
	keyOf := keyFuncs[g]
	groups := make(map[string]*Row)

	for i := range records {
		rec := &records[i]
		key := keyOf(rec)
		row, ok := groups[key]
		if !ok {
			row = &Row{Date: date, Granularity: g, Key: key}
			groups[key] = row
		}
		accumulate(row, rec)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]Row, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, *groups[k])
	}
	return rows
}

// accumulate adds one record's integer sums to a row. Population rules:
// good counts status=good regardless of verification, verified the converse,
// quality requires both. Retention, revenue, cost, and the demographic
// splits are restricted to the quality population, matching the ARPU/CPA
// denominator definition.
func accumulate(row *Row, rec *fact.Record) {
	row.AllUsers += rec.NewUsers

	good := rec.Status == fact.StatusGood
	verified := rec.Verification == fact.VerificationVerified

	if good {
		row.GoodUsers += rec.NewUsers
	}
	if verified {
		row.VerifiedUsers += rec.NewUsers
	}
	if !good || !verified {
		return
	}

	row.QualityUsers += rec.NewUsers
	row.RetainedUsers += rec.RetainedUsers
	row.TotalRevenue += rec.NetRevenue
	row.GrossRevenue += rec.GrossRevenue
	row.TotalCost += rec.CashCost

	if rec.NetRevenue > 0 {
		row.PayingUsers += rec.NewUsers
	}
	if rec.Gender == "female" {
		row.FemaleUsers += rec.NewUsers
	}
	if youngAgeBands[rec.AgeBand] {
		row.YoungUsers += rec.NewUsers
	}
	if highCityTiers[rec.CityTier] {
		row.HighTierUsers += rec.NewUsers
	}
}
