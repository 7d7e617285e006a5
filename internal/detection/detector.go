// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package detection

import (
	"math"
	"sort"
	"time"

	"github.com/uawatch/uawatch/internal/baseline"
	"github.com/uawatch/uawatch/internal/money"
	"github.com/uawatch/uawatch/internal/rollup"
)

// Finding is one detected anomaly on a (row, metric) pair.
type Finding struct {
	Date     time.Time     `json:"date"`
	Metric   rollup.Metric `json:"metric"`
	Observed float64       `json:"observed"`
	Baseline float64       `json:"baseline"`

	// PercentChange against the baseline mean; nil when the mean is zero
	// (undefined change, never reported as 0).
	PercentChange *float64 `json:"percent_change,omitempty"`

	Severity Severity `json:"severity"`
	Rule     Rule     `json:"rule"`

	// Contributions is filled by the Ranker for global findings.
	Contributions []ContributionEntry `json:"contributions,omitempty"`
}

// Detect evaluates every rule against the target row and its baseline
// window. It is a pure function: no I/O, deterministic output. For each
// metric with multiple triggering rules only the highest-severity match is
// kept (ties broken by larger absolute threshold). Output order is
// unspecified; callers sort via SortFindings for presentation.
func Detect(row rollup.Row, window baseline.Window, rules []Rule) []Finding {
	best := make(map[rollup.Metric]Finding)

	for _, rule := range rules {
		finding, triggered := evaluate(row, window, rule)
		if !triggered {
			continue
		}
		cur, exists := best[rule.Metric]
		if !exists || supersedes(finding.Rule, cur.Rule) {
			best[rule.Metric] = finding
		}
	}

	findings := make([]Finding, 0, len(best))
	for _, f := range best {
		findings = append(findings, f)
	}
	return findings
}

// supersedes reports whether rule a wins over rule b for the same metric:
// higher severity first, then the larger absolute threshold.
func supersedes(a, b Rule) bool {
	if a.Severity.Rank() != b.Severity.Rank() {
		return a.Severity.Rank() > b.Severity.Rank()
	}
	return math.Abs(a.ThresholdValue) > math.Abs(b.ThresholdValue)
}

// evaluate applies one rule to the row. A skipped rule (undefined observed
// value, short baseline, undefined change) is steady-state behavior, not a
// failure.
func evaluate(row rollup.Row, window baseline.Window, rule Rule) (Finding, bool) {
	observed, ok := row.Value(rule.Metric)
	if !ok {
		// The metric is undefined for the target row; nothing to compare.
		return Finding{}, false
	}

	mean, validDays, ok := window.Mean(rule.Metric)
	if !ok || validDays < rule.MinBaselineDays {
		return Finding{}, false
	}

	var triggered bool
	switch rule.ThresholdKind {
	case ThresholdPercentage:
		change, defined := money.PercentChange(observed, mean)
		if !defined {
			return Finding{}, false
		}
		triggered = directionTriggered(change, rule.Direction, rule.ThresholdValue)
	case ThresholdAbsolute:
		triggered = directionTriggered(observed-mean, rule.Direction, rule.ThresholdValue)
	case ThresholdIQR:
		triggered = iqrTriggered(observed, window, rule)
	default:
		return Finding{}, false
	}
	if !triggered {
		return Finding{}, false
	}

	f := Finding{
		Date:     row.Date,
		Metric:   rule.Metric,
		Observed: observed,
		Baseline: mean,
		Severity: rule.Severity,
		Rule:     rule,
	}
	if change, defined := money.PercentChange(observed, mean); defined {
		f.PercentChange = &change
	}
	return f, true
}

// directionTriggered applies the signed-change trigger semantics: increase
// fires at change >= threshold, decrease at change <= -threshold, either at
// |change| >= threshold.
func directionTriggered(change float64, dir Direction, threshold float64) bool {
	switch dir {
	case DirectionIncrease:
		return change >= threshold
	case DirectionDecrease:
		return change <= -threshold
	case DirectionEither:
		return math.Abs(change) >= threshold
	default:
		return false
	}
}

// iqrTriggered checks the observed value against quartile fences over the
// window's valid days. The rule's direction filters which fence counts.
func iqrTriggered(observed float64, window baseline.Window, rule Rule) bool {
	values := definedValues(window, rule.Metric)
	if len(values) < 2 {
		// A single point has no spread; quartile fences are meaningless.
		return false
	}
	sort.Float64s(values)

	q1 := percentile(values, 25)
	q3 := percentile(values, 75)
	iqr := q3 - q1
	lower := q1 - rule.ThresholdValue*iqr
	upper := q3 + rule.ThresholdValue*iqr

	switch rule.Direction {
	case DirectionIncrease:
		return observed > upper
	case DirectionDecrease:
		return observed < lower
	case DirectionEither:
		return observed < lower || observed > upper
	default:
		return false
	}
}

func definedValues(window baseline.Window, m rollup.Metric) []float64 {
	values := make([]float64, 0, len(window.Rows))
	for i := range window.Rows {
		if v, ok := window.Rows[i].Value(m); ok {
			values = append(values, v)
		}
	}
	return values
}

// percentile computes the p-th percentile of sorted values with linear
// interpolation between adjacent ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// SortFindings orders findings for presentation: severity descending, then
// absolute percent change descending (undefined last), then metric name for
// a deterministic total order.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		ac, bc := absChange(a), absChange(b)
		if ac != bc {
			return ac > bc
		}
		return a.Metric < b.Metric
	})
}

func absChange(f Finding) float64 {
	if f.PercentChange == nil {
		return -1
	}
	return math.Abs(*f.PercentChange)
}
