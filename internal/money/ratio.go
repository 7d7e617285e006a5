// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package money

// Ratio is a KPI ratio kept as an integer numerator/denominator pair.
// A ratio with a zero denominator is undefined, which is a first-class state:
// it is not 0, not NaN, and it propagates through comparisons explicitly.
// Float conversion happens only at presentation time via Value or Percent.
type Ratio struct {
	num     int64
	den     int64
	defined bool
}

// SafeRatio builds the ratio num/den, returning the undefined Ratio when
// den == 0. It never panics and never substitutes 0 for undefined.
func SafeRatio(num, den int64) Ratio {
	if den == 0 {
		return Ratio{}
	}
	return Ratio{num: num, den: den, defined: true}
}

// UndefinedRatio returns the explicit "no value" ratio.
func UndefinedRatio() Ratio { return Ratio{} }

// Defined reports whether the ratio has a value.
func (r Ratio) Defined() bool { return r.defined }

// Num returns the numerator. Zero for the undefined ratio.
func (r Ratio) Num() int64 { return r.num }

// Den returns the denominator. Zero for the undefined ratio.
func (r Ratio) Den() int64 { return r.den }

// Value returns the ratio as a float. ok is false for the undefined ratio.
func (r Ratio) Value() (v float64, ok bool) {
	if !r.defined {
		return 0, false
	}
	return float64(r.num) / float64(r.den), true
}

// Percent returns the ratio scaled to percent. ok is false when undefined.
func (r Ratio) Percent() (v float64, ok bool) {
	v, ok = r.Value()
	return v * 100, ok
}

// PercentChange returns (current-baseline)/baseline*100.
// ok is false when baseline is 0, matching the undefined-ratio contract.
func PercentChange(current, baseline float64) (change float64, ok bool) {
	if baseline == 0 {
		return 0, false
	}
	return (current - baseline) / baseline * 100, true
}

// PercentChangeRatio is PercentChange over two ratios; the change is
// undefined when either ratio is undefined or the baseline value is 0.
func PercentChangeRatio(current, baseline Ratio) (change float64, ok bool) {
	cur, curOK := current.Value()
	base, baseOK := baseline.Value()
	if !curOK || !baseOK {
		return 0, false
	}
	return PercentChange(cur, base)
}
