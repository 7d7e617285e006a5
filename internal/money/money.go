// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

// Package money provides fixed-point monetary amounts and safe ratio
// arithmetic for KPI computation.
//
// Amounts are stored as int64 counts of minor units (cents). All storage and
// accumulation is integer; conversion to major units happens only at the
// presentation boundary. Ratios are tagged defined/undefined values so a zero
// denominator never degrades into 0 or NaN downstream.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value in minor units (cents).
type Amount int64

// centFactor converts major units to minor units.
var centFactor = decimal.NewFromInt(100)

// ErrAmountRange is returned when a value does not fit in int64 minor units.
var ErrAmountRange = errors.New("amount out of int64 minor-unit range")

// PrecisionError is returned when a monetary value carries more fractional
// precision than one minor unit can represent without silent loss beyond the
// half-up rounding rule.
type PrecisionError struct {
	Value string
}

func (e *PrecisionError) Error() string {
	return fmt.Sprintf("monetary value %q has sub-cent precision that cannot be represented", e.Value)
}

// ParseAmount converts a major-unit decimal string into minor units.
// A single digit beyond the cent is resolved by round-half-up; any deeper
// non-zero precision is a *PrecisionError, never silently dropped.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid monetary value %q: %w", s, err)
	}
	return FromDecimal(d)
}

// FromFloat converts a major-unit float into minor units with the same
// precision rules as ParseAmount. decimal.NewFromFloat recovers the shortest
// decimal representation, so binary float noise (800.0000000000001) does not
// trip the precision check.
func FromFloat(f float64) (Amount, error) {
	return FromDecimal(decimal.NewFromFloat(f))
}

// FromDecimal converts a major-unit decimal into minor units using
// round-half-up on the third fractional digit.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	// More than three fractional digits of real information cannot survive
	// the half-up rule, so reject before rounding.
	if !d.Equal(d.Truncate(3)) {
		return 0, &PrecisionError{Value: d.String()}
	}

	cents := d.Mul(centFactor).Round(0)
	if !cents.BigInt().IsInt64() {
		return 0, fmt.Errorf("monetary value %s: %w", d.String(), ErrAmountRange)
	}
	return Amount(cents.IntPart()), nil
}

// Cents returns the raw minor-unit count.
func (a Amount) Cents() int64 { return int64(a) }

// Major returns the major-unit value as a float. Presentation only; never
// feed the result back into accumulation.
func (a Amount) Major() float64 {
	return float64(a) / 100
}

// String renders the amount in major units with two fractional digits.
func (a Amount) String() string {
	return decimal.New(int64(a), -2).StringFixed(2)
}
