// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

// Package fact converts raw heterogeneous fact rows from the upstream
// warehouse into canonical typed records, enforcing field-level invariants
// and fixed-point money representation.
package fact

import (
	"fmt"
	"time"

	"github.com/uawatch/uawatch/internal/money"
)

// RawRow is one upstream observation as a loose field map. Values are
// strings, numbers, or nil; absent and nil are treated uniformly.
type RawRow map[string]any

// Record is one canonical daily fact. Dimension values are plain strings
// where the empty string is a defined "unspecified" category, distinct from
// a missing column upstream.
type Record struct {
	Date time.Time

	// Dimension key.
	Channel      string
	Agent        string
	Account      string
	SubChannel   string
	Status       string
	Verification string
	OS           string
	Gender       string
	AgeBand      string
	CityTier     string

	NewUsers      int64
	RetainedUsers int64

	GrossRevenue money.Amount
	NetRevenue   money.Amount
	CashCost     money.Amount
}

// Dimension status/verification values recognized by the rollup population
// filters. Any other value is kept verbatim; it simply falls outside the
// good/verified populations.
const (
	StatusGood           = "good"
	VerificationVerified = "verified"
)

// IsQuality reports whether the record belongs to the quality population
// (good AND verified), the denominator population for ARPU, CPA, and
// retention.
func (r *Record) IsQuality() bool {
	return r.Status == StatusGood && r.Verification == VerificationVerified
}

// ValidationError reports a violated record invariant. Violating records are
// rejected, never clamped.
type ValidationError struct {
	Field     string
	Invariant string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %s: violates %s", e.Field, e.Invariant)
}
