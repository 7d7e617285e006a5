// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package fact

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/uawatch/uawatch/internal/money"
)

// Raw field names as delivered by the upstream warehouse.
const (
	FieldDate          = "date"
	FieldChannel       = "channel"
	FieldAgent         = "agent"
	FieldAccount       = "account"
	FieldSubChannel    = "sub_channel"
	FieldStatus        = "status"
	FieldVerification  = "verification"
	FieldOS            = "os"
	FieldGender        = "gender"
	FieldAgeBand       = "age_band"
	FieldCityTier      = "city_tier"
	FieldNewUsers      = "new_users"
	FieldRetainedUsers = "retained_users"
	FieldGrossRevenue  = "gross_revenue"
	FieldNetRevenue    = "net_revenue"
	FieldCashCost      = "cash_cost"
)

// Normalize converts one raw row into a canonical Record.
// It is deterministic and idempotent: the same raw row always yields an
// identical Record. Any invariant violation is returned as a
// *ValidationError; monetary precision problems as a *money.PrecisionError.
func Normalize(row RawRow) (Record, error) {
	var rec Record
	var err error

	if rec.Date, err = dateField(row, FieldDate); err != nil {
		return Record{}, err
	}

	// Missing categorical values become the empty string, a defined
	// "unspecified" category, never a null marker.
	rec.Channel = stringField(row, FieldChannel)
	rec.Agent = stringField(row, FieldAgent)
	rec.Account = stringField(row, FieldAccount)
	rec.SubChannel = stringField(row, FieldSubChannel)
	rec.Status = stringField(row, FieldStatus)
	rec.Verification = stringField(row, FieldVerification)
	rec.OS = stringField(row, FieldOS)
	rec.Gender = stringField(row, FieldGender)
	rec.AgeBand = stringField(row, FieldAgeBand)
	rec.CityTier = stringField(row, FieldCityTier)

	if rec.NewUsers, err = countField(row, FieldNewUsers); err != nil {
		return Record{}, err
	}
	if rec.RetainedUsers, err = countField(row, FieldRetainedUsers); err != nil {
		return Record{}, err
	}
	if rec.GrossRevenue, err = moneyField(row, FieldGrossRevenue); err != nil {
		return Record{}, err
	}
	if rec.NetRevenue, err = moneyField(row, FieldNetRevenue); err != nil {
		return Record{}, err
	}
	if rec.CashCost, err = moneyField(row, FieldCashCost); err != nil {
		return Record{}, err
	}

	if err = validate(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// validate runs the record invariants after normalization. Violations are
// rejections; values are never coerced into range.
func validate(rec *Record) error {
	switch {
	case rec.NewUsers < 0:
		return &ValidationError{Field: FieldNewUsers, Invariant: "non-negative count"}
	case rec.RetainedUsers < 0:
		return &ValidationError{Field: FieldRetainedUsers, Invariant: "non-negative count"}
	case rec.RetainedUsers > rec.NewUsers:
		return &ValidationError{Field: FieldRetainedUsers, Invariant: "retained_users <= new_users"}
	case rec.GrossRevenue < 0:
		return &ValidationError{Field: FieldGrossRevenue, Invariant: "non-negative money"}
	case rec.NetRevenue < 0:
		return &ValidationError{Field: FieldNetRevenue, Invariant: "non-negative money"}
	case rec.NetRevenue > rec.GrossRevenue:
		return &ValidationError{Field: FieldNetRevenue, Invariant: "net_revenue <= gross_revenue"}
	case rec.CashCost < 0:
		return &ValidationError{Field: FieldCashCost, Invariant: "non-negative money"}
	}
	return nil
}

func stringField(row RawRow, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func dateField(row RawRow, key string) (time.Time, error) {
	v, ok := row[key]
	if !ok || v == nil {
		return time.Time{}, &ValidationError{Field: key, Invariant: "date present"}
	}
	switch d := v.(type) {
	case time.Time:
		return Day(d), nil
	case string:
		t, err := time.Parse("2006-01-02", strings.TrimSpace(d))
		if err != nil {
			return time.Time{}, &ValidationError{Field: key, Invariant: "date format YYYY-MM-DD"}
		}
		return Day(t), nil
	default:
		return time.Time{}, &ValidationError{Field: key, Invariant: "date is string or time"}
	}
}

func countField(row RawRow, key string) (int64, error) {
	v, ok := row[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, &ValidationError{Field: key, Invariant: "count in int64 range"}
		}
		return int64(n), nil
	case float64:
		// JSON numbers arrive as float64; counts must still be integral.
		if n != math.Trunc(n) {
			return 0, &ValidationError{Field: key, Invariant: "integer count"}
		}
		return int64(n), nil
	default:
		return 0, &ValidationError{Field: key, Invariant: "numeric count"}
	}
}

func moneyField(row RawRow, key string) (money.Amount, error) {
	v, ok := row[key]
	if !ok || v == nil {
		return 0, nil
	}
	var (
		amt money.Amount
		err error
	)
	switch m := v.(type) {
	case string:
		amt, err = money.ParseAmount(strings.TrimSpace(m))
	case float64:
		amt, err = money.FromFloat(m)
	case int64:
		amt, err = money.FromFloat(float64(m))
	case int:
		amt, err = money.FromFloat(float64(m))
	default:
		return 0, &ValidationError{Field: key, Invariant: "monetary value is string or number"}
	}
	if err != nil {
		var perr *money.PrecisionError
		if errors.As(err, &perr) {
			return 0, perr
		}
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return amt, nil
}

// Day truncates a timestamp to UTC midnight, the canonical batch date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
