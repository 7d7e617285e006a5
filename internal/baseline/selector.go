// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

// Package baseline retrieves the trailing comparison window of rollup rows
// that anomaly detection measures a target date against.
package baseline

import (
	"context"
	"fmt"
	"time"

	"github.com/uawatch/uawatch/internal/fact"
	"github.com/uawatch/uawatch/internal/rollup"
)

// DefaultWindowDays is the trailing window size when none is configured.
const DefaultWindowDays = 7

// RollupStore is the read side of the aggregate store the selector consumes.
type RollupStore interface {
	// Rollup returns the stored row for (date, granularity, key).
	// ok is false when no row exists for that day.
	Rollup(ctx context.Context, date time.Time, g rollup.Granularity, key string) (row rollup.Row, ok bool, err error)
}

// Window is an ordered sequence of rollup rows for one granularity key,
// covering up to N days strictly before the target date, ascending. Days
// with no stored row are simply absent; nothing is interpolated or
// zero-filled.
type Window struct {
	Rows []rollup.Row
}

// Days returns the number of days present in the window.
func (w Window) Days() int { return len(w.Rows) }

// ValidDays counts the days whose value for the metric is defined.
// Undefined days are excluded both from baseline means and from the day
// count a rule's minBaselineDays is checked against.
func (w Window) ValidDays(m rollup.Metric) int {
	n := 0
	for i := range w.Rows {
		if _, ok := w.Rows[i].Value(m); ok {
			n++
		}
	}
	return n
}

// Mean returns the arithmetic mean of the metric over the window's valid
// days, along with how many days contributed. ok is false when no day has a
// defined value.
func (w Window) Mean(m rollup.Metric) (mean float64, validDays int, ok bool) {
	var sum float64
	for i := range w.Rows {
		v, defined := w.Rows[i].Value(m)
		if !defined {
			continue
		}
		sum += v
		validDays++
	}
	if validDays == 0 {
		return 0, 0, false
	}
	return sum / float64(validDays), validDays, true
}

// NumeratorMean returns the arithmetic mean of the metric's integer
// numerator over the window's valid days. Contribution ranking decomposes
// deviations against this statistic.
func (w Window) NumeratorMean(m rollup.Metric) (mean float64, validDays int, ok bool) {
	var sum float64
	for i := range w.Rows {
		if _, defined := w.Rows[i].Value(m); !defined {
			continue
		}
		sum += float64(w.Rows[i].Numerator(m))
		validDays++
	}
	if validDays == 0 {
		return 0, 0, false
	}
	return sum / float64(validDays), validDays, true
}

// Selector fetches baseline windows from a rollup store.
//
// The selector never fails on a short window; rules decide via
// minBaselineDays whether the window is usable. Only store errors propagate.
type Selector struct {
	store      RollupStore
	windowDays int
}

// NewSelector creates a selector with the given window size, defaulting to
// DefaultWindowDays when non-positive.
func NewSelector(store RollupStore, windowDays int) *Selector {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &Selector{store: store, windowDays: windowDays}
}

// WindowDays returns the configured window size.
func (s *Selector) WindowDays() int { return s.windowDays }

// Window returns the rollup rows for the key on the N calendar days strictly
// before target, in ascending date order, skipping absent days.
func (s *Selector) Window(ctx context.Context, g rollup.Granularity, key string, target time.Time) (Window, error) {
	target = fact.Day(target)
	var w Window
	for offset := s.windowDays; offset >= 1; offset-- {
		date := target.AddDate(0, 0, -offset)
		row, ok, err := s.store.Rollup(ctx, date, g, key)
		if err != nil {
			return Window{}, fmt.Errorf("failed to load baseline row for %s: %w",
				date.Format("2006-01-02"), err)
		}
		if !ok {
			continue
		}
		w.Rows = append(w.Rows, row)
	}
	return w, nil
}
