// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

// Package source fetches raw user-acquisition fact rows from the upstream
// warehouse and lands normalized records in the local store. The upstream
// is append-only and authoritative; a day is always fetched whole so a
// re-sync fully replaces the local copy.
package source

import (
	"context"
	"time"

	"github.com/uawatch/uawatch/internal/fact"
)

// FactSource fetches one day's raw fact rows from an upstream system.
type FactSource interface {
	// FetchDay returns every raw row for the date, including cost rows.
	FetchDay(ctx context.Context, date time.Time) ([]fact.RawRow, error)

	// Ping verifies upstream connectivity.
	Ping(ctx context.Context) error

	Close() error
}
