// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uawatch/uawatch/internal/fact"
	"github.com/uawatch/uawatch/internal/logging"
	"github.com/uawatch/uawatch/internal/money"
	"github.com/uawatch/uawatch/internal/rollup"
)

const rollupColumns = `date, granularity, key,
	all_users, good_users, verified_users, quality_users,
	retained_users, paying_users,
	female_users, young_users, high_tier_users,
	total_revenue_cents, gross_revenue_cents, total_cost_cents`

// PutRollups replaces all rollup rows for a date in one transaction. A rerun
// of the same day always produces a clean full replacement, never a merge
// with stale rows.
func (s *Store) PutRollups(ctx context.Context, date time.Time, rows []rollup.Row) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rollups WHERE date = ?`, date); err != nil {
		return fmt.Errorf("failed to clear rollups for %s: %w", date.Format("2006-01-02"), err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rollups (`+rollupColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare rollup insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range rows {
		r := &rows[i]
		if _, err := stmt.ExecContext(ctx,
			r.Date, string(r.Granularity), r.Key,
			r.AllUsers, r.GoodUsers, r.VerifiedUsers, r.QualityUsers,
			r.RetainedUsers, r.PayingUsers,
			r.FemaleUsers, r.YoungUsers, r.HighTierUsers,
			r.TotalRevenue.Cents(), r.GrossRevenue.Cents(), r.TotalCost.Cents(),
		); err != nil {
			return fmt.Errorf("failed to insert rollup row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollups: %w", err)
	}

	logging.Debug().
		Str("date", date.Format("2006-01-02")).
		Int("rows", len(rows)).
		Msg("Rollups stored")
	return nil
}

// Rollup loads a single rollup row. The second return reports whether the
// row exists; an absent day is not an error.
func (s *Store) Rollup(ctx context.Context, date time.Time, g rollup.Granularity, key string) (rollup.Row, bool, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+rollupColumns+`
		FROM rollups WHERE date = ? AND granularity = ? AND key = ?`,
		date, string(g), key)

	r, err := scanRollup(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return rollup.Row{}, false, nil
	}
	if err != nil {
		return rollup.Row{}, false, fmt.Errorf("failed to load rollup: %w", err)
	}
	return r, true, nil
}

// RollupsForDate returns all rollup rows for a date, sorted by granularity
// and key.
func (s *Store) RollupsForDate(ctx context.Context, date time.Time) ([]rollup.Row, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+rollupColumns+`
		FROM rollups WHERE date = ? ORDER BY granularity, key`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []rollup.Row
	for rows.Next() {
		r, err := scanRollup(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rollup row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rollups: %w", err)
	}
	return out, nil
}

// ChannelRollups returns the channel-granularity rows for a date, sorted by
// key. The detection pipeline uses them as contribution targets.
func (s *Store) ChannelRollups(ctx context.Context, date time.Time) ([]rollup.Row, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+rollupColumns+`
		FROM rollups WHERE date = ? AND granularity = ? ORDER BY key`,
		date, string(rollup.GranularityChannel))
	if err != nil {
		return nil, fmt.Errorf("failed to query channel rollups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []rollup.Row
	for rows.Next() {
		r, err := scanRollup(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel rollup: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channel rollups: %w", err)
	}
	return out, nil
}

func scanRollup(scan func(dest ...any) error) (rollup.Row, error) {
	var r rollup.Row
	var g string
	var revenue, gross, cost int64
	err := scan(
		&r.Date, &g, &r.Key,
		&r.AllUsers, &r.GoodUsers, &r.VerifiedUsers, &r.QualityUsers,
		&r.RetainedUsers, &r.PayingUsers,
		&r.FemaleUsers, &r.YoungUsers, &r.HighTierUsers,
		&revenue, &gross, &cost,
	)
	if err != nil {
		return rollup.Row{}, err
	}
	r.Date = fact.Day(r.Date)
	r.Granularity = rollup.Granularity(g)
	r.TotalRevenue = money.Amount(revenue)
	r.GrossRevenue = money.Amount(gross)
	r.TotalCost = money.Amount(cost)
	return r, nil
}
