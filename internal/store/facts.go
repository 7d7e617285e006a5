// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/uawatch/uawatch/internal/fact"
	"github.com/uawatch/uawatch/internal/logging"
	"github.com/uawatch/uawatch/internal/money"
)

// PutFacts replaces the stored fact records for a date with records. The
// whole day is rewritten in one transaction so a re-sync never leaves a
// partial mix of old and new rows.
func (s *Store) PutFacts(ctx context.Context, date time.Time, records []fact.Record) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM facts WHERE date = ?`, date); err != nil {
		return fmt.Errorf("failed to clear facts for %s: %w", date.Format("2006-01-02"), err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO facts (
		date, channel, agent, account, sub_channel,
		status, verification, os, gender, age_band, city_tier,
		new_users, retained_users,
		gross_revenue_cents, net_revenue_cents, cash_cost_cents
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare fact insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range records {
		r := &records[i]
		if _, err := stmt.ExecContext(ctx,
			r.Date, r.Channel, r.Agent, r.Account, r.SubChannel,
			r.Status, r.Verification, r.OS, r.Gender, r.AgeBand, r.CityTier,
			r.NewUsers, r.RetainedUsers,
			r.GrossRevenue.Cents(), r.NetRevenue.Cents(), r.CashCost.Cents(),
		); err != nil {
			return fmt.Errorf("failed to insert fact record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit facts: %w", err)
	}

	logging.Debug().
		Str("date", date.Format("2006-01-02")).
		Int("records", len(records)).
		Msg("Facts stored")
	return nil
}

// Facts returns all stored fact records for a date.
func (s *Store) Facts(ctx context.Context, date time.Time) ([]fact.Record, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT
		date, channel, agent, account, sub_channel,
		status, verification, os, gender, age_band, city_tier,
		new_users, retained_users,
		gross_revenue_cents, net_revenue_cents, cash_cost_cents
	FROM facts WHERE date = ?`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []fact.Record
	for rows.Next() {
		var r fact.Record
		var gross, net, cost int64
		if err := rows.Scan(
			&r.Date, &r.Channel, &r.Agent, &r.Account, &r.SubChannel,
			&r.Status, &r.Verification, &r.OS, &r.Gender, &r.AgeBand, &r.CityTier,
			&r.NewUsers, &r.RetainedUsers,
			&gross, &net, &cost,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fact record: %w", err)
		}
		r.Date = fact.Day(r.Date)
		r.GrossRevenue = money.Amount(gross)
		r.NetRevenue = money.Amount(net)
		r.CashCost = money.Amount(cost)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate facts: %w", err)
	}
	return records, nil
}

// FactCount returns the number of stored fact records for a date.
func (s *Store) FactCount(ctx context.Context, date time.Time) (int64, error) {
	var n int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM facts WHERE date = ?`, date).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count facts: %w", err)
	}
	return n, nil
}
