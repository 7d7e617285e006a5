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
)

// PutReport stores the serialized daily report, replacing any previous
// report for the same date.
func (s *Store) PutReport(ctx context.Context, date time.Time, reportID string, generatedAt time.Time, body []byte) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE date = ?`, date); err != nil {
		return fmt.Errorf("failed to clear report: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO reports (date, report_id, generated_at, body) VALUES (?, ?, ?, ?)`,
		date, reportID, generatedAt.UTC(), string(body)); err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}
	return nil
}

// Report returns the serialized report body for a date. The second return
// reports whether a report exists.
func (s *Store) Report(ctx context.Context, date time.Time) ([]byte, bool, error) {
	var body string
	err := s.conn.QueryRowContext(ctx,
		`SELECT body::VARCHAR FROM reports WHERE date = ?`, date).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load report: %w", err)
	}
	return []byte(body), true, nil
}
