// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package source

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"golang.org/x/time/rate"

	"github.com/uawatch/uawatch/internal/config"
	"github.com/uawatch/uawatch/internal/fact"
	"github.com/uawatch/uawatch/internal/logging"
)

// ClickHouseSource reads daily fact and cost rows from the upstream
// ClickHouse warehouse. Money columns are fetched as strings so decimal
// values reach normalization without a float round trip.
type ClickHouseSource struct {
	conn      clickhouse.Conn
	factTable string
	costTable string
	limiter   *rate.Limiter
}

// NewClickHouseSource connects to the upstream warehouse.
func NewClickHouseSource(cfg config.UpstreamConfig) (*ClickHouseSource, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.QueriesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QueriesPerSecond), 1)
	}

	return &ClickHouseSource{
		conn:      conn,
		factTable: cfg.FactTable,
		costTable: cfg.CostTable,
		limiter:   limiter,
	}, nil
}

// Ping verifies upstream connectivity.
func (s *ClickHouseSource) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the upstream connection.
func (s *ClickHouseSource) Close() error {
	return s.conn.Close()
}

func (s *ClickHouseSource) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// FetchDay returns the raw fact rows for a date, with the channel cash cost
// table folded in as cost-only rows (zero users, quality dims) so the
// rollup attributes spend to the right channel.
func (s *ClickHouseSource) FetchDay(ctx context.Context, date time.Time) ([]fact.RawRow, error) {
	ds := date.Format("2006-01-02")

	rows, err := s.fetchFacts(ctx, ds)
	if err != nil {
		return nil, err
	}

	if s.costTable != "" {
		costRows, err := s.fetchCosts(ctx, ds)
		if err != nil {
			return nil, err
		}
		rows = append(rows, costRows...)
	}

	logging.Debug().
		Str("date", ds).
		Int("rows", len(rows)).
		Msg("Upstream day fetched")
	return rows, nil
}

func (s *ClickHouseSource) fetchFacts(ctx context.Context, ds string) ([]fact.RawRow, error) {
	if err := s.wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	query := fmt.Sprintf(`SELECT
		toString(ds), channel, agent, account, sub_channel,
		status, verification_status, os, gender, age_group, city_tier,
		toInt64(new_users), toInt64(retained_users),
		toString(gross_revenue), toString(net_revenue)
	FROM %s WHERE ds = ?`, s.factTable)

	rows, err := s.conn.Query(ctx, query, ds)
	if err != nil {
		return nil, fmt.Errorf("failed to query fact table: %w", err)
	}
	defer rows.Close()

	var out []fact.RawRow
	for rows.Next() {
		var (
			date, channel, agent, account, subChannel       string
			status, verification, os, gender, ageBand, tier string
			newUsers, retainedUsers                         int64
			grossRevenue, netRevenue                        string
		)
		if err := rows.Scan(
			&date, &channel, &agent, &account, &subChannel,
			&status, &verification, &os, &gender, &ageBand, &tier,
			&newUsers, &retainedUsers,
			&grossRevenue, &netRevenue,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fact row: %w", err)
		}
		out = append(out, fact.RawRow{
			fact.FieldDate:          date,
			fact.FieldChannel:       channel,
			fact.FieldAgent:         agent,
			fact.FieldAccount:       account,
			fact.FieldSubChannel:    subChannel,
			fact.FieldStatus:        status,
			fact.FieldVerification:  verification,
			fact.FieldOS:            os,
			fact.FieldGender:        gender,
			fact.FieldAgeBand:       ageBand,
			fact.FieldCityTier:      tier,
			fact.FieldNewUsers:      newUsers,
			fact.FieldRetainedUsers: retainedUsers,
			fact.FieldGrossRevenue:  grossRevenue,
			fact.FieldNetRevenue:    netRevenue,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fact rows: %w", err)
	}
	return out, nil
}

// fetchCosts reads the per-channel daily cash cost. Cost rows carry quality
// dims so the rollup adds the spend to the channel's cost sum without
// touching any user count.
func (s *ClickHouseSource) fetchCosts(ctx context.Context, ds string) ([]fact.RawRow, error) {
	if err := s.wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	query := fmt.Sprintf(`SELECT toString(ds), channel, toString(sum(cash_cost))
	FROM %s WHERE ds = ? GROUP BY ds, channel`, s.costTable)

	rows, err := s.conn.Query(ctx, query, ds)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost table: %w", err)
	}
	defer rows.Close()

	var out []fact.RawRow
	for rows.Next() {
		var date, channel, cost string
		if err := rows.Scan(&date, &channel, &cost); err != nil {
			return nil, fmt.Errorf("failed to scan cost row: %w", err)
		}
		out = append(out, CostRow(date, channel, cost))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cost rows: %w", err)
	}
	return out, nil
}

// CostRow builds a cost-only raw row for a channel day.
func CostRow(date, channel, cost string) fact.RawRow {
	return fact.RawRow{
		fact.FieldDate:         date,
		fact.FieldChannel:      channel,
		fact.FieldStatus:       fact.StatusGood,
		fact.FieldVerification: fact.VerificationVerified,
		fact.FieldNewUsers:     int64(0),
		fact.FieldCashCost:     cost,
	}
}
