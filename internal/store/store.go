// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

// Package store persists normalized fact records and daily rollups in an
// embedded DuckDB database. Money amounts are stored as integer cents;
// ratios are never persisted, only their integer numerators and
// denominators, so re-derived values stay exact.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/uawatch/uawatch/internal/config"
	"github.com/uawatch/uawatch/internal/logging"
)

// Store wraps the DuckDB connection and provides fact and rollup access.
type Store struct {
	conn *sql.DB
	cfg  config.DatabaseConfig
}

// New opens the DuckDB database at cfg.Path and initializes the schema.
// Path ":memory:" opens an in-process database, used by tests.
func New(cfg config.DatabaseConfig) (*Store, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
		cfg.Path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// DuckDB is embedded: a single writer connection avoids write-write
	// conflicts between concurrent transactions.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{conn: conn, cfg: cfg}
	if err := s.initSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", numThreads).
		Str("max_memory", cfg.MaxMemory).
		Msg("Database opened")

	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *Store) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS facts (
			date DATE NOT NULL,
			channel VARCHAR NOT NULL,
			agent VARCHAR NOT NULL,
			account VARCHAR NOT NULL,
			sub_channel VARCHAR NOT NULL,
			status VARCHAR NOT NULL,
			verification VARCHAR NOT NULL,
			os VARCHAR NOT NULL,
			gender VARCHAR NOT NULL,
			age_band VARCHAR NOT NULL,
			city_tier VARCHAR NOT NULL,
			new_users BIGINT NOT NULL,
			retained_users BIGINT NOT NULL,
			gross_revenue_cents BIGINT NOT NULL,
			net_revenue_cents BIGINT NOT NULL,
			cash_cost_cents BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rollups (
			date DATE NOT NULL,
			granularity VARCHAR NOT NULL,
			key VARCHAR NOT NULL,
			all_users BIGINT NOT NULL,
			good_users BIGINT NOT NULL,
			verified_users BIGINT NOT NULL,
			quality_users BIGINT NOT NULL,
			retained_users BIGINT NOT NULL,
			paying_users BIGINT NOT NULL,
			female_users BIGINT NOT NULL,
			young_users BIGINT NOT NULL,
			high_tier_users BIGINT NOT NULL,
			total_revenue_cents BIGINT NOT NULL,
			gross_revenue_cents BIGINT NOT NULL,
			total_cost_cents BIGINT NOT NULL,
			PRIMARY KEY (date, granularity, key)
		)`,
		`CREATE TABLE IF NOT EXISTS reports (
			date DATE PRIMARY KEY,
			report_id VARCHAR NOT NULL,
			generated_at TIMESTAMP NOT NULL,
			body JSON NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := s.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}
