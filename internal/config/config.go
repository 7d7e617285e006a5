// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

// Package config loads and validates the uawatch configuration from layered
// sources: built-in defaults, an optional YAML file, and environment
// variables (highest priority), via Koanf v2.
package config

import (
	"fmt"
	"time"

	"github.com/uawatch/uawatch/internal/detection"
	"github.com/uawatch/uawatch/internal/rollup"
)

// Config is the complete application configuration. Components receive the
// sections they need explicitly; nothing reads process-global state.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Detection DetectionConfig `koanf:"detection"`
	Report    ReportConfig    `koanf:"report"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig configures the embedded DuckDB store.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// UpstreamConfig configures the ClickHouse fact source.
type UpstreamConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Addr        string        `koanf:"addr"`
	Database    string        `koanf:"database"`
	Username    string        `koanf:"username"`
	Password    string        `koanf:"password"`
	FactTable   string        `koanf:"fact_table"`
	CostTable   string        `koanf:"cost_table"`
	DialTimeout time.Duration `koanf:"dial_timeout"`

	// QueriesPerSecond throttles upstream reads; 0 disables the limiter.
	QueriesPerSecond float64 `koanf:"queries_per_second"`
}

// PipelineConfig configures the daily batch run.
type PipelineConfig struct {
	// WindowDays is the trailing baseline window size.
	WindowDays int `koanf:"window_days"`

	// ScheduleEnabled runs yesterday's batch automatically once per day.
	ScheduleEnabled bool `koanf:"schedule_enabled"`

	// ScheduleHourUTC is the hour of day (UTC) the scheduled run starts.
	ScheduleHourUTC int `koanf:"schedule_hour_utc"`
}

// DetectionConfig carries the ordered anomaly rule set.
type DetectionConfig struct {
	Rules []detection.Rule `koanf:"rules"`
}

// ReportConfig configures report output.
type ReportConfig struct {
	// OutputDir receives the JSON and HTML report files; empty disables
	// file output (reports stay available via the API).
	OutputDir string `koanf:"output_dir"`

	// HTML additionally renders the chart report next to the JSON file.
	HTML bool `koanf:"html"`
}

// LoggingConfig configures the zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, applied before file and env
// layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8093,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/uawatch.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Upstream: UpstreamConfig{
			Enabled:          false,
			Addr:             "127.0.0.1:9000",
			Database:         "default",
			Username:         "default",
			FactTable:        "ua_newuser_channel_daily",
			CostTable:        "ua_market_cash_cost_daily",
			DialTimeout:      10 * time.Second,
			QueriesPerSecond: 4,
		},
		Pipeline: PipelineConfig{
			WindowDays:      7,
			ScheduleEnabled: false,
			ScheduleHourUTC: 6,
		},
		Detection: DetectionConfig{
			Rules: DefaultRules(),
		},
		Report: ReportConfig{
			OutputDir: "",
			HTML:      false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultRules is the monitoring posture applied when no rule set is
// configured: the core KPIs watched with percentage thresholds.
func DefaultRules() []detection.Rule {
	return []detection.Rule{
		{Metric: rollup.MetricQualityUsers, ThresholdKind: detection.ThresholdPercentage, ThresholdValue: 30, Direction: detection.DirectionEither, Severity: detection.SeverityMedium, MinBaselineDays: 3},
		{Metric: rollup.MetricARPU, ThresholdKind: detection.ThresholdPercentage, ThresholdValue: 15, Direction: detection.DirectionDecrease, Severity: detection.SeverityHigh, MinBaselineDays: 3},
		{Metric: rollup.MetricCPA, ThresholdKind: detection.ThresholdPercentage, ThresholdValue: 25, Direction: detection.DirectionIncrease, Severity: detection.SeverityHigh, MinBaselineDays: 3},
		{Metric: rollup.MetricRetentionRate, ThresholdKind: detection.ThresholdPercentage, ThresholdValue: 20, Direction: detection.DirectionDecrease, Severity: detection.SeverityMedium, MinBaselineDays: 3},
		{Metric: rollup.MetricGoodRate, ThresholdKind: detection.ThresholdIQR, ThresholdValue: 1.5, Direction: detection.DirectionEither, Severity: detection.SeverityLow, MinBaselineDays: 5},
	}
}

// Validate checks the configuration for consistency. It is called by Load
// after all layers are merged.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Pipeline.WindowDays <= 0 {
		return fmt.Errorf("pipeline.window_days must be positive, got %d", c.Pipeline.WindowDays)
	}
	if c.Pipeline.ScheduleHourUTC < 0 || c.Pipeline.ScheduleHourUTC > 23 {
		return fmt.Errorf("pipeline.schedule_hour_utc %d out of range", c.Pipeline.ScheduleHourUTC)
	}
	if c.Upstream.Enabled {
		if c.Upstream.Addr == "" {
			return fmt.Errorf("upstream.addr is required when upstream is enabled")
		}
		if c.Upstream.FactTable == "" {
			return fmt.Errorf("upstream.fact_table is required when upstream is enabled")
		}
	}
	if err := detection.ValidateRules(c.Detection.Rules); err != nil {
		return fmt.Errorf("detection rules: %w", err)
	}
	return nil
}
