// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package source

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/uawatch/uawatch/internal/fact"
	"github.com/uawatch/uawatch/internal/logging"
	"github.com/uawatch/uawatch/internal/metrics"
)

// BreakerSource wraps a FactSource with a circuit breaker so a degraded
// warehouse stops the pipeline fast instead of piling up slow failures.
// The breaker uses real time for its recovery windows; tests exercise the
// wrapped source directly.
type BreakerSource struct {
	inner FactSource
	cb    *gobreaker.CircuitBreaker[[]fact.RawRow]
}

// NewBreakerSource wraps inner with a circuit breaker that opens after a
// 60% failure rate over at least 5 requests and probes recovery after two
// minutes.
func NewBreakerSource(inner FactSource) *BreakerSource {
	metrics.CircuitBreakerState.Set(0)

	cb := gobreaker.NewCircuitBreaker[[]fact.RawRow](gobreaker.Settings{
		Name:        "upstream-warehouse",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
			metrics.CircuitBreakerState.Set(stateToFloat(to))
		},
	})

	return &BreakerSource{inner: inner, cb: cb}
}

// FetchDay delegates through the breaker.
func (s *BreakerSource) FetchDay(ctx context.Context, date time.Time) ([]fact.RawRow, error) {
	return s.cb.Execute(func() ([]fact.RawRow, error) {
		return s.inner.FetchDay(ctx, date)
	})
}

// Ping bypasses the breaker: health checks must observe the real upstream.
func (s *BreakerSource) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close closes the wrapped source.
func (s *BreakerSource) Close() error {
	return s.inner.Close()
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
