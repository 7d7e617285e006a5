// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package pipeline

import (
	"context"
	"time"

	"github.com/uawatch/uawatch/internal/logging"
)

// Scheduler runs yesterday's batch once per day at a fixed UTC hour. The
// upstream closes a day shortly after midnight, so the run is delayed to
// the configured hour rather than fired at the day boundary.
type Scheduler struct {
	pipeline *Pipeline
	hourUTC  int
	now      func() time.Time
}

// NewScheduler creates a scheduler targeting hourUTC (0-23).
func NewScheduler(p *Pipeline, hourUTC int) *Scheduler {
	return &Scheduler{pipeline: p, hourUTC: hourUTC, now: time.Now}
}

// Start blocks until ctx is canceled, running yesterday's batch at each
// scheduled tick. A failed run is logged and retried at the next tick; the
// scheduler never stops on pipeline errors.
func (s *Scheduler) Start(ctx context.Context) {
	for {
		next := s.nextRun(s.now())
		logging.Info().Time("next_run", next).Msg("Scheduler waiting")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		yesterday := s.now().UTC().AddDate(0, 0, -1)
		if _, err := s.pipeline.Run(ctx, yesterday); err != nil {
			logging.Error().Err(err).
				Str("date", yesterday.Format("2006-01-02")).
				Msg("Scheduled run failed")
		}
	}
}

// nextRun returns the next occurrence of the scheduled hour strictly after
// now.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
