// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package source

import (
	"context"
	"fmt"
	"time"

	"github.com/uawatch/uawatch/internal/fact"
	"github.com/uawatch/uawatch/internal/logging"
	"github.com/uawatch/uawatch/internal/metrics"
	"github.com/uawatch/uawatch/internal/store"
)

// Syncer pulls a day from the upstream source, normalizes it, and lands the
// accepted records in the local store. Rejected rows never reach the store;
// they surface in the batch report.
type Syncer struct {
	source FactSource
	store  *store.Store
}

// NewSyncer creates a syncer.
func NewSyncer(src FactSource, st *store.Store) *Syncer {
	return &Syncer{source: src, store: st}
}

// FactsForDay fetches, normalizes, and persists one day, fully replacing
// any earlier local copy of that date.
func (s *Syncer) FactsForDay(ctx context.Context, date time.Time) ([]fact.Record, fact.BatchReport, error) {
	start := time.Now()

	rows, err := s.source.FetchDay(ctx, date)
	if err != nil {
		metrics.RecordSync(time.Since(start), 0, err)
		return nil, fact.BatchReport{}, fmt.Errorf("failed to fetch day %s: %w",
			date.Format("2006-01-02"), err)
	}

	records, report := fact.NormalizeBatch(rows)
	metrics.RecordBatch(report.Accepted, report.PrecisionErrors, report.ValidationErrors)

	if err := s.store.PutFacts(ctx, date, records); err != nil {
		metrics.RecordSync(time.Since(start), len(rows), err)
		return nil, fact.BatchReport{}, fmt.Errorf("failed to store facts: %w", err)
	}
	metrics.RecordSync(time.Since(start), len(rows), nil)

	logging.Info().
		Str("date", date.Format("2006-01-02")).
		Int("fetched", len(rows)).
		Int("accepted", report.Accepted).
		Int("rejected", report.Rejected).
		Msg("Day synced")
	return records, report, nil
}

// StoreProvider serves previously synced records straight from the local
// store, for replays and for deployments without upstream access.
type StoreProvider struct {
	store *store.Store
}

// NewStoreProvider creates a store-backed fact provider.
func NewStoreProvider(st *store.Store) *StoreProvider {
	return &StoreProvider{store: st}
}

// FactsForDay returns the stored records for a date. Stored records already
// passed normalization, so the batch report is clean.
func (p *StoreProvider) FactsForDay(ctx context.Context, date time.Time) ([]fact.Record, fact.BatchReport, error) {
	records, err := p.store.Facts(ctx, date)
	if err != nil {
		return nil, fact.BatchReport{}, err
	}
	return records, fact.BatchReport{Accepted: len(records)}, nil
}
