// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package report

import (
	"context"

	"github.com/uawatch/uawatch/internal/store"
)

// StoreConsumer persists the serialized report in the local database, where
// the API serves it from.
type StoreConsumer struct {
	store *store.Store
}

// NewStoreConsumer creates a store-backed report consumer.
func NewStoreConsumer(st *store.Store) *StoreConsumer {
	return &StoreConsumer{store: st}
}

// Consume stores the report body, replacing any earlier report for the day.
func (c *StoreConsumer) Consume(ctx context.Context, r *Report) error {
	data, err := Marshal(r)
	if err != nil {
		return err
	}
	return c.store.PutReport(ctx, r.Date, r.ID.String(), r.GeneratedAt, data)
}
