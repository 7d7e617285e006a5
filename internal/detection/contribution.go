// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package detection

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/uawatch/uawatch/internal/baseline"
	"github.com/uawatch/uawatch/internal/rollup"
)

// ContributionEntry attributes a share of a global metric deviation to one
// channel. Delta is the channel's deviation in the metric's numerator units
// (counts, or minor units for money metrics).
type ContributionEntry struct {
	ChannelKey string  `json:"channel_key"`
	Delta      float64 `json:"delta"`

	// SharePercent is the entry's signed share of the total absolute
	// deviation; nil when the total deviation is zero.
	SharePercent *float64 `json:"share_percent,omitempty"`

	// Rank is 1 for the largest contributor.
	Rank int `json:"rank"`
}

// Ranker decomposes a global finding's deviation over the per-channel rows
// of the same date, using each channel's own baseline window for the mean.
type Ranker struct {
	selector *baseline.Selector
}

// NewRanker creates a ranker that draws channel baselines from the selector.
func NewRanker(selector *baseline.Selector) *Ranker {
	return &Ranker{selector: selector}
}

// Rank computes the ordered contribution list for a finding. channels must
// be the per-channel rollup rows for the finding's date. Channels are ranked
// by absolute numerator deviation descending, ties broken by channel key
// ascending for determinism.
func (r *Ranker) Rank(ctx context.Context, finding Finding, channels []rollup.Row) ([]ContributionEntry, error) {
	entries := make([]ContributionEntry, 0, len(channels))

	for i := range channels {
		ch := &channels[i]
		window, err := r.selector.Window(ctx, rollup.GranularityChannel, ch.Key, finding.Date)
		if err != nil {
			return nil, fmt.Errorf("failed to load baseline for channel %q: %w", ch.Key, err)
		}

		// A channel with no usable history contributes its entire target
		// numerator as fresh deviation.
		mean, _, ok := window.NumeratorMean(finding.Metric)
		if !ok {
			mean = 0
		}
		entries = append(entries, ContributionEntry{
			ChannelKey: ch.Key,
			Delta:      float64(ch.Numerator(finding.Metric)) - mean,
		})
	}

	var totalAbs float64
	for i := range entries {
		totalAbs += math.Abs(entries[i].Delta)
	}
	if totalAbs > 0 {
		for i := range entries {
			share := entries[i].Delta / totalAbs * 100
			entries[i].SharePercent = &share
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ai, aj := math.Abs(entries[i].Delta), math.Abs(entries[j].Delta)
		if ai != aj {
			return ai > aj
		}
		return entries[i].ChannelKey < entries[j].ChannelKey
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
