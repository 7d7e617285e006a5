// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

// Package report assembles the daily KPI report from the rollup, detection,
// and batch results, and renders it to JSON and HTML consumers.
package report

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/uawatch/uawatch/internal/detection"
	"github.com/uawatch/uawatch/internal/fact"
	"github.com/uawatch/uawatch/internal/rollup"
)

// Report is the complete daily output: the global KPI overview, per-channel
// rows, ordered anomaly findings with channel contributions, and the batch
// quality report from normalization.
type Report struct {
	ID          uuid.UUID `json:"id"`
	Date        time.Time `json:"date"`
	GeneratedAt time.Time `json:"generated_at"`

	Summary  detection.Summary   `json:"summary"`
	Overview Overview            `json:"overview"`
	Channels []rollup.Row        `json:"channels"`
	Findings []detection.Finding `json:"findings"`
	Trend    []TrendPoint        `json:"trend"`
	Batch    fact.BatchReport    `json:"batch"`
}

// Overview carries the global rollup row and its derived KPI values.
// Undefined ratios serialize as null, never as zero.
type Overview struct {
	Row  rollup.Row `json:"row"`
	KPIs []KPIValue `json:"kpis"`
}

// KPIValue is one derived metric value. Value is nil when the metric is
// undefined for the day.
type KPIValue struct {
	Metric rollup.Metric `json:"metric"`
	Value  *float64      `json:"value"`
}

// TrendPoint is one day of the baseline window plus the target day, used by
// the HTML charts.
type TrendPoint struct {
	Date   time.Time                  `json:"date"`
	Values map[rollup.Metric]*float64 `json:"values"`
}

// Consumer receives a finished report. Consumers are independent; one
// failing does not stop the others.
type Consumer interface {
	Consume(ctx context.Context, r *Report) error
}

// New assembles a report. windowRows are the baseline days in ascending
// date order; the target day is appended to the trend automatically.
func New(date time.Time, global rollup.Row, channels []rollup.Row,
	findings []detection.Finding, summary detection.Summary,
	batch fact.BatchReport, windowRows []rollup.Row) *Report {

	r := &Report{
		ID:          uuid.New(),
		Date:        date,
		GeneratedAt: time.Now().UTC(),
		Summary:     summary,
		Overview:    buildOverview(global),
		Channels:    channels,
		Findings:    findings,
		Batch:       batch,
	}

	for i := range windowRows {
		r.Trend = append(r.Trend, trendPoint(&windowRows[i]))
	}
	r.Trend = append(r.Trend, trendPoint(&global))

	return r
}

func buildOverview(global rollup.Row) Overview {
	o := Overview{Row: global}
	for _, m := range rollup.Metrics() {
		kv := KPIValue{Metric: m}
		if v, ok := global.Value(m); ok {
			value := v
			kv.Value = &value
		}
		o.KPIs = append(o.KPIs, kv)
	}
	return o
}

func trendPoint(row *rollup.Row) TrendPoint {
	p := TrendPoint{Date: row.Date, Values: make(map[rollup.Metric]*float64)}
	for _, m := range rollup.Metrics() {
		if v, ok := row.Value(m); ok {
			value := v
			p.Values[m] = &value
		} else {
			p.Values[m] = nil
		}
	}
	return p
}
