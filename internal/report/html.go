// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/uawatch/uawatch/internal/logging"
	"github.com/uawatch/uawatch/internal/rollup"
)

// chartedMetrics are the KPIs rendered as trend lines in the HTML report.
var chartedMetrics = []rollup.Metric{
	rollup.MetricQualityUsers,
	rollup.MetricARPU,
	rollup.MetricCPA,
	rollup.MetricRetentionRate,
}

// HTMLWriter renders each report as a self-contained chart page named
// report-YYYY-MM-DD.html next to the JSON file.
type HTMLWriter struct {
	dir string
}

// NewHTMLWriter creates the output directory if needed.
func NewHTMLWriter(dir string) (*HTMLWriter, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}
	return &HTMLWriter{dir: dir}, nil
}

// Consume renders the chart page.
func (w *HTMLWriter) Consume(_ context.Context, r *Report) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("UA KPI Report %s", r.Date.Format("2006-01-02"))

	for _, m := range chartedMetrics {
		page.AddCharts(trendChart(r, m))
	}
	page.AddCharts(channelBar(r))

	path := filepath.Join(w.dir, fmt.Sprintf("report-%s.html", r.Date.Format("2006-01-02")))
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create report page: %w", err)
	}
	if err := page.Render(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to render report page: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close report page: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize report page: %w", err)
	}

	logging.Info().Str("path", path).Msg("HTML report written")
	return nil
}

// trendChart plots one metric across the baseline window and the target
// day. Undefined days render as gaps, not zeros.
func trendChart(r *Report, m rollup.Metric) *charts.Line {
	labels := make([]string, len(r.Trend))
	data := make([]opts.LineData, len(r.Trend))
	for i, p := range r.Trend {
		labels[i] = p.Date.Format("01-02")
		if v := p.Values[m]; v != nil {
			data[i] = opts.LineData{Value: *v}
		} else {
			data[i] = opts.LineData{Value: "-"}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: string(m)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	line.SetXAxis(labels)
	line.AddSeries(string(m), data,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
	)
	return line
}

// channelBar compares quality users and net revenue across channels.
func channelBar(r *Report) *charts.Bar {
	labels := make([]string, len(r.Channels))
	users := make([]opts.BarData, len(r.Channels))
	revenue := make([]opts.BarData, len(r.Channels))
	for i := range r.Channels {
		ch := &r.Channels[i]
		labels[i] = ch.Key
		users[i] = opts.BarData{Value: ch.QualityUsers}
		revenue[i] = opts.BarData{Value: ch.TotalRevenue.Major()}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "channels"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	bar.SetXAxis(labels)
	bar.AddSeries("quality_users", users)
	bar.AddSeries("net_revenue", revenue)
	return bar
}
