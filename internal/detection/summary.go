// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package detection

import "fmt"

// Status classifies a day's overall detection outcome.
type Status string

const (
	StatusOK        Status = "ok"
	StatusAttention Status = "attention"
	StatusAlert     Status = "alert"
)

// Summary condenses a day's findings into a traffic-light status for the
// report header.
type Summary struct {
	Status        Status `json:"status"`
	SeverityLevel string `json:"severity_level"` // green, yellow, red
	Message       string `json:"message"`

	AnomaliesFound int `json:"anomalies_found"`
	HighCount      int `json:"high_count"`
	MediumCount    int `json:"medium_count"`
	LowCount       int `json:"low_count"`
}

// Summarize classifies the findings: none is ok/green, up to two is
// attention/yellow, more is alert/red.
func Summarize(findings []Finding) Summary {
	s := Summary{AnomaliesFound: len(findings)}
	for _, f := range findings {
		switch f.Severity {
		case SeverityHigh:
			s.HighCount++
		case SeverityMedium:
			s.MediumCount++
		case SeverityLow:
			s.LowCount++
		}
	}

	switch {
	case len(findings) == 0:
		s.Status = StatusOK
		s.SeverityLevel = "green"
		s.Message = "all monitored KPIs within normal range"
	case len(findings) <= 2:
		s.Status = StatusAttention
		s.SeverityLevel = "yellow"
		s.Message = fmt.Sprintf("%d anomalous KPI(s) need attention", len(findings))
	default:
		s.Status = StatusAlert
		s.SeverityLevel = "red"
		s.Message = fmt.Sprintf("%d anomalous KPIs require immediate review", len(findings))
	}
	return s
}
