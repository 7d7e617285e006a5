// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package fact

import (
	"errors"

	"github.com/uawatch/uawatch/internal/money"
)

// maxErrorExamples caps the per-batch sample of rejection messages carried in
// the report. Counts are always complete; examples are illustrative.
const maxErrorExamples = 10

// BatchReport aggregates record-level rejections for one batch. Record-level
// errors never abort the batch; they are counted and sampled here while the
// remaining records proceed.
type BatchReport struct {
	Accepted         int      `json:"accepted"`
	Rejected         int      `json:"rejected"`
	PrecisionErrors  int      `json:"precision_errors"`
	ValidationErrors int      `json:"validation_errors"`
	Examples         []string `json:"examples,omitempty"`
}

func (r *BatchReport) record(err error) {
	r.Rejected++

	var perr *money.PrecisionError
	var verr *ValidationError
	switch {
	case errors.As(err, &perr):
		r.PrecisionErrors++
	case errors.As(err, &verr):
		r.ValidationErrors++
	}

	if len(r.Examples) < maxErrorExamples {
		r.Examples = append(r.Examples, err.Error())
	}
}

// NormalizeBatch normalizes every raw row, collecting rejections into the
// returned BatchReport and passing accepted records through.
func NormalizeBatch(rows []RawRow) ([]Record, BatchReport) {
	records := make([]Record, 0, len(rows))
	var report BatchReport

	for _, row := range rows {
		rec, err := Normalize(row)
		if err != nil {
			report.record(err)
			continue
		}
		report.Accepted++
		records = append(records, rec)
	}
	return records, report
}
