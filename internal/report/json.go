// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/uawatch/uawatch/internal/logging"
)

// JSONWriter writes each report as a pretty-printed JSON file named
// report-YYYY-MM-DD.json. Files are written to a temp name and renamed so a
// reader never observes a partial report.
type JSONWriter struct {
	dir string
}

// NewJSONWriter creates the output directory if needed.
func NewJSONWriter(dir string) (*JSONWriter, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}
	return &JSONWriter{dir: dir}, nil
}

// Consume writes the report file.
func (w *JSONWriter) Consume(_ context.Context, r *Report) error {
	data, err := Marshal(r)
	if err != nil {
		return err
	}

	path := filepath.Join(w.dir, fmt.Sprintf("report-%s.json", r.Date.Format("2006-01-02")))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize report file: %w", err)
	}

	logging.Info().Str("path", path).Msg("JSON report written")
	return nil
}

// Marshal serializes a report for file output and the API.
func Marshal(r *Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}
