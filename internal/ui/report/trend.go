package report

import (
	"bytes"
	"encoding/json"
	"fmt"

	"pyscope/internal/data/history"
)

// RenderTrendJSON serializes a trend report for machine consumers.
func RenderTrendJSON(report history.TrendReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// RenderTrendTSV writes the trend series as one row per run, spreadsheet
// friendly.
func RenderTrendTSV(report history.TrendReport) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := fmt.Fprintln(&buf, "started_at\tcommit\tfiles\tdiagnostics\tduration_ms\tdelta_files\tdelta_diagnostics\tavg_diagnostics\tavg_duration_ms"); err != nil {
		return nil, err
	}
	for _, p := range report.Points {
		_, err := fmt.Fprintf(&buf, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%.2f\t%.2f\n",
			p.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
			p.Commit,
			p.Files,
			p.Diagnostics,
			p.DurationMs,
			p.DeltaFiles,
			p.DeltaDiagnostics,
			p.AvgDiagnostics,
			p.AvgDurationMs,
		)
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
