package history

import (
	"fmt"
	"math"
	"time"

	"pyscope/internal/core/ports"
)

// TrendPoint is one run in a trend series, with deltas against the
// previous run and moving averages over the report window.
type TrendPoint struct {
	StartedAt   time.Time `json:"started_at"`
	Commit      string    `json:"commit,omitempty"`
	Files       int       `json:"files"`
	Diagnostics int       `json:"diagnostics"`
	DurationMs  int64     `json:"duration_ms"`

	DeltaFiles       int `json:"delta_files"`
	DeltaDiagnostics int `json:"delta_diagnostics"`

	AvgDiagnostics float64 `json:"avg_diagnostics"`
	AvgDurationMs  float64 `json:"avg_duration_ms"`
	WindowHours    float64 `json:"window_hours"`
}

type TrendReport struct {
	SchemaVersion int          `json:"schema_version"`
	Since         time.Time    `json:"since"`
	Until         time.Time    `json:"until"`
	Window        string       `json:"window"`
	RunCount      int          `json:"run_count"`
	Points        []TrendPoint `json:"points"`
}

// BuildTrendReport turns a chronological run series into per-run trend
// points. Runs must be ordered oldest first, as Store.Runs returns them.
func BuildTrendReport(runs []ports.RunSummary, window time.Duration) (TrendReport, error) {
	if len(runs) == 0 {
		return TrendReport{}, fmt.Errorf("no runs available")
	}

	points := make([]TrendPoint, 0, len(runs))
	for i, current := range runs {
		point := TrendPoint{
			StartedAt:   current.StartedAt,
			Commit:      current.Commit,
			Files:       current.Files,
			Diagnostics: current.Diagnostics,
			DurationMs:  current.Duration.Milliseconds(),
		}

		if i > 0 {
			prev := runs[i-1]
			point.DeltaFiles = current.Files - prev.Files
			point.DeltaDiagnostics = current.Diagnostics - prev.Diagnostics
		}

		avgDiags, avgDuration := movingAverages(runs, i, window)
		point.AvgDiagnostics = round2(avgDiags)
		point.AvgDurationMs = round2(avgDuration)
		point.WindowHours = round2(window.Hours())
		points = append(points, point)
	}

	return TrendReport{
		SchemaVersion: SchemaVersion,
		Since:         runs[0].StartedAt,
		Until:         runs[len(runs)-1].StartedAt,
		Window:        window.String(),
		RunCount:      len(points),
		Points:        points,
	}, nil
}

func movingAverages(runs []ports.RunSummary, index int, window time.Duration) (float64, float64) {
	if window <= 0 {
		return float64(runs[index].Diagnostics), float64(runs[index].Duration.Milliseconds())
	}

	cutoff := runs[index].StartedAt.Add(-window)
	var diagsTotal int
	var durationTotal int64
	count := 0
	for i := index; i >= 0; i-- {
		if runs[i].StartedAt.Before(cutoff) {
			break
		}
		diagsTotal += runs[i].Diagnostics
		durationTotal += runs[i].Duration.Milliseconds()
		count++
	}
	if count == 0 {
		return 0, 0
	}
	return float64(diagsTotal) / float64(count), float64(durationTotal) / float64(count)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
