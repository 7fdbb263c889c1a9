package cli

import (
	"fmt"
	"strings"

	"pyscope/internal/data/history"
	"pyscope/internal/ui/report"
)

func renderHelp(m model) string {
	keys := "Keys: tab panel | / filter | enter details | esc back | t trend overlay | j/k diagnostic cursor | o open source | q quit"
	if m.mode == panelDiagnostics {
		keys = "Keys: tab panel | / filter | t trend overlay | q quit"
	}
	return statusStyle.Render(keys)
}

func renderFilePanel(m model) string {
	summary := m.fileList.View()
	details := renderFileSummary(m)
	if m.hasFileDetails {
		details = renderFileDetails(m)
	}
	return summary + "\n\n" + details
}

func renderFileSummary(m model) string {
	if len(m.fileGroups) == 0 {
		return statusStyle.Render("No files with diagnostics.")
	}
	idx := m.fileList.Index()
	if idx < 0 || idx >= len(m.fileGroups) {
		idx = 0
	}
	selected := m.fileGroups[idx]
	return strings.Join([]string{
		"Selected File",
		fmt.Sprintf("  Path: %s", report.RelativePath(m.projectRoot, selected.path)),
		fmt.Sprintf("  Errors: %d", selected.errors),
		fmt.Sprintf("  Warnings: %d", selected.warnings),
		"  Press enter for the per-diagnostic drill-down.",
	}, "\n")
}

func renderFileDetails(m model) string {
	idx := m.fileList.Index()
	if idx < 0 || idx >= len(m.fileGroups) {
		idx = 0
	}
	g := m.fileGroups[idx]
	lines := []string{
		fmt.Sprintf("File Detail: %s", report.RelativePath(m.projectRoot, g.path)),
		fmt.Sprintf("  Diagnostics (%d):", len(g.diags)),
	}
	for i, d := range g.diags {
		prefix := "   "
		if i == m.selectedDiag {
			prefix = " ->"
		}
		lines = append(lines, fmt.Sprintf("%s %d:%d %s: %s [%s]", prefix, d.Line, d.Column, d.Severity, d.Message, d.Rule))
	}
	if len(g.diags) == 0 {
		lines = append(lines, "   none")
	}
	lines = append(lines, "  Press esc to exit details, o to jump to the highlighted source.")
	return strings.Join(lines, "\n")
}

func renderTrendOverlay(report *history.TrendReport) string {
	if report == nil || len(report.Points) == 0 {
		return statusStyle.Render("Trend overlay unavailable (configure history.path to capture runs).")
	}
	last := report.Points[len(report.Points)-1]
	return strings.Join([]string{
		"Trend Overlay",
		fmt.Sprintf("  Window: %s | Runs: %d", report.Window, report.RunCount),
		fmt.Sprintf("  Files: %d (%+d)", last.Files, last.DeltaFiles),
		fmt.Sprintf("  Diagnostics: %d (%+d, avg %.2f)", last.Diagnostics, last.DeltaDiagnostics, last.AvgDiagnostics),
		fmt.Sprintf("  Duration: %dms (avg %.2fms)", last.DurationMs, last.AvgDurationMs),
	}, "\n")
}
