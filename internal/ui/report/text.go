// Package report renders analysis results for the batch host: a terminal
// text summary, SARIF 2.1.0 for CI upload, and trend exports from the run
// history.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"pyscope/internal/core/ports"
	"pyscope/internal/shared/util"
)

// RenderText writes the human-readable run report. Paths are shown relative
// to projectRoot when possible. Diagnostics must already be sorted.
func RenderText(w io.Writer, projectRoot string, diags []ports.Diagnostic, files int, duration time.Duration) error {
	var errs, warns, notes int
	for _, d := range diags {
		switch d.Severity {
		case ports.SeverityError:
			errs++
		case ports.SeverityWarning:
			warns++
		default:
			notes++
		}
	}

	for _, d := range diags {
		pos := fmt.Sprintf("%s:%d", RelativePath(projectRoot, d.Path), d.Line)
		if d.Column > 0 {
			pos = fmt.Sprintf("%s:%d", pos, d.Column)
		}
		if _, err := fmt.Fprintf(w, "%s: %s: %s [%s]\n", pos, d.Severity, d.Message, d.Rule); err != nil {
			return err
		}
	}

	if len(diags) > 0 {
		if _, err := fmt.Fprintln(w, strings.Repeat("-", 40)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d files checked in %v: %d errors, %d warnings, %d notes\n",
		files, duration.Round(time.Millisecond), errs, warns, notes)
	return err
}

// RenderDiff writes the delta against the previous recorded run.
func RenderDiff(w io.Writer, projectRoot string, diff ports.DiagnosticDiff) error {
	if len(diff.Introduced) == 0 && len(diff.Fixed) == 0 {
		_, err := fmt.Fprintln(w, "No changes against the previous run.")
		return err
	}
	if len(diff.Introduced) > 0 {
		if _, err := fmt.Fprintf(w, "Introduced (%d):\n", len(diff.Introduced)); err != nil {
			return err
		}
		for _, d := range diff.Introduced {
			if _, err := fmt.Fprintf(w, "  + %s:%d %s [%s]\n", RelativePath(projectRoot, d.Path), d.Line, d.Message, d.Rule); err != nil {
				return err
			}
		}
	}
	if len(diff.Fixed) > 0 {
		if _, err := fmt.Fprintf(w, "Fixed (%d):\n", len(diff.Fixed)); err != nil {
			return err
		}
		for _, d := range diff.Fixed {
			if _, err := fmt.Fprintf(w, "  - %s:%d %s [%s]\n", RelativePath(projectRoot, d.Path), d.Line, d.Message, d.Rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// RelativePath maps an absolute path under root to a slash-separated
// relative one; paths outside root pass through unchanged.
func RelativePath(root, path string) string {
	if root == "" || !util.HasPathPrefix(filepath.ToSlash(path), filepath.ToSlash(root)) {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
