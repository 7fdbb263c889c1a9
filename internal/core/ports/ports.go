package ports

import (
	"context"
	"sort"
	"time"
)

// Rule identifiers carried by diagnostics. Renderers and the history
// store treat these as opaque stable strings.
const (
	RuleIncompatibleOverride = "PYS001"
	RuleUnresolvedBase       = "PYS002"
	RuleUnresolvedImport     = "PYS003"
	RuleSyntaxError          = "PYS004"
	RuleInternalError        = "PYS999"
)

// Severity classifies a diagnostic for renderers and exit-code policy.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityNote    Severity = "note"
)

// Diagnostic is a single analyzer finding, positioned with 1-based
// line and column numbers. The zero Column means "whole line".
type Diagnostic struct {
	Path     string
	Line     int
	Column   int
	Rule     string
	Severity Severity
	Message  string
}

// SortDiagnostics orders diagnostics by path, position, rule and
// message so that repeated runs over the same state render identically.
func SortDiagnostics(diags []Diagnostic) {
	sort.Slice(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		return a.Message < b.Message
	})
}

// RunSummary describes one completed analysis pass over the project.
type RunSummary struct {
	ID           string
	StartedAt    time.Time
	Duration     time.Duration
	Commit       string
	Files        int
	Diagnostics  int
	Revision     uint64
	Computations uint64
	EarlyCutoffs uint64
}

// HistoryStore abstracts run persistence for trend and diff workflows.
type HistoryStore interface {
	RecordRun(ctx context.Context, run RunSummary, diags []Diagnostic) error
	LastRun(ctx context.Context) (RunSummary, []Diagnostic, bool, error)
	Runs(ctx context.Context, since time.Time, limit int) ([]RunSummary, error)
	DiffAgainstLast(ctx context.Context, current []Diagnostic) (DiagnosticDiff, bool, error)
	Close() error
}

// DiagnosticDiff separates findings that appeared since a previous run
// from findings that were fixed.
type DiagnosticDiff struct {
	Introduced []Diagnostic
	Fixed      []Diagnostic
}

// DiffDiagnostics compares a current diagnostic set against a previous
// one. Two diagnostics match when every field except the position
// matches, so that edits above a finding do not report it as new.
func DiffDiagnostics(previous, current []Diagnostic) DiagnosticDiff {
	type key struct {
		Path    string
		Rule    string
		Message string
	}
	counts := make(map[key]int, len(previous))
	for _, d := range previous {
		counts[key{d.Path, d.Rule, d.Message}]++
	}
	var diff DiagnosticDiff
	for _, d := range current {
		k := key{d.Path, d.Rule, d.Message}
		if counts[k] > 0 {
			counts[k]--
			continue
		}
		diff.Introduced = append(diff.Introduced, d)
	}
	for _, d := range previous {
		k := key{d.Path, d.Rule, d.Message}
		if counts[k] > 0 {
			counts[k]--
			diff.Fixed = append(diff.Fixed, d)
		}
	}
	return diff
}
