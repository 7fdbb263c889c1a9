package app

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"pyscope/internal/core/ports"
	"pyscope/internal/shared/observability"
	"pyscope/internal/shared/util"
)

// ScanRoots walks the source roots and returns every Python file not
// excluded by the configured glob patterns, sorted and deduplicated across
// overlapping roots. Patterns match base names, as they do in the watcher.
func ScanRoots(roots, excludeDirs, excludeFiles []string) ([]string, error) {
	dirGlobs, err := compileGlobs(excludeDirs, "exclude dir")
	if err != nil {
		return nil, err
	}
	fileGlobs, err := compileGlobs(excludeFiles, "exclude file")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var files []string
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// A root may vanish mid-walk; skip rather than abort.
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			base := filepath.Base(path)
			if d.IsDir() {
				for _, g := range dirGlobs {
					if g.Match(base) {
						return filepath.SkipDir
					}
				}
				return nil
			}
			ext := strings.ToLower(filepath.Ext(base))
			if ext != ".py" && ext != ".pyi" {
				return nil
			}
			for _, g := range fileGlobs {
				if g.Match(base) {
					return nil
				}
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				abs = filepath.Clean(path)
			}
			if !seen[abs] {
				seen[abs] = true
				files = append(files, abs)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

// compileGlobs normalizes configured patterns before compiling, so "./x" and
// backslash-separated forms from hand-edited configs match as written.
func compileGlobs(patterns []string, label string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		p = util.NormalizePatternPath(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", label, p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func recordRunMetrics(update Update) {
	observability.RunsTotal.Inc()
	observability.RunDuration.Observe(update.Duration.Seconds())
	observability.QueryComputationsTotal.Add(float64(update.Computations))
	observability.QueryEarlyCutoffsTotal.Add(float64(update.EarlyCutoffs))

	counts := map[ports.Severity]int{
		ports.SeverityError:   0,
		ports.SeverityWarning: 0,
		ports.SeverityNote:    0,
	}
	for _, d := range update.Diagnostics {
		counts[d.Severity]++
	}
	for severity, count := range counts {
		observability.DiagnosticsReported.WithLabelValues(string(severity)).Set(float64(count))
	}
}
