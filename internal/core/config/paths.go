package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the configuration file pyscope looks for.
const FileName = "pyscope.toml"

// ResolvedPaths holds every configured path made absolute. Relative entries
// resolve against the project root, which is the config file's directory or
// the working directory when no file was loaded.
type ResolvedPaths struct {
	ProjectRoot string
	SourceRoots []string
	ExtraPaths  []string
	Venv        string
	Stubs       string
	HistoryPath string
}

func ResolvePaths(cfg *Config, base string) (ResolvedPaths, error) {
	if strings.TrimSpace(base) == "" {
		return ResolvedPaths{}, fmt.Errorf("base directory must not be empty")
	}
	root, err := filepath.Abs(base)
	if err != nil {
		return ResolvedPaths{}, err
	}

	resolved := ResolvedPaths{ProjectRoot: filepath.Clean(root)}
	for _, r := range cfg.Search.Roots {
		resolved.SourceRoots = append(resolved.SourceRoots, ResolveRelative(root, r))
	}
	for _, p := range cfg.Search.ExtraPaths {
		resolved.ExtraPaths = append(resolved.ExtraPaths, ResolveRelative(root, p))
	}
	if cfg.Search.Venv != "" {
		resolved.Venv = ResolveRelative(root, cfg.Search.Venv)
	}
	if cfg.Search.Stubs != "" {
		resolved.Stubs = ResolveRelative(root, cfg.Search.Stubs)
	}
	if path := strings.TrimSpace(cfg.History.Path); path != "" {
		resolved.HistoryPath = ResolveRelative(root, path)
	}
	return resolved, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

// Find walks upward from startDir and returns the nearest pyscope.toml.
func Find(startDir string) (string, bool) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// DetectProjectRoot picks the first ancestor of any candidate that looks like
// a Python project root, falling back to the working directory.
func DetectProjectRoot(candidates []string) (string, error) {
	markers := []string{
		FileName,
		"pyproject.toml",
		"setup.py",
		".git",
	}

	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}

		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		root := abs
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			root = filepath.Dir(abs)
		}

		for {
			for _, marker := range markers {
				if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
					return filepath.Clean(root), nil
				}
			}
			parent := filepath.Dir(root)
			if parent == root {
				break
			}
			root = parent
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Clean(cwd), nil
}
