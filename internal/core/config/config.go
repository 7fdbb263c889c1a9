package config

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
)

type Config struct {
	Version       int           `toml:"version"`
	Project       string        `toml:"project"`
	Search        Search        `toml:"search"`
	Exclude       Exclude       `toml:"exclude"`
	Watch         Watch         `toml:"watch"`
	Limits        Limits        `toml:"limits"`
	History       History       `toml:"history"`
	Observability Observability `toml:"observability"`
	Log           Log           `toml:"log"`
}

// Search describes where Python modules are looked up. Relative entries are
// resolved against the project root by ResolvePaths.
type Search struct {
	Roots      []string `toml:"roots"`
	Venv       string   `toml:"venv"`
	ExtraPaths []string `toml:"extra_paths"`
	Stubs      string   `toml:"stubs"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
}

type Limits struct {
	Workers int `toml:"workers"`
}

type History struct {
	Path        string        `toml:"path"`
	Keep        int           `toml:"keep"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
}

// Enabled reports whether run history should be recorded at all. An empty
// path disables the store entirely; nothing is created on disk.
func (h History) Enabled() bool {
	return strings.TrimSpace(h.Path) != ""
}

type Observability struct {
	MetricsAddr  string `toml:"metrics_addr"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

func (o Observability) MetricsEnabled() bool {
	return strings.TrimSpace(o.MetricsAddr) != ""
}

func (o Observability) TracingEnabled() bool {
	return strings.TrimSpace(o.OTLPEndpoint) != ""
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used when no pyscope.toml exists.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	normalizeSearch(&cfg)

	if err := validateVersion(&cfg); err != nil {
		return nil, err
	}
	if err := validateSearch(&cfg); err != nil {
		return nil, err
	}
	if err := validateExclude(&cfg); err != nil {
		return nil, err
	}
	if err := validateObservability(&cfg); err != nil {
		return nil, err
	}
	if err := validateLog(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if len(cfg.Search.Roots) == 0 {
		cfg.Search.Roots = []string{"."}
	}

	if len(cfg.Exclude.Dirs) == 0 {
		cfg.Exclude.Dirs = []string{
			".git", "__pycache__", ".venv",
			".mypy_cache", ".pytest_cache", ".ruff_cache",
		}
	}

	// Default debounce if not set.
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 300 * time.Millisecond
	}

	if cfg.Limits.Workers <= 0 {
		cfg.Limits.Workers = runtime.NumCPU()
	}

	if cfg.History.Keep <= 0 {
		cfg.History.Keep = 100
	}
	if cfg.History.BusyTimeout <= 0 {
		cfg.History.BusyTimeout = 5 * time.Second
	}

	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	if strings.TrimSpace(cfg.Log.Format) == "" {
		cfg.Log.Format = "text"
	}
}

func normalizeSearch(cfg *Config) {
	cfg.Project = strings.TrimSpace(cfg.Project)
	cfg.Search.Venv = strings.TrimSpace(cfg.Search.Venv)
	cfg.Search.Stubs = strings.TrimSpace(cfg.Search.Stubs)
	for i := range cfg.Search.Roots {
		cfg.Search.Roots[i] = strings.TrimSpace(cfg.Search.Roots[i])
	}
	for i := range cfg.Search.ExtraPaths {
		cfg.Search.ExtraPaths[i] = strings.TrimSpace(cfg.Search.ExtraPaths[i])
	}
}

func validateVersion(cfg *Config) error {
	if cfg.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", cfg.Version)
	}
	if cfg.Version > 1 {
		return fmt.Errorf("unsupported config version %d; this build supports version 1", cfg.Version)
	}
	return nil
}

func validateSearch(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Search.Roots))
	for i, root := range cfg.Search.Roots {
		if root == "" {
			return fmt.Errorf("search.roots[%d] must not be empty", i)
		}
		if seen[root] {
			return fmt.Errorf("duplicate search root %q", root)
		}
		seen[root] = true
	}
	for i, path := range cfg.Search.ExtraPaths {
		if path == "" {
			return fmt.Errorf("search.extra_paths[%d] must not be empty", i)
		}
	}
	return nil
}

func validateExclude(cfg *Config) error {
	for i, pattern := range cfg.Exclude.Dirs {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("exclude.dirs[%d] must not be empty", i)
		}
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("exclude.dirs[%d]: invalid pattern %q: %w", i, pattern, err)
		}
	}
	for i, pattern := range cfg.Exclude.Files {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("exclude.files[%d] must not be empty", i)
		}
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("exclude.files[%d]: invalid pattern %q: %w", i, pattern, err)
		}
	}
	return nil
}

func validateObservability(cfg *Config) error {
	addr := strings.TrimSpace(cfg.Observability.MetricsAddr)
	if addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("observability.metrics_addr must be host:port, got %q: %w", addr, err)
	}
	return nil
}

func validateLog(cfg *Config) error {
	level := strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	format := strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	switch format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be one of: text, json")
	}
	return nil
}
