package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the
// configuration. Pattern: PYSCOPE_[SECTION]_[KEY].
func ApplyEnvOverrides(cfg *Config) {
	setEnvString(&cfg.Project, "PYSCOPE_PROJECT")

	// Search
	setEnvString(&cfg.Search.Venv, "PYSCOPE_SEARCH_VENV")
	setEnvString(&cfg.Search.Stubs, "PYSCOPE_SEARCH_STUBS")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "PYSCOPE_WATCH_DEBOUNCE")

	// Limits
	setEnvInt(&cfg.Limits.Workers, "PYSCOPE_LIMITS_WORKERS")

	// History
	setEnvString(&cfg.History.Path, "PYSCOPE_HISTORY_PATH")
	setEnvInt(&cfg.History.Keep, "PYSCOPE_HISTORY_KEEP")
	setEnvDuration(&cfg.History.BusyTimeout, "PYSCOPE_HISTORY_BUSY_TIMEOUT")

	// Observability
	setEnvString(&cfg.Observability.MetricsAddr, "PYSCOPE_OBSERVABILITY_METRICS_ADDR")
	setEnvString(&cfg.Observability.OTLPEndpoint, "PYSCOPE_OBSERVABILITY_OTLP_ENDPOINT")

	// Log
	setEnvString(&cfg.Log.Level, "PYSCOPE_LOG_LEVEL")
	setEnvString(&cfg.Log.Format, "PYSCOPE_LOG_FORMAT")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		log.Printf("Applying env override: %s=%s", key, val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = i
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = d
		}
	}
}
