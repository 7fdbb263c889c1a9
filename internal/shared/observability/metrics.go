package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	RunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyscope_runs_total",
		Help: "Total number of completed analysis runs.",
	})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pyscope_run_seconds",
		Help:    "Wall time of one analysis run over the project.",
		Buckets: prometheus.DefBuckets,
	})

	ParseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pyscope_parse_seconds",
		Help:    "Time spent parsing a single source file.",
		Buckets: prometheus.DefBuckets,
	})

	FilesParsedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyscope_files_parsed_total",
		Help: "Total number of parse computations, cache misses only.",
	})

	QueryComputationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyscope_query_computations_total",
		Help: "Total number of query compute invocations across all runs.",
	})

	QueryEarlyCutoffsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyscope_query_early_cutoffs_total",
		Help: "Total number of recomputations skipped because a dependency produced an equal value.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyscope_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	RegistryFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pyscope_registry_files",
		Help: "Current number of files tracked by the registry.",
	})

	DiagnosticsReported = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pyscope_diagnostics",
		Help: "Diagnostics reported by the most recent run, by severity.",
	}, []string{"severity"})
)
