// Package observability holds the Prometheus metrics and OpenTelemetry
// tracer shared by the analyzer, index, scanner, and resolver.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	AnalyzeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pytest_lsp_analyze_seconds",
		Help:    "Time spent analyzing a single Python file.",
		Buckets: prometheus.DefBuckets,
	})

	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pytest_lsp_resolve_seconds",
		Help:    "Time spent resolving a fixture lookup.",
		Buckets: prometheus.DefBuckets,
	})

	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pytest_lsp_scan_seconds",
		Help:    "Time spent scanning the workspace or virtualenv.",
		Buckets: prometheus.DefBuckets,
	}, []string{"target"})

	IndexDefinitionNames = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pytest_lsp_index_definition_names_total",
		Help: "Number of distinct fixture names in the index.",
	})

	IndexFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pytest_lsp_index_files_total",
		Help: "Number of files with cached content in the index.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pytest_lsp_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	ParseErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pytest_lsp_parse_errors_total",
		Help: "Total number of files skipped due to parse errors.",
	})

	DiagnosticsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pytest_lsp_diagnostics_published_total",
		Help: "Total number of undeclared-fixture diagnostics published.",
	})
)
