package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sorcerer_stage_seconds",
		Help:    "Time spent in one orchestrator stage.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sorcerer_runs_total",
		Help: "Total number of orchestrator runs by outcome.",
	}, []string{"result"})

	FixAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sorcerer_fix_attempts_total",
		Help: "Total number of fixer invocations.",
	})

	RepeatedFixesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sorcerer_repeated_fixes_total",
		Help: "Total number of fix attempts that reproduced the previous test file.",
	})

	EnhancementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sorcerer_enhancements_total",
		Help: "Total number of enhancement passes by kind and status.",
	}, []string{"kind", "status"})

	LLMRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sorcerer_llm_requests_total",
		Help: "Total number of LLM round trips by provider and status.",
	}, []string{"provider", "status"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sorcerer_llm_request_seconds",
		Help:    "Latency of one LLM round trip.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"provider"})

	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sorcerer_tool_calls_total",
		Help: "Total number of model function calls by tool and status.",
	}, []string{"tool", "status"})

	JSONRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sorcerer_json_retries_total",
		Help: "Total number of corrective turns sent after an unparseable model response.",
	})

	RedactionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sorcerer_prompt_redactions_total",
		Help: "Total number of credential values masked in prompts.",
	})

	TestRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sorcerer_test_runs_total",
		Help: "Total number of test runs by runner and result.",
	}, []string{"runner", "result"})

	TestRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sorcerer_test_run_seconds",
		Help:    "Wall time of one test run.",
		Buckets: prometheus.DefBuckets,
	}, []string{"runner"})

	CrawlDefinitions = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sorcerer_crawl_definitions",
		Help:    "Number of definitions discovered by one crawl.",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})

	WorkspaceCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sorcerer_workspace_cache_total",
		Help: "Workspace cache lookups by result (hit, miss).",
	}, []string{"result"})

	WorkspaceLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sorcerer_workspace_load_seconds",
		Help:    "Time spent indexing a Go module.",
		Buckets: prometheus.DefBuckets,
	})

	WorkspaceFilesIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sorcerer_workspace_files_indexed_total",
		Help: "Total number of Go files parsed while indexing workspaces.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sorcerer_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})
)
