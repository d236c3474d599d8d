// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	RefreshesTotal      = expvar.NewInt("refreshes_total")
	RefreshesFailed     = expvar.NewInt("refreshes_failed")
	RefreshesSkipped    = expvar.NewInt("refreshes_skipped")
	FetchAttemptsTotal  = expvar.NewInt("fetch_attempts_total")
	FetchFailuresTotal  = expvar.NewInt("fetch_failures_total")
	BreakerSkips        = expvar.NewInt("breaker_skips")
	PipelineRunsTotal   = expvar.NewInt("pipeline_runs_total")
	PipelineRunsFailed  = expvar.NewInt("pipeline_runs_failed")
	AlertsDispatched    = expvar.NewInt("alerts_dispatched")
	AlertsFailed        = expvar.NewInt("alerts_failed")
	StoreErrors         = expvar.NewInt("store_errors")
	StaleCategoriesSeen = expvar.NewInt("stale_categories_seen")
)
