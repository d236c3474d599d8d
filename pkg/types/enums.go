// Package types defines the public domain types for the Pulse data-refresh service.
package types

// CircuitState represents the state of a provider's circuit breaker.
type CircuitState string

// CircuitState values enumerate the breaker states. HALF_OPEN is never
// persisted — it is derived at read time from OpenedAt plus the cooldown.
const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// StepStatus represents the outcome of refreshing one category within a pipeline run.
type StepStatus string

// StepStatus values enumerate the possible category refresh outcomes.
const (
	StepSuccess StepStatus = "SUCCESS"
	// StepFailedAllSources means at least one provider was attempted and every
	// attempted provider failed.
	StepFailedAllSources StepStatus = "FAILED_ALL_SOURCES"
	// StepSkippedCircuitOpen means every provider was skipped with open
	// breakers and none was even attempted. A stronger signal than a failed
	// attempt: the whole category has been down long enough to trip every breaker.
	StepSkippedCircuitOpen StepStatus = "SKIPPED_CIRCUIT_OPEN"
)

// RunStatus is the aggregate outcome of a pipeline run.
type RunStatus string

// RunStatus values summarize a pipeline run across its category steps.
const (
	RunCompleted RunStatus = "COMPLETED"
	RunDegraded  RunStatus = "DEGRADED"
	RunFailed    RunStatus = "FAILED"
)

// FreshnessStatus classifies the age of a category's cached value.
type FreshnessStatus string

// FreshnessStatus values distinguish "fetched long ago" from "never fetched".
const (
	FreshnessFresh   FreshnessStatus = "fresh"
	FreshnessStale   FreshnessStatus = "stale"
	FreshnessMissing FreshnessStatus = "missing"
)

// FetchReason classifies why a provider fetch failed.
type FetchReason string

// FetchReason values enumerate the machine-readable fetch failure causes.
const (
	FetchTimeout     FetchReason = "timeout"
	FetchHTTPError   FetchReason = "http_error"
	FetchParseError  FetchReason = "parse_error"
	FetchRateLimited FetchReason = "rate_limited"
)

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertFile    AlertType = "file"
	AlertSNS     AlertType = "sns"
)

// AlertLevel classifies alert severity.
type AlertLevel string

const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)

// EventKind classifies the type of audit event.
type EventKind string

// EventKind values enumerate the categories of recorded events.
const (
	EventValueRefreshed    EventKind = "VALUE_REFRESHED"
	EventCategoryExhausted EventKind = "CATEGORY_EXHAUSTED"
	EventBreakerOpened     EventKind = "BREAKER_OPENED"
	EventBreakerReset      EventKind = "BREAKER_RESET"
	EventPipelineCompleted EventKind = "PIPELINE_COMPLETED"
)
