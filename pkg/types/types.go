package types

import (
	"encoding/json"
	"time"
)

// BreakerState is the persisted circuit breaker state for one
// (category, provider) pair. Version supports compare-and-swap updates;
// concurrent workers race on the same key and a torn write is not acceptable.
type BreakerState struct {
	Category            string       `json:"category"`
	Provider            string       `json:"provider"`
	State               CircuitState `json:"state"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	OpenedAt            *time.Time   `json:"openedAt,omitempty"`
	CooldownSeconds     int          `json:"cooldownSeconds"`
	Version             int          `json:"version"`
	UpdatedAt           time.Time    `json:"updatedAt"`
}

// Cooldown returns the current cooldown as a duration.
func (b BreakerState) Cooldown() time.Duration {
	return time.Duration(b.CooldownSeconds) * time.Second
}

// EffectiveState returns the state as observed at time now: an OPEN breaker
// whose cooldown has elapsed reads as HALF_OPEN without a stored transition.
func (b BreakerState) EffectiveState(now time.Time) CircuitState {
	if b.State == CircuitOpen && b.OpenedAt != nil && now.Sub(*b.OpenedAt) >= b.Cooldown() {
		return CircuitHalfOpen
	}
	return b.State
}

// CachedValue is the last-known-good payload for a category. It expires
// logically after TTLSeconds but is never deleted — staleness is a read-time
// judgment, and stale-but-present data beats nothing.
type CachedValue struct {
	Category   string          `json:"category"`
	Value      json.RawMessage `json:"value"`
	FetchedAt  time.Time       `json:"fetchedAt"`
	Source     string          `json:"source"`
	TTLSeconds int             `json:"ttlSeconds"`
}

// AttemptResult records one provider attempt within a fallback chain pass.
type AttemptResult struct {
	Provider   string      `json:"provider"`
	Skipped    bool        `json:"skipped,omitempty"`
	Reason     FetchReason `json:"reason,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMS int64       `json:"durationMs"`
}

// StepResult is the outcome of refreshing one category.
type StepResult struct {
	Category      string          `json:"category"`
	Status        StepStatus      `json:"status"`
	WinningSource string          `json:"winningSource,omitempty"`
	DurationMS    int64           `json:"durationMs"`
	Error         string          `json:"error,omitempty"`
	Attempts      []AttemptResult `json:"attempts,omitempty"`
}

// PipelineRunResult is produced per orchestrator invocation.
type PipelineRunResult struct {
	RunID      string       `json:"runId"`
	Pipeline   string       `json:"pipeline"`
	Status     RunStatus    `json:"status"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Steps      []StepResult `json:"steps"`
}

// FreshnessEntry is the derived staleness judgment for one category.
type FreshnessEntry struct {
	Category   string          `json:"category"`
	Status     FreshnessStatus `json:"status"`
	Stale      bool            `json:"stale"`
	AgeSeconds int64           `json:"ageSeconds,omitempty"`
	Source     string          `json:"source,omitempty"`
	FetchedAt  *time.Time      `json:"fetchedAt,omitempty"`
}

// Alert represents an alert event to be dispatched.
type Alert struct {
	Level     AlertLevel             `json:"level"`
	Pipeline  string                 `json:"pipeline,omitempty"`
	Category  string                 `json:"category,omitempty"`
	Provider  string                 `json:"provider,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Event is an append-only audit log entry recording what happened and when.
type Event struct {
	Kind      EventKind              `json:"kind"`
	Pipeline  string                 `json:"pipeline,omitempty"`
	Category  string                 `json:"category,omitempty"`
	Provider  string                 `json:"provider,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
