package model

import "time"

// RunMode selects how an ingest run treats previously seen registrations.
type RunMode string

const (
	// RunModeFull processes every supplied record, cached or not.
	RunModeFull RunMode = "full"
	// RunModeDelta skips records whose cache key is already in the scrape cache.
	RunModeDelta RunMode = "delta"
)

// Valid reports whether m is a recognized run mode.
func (m RunMode) Valid() bool {
	return m == RunModeFull || m == RunModeDelta
}

// RunStatus is the lifecycle state of an ingest run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunCounts aggregates per-record outcomes for one run.
type RunCounts struct {
	Processed int64 `json:"processed"`
	Created   int64 `json:"created"`
	Updated   int64 `json:"updated"`
	Unchanged int64 `json:"unchanged"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"` // delta-mode cache hits, never reached the engine
}

// IngestRun is one CLI invocation of the ingestion engine, recorded for
// auditing. Per-record failures are counted here and detailed in
// provenance_records; they do not fail the run.
type IngestRun struct {
	ID          string     `json:"id"`
	Mode        RunMode    `json:"mode"`
	Status      RunStatus  `json:"status"`
	Source      string     `json:"source,omitempty"`
	Counts      RunCounts  `json:"counts"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration returns the run's wall time, zero while it is still running.
func (r *IngestRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
