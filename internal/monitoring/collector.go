package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/propdata/rera-ingest/internal/model"
	"github.com/propdata/rera-ingest/internal/store"
)

// MetricsSnapshot holds a point-in-time view of ingestion health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int `json:"runs_total"`
	RunsComplete int `json:"runs_complete"`
	RunsFailed   int `json:"runs_failed"`
	RunsRunning  int `json:"runs_running"`

	// Record outcomes aggregated over the window's runs.
	RecordsProcessed int64   `json:"records_processed"`
	RecordsCreated   int64   `json:"records_created"`
	RecordsUpdated   int64   `json:"records_updated"`
	RecordsUnchanged int64   `json:"records_unchanged"`
	RecordsFailed    int64   `json:"records_failed"`
	RecordsSkipped   int64   `json:"records_skipped"`
	RecordFailRate   float64 `json:"record_fail_rate"`

	// Provenance decision counts within the window.
	Decisions map[model.Decision]int64 `json:"decisions,omitempty"`

	// Store totals, not windowed.
	Entities *store.EntityCounts `json:"entities,omitempty"`

	// Hours since the last completed delta run; -1 when none exists.
	HoursSinceLastDelta float64 `json:"hours_since_last_delta"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store's run audit and provenance log.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of ingestion metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours:       lookbackHours,
		HoursSinceLastDelta: -1,
		CollectedAt:         now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		StartedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		snap.RecordsProcessed += r.Counts.Processed
		snap.RecordsCreated += r.Counts.Created
		snap.RecordsUpdated += r.Counts.Updated
		snap.RecordsUnchanged += r.Counts.Unchanged
		snap.RecordsFailed += r.Counts.Failed
		snap.RecordsSkipped += r.Counts.Skipped
	}
	if snap.RecordsProcessed > 0 {
		snap.RecordFailRate = float64(snap.RecordsFailed) / float64(snap.RecordsProcessed)
	}

	decisions, err := c.store.DecisionCounts(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: decision counts")
	}
	snap.Decisions = decisions

	entities, err := c.store.Counts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: entity counts")
	}
	snap.Entities = entities

	last, err := c.store.LastRun(ctx, model.RunModeDelta)
	switch {
	case err == nil:
		if last.CompletedAt != nil {
			snap.HoursSinceLastDelta = now.Sub(*last.CompletedAt).Hours()
		}
	case !eris.Is(err, store.ErrNotFound):
		return nil, eris.Wrap(err, "monitoring: last delta run")
	}

	return snap, nil
}
