package model

import "time"

// Decision is the ingest outcome for one source record.
type Decision string

const (
	DecisionCreated   Decision = "created"
	DecisionUpdated   Decision = "updated"
	DecisionUnchanged Decision = "unchanged"
	DecisionFailed    Decision = "failed"
)

// CollectionDiff counts what child reconciliation did to one collection.
type CollectionDiff struct {
	Inserted  int `json:"inserted,omitempty"`
	Updated   int `json:"updated,omitempty"`
	Removed   int `json:"removed,omitempty"`
	Flagged   int `json:"flagged,omitempty"`
	Unchanged int `json:"unchanged,omitempty"`
}

// Empty reports whether the diff recorded no activity at all.
func (d CollectionDiff) Empty() bool {
	return d == CollectionDiff{}
}

// ChangeSummary is the audit diff attached to created/updated provenance
// rows: which registration fields changed and what happened per child
// collection. Stored as JSON text alongside the decision.
type ChangeSummary struct {
	Fields      []string                  `json:"fields,omitempty"`
	Collections map[string]CollectionDiff `json:"collections,omitempty"`
}

// ProvenanceRecord is one append-only ingest decision. Rows are never
// updated or deleted; the full history of every registration's sightings
// lives here. RegistrationID is empty for records that failed before a
// registration row was located or created.
type ProvenanceRecord struct {
	ID             string         `json:"id"`
	RunID          string         `json:"run_id"`
	RegistrationID string         `json:"registration_id,omitempty"`
	StateCode      string         `json:"state_code"`
	RegistrationNo string         `json:"registration_no"`
	Decision       Decision       `json:"decision"`
	ContentHash    string         `json:"content_hash,omitempty"`
	Diff           *ChangeSummary `json:"diff,omitempty"`
	Error          string         `json:"error,omitempty"`
	SourceURL      string         `json:"source_url,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
