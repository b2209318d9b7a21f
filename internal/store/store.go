// Package store persists parent projects, registrations, child collections,
// provenance, and run audit rows. Two backends implement the same contract:
// SQLite (default, single file) and Postgres (pgxpool). All ingest writes for
// one source record go through a single IngestTx so they commit or roll back
// together.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/propdata/rera-ingest/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrDuplicate is returned when an insert hits a unique constraint.
	// The identity resolver treats this as "a concurrent writer won" and
	// re-reads instead of failing.
	ErrDuplicate = eris.New("store: duplicate key")
)

// RunFilter specifies criteria for listing ingest runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	Mode         model.RunMode   `json:"mode,omitempty"`
	StartedAfter time.Time       `json:"started_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// ProjectFilter specifies criteria for listing parent projects.
type ProjectFilter struct {
	// NameContains matches against the normalized project name.
	NameContains string `json:"name_contains,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

// ProvenanceFilter specifies criteria for listing provenance records.
type ProvenanceFilter struct {
	StateCode      string         `json:"state_code,omitempty"`
	RegistrationNo string         `json:"registration_no,omitempty"`
	RunID          string         `json:"run_id,omitempty"`
	Decision       model.Decision `json:"decision,omitempty"`
	Limit          int            `json:"limit,omitempty"`
}

// EntityCounts holds row totals per table for status displays.
type EntityCounts struct {
	ParentProjects  int64 `json:"parent_projects"`
	Registrations   int64 `json:"registrations"`
	Buildings       int64 `json:"buildings"`
	UnitTypes       int64 `json:"unit_types"`
	BankAccounts    int64 `json:"bank_accounts"`
	Documents       int64 `json:"documents"`
	PeriodicUpdates int64 `json:"periodic_updates"`
	Provenance      int64 `json:"provenance_records"`
	Candidates      int64 `json:"candidate_registrations"`
	Runs            int64 `json:"ingest_runs"`
}

// Store defines the persistence interface for the ingestion engine.
type Store interface {
	// BeginIngest opens the transaction that carries all writes for one
	// source record.
	BeginIngest(ctx context.Context) (IngestTx, error)

	// RecordFailure writes a failed provenance row outside any ingest
	// transaction, so the failure stays auditable after a rollback.
	RecordFailure(ctx context.Context, p *model.ProvenanceRecord) error

	// Run audit
	StartRun(ctx context.Context, mode model.RunMode, source string) (*model.IngestRun, error)
	CompleteRun(ctx context.Context, runID string, counts model.RunCounts) error
	FailRun(ctx context.Context, runID string, counts model.RunCounts, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.IngestRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.IngestRun, error)
	LastRun(ctx context.Context, mode model.RunMode) (*model.IngestRun, error)

	// Read paths (CLI, audit endpoint)
	ListParentProjects(ctx context.Context, filter ProjectFilter) ([]model.ParentProject, error)
	GetParentProject(ctx context.Context, id string) (*model.ParentProject, error)
	ListRegistrations(ctx context.Context, parentProjectID string) ([]model.Registration, error)
	GetRegistrationByKey(ctx context.Context, stateCode, registrationNo string) (*model.RegistrationDetail, error)
	ListProvenance(ctx context.Context, filter ProvenanceFilter) ([]model.ProvenanceRecord, error)
	DecisionCounts(ctx context.Context, since time.Time) (map[model.Decision]int64, error)
	Counts(ctx context.Context) (*EntityCounts, error)

	// Candidate index
	UpsertCandidates(ctx context.Context, rows []model.CandidateRegistration) (int64, error)
	ListCandidates(ctx context.Context, stateCode string, limit int) ([]model.CandidateRegistration, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// IngestTx carries every read and write the upsert engine performs for one
// source record. Implementations map unique-constraint violations to
// ErrDuplicate and missing rows to ErrNotFound. Locate-by-natural-key and
// insert/update are separate calls on purpose: the same engine logic works
// on backends without native upsert syntax.
type IngestTx interface {
	// Parent projects
	FindParentByTriple(ctx context.Context, triple model.IdentityTriple) (*model.ParentProject, error)
	InsertParent(ctx context.Context, p *model.ParentProject) error
	RefreshParentDisplay(ctx context.Context, id, displayName, displayAddress, displayPromoter string) error

	// Registrations
	GetRegistration(ctx context.Context, stateCode, registrationNo string) (*model.Registration, error)
	InsertRegistration(ctx context.Context, r *model.Registration) error
	UpdateRegistration(ctx context.Context, r *model.Registration) error
	TouchRegistration(ctx context.Context, id string, checkedAt time.Time) error

	// Buildings
	ListBuildings(ctx context.Context, registrationID string) ([]model.Building, error)
	InsertBuilding(ctx context.Context, b *model.Building) error
	UpdateBuilding(ctx context.Context, b *model.Building) error
	DeleteBuilding(ctx context.Context, id string) error
	DeactivateBuilding(ctx context.Context, id string) error

	// Unit types
	ListUnitTypes(ctx context.Context, registrationID string) ([]model.UnitType, error)
	InsertUnitType(ctx context.Context, u *model.UnitType) error
	UpdateUnitType(ctx context.Context, u *model.UnitType) error
	DeleteUnitType(ctx context.Context, id string) error
	DeactivateUnitType(ctx context.Context, id string) error

	// Bank accounts
	ListBankAccounts(ctx context.Context, registrationID string) ([]model.BankAccount, error)
	InsertBankAccount(ctx context.Context, a *model.BankAccount) error
	UpdateBankAccount(ctx context.Context, a *model.BankAccount) error
	DeleteBankAccount(ctx context.Context, id string) error
	DeactivateBankAccount(ctx context.Context, id string) error

	// Documents
	ListDocuments(ctx context.Context, registrationID string) ([]model.Document, error)
	InsertDocument(ctx context.Context, d *model.Document) error
	UpdateDocument(ctx context.Context, d *model.Document) error
	DeleteDocument(ctx context.Context, id string) error
	DeactivateDocument(ctx context.Context, id string) error

	// Periodic updates
	ListPeriodicUpdates(ctx context.Context, registrationID string) ([]model.PeriodicUpdate, error)
	InsertPeriodicUpdate(ctx context.Context, u *model.PeriodicUpdate) error
	UpdatePeriodicUpdate(ctx context.Context, u *model.PeriodicUpdate) error
	DeletePeriodicUpdate(ctx context.Context, id string) error
	DeactivatePeriodicUpdate(ctx context.Context, id string) error

	// Provenance
	InsertProvenance(ctx context.Context, p *model.ProvenanceRecord) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
