// Package ingest turns parsed source records into store rows. Each record
// is applied in its own transaction: resolve the parent project, locate the
// registration by natural key, compare content hashes, then insert, update,
// or touch, reconcile child collections, and write the provenance row. The
// engine in this package fans records out over a worker pool and owns the
// run audit trail and the delta-scrape cache.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/propdata/rera-ingest/internal/digest"
	"github.com/propdata/rera-ingest/internal/identity"
	"github.com/propdata/rera-ingest/internal/model"
	"github.com/propdata/rera-ingest/internal/normalize"
	"github.com/propdata/rera-ingest/internal/reconcile"
	"github.com/propdata/rera-ingest/internal/store"
)

// Upserter applies one source record per transaction. It is stateless and
// safe for concurrent use across engine workers.
type Upserter struct {
	resolver *identity.Resolver
	policies reconcile.Policies
}

// NewUpserter returns an Upserter that reconciles child collections under
// the given removal policies.
func NewUpserter(policies reconcile.Policies) *Upserter {
	return &Upserter{
		resolver: identity.NewResolver(),
		policies: policies,
	}
}

// Outcome reports what one record's transaction committed.
type Outcome struct {
	Decision       model.Decision
	RegistrationID string
	ParentID       string
	ParentCreated  bool
	Diff           *model.ChangeSummary
}

// Validate rejects records whose natural key is empty after normalization.
// Such records carry no usable identity and are refused before any write.
func Validate(rec model.SourceRecord) error {
	if normalize.Key(rec.StateCode) == "" {
		return eris.New("ingest: record has empty state code")
	}
	if normalize.Key(rec.RegistrationNo) == "" {
		return eris.New("ingest: record has empty registration number")
	}
	return nil
}

// Apply runs the full per-record sequence in a single transaction and
// commits it. On any error the transaction is rolled back and the store is
// left exactly as it was. The caller records the failure out of band.
func (u *Upserter) Apply(ctx context.Context, st store.Store, runID string, rec model.SourceRecord) (*Outcome, error) {
	if err := Validate(rec); err != nil {
		return nil, err
	}

	tx, err := st.BeginIngest(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: begin record transaction")
	}
	// No-op after a successful commit.
	defer func() { _ = tx.Rollback(ctx) }()

	out, err := u.apply(ctx, tx, runID, rec)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "ingest: commit record")
	}
	return out, nil
}

func (u *Upserter) apply(ctx context.Context, tx store.IngestTx, runID string, rec model.SourceRecord) (*Outcome, error) {
	now := time.Now().UTC()

	parent, parentCreated, err := u.resolver.ResolveOrCreateParent(ctx, tx, rec.ProjectName, rec.Address, rec.PromoterName)
	if err != nil {
		return nil, err
	}

	stateCode := normalize.Key(rec.StateCode)
	regNo := normalize.Key(rec.RegistrationNo)
	hash := digest.Registration(rec)

	existing, err := tx.GetRegistration(ctx, stateCode, regNo)
	if err != nil && !eris.Is(err, store.ErrNotFound) {
		return nil, err
	}

	out := &Outcome{ParentID: parent.ID, ParentCreated: parentCreated}

	switch {
	case existing == nil:
		reg := newRegistration(rec, parent.ID, stateCode, regNo, hash, now)
		if err := tx.InsertRegistration(ctx, reg); err != nil {
			return nil, err
		}
		diff, err := u.reconcileChildren(ctx, tx, reg.ID, rec, now)
		if err != nil {
			return nil, err
		}
		out.Decision = model.DecisionCreated
		out.RegistrationID = reg.ID
		out.Diff = diff

	case existing.ContentHash == hash:
		// Same content as last time: only the sighting timestamp moves.
		if err := tx.TouchRegistration(ctx, existing.ID, now); err != nil {
			return nil, err
		}
		out.Decision = model.DecisionUnchanged
		out.RegistrationID = existing.ID

	default:
		fields := changedFields(existing, rec)
		upd := *existing
		upd.ParentProjectID = parent.ID
		upd.ProjectName = rec.ProjectName
		upd.Address = rec.Address
		upd.PromoterName = rec.PromoterName
		upd.District = rec.District
		upd.ProjectType = rec.ProjectType
		upd.Status = rec.Status
		upd.ApprovedOn = rec.ApprovedOn
		upd.ExpiresOn = rec.ExpiresOn
		upd.SourceURL = rec.SourceURL
		upd.ContentHash = hash
		upd.ScrapedAt = scrapedAt(rec, now)
		upd.LastCheckedAt = now
		upd.UpdatedAt = now
		if err := tx.UpdateRegistration(ctx, &upd); err != nil {
			return nil, err
		}
		diff, err := u.reconcileChildren(ctx, tx, existing.ID, rec, now)
		if err != nil {
			return nil, err
		}
		diff.Fields = fields
		out.Decision = model.DecisionUpdated
		out.RegistrationID = existing.ID
		out.Diff = diff
	}

	prov := &model.ProvenanceRecord{
		ID:             uuid.NewString(),
		RunID:          runID,
		RegistrationID: out.RegistrationID,
		StateCode:      stateCode,
		RegistrationNo: regNo,
		Decision:       out.Decision,
		ContentHash:    hash,
		Diff:           out.Diff,
		SourceURL:      rec.SourceURL,
		CreatedAt:      now,
	}
	if err := tx.InsertProvenance(ctx, prov); err != nil {
		return nil, err
	}

	return out, nil
}

func newRegistration(rec model.SourceRecord, parentID, stateCode, regNo, hash string, now time.Time) *model.Registration {
	return &model.Registration{
		ID:              uuid.NewString(),
		ParentProjectID: parentID,
		StateCode:       stateCode,
		RegistrationNo:  regNo,
		ProjectName:     rec.ProjectName,
		Address:         rec.Address,
		PromoterName:    rec.PromoterName,
		District:        rec.District,
		ProjectType:     rec.ProjectType,
		Status:          rec.Status,
		ApprovedOn:      rec.ApprovedOn,
		ExpiresOn:       rec.ExpiresOn,
		SourceURL:       rec.SourceURL,
		ContentHash:     hash,
		ScrapedAt:       scrapedAt(rec, now),
		LastCheckedAt:   now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// scrapedAt prefers the scrape timestamp carried by the record; bundles
// assembled by hand often omit it.
func scrapedAt(rec model.SourceRecord, now time.Time) time.Time {
	if rec.ScrapedAt.IsZero() {
		return now
	}
	return rec.ScrapedAt.UTC()
}

// changedFields lists the registration content fields that differ between
// the stored row and the incoming record, in column order.
func changedFields(existing *model.Registration, rec model.SourceRecord) []string {
	var fields []string
	for _, f := range []struct {
		name       string
		prev, next string
	}{
		{"project_name", existing.ProjectName, rec.ProjectName},
		{"address", existing.Address, rec.Address},
		{"promoter_name", existing.PromoterName, rec.PromoterName},
		{"district", existing.District, rec.District},
		{"project_type", existing.ProjectType, rec.ProjectType},
		{"status", existing.Status, rec.Status},
		{"approved_on", existing.ApprovedOn, rec.ApprovedOn},
		{"expires_on", existing.ExpiresOn, rec.ExpiresOn},
	} {
		if f.prev != f.next {
			fields = append(fields, f.name)
		}
	}
	return fields
}
