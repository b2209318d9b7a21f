package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/propdata/rera-ingest/internal/model"
)

// Row scanning shared by both backends. database/sql and pgx rows satisfy
// the same Scan signature, so each helper works over either driver.

type scannable interface {
	Scan(dest ...any) error
}

// isNoRows matches the no-rows sentinel of either driver.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

func scanParent(row scannable) (*model.ParentProject, error) {
	var p model.ParentProject
	err := row.Scan(&p.ID, &p.NormalizedName, &p.NormalizedAddress, &p.NormalizedPromoter,
		&p.DisplayName, &p.DisplayAddress, &p.DisplayPromoter, &p.CreatedAt, &p.UpdatedAt)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan parent project")
	}
	return &p, nil
}

func scanRegistration(row scannable) (*model.Registration, error) {
	var r model.Registration
	err := row.Scan(&r.ID, &r.ParentProjectID, &r.StateCode, &r.RegistrationNo, &r.ProjectName,
		&r.Address, &r.PromoterName, &r.District, &r.ProjectType, &r.Status, &r.ApprovedOn,
		&r.ExpiresOn, &r.SourceURL, &r.ContentHash, &r.ScrapedAt, &r.LastCheckedAt,
		&r.CreatedAt, &r.UpdatedAt)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan registration")
	}
	return &r, nil
}

func scanIngestRun(row scannable) (*model.IngestRun, error) {
	var r model.IngestRun
	var completedAt sql.NullTime
	err := row.Scan(&r.ID, &r.Mode, &r.Status, &r.Source, &r.Counts.Processed,
		&r.Counts.Created, &r.Counts.Updated, &r.Counts.Unchanged, &r.Counts.Failed,
		&r.Counts.Skipped, &r.Error, &r.StartedAt, &completedAt)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan ingest run")
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func scanProvenance(row scannable) (*model.ProvenanceRecord, error) {
	var p model.ProvenanceRecord
	var regID sql.NullString
	var diffJSON sql.NullString
	err := row.Scan(&p.ID, &p.RunID, &regID, &p.StateCode, &p.RegistrationNo, &p.Decision,
		&p.ContentHash, &diffJSON, &p.Error, &p.SourceURL, &p.CreatedAt)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan provenance")
	}
	if regID.Valid {
		p.RegistrationID = regID.String
	}
	if diffJSON.Valid && diffJSON.String != "" {
		p.Diff = &model.ChangeSummary{}
		if err := json.Unmarshal([]byte(diffJSON.String), p.Diff); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal provenance diff")
		}
	}
	return &p, nil
}

func marshalDiff(d *model.ChangeSummary) (any, error) {
	if d == nil {
		return nil, nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal provenance diff")
	}
	return string(data), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
