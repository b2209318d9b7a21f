package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/propdata/rera-ingest/internal/model"
	"github.com/propdata/rera-ingest/internal/normalize"
	"github.com/propdata/rera-ingest/internal/reconcile"
	"github.com/propdata/rera-ingest/internal/store"
)

// reconcileChildren diffs all five child collections against the incoming
// record and applies the changes inside the record's transaction. Matched
// rows are updated in place so their surrogate ids survive; rows missing
// from the scrape are deleted or flagged inactive per collection policy.
func (u *Upserter) reconcileChildren(ctx context.Context, tx store.IngestTx, regID string, rec model.SourceRecord, now time.Time) (*model.ChangeSummary, error) {
	collections := make(map[string]model.CollectionDiff, 5)

	steps := []struct {
		name string
		run  func() (model.CollectionDiff, error)
	}{
		{reconcile.CollectionBuildings, func() (model.CollectionDiff, error) {
			return u.reconcileBuildings(ctx, tx, regID, rec.Buildings, now)
		}},
		{reconcile.CollectionUnitTypes, func() (model.CollectionDiff, error) {
			return u.reconcileUnitTypes(ctx, tx, regID, rec.UnitTypes, now)
		}},
		{reconcile.CollectionBankAccounts, func() (model.CollectionDiff, error) {
			return u.reconcileBankAccounts(ctx, tx, regID, rec.BankAccounts, now)
		}},
		{reconcile.CollectionDocuments, func() (model.CollectionDiff, error) {
			return u.reconcileDocuments(ctx, tx, regID, rec.Documents, now)
		}},
		{reconcile.CollectionPeriodicUpdates, func() (model.CollectionDiff, error) {
			return u.reconcilePeriodicUpdates(ctx, tx, regID, rec.PeriodicUpdates, now)
		}},
	}
	for _, s := range steps {
		d, err := s.run()
		if err != nil {
			return nil, err
		}
		if !d.Empty() {
			collections[s.name] = d
		}
	}

	summary := &model.ChangeSummary{}
	if len(collections) > 0 {
		summary.Collections = collections
	}
	return summary, nil
}

// applyChanges walks a collection diff and issues the writes. Rows missing
// from the scrape follow the removal action; rows that were already flagged
// inactive on an earlier pass stay put and are not counted again.
func applyChanges[T any](
	ctx context.Context,
	ch reconcile.Changes[T],
	action reconcile.Action,
	insert func(context.Context, T) error,
	update func(context.Context, reconcile.Pair[T]) error,
	remove func(context.Context, T) error,
	flag func(context.Context, T) error,
	isActive func(T) bool,
) (model.CollectionDiff, error) {
	sum := ch.Summary(action)

	for _, in := range ch.Insert {
		if err := insert(ctx, in); err != nil {
			return sum, err
		}
	}
	for _, pair := range ch.Update {
		if err := update(ctx, pair); err != nil {
			return sum, err
		}
	}
	for _, ex := range ch.Remove {
		if action == reconcile.ActionFlag {
			if !isActive(ex) {
				sum.Flagged--
				continue
			}
			if err := flag(ctx, ex); err != nil {
				return sum, err
			}
			continue
		}
		if err := remove(ctx, ex); err != nil {
			return sum, err
		}
	}

	return sum, nil
}

func (u *Upserter) reconcileBuildings(ctx context.Context, tx store.IngestTx, regID string, incoming []model.BuildingInput, now time.Time) (model.CollectionDiff, error) {
	existing, err := tx.ListBuildings(ctx, regID)
	if err != nil {
		return model.CollectionDiff{}, err
	}

	next := make([]model.Building, 0, len(incoming))
	for _, in := range incoming {
		next = append(next, model.Building{
			Name:   strings.TrimSpace(in.Name),
			Floors: in.Floors,
			Units:  in.Units,
			Status: in.Status,
			Active: true,
		})
	}

	ch := reconcile.Diff(reconcile.CollectionBuildings, existing, next,
		func(b model.Building) string { return normalize.Key(b.Name) },
		func(a, b model.Building) bool {
			return a.Floors == b.Floors && a.Units == b.Units && a.Status == b.Status && a.Active == b.Active
		},
	)

	action := u.policies.For(reconcile.CollectionBuildings)
	return applyChanges(ctx, ch, action,
		func(ctx context.Context, in model.Building) error {
			in.ID = uuid.NewString()
			in.RegistrationID = regID
			in.CreatedAt = now
			in.UpdatedAt = now
			return tx.InsertBuilding(ctx, &in)
		},
		func(ctx context.Context, p reconcile.Pair[model.Building]) error {
			row := p.Existing
			row.Floors = p.Incoming.Floors
			row.Units = p.Incoming.Units
			row.Status = p.Incoming.Status
			row.Active = true
			row.UpdatedAt = now
			return tx.UpdateBuilding(ctx, &row)
		},
		func(ctx context.Context, ex model.Building) error { return tx.DeleteBuilding(ctx, ex.ID) },
		func(ctx context.Context, ex model.Building) error { return tx.DeactivateBuilding(ctx, ex.ID) },
		func(b model.Building) bool { return b.Active },
	)
}

func (u *Upserter) reconcileUnitTypes(ctx context.Context, tx store.IngestTx, regID string, incoming []model.UnitTypeInput, now time.Time) (model.CollectionDiff, error) {
	existing, err := tx.ListUnitTypes(ctx, regID)
	if err != nil {
		return model.CollectionDiff{}, err
	}

	next := make([]model.UnitType, 0, len(incoming))
	for _, in := range incoming {
		next = append(next, model.UnitType{
			Label:         strings.TrimSpace(in.Label),
			CarpetAreaSqm: in.CarpetAreaSqm,
			Count:         in.Count,
			Active:        true,
		})
	}

	ch := reconcile.Diff(reconcile.CollectionUnitTypes, existing, next,
		func(ut model.UnitType) string { return normalize.Key(ut.Label) },
		func(a, b model.UnitType) bool {
			return a.CarpetAreaSqm == b.CarpetAreaSqm && a.Count == b.Count && a.Active == b.Active
		},
	)

	action := u.policies.For(reconcile.CollectionUnitTypes)
	return applyChanges(ctx, ch, action,
		func(ctx context.Context, in model.UnitType) error {
			in.ID = uuid.NewString()
			in.RegistrationID = regID
			in.CreatedAt = now
			in.UpdatedAt = now
			return tx.InsertUnitType(ctx, &in)
		},
		func(ctx context.Context, p reconcile.Pair[model.UnitType]) error {
			row := p.Existing
			row.CarpetAreaSqm = p.Incoming.CarpetAreaSqm
			row.Count = p.Incoming.Count
			row.Active = true
			row.UpdatedAt = now
			return tx.UpdateUnitType(ctx, &row)
		},
		func(ctx context.Context, ex model.UnitType) error { return tx.DeleteUnitType(ctx, ex.ID) },
		func(ctx context.Context, ex model.UnitType) error { return tx.DeactivateUnitType(ctx, ex.ID) },
		func(ut model.UnitType) bool { return ut.Active },
	)
}

func (u *Upserter) reconcileBankAccounts(ctx context.Context, tx store.IngestTx, regID string, incoming []model.BankAccountInput, now time.Time) (model.CollectionDiff, error) {
	existing, err := tx.ListBankAccounts(ctx, regID)
	if err != nil {
		return model.CollectionDiff{}, err
	}

	next := make([]model.BankAccount, 0, len(incoming))
	for _, in := range incoming {
		next = append(next, model.BankAccount{
			AccountNo: strings.TrimSpace(in.AccountNo),
			BankName:  in.BankName,
			IFSC:      in.IFSC,
			Branch:    in.Branch,
			Active:    true,
		})
	}

	ch := reconcile.Diff(reconcile.CollectionBankAccounts, existing, next,
		func(a model.BankAccount) string { return normalize.Key(a.AccountNo) },
		func(a, b model.BankAccount) bool {
			return a.BankName == b.BankName && a.IFSC == b.IFSC && a.Branch == b.Branch && a.Active == b.Active
		},
	)

	action := u.policies.For(reconcile.CollectionBankAccounts)
	return applyChanges(ctx, ch, action,
		func(ctx context.Context, in model.BankAccount) error {
			in.ID = uuid.NewString()
			in.RegistrationID = regID
			in.CreatedAt = now
			in.UpdatedAt = now
			return tx.InsertBankAccount(ctx, &in)
		},
		func(ctx context.Context, p reconcile.Pair[model.BankAccount]) error {
			row := p.Existing
			row.BankName = p.Incoming.BankName
			row.IFSC = p.Incoming.IFSC
			row.Branch = p.Incoming.Branch
			row.Active = true
			row.UpdatedAt = now
			return tx.UpdateBankAccount(ctx, &row)
		},
		func(ctx context.Context, ex model.BankAccount) error { return tx.DeleteBankAccount(ctx, ex.ID) },
		func(ctx context.Context, ex model.BankAccount) error { return tx.DeactivateBankAccount(ctx, ex.ID) },
		func(a model.BankAccount) bool { return a.Active },
	)
}

func (u *Upserter) reconcileDocuments(ctx context.Context, tx store.IngestTx, regID string, incoming []model.DocumentInput, now time.Time) (model.CollectionDiff, error) {
	existing, err := tx.ListDocuments(ctx, regID)
	if err != nil {
		return model.CollectionDiff{}, err
	}

	next := make([]model.Document, 0, len(incoming))
	for _, in := range incoming {
		next = append(next, model.Document{
			Kind:   strings.TrimSpace(in.Kind),
			Title:  in.Title,
			URL:    in.URL,
			Active: true,
		})
	}

	ch := reconcile.Diff(reconcile.CollectionDocuments, existing, next,
		func(d model.Document) string { return normalize.Key(d.Kind) },
		func(a, b model.Document) bool {
			return a.Title == b.Title && a.URL == b.URL && a.Active == b.Active
		},
	)

	action := u.policies.For(reconcile.CollectionDocuments)
	return applyChanges(ctx, ch, action,
		func(ctx context.Context, in model.Document) error {
			in.ID = uuid.NewString()
			in.RegistrationID = regID
			in.CreatedAt = now
			in.UpdatedAt = now
			return tx.InsertDocument(ctx, &in)
		},
		func(ctx context.Context, p reconcile.Pair[model.Document]) error {
			row := p.Existing
			row.Title = p.Incoming.Title
			row.URL = p.Incoming.URL
			row.Active = true
			row.UpdatedAt = now
			return tx.UpdateDocument(ctx, &row)
		},
		func(ctx context.Context, ex model.Document) error { return tx.DeleteDocument(ctx, ex.ID) },
		func(ctx context.Context, ex model.Document) error { return tx.DeactivateDocument(ctx, ex.ID) },
		func(d model.Document) bool { return d.Active },
	)
}

func (u *Upserter) reconcilePeriodicUpdates(ctx context.Context, tx store.IngestTx, regID string, incoming []model.PeriodicUpdateInput, now time.Time) (model.CollectionDiff, error) {
	existing, err := tx.ListPeriodicUpdates(ctx, regID)
	if err != nil {
		return model.CollectionDiff{}, err
	}

	next := make([]model.PeriodicUpdate, 0, len(incoming))
	for _, in := range incoming {
		next = append(next, model.PeriodicUpdate{
			Period:      strings.TrimSpace(in.Period),
			ReportedOn:  in.ReportedOn,
			Description: in.Description,
			PercentDone: in.PercentDone,
			Active:      true,
		})
	}

	ch := reconcile.Diff(reconcile.CollectionPeriodicUpdates, existing, next,
		func(p model.PeriodicUpdate) string { return normalize.Key(p.Period) },
		func(a, b model.PeriodicUpdate) bool {
			return a.ReportedOn == b.ReportedOn && a.Description == b.Description &&
				a.PercentDone == b.PercentDone && a.Active == b.Active
		},
	)

	action := u.policies.For(reconcile.CollectionPeriodicUpdates)
	return applyChanges(ctx, ch, action,
		func(ctx context.Context, in model.PeriodicUpdate) error {
			in.ID = uuid.NewString()
			in.RegistrationID = regID
			in.CreatedAt = now
			in.UpdatedAt = now
			return tx.InsertPeriodicUpdate(ctx, &in)
		},
		func(ctx context.Context, p reconcile.Pair[model.PeriodicUpdate]) error {
			row := p.Existing
			row.ReportedOn = p.Incoming.ReportedOn
			row.Description = p.Incoming.Description
			row.PercentDone = p.Incoming.PercentDone
			row.Active = true
			row.UpdatedAt = now
			return tx.UpdatePeriodicUpdate(ctx, &row)
		},
		func(ctx context.Context, ex model.PeriodicUpdate) error { return tx.DeletePeriodicUpdate(ctx, ex.ID) },
		func(ctx context.Context, ex model.PeriodicUpdate) error { return tx.DeactivatePeriodicUpdate(ctx, ex.ID) },
		func(p model.PeriodicUpdate) bool { return p.Active },
	)
}
