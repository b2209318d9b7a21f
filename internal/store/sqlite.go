package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/propdata/rera-ingest/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. Write transactions begin immediate so concurrent ingest workers
// queue on busy_timeout instead of hitting a mid-transaction lock upgrade.
func NewSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_txlock=immediate"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS parent_projects (
	id                  TEXT PRIMARY KEY,
	normalized_name     TEXT NOT NULL,
	normalized_address  TEXT NOT NULL,
	normalized_promoter TEXT NOT NULL,
	display_name        TEXT NOT NULL DEFAULT '',
	display_address     TEXT NOT NULL DEFAULT '',
	display_promoter    TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL,
	UNIQUE (normalized_name, normalized_address, normalized_promoter)
);

CREATE TABLE IF NOT EXISTS registrations (
	id                TEXT PRIMARY KEY,
	parent_project_id TEXT NOT NULL REFERENCES parent_projects(id),
	state_code        TEXT NOT NULL,
	registration_no   TEXT NOT NULL,
	project_name      TEXT NOT NULL DEFAULT '',
	address           TEXT NOT NULL DEFAULT '',
	promoter_name     TEXT NOT NULL DEFAULT '',
	district          TEXT NOT NULL DEFAULT '',
	project_type      TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT '',
	approved_on       TEXT NOT NULL DEFAULT '',
	expires_on        TEXT NOT NULL DEFAULT '',
	source_url        TEXT NOT NULL DEFAULT '',
	content_hash      TEXT NOT NULL,
	scraped_at        DATETIME NOT NULL,
	last_checked_at   DATETIME NOT NULL,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL,
	UNIQUE (state_code, registration_no)
);

CREATE INDEX IF NOT EXISTS idx_registrations_parent ON registrations(parent_project_id);

CREATE TABLE IF NOT EXISTS buildings (
	id              TEXT PRIMARY KEY,
	registration_id TEXT NOT NULL REFERENCES registrations(id),
	name            TEXT NOT NULL,
	floors          INTEGER NOT NULL DEFAULT 0,
	units           INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT '',
	active          INTEGER NOT NULL DEFAULT 1,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	UNIQUE (registration_id, name)
);

CREATE TABLE IF NOT EXISTS unit_types (
	id              TEXT PRIMARY KEY,
	registration_id TEXT NOT NULL REFERENCES registrations(id),
	label           TEXT NOT NULL,
	carpet_area_sqm REAL NOT NULL DEFAULT 0,
	unit_count      INTEGER NOT NULL DEFAULT 0,
	active          INTEGER NOT NULL DEFAULT 1,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	UNIQUE (registration_id, label)
);

CREATE TABLE IF NOT EXISTS bank_accounts (
	id              TEXT PRIMARY KEY,
	registration_id TEXT NOT NULL REFERENCES registrations(id),
	account_no      TEXT NOT NULL,
	bank_name       TEXT NOT NULL DEFAULT '',
	ifsc            TEXT NOT NULL DEFAULT '',
	branch          TEXT NOT NULL DEFAULT '',
	active          INTEGER NOT NULL DEFAULT 1,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	UNIQUE (registration_id, account_no)
);

CREATE TABLE IF NOT EXISTS documents (
	id              TEXT PRIMARY KEY,
	registration_id TEXT NOT NULL REFERENCES registrations(id),
	kind            TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	url             TEXT NOT NULL DEFAULT '',
	active          INTEGER NOT NULL DEFAULT 1,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	UNIQUE (registration_id, kind)
);

CREATE TABLE IF NOT EXISTS periodic_updates (
	id              TEXT PRIMARY KEY,
	registration_id TEXT NOT NULL REFERENCES registrations(id),
	period          TEXT NOT NULL,
	reported_on     TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	percent_done    REAL NOT NULL DEFAULT 0,
	active          INTEGER NOT NULL DEFAULT 1,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	UNIQUE (registration_id, period)
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id              TEXT PRIMARY KEY,
	mode            TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'running',
	source          TEXT NOT NULL DEFAULT '',
	processed       INTEGER NOT NULL DEFAULT 0,
	created_count   INTEGER NOT NULL DEFAULT 0,
	updated_count   INTEGER NOT NULL DEFAULT 0,
	unchanged_count INTEGER NOT NULL DEFAULT 0,
	failed_count    INTEGER NOT NULL DEFAULT 0,
	skipped_count   INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	started_at      DATETIME NOT NULL,
	completed_at    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_status ON ingest_runs(status);

CREATE TABLE IF NOT EXISTS provenance_records (
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL,
	registration_id TEXT,
	state_code      TEXT NOT NULL,
	registration_no TEXT NOT NULL,
	decision        TEXT NOT NULL,
	content_hash    TEXT NOT NULL DEFAULT '',
	diff            TEXT,
	error           TEXT NOT NULL DEFAULT '',
	source_url      TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_provenance_key ON provenance_records(state_code, registration_no);
CREATE INDEX IF NOT EXISTS idx_provenance_run ON provenance_records(run_id);

CREATE TABLE IF NOT EXISTS candidate_registrations (
	state_code      TEXT NOT NULL,
	registration_no TEXT NOT NULL,
	project_name    TEXT NOT NULL DEFAULT '',
	district        TEXT NOT NULL DEFAULT '',
	listed_at       DATETIME NOT NULL,
	PRIMARY KEY (state_code, registration_no)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteIsUnique reports whether err is a unique-constraint violation.
// modernc surfaces constraint failures as plain error strings.
func sqliteIsUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- ingest transaction ---

func (s *SQLiteStore) BeginIngest(ctx context.Context) (IngestTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin ingest tx")
	}
	return &sqliteIngestTx{tx: tx}, nil
}

type sqliteIngestTx struct {
	tx *sql.Tx
}

func (t *sqliteIngestTx) Commit(context.Context) error {
	return eris.Wrap(t.tx.Commit(), "sqlite: commit ingest tx")
}

func (t *sqliteIngestTx) Rollback(context.Context) error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return eris.Wrap(err, "sqlite: rollback ingest tx")
}

func (t *sqliteIngestTx) FindParentByTriple(ctx context.Context, triple model.IdentityTriple) (*model.ParentProject, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, normalized_name, normalized_address, normalized_promoter,
		        display_name, display_address, display_promoter, created_at, updated_at
		 FROM parent_projects
		 WHERE normalized_name = ? AND normalized_address = ? AND normalized_promoter = ?`,
		triple.Name, triple.Address, triple.Promoter,
	)
	return scanParent(row)
}

func (t *sqliteIngestTx) InsertParent(ctx context.Context, p *model.ParentProject) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO parent_projects
		 (id, normalized_name, normalized_address, normalized_promoter,
		  display_name, display_address, display_promoter, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.NormalizedName, p.NormalizedAddress, p.NormalizedPromoter,
		p.DisplayName, p.DisplayAddress, p.DisplayPromoter, p.CreatedAt, p.UpdatedAt,
	)
	if sqliteIsUnique(err) {
		return eris.Wrap(ErrDuplicate, "sqlite: insert parent")
	}
	return eris.Wrap(err, "sqlite: insert parent")
}

func (t *sqliteIngestTx) RefreshParentDisplay(ctx context.Context, id, displayName, displayAddress, displayPromoter string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE parent_projects
		 SET display_name = ?, display_address = ?, display_promoter = ?, updated_at = ?
		 WHERE id = ?`,
		displayName, displayAddress, displayPromoter, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: refresh parent display %s", id)
	}
	return checkRowsAffected(res, "parent_project", id)
}

func (t *sqliteIngestTx) GetRegistration(ctx context.Context, stateCode, registrationNo string) (*model.Registration, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+registrationCols+` FROM registrations
		 WHERE state_code = ? AND registration_no = ?`,
		stateCode, registrationNo,
	)
	return scanRegistration(row)
}

const registrationCols = `id, parent_project_id, state_code, registration_no, project_name,
	address, promoter_name, district, project_type, status, approved_on, expires_on,
	source_url, content_hash, scraped_at, last_checked_at, created_at, updated_at`

func (t *sqliteIngestTx) InsertRegistration(ctx context.Context, r *model.Registration) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO registrations
		 (id, parent_project_id, state_code, registration_no, project_name, address,
		  promoter_name, district, project_type, status, approved_on, expires_on,
		  source_url, content_hash, scraped_at, last_checked_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ParentProjectID, r.StateCode, r.RegistrationNo, r.ProjectName, r.Address,
		r.PromoterName, r.District, r.ProjectType, r.Status, r.ApprovedOn, r.ExpiresOn,
		r.SourceURL, r.ContentHash, r.ScrapedAt, r.LastCheckedAt, r.CreatedAt, r.UpdatedAt,
	)
	if sqliteIsUnique(err) {
		return eris.Wrapf(ErrDuplicate, "sqlite: insert registration %s:%s", r.StateCode, r.RegistrationNo)
	}
	return eris.Wrapf(err, "sqlite: insert registration %s:%s", r.StateCode, r.RegistrationNo)
}

func (t *sqliteIngestTx) UpdateRegistration(ctx context.Context, r *model.Registration) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE registrations
		 SET parent_project_id = ?, project_name = ?, address = ?, promoter_name = ?,
		     district = ?, project_type = ?, status = ?, approved_on = ?, expires_on = ?,
		     source_url = ?, content_hash = ?, scraped_at = ?, last_checked_at = ?, updated_at = ?
		 WHERE id = ?`,
		r.ParentProjectID, r.ProjectName, r.Address, r.PromoterName,
		r.District, r.ProjectType, r.Status, r.ApprovedOn, r.ExpiresOn,
		r.SourceURL, r.ContentHash, r.ScrapedAt, r.LastCheckedAt, r.UpdatedAt,
		r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update registration %s", r.ID)
	}
	return checkRowsAffected(res, "registration", r.ID)
}

func (t *sqliteIngestTx) TouchRegistration(ctx context.Context, id string, checkedAt time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE registrations SET last_checked_at = ? WHERE id = ?`,
		checkedAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch registration %s", id)
	}
	return checkRowsAffected(res, "registration", id)
}

// --- buildings ---

func (t *sqliteIngestTx) ListBuildings(ctx context.Context, registrationID string) ([]model.Building, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, registration_id, name, floors, units, status, active, created_at, updated_at
		 FROM buildings WHERE registration_id = ? ORDER BY name`,
		registrationID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list buildings")
	}
	defer rows.Close()

	var out []model.Building
	for rows.Next() {
		var b model.Building
		if err := rows.Scan(&b.ID, &b.RegistrationID, &b.Name, &b.Floors, &b.Units,
			&b.Status, &b.Active, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan building")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list buildings iterate")
}

func (t *sqliteIngestTx) InsertBuilding(ctx context.Context, b *model.Building) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO buildings (id, registration_id, name, floors, units, status, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.RegistrationID, b.Name, b.Floors, b.Units, b.Status, b.Active, b.CreatedAt, b.UpdatedAt,
	)
	if sqliteIsUnique(err) {
		return eris.Wrapf(ErrDuplicate, "sqlite: insert building %q", b.Name)
	}
	return eris.Wrapf(err, "sqlite: insert building %q", b.Name)
}

func (t *sqliteIngestTx) UpdateBuilding(ctx context.Context, b *model.Building) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE buildings SET floors = ?, units = ?, status = ?, active = ?, updated_at = ? WHERE id = ?`,
		b.Floors, b.Units, b.Status, b.Active, b.UpdatedAt, b.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update building %s", b.ID)
	}
	return checkRowsAffected(res, "building", b.ID)
}

func (t *sqliteIngestTx) DeleteBuilding(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM buildings WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: delete building %s", id)
}

func (t *sqliteIngestTx) DeactivateBuilding(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE buildings SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: deactivate building %s", id)
}

// --- unit types ---

func (t *sqliteIngestTx) ListUnitTypes(ctx context.Context, registrationID string) ([]model.UnitType, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, registration_id, label, carpet_area_sqm, unit_count, active, created_at, updated_at
		 FROM unit_types WHERE registration_id = ? ORDER BY label`,
		registrationID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unit types")
	}
	defer rows.Close()

	var out []model.UnitType
	for rows.Next() {
		var u model.UnitType
		if err := rows.Scan(&u.ID, &u.RegistrationID, &u.Label, &u.CarpetAreaSqm, &u.Count,
			&u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan unit type")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list unit types iterate")
}

func (t *sqliteIngestTx) InsertUnitType(ctx context.Context, u *model.UnitType) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO unit_types (id, registration_id, label, carpet_area_sqm, unit_count, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.RegistrationID, u.Label, u.CarpetAreaSqm, u.Count, u.Active, u.CreatedAt, u.UpdatedAt,
	)
	if sqliteIsUnique(err) {
		return eris.Wrapf(ErrDuplicate, "sqlite: insert unit type %q", u.Label)
	}
	return eris.Wrapf(err, "sqlite: insert unit type %q", u.Label)
}

func (t *sqliteIngestTx) UpdateUnitType(ctx context.Context, u *model.UnitType) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE unit_types SET carpet_area_sqm = ?, unit_count = ?, active = ?, updated_at = ? WHERE id = ?`,
		u.CarpetAreaSqm, u.Count, u.Active, u.UpdatedAt, u.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update unit type %s", u.ID)
	}
	return checkRowsAffected(res, "unit_type", u.ID)
}

func (t *sqliteIngestTx) DeleteUnitType(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM unit_types WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: delete unit type %s", id)
}

func (t *sqliteIngestTx) DeactivateUnitType(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE unit_types SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: deactivate unit type %s", id)
}

// --- bank accounts ---

func (t *sqliteIngestTx) ListBankAccounts(ctx context.Context, registrationID string) ([]model.BankAccount, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, registration_id, account_no, bank_name, ifsc, branch, active, created_at, updated_at
		 FROM bank_accounts WHERE registration_id = ? ORDER BY account_no`,
		registrationID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list bank accounts")
	}
	defer rows.Close()

	var out []model.BankAccount
	for rows.Next() {
		var a model.BankAccount
		if err := rows.Scan(&a.ID, &a.RegistrationID, &a.AccountNo, &a.BankName, &a.IFSC,
			&a.Branch, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bank account")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list bank accounts iterate")
}

func (t *sqliteIngestTx) InsertBankAccount(ctx context.Context, a *model.BankAccount) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO bank_accounts (id, registration_id, account_no, bank_name, ifsc, branch, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RegistrationID, a.AccountNo, a.BankName, a.IFSC, a.Branch, a.Active, a.CreatedAt, a.UpdatedAt,
	)
	if sqliteIsUnique(err) {
		return eris.Wrap(ErrDuplicate, "sqlite: insert bank account")
	}
	return eris.Wrap(err, "sqlite: insert bank account")
}

func (t *sqliteIngestTx) UpdateBankAccount(ctx context.Context, a *model.BankAccount) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE bank_accounts SET bank_name = ?, ifsc = ?, branch = ?, active = ?, updated_at = ? WHERE id = ?`,
		a.BankName, a.IFSC, a.Branch, a.Active, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update bank account %s", a.ID)
	}
	return checkRowsAffected(res, "bank_account", a.ID)
}

func (t *sqliteIngestTx) DeleteBankAccount(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM bank_accounts WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: delete bank account %s", id)
}

func (t *sqliteIngestTx) DeactivateBankAccount(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE bank_accounts SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: deactivate bank account %s", id)
}

// --- documents ---

func (t *sqliteIngestTx) ListDocuments(ctx context.Context, registrationID string) ([]model.Document, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, registration_id, kind, title, url, active, created_at, updated_at
		 FROM documents WHERE registration_id = ? ORDER BY kind`,
		registrationID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.RegistrationID, &d.Kind, &d.Title, &d.URL,
			&d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

func (t *sqliteIngestTx) InsertDocument(ctx context.Context, d *model.Document) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO documents (id, registration_id, kind, title, url, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.RegistrationID, d.Kind, d.Title, d.URL, d.Active, d.CreatedAt, d.UpdatedAt,
	)
	if sqliteIsUnique(err) {
		return eris.Wrapf(ErrDuplicate, "sqlite: insert document %q", d.Kind)
	}
	return eris.Wrapf(err, "sqlite: insert document %q", d.Kind)
}

func (t *sqliteIngestTx) UpdateDocument(ctx context.Context, d *model.Document) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE documents SET title = ?, url = ?, active = ?, updated_at = ? WHERE id = ?`,
		d.Title, d.URL, d.Active, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document %s", d.ID)
	}
	return checkRowsAffected(res, "document", d.ID)
}

func (t *sqliteIngestTx) DeleteDocument(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: delete document %s", id)
}

func (t *sqliteIngestTx) DeactivateDocument(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE documents SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: deactivate document %s", id)
}

// --- periodic updates ---

func (t *sqliteIngestTx) ListPeriodicUpdates(ctx context.Context, registrationID string) ([]model.PeriodicUpdate, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, registration_id, period, reported_on, description, percent_done, active, created_at, updated_at
		 FROM periodic_updates WHERE registration_id = ? ORDER BY period`,
		registrationID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list periodic updates")
	}
	defer rows.Close()

	var out []model.PeriodicUpdate
	for rows.Next() {
		var u model.PeriodicUpdate
		if err := rows.Scan(&u.ID, &u.RegistrationID, &u.Period, &u.ReportedOn, &u.Description,
			&u.PercentDone, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan periodic update")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list periodic updates iterate")
}

func (t *sqliteIngestTx) InsertPeriodicUpdate(ctx context.Context, u *model.PeriodicUpdate) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO periodic_updates (id, registration_id, period, reported_on, description, percent_done, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.RegistrationID, u.Period, u.ReportedOn, u.Description, u.PercentDone, u.Active, u.CreatedAt, u.UpdatedAt,
	)
	if sqliteIsUnique(err) {
		return eris.Wrapf(ErrDuplicate, "sqlite: insert periodic update %q", u.Period)
	}
	return eris.Wrapf(err, "sqlite: insert periodic update %q", u.Period)
}

func (t *sqliteIngestTx) UpdatePeriodicUpdate(ctx context.Context, u *model.PeriodicUpdate) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE periodic_updates SET reported_on = ?, description = ?, percent_done = ?, active = ?, updated_at = ? WHERE id = ?`,
		u.ReportedOn, u.Description, u.PercentDone, u.Active, u.UpdatedAt, u.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update periodic update %s", u.ID)
	}
	return checkRowsAffected(res, "periodic_update", u.ID)
}

func (t *sqliteIngestTx) DeletePeriodicUpdate(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM periodic_updates WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: delete periodic update %s", id)
}

func (t *sqliteIngestTx) DeactivatePeriodicUpdate(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE periodic_updates SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: deactivate periodic update %s", id)
}

func (t *sqliteIngestTx) InsertProvenance(ctx context.Context, p *model.ProvenanceRecord) error {
	diffJSON, err := marshalDiff(p.Diff)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO provenance_records
		 (id, run_id, registration_id, state_code, registration_no, decision,
		  content_hash, diff, error, source_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.RunID, nullIfEmpty(p.RegistrationID), p.StateCode, p.RegistrationNo,
		string(p.Decision), p.ContentHash, diffJSON, p.Error, p.SourceURL, p.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert provenance")
}

// --- out-of-band failure log ---

func (s *SQLiteStore) RecordFailure(ctx context.Context, p *model.ProvenanceRecord) error {
	diffJSON, err := marshalDiff(p.Diff)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO provenance_records
		 (id, run_id, registration_id, state_code, registration_no, decision,
		  content_hash, diff, error, source_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.RunID, nullIfEmpty(p.RegistrationID), p.StateCode, p.RegistrationNo,
		string(p.Decision), p.ContentHash, diffJSON, p.Error, p.SourceURL, p.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: record failure")
}

// --- run audit ---

func (s *SQLiteStore) StartRun(ctx context.Context, mode model.RunMode, source string) (*model.IngestRun, error) {
	run := &model.IngestRun{
		ID:        uuid.New().String(),
		Mode:      mode,
		Status:    model.RunStatusRunning,
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, mode, status, source, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Mode), string(run.Status), run.Source, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: start run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, counts model.RunCounts) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs
		 SET status = ?, processed = ?, created_count = ?, updated_count = ?,
		     unchanged_count = ?, failed_count = ?, skipped_count = ?, completed_at = ?
		 WHERE id = ?`,
		string(model.RunStatusComplete), counts.Processed, counts.Created, counts.Updated,
		counts.Unchanged, counts.Failed, counts.Skipped, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "ingest_run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, counts model.RunCounts, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs
		 SET status = ?, processed = ?, created_count = ?, updated_count = ?,
		     unchanged_count = ?, failed_count = ?, skipped_count = ?, error = ?, completed_at = ?
		 WHERE id = ?`,
		string(model.RunStatusFailed), counts.Processed, counts.Created, counts.Updated,
		counts.Unchanged, counts.Failed, counts.Skipped, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "ingest_run", runID)
}

const runCols = `id, mode, status, source, processed, created_count, updated_count,
	unchanged_count, failed_count, skipped_count, error, started_at, completed_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.IngestRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runCols+` FROM ingest_runs WHERE id = ?`, runID,
	)
	return scanIngestRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.IngestRun, error) {
	query := `SELECT ` + runCols + ` FROM ingest_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Mode != "" {
		query += ` AND mode = ?`
		args = append(args, string(filter.Mode))
	}
	if !filter.StartedAfter.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, filter.StartedAfter)
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.IngestRun
	for rows.Next() {
		r, err := scanIngestRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) LastRun(ctx context.Context, mode model.RunMode) (*model.IngestRun, error) {
	query := `SELECT ` + runCols + ` FROM ingest_runs`
	var args []any
	if mode != "" {
		query += ` WHERE mode = ?`
		args = append(args, string(mode))
	}
	query += ` ORDER BY started_at DESC LIMIT 1`

	return scanIngestRun(s.db.QueryRowContext(ctx, query, args...))
}

// --- read paths ---

func (s *SQLiteStore) ListParentProjects(ctx context.Context, filter ProjectFilter) ([]model.ParentProject, error) {
	query := `SELECT id, normalized_name, normalized_address, normalized_promoter,
	          display_name, display_address, display_promoter, created_at, updated_at
	          FROM parent_projects WHERE 1=1`
	var args []any

	if filter.NameContains != "" {
		query += ` AND normalized_name LIKE ?`
		args = append(args, "%"+filter.NameContains+"%")
	}
	query += ` ORDER BY normalized_name`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list parent projects")
	}
	defer rows.Close()

	var out []model.ParentProject
	for rows.Next() {
		p, err := scanParent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list parent projects iterate")
}

func (s *SQLiteStore) GetParentProject(ctx context.Context, id string) (*model.ParentProject, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, normalized_name, normalized_address, normalized_promoter,
		        display_name, display_address, display_promoter, created_at, updated_at
		 FROM parent_projects WHERE id = ?`,
		id,
	)
	return scanParent(row)
}

func (s *SQLiteStore) ListRegistrations(ctx context.Context, parentProjectID string) ([]model.Registration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+registrationCols+` FROM registrations
		 WHERE parent_project_id = ? ORDER BY state_code, registration_no`,
		parentProjectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list registrations")
	}
	defer rows.Close()

	var out []model.Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list registrations iterate")
}

func (s *SQLiteStore) GetRegistrationByKey(ctx context.Context, stateCode, registrationNo string) (*model.RegistrationDetail, error) {
	reg, err := scanRegistration(s.db.QueryRowContext(ctx,
		`SELECT `+registrationCols+` FROM registrations
		 WHERE state_code = ? AND registration_no = ?`,
		stateCode, registrationNo,
	))
	if err != nil {
		return nil, err
	}

	// Child reads reuse the tx helpers against a throwaway read transaction
	// so the detail view is a consistent snapshot.
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin detail read")
	}
	defer tx.Rollback() //nolint:errcheck

	it := &sqliteIngestTx{tx: tx}
	detail := &model.RegistrationDetail{Registration: *reg}
	if detail.Buildings, err = it.ListBuildings(ctx, reg.ID); err != nil {
		return nil, err
	}
	if detail.UnitTypes, err = it.ListUnitTypes(ctx, reg.ID); err != nil {
		return nil, err
	}
	if detail.BankAccounts, err = it.ListBankAccounts(ctx, reg.ID); err != nil {
		return nil, err
	}
	if detail.Documents, err = it.ListDocuments(ctx, reg.ID); err != nil {
		return nil, err
	}
	if detail.PeriodicUpdates, err = it.ListPeriodicUpdates(ctx, reg.ID); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *SQLiteStore) ListProvenance(ctx context.Context, filter ProvenanceFilter) ([]model.ProvenanceRecord, error) {
	query := `SELECT id, run_id, registration_id, state_code, registration_no, decision,
	          content_hash, diff, error, source_url, created_at
	          FROM provenance_records WHERE 1=1`
	var args []any

	if filter.StateCode != "" {
		query += ` AND state_code = ?`
		args = append(args, filter.StateCode)
	}
	if filter.RegistrationNo != "" {
		query += ` AND registration_no = ?`
		args = append(args, filter.RegistrationNo)
	}
	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Decision != "" {
		query += ` AND decision = ?`
		args = append(args, string(filter.Decision))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list provenance")
	}
	defer rows.Close()

	var out []model.ProvenanceRecord
	for rows.Next() {
		p, err := scanProvenance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list provenance iterate")
}

func (s *SQLiteStore) DecisionCounts(ctx context.Context, since time.Time) (map[model.Decision]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT decision, COUNT(*) FROM provenance_records WHERE created_at >= ? GROUP BY decision`,
		since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: decision counts")
	}
	defer rows.Close()

	counts := make(map[model.Decision]int64)
	for rows.Next() {
		var decision string
		var n int64
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision count")
		}
		counts[model.Decision(decision)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: decision counts iterate")
}

func (s *SQLiteStore) Counts(ctx context.Context) (*EntityCounts, error) {
	var c EntityCounts
	for _, q := range []struct {
		table string
		dst   *int64
	}{
		{"parent_projects", &c.ParentProjects},
		{"registrations", &c.Registrations},
		{"buildings", &c.Buildings},
		{"unit_types", &c.UnitTypes},
		{"bank_accounts", &c.BankAccounts},
		{"documents", &c.Documents},
		{"periodic_updates", &c.PeriodicUpdates},
		{"provenance_records", &c.Provenance},
		{"candidate_registrations", &c.Candidates},
		{"ingest_runs", &c.Runs},
	} {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+q.table).Scan(q.dst); err != nil {
			return nil, eris.Wrapf(err, "sqlite: count %s", q.table)
		}
	}
	return &c, nil
}

// --- candidate index ---

func (s *SQLiteStore) UpsertCandidates(ctx context.Context, rows []model.CandidateRegistration) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin candidates tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO candidate_registrations (state_code, registration_no, project_name, district, listed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(state_code, registration_no) DO UPDATE SET
		   project_name = excluded.project_name,
		   district = excluded.district,
		   listed_at = excluded.listed_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare candidates upsert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.StateCode, r.RegistrationNo, r.ProjectName, r.District, r.ListedAt); err != nil {
			return n, eris.Wrapf(err, "sqlite: upsert candidate %s:%s", r.StateCode, r.RegistrationNo)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit candidates tx")
	}
	return n, nil
}

func (s *SQLiteStore) ListCandidates(ctx context.Context, stateCode string, limit int) ([]model.CandidateRegistration, error) {
	query := `SELECT state_code, registration_no, project_name, district, listed_at
	          FROM candidate_registrations`
	var args []any
	if stateCode != "" {
		query += ` WHERE state_code = ?`
		args = append(args, stateCode)
	}
	query += ` ORDER BY state_code, registration_no`
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close()

	var out []model.CandidateRegistration
	for rows.Next() {
		var c model.CandidateRegistration
		if err := rows.Scan(&c.StateCode, &c.RegistrationNo, &c.ProjectName, &c.District, &c.ListedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list candidates iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
