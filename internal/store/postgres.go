package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/propdata/rera-ingest/internal/db"
	"github.com/propdata/rera-ingest/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// Hot-path statements shared between the per-connection warm-up and the
// ingest transaction, so the prepared text always matches the executed text.
const (
	sqlFindParentByTriple = `SELECT id, normalized_name, normalized_address, normalized_promoter, display_name, display_address, display_promoter, created_at, updated_at FROM parent_projects WHERE normalized_name = $1 AND normalized_address = $2 AND normalized_promoter = $3`

	sqlGetRegistration = `SELECT ` + registrationCols + ` FROM registrations WHERE state_code = $1 AND registration_no = $2`

	sqlTouchRegistration = `UPDATE registrations SET last_checked_at = $1 WHERE id = $2`

	sqlInsertProvenance = `INSERT INTO provenance_records (id, run_id, registration_id, state_code, registration_no, decision, content_hash, diff, error, source_url, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used ingest operations.
var preparedStatements = map[string]string{
	"find_parent_by_triple": sqlFindParentByTriple,
	"get_registration":      sqlGetRegistration,
	"touch_registration":    sqlTouchRegistration,
	"insert_provenance":     sqlInsertProvenance,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, stmt := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, stmt); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool exposes the underlying pool for subsystems that need direct query
// access (bulk candidate loads).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// pgIsUnique reports whether err is a unique-constraint violation (23505).
func pgIsUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- ingest transaction ---

func (s *PostgresStore) BeginIngest(ctx context.Context) (IngestTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin ingest tx")
	}
	return &pgIngestTx{tx: tx}, nil
}

type pgIngestTx struct {
	tx pgx.Tx
}

func (t *pgIngestTx) Commit(ctx context.Context) error {
	return eris.Wrap(t.tx.Commit(ctx), "postgres: commit ingest tx")
}

func (t *pgIngestTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return eris.Wrap(err, "postgres: rollback ingest tx")
}

func (t *pgIngestTx) FindParentByTriple(ctx context.Context, triple model.IdentityTriple) (*model.ParentProject, error) {
	row := t.tx.QueryRow(ctx, sqlFindParentByTriple, triple.Name, triple.Address, triple.Promoter)
	return scanParent(row)
}

// InsertParent runs under a savepoint: a unique violation would otherwise
// abort the enclosing Postgres transaction, and the identity resolver needs
// to re-read the winner's row in the same transaction after losing a race.
func (t *pgIngestTx) InsertParent(ctx context.Context, p *model.ParentProject) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin parent savepoint")
	}

	_, err = sp.Exec(ctx,
		`INSERT INTO parent_projects
		 (id, normalized_name, normalized_address, normalized_promoter,
		  display_name, display_address, display_promoter, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.NormalizedName, p.NormalizedAddress, p.NormalizedPromoter,
		p.DisplayName, p.DisplayAddress, p.DisplayPromoter, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		_ = sp.Rollback(ctx)
		if pgIsUnique(err) {
			return eris.Wrap(ErrDuplicate, "postgres: insert parent")
		}
		return eris.Wrap(err, "postgres: insert parent")
	}
	return eris.Wrap(sp.Commit(ctx), "postgres: commit parent savepoint")
}

func (t *pgIngestTx) RefreshParentDisplay(ctx context.Context, id, displayName, displayAddress, displayPromoter string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE parent_projects
		 SET display_name = $1, display_address = $2, display_promoter = $3, updated_at = $4
		 WHERE id = $5`,
		displayName, displayAddress, displayPromoter, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: refresh parent display %s", id)
	}
	return checkTag(tag, "parent_project", id)
}

func (t *pgIngestTx) GetRegistration(ctx context.Context, stateCode, registrationNo string) (*model.Registration, error) {
	row := t.tx.QueryRow(ctx, sqlGetRegistration, stateCode, registrationNo)
	return scanRegistration(row)
}

func (t *pgIngestTx) InsertRegistration(ctx context.Context, r *model.Registration) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO registrations
		 (id, parent_project_id, state_code, registration_no, project_name, address,
		  promoter_name, district, project_type, status, approved_on, expires_on,
		  source_url, content_hash, scraped_at, last_checked_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		r.ID, r.ParentProjectID, r.StateCode, r.RegistrationNo, r.ProjectName, r.Address,
		r.PromoterName, r.District, r.ProjectType, r.Status, r.ApprovedOn, r.ExpiresOn,
		r.SourceURL, r.ContentHash, r.ScrapedAt, r.LastCheckedAt, r.CreatedAt, r.UpdatedAt,
	)
	if pgIsUnique(err) {
		return eris.Wrapf(ErrDuplicate, "postgres: insert registration %s:%s", r.StateCode, r.RegistrationNo)
	}
	return eris.Wrapf(err, "postgres: insert registration %s:%s", r.StateCode, r.RegistrationNo)
}

func (t *pgIngestTx) UpdateRegistration(ctx context.Context, r *model.Registration) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE registrations
		 SET parent_project_id = $1, project_name = $2, address = $3, promoter_name = $4,
		     district = $5, project_type = $6, status = $7, approved_on = $8, expires_on = $9,
		     source_url = $10, content_hash = $11, scraped_at = $12, last_checked_at = $13, updated_at = $14
		 WHERE id = $15`,
		r.ParentProjectID, r.ProjectName, r.Address, r.PromoterName,
		r.District, r.ProjectType, r.Status, r.ApprovedOn, r.ExpiresOn,
		r.SourceURL, r.ContentHash, r.ScrapedAt, r.LastCheckedAt, r.UpdatedAt,
		r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update registration %s", r.ID)
	}
	return checkTag(tag, "registration", r.ID)
}

func (t *pgIngestTx) TouchRegistration(ctx context.Context, id string, checkedAt time.Time) error {
	tag, err := t.tx.Exec(ctx, sqlTouchRegistration, checkedAt, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch registration %s", id)
	}
	return checkTag(tag, "registration", id)
}

// --- buildings ---

func (t *pgIngestTx) ListBuildings(ctx context.Context, registrationID string) ([]model.Building, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, registration_id, name, floors, units, status, active, created_at, updated_at
		 FROM buildings WHERE registration_id = $1 ORDER BY name`,
		registrationID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list buildings")
	}
	defer rows.Close()

	var out []model.Building
	for rows.Next() {
		var b model.Building
		if err := rows.Scan(&b.ID, &b.RegistrationID, &b.Name, &b.Floors, &b.Units,
			&b.Status, &b.Active, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan building")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list buildings iterate")
}

func (t *pgIngestTx) InsertBuilding(ctx context.Context, b *model.Building) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO buildings (id, registration_id, name, floors, units, status, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.RegistrationID, b.Name, b.Floors, b.Units, b.Status, b.Active, b.CreatedAt, b.UpdatedAt,
	)
	if pgIsUnique(err) {
		return eris.Wrapf(ErrDuplicate, "postgres: insert building %q", b.Name)
	}
	return eris.Wrapf(err, "postgres: insert building %q", b.Name)
}

func (t *pgIngestTx) UpdateBuilding(ctx context.Context, b *model.Building) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE buildings SET floors = $1, units = $2, status = $3, active = $4, updated_at = $5 WHERE id = $6`,
		b.Floors, b.Units, b.Status, b.Active, b.UpdatedAt, b.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update building %s", b.ID)
	}
	return checkTag(tag, "building", b.ID)
}

func (t *pgIngestTx) DeleteBuilding(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM buildings WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: delete building %s", id)
}

func (t *pgIngestTx) DeactivateBuilding(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE buildings SET active = false, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: deactivate building %s", id)
}

// --- unit types ---

func (t *pgIngestTx) ListUnitTypes(ctx context.Context, registrationID string) ([]model.UnitType, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, registration_id, label, carpet_area_sqm, unit_count, active, created_at, updated_at
		 FROM unit_types WHERE registration_id = $1 ORDER BY label`,
		registrationID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unit types")
	}
	defer rows.Close()

	var out []model.UnitType
	for rows.Next() {
		var u model.UnitType
		if err := rows.Scan(&u.ID, &u.RegistrationID, &u.Label, &u.CarpetAreaSqm, &u.Count,
			&u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan unit type")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list unit types iterate")
}

func (t *pgIngestTx) InsertUnitType(ctx context.Context, u *model.UnitType) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO unit_types (id, registration_id, label, carpet_area_sqm, unit_count, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.RegistrationID, u.Label, u.CarpetAreaSqm, u.Count, u.Active, u.CreatedAt, u.UpdatedAt,
	)
	if pgIsUnique(err) {
		return eris.Wrapf(ErrDuplicate, "postgres: insert unit type %q", u.Label)
	}
	return eris.Wrapf(err, "postgres: insert unit type %q", u.Label)
}

func (t *pgIngestTx) UpdateUnitType(ctx context.Context, u *model.UnitType) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE unit_types SET carpet_area_sqm = $1, unit_count = $2, active = $3, updated_at = $4 WHERE id = $5`,
		u.CarpetAreaSqm, u.Count, u.Active, u.UpdatedAt, u.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update unit type %s", u.ID)
	}
	return checkTag(tag, "unit_type", u.ID)
}

func (t *pgIngestTx) DeleteUnitType(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM unit_types WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: delete unit type %s", id)
}

func (t *pgIngestTx) DeactivateUnitType(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE unit_types SET active = false, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: deactivate unit type %s", id)
}

// --- bank accounts ---

func (t *pgIngestTx) ListBankAccounts(ctx context.Context, registrationID string) ([]model.BankAccount, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, registration_id, account_no, bank_name, ifsc, branch, active, created_at, updated_at
		 FROM bank_accounts WHERE registration_id = $1 ORDER BY account_no`,
		registrationID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list bank accounts")
	}
	defer rows.Close()

	var out []model.BankAccount
	for rows.Next() {
		var a model.BankAccount
		if err := rows.Scan(&a.ID, &a.RegistrationID, &a.AccountNo, &a.BankName, &a.IFSC,
			&a.Branch, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bank account")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list bank accounts iterate")
}

func (t *pgIngestTx) InsertBankAccount(ctx context.Context, a *model.BankAccount) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO bank_accounts (id, registration_id, account_no, bank_name, ifsc, branch, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.RegistrationID, a.AccountNo, a.BankName, a.IFSC, a.Branch, a.Active, a.CreatedAt, a.UpdatedAt,
	)
	if pgIsUnique(err) {
		return eris.Wrap(ErrDuplicate, "postgres: insert bank account")
	}
	return eris.Wrap(err, "postgres: insert bank account")
}

func (t *pgIngestTx) UpdateBankAccount(ctx context.Context, a *model.BankAccount) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE bank_accounts SET bank_name = $1, ifsc = $2, branch = $3, active = $4, updated_at = $5 WHERE id = $6`,
		a.BankName, a.IFSC, a.Branch, a.Active, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update bank account %s", a.ID)
	}
	return checkTag(tag, "bank_account", a.ID)
}

func (t *pgIngestTx) DeleteBankAccount(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM bank_accounts WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: delete bank account %s", id)
}

func (t *pgIngestTx) DeactivateBankAccount(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE bank_accounts SET active = false, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: deactivate bank account %s", id)
}

// --- documents ---

func (t *pgIngestTx) ListDocuments(ctx context.Context, registrationID string) ([]model.Document, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, registration_id, kind, title, url, active, created_at, updated_at
		 FROM documents WHERE registration_id = $1 ORDER BY kind`,
		registrationID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.RegistrationID, &d.Kind, &d.Title, &d.URL,
			&d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list documents iterate")
}

func (t *pgIngestTx) InsertDocument(ctx context.Context, d *model.Document) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO documents (id, registration_id, kind, title, url, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.RegistrationID, d.Kind, d.Title, d.URL, d.Active, d.CreatedAt, d.UpdatedAt,
	)
	if pgIsUnique(err) {
		return eris.Wrapf(ErrDuplicate, "postgres: insert document %q", d.Kind)
	}
	return eris.Wrapf(err, "postgres: insert document %q", d.Kind)
}

func (t *pgIngestTx) UpdateDocument(ctx context.Context, d *model.Document) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE documents SET title = $1, url = $2, active = $3, updated_at = $4 WHERE id = $5`,
		d.Title, d.URL, d.Active, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document %s", d.ID)
	}
	return checkTag(tag, "document", d.ID)
}

func (t *pgIngestTx) DeleteDocument(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: delete document %s", id)
}

func (t *pgIngestTx) DeactivateDocument(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE documents SET active = false, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: deactivate document %s", id)
}

// --- periodic updates ---

func (t *pgIngestTx) ListPeriodicUpdates(ctx context.Context, registrationID string) ([]model.PeriodicUpdate, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, registration_id, period, reported_on, description, percent_done, active, created_at, updated_at
		 FROM periodic_updates WHERE registration_id = $1 ORDER BY period`,
		registrationID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list periodic updates")
	}
	defer rows.Close()

	var out []model.PeriodicUpdate
	for rows.Next() {
		var u model.PeriodicUpdate
		if err := rows.Scan(&u.ID, &u.RegistrationID, &u.Period, &u.ReportedOn, &u.Description,
			&u.PercentDone, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan periodic update")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list periodic updates iterate")
}

func (t *pgIngestTx) InsertPeriodicUpdate(ctx context.Context, u *model.PeriodicUpdate) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO periodic_updates (id, registration_id, period, reported_on, description, percent_done, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.RegistrationID, u.Period, u.ReportedOn, u.Description, u.PercentDone, u.Active, u.CreatedAt, u.UpdatedAt,
	)
	if pgIsUnique(err) {
		return eris.Wrapf(ErrDuplicate, "postgres: insert periodic update %q", u.Period)
	}
	return eris.Wrapf(err, "postgres: insert periodic update %q", u.Period)
}

func (t *pgIngestTx) UpdatePeriodicUpdate(ctx context.Context, u *model.PeriodicUpdate) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE periodic_updates SET reported_on = $1, description = $2, percent_done = $3, active = $4, updated_at = $5 WHERE id = $6`,
		u.ReportedOn, u.Description, u.PercentDone, u.Active, u.UpdatedAt, u.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update periodic update %s", u.ID)
	}
	return checkTag(tag, "periodic_update", u.ID)
}

func (t *pgIngestTx) DeletePeriodicUpdate(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM periodic_updates WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: delete periodic update %s", id)
}

func (t *pgIngestTx) DeactivatePeriodicUpdate(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE periodic_updates SET active = false, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: deactivate periodic update %s", id)
}

func (t *pgIngestTx) InsertProvenance(ctx context.Context, p *model.ProvenanceRecord) error {
	diffJSON, err := marshalDiff(p.Diff)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, sqlInsertProvenance,
		p.ID, p.RunID, nullIfEmpty(p.RegistrationID), p.StateCode, p.RegistrationNo,
		string(p.Decision), p.ContentHash, diffJSON, p.Error, p.SourceURL, p.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert provenance")
}

// --- out-of-band failure log ---

func (s *PostgresStore) RecordFailure(ctx context.Context, p *model.ProvenanceRecord) error {
	diffJSON, err := marshalDiff(p.Diff)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, sqlInsertProvenance,
		p.ID, p.RunID, nullIfEmpty(p.RegistrationID), p.StateCode, p.RegistrationNo,
		string(p.Decision), p.ContentHash, diffJSON, p.Error, p.SourceURL, p.CreatedAt,
	)
	return eris.Wrap(err, "postgres: record failure")
}

// --- run audit ---

func (s *PostgresStore) StartRun(ctx context.Context, mode model.RunMode, source string) (*model.IngestRun, error) {
	run := &model.IngestRun{
		ID:        uuid.New().String(),
		Mode:      mode,
		Status:    model.RunStatusRunning,
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, mode, status, source, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, string(run.Mode), string(run.Status), run.Source, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: start run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, counts model.RunCounts) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_runs
		 SET status = $1, processed = $2, created_count = $3, updated_count = $4,
		     unchanged_count = $5, failed_count = $6, skipped_count = $7, completed_at = $8
		 WHERE id = $9`,
		string(model.RunStatusComplete), counts.Processed, counts.Created, counts.Updated,
		counts.Unchanged, counts.Failed, counts.Skipped, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	return checkTag(tag, "ingest_run", runID)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, counts model.RunCounts, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_runs
		 SET status = $1, processed = $2, created_count = $3, updated_count = $4,
		     unchanged_count = $5, failed_count = $6, skipped_count = $7, error = $8, completed_at = $9
		 WHERE id = $10`,
		string(model.RunStatusFailed), counts.Processed, counts.Created, counts.Updated,
		counts.Unchanged, counts.Failed, counts.Skipped, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	return checkTag(tag, "ingest_run", runID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.IngestRun, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runCols+` FROM ingest_runs WHERE id = $1`, runID)
	return scanIngestRun(row)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.IngestRun, error) {
	query := `SELECT ` + runCols + ` FROM ingest_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Mode != "" {
		query += fmt.Sprintf(` AND mode = $%d`, argIdx)
		args = append(args, string(filter.Mode))
		argIdx++
	}
	if !filter.StartedAfter.IsZero() {
		query += fmt.Sprintf(` AND started_at >= $%d`, argIdx)
		args = append(args, filter.StartedAfter)
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
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
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) LastRun(ctx context.Context, mode model.RunMode) (*model.IngestRun, error) {
	query := `SELECT ` + runCols + ` FROM ingest_runs`
	args := []any{}
	if mode != "" {
		query += ` WHERE mode = $1`
		args = append(args, string(mode))
	}
	query += ` ORDER BY started_at DESC LIMIT 1`

	return scanIngestRun(s.pool.QueryRow(ctx, query, args...))
}

// --- read paths ---

func (s *PostgresStore) ListParentProjects(ctx context.Context, filter ProjectFilter) ([]model.ParentProject, error) {
	query := `SELECT id, normalized_name, normalized_address, normalized_promoter,
	          display_name, display_address, display_promoter, created_at, updated_at
	          FROM parent_projects WHERE true`
	args := []any{}
	argIdx := 1

	if filter.NameContains != "" {
		query += fmt.Sprintf(` AND normalized_name ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.NameContains+"%")
		argIdx++
	}
	query += ` ORDER BY normalized_name`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list parent projects")
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
	return out, eris.Wrap(rows.Err(), "postgres: list parent projects iterate")
}

func (s *PostgresStore) GetParentProject(ctx context.Context, id string) (*model.ParentProject, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, normalized_name, normalized_address, normalized_promoter,
		        display_name, display_address, display_promoter, created_at, updated_at
		 FROM parent_projects WHERE id = $1`,
		id,
	)
	return scanParent(row)
}

func (s *PostgresStore) ListRegistrations(ctx context.Context, parentProjectID string) ([]model.Registration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+registrationCols+` FROM registrations
		 WHERE parent_project_id = $1 ORDER BY state_code, registration_no`,
		parentProjectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list registrations")
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
	return out, eris.Wrap(rows.Err(), "postgres: list registrations iterate")
}

func (s *PostgresStore) GetRegistrationByKey(ctx context.Context, stateCode, registrationNo string) (*model.RegistrationDetail, error) {
	// One transaction so the registration and its children are a consistent
	// snapshot; the child reads reuse the ingest tx list helpers.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin detail read")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	it := &pgIngestTx{tx: tx}
	reg, err := it.GetRegistration(ctx, stateCode, registrationNo)
	if err != nil {
		return nil, err
	}

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

func (s *PostgresStore) ListProvenance(ctx context.Context, filter ProvenanceFilter) ([]model.ProvenanceRecord, error) {
	query := `SELECT id, run_id, registration_id, state_code, registration_no, decision,
	          content_hash, diff, error, source_url, created_at
	          FROM provenance_records WHERE true`
	args := []any{}
	argIdx := 1

	if filter.StateCode != "" {
		query += fmt.Sprintf(` AND state_code = $%d`, argIdx)
		args = append(args, filter.StateCode)
		argIdx++
	}
	if filter.RegistrationNo != "" {
		query += fmt.Sprintf(` AND registration_no = $%d`, argIdx)
		args = append(args, filter.RegistrationNo)
		argIdx++
	}
	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, argIdx)
		args = append(args, filter.RunID)
		argIdx++
	}
	if filter.Decision != "" {
		query += fmt.Sprintf(` AND decision = $%d`, argIdx)
		args = append(args, string(filter.Decision))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list provenance")
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
	return out, eris.Wrap(rows.Err(), "postgres: list provenance iterate")
}

func (s *PostgresStore) DecisionCounts(ctx context.Context, since time.Time) (map[model.Decision]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT decision, COUNT(*) FROM provenance_records WHERE created_at >= $1 GROUP BY decision`,
		since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: decision counts")
	}
	defer rows.Close()

	counts := make(map[model.Decision]int64)
	for rows.Next() {
		var decision string
		var n int64
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision count")
		}
		counts[model.Decision(decision)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: decision counts iterate")
}

func (s *PostgresStore) Counts(ctx context.Context) (*EntityCounts, error) {
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
		if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+q.table).Scan(q.dst); err != nil {
			return nil, eris.Wrapf(err, "postgres: count %s", q.table)
		}
	}
	return &c, nil
}

// --- candidate index ---

// candidateColumns matches the candidate_registrations table for bulk loads.
var candidateColumns = []string{"state_code", "registration_no", "project_name", "district", "listed_at"}

func (s *PostgresStore) UpsertCandidates(ctx context.Context, rows []model.CandidateRegistration) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		data = append(data, []any{r.StateCode, r.RegistrationNo, r.ProjectName, r.District, r.ListedAt})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "candidate_registrations",
		Columns:      candidateColumns,
		ConflictKeys: []string{"state_code", "registration_no"},
	}, data)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert candidates")
	}
	return n, nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context, stateCode string, limit int) ([]model.CandidateRegistration, error) {
	query := `SELECT state_code, registration_no, project_name, district, listed_at
	          FROM candidate_registrations`
	args := []any{}
	argIdx := 1
	if stateCode != "" {
		query += fmt.Sprintf(` WHERE state_code = $%d`, argIdx)
		args = append(args, stateCode)
		argIdx++
	}
	query += ` ORDER BY state_code, registration_no`
	if limit <= 0 {
		limit = 1000
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var out []model.CandidateRegistration
	for rows.Next() {
		var c model.CandidateRegistration
		if err := rows.Scan(&c.StateCode, &c.RegistrationNo, &c.ProjectName, &c.District, &c.ListedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list candidates iterate")
}

func checkTag(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
