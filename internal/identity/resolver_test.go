package identity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propdata/rera-ingest/internal/model"
	"github.com/propdata/rera-ingest/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestResolveOrCreateParent_CreatesOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	r := NewResolver()

	tx, err := st.BeginIngest(ctx)
	require.NoError(t, err)

	parent, created, err := r.ResolveOrCreateParent(ctx, tx, "Green Acres", "12 MG Road, Pune", "Acme Developers Ltd.")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, parent.ID)
	assert.Equal(t, "GREEN ACRES", parent.NormalizedName)
	assert.Equal(t, "Green Acres", parent.DisplayName)
	require.NoError(t, tx.Commit(ctx))

	// Second resolve with formatting noise maps onto the same row.
	tx2, err := st.BeginIngest(ctx)
	require.NoError(t, err)
	again, created2, err := r.ResolveOrCreateParent(ctx, tx2, "  GREEN ACRES ", "12, M.G. Road, Pune", "ACME DEVELOPERS LTD")
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, parent.ID, again.ID)
	require.NoError(t, tx2.Commit(ctx))
}

func TestResolveOrCreateParent_RefreshesDisplay(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	r := NewResolver()

	tx, err := st.BeginIngest(ctx)
	require.NoError(t, err)
	first, _, err := r.ResolveOrCreateParent(ctx, tx, "green acres", "12 mg road pune", "acme developers")
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	// Same identity, different casing in the raw text: display follows the
	// latest scrape, normalized fields stay put.
	tx2, err := st.BeginIngest(ctx)
	require.NoError(t, err)
	second, created, err := r.ResolveOrCreateParent(ctx, tx2, "Green Acres", "12 MG Road Pune", "Acme Developers")
	require.NoError(t, err)
	require.NoError(t, tx2.Commit(ctx))

	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Green Acres", second.DisplayName)

	stored, err := st.GetParentProject(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Green Acres", stored.DisplayName)
	assert.Equal(t, "GREEN ACRES", stored.NormalizedName)
}

func TestResolveOrCreateParent_EmptyComponentsParticipate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	r := NewResolver()

	tx, err := st.BeginIngest(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	parent, created, err := r.ResolveOrCreateParent(ctx, tx, "Solo Project", "", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, parent.NormalizedAddress)
	assert.Empty(t, parent.NormalizedPromoter)

	again, created2, err := r.ResolveOrCreateParent(ctx, tx, "Solo Project", "", "")
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, parent.ID, again.ID)
}

// raceTx simulates a concurrent writer winning the insert race: the first
// find misses, the insert hits the unique index, the re-read returns the
// winner's row.
type raceTx struct {
	store.IngestTx
	winner    *model.ParentProject
	findCalls int
}

func (f *raceTx) FindParentByTriple(_ context.Context, _ model.IdentityTriple) (*model.ParentProject, error) {
	f.findCalls++
	if f.findCalls == 1 {
		return nil, store.ErrNotFound
	}
	return f.winner, nil
}

func (f *raceTx) InsertParent(_ context.Context, _ *model.ParentProject) error {
	return eris.Wrap(store.ErrDuplicate, "sqlite: insert parent")
}

func TestResolveOrCreateParent_LostRaceAdoptsWinner(t *testing.T) {
	ctx := context.Background()
	winner := &model.ParentProject{
		ID:              "winner-id",
		NormalizedName:  "GREEN ACRES",
		DisplayName:     "Green Acres",
		DisplayAddress:  "12 MG Road",
		DisplayPromoter: "Acme",
	}
	tx := &raceTx{winner: winner}

	parent, created, err := NewResolver().ResolveOrCreateParent(ctx, tx, "Green Acres", "12 MG Road", "Acme")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "winner-id", parent.ID)
	assert.Equal(t, 2, tx.findCalls)
}

// exhaustedTx never finds and never successfully inserts, forcing the
// resolver to give up after its attempt bound.
type exhaustedTx struct {
	store.IngestTx
	attempts int
}

func (f *exhaustedTx) FindParentByTriple(_ context.Context, _ model.IdentityTriple) (*model.ParentProject, error) {
	return nil, store.ErrNotFound
}

func (f *exhaustedTx) InsertParent(_ context.Context, _ *model.ParentProject) error {
	f.attempts++
	return store.ErrDuplicate
}

func TestResolveOrCreateParent_BoundedAttempts(t *testing.T) {
	ctx := context.Background()
	tx := &exhaustedTx{}

	_, _, err := NewResolver().ResolveOrCreateParent(ctx, tx, "Phantom", "Nowhere", "Nobody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unresolved after 3 attempts")
	assert.Equal(t, 3, tx.attempts)
}

func TestResolveOrCreateParent_PropagatesStoreErrors(t *testing.T) {
	ctx := context.Background()
	tx := &errorTx{err: eris.New("disk on fire")}

	_, _, err := NewResolver().ResolveOrCreateParent(ctx, tx, "X", "Y", "Z")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

type errorTx struct {
	store.IngestTx
	err error
}

func (f *errorTx) FindParentByTriple(_ context.Context, _ model.IdentityTriple) (*model.ParentProject, error) {
	return nil, f.err
}
