package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propdata/rera-ingest/internal/model"
	"github.com/propdata/rera-ingest/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "monitoring.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCollector_EmptyStore(t *testing.T) {
	st := newTestStore(t)
	c := NewCollector(st)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.RecordsProcessed)
	assert.Zero(t, snap.RecordFailRate)
	assert.Equal(t, float64(-1), snap.HoursSinceLastDelta)
	assert.Equal(t, 24, snap.LookbackHours)
	require.NotNil(t, snap.Entities)
	assert.Zero(t, snap.Entities.Registrations)
}

func TestCollector_AggregatesRunCounts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	run1, err := st.StartRun(ctx, model.RunModeFull, "bundle-a")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run1.ID, model.RunCounts{
		Processed: 10, Created: 6, Updated: 2, Unchanged: 1, Failed: 1,
	}))

	run2, err := st.StartRun(ctx, model.RunModeDelta, "bundle-b")
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run2.ID, model.RunCounts{
		Processed: 4, Failed: 4,
	}, "store went away"))

	snap, err := NewCollector(st).Collect(ctx, 24)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, int64(14), snap.RecordsProcessed)
	assert.Equal(t, int64(6), snap.RecordsCreated)
	assert.Equal(t, int64(5), snap.RecordsFailed)
	assert.InDelta(t, 5.0/14.0, snap.RecordFailRate, 1e-9)
}

func TestCollector_DecisionCounts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	run, err := st.StartRun(ctx, model.RunModeFull, "bundle")
	require.NoError(t, err)
	for range 3 {
		require.NoError(t, st.RecordFailure(ctx, &model.ProvenanceRecord{
			ID:             uuid.NewString(),
			RunID:          run.ID,
			StateCode:      "MH",
			RegistrationNo: "P52100009999",
			Decision:       model.DecisionFailed,
			Error:          "missing identity fields",
			CreatedAt:      time.Now().UTC(),
		}))
	}

	snap, err := NewCollector(st).Collect(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Decisions[model.DecisionFailed])
}

func TestCollector_HoursSinceLastDelta(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	run, err := st.StartRun(ctx, model.RunModeDelta, "portal")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunCounts{Processed: 1, Unchanged: 1}))

	snap, err := NewCollector(st).Collect(ctx, 24)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snap.HoursSinceLastDelta, 0.0)
	assert.Less(t, snap.HoursSinceLastDelta, 1.0)
}

func TestCollector_ExcludesRunsOutsideWindow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	run, err := st.StartRun(ctx, model.RunModeFull, "bundle")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunCounts{Processed: 5, Created: 5}))

	// A zero-hour window puts the cutoff at "now"; the run started before it.
	snap, err := NewCollector(st).Collect(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.RecordsProcessed)
}
