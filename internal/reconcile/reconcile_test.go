package reconcile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propdata/rera-ingest/internal/model"
)

func buildingKey(b model.Building) string { return b.Name }

func buildingSame(a, b model.Building) bool {
	return a.Floors == b.Floors && a.Units == b.Units && a.Status == b.Status
}

func TestDiff_MergeScenario(t *testing.T) {
	// Stored: B1 (5 floors), B2. Scraped: B1 (6 floors), B3.
	existing := []model.Building{
		{ID: "id-b1", Name: "B1", Floors: 5, Units: 40},
		{ID: "id-b2", Name: "B2", Floors: 3, Units: 24},
	}
	incoming := []model.Building{
		{Name: "B1", Floors: 6, Units: 40},
		{Name: "B3", Floors: 4, Units: 32},
	}

	ch := Diff("buildings", existing, incoming, buildingKey, buildingSame)

	require.Len(t, ch.Update, 1)
	assert.Equal(t, "id-b1", ch.Update[0].Existing.ID)
	assert.Equal(t, 6, ch.Update[0].Incoming.Floors)

	require.Len(t, ch.Remove, 1)
	assert.Equal(t, "id-b2", ch.Remove[0].ID)

	require.Len(t, ch.Insert, 1)
	assert.Equal(t, "B3", ch.Insert[0].Name)

	assert.Equal(t, 0, ch.Unchanged)
}

func TestDiff_AllUnchanged(t *testing.T) {
	existing := []model.Building{
		{ID: "id-b1", Name: "B1", Floors: 5, Units: 40},
	}
	incoming := []model.Building{
		{Name: "B1", Floors: 5, Units: 40},
	}

	ch := Diff("buildings", existing, incoming, buildingKey, buildingSame)

	assert.Empty(t, ch.Insert)
	assert.Empty(t, ch.Update)
	assert.Empty(t, ch.Remove)
	assert.Equal(t, 1, ch.Unchanged)
}

func TestDiff_EmptyExisting(t *testing.T) {
	incoming := []model.Building{
		{Name: "B1", Floors: 5},
		{Name: "B2", Floors: 3},
	}

	ch := Diff("buildings", nil, incoming, buildingKey, buildingSame)

	assert.Len(t, ch.Insert, 2)
	assert.Empty(t, ch.Remove)
}

func TestDiff_EmptyIncomingRemovesAll(t *testing.T) {
	existing := []model.Building{
		{ID: "id-b1", Name: "B1"},
		{ID: "id-b2", Name: "B2"},
	}

	ch := Diff("buildings", existing, nil, buildingKey, buildingSame)

	require.Len(t, ch.Remove, 2)
	assert.Equal(t, "id-b1", ch.Remove[0].ID)
	assert.Equal(t, "id-b2", ch.Remove[1].ID)
}

func TestDiff_DuplicateIncomingFirstWins(t *testing.T) {
	incoming := []model.Building{
		{Name: "B1", Floors: 5},
		{Name: "B1", Floors: 9},
	}

	ch := Diff("buildings", nil, incoming, buildingKey, buildingSame)

	require.Len(t, ch.Insert, 1)
	assert.Equal(t, 5, ch.Insert[0].Floors)
	assert.Equal(t, 1, ch.DuplicateKeys)
}

func TestDiff_SkipsEmptySubKeys(t *testing.T) {
	incoming := []model.Building{
		{Name: "", Floors: 5},
		{Name: "B1", Floors: 3},
	}

	ch := Diff("buildings", nil, incoming, buildingKey, buildingSame)

	assert.Len(t, ch.Insert, 1)
	assert.Equal(t, 1, ch.SkippedEmptyKey)
}

func TestSummary_DeleteAction(t *testing.T) {
	ch := Changes[model.Building]{
		Insert:    []model.Building{{Name: "B3"}},
		Update:    []Pair[model.Building]{{}},
		Remove:    []model.Building{{Name: "B2"}},
		Unchanged: 2,
	}

	d := ch.Summary(ActionDelete)
	assert.Equal(t, model.CollectionDiff{Inserted: 1, Updated: 1, Removed: 1, Unchanged: 2}, d)
}

func TestSummary_FlagAction(t *testing.T) {
	ch := Changes[model.Building]{
		Remove: []model.Building{{Name: "B2"}},
	}

	d := ch.Summary(ActionFlag)
	assert.Equal(t, 1, d.Flagged)
	assert.Equal(t, 0, d.Removed)
}

func TestDefaultPolicies(t *testing.T) {
	p := DefaultPolicies()
	assert.Equal(t, ActionDelete, p.Buildings)
	assert.Equal(t, ActionDelete, p.UnitTypes)
	assert.Equal(t, ActionFlag, p.BankAccounts)
	assert.Equal(t, ActionFlag, p.Documents)
	assert.Equal(t, ActionFlag, p.PeriodicUpdates)
}

func TestLoadPolicies_EmptyPathReturnsDefaults(t *testing.T) {
	p, err := LoadPolicies("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicies(), p)
}

func TestLoadPolicies_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	content := "removal_policies:\n  buildings: flag\n  documents: delete\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := LoadPolicies(path)
	require.NoError(t, err)
	assert.Equal(t, ActionFlag, p.Buildings)
	assert.Equal(t, ActionDelete, p.Documents)
	// Untouched collections keep defaults.
	assert.Equal(t, ActionFlag, p.BankAccounts)
}

func TestLoadPolicies_RejectsUnknownCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("removal_policies:\n  towers: delete\n"), 0o644))

	_, err := LoadPolicies(path)
	assert.Error(t, err)
}

func TestLoadPolicies_RejectsUnknownAction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("removal_policies:\n  buildings: obliterate\n"), 0o644))

	_, err := LoadPolicies(path)
	assert.Error(t, err)
}

func TestPoliciesFor_UnknownCollectionDefaultsToFlag(t *testing.T) {
	assert.Equal(t, ActionFlag, DefaultPolicies().For("mystery"))
}
