package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		decision Decision
		want     string
	}{
		{DecisionCreated, "created"},
		{DecisionUpdated, "updated"},
		{DecisionUnchanged, "unchanged"},
		{DecisionFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.decision))
		})
	}
}

func TestCollectionDiffEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, CollectionDiff{}.Empty())
	assert.False(t, CollectionDiff{Inserted: 1}.Empty())
	assert.False(t, CollectionDiff{Flagged: 2}.Empty())
	assert.False(t, CollectionDiff{Unchanged: 3}.Empty())
}

func TestChangeSummaryRoundTrip(t *testing.T) {
	t.Parallel()

	summary := ChangeSummary{
		Fields: []string{"status", "expires_on"},
		Collections: map[string]CollectionDiff{
			"buildings":     {Inserted: 1, Updated: 1},
			"bank_accounts": {Flagged: 1},
		},
	}

	data, err := json.Marshal(summary)
	require.NoError(t, err)

	var got ChangeSummary
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, summary, got)
}

func TestChangeSummaryOmitsEmptyCounts(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(CollectionDiff{Inserted: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"inserted":2}`, string(data))
}
