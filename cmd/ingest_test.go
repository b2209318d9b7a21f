package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/propdata/rera-ingest/internal/model"
)

func TestFilterByState(t *testing.T) {
	records := func() []model.SourceRecord {
		return []model.SourceRecord{
			{StateCode: "MH", RegistrationNo: "P521"},
			{StateCode: "cg", RegistrationNo: "PCG1"},
			{StateCode: "KA", RegistrationNo: "PRM1"},
		}
	}

	// Filter input and argument both normalize before comparison.
	got := filterByState(records(), "Cg")
	assert.Len(t, got, 1)
	assert.Equal(t, "PCG1", got[0].RegistrationNo)

	assert.Empty(t, filterByState(records(), "TN"))
}

func TestSummarizeDiff(t *testing.T) {
	diff := &model.ChangeSummary{
		Fields: []string{"status", "expires_on"},
		Collections: map[string]model.CollectionDiff{
			"buildings":     {Inserted: 1, Updated: 1},
			"bank_accounts": {Flagged: 1},
			"documents":     {}, // empty diffs are omitted
		},
	}

	s := summarizeDiff(diff)
	assert.Contains(t, s, "fields: status,expires_on")
	assert.Contains(t, s, "buildings: +1 ~1 -0 !0")
	assert.Contains(t, s, "bank_accounts: +0 ~0 -0 !1")
	assert.NotContains(t, s, "documents")
}

func TestSummarizeDiffDeterministicOrder(t *testing.T) {
	diff := &model.ChangeSummary{
		Collections: map[string]model.CollectionDiff{
			"unit_types": {Updated: 2},
			"buildings":  {Inserted: 1},
		},
	}
	first := summarizeDiff(diff)
	for range 10 {
		assert.Equal(t, first, summarizeDiff(diff))
	}
}
