package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunModeValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode RunMode
		want bool
	}{
		{RunModeFull, true},
		{RunModeDelta, true},
		{RunMode(""), false},
		{RunMode("incremental"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.mode.Valid())
		})
	}
}

func TestRunStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status RunStatus
		want   string
	}{
		{RunStatusRunning, "running"},
		{RunStatusComplete, "complete"},
		{RunStatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestIngestRunDuration(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	running := IngestRun{ID: "r1", StartedAt: started}
	assert.Equal(t, time.Duration(0), running.Duration())

	done := started.Add(90 * time.Second)
	finished := IngestRun{ID: "r2", StartedAt: started, CompletedAt: &done}
	assert.Equal(t, 90*time.Second, finished.Duration())
}
