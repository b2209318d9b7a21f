package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propdata/rera-ingest/internal/config"
	"github.com/propdata/rera-ingest/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	st := newTestStore(t)
	collector := NewCollector(st)
	alerter := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
	})
	checker := NewChecker(collector, alerter, config.MonitoringConfig{
		CheckIntervalSecs:   1,
		LookbackWindowHours: 24,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	// Let it tick once then cancel.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Good — Run returned.
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_FirstCheckFiresAtStartup(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	run, err := st.StartRun(ctx, model.RunModeDelta, "portal")
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run.ID, model.RunCounts{Processed: 2, Failed: 2}, "portal down"))

	hit := make(chan struct{}, 8)
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	cfg := config.MonitoringConfig{
		WebhookURL:           webhook.URL,
		FailureRateThreshold: 0.10,
		CheckIntervalSecs:    3600,
		LookbackWindowHours:  24,
	}
	checker := NewChecker(NewCollector(st), NewAlerter(cfg), cfg)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go checker.Run(runCtx)

	// The interval is an hour; only the startup check can deliver this.
	select {
	case <-hit:
	case <-time.After(5 * time.Second):
		t.Fatal("no alert delivered at checker startup")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	st := newTestStore(t)
	collector := NewCollector(st)
	alerter := NewAlerter(config.MonitoringConfig{})

	// Zero interval should default to 5 minutes.
	checker := NewChecker(collector, alerter, config.MonitoringConfig{
		CheckIntervalSecs: 0,
	})
	assert.NotNil(t, checker)

	// Start and immediately cancel to verify it doesn't panic.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}
