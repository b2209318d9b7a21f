package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propdata/rera-ingest/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
	})

	snap := &MetricsSnapshot{
		RunsTotal:           4,
		RunsComplete:        4,
		RecordsProcessed:    100,
		RecordsFailed:       5,
		RecordFailRate:      0.05,
		HoursSinceLastDelta: 6,
		LookbackHours:       24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_RecordFailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
	})

	snap := &MetricsSnapshot{
		RunsTotal:           1,
		RunsComplete:        1,
		RecordsProcessed:    20,
		RecordsFailed:       8,
		RecordFailRate:      0.4, // 8/20 = 40%
		HoursSinceLastDelta: 2,
		LookbackHours:       24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRecordFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_TooFewRecordsForRateAlert(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	// 2 of 3 failed, but the sample is too small to alert on.
	snap := &MetricsSnapshot{
		RecordsProcessed:    3,
		RecordsFailed:       2,
		RecordFailRate:      2.0 / 3.0,
		HoursSinceLastDelta: 1,
		LookbackHours:       24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_RunFailure(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.50})

	snap := &MetricsSnapshot{
		RunsTotal:           3,
		RunsComplete:        1,
		RunsFailed:          2,
		HoursSinceLastDelta: 1,
		LookbackHours:       24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailure, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "2 ingest run(s) failed")
}

func TestAlerter_Evaluate_StaleDelta(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.50})

	snap := &MetricsSnapshot{
		HoursSinceLastDelta: 72,
		LookbackHours:       24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStaleDelta, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
}

func TestAlerter_Evaluate_NeverRanDeltaIsNotStale(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.50})

	// -1 means no delta run has ever completed; a fresh install should
	// not page anyone.
	snap := &MetricsSnapshot{
		HoursSinceLastDelta: -1,
		LookbackHours:       24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRunFailure, Severity: "high", Message: "1 ingest run(s) failed"},
		{Type: AlertStaleDelta, Severity: "medium", Message: "delta quiet"},
	})

	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRunFailure, Severity: "high", Message: "boom"},
	})
	assert.Zero(t, sent)
}

func TestAlerter_SendAlerts_NoWebhookConfigured(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRunFailure, Severity: "high", Message: "boom"},
	})
	assert.Zero(t, sent)
}
