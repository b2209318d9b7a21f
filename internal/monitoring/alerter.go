package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/propdata/rera-ingest/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRecordFailureRate AlertType = "record_failure_rate"
	AlertRunFailure        AlertType = "run_failure"
	AlertStaleDelta        AlertType = "stale_delta"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// staleDeltaHours is how long the delta schedule may go quiet before the
// portal is considered unwatched.
const staleDeltaHours = 48

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Record failure rate. A handful of records is not a signal.
	if snap.RecordsProcessed >= 5 && snap.RecordFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRecordFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Record failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d processed in last %dh)",
				snap.RecordFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RecordsFailed, snap.RecordsProcessed, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RecordFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RecordsFailed,
				"processed":    snap.RecordsProcessed,
			},
			Timestamp: now,
		})
	}

	// Hard run failures.
	if snap.RunsFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailure,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d ingest run(s) failed in last %dh",
				snap.RunsFailed, snap.LookbackHours,
			),
			Details: map[string]any{
				"failed_runs": snap.RunsFailed,
				"total_runs":  snap.RunsTotal,
			},
			Timestamp: now,
		})
	}

	// Delta schedule gone quiet.
	if snap.HoursSinceLastDelta > staleDeltaHours {
		alerts = append(alerts, Alert{
			Type:     AlertStaleDelta,
			Severity: "medium",
			Message: fmt.Sprintf(
				"No completed delta run in %.0fh (expected at least every %dh)",
				snap.HoursSinceLastDelta, staleDeltaHours,
			),
			Details: map[string]any{
				"hours_since_last_delta": snap.HoursSinceLastDelta,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
