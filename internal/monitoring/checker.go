package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/propdata/rera-ingest/internal/config"
)

// Checker evaluates ingest health on a schedule and pushes alerts through
// the Alerter. It runs alongside the serve command so a broken overnight
// delta surfaces without anyone watching dashboards.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run blocks until ctx is cancelled. The first check fires immediately so
// a bad overnight run surfaces at startup, not one interval later.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	c.check(ctx, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: ingest healthy")
		return
	}

	types := make([]string, 0, len(alerts))
	for _, a := range alerts {
		types = append(types, string(a.Type))
	}
	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Warn("monitoring: alerts triggered",
		zap.Strings("types", types),
		zap.Int("sent", sent),
	)
}
