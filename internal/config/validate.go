package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the configuration needed for a given command mode and
// reports every problem at once. Modes: "ingest", "candidates", "serve",
// "query" (read-only commands).
func (c *Config) Validate(mode string) error {
	var problems []string

	// Store settings are needed by every mode.
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "ingest":
		if c.Cache.Path == "" {
			problems = append(problems, "cache.path is required")
		}
		if c.Cache.FlushEvery < 0 {
			problems = append(problems, "cache.flush_every must be >= 0")
		}
		if c.Ingest.Workers < 1 || c.Ingest.Workers > 32 {
			problems = append(problems, "ingest.workers must be between 1 and 32")
		}
		if c.Ingest.RecordTimeoutSecs <= 0 {
			problems = append(problems, "ingest.record_timeout_secs must be > 0")
		}
		if c.Ingest.MaxAttempts < 1 || c.Ingest.MaxAttempts > 10 {
			problems = append(problems, "ingest.max_attempts must be between 1 and 10")
		}
	case "candidates":
		// Store checks above are sufficient.
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
			problems = append(problems, "monitoring.failure_rate_threshold must be between 0 and 1")
		}
	case "query":
		// Store checks above are sufficient.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}
