package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Source     SourceConfig     `yaml:"source" mapstructure:"source"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Reconcile  ReconcileConfig  `yaml:"reconcile" mapstructure:"reconcile"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures the scrape cache file.
type CacheConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	FlushEvery int    `yaml:"flush_every" mapstructure:"flush_every"`
}

// SourceConfig configures how record bundles and candidate indexes are
// fetched from portals and mirrors.
type SourceConfig struct {
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitPerHost float64 `yaml:"rate_limit_per_host" mapstructure:"rate_limit_per_host"`
	Retries          int     `yaml:"retries" mapstructure:"retries"`
}

// IngestConfig configures the ingestion engine.
type IngestConfig struct {
	Workers           int    `yaml:"workers" mapstructure:"workers"`
	RecordTimeoutSecs int    `yaml:"record_timeout_secs" mapstructure:"record_timeout_secs"`
	MaxAttempts       int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	Mode              string `yaml:"mode" mapstructure:"mode"`
}

// ReconcileConfig configures child-collection reconciliation.
type ReconcileConfig struct {
	PolicyFile string `yaml:"policy_file" mapstructure:"policy_file"`
}

// ServerConfig configures the read-only audit/status endpoint.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures metrics collection and alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "rera.db")
	v.SetDefault("store.max_conns", 8)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("cache.path", "scrape_cache.json")
	v.SetDefault("cache.flush_every", 100)
	v.SetDefault("source.user_agent", "rera-ingest/1.0")
	v.SetDefault("source.timeout_secs", 60)
	v.SetDefault("source.rate_limit_per_host", 1.0)
	v.SetDefault("source.retries", 3)
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.record_timeout_secs", 30)
	v.SetDefault("ingest.max_attempts", 3)
	v.SetDefault("ingest.mode", "delta")
	v.SetDefault("reconcile.policy_file", "")
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
