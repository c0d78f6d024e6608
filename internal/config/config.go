// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	DB         DBConfig         `mapstructure:"db"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Simulator  SimulatorConfig  `mapstructure:"simulator"`
	Report     ReportConfig     `mapstructure:"report"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// DBConfig controls access to the visit database. An empty DSN selects the
// in-memory store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// IngestConfig governs the ingestion pipeline.
type IngestConfig struct {
	BufferSize     int  `mapstructure:"buffer_size"`
	PersistUnknown bool `mapstructure:"persist_unknown"`
}

// ClassifierConfig points at an optional rules file evaluated ahead of the
// built-in table.
type ClassifierConfig struct {
	RulesFile string `mapstructure:"rules_file"`
}

// FeedConfig controls live-feed delivery.
type FeedConfig struct {
	WriteTimeoutMs int `mapstructure:"write_timeout_ms"`
}

// SimulatorConfig configures the crawler simulation subsystem.
type SimulatorConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	MaxParallel       int  `mapstructure:"max_parallel"`
	NavTimeoutSec     int  `mapstructure:"nav_timeout_seconds"`
	RequestTimeoutSec int  `mapstructure:"request_timeout_seconds"`
}

// ReportConfig names the two bots compared in the performance section.
type ReportConfig struct {
	CompareA string `mapstructure:"compare_a"`
	CompareB string `mapstructure:"compare_b"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("logging.development", true)
	v.SetDefault("ingest.buffer_size", 1024)
	v.SetDefault("ingest.persist_unknown", true)
	v.SetDefault("feed.write_timeout_ms", 5000)
	v.SetDefault("simulator.enabled", false)
	v.SetDefault("simulator.max_parallel", 1)
	v.SetDefault("simulator.nav_timeout_seconds", 45)
	v.SetDefault("simulator.request_timeout_seconds", 15)
	v.SetDefault("report.compare_a", "Googlebot")
	v.SetDefault("report.compare_b", "GPTBot")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.TimeoutSeconds <= 0 {
		return fmt.Errorf("server.timeout_seconds must be > 0")
	}
	if c.Ingest.BufferSize <= 0 {
		return fmt.Errorf("ingest.buffer_size must be > 0")
	}
	if c.Feed.WriteTimeoutMs <= 0 {
		return fmt.Errorf("feed.write_timeout_ms must be > 0")
	}
	if c.Simulator.Enabled && c.Simulator.MaxParallel <= 0 {
		return fmt.Errorf("simulator.max_parallel must be > 0 when the simulator is enabled")
	}
	return nil
}

// ServerTimeout converts the configured request timeout into a duration.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// FeedWriteTimeout converts the feed write timeout into a duration.
func (c Config) FeedWriteTimeout() time.Duration {
	return time.Duration(c.Feed.WriteTimeoutMs) * time.Millisecond
}
