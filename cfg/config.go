package cfg

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// MetricsConfiguration for the optional Prometheus endpoint
type MetricsConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// ConnectionConfiguration controls the bootstrap session
type ConnectionConfiguration struct {
	ConnectTimeoutSeconds int `toml:"connect_timeout_seconds"`
	ReadTimeoutSeconds    int `toml:"read_timeout_seconds"`
}

// CacheConfiguration controls the background topology cache
type CacheConfiguration struct {
	RefreshIntervalSeconds int `toml:"refresh_interval_seconds"`
}

// Configuration is the main configuration structure. The [defaults]
// table carries bootstrap option defaults, overridden by CLI flags.
type Configuration struct {
	Logging    LoggingConfiguration    `toml:"logging"`
	Metrics    MetricsConfiguration    `toml:"metrics"`
	Connection ConnectionConfiguration `toml:"connection"`
	Cache      CacheConfiguration      `toml:"cache"`
	Defaults   map[string]string       `toml:"defaults"`
}

// Default configuration
var Config = &Configuration{
	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},
	Metrics: MetricsConfiguration{
		Enabled: false,
		Address: "0.0.0.0",
		Port:    9152,
	},
	Connection: ConnectionConfiguration{
		ConnectTimeoutSeconds: 30,
		ReadTimeoutSeconds:    30,
	},
	Cache: CacheConfiguration{
		RefreshIntervalSeconds: 5,
	},
	Defaults: map[string]string{},
}

// Load loads configuration from file if it exists
func Load(configPath string) error {
	if configPath == "" {
		return nil
	}
	if _, err := os.Stat(configPath); err != nil {
		log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		return nil
	}
	log.Info().Str("path", configPath).Msg("Loading configuration")
	if _, err := toml.DecodeFile(configPath, Config); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	for name := range Config.Defaults {
		if !Recognized(name) {
			return fmt.Errorf("unrecognized option '%s' in [defaults]", name)
		}
	}
	return nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Metrics.Enabled && (Config.Metrics.Port < 1 || Config.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", Config.Metrics.Port)
	}
	if Config.Cache.RefreshIntervalSeconds < 1 {
		return fmt.Errorf("invalid cache refresh interval: %d", Config.Cache.RefreshIntervalSeconds)
	}
	switch Config.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging format: %s", Config.Logging.Format)
	}
	return nil
}
