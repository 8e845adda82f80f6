// Package config loads buntable settings from an optional config file and
// the environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix read by the CLI.
const EnvPrefix = "BUNTABLE_"

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config holds database and CLI settings.
type Config struct {
	Backend       string    `mapstructure:"backend"` // memory or sqlite
	Path          string    `mapstructure:"path"`    // sqlite database file
	Persistent    bool      `mapstructure:"persistent"`
	Workers       int       `mapstructure:"workers"`   // exec pool size
	ExprCacheSize int       `mapstructure:"exprcache"` // compiled expression cache entries
	Schema        string    `mapstructure:"schema"`    // model declaration file used by the CLI
	Log           LogConfig `mapstructure:"log"`
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend:       "memory",
		Path:          "buntable.db",
		Persistent:    false,
		Workers:       1024,
		ExprCacheSize: 256,
		Log: LogConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// Load reads file (if not empty) and then environment variables carrying
// prefix into target. Fields neither source sets keep their current value,
// so target is usually DefaultConfig().
//
// BUNTABLE_LOG_LEVEL sets log.level; BUNTABLE_EXPRCACHE sets exprcache.
func Load(prefix, file string, target interface{}) error {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	// Viper's AutomaticEnv doesn't work with Unmarshal when keys are unknown,
	// so env vars are copied in explicitly.
	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		key, value, ok := strings.Cut(envStr, "=")
		if !ok || !strings.HasPrefix(key, prefixUpper) {
			continue
		}
		propKey := strings.TrimPrefix(key, prefixUpper)
		propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", "."))
		propKey = strings.TrimPrefix(propKey, ".")
		if propKey == "" {
			continue
		}
		v.Set(propKey, value)
	}

	if err := v.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// Validate checks the settings a database needs.
func (c *Config) Validate() error {
	switch c.Backend {
	case "memory":
	case "sqlite":
		if c.Persistent && c.Path == "" {
			return fmt.Errorf("sqlite backend needs a path when persistent")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	return nil
}
