// Package config loads server configuration from a YAML file and
// GOVERN_-prefixed environment variables, and watches the file so policy
// settings can be swapped without a restart.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	Listen   string         `mapstructure:"listen"`
	Database DatabaseConfig `mapstructure:"database"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Orgs     OrgsConfig     `mapstructure:"orgs"`
	Sink     SinkConfig     `mapstructure:"sink"`
	Poll     PollConfig     `mapstructure:"poll"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// DatabaseConfig selects the backing database.
type DatabaseConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// PolicyConfig selects the access-control strategy. These fields may be
// changed at runtime through the config watcher.
type PolicyConfig struct {
	Mode                  string `mapstructure:"mode"`
	RequireApprovedAgents bool   `mapstructure:"requireApprovedAgents"`
}

// AuthConfig controls bearer-token principal extraction.
type AuthConfig struct {
	Mode          string `mapstructure:"mode"`
	PublicKeyPath string `mapstructure:"publicKeyPath"`
	Issuer        string `mapstructure:"issuer"`
	Audience      string `mapstructure:"audience"`
}

// OrgsConfig selects org resolution behavior.
type OrgsConfig struct {
	Mode string `mapstructure:"mode"`
}

// SinkConfig configures the external audit sink. An empty path disables
// the sink; ledger rows are still written.
type SinkConfig struct {
	Path string `mapstructure:"path"`
}

// PollConfig bounds outbound agent polling.
type PollConfig struct {
	DefaultTimeoutMs int `mapstructure:"defaultTimeoutMs"`
	MaxTimeoutMs     int `mapstructure:"maxTimeoutMs"`
}

// CacheConfig bounds the gateway discovery cache.
type CacheConfig struct {
	MaxSize    int `mapstructure:"maxSize"`
	TTLSeconds int `mapstructure:"ttlSeconds"`
}

// EnvPrefix is the prefix for environment variable overrides, e.g.
// GOVERN_DATABASE_DSN overrides database.dsn.
const EnvPrefix = "GOVERN"

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "govern.db")
	v.SetDefault("policy.mode", "links")
	v.SetDefault("policy.requireApprovedAgents", true)
	v.SetDefault("auth.mode", "passthrough")
	v.SetDefault("orgs.mode", "header")
	v.SetDefault("poll.defaultTimeoutMs", 3000)
	v.SetDefault("poll.maxTimeoutMs", 30000)
	v.SetDefault("cache.maxSize", 256)
	v.SetDefault("cache.ttlSeconds", 60)
}

// Load reads configuration from the given file path (optional) plus
// environment overrides. The returned Loader can watch the file for
// changes.
func Load(path string) (*Loader, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	l := &Loader{v: v}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Loader holds the loaded configuration and supports file watching.
type Loader struct {
	v       *viper.Viper
	mu      sync.RWMutex
	current *Config
}

// Config returns the most recently loaded configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Poll.MaxTimeoutMs < cfg.Poll.DefaultTimeoutMs {
		cfg.Poll.MaxTimeoutMs = cfg.Poll.DefaultTimeoutMs
	}
	return &cfg, nil
}

// Watch begins watching the config file and invokes onChange with the
// re-decoded configuration whenever it is rewritten. Decode failures are
// logged and the previous configuration stays active.
func (l *Loader) Watch(logger *slog.Logger, onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			logger.Error("config reload failed, keeping previous settings",
				"file", e.Name, "error", err)
			return
		}
		l.mu.Lock()
		l.current = cfg
		l.mu.Unlock()
		logger.Info("config reloaded", "file", e.Name, "op", e.Op.String())
		if onChange != nil {
			onChange(cfg)
		}
	})
	l.v.WatchConfig()
}
