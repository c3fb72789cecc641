package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling; every key can be overridden
// with an OIDCSTORE_ prefixed environment variable.
type Config struct {
	HTTPAddr  string `mapstructure:"http_addr"`
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`

	AdminToken     string  `mapstructure:"admin_token"`      // Bearer token of the admin API, empty disables auth
	AdminRateLimit float64 `mapstructure:"admin_rate_limit"` // Requests per second per client, 0 disables limiting

	StoreBackend     string        `mapstructure:"store_backend"`     // memory or redis
	ReplicationDelay time.Duration `mapstructure:"replication_delay"` // Simulated apply lag of the local replica
	SnapshotPath     string        `mapstructure:"snapshot_path"`     // bbolt checkpoint file, empty disables it

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisStream   string `mapstructure:"redis_stream"`

	PendingTTL             time.Duration `mapstructure:"pending_ttl"`
	PruneInterval          time.Duration `mapstructure:"prune_interval"`
	TokenRetention         time.Duration `mapstructure:"token_retention"`
	AuthorizationRetention time.Duration `mapstructure:"authorization_retention"`

	OtelServiceName string `mapstructure:"otel_service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("admin_token", "")
	v.SetDefault("admin_rate_limit", 0.0)
	v.SetDefault("store_backend", BackendMemory)
	v.SetDefault("replication_delay", time.Duration(0))
	v.SetDefault("snapshot_path", "")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_stream", "oidcstore:intents")
	v.SetDefault("pending_ttl", 30*time.Second)
	v.SetDefault("prune_interval", time.Hour)
	v.SetDefault("token_retention", 14*24*time.Hour)
	v.SetDefault("authorization_retention", 14*24*time.Hour)
	v.SetDefault("otel_service_name", "oidcstore")
}

// LoadConfig reads configuration from file, environment variables, and
// defaults. The oidcstore.yaml file is looked up in paths, or in the working
// directory, /etc/oidcstore/ and $HOME/.oidcstore when none are given.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("oidcstore")
	v.SetConfigType("yaml")

	if len(paths) == 0 {
		paths = []string{".", "/etc/oidcstore/", "$HOME/.oidcstore"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("OIDCSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file means defaults and env vars only.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values a process cannot start without.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required for the redis backend"))
		}
		if c.RedisStream == "" {
			errs = append(errs, errors.New("redis_stream is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store_backend %q", c.StoreBackend))
	}

	if c.ReplicationDelay < 0 {
		errs = append(errs, errors.New("replication_delay must not be negative"))
	}
	if c.AdminRateLimit < 0 {
		errs = append(errs, errors.New("admin_rate_limit must not be negative"))
	}
	for name, d := range map[string]time.Duration{
		"pending_ttl":             c.PendingTTL,
		"prune_interval":          c.PruneInterval,
		"token_retention":         c.TokenRetention,
		"authorization_retention": c.AuthorizationRetention,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
