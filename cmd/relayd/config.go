package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
	"gopkg.in/yaml.v3"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
	driverMemory   = "memory"
)

type fileConfig struct {
	Listen            string         `yaml:"listen"`
	RoutePath         string         `yaml:"route_path"`
	ShutdownTimeoutMS int            `yaml:"shutdown_timeout_ms"`
	LogLevel          string         `yaml:"log_level"`
	Database          databaseConfig `yaml:"database"`
	Cache             cacheConfig    `yaml:"cache"`
	Redis             redisConfig    `yaml:"redis"`
	Pipeline          pipelineConfig `yaml:"pipeline"`
	Relay             map[string]any `yaml:"relay"`
}

type databaseConfig struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	Debug   bool   `yaml:"debug"`
	Migrate bool   `yaml:"migrate"`
}

type cacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	TTLSeconds int  `yaml:"ttl_seconds"`
}

// redisConfig enables the Redis idempotency ledger. It is only valid with the
// memory database driver since SQL forwarding rows reference the SQL ledger.
// Ledger keys never expire.
type redisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type pipelineConfig struct {
	Kind          string   `yaml:"kind"`
	URL           string   `yaml:"url"`
	SigningSecret string   `yaml:"signing_secret"`
	TimeoutMS     int      `yaml:"timeout_ms"`
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Listen:            ":8080",
		ShutdownTimeoutMS: 15000,
		LogLevel:          "info",
		Database: databaseConfig{
			Driver:  driverSQLite,
			DSN:     "file:relay.db?_foreign_keys=on",
			Migrate: true,
		},
		Cache: cacheConfig{
			Enabled:    true,
			TTLSeconds: 30,
		},
		Pipeline: pipelineConfig{
			Kind:      "http",
			TimeoutMS: 10000,
		},
	}
}

func loadFileConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.validate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("relayd: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("relayd: parse config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c fileConfig) validate() error {
	switch c.driver() {
	case driverSQLite, driverPostgres, driverMemory:
	default:
		return fmt.Errorf("relayd: unsupported database driver %q", c.Database.Driver)
	}
	if c.driver() != driverMemory && strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("relayd: database.dsn is required for driver %q", c.driver())
	}
	if strings.TrimSpace(c.Redis.Addr) != "" && c.driver() != driverMemory {
		return fmt.Errorf("relayd: the redis ledger requires database.driver %q", driverMemory)
	}
	switch strings.ToLower(strings.TrimSpace(c.Pipeline.Kind)) {
	case "http":
		if strings.TrimSpace(c.Pipeline.URL) == "" {
			return fmt.Errorf("relayd: pipeline.url is required for the http pipeline")
		}
	case "kafka":
		if len(c.Pipeline.Brokers) == 0 || strings.TrimSpace(c.Pipeline.Topic) == "" {
			return fmt.Errorf("relayd: pipeline.brokers and pipeline.topic are required for the kafka pipeline")
		}
	default:
		return fmt.Errorf("relayd: unsupported pipeline kind %q", c.Pipeline.Kind)
	}
	return nil
}

func (c fileConfig) driver() string {
	return strings.ToLower(strings.TrimSpace(c.Database.Driver))
}

func (c fileConfig) shutdownTimeout() time.Duration {
	if c.ShutdownTimeoutMS <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// relayConfigLoader feeds the relay section of the YAML file to the cfgx
// config provider. Secret rotation bounds are parsed as RFC 3339 times.
type relayConfigLoader struct {
	values map[string]any
}

func (l relayConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	signature, ok := out["signature"].(map[string]any)
	if !ok {
		return out, nil
	}
	secrets, ok := signature["secrets"].([]any)
	if !ok {
		return out, nil
	}
	normalizedSecrets := make([]any, 0, len(secrets))
	for index, entry := range secrets {
		secret, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("relayd: relay.signature.secrets[%d] must be a mapping", index)
		}
		copied := make(map[string]any, len(secret))
		for key, value := range secret {
			copied[key] = value
		}
		for _, key := range []string{"not_before", "not_after"} {
			parsed, present, err := parseWindowBound(copied[key])
			if err != nil {
				return nil, fmt.Errorf("relayd: relay.signature.secrets[%d].%s: %w", index, key, err)
			}
			if present {
				copied[key] = parsed
			} else {
				delete(copied, key)
			}
		}
		normalizedSecrets = append(normalizedSecrets, copied)
	}
	normalizedSignature := make(map[string]any, len(signature))
	for key, value := range signature {
		normalizedSignature[key] = value
	}
	normalizedSignature["secrets"] = normalizedSecrets
	out["signature"] = normalizedSignature
	return out, nil
}

func parseWindowBound(value any) (*time.Time, bool, error) {
	switch typed := value.(type) {
	case nil:
		return nil, false, nil
	case time.Time:
		at := typed.UTC()
		return &at, true, nil
	case string:
		if strings.TrimSpace(typed) == "" {
			return nil, false, nil
		}
		at, err := time.Parse(time.RFC3339, strings.TrimSpace(typed))
		if err != nil {
			return nil, false, err
		}
		at = at.UTC()
		return &at, true, nil
	default:
		return nil, false, fmt.Errorf("unsupported time value %T", value)
	}
}

var _ core.RawConfigLoader = relayConfigLoader{}
