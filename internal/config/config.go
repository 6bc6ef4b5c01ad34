package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	Slack      SlackConfig      `yaml:"slack"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port            int             `yaml:"port"`
	ReadTimeout     time.Duration   `yaml:"readTimeout"`
	WriteTimeout    time.Duration   `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdownTimeout"`
	MetricsPort     int             `yaml:"metricsPort"`
	APIToken        string          `yaml:"apiToken"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
}

type KubernetesConfig struct {
	InCluster  bool   `yaml:"inCluster"`
	Kubeconfig string `yaml:"kubeconfig"`
	// Host is the control-plane address. Used alone it targets an unauthenticated proxy.
	Host                     string        `yaml:"host"`
	Timeout                  time.Duration `yaml:"timeout"`
	BlockedNamespaces        []string      `yaml:"blockedNamespaces"`
	AllowedImagePrefixes     []string      `yaml:"allowedImagePrefixes"`
	ValidateNames            bool          `yaml:"validateNames"`
	DryRun                   bool          `yaml:"dryRun"`
	DeleteGracePeriodSeconds *int64        `yaml:"deleteGracePeriodSeconds"`
}

type SlackConfig struct {
	Enabled        bool              `yaml:"enabled"`
	BotToken       string            `yaml:"botToken"`
	DefaultChannel string            `yaml:"defaultChannel"`
	Channels       map[string]string `yaml:"channels"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path              string `yaml:"path"`
	MaxOpenConns      int    `yaml:"maxOpenConns"`
	PragmaJournalMode string `yaml:"pragmaJournalMode"`
	PragmaBusyTimeout int    `yaml:"pragmaBusyTimeout"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a YAML config file and returns a Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MetricsPort:     9090,
			RateLimit:       RateLimitConfig{Enabled: true, RequestsPerMinute: 120},
		},
		Kubernetes: KubernetesConfig{
			Host:              "http://localhost:8080",
			Timeout:           30 * time.Second,
			BlockedNamespaces: []string{"kube-system", "kube-public", "kube-node-lease"},
			ValidateNames:     true,
		},
		Slack: SlackConfig{
			DefaultChannel: "#executors",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:              "/data/executor-provisioner.db",
				MaxOpenConns:      1,
				PragmaJournalMode: "wal",
				PragmaBusyTimeout: 5000,
			},
			Postgres: PostgresConfig{MaxConns: 10},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// expandEnvVars replaces ${VAR} patterns with environment variable values.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "${" + key + "}"
	})
}
