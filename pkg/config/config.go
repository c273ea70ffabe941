package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8080"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultQueueTopic is the default dispatch queue topic.
	DefaultQueueTopic = "webhooks"

	// DefaultSQLitePath is the default SQLite database path.
	DefaultSQLitePath = "./forgeci.db"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Supported queue drivers.
const (
	QueueKafka   = "kafka"
	QueueChannel = "channel"
)

// Config is the root configuration for forgeci.
type Config struct {
	LogLevel string         `yaml:"log_level" mapstructure:"log_level"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Webhooks WebhooksConfig `yaml:"webhooks" mapstructure:"webhooks"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Queue    QueueConfig    `yaml:"queue" mapstructure:"queue"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen    string          `yaml:"listen" mapstructure:"listen"`
	RateLimit RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting on the webhook routes.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// WebhooksConfig contains webhook authentication settings.
//
// Validate controls whether missing auth headers are rejected. Disabling it
// is only meant for trusted local setups and testing.
type WebhooksConfig struct {
	Validate     bool   `yaml:"validate" mapstructure:"validate"`
	GitHubSecret string `yaml:"github_secret" mapstructure:"github_secret"`
	GitLabToken  string `yaml:"gitlab_token" mapstructure:"gitlab_token"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// QueueConfig contains dispatch queue settings.
type QueueConfig struct {
	Driver string      `yaml:"driver" mapstructure:"driver"`
	Topic  string      `yaml:"topic" mapstructure:"topic"`
	Kafka  KafkaConfig `yaml:"kafka,omitempty" mapstructure:"kafka"`
}

// KafkaConfig contains Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
}

// Load reads and parses a configuration file from the given path.
// Values can be overridden through FORGECI_* environment variables,
// e.g. FORGECI_WEBHOOKS_GITHUB_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FORGECI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("webhooks.validate", true)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}

	if c.Database.Driver == DriverSQLite && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = QueueChannel
	}

	if c.Queue.Topic == "" {
		c.Queue.Topic = DefaultQueueTopic
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Database.Driver == DriverPostgres {
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("postgres database name is required")
		}
	}

	switch c.Queue.Driver {
	case QueueChannel:
	case QueueKafka:
		if len(c.Queue.Kafka.Brokers) == 0 {
			return fmt.Errorf("at least one kafka broker must be configured")
		}
	default:
		return fmt.Errorf("unsupported queue driver: %s", c.Queue.Driver)
	}

	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive")
	}

	if c.Webhooks.Validate {
		if c.Webhooks.GitHubSecret == "" && c.Webhooks.GitLabToken == "" {
			return fmt.Errorf(
				"webhook validation is enabled but no secret or token is configured",
			)
		}
	}

	return nil
}
