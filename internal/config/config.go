package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig                `yaml:"app"`
	Server   ServerConfig             `yaml:"server"`
	Database DatabaseConfig           `yaml:"database"`
	RabbitMQ RabbitMQConfig           `yaml:"rabbitmq"`
	Queues   map[string]QueueSettings `yaml:"queues"`
	Retry    RetryConfig              `yaml:"retry"`
	Redis    RedisConfig              `yaml:"redis"`
	Logging  LoggingConfig            `yaml:"logging"`
	Worker   WorkerConfig             `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL or SQLite connection configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Path            string        `yaml:"path"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	Migrate         bool          `yaml:"migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration.
// Every recipe queue is declared with the same queue settings and bound with
// its own name as routing key.
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue declaration settings
type QueueConfig struct {
	Prefix      string `yaml:"prefix"`
	Durable     bool   `yaml:"durable"`
	AutoDelete  bool   `yaml:"auto_delete"`
	Exclusive   bool   `yaml:"exclusive"`
	MaxPriority int    `yaml:"max_priority"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int    `yaml:"prefetch_count"`
	TagPrefix     string `yaml:"tag_prefix"`
}

// QueueSettings tunes the worker of one queue
type QueueSettings struct {
	Concurrency int `yaml:"concurrency"`
	Prefetch    int `yaml:"prefetch"`
	Attempts    int `yaml:"attempts"`
}

// RetryConfig is the in-process action retry and queue backoff policy
type RetryConfig struct {
	// MaxRetries is nil when the key is absent; 0 turns retries off
	MaxRetries *int          `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// RedisConfig holds the status broadcast connection
type RedisConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	ActionTimeout   time.Duration `yaml:"action_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Retry.MaxRetries == nil {
		maxRetries := pipeline.DefaultMaxRetries
		c.Retry.MaxRetries = &maxRetries
	}
	if c.Retry.Backoff == 0 {
		c.Retry.Backoff = pipeline.DefaultBackoff
	}
	if c.Retry.MaxBackoff == 0 {
		c.Retry.MaxBackoff = pipeline.DefaultMaxBackoff
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 1
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
}

// RetryPolicy converts the retry section into a pipeline policy
func (c *Config) RetryPolicy() pipeline.RetryPolicy {
	maxRetries := pipeline.DefaultMaxRetries
	if c.Retry.MaxRetries != nil {
		maxRetries = *c.Retry.MaxRetries
	}
	return pipeline.RetryPolicy{
		MaxRetries: maxRetries,
		Backoff:    c.Retry.Backoff,
		MaxBackoff: c.Retry.MaxBackoff,
	}
}

// QueueSettingsFor returns the settings of a queue, falling back to the
// worker defaults for anything unset
func (c *Config) QueueSettingsFor(name string) QueueSettings {
	s := c.Queues[name]
	if s.Concurrency <= 0 {
		s.Concurrency = c.Worker.Concurrency
	}
	if s.Prefetch <= 0 {
		s.Prefetch = c.RabbitMQ.Consumer.PrefetchCount
	}
	if s.Prefetch <= 0 {
		s.Prefetch = s.Concurrency
	}
	return s
}

// QueueName returns the broker queue name of a recipe queue
func (c *Config) QueueName(name string) string {
	return c.RabbitMQ.Queue.Prefix + name
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
		return nil
	case DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}
	return nil
}

func (c *Config) validateRedis() error {
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}
	return nil
}

// ValidateAPIConfig checks the sections the API service uses
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}
	return c.validateRabbitMQ()
}

// ValidateWorkerConfig checks the sections the worker service uses
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if err := c.validateRedis(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.ActionTimeout < 0 {
		return fmt.Errorf("worker action_timeout must not be negative")
	}

	if c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry max_retries must not be negative")
	}

	if c.Retry.MaxBackoff < c.Retry.Backoff {
		return fmt.Errorf("retry max_backoff (%s) must not be lower than backoff (%s)", c.Retry.MaxBackoff, c.Retry.Backoff)
	}

	for name, q := range c.Queues {
		if q.Concurrency < 0 || q.Prefetch < 0 || q.Attempts < 0 {
			return fmt.Errorf("queue %s: settings must not be negative", name)
		}
	}

	return nil
}
