package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Supported broker drivers
const (
	DriverBeanstalkd = "beanstalkd"
	DriverPostgres   = "postgres"
	DriverRabbitMQ   = "rabbitmq"
)

// Config represents the complete application configuration
type Config struct {
	App        AppConfig              `yaml:"app"`
	Server     ServerConfig           `yaml:"server"`
	Logging    LoggingConfig          `yaml:"logging"`
	Broker     BrokerConfig           `yaml:"broker"`
	Beanstalkd BeanstalkdConfig       `yaml:"beanstalkd"`
	Database   DatabaseConfig         `yaml:"database"`
	RabbitMQ   RabbitMQConfig         `yaml:"rabbitmq"`
	Worker     WorkerConfig           `yaml:"worker"`
	Queues     map[string]QueueConfig `yaml:"queues"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// BrokerConfig selects the message broker backend
type BrokerConfig struct {
	Driver         string        `yaml:"driver"`
	ReserveTimeout time.Duration `yaml:"reserve_timeout"`
}

// BeanstalkdConfig holds beanstalkd connection configuration
type BeanstalkdConfig struct {
	Addr          string        `yaml:"addr"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	TTR           time.Duration `yaml:"ttr"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
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
	PollInterval    time.Duration `yaml:"poll_interval"`
	VisibilityTTR   time.Duration `yaml:"visibility_ttr"`
}

// RabbitMQConfig holds RabbitMQ connection configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	// PollInterval is how often an empty queue is polled while reserving
	PollInterval time.Duration `yaml:"poll_interval"`
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

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	MaxJobs              int           `yaml:"max_jobs"`
	ReleaseDelay         time.Duration `yaml:"release_delay"`
	BuryAfterReserves    int           `yaml:"bury_after_reserves"`
	SkipReleaseAfterBury bool          `yaml:"skip_release_after_bury"`
	MetricsAddr          string        `yaml:"metrics_addr"`
}

// QueueConfig binds a queue to the worker that processes it.
// Worker is "command", "http", or the name of a registered handler.
type QueueConfig struct {
	Worker  string        `yaml:"worker"`
	Command string        `yaml:"command"`
	URL     string        `yaml:"url"`
	Method  string        `yaml:"method"`
	Timeout time.Duration `yaml:"timeout"`
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
	config.applyEnv()

	return &config, nil
}

// applyDefaults fills in values left empty in the file
func (c *Config) applyDefaults() {
	if c.Broker.Driver == "" {
		c.Broker.Driver = DriverBeanstalkd
	}
	if c.Broker.ReserveTimeout <= 0 {
		c.Broker.ReserveTimeout = 5 * time.Second
	}
	if c.Beanstalkd.Addr == "" {
		c.Beanstalkd.Addr = "127.0.0.1:11300"
	}
	if c.Beanstalkd.RetryAttempts <= 0 {
		c.Beanstalkd.RetryAttempts = 3
	}
	if c.Beanstalkd.TTR <= 0 {
		c.Beanstalkd.TTR = 60 * time.Second
	}
	if c.Worker.MaxJobs == 0 {
		c.Worker.MaxJobs = 5
	}
	if c.Worker.ReleaseDelay <= 0 {
		c.Worker.ReleaseDelay = 60 * time.Second
	}
	if c.Worker.BuryAfterReserves <= 0 {
		c.Worker.BuryAfterReserves = 3
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
}

// applyEnv lets the environment override connection secrets
func (c *Config) applyEnv() {
	if addr := os.Getenv("BEANSTALKD_ADDR"); addr != "" {
		c.Beanstalkd.Addr = addr
	}
	if pw := os.Getenv("DATABASE_PASSWORD"); pw != "" {
		c.Database.Password = pw
	}
	if pw := os.Getenv("RABBITMQ_PASSWORD"); pw != "" {
		c.RabbitMQ.Password = pw
	}
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateBroker(); err != nil {
		return err
	}

	return c.validateQueues()
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.MaxJobs < 0 {
		return fmt.Errorf("worker max_jobs must not be negative")
	}

	if c.Worker.ReleaseDelay <= 0 {
		return fmt.Errorf("worker release_delay must be greater than 0")
	}

	if c.Worker.BuryAfterReserves <= 0 {
		return fmt.Errorf("worker bury_after_reserves must be greater than 0")
	}

	if err := c.validateBroker(); err != nil {
		return err
	}

	return c.validateQueues()
}

func (c *Config) validateBroker() error {
	switch c.Broker.Driver {
	case DriverBeanstalkd:
		if c.Beanstalkd.Addr == "" {
			return fmt.Errorf("beanstalkd addr is required")
		}

	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}

	case DriverRabbitMQ:
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}

	default:
		return fmt.Errorf("unsupported broker driver: %q", c.Broker.Driver)
	}

	return nil
}

func (c *Config) validateQueues() error {
	if len(c.Queues) == 0 {
		return fmt.Errorf("at least one queue must be configured")
	}

	for name, q := range c.Queues {
		if name == "" {
			return fmt.Errorf("queue name must not be empty")
		}
		if q.Worker == "" {
			return fmt.Errorf("queue %s: worker is required", name)
		}
	}

	return nil
}
