package config

import (
	"fmt"
	"net/url"
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

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Logging    LoggingConfig    `yaml:"logging"`
	App        AppConfig        `yaml:"app"`
	Worker     WorkerConfig     `yaml:"worker"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Images     ImagesConfig     `yaml:"images"`
	Search     SearchConfig     `yaml:"search"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TrustedProxies  []string      `yaml:"trusted_proxies"`
}

// DatabaseConfig holds PostgreSQL connection configuration for the job journal
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
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryInterval   time.Duration `yaml:"retry_interval"`
}

// RabbitMQConfig holds the completion-signal queue configuration.
// The exchange is optional; without one the queue is fed through the default exchange.
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	Tag           string `yaml:"tag"`
	PrefetchCount int    `yaml:"prefetch_count"`
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

// WorkerConfig describes the external scraping worker
type WorkerConfig struct {
	BaseURL           string        `yaml:"base_url"`
	ParsePath         string        `yaml:"parse_path"`
	CallbackURL       string        `yaml:"callback_url"`
	AcceptTimeout     time.Duration `yaml:"accept_timeout"`
	CompletionTimeout time.Duration `yaml:"completion_timeout"`
}

// DispatcherConfig holds job dispatcher settings
type DispatcherConfig struct {
	JournalTimeout  time.Duration `yaml:"journal_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// WebSocketConfig holds live channel settings
type WebSocketConfig struct {
	WriteWait      time.Duration `yaml:"write_wait"`
	PongWait       time.Duration `yaml:"pong_wait"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// ImagesConfig holds image materialization and retention settings
type ImagesConfig struct {
	Dir                 string        `yaml:"dir"`
	DownloadTimeout     time.Duration `yaml:"download_timeout"`
	DownloadConcurrency int           `yaml:"download_concurrency"`
	Retention           time.Duration `yaml:"retention"`
	CleanupHour         int           `yaml:"cleanup_hour"`
}

// SearchConfig holds search defaults
type SearchConfig struct {
	DefaultPage  int      `yaml:"default_page"`
	Marketplaces []string `yaml:"marketplaces"`
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Seeded values survive when the file omits the key
	config := Config{
		Images: ImagesConfig{CleanupHour: 3},
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Worker.ParsePath == "" {
		c.Worker.ParsePath = "/parse"
	}
	if c.Worker.AcceptTimeout <= 0 {
		c.Worker.AcceptTimeout = 500 * time.Second
	}
	if c.Worker.CompletionTimeout <= 0 {
		c.Worker.CompletionTimeout = 5 * time.Minute
	}
	if c.Dispatcher.JournalTimeout <= 0 {
		c.Dispatcher.JournalTimeout = 5 * time.Second
	}
	if c.Dispatcher.ShutdownTimeout <= 0 {
		c.Dispatcher.ShutdownTimeout = 30 * time.Second
	}
	if c.WebSocket.WriteWait <= 0 {
		c.WebSocket.WriteWait = 10 * time.Second
	}
	if c.WebSocket.PongWait <= 0 {
		c.WebSocket.PongWait = 60 * time.Second
	}
	if c.Images.Dir == "" {
		c.Images.Dir = "images"
	}
	if c.Images.DownloadTimeout <= 0 {
		c.Images.DownloadTimeout = 10 * time.Second
	}
	if c.Images.DownloadConcurrency <= 0 {
		c.Images.DownloadConcurrency = 4
	}
	if c.Images.Retention <= 0 {
		c.Images.Retention = 24 * time.Hour
	}
	if c.RabbitMQ.Connection.RetryAttempts <= 0 {
		c.RabbitMQ.Connection.RetryAttempts = 1
	}
}

// ValidateAPIConfig checks the settings the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
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

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}

		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}

		if c.RabbitMQ.Queue.Name == "" {
			return fmt.Errorf("rabbitmq queue name is required")
		}
	}

	if c.Worker.BaseURL == "" {
		return fmt.Errorf("worker base_url is required")
	}

	if u, err := url.Parse(c.Worker.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid worker base_url: %q", c.Worker.BaseURL)
	}

	if c.Search.DefaultPage < 0 {
		return fmt.Errorf("search default_page must not be negative")
	}

	return nil
}

// ValidateCleanupConfig checks the settings the cleanup service depends on
func (c *Config) ValidateCleanupConfig() error {
	if c.Images.Dir == "" {
		return fmt.Errorf("images dir is required")
	}

	if c.Images.Retention <= 0 {
		return fmt.Errorf("images retention must be greater than 0")
	}

	if c.Images.CleanupHour < 0 || c.Images.CleanupHour > 23 {
		return fmt.Errorf("images cleanup_hour must be between 0 and 23")
	}

	return nil
}
