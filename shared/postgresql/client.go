package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Config holds PostgreSQL connection configuration
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	ApplicationName string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
	RetryAttempts   int
	RetryInterval   time.Duration
}

// DSN renders the config as a libpq key/value connection string.
// Values are quoted so passwords may contain spaces or quotes.
func (c *Config) DSN() string {
	type param struct{ key, value string }

	params := []param{
		{"host", c.Host},
		{"port", fmt.Sprint(c.Port)},
		{"user", c.User},
		{"password", c.Password},
		{"dbname", c.Database},
		{"sslmode", c.SSLMode},
		{"application_name", c.ApplicationName},
	}
	if c.ConnectTimeout > 0 {
		secs := int(c.ConnectTimeout.Round(time.Second) / time.Second)
		params = append(params, param{"connect_timeout", fmt.Sprint(max(secs, 1))})
	}

	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.value == "" {
			continue
		}
		parts = append(parts, p.key+"="+quote(p.value))
	}
	return strings.Join(parts, " ")
}

func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Client owns the connection pool backing the job journal
type Client struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewClient opens the pool and waits until the server answers, retrying as configured
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	connector, err := pq.NewConnector(config.DSN())
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL configuration: %w", err)
	}

	db := sqlx.NewDb(sql.OpenDB(connector), "postgres")
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	attempts := max(config.RetryAttempts, 1)
	pingTimeout := config.ConnectTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		logger.Info("Connecting to PostgreSQL",
			slog.String("host", config.Host),
			slog.Int("port", config.Port),
			slog.String("database", config.Database),
			slog.Int("attempt", attempt),
		)

		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		err = db.PingContext(ctx)
		cancel()
		if err == nil {
			break
		}

		logger.Error("Failed to reach PostgreSQL",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)
		if attempt < attempts {
			time.Sleep(config.RetryInterval)
		}
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL after %d attempts: %w", attempts, err)
	}

	logger.Info("Successfully connected to PostgreSQL",
		slog.Int("max_open_conns", config.MaxOpenConns),
		slog.Int("max_idle_conns", config.MaxIdleConns),
	)

	return &Client{db: db, logger: logger}, nil
}

// GetDB returns the underlying sqlx.DB instance
func (c *Client) GetDB() *sqlx.DB {
	return c.db
}

// Close closes the pool
func (c *Client) Close() error {
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close PostgreSQL connection",
			slog.Any("error", err),
		)
		return err
	}

	c.logger.Info("PostgreSQL connection closed")
	return nil
}

// HealthCheck runs a trivial query, which also proves a pooled connection is usable
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var one int
	if err := c.db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	stats := c.db.Stats()
	c.logger.Debug("Database healthy",
		slog.Int("open_connections", stats.OpenConnections),
		slog.Int("in_use", stats.InUse),
	)
	return nil
}
