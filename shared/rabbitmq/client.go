package rabbitmq

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange describes the exchange the queue is bound to
type Exchange struct {
	Name       string
	Kind       string
	Durable    bool
	AutoDelete bool
}

// Queue describes the queue deliveries are consumed from
type Queue struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
}

// Config holds RabbitMQ connection and topology configuration.
// With an empty Exchange.Name the queue is consumed through the default exchange.
type Config struct {
	Host              string
	Port              int
	User              string
	Password          string
	VHost             string
	Exchange          Exchange
	Queue             Queue
	RoutingKey        string
	RetryAttempts     int
	RetryInterval     time.Duration
	Heartbeat         time.Duration
	ConnectionTimeout time.Duration
}

// URI returns the AMQP URI with credentials escaped
func (c *Config) URI() string {
	vhost := c.VHost
	if vhost == "" {
		vhost = "/"
	}
	return amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     c.Port,
		Username: c.User,
		Password: c.Password,
		Vhost:    vhost,
	}.String()
}

// Client is a RabbitMQ consumer bound to a single queue
type Client struct {
	config    *Config
	conn      *amqp.Connection
	channel   *amqp.Channel
	logger    *slog.Logger
	connected atomic.Bool
}

// NewClient dials the broker, retrying as configured, and declares the topology
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	c := &Client{
		config: config,
		logger: logger,
	}

	if err := c.dial(); err != nil {
		return nil, err
	}

	if err := c.declare(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return nil, fmt.Errorf("failed to declare topology: %w", err)
	}

	closed := c.channel.NotifyClose(make(chan *amqp.Error, 1))
	c.connected.Store(true)
	go c.watch(closed)

	logger.Info("RabbitMQ client initialized",
		slog.String("exchange", config.Exchange.Name),
		slog.String("queue", config.Queue.Name),
	)
	return c, nil
}

func (c *Client) dial() error {
	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}
	if c.config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(c.config.ConnectionTimeout)
	}

	attempts := max(c.config.RetryAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.String("host", c.config.Host),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		c.conn, err = amqp.DialConfig(c.config.URI(), amqpConfig)
		if err == nil {
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)
		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	return nil
}

// declare creates the queue and, when configured, the exchange and binding
func (c *Client) declare() error {
	q := c.config.Queue
	if _, err := c.channel.QueueDeclare(q.Name, q.Durable, q.AutoDelete, q.Exclusive, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", q.Name, err)
	}

	ex := c.config.Exchange
	if ex.Name == "" {
		return nil
	}

	kind := ex.Kind
	if kind == "" {
		kind = amqp.ExchangeDirect
	}
	if err := c.channel.ExchangeDeclare(ex.Name, kind, ex.Durable, ex.AutoDelete, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", ex.Name, err)
	}

	if err := c.channel.QueueBind(q.Name, c.config.RoutingKey, ex.Name, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %q to %q: %w", q.Name, ex.Name, err)
	}
	return nil
}

// watch marks the client disconnected once the broker closes the channel
func (c *Client) watch(closed <-chan *amqp.Error) {
	amqpErr, ok := <-closed
	c.connected.Store(false)
	if ok && amqpErr != nil {
		c.logger.Error("RabbitMQ channel closed by broker",
			slog.Int("code", amqpErr.Code),
			slog.String("reason", amqpErr.Reason),
		)
	}
}

// SetPrefetch limits the number of unacknowledged deliveries per consumer
func (c *Client) SetPrefetch(count int) error {
	if !c.connected.Load() {
		return fmt.Errorf("not connected to RabbitMQ")
	}
	if err := c.channel.Qos(count, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	return nil
}

// Consume starts a manual-ack consumer on the configured queue
func (c *Client) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	if !c.connected.Load() {
		return nil, fmt.Errorf("not connected to RabbitMQ")
	}

	deliveries, err := c.channel.Consume(c.config.Queue.Name, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", c.config.Queue.Name),
		slog.String("consumer_tag", consumerTag),
	)
	return deliveries, nil
}

// Close shuts the channel and connection; the consumer's delivery channel closes with them
func (c *Client) Close() error {
	c.connected.Store(false)

	if err := c.channel.Close(); err != nil {
		c.logger.Debug("Failed to close RabbitMQ channel",
			slog.Any("error", err),
		)
	}

	if err := c.conn.Close(); err != nil {
		c.logger.Error("Failed to close RabbitMQ connection",
			slog.Any("error", err),
		)
		return err
	}

	c.logger.Info("RabbitMQ connection closed")
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	return c.connected.Load() && !c.conn.IsClosed()
}
