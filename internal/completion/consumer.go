package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeliverySource is the subset of the RabbitMQ client the consumer needs
type DeliverySource interface {
	SetPrefetch(count int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Consumer feeds completion signals published by the scraping worker into a Tracker
type Consumer struct {
	source        DeliverySource
	tracker       *Tracker
	logger        *slog.Logger
	consumerTag   string
	prefetchCount int
}

// ConsumerConfig holds consumer dependencies
type ConsumerConfig struct {
	Source        DeliverySource
	Tracker       *Tracker
	Logger        *slog.Logger
	ConsumerTag   string
	PrefetchCount int
}

// NewConsumer creates a new completion consumer
func NewConsumer(cfg *ConsumerConfig) *Consumer {
	return &Consumer{
		source:        cfg.Source,
		tracker:       cfg.Tracker,
		logger:        cfg.Logger,
		consumerTag:   cfg.ConsumerTag,
		prefetchCount: cfg.PrefetchCount,
	}
}

// Run consumes until ctx is canceled or the delivery channel closes
func (c *Consumer) Run(ctx context.Context) error {
	if c.prefetchCount > 0 {
		if err := c.source.SetPrefetch(c.prefetchCount); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	deliveries, err := c.source.Consume(c.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Completion consumer started",
		slog.String("consumer_tag", c.consumerTag),
		slog.Int("prefetch_count", c.prefetchCount),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Completion consumer stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("RabbitMQ delivery channel closed")
				return nil
			}
			c.handle(delivery)
		}
	}
}

// handle acks every well-formed message, matched or not; unmatched signals
// belong to jobs that already timed out. Malformed messages are nacked
// without requeue.
func (c *Consumer) handle(delivery amqp.Delivery) {
	var signal struct {
		RequestID   string `json:"request_id"`
		ClientKey   string `json:"client_key"`
		IP          string `json:"ip"`
		Marketplace string `json:"marketplace"`
		Status      string `json:"status"`
		Error       string `json:"error"`
	}

	if err := json.Unmarshal(delivery.Body, &signal); err != nil {
		c.logger.Error("Failed to parse completion message",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		c.nack(delivery)
		return
	}

	parsed := NewSignal(signal.RequestID, signal.ClientKey, signal.IP, signal.Marketplace, signal.Status, signal.Error)
	if err := Validate(parsed); err != nil {
		c.logger.Error("Invalid completion message",
			slog.String("error", err.Error()),
		)
		c.nack(delivery)
		return
	}

	c.tracker.Resolve(parsed)

	if err := delivery.Ack(false); err != nil {
		c.logger.Error("Failed to ACK completion message",
			slog.String("error", err.Error()),
		)
	}
}

func (c *Consumer) nack(delivery amqp.Delivery) {
	if err := delivery.Nack(false, false); err != nil {
		c.logger.Error("Failed to NACK completion message",
			slog.String("error", err.Error()),
		)
	}
}
