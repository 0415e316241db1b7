package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/command-translator/internal/logging"
)

// HandlerFunc is called for each well-formed request. Returning ErrMalformed
// drops the delivery; any other error requeues it.
type HandlerFunc func(ctx context.Context, req *TranslateRequest) error

// Consumer consumes translation requests from RabbitMQ.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  *logging.Logger
}

// NewConsumer connects, declares queueName and applies the prefetch window.
func NewConsumer(rabbitMQURL, queueName string, prefetch int, logger *logging.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(rabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if prefetch < 1 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &Consumer{conn: conn, channel: ch, queue: queueName, logger: logger}, nil
}

// Start consumes until ctx is cancelled or the channel closes. Deliveries are
// handled one at a time.
func (c *Consumer) Start(ctx context.Context, handler HandlerFunc) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Waiting for messages on queue: %s", c.queue)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer shutting down")
			return ctx.Err()

		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("channel closed")
			}
			process(ctx, delivery, handler, c.logger)
		}
	}
}

// process settles exactly one delivery: ack on success, drop malformed input,
// requeue everything else.
func process(ctx context.Context, d amqp.Delivery, handler HandlerFunc, logger *logging.Logger) {
	req, err := decodeRequest(d)
	if err != nil {
		logger.Error("Failed to parse message: %v", err)
		if nerr := d.Nack(false, false); nerr != nil {
			logger.Error("Failed to nack message: %v", nerr)
		}
		return
	}

	logger.Info("Received translation request %s", req.ID)
	if err := handler(ctx, req); err != nil {
		requeue := !errors.Is(err, ErrMalformed)
		logger.Error("Failed to process request %s (requeue=%t): %v", req.ID, requeue, err)
		if nerr := d.Nack(false, requeue); nerr != nil {
			logger.Error("Failed to nack message: %v", nerr)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		logger.Error("Failed to ack message: %v", err)
	}
}

func decodeRequest(d amqp.Delivery) (*TranslateRequest, error) {
	var req TranslateRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(req.ID) == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	req.ReplyTo = d.ReplyTo
	req.CorrelationID = d.CorrelationId
	return &req, nil
}

// Close cleanly shuts down the consumer.
func (c *Consumer) Close() error {
	if err := c.channel.Close(); err != nil {
		return err
	}
	return c.conn.Close()
}
