package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPWakerConfig configures an AMQPWaker.
type AMQPWakerConfig struct {
	URL string

	// Queue is the signal queue name. Default: "agentcore.queue.wake".
	Queue string

	// Prefetch bounds unacknowledged deliveries. Default: 1.
	Prefetch int

	Logger *slog.Logger
}

// AMQPWaker signals workers across processes through a RabbitMQ queue.
// Deliveries are acknowledged manually once forwarded.
type AMQPWaker struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger *slog.Logger
}

// NewAMQPWaker dials RabbitMQ and declares the signal queue.
func NewAMQPWaker(cfg AMQPWakerConfig) (*AMQPWaker, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url is required")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "agentcore.queue.wake"
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set amqp qos: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare amqp queue: %w", err)
	}
	return &AMQPWaker{
		conn:   conn,
		ch:     ch,
		queue:  queue,
		logger: logger.With("component", "queue-waker", "backend", "amqp"),
	}, nil
}

// Notify publishes a signal.
func (w *AMQPWaker) Notify(ctx context.Context, jobType string) error {
	if w == nil || w.ch == nil {
		return errors.New("amqp waker not initialized")
	}
	err := w.ch.PublishWithContext(ctx, "", w.queue, false, false, amqp.Publishing{
		ContentType: "text/plain",
		Body:        []byte(jobType),
	})
	if err != nil {
		return fmt.Errorf("amqp notify: %w", err)
	}
	return nil
}

// Listen consumes signals until ctx ends.
func (w *AMQPWaker) Listen(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	msgs, err := w.ch.Consume(w.queue, "", false, false, false, false, nil)
	if err != nil {
		w.logger.Error("amqp consume failed", "error", err)
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out
	}
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				signal(out)
				if err := msg.Ack(false); err != nil {
					w.logger.Warn("amqp ack failed", "error", err)
				}
			}
		}
	}()
	return out
}

// Close closes the channel and connection.
func (w *AMQPWaker) Close() error {
	if w == nil {
		return nil
	}
	if w.ch != nil {
		_ = w.ch.Close()
	}
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}
