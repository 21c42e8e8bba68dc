package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Job is one email waiting for delivery.
type Job struct {
	Kind     string    `json:"kind"`
	TicketID string    `json:"ticket_id,omitempty"`
	Message  Message   `json:"message"`
	QueuedAt time.Time `json:"queued_at"`
}

// Queue accepts email jobs for asynchronous delivery.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// AMQPQueue publishes jobs to a durable RabbitMQ queue. The connection is
// opened lazily and re-dialled after a failure.
type AMQPQueue struct {
	url     string
	name    string
	timeout time.Duration
	logger  *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPQueue builds a publisher.
func NewAMQPQueue(url, name string, timeout time.Duration, logger *zap.Logger) *AMQPQueue {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AMQPQueue{url: url, name: name, timeout: timeout, logger: logger}
}

// Enqueue marshals and publishes job as a persistent message.
func (q *AMQPQueue) Enqueue(ctx context.Context, job Job) error {
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal email job: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ch, err := q.channel()
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	err = ch.PublishWithContext(pubCtx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    job.QueuedAt,
		Type:         job.Kind,
		Body:         body,
	})
	if err != nil {
		q.reset()
		return fmt.Errorf("publish email job: %w", err)
	}
	return nil
}

// caller holds q.mu
func (q *AMQPQueue) channel() (*amqp.Channel, error) {
	if q.ch != nil && !q.ch.IsClosed() {
		return q.ch, nil
	}
	q.reset()

	conn, err := amqp.Dial(q.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := DeclareQueue(ch, q.name); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	q.conn, q.ch = conn, ch
	return ch, nil
}

// caller holds q.mu
func (q *AMQPQueue) reset() {
	if q.ch != nil {
		_ = q.ch.Close()
		q.ch = nil
	}
	if q.conn != nil {
		_ = q.conn.Close()
		q.conn = nil
	}
}

// Close releases the broker connection.
func (q *AMQPQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reset()
}

// DeclareQueue declares the durable email queue; publisher and consumer share it.
func DeclareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	queue, err := ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("queue declare: %w", err)
	}
	return queue, nil
}

// DirectQueue delivers jobs in a background goroutine without a broker. It
// is used when AMQP_URL is not configured.
type DirectQueue struct {
	sender  Sender
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDirectQueue builds a broker-less queue.
func NewDirectQueue(sender Sender, logger *zap.Logger, timeout time.Duration) *DirectQueue {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DirectQueue{sender: sender, logger: logger, timeout: timeout}
}

// Enqueue starts delivery and returns immediately.
func (q *DirectQueue) Enqueue(_ context.Context, job Job) error {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		defer cancel()
		if err := q.sender.Send(ctx, job.Message); err != nil {
			q.logger.Warn("email delivery failed",
				zap.String("kind", job.Kind),
				zap.String("ticket_id", job.TicketID),
				zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until in-flight deliveries finish.
func (q *DirectQueue) Wait() {
	q.wg.Wait()
}
