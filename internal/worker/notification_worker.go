// Package worker runs the background loops: email delivery from the job queue
// and the scheduled overdue sweep.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/schoolworks/maintenance-desk/internal/config"
	"github.com/schoolworks/maintenance-desk/internal/mailer"
	"github.com/schoolworks/maintenance-desk/internal/observability"
)

// ErrMalformedJob marks a delivery that can never succeed.
var ErrMalformedJob = errors.New("malformed email job")

// EmailWorker drains the email queue into a Sender.
type EmailWorker struct {
	url         string
	queue       string
	prefetch    int
	sender      mailer.Sender
	metrics     *observability.Metrics
	logger      *zap.Logger
	sendTimeout time.Duration
}

// NewEmailWorker builds a consumer for cfg's queue.
func NewEmailWorker(cfg config.QueueConfig, sender mailer.Sender, metrics *observability.Metrics, logger *zap.Logger) *EmailWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}
	return &EmailWorker{
		url:         cfg.URL,
		queue:       cfg.EmailQueue,
		prefetch:    prefetch,
		sender:      sender,
		metrics:     metrics,
		logger:      logger.Named("email-worker"),
		sendTimeout: 30 * time.Second,
	}
}

// Run consumes until ctx is cancelled, redialling with backoff when the
// broker connection drops.
func (w *EmailWorker) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(w.url)
		if err != nil {
			w.logger.Warn("broker dial failed", zap.Duration("retry_in", backoff), zap.Error(err))
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = w.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		w.logger.Warn("consume loop ended; reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (w *EmailWorker) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(w.prefetch, 0, false); err != nil {
		w.logger.Warn("set qos failed", zap.Error(err))
	}
	if _, err := mailer.DeclareQueue(ch, w.queue); err != nil {
		return err
	}
	deliveries, err := ch.Consume(w.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	w.logger.Info("consuming email jobs", zap.String("queue", w.queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			w.deliver(ctx, d)
		}
	}
}

func (w *EmailWorker) deliver(ctx context.Context, d amqp.Delivery) {
	err := w.Handle(ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrMalformedJob):
		w.logger.Error("dropping email job", zap.Error(err))
		_ = d.Nack(false, false)
	default:
		// one retry through the broker, then give up
		requeue := !d.Redelivered
		w.logger.Warn("email delivery failed", zap.Bool("requeue", requeue), zap.Error(err))
		_ = d.Nack(false, requeue)
	}
}

// Handle decodes and sends one job.
func (w *EmailWorker) Handle(ctx context.Context, body []byte) error {
	var job mailer.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if len(job.Message.To) == 0 {
		return fmt.Errorf("%w: no recipients", ErrMalformedJob)
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()
	err := w.sender.Send(sendCtx, job.Message)
	w.metrics.RecordEmail(job.Kind+"_sent", err == nil)
	if err != nil {
		return fmt.Errorf("send %s email: %w", job.Kind, err)
	}
	w.logger.Info("email sent",
		zap.String("kind", job.Kind),
		zap.String("ticket_id", job.TicketID),
		zap.Int("recipients", len(job.Message.To)),
		zap.Duration("queued_for", time.Since(job.QueuedAt)))
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
