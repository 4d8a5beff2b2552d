package outbox

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/ioutboxrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/outbox"
	"github.com/corray333/backend-labs/fulfillment/pkg/metrics"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
)

// Worker delivers stored messages: failed publishes and compensating commands.
type Worker struct {
	outboxRepo   ioutboxrepo.IOutboxRepository
	connector    rabbitmq.Connector
	ch           rabbitmq.Channel
	pollInterval time.Duration
	batchSize    int
	backoffBase  time.Duration
	stopCh       chan struct{}
}

// NewWorker creates a new outbox worker.
func NewWorker(
	outboxRepo ioutboxrepo.IOutboxRepository,
	connector rabbitmq.Connector,
) *Worker {
	pollIntervalSeconds := viper.GetInt("rabbitmq.outbox.poll_interval_seconds")
	if pollIntervalSeconds == 0 {
		pollIntervalSeconds = 10
	}

	batchSize := viper.GetInt("rabbitmq.outbox.batch_size")
	if batchSize == 0 {
		batchSize = 100
	}

	retryIntervalSeconds := viper.GetInt("rabbitmq.outbox.retry_interval_seconds")
	if retryIntervalSeconds == 0 {
		retryIntervalSeconds = 30
	}

	return &Worker{
		outboxRepo:   outboxRepo,
		connector:    connector,
		pollInterval: time.Duration(pollIntervalSeconds) * time.Second,
		batchSize:    batchSize,
		backoffBase:  time.Duration(retryIntervalSeconds) * time.Second,
		stopCh:       make(chan struct{}),
	}
}

// Start begins processing messages from the outbox.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Outbox worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Outbox worker shutting down")
			w.closeChannel()

			return
		case <-w.stopCh:
			slog.Info("Outbox worker stopped")
			w.closeChannel()

			return
		case <-ticker.C:
			w.processMessages(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) closeChannel() {
	if w.ch != nil {
		_ = w.ch.Close()
		w.ch = nil
	}
}

// channel returns the worker's channel, opening one (and re-dialing if needed) when missing.
func (w *Worker) channel() (rabbitmq.Channel, error) {
	if w.ch != nil {
		return w.ch, nil
	}

	ch, err := w.connector.NewChannel()
	if rabbitmq.IsClosedError(err) {
		if err := w.connector.Reconnect(); err != nil {
			return nil, err
		}
		ch, err = w.connector.NewChannel()
	}
	if err != nil {
		return nil, err
	}
	w.ch = ch

	return ch, nil
}

// processMessages retrieves and publishes pending messages from the outbox.
func (w *Worker) processMessages(ctx context.Context) {
	messages, err := w.outboxRepo.GetPendingMessages(ctx, w.batchSize)
	if err != nil {
		slog.Error("Failed to get pending messages from outbox", "error", err)

		return
	}

	if len(messages) == 0 {
		return
	}

	slog.Info("Processing outbox messages", "count", len(messages))

	for _, msg := range messages {
		if err := w.publish(msg); err != nil {
			if rabbitmq.IsClosedError(err) {
				w.closeChannel()
			}
			w.scheduleRetry(ctx, msg, err)

			continue
		}

		metrics.PublishedMessages.WithLabelValues(msg.ExchangeName, metrics.OutcomePublished).Inc()
		if err := w.outboxRepo.Delete(ctx, msg.ID); err != nil {
			slog.Error("Failed to delete message from outbox after successful publish",
				"outbox_id", msg.ID,
				"error", err,
			)
		} else {
			slog.Info("Message successfully published and removed from outbox",
				"outbox_id", msg.ID,
				"correlation_id", msg.CorrelationID,
			)
		}
	}
}

func (w *Worker) publish(msg outbox.OutboxMessage) error {
	ch, err := w.channel()
	if err != nil {
		return err
	}

	return ch.Publish(
		msg.ExchangeName,
		msg.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:   msg.ContentType,
			DeliveryMode:  amqp.Persistent,
			CorrelationId: msg.CorrelationID,
			Body:          msg.Payload,
		},
	)
}

// scheduleRetry bumps the retry counter and waits 2^n * base before the next attempt.
func (w *Worker) scheduleRetry(ctx context.Context, msg outbox.OutboxMessage, publishErr error) {
	newRetryCount := msg.RetryCount + 1
	backoff := time.Duration(math.Pow(2, float64(newRetryCount))) * w.backoffBase
	nextRetryAt := time.Now().Add(backoff)

	slog.Warn("Failed to publish message from outbox, will retry",
		"outbox_id", msg.ID,
		"retry_count", newRetryCount,
		"max_retries", msg.MaxRetries,
		"next_retry", nextRetryAt,
		"error", publishErr,
	)

	if err := w.outboxRepo.UpdateRetry(ctx, msg.ID, newRetryCount, publishErr.Error(), nextRetryAt); err != nil {
		slog.Error("Failed to update retry information", "outbox_id", msg.ID, "error", err)
	}
}
