package inbox

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iinboxrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/inbox"
	"github.com/corray333/backend-labs/fulfillment/internal/transport/consumer"
	"github.com/spf13/viper"
)

// Worker retries consumed messages whose first processing failed with a transient error.
type Worker struct {
	inboxRepo    iinboxrepo.IInboxRepository
	handlers     map[string]consumer.HandlerFunc
	pollInterval time.Duration
	batchSize    int
	backoffBase  time.Duration
	stopCh       chan struct{}
}

// NewWorker creates a new inbox worker dispatching rows by queue name.
func NewWorker(
	inboxRepo iinboxrepo.IInboxRepository,
	handlers map[string]consumer.HandlerFunc,
) *Worker {
	pollIntervalSeconds := viper.GetInt("rabbitmq.inbox.poll_interval_seconds")
	if pollIntervalSeconds == 0 {
		pollIntervalSeconds = 10
	}

	batchSize := viper.GetInt("rabbitmq.inbox.batch_size")
	if batchSize == 0 {
		batchSize = 100
	}

	retryIntervalSeconds := viper.GetInt("rabbitmq.inbox.retry_interval_seconds")
	if retryIntervalSeconds == 0 {
		retryIntervalSeconds = 30
	}

	return &Worker{
		inboxRepo:    inboxRepo,
		handlers:     handlers,
		pollInterval: time.Duration(pollIntervalSeconds) * time.Second,
		batchSize:    batchSize,
		backoffBase:  time.Duration(retryIntervalSeconds) * time.Second,
		stopCh:       make(chan struct{}),
	}
}

// Start begins processing messages from the inbox.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Inbox worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Inbox worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Inbox worker stopped")

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

func (w *Worker) processMessages(ctx context.Context) {
	messages, err := w.inboxRepo.GetPendingMessages(ctx, w.batchSize)
	if err != nil {
		slog.Error("Failed to get pending messages from inbox", "error", err)

		return
	}

	if len(messages) == 0 {
		return
	}

	slog.Info("Processing inbox messages", "count", len(messages))

	for _, msg := range messages {
		handler, ok := w.handlers[msg.QueueName]
		if !ok {
			slog.Error("No handler for inbox message", "inbox_id", msg.ID, "queue", msg.QueueName)
			w.scheduleRetry(ctx, msg, errors.New("no handler for queue "+msg.QueueName))

			continue
		}

		err := handler(ctx, msg.Payload)
		switch {
		case err == nil:
			w.delete(ctx, msg, "Message successfully processed and removed from inbox")
		case errors.Is(err, consumer.ErrMalformedMessage) || domainerr.IsPermanent(err):
			slog.Warn("Inbox message can never succeed, dropping",
				"inbox_id", msg.ID,
				"message_id", msg.MessageID,
				"error", err,
			)
			w.delete(ctx, msg, "Message removed from inbox")
		default:
			w.scheduleRetry(ctx, msg, err)
		}
	}
}

func (w *Worker) delete(ctx context.Context, msg inbox.InboxMessage, logMsg string) {
	if err := w.inboxRepo.Delete(ctx, msg.ID); err != nil {
		slog.Error("Failed to delete message from inbox", "inbox_id", msg.ID, "error", err)

		return
	}
	slog.Info(logMsg, "inbox_id", msg.ID, "message_id", msg.MessageID, "queue", msg.QueueName)
}

// scheduleRetry bumps the retry counter and waits 2^n * base before the next attempt.
// Rows that reach max_retries stay in the table for inspection.
func (w *Worker) scheduleRetry(ctx context.Context, msg inbox.InboxMessage, processingErr error) {
	newRetryCount := msg.RetryCount + 1
	backoff := time.Duration(math.Pow(2, float64(newRetryCount))) * w.backoffBase
	nextRetryAt := time.Now().Add(backoff)

	if newRetryCount >= msg.MaxRetries {
		slog.Error("Max retries reached for inbox message",
			"inbox_id", msg.ID,
			"message_id", msg.MessageID,
			"error", processingErr,
		)
	} else {
		slog.Warn("Failed to process message from inbox, will retry",
			"inbox_id", msg.ID,
			"retry_count", newRetryCount,
			"next_retry", nextRetryAt,
			"error", processingErr,
		)
	}

	if err := w.inboxRepo.UpdateRetry(ctx, msg.ID, newRetryCount, processingErr.Error(), nextRetryAt); err != nil {
		slog.Error("Failed to update retry information", "inbox_id", msg.ID, "error", err)
	}
}
