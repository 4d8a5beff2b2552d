package inbox

import (
	"context"
	"errors"
	"testing"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/memory"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/inbox"
	"github.com/corray333/backend-labs/fulfillment/internal/transport/consumer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insert(t *testing.T, repo *memory.InboxRepository, messageID, queue string, retryCount, maxRetries int) {
	t.Helper()

	require.NoError(t, repo.Insert(context.Background(), inbox.InboxMessage{
		MessageID:  messageID,
		QueueName:  queue,
		Payload:    []byte(`{"order_id":1,"status":"completed"}`),
		RetryCount: retryCount,
		MaxRetries: maxRetries,
	}))
}

func TestProcessMessages(t *testing.T) {
	tests := []struct {
		name      string
		handleErr error
		wantRows  int
		wantRetry int
	}{
		{name: "success deletes", handleErr: nil, wantRows: 0},
		{name: "permanent deletes", handleErr: domainerr.ErrInvalidAction, wantRows: 0},
		{name: "malformed deletes", handleErr: consumer.ErrMalformedMessage, wantRows: 0},
		{name: "transient retries", handleErr: errors.New("database is down"), wantRows: 1, wantRetry: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			repo := memory.NewInboxRepository(store)
			insert(t, repo, "m-1", "orders.payments", 0, 5)

			var got []string
			w := NewWorker(repo, map[string]consumer.HandlerFunc{
				"orders.payments": func(_ context.Context, body []byte) error {
					got = append(got, string(body))

					return tt.handleErr
				},
			})

			w.processMessages(context.Background())

			assert.Equal(t, []string{`{"order_id":1,"status":"completed"}`}, got)
			rows := store.InboxMessages()
			require.Len(t, rows, tt.wantRows)
			if tt.wantRows > 0 {
				assert.Equal(t, tt.wantRetry, rows[0].RetryCount)
				assert.NotEmpty(t, rows[0].LastError)
			}
		})
	}
}

func TestProcessMessagesDispatchesByQueue(t *testing.T) {
	store := memory.NewStore()
	repo := memory.NewInboxRepository(store)
	insert(t, repo, "m-1", "orders.payments", 0, 5)
	insert(t, repo, "m-2", "orders.deliveries", 0, 5)
	insert(t, repo, "m-3", "unknown.queue", 0, 5)

	var queues []string
	handler := func(queue string) consumer.HandlerFunc {
		return func(context.Context, []byte) error {
			queues = append(queues, queue)

			return nil
		}
	}
	w := NewWorker(repo, map[string]consumer.HandlerFunc{
		"orders.payments":   handler("orders.payments"),
		"orders.deliveries": handler("orders.deliveries"),
	})

	w.processMessages(context.Background())

	assert.Equal(t, []string{"orders.payments", "orders.deliveries"}, queues)
	rows := store.InboxMessages()
	require.Len(t, rows, 1)
	assert.Equal(t, "unknown.queue", rows[0].QueueName)
	assert.Equal(t, 1, rows[0].RetryCount)
}

func TestExhaustedMessagesAreNotRetried(t *testing.T) {
	store := memory.NewStore()
	repo := memory.NewInboxRepository(store)
	insert(t, repo, "m-1", "orders.payments", 4, 5)

	calls := 0
	w := NewWorker(repo, map[string]consumer.HandlerFunc{
		"orders.payments": func(context.Context, []byte) error {
			calls++

			return errors.New("still down")
		},
	})

	w.processMessages(context.Background())
	rows := store.InboxMessages()
	require.Len(t, rows, 1)
	assert.Equal(t, 5, rows[0].RetryCount)

	pending, err := repo.GetPendingMessages(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, 1, calls)
}

func TestDuplicateMessageIDIsIgnored(t *testing.T) {
	store := memory.NewStore()
	repo := memory.NewInboxRepository(store)
	insert(t, repo, "m-1", "orders.payments", 0, 5)
	insert(t, repo, "m-1", "orders.payments", 0, 5)

	assert.Len(t, store.InboxMessages(), 1)
}
