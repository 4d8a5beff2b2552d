package rabbitmq_test

import (
	"context"
	"errors"
	"testing"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/memory"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/rabbitmq/rabbitmqtest"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMessage = rabbitmq.Message{
	Exchange:      "inventory_exchange",
	RoutingKey:    "inventory",
	CorrelationID: "ORD-1",
	Body:          []byte(`{"sku":"SKU1","action":"subtract","quantity":2}`),
}

func declareInventory(ch rabbitmq.Channel) error {
	_, err := rabbitmq.DeclareBinding(ch, rabbitmq.Binding{
		Exchange:   "inventory_exchange",
		Queue:      "inventory_queue",
		RoutingKey: "inventory",
	})

	return err
}

func TestPublisherPublishes(t *testing.T) {
	ch := rabbitmqtest.NewChannel()
	store := memory.NewStore()

	p, err := rabbitmq.NewPublisher(rabbitmqtest.NewConnector(ch), memory.NewOutboxRepository(store), declareInventory)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), testMessage))

	msgs := ch.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "inventory_exchange", msgs[0].Exchange)
	assert.Equal(t, "inventory", msgs[0].RoutingKey)
	assert.Equal(t, "ORD-1", msgs[0].Msg.CorrelationId)
	assert.Equal(t, amqp.Persistent, msgs[0].Msg.DeliveryMode)
	assert.Equal(t, "application/json", msgs[0].Msg.ContentType)
	assert.Equal(t, amqp.ExchangeTopic, ch.Exchanges["inventory_exchange"])
	assert.Contains(t, ch.Queues, "inventory_queue")
	assert.Empty(t, store.OutboxMessages())
}

func TestPublisherReopensChannelOnce(t *testing.T) {
	first := rabbitmqtest.NewChannel()
	first.PublishErrs = []error{amqp.ErrClosed}
	second := rabbitmqtest.NewChannel()
	connector := rabbitmqtest.NewConnector(first, second)
	store := memory.NewStore()

	p, err := rabbitmq.NewPublisher(connector, memory.NewOutboxRepository(store), declareInventory)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), testMessage))

	assert.Empty(t, first.Messages())
	assert.Len(t, second.Messages(), 1)
	assert.Contains(t, second.Queues, "inventory_queue")
	assert.Zero(t, connector.Reconnects)
	assert.Empty(t, store.OutboxMessages())
}

func TestPublisherReconnectsWhenConnectionIsGone(t *testing.T) {
	first := rabbitmqtest.NewChannel()
	first.PublishErrs = []error{amqp.ErrClosed}
	dead := rabbitmqtest.NewChannel()
	dead.Closed = true
	fresh := rabbitmqtest.NewChannel()
	connector := rabbitmqtest.NewConnector(first, dead, fresh)

	p, err := rabbitmq.NewPublisher(connector, memory.NewOutboxRepository(memory.NewStore()), declareInventory)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), testMessage))

	assert.Equal(t, 1, connector.Reconnects)
	assert.Len(t, fresh.Messages(), 1)
}

func TestPublisherFallsBackToOutbox(t *testing.T) {
	first := rabbitmqtest.NewChannel()
	first.PublishErrs = []error{amqp.ErrClosed}
	second := rabbitmqtest.NewChannel()
	second.PublishErrs = []error{amqp.ErrClosed}
	store := memory.NewStore()

	p, err := rabbitmq.NewPublisher(rabbitmqtest.NewConnector(first, second), memory.NewOutboxRepository(store), nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), testMessage))

	rows := store.OutboxMessages()
	require.Len(t, rows, 1)
	assert.Equal(t, "inventory_exchange", rows[0].ExchangeName)
	assert.Equal(t, "inventory", rows[0].RoutingKey)
	assert.Equal(t, "ORD-1", rows[0].CorrelationID)
	assert.Equal(t, testMessage.Body, rows[0].Payload)
	assert.NotEmpty(t, rows[0].LastError)
	assert.Equal(t, 5, rows[0].MaxRetries)
}

func TestPublisherNonClosedErrorGoesToOutboxWithoutRetry(t *testing.T) {
	ch := rabbitmqtest.NewChannel()
	ch.PublishErrs = []error{errors.New("frame too large")}
	connector := rabbitmqtest.NewConnector(ch)
	store := memory.NewStore()

	p, err := rabbitmq.NewPublisher(connector, memory.NewOutboxRepository(store), nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), testMessage))

	assert.Len(t, store.OutboxMessages(), 1)
	assert.Len(t, connector.Opened(), 1)
}

func TestPublisherEnqueueSkipsBroker(t *testing.T) {
	ch := rabbitmqtest.NewChannel()
	store := memory.NewStore()

	p, err := rabbitmq.NewPublisher(rabbitmqtest.NewConnector(ch), memory.NewOutboxRepository(store), nil)
	require.NoError(t, err)

	require.NoError(t, p.Enqueue(context.Background(), testMessage))

	assert.Empty(t, ch.Messages())
	rows := store.OutboxMessages()
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].LastError)
}

func TestDeclareBindingWithDeadLetter(t *testing.T) {
	ch := rabbitmqtest.NewChannel()

	queue, err := rabbitmq.DeclareBinding(ch, rabbitmq.Binding{
		Exchange:   "payments_exchange",
		Queue:      "orders.payments",
		RoutingKey: "payment.#",
		DeadLetter: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "orders.payments", queue.Name)
	assert.Equal(t, amqp.ExchangeFanout, ch.Exchanges["payments_exchange.dlx"])
	assert.Contains(t, ch.Queues, "orders.payments.dlq")
	assert.Equal(t, "payments_exchange.dlx", ch.Queues["orders.payments"]["x-dead-letter-exchange"])
	assert.Contains(t, ch.Bindings, rabbitmqtest.Binding{
		Queue: "orders.payments", RoutingKey: "payment.#", Exchange: "payments_exchange",
	})
	assert.Contains(t, ch.Bindings, rabbitmqtest.Binding{
		Queue: "orders.payments.dlq", RoutingKey: "", Exchange: "payments_exchange.dlx",
	})
}

func TestConsumeSetsPrefetch(t *testing.T) {
	ch := rabbitmqtest.NewChannel()

	msgs, err := rabbitmq.Consume(ch, rabbitmq.ConsumeConfig{Queue: "orders.payments", Prefetch: 10})
	require.NoError(t, err)

	assert.NotNil(t, msgs)
	assert.Equal(t, 10, ch.Prefetch)
}
