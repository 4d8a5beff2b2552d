package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/outbox"
	"github.com/corray333/backend-labs/fulfillment/pkg/metrics"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
)

const contentTypeJSON = "application/json"

// OutboxInserter stores messages that could not be published.
type OutboxInserter interface {
	Insert(ctx context.Context, msg outbox.OutboxMessage) error
}

// Message is an outgoing JSON message.
type Message struct {
	Exchange      string
	RoutingKey    string
	CorrelationID string
	Body          []byte
}

// Publisher publishes on a dedicated channel. A closed connection is re-dialed once and the
// publish retried once; a message that still cannot be sent is stored in the outbox.
type Publisher struct {
	connector  Connector
	outbox     OutboxInserter
	setup      func(Channel) error
	maxRetries int

	mu sync.Mutex
	ch Channel
}

// NewPublisher opens a channel and runs setup on it. Setup runs again on every reopened channel.
func NewPublisher(connector Connector, outboxRepo OutboxInserter, setup func(Channel) error) (*Publisher, error) {
	maxRetries := viper.GetInt("rabbitmq.outbox.max_retries")
	if maxRetries == 0 {
		maxRetries = 5
	}

	p := &Publisher{
		connector:  connector,
		outbox:     outboxRepo,
		setup:      setup,
		maxRetries: maxRetries,
	}
	if err := p.open(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Publisher) open() error {
	ch, err := p.connector.NewChannel()
	if err != nil {
		return err
	}
	if p.setup != nil {
		if err := p.setup(ch); err != nil {
			_ = ch.Close()

			return fmt.Errorf("failed to declare topology: %w", err)
		}
	}
	p.ch = ch

	return nil
}

// reopen tries a new channel on the current connection first and re-dials only when that fails.
func (p *Publisher) reopen() error {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}

	err := p.open()
	if err == nil || !IsClosedError(err) {
		return err
	}

	if err := p.connector.Reconnect(); err != nil {
		return err
	}

	return p.open()
}

func (p *Publisher) send(ctx context.Context, msg Message) error {
	if p.ch == nil {
		return amqp.ErrClosed
	}

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, HeaderCarrier(headers))

	return p.ch.Publish(msg.Exchange, msg.RoutingKey, false, false, amqp.Publishing{
		ContentType:   contentTypeJSON,
		DeliveryMode:  amqp.Persistent,
		CorrelationId: msg.CorrelationID,
		Headers:       headers,
		Body:          msg.Body,
	})
}

// Publish sends the message. It only fails when the outbox fallback fails too.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	p.mu.Lock()
	err := p.send(ctx, msg)
	if IsClosedError(err) {
		slog.Warn("RabbitMQ channel closed, reconnecting", "exchange", msg.Exchange, "error", err)
		if reopenErr := p.reopen(); reopenErr != nil {
			err = errors.Join(err, reopenErr)
		} else {
			err = p.send(ctx, msg)
		}
	}
	p.mu.Unlock()

	if err == nil {
		metrics.PublishedMessages.WithLabelValues(msg.Exchange, metrics.OutcomePublished).Inc()

		return nil
	}

	slog.Warn("Failed to publish message, storing in outbox",
		"exchange", msg.Exchange,
		"routing_key", msg.RoutingKey,
		"correlation_id", msg.CorrelationID,
		"error", err,
	)

	return p.enqueue(ctx, msg, err.Error())
}

// Enqueue stores the message in the outbox without trying the broker.
func (p *Publisher) Enqueue(ctx context.Context, msg Message) error {
	return p.enqueue(ctx, msg, "")
}

func (p *Publisher) enqueue(ctx context.Context, msg Message, lastError string) error {
	err := p.outbox.Insert(ctx, outbox.OutboxMessage{
		ExchangeName:  msg.Exchange,
		RoutingKey:    msg.RoutingKey,
		Payload:       msg.Body,
		ContentType:   contentTypeJSON,
		CorrelationID: msg.CorrelationID,
		MaxRetries:    p.maxRetries,
		LastError:     lastError,
	})
	if err != nil {
		metrics.PublishedMessages.WithLabelValues(msg.Exchange, metrics.OutcomeFailed).Inc()

		return fmt.Errorf("failed to insert message into outbox: %w", err)
	}
	metrics.PublishedMessages.WithLabelValues(msg.Exchange, metrics.OutcomeOutboxed).Inc()

	return nil
}

// Close closes the channel.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil

	return err
}
