package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/inbox"
	"github.com/corray333/backend-labs/fulfillment/pkg/metrics"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

type inboxInserter interface {
	Insert(ctx context.Context, msg inbox.InboxMessage) error
}

// Config describes what a subscriber consumes and how it acknowledges.
type Config struct {
	Binding     rabbitmq.Binding
	ConsumerTag string
	Prefetch    int
	Workers     int
	// AckAlways acknowledges every message, logging failures instead of dead-lettering or retrying.
	// Subscribers built from configuration default to it.
	AckAlways       bool
	InboxMaxRetries int
}

// Subscriber consumes one queue. Messages of one order are handled by one shard goroutine, in order.
type Subscriber struct {
	connector rabbitmq.Connector
	inboxRepo inboxInserter
	handler   HandlerFunc
	cfg       Config

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSubscriber creates a subscriber. Zero values in cfg are replaced with defaults.
func NewSubscriber(connector rabbitmq.Connector, inboxRepo inboxInserter, cfg Config, handler HandlerFunc) *Subscriber {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = cfg.Workers * 10
	}
	if cfg.InboxMaxRetries <= 0 {
		cfg.InboxMaxRetries = 5
	}
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = "fulfillment-" + cfg.Binding.Queue
	}
	cfg.Binding.DeadLetter = true

	return &Subscriber{
		connector: connector,
		inboxRepo: inboxRepo,
		handler:   handler,
		cfg:       cfg,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func configFromViper(prefix, exchange, queue, routingKey string) Config {
	binding := rabbitmq.Binding{
		Exchange:   viper.GetString(prefix + ".exchange"),
		Queue:      viper.GetString(prefix + ".queue"),
		RoutingKey: viper.GetString(prefix + ".routing_key"),
	}
	if binding.Exchange == "" {
		binding.Exchange = exchange
	}
	if binding.Queue == "" {
		binding.Queue = queue
	}
	if binding.RoutingKey == "" {
		binding.RoutingKey = routingKey
	}

	ackAlways := true
	if viper.IsSet("rabbitmq.consumer.ack_always") {
		ackAlways = viper.GetBool("rabbitmq.consumer.ack_always")
	}

	return Config{
		Binding:         binding,
		Prefetch:        viper.GetInt("rabbitmq.consumer.prefetch"),
		Workers:         viper.GetInt("rabbitmq.consumer.workers"),
		AckAlways:       ackAlways,
		InboxMaxRetries: viper.GetInt("rabbitmq.inbox.max_retries"),
	}
}

// NewPaymentSubscriber consumes payment events.
func NewPaymentSubscriber(connector rabbitmq.Connector, inboxRepo inboxInserter, svc orderService) *Subscriber {
	cfg := configFromViper("rabbitmq.payments", "payments_exchange", "orders.payments", "payment.#")

	return NewSubscriber(connector, inboxRepo, cfg, NewPaymentHandler(svc))
}

// NewDeliverySubscriber consumes delivery events.
func NewDeliverySubscriber(connector rabbitmq.Connector, inboxRepo inboxInserter, svc orderService) *Subscriber {
	cfg := configFromViper("rabbitmq.deliveries", "deliveries_exchange", "orders.deliveries", "delivery.#")

	return NewSubscriber(connector, inboxRepo, cfg, NewDeliveryHandler(svc))
}

// Queue returns the consumed queue name.
func (s *Subscriber) Queue() string {
	return s.cfg.Binding.Queue
}

// Handler returns the message handler, for re-dispatching inbox rows.
func (s *Subscriber) Handler() HandlerFunc {
	return s.handler
}

// Run declares the topology and consumes until Shutdown is called or the delivery channel closes.
func (s *Subscriber) Run(ctx context.Context) error {
	defer close(s.done)

	ch, err := s.connector.NewChannel()
	if err != nil {
		return fmt.Errorf("failed to open channel for %s: %w", s.cfg.Binding.Queue, err)
	}
	defer func() {
		if err := ch.Close(); err != nil && !rabbitmq.IsClosedError(err) {
			slog.Error("Failed to close consumer channel", "queue", s.cfg.Binding.Queue, "error", err)
		}
	}()

	queue, err := rabbitmq.DeclareBinding(ch, s.cfg.Binding)
	if err != nil {
		return fmt.Errorf("failed to declare %s: %w", s.cfg.Binding.Queue, err)
	}

	msgs, err := rabbitmq.Consume(ch, rabbitmq.ConsumeConfig{
		Queue:    queue.Name,
		Consumer: s.cfg.ConsumerTag,
		Prefetch: s.cfg.Prefetch,
	})
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", queue.Name, err)
	}

	slog.Info("Consumer started",
		"queue", queue.Name,
		"exchange", s.cfg.Binding.Exchange,
		"consumer_tag", s.cfg.ConsumerTag,
		"workers", s.cfg.Workers,
	)

	shards := make([]chan amqp.Delivery, s.cfg.Workers)
	var g errgroup.Group
	for i := range shards {
		shards[i] = make(chan amqp.Delivery)
		g.Go(func() error {
			for msg := range shards[i] {
				s.process(ctx, msg)
			}

			return nil
		})
	}

	s.dispatch(ctx, msgs, shards)

	for _, shard := range shards {
		close(shard)
	}
	_ = g.Wait()

	return nil
}

func (s *Subscriber) dispatch(ctx context.Context, msgs <-chan amqp.Delivery, shards []chan amqp.Delivery) {
	for {
		select {
		case <-s.stop:
			slog.Info("Stopping consumer", "queue", s.cfg.Binding.Queue)

			return
		case <-ctx.Done():
			slog.Info("Consumer context done", "queue", s.cfg.Binding.Queue)

			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Info("Message channel closed", "queue", s.cfg.Binding.Queue)

				return
			}

			orderID, err := peekOrderID(msg.Body)
			if err != nil {
				s.settle(ctx, msg, err)

				continue
			}
			shards[shardIndex(orderID, len(shards))] <- msg
		}
	}
}

func peekOrderID(body []byte) (int64, error) {
	var probe struct {
		OrderID int64 `json:"order_id"`
	}
	if err := decode(body, &probe); err != nil {
		return 0, err
	}

	return probe.OrderID, nil
}

func shardIndex(orderID int64, shards int) int {
	idx := orderID % int64(shards)
	if idx < 0 {
		idx = -idx
	}

	return int(idx)
}

func (s *Subscriber) process(ctx context.Context, msg amqp.Delivery) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, rabbitmq.HeaderCarrier(msg.Headers))
	ctx, span := otel.Tracer("consumer").Start(ctx, "Subscriber.process")
	defer span.End()

	s.settle(ctx, msg, s.handler(ctx, msg.Body))
}

// settle acknowledges the delivery according to the handler outcome.
func (s *Subscriber) settle(ctx context.Context, msg amqp.Delivery, handleErr error) {
	queue := s.cfg.Binding.Queue
	outcome := metrics.OutcomeAcked

	switch {
	case handleErr == nil:
		s.ack(msg)
	case s.cfg.AckAlways:
		slog.ErrorContext(ctx, "Failed to process message", "queue", queue, "error", handleErr)
		s.ack(msg)
	case isPermanent(handleErr):
		slog.WarnContext(ctx, "Rejecting message to dead-letter queue", "queue", queue, "error", handleErr)
		outcome = metrics.OutcomeDeadLetter
		if err := msg.Nack(false, false); err != nil {
			slog.ErrorContext(ctx, "Failed to nack message", "queue", queue, "error", err)
		}
	default:
		outcome = metrics.OutcomeInboxed
		if err := s.toInbox(ctx, msg, handleErr); err != nil {
			slog.ErrorContext(ctx, "Failed to store message in inbox, requeueing", "queue", queue, "error", err)
			outcome = metrics.OutcomeFailed
			if err := msg.Nack(false, true); err != nil {
				slog.ErrorContext(ctx, "Failed to nack message", "queue", queue, "error", err)
			}
		} else {
			slog.WarnContext(ctx, "Message stored in inbox for retry", "queue", queue, "error", handleErr)
			s.ack(msg)
		}
	}

	metrics.ConsumedMessages.WithLabelValues(queue, outcome).Inc()
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrMalformedMessage) || domainerr.IsPermanent(err)
}

func (s *Subscriber) ack(msg amqp.Delivery) {
	if err := msg.Ack(false); err != nil {
		slog.Error("Failed to ack message", "queue", s.cfg.Binding.Queue, "error", err)
	}
}

func (s *Subscriber) toInbox(ctx context.Context, msg amqp.Delivery, handleErr error) error {
	messageID := msg.MessageId
	if messageID == "" {
		messageID = uuid.NewString()
	}

	return s.inboxRepo.Insert(ctx, inbox.InboxMessage{
		MessageID:   messageID,
		QueueName:   s.cfg.Binding.Queue,
		RoutingKey:  msg.RoutingKey,
		Payload:     msg.Body,
		ContentType: msg.ContentType,
		MaxRetries:  s.cfg.InboxMaxRetries,
		LastError:   handleErr.Error(),
		NextRetryAt: time.Now(),
	})
}

// Shutdown stops consuming and waits for in-flight messages. Repeated calls only wait.
func (s *Subscriber) Shutdown() error {
	s.stopOnce.Do(func() {
		slog.Info("Shutting down consumer", "queue", s.cfg.Binding.Queue)
		close(s.stop)
	})

	select {
	case <-s.done:
		slog.Info("Consumer stopped successfully", "queue", s.cfg.Binding.Queue)
	case <-time.After(10 * time.Second):
		slog.Warn("Consumer shutdown timeout", "queue", s.cfg.Binding.Queue)
	}

	return nil
}

// HandlersByQueue maps queue names to handlers for the inbox worker.
func HandlersByQueue(subscribers ...*Subscriber) map[string]HandlerFunc {
	res := make(map[string]HandlerFunc, len(subscribers))
	for _, s := range subscribers {
		res[s.Queue()] = s.Handler()
	}

	return res
}
