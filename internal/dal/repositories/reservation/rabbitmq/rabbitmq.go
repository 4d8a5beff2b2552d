package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/inventory"
	"github.com/spf13/viper"
)

type publisher interface {
	Publish(ctx context.Context, msg rabbitmq.Message) error
	Enqueue(ctx context.Context, msg rabbitmq.Message) error
	Close() error
}

// ReservationRabbitMQRepository sends stock reservation commands to the inventory service.
type ReservationRabbitMQRepository struct {
	publisher  publisher
	exchange   string
	routingKey string
}

// NewReservationRabbitMQRepository declares the inventory exchange, queue and binding on a
// dedicated channel.
func NewReservationRabbitMQRepository(
	connector rabbitmq.Connector,
	outboxRepo rabbitmq.OutboxInserter,
) (*ReservationRabbitMQRepository, error) {
	binding := rabbitmq.Binding{
		Exchange:   viper.GetString("rabbitmq.inventory.exchange"),
		Queue:      viper.GetString("rabbitmq.inventory.queue"),
		RoutingKey: viper.GetString("rabbitmq.inventory.routing_key"),
	}
	if binding.Exchange == "" {
		binding.Exchange = "inventory_exchange"
	}
	if binding.Queue == "" {
		binding.Queue = "inventory_queue"
	}
	if binding.RoutingKey == "" {
		binding.RoutingKey = "inventory"
	}

	p, err := rabbitmq.NewPublisher(connector, outboxRepo, func(ch rabbitmq.Channel) error {
		_, err := rabbitmq.DeclareBinding(ch, binding)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create inventory publisher: %w", err)
	}

	return &ReservationRabbitMQRepository{
		publisher:  p,
		exchange:   binding.Exchange,
		routingKey: binding.RoutingKey,
	}, nil
}

func (r *ReservationRabbitMQRepository) message(cmd inventory.Command) (rabbitmq.Message, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return rabbitmq.Message{}, err
	}

	return rabbitmq.Message{
		Exchange:      r.exchange,
		RoutingKey:    r.routingKey,
		CorrelationID: cmd.OrderNumber,
		Body:          body,
	}, nil
}

// PublishReservation publishes a reservation command.
func (r *ReservationRabbitMQRepository) PublishReservation(ctx context.Context, cmd inventory.Command) error {
	msg, err := r.message(cmd)
	if err != nil {
		return err
	}
	if err := r.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish reservation %s: %w", cmd, err)
	}

	slog.InfoContext(ctx, "Reservation published", "command", cmd.String(), "order_number", cmd.OrderNumber)

	return nil
}

// EnqueueReservation stores the command in the outbox for the outbox worker to deliver.
func (r *ReservationRabbitMQRepository) EnqueueReservation(ctx context.Context, cmd inventory.Command) error {
	msg, err := r.message(cmd)
	if err != nil {
		return err
	}
	if err := r.publisher.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue reservation %s: %w", cmd, err)
	}

	slog.InfoContext(ctx, "Reservation enqueued", "command", cmd.String(), "order_number", cmd.OrderNumber)

	return nil
}

func (r *ReservationRabbitMQRepository) Close() error {
	return r.publisher.Close()
}
