package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderstatus"
	"github.com/spf13/viper"
)

// OrderStatusRabbitMQRepository notifies downstream services about confirmed and canceled orders.
type OrderStatusRabbitMQRepository struct {
	publisher  *rabbitmq.Publisher
	exchange   string
	routingKey string
}

func NewOrderStatusRabbitMQRepository(
	connector rabbitmq.Connector,
	outboxRepo rabbitmq.OutboxInserter,
) (*OrderStatusRabbitMQRepository, error) {
	binding := rabbitmq.Binding{
		Exchange:   viper.GetString("rabbitmq.orders.exchange"),
		Queue:      viper.GetString("rabbitmq.orders.queue"),
		RoutingKey: viper.GetString("rabbitmq.orders.routing_key"),
	}
	if binding.Exchange == "" {
		binding.Exchange = "orders_exchange"
	}
	if binding.Queue == "" {
		binding.Queue = "orders_queue"
	}
	if binding.RoutingKey == "" {
		binding.RoutingKey = "orders"
	}

	p, err := rabbitmq.NewPublisher(connector, outboxRepo, func(ch rabbitmq.Channel) error {
		_, err := rabbitmq.DeclareBinding(ch, binding)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create order status publisher: %w", err)
	}

	return &OrderStatusRabbitMQRepository{
		publisher:  p,
		exchange:   binding.Exchange,
		routingKey: binding.RoutingKey,
	}, nil
}

func (r *OrderStatusRabbitMQRepository) PublishOrderStatus(ctx context.Context, event orderstatus.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = r.publisher.Publish(ctx, rabbitmq.Message{
		Exchange:      r.exchange,
		RoutingKey:    r.routingKey,
		CorrelationID: strconv.FormatInt(event.OrderID, 10),
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish order status: %w", err)
	}

	slog.InfoContext(ctx, "Order status published", "order_id", event.OrderID, "status", event.Status)

	return nil
}

func (r *OrderStatusRabbitMQRepository) Close() error {
	return r.publisher.Close()
}
