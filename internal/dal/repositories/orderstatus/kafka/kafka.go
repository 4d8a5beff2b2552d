package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/kafka"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderstatus"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// OrderStatusKafkaRepository writes order status events to a Kafka topic keyed by order id.
type OrderStatusKafkaRepository struct {
	writer kafka.MessageWriter
	topic  string
}

func NewOrderStatusKafkaRepository(client *kafka.Client) *OrderStatusKafkaRepository {
	topic := viper.GetString("kafka.order_status_topic")
	if topic == "" {
		topic = "orders.status"
	}

	return NewOrderStatusKafkaRepositoryWithWriter(client.NewWriter(topic), topic)
}

func NewOrderStatusKafkaRepositoryWithWriter(writer kafka.MessageWriter, topic string) *OrderStatusKafkaRepository {
	return &OrderStatusKafkaRepository{writer: writer, topic: topic}
}

func (r *OrderStatusKafkaRepository) PublishOrderStatus(ctx context.Context, event orderstatus.Event) error {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]kafkago.Header, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}

	if err := kafka.PublishJSON(ctx, r.writer, strconv.FormatInt(event.OrderID, 10), headers, event); err != nil {
		return fmt.Errorf("failed to write order status to %s: %w", r.topic, err)
	}

	slog.InfoContext(ctx, "Order status written to Kafka", "topic", r.topic, "order_id", event.OrderID, "status", event.Status)

	return nil
}

func (r *OrderStatusKafkaRepository) Close() error {
	return r.writer.Close()
}
