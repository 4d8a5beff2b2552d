package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/delivery"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/payment"
)

// ErrMalformedMessage marks a payload that can never be processed.
var ErrMalformedMessage = errors.New("malformed message")

// HandlerFunc processes one message body.
type HandlerFunc func(ctx context.Context, body []byte) error

type orderService interface {
	SetPaidOrder(ctx context.Context, id int64) error
	CancelOrder(ctx context.Context, id int64) (*order.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error)
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	return nil
}

// NewPaymentHandler marks orders paid or cancels them.
func NewPaymentHandler(svc orderService) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var event payment.Event
		if err := decode(body, &event); err != nil {
			return err
		}
		if event.OrderID <= 0 {
			return fmt.Errorf("%w: order_id must be positive", ErrMalformedMessage)
		}

		switch event.Status {
		case payment.StatusCompleted:
			return svc.SetPaidOrder(ctx, event.OrderID)
		case payment.StatusRefunded, payment.StatusCanceled:
			_, err := svc.CancelOrder(ctx, event.OrderID)

			return err
		default:
			slog.WarnContext(ctx, "Unsupported payment status", "order_id", event.OrderID, "status", event.Status)

			return nil
		}
	}
}

// NewDeliveryHandler moves orders to SHIPPED or FINISHED.
func NewDeliveryHandler(svc orderService) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var event delivery.Event
		if err := decode(body, &event); err != nil {
			return err
		}
		if event.OrderID <= 0 {
			return fmt.Errorf("%w: order_id must be positive", ErrMalformedMessage)
		}

		var status order.Status
		switch event.Status {
		case delivery.StatusInTransit:
			status = order.StatusShipped
		case delivery.StatusDelivered:
			status = order.StatusFinished
		default:
			slog.WarnContext(ctx, "Unsupported delivery status", "order_id", event.OrderID, "status", event.Status)

			return nil
		}

		_, err := svc.UpdateOrderStatus(ctx, event.OrderID, status)

		return err
	}
}
