package ordersvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/inventory"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderstatus"
	"go.opentelemetry.io/otel"
)

// UpdateOrderStatus moves the order to status through the generic status path.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.UpdateOrderStatus")
	defer span.End()

	o, changed, err := s.mutateStatus(ctx, id, func(o *order.Order) (bool, error) {
		return o.ChangeStatus(s.sm, status)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		slog.InfoContext(ctx, "Order status updated", "order_id", id, "status", o.Status)
	}

	return o, nil
}

// ConfirmOrder confirms a PENDING order and announces it with its total.
func (s *OrderService) ConfirmOrder(ctx context.Context, id int64) (*order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.ConfirmOrder")
	defer span.End()

	o, _, err := s.mutateStatus(ctx, id, func(o *order.Order) (bool, error) {
		changed, err := o.Apply(s.sm, order.EventConfirm)
		if err != nil {
			return false, err
		}

		return changed, s.attachTotal(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Order confirmed", "order_id", o.ID, "total_amount", o.TotalAmount)

	event := orderstatus.Event{OrderID: o.ID, Amount: o.TotalAmount, Status: orderstatus.StatusConfirmed}
	if err := s.statuses.PublishOrderStatus(ctx, event); err != nil {
		return nil, fmt.Errorf("order %d confirmed but status event was lost: %w", o.ID, err)
	}

	return o, nil
}

// CancelOrder cancels a PENDING or CONFIRMED order, restocks its items and announces it.
func (s *OrderService) CancelOrder(ctx context.Context, id int64) (*order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.CancelOrder")
	defer span.End()

	o, _, err := s.mutateStatus(ctx, id, func(o *order.Order) (bool, error) {
		return o.Apply(s.sm, order.EventCancel)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Order canceled", "order_id", o.ID)

	var errs []error
	for _, item := range o.OrderItems {
		cmd := inventory.Command{
			SKU:         item.ProductSKU,
			Action:      inventory.ActionAdd,
			Quantity:    item.Quantity,
			OrderNumber: o.OrderNumber,
		}
		if err := s.reservations.PublishReservation(ctx, cmd); err != nil {
			errs = append(errs, err)
		}
	}

	event := orderstatus.Event{OrderID: o.ID, Amount: 0, Status: orderstatus.StatusCanceled}
	if err := s.statuses.PublishOrderStatus(ctx, event); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("order %d canceled but notifications were lost: %w", o.ID, err)
	}

	s.attachTotalOrZero(ctx, o)

	return o, nil
}

// SetPaidOrder marks the order as paid. Replays are no-ops.
func (s *OrderService) SetPaidOrder(ctx context.Context, id int64) error {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.SetPaidOrder")
	defer span.End()

	_, changed, err := s.mutateStatus(ctx, id, func(o *order.Order) (bool, error) {
		return o.Apply(s.sm, order.EventPaymentCompleted)
	})
	if err != nil {
		return err
	}

	if changed {
		slog.InfoContext(ctx, "Order paid", "order_id", id)
	} else {
		slog.InfoContext(ctx, "Order already paid", "order_id", id)
	}

	return nil
}

// mutateStatus runs load, mutate and save in one unit of work, reloading on a concurrent update.
// Only the status is written. Nothing is saved when mutate reports no change.
func (s *OrderService) mutateStatus(
	ctx context.Context,
	id int64,
	mutate func(o *order.Order) (bool, error),
) (*order.Order, bool, error) {
	for attempt := 1; ; attempt++ {
		o, changed, err := s.mutateStatusOnce(ctx, id, mutate)
		if err == nil {
			return o, changed, nil
		}
		if !errors.Is(err, domainerr.ErrConcurrentUpdate) || attempt >= s.maxAttempts {
			return nil, false, err
		}

		slog.WarnContext(ctx, "Order changed concurrently, retrying",
			"order_id", id,
			"attempt", attempt,
			"max_attempts", s.maxAttempts,
		)
	}
}

func (s *OrderService) mutateStatusOnce(
	ctx context.Context,
	id int64,
	mutate func(o *order.Order) (bool, error),
) (o *order.Order, changed bool, err error) {
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := work.Rollback(ctx); rbErr != nil {
			slog.ErrorContext(ctx, "Failed to rollback transaction", "error", rbErr)
		}
	}()

	repo := work.OrderRepository()
	o, err = repo.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}

	changed, err = mutate(o)
	if err != nil {
		return nil, false, err
	}
	if changed {
		if err = repo.SaveStatus(ctx, o); err != nil {
			return nil, false, fmt.Errorf("failed to save order %d: %w", id, err)
		}
	}

	if err = work.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return o, changed, nil
}
