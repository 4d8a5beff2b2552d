package ordersvc

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/customer"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/inventory"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderitem"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/product"
	"go.opentelemetry.io/otel"
)

// CreateOrder checks stock, reserves it and stores a PENDING order.
// Nothing is persisted or published when any item is unavailable.
func (s *OrderService) CreateOrder(
	ctx context.Context,
	c customer.Customer,
	items []orderitem.OrderItem,
) (*order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	o, err := order.New(order.Params{Customer: c, OrderItems: items})
	if err != nil {
		return nil, err
	}

	products, err := s.checkAvailability(ctx, o.OrderItems)
	if err != nil {
		return nil, err
	}
	if err := o.SetItems(withProductDetails(o.OrderItems, products)); err != nil {
		return nil, err
	}

	published := make([]inventory.Command, 0, len(o.OrderItems))
	for _, item := range o.OrderItems {
		cmd := inventory.Command{
			SKU:         item.ProductSKU,
			Action:      inventory.ActionSubtract,
			Quantity:    item.Quantity,
			OrderNumber: o.OrderNumber,
		}
		if err := s.reservations.PublishReservation(ctx, cmd); err != nil {
			s.compensate(ctx, published)

			return nil, err
		}
		published = append(published, cmd)
	}

	if err := s.persist(ctx, o); err != nil {
		s.compensate(ctx, published)

		return nil, err
	}

	slog.InfoContext(ctx, "Order created", "order_id", o.ID, "order_number", o.OrderNumber, "items", len(o.OrderItems))

	s.attachTotalOrZero(ctx, o)

	return o, nil
}

// UpdateOrder replaces the customer and items of an order and publishes the stock difference.
func (s *OrderService) UpdateOrder(
	ctx context.Context,
	id int64,
	c customer.Customer,
	items []orderitem.OrderItem,
) (*order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.UpdateOrder")
	defer span.End()

	o, err := s.orders().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	before := slices.Clone(o.OrderItems)

	if err := o.SetCustomer(c); err != nil {
		return nil, err
	}
	if err := o.SetItems(items); err != nil {
		return nil, err
	}

	products, err := s.checkAvailability(ctx, o.OrderItems)
	if err != nil {
		return nil, err
	}
	if err := o.SetItems(withProductDetails(o.OrderItems, products)); err != nil {
		return nil, err
	}

	deltas := reservationDeltas(o.OrderNumber, before, o.OrderItems)
	published := make([]inventory.Command, 0, len(deltas))
	for _, cmd := range deltas {
		if err := s.reservations.PublishReservation(ctx, cmd); err != nil {
			s.compensate(ctx, published)

			return nil, err
		}
		published = append(published, cmd)
	}

	if err := s.persist(ctx, o); err != nil {
		s.compensate(ctx, published)

		return nil, err
	}

	slog.InfoContext(ctx, "Order updated", "order_id", o.ID, "reservation_changes", len(deltas))

	s.attachTotalOrZero(ctx, o)

	return o, nil
}

// checkAvailability looks every SKU up once and compares stock with the summed requested quantity.
func (s *OrderService) checkAvailability(
	ctx context.Context,
	items []orderitem.OrderItem,
) (map[string]product.Product, error) {
	requested := orderitem.QuantitiesBySKU(items)
	skus := make([]string, 0, len(requested))
	for sku := range requested {
		skus = append(skus, sku)
	}
	slices.Sort(skus)

	products := make(map[string]product.Product, len(skus))
	for _, sku := range skus {
		p, err := s.inventory.GetProduct(ctx, sku)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", domainerr.ErrInventoryUnavailable, sku, err)
		}
		if p.Quantity < requested[sku] {
			return nil, fmt.Errorf("%w: %s has %d in stock, %d requested",
				domainerr.ErrInventoryUnavailable, sku, p.Quantity, requested[sku])
		}
		products[sku] = p
	}

	return products, nil
}

func withProductDetails(items []orderitem.OrderItem, products map[string]product.Product) []orderitem.OrderItem {
	res := slices.Clone(items)
	for i := range res {
		p, ok := products[res[i].ProductSKU]
		if !ok {
			continue
		}
		if res[i].Name == "" {
			res[i].Name = p.Name
		}
		if res[i].Description == "" {
			res[i].Description = p.Description
		}
		if res[i].Price == 0 {
			res[i].Price = p.Price
		}
	}

	return res
}

// reservationDeltas returns one command per SKU whose summed quantity changed, ordered by SKU.
func reservationDeltas(orderNumber string, before, after []orderitem.OrderItem) []inventory.Command {
	old := orderitem.QuantitiesBySKU(before)
	cur := orderitem.QuantitiesBySKU(after)

	skus := make([]string, 0, len(old)+len(cur))
	for sku := range old {
		skus = append(skus, sku)
	}
	for sku := range cur {
		if _, ok := old[sku]; !ok {
			skus = append(skus, sku)
		}
	}
	slices.Sort(skus)

	var cmds []inventory.Command
	for _, sku := range skus {
		delta := cur[sku] - old[sku]
		switch {
		case delta > 0:
			cmds = append(cmds, inventory.Command{
				SKU: sku, Action: inventory.ActionSubtract, Quantity: delta, OrderNumber: orderNumber,
			})
		case delta < 0:
			cmds = append(cmds, inventory.Command{
				SKU: sku, Action: inventory.ActionAdd, Quantity: -delta, OrderNumber: orderNumber,
			})
		}
	}

	return cmds
}

// compensate writes the inverse of every published command to the outbox.
func (s *OrderService) compensate(ctx context.Context, published []inventory.Command) {
	if len(published) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	for _, cmd := range published {
		inverse := cmd.Inverse()
		if err := s.reservations.EnqueueReservation(ctx, inverse); err != nil {
			slog.ErrorContext(ctx, "Failed to enqueue compensating reservation",
				"command", inverse.String(),
				"order_number", inverse.OrderNumber,
				"error", err,
			)

			continue
		}
		slog.WarnContext(ctx, "Compensating reservation enqueued",
			"command", inverse.String(),
			"order_number", inverse.OrderNumber,
		)
	}
}
