package ordersvc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

// CalculateOrderTotal prices every item at the current inventory price.
// Any failed lookup fails the whole computation.
func (s *OrderService) CalculateOrderTotal(ctx context.Context, o *order.Order) (float64, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.CalculateOrderTotal")
	defer span.End()

	subtotals := make([]decimal.Decimal, len(o.OrderItems))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.priceConcurrency)
	for i, item := range o.OrderItems {
		g.Go(func() error {
			p, err := s.inventory.GetProduct(gctx, item.ProductSKU)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", domainerr.ErrPriceUnavailable, item.ProductSKU, err)
			}
			subtotals[i] = decimal.NewFromFloat(p.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := decimal.Zero
	for _, st := range subtotals {
		total = total.Add(st)
	}

	return total.InexactFloat64(), nil
}

func (s *OrderService) attachTotal(ctx context.Context, o *order.Order) error {
	total, err := s.CalculateOrderTotal(ctx, o)
	if err != nil {
		return err
	}

	return o.SetTotalAmount(total)
}

// attachTotalOrZero attaches the total to an already stored order, leaving 0 when a price lookup fails.
func (s *OrderService) attachTotalOrZero(ctx context.Context, o *order.Order) {
	if err := s.attachTotal(ctx, o); err != nil {
		slog.WarnContext(ctx, "Failed to calculate order total, returning 0", "order_id", o.ID, "error", err)
		o.TotalAmount = 0
	}
}
