package iorderrepo

import (
	"context"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
)

// IOrderRepository is an interface for order repository.
type IOrderRepository interface {
	// Save inserts an order without id or updates it when the stored version matches.
	Save(ctx context.Context, o *order.Order) error
	// SaveStatus writes status and estimated time only, guarded by version. Items are left untouched.
	SaveStatus(ctx context.Context, o *order.Order) error
	FindByID(ctx context.Context, id int64) (*order.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (*order.Order, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, query order.QueryOrdersModel) ([]order.Order, error)
}
