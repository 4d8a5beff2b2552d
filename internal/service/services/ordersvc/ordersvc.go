package ordersvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/icustomerrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/memory"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/postgres"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/uow"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/customer"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/inventory"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderstatus"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/product"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
)

// OrderService orchestrates the order saga: stock reservations, persistence and status events.
type OrderService struct {
	newUOW       func() UnitOfWork
	inventory    inventoryService
	reservations reservationPublisher
	statuses     orderStatusPublisher

	sm               order.StateMachine
	maxAttempts      int
	priceConcurrency int
}

// UnitOfWork groups order and customer writes in one transaction.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OrderRepository() iorderrepo.IOrderRepository
	CustomerRepository() icustomerrepo.ICustomerRepository
}

type inventoryService interface {
	GetProduct(ctx context.Context, sku string) (product.Product, error)
}

type reservationPublisher interface {
	PublishReservation(ctx context.Context, cmd inventory.Command) error
	EnqueueReservation(ctx context.Context, cmd inventory.Command) error
}

type orderStatusPublisher interface {
	PublishOrderStatus(ctx context.Context, event orderstatus.Event) error
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService. Storage, inventory and both publishers are required.
func MustNewOrderService(opts ...option) *OrderService {
	strict := viper.GetBool("orders.strict_transitions")
	maxAttempts := viper.GetInt("orders.max_update_attempts")
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	priceConcurrency := viper.GetInt("orders.price_lookup_concurrency")
	if priceConcurrency == 0 {
		priceConcurrency = 8
	}

	s := &OrderService{
		sm:               order.NewStateMachine(strict),
		maxAttempts:      maxAttempts,
		priceConcurrency: priceConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}

	switch {
	case s.newUOW == nil:
		panic("ordersvc: storage is not configured")
	case s.inventory == nil:
		panic("ordersvc: inventory service is not configured")
	case s.reservations == nil:
		panic("ordersvc: reservation publisher is not configured")
	case s.statuses == nil:
		panic("ordersvc: order status publisher is not configured")
	}

	return s
}

// WithPostgresClient stores orders in Postgres.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *OrderService) {
		s.newUOW = func() UnitOfWork {
			return uow.NewUnitOfWork(pgClient)
		}
	}
}

// WithMemoryStore keeps orders in process memory.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithMemoryStore(store *memory.Store) option {
	return func(s *OrderService) {
		s.newUOW = func() UnitOfWork {
			return memory.NewUnitOfWork(store)
		}
	}
}

// WithInventoryService sets the inventory lookup used for availability and prices.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithInventoryService(inv inventoryService) option {
	return func(s *OrderService) {
		s.inventory = inv
	}
}

// WithReservationPublisher sets the publisher of stock commands.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithReservationPublisher(p reservationPublisher) option {
	return func(s *OrderService) {
		s.reservations = p
	}
}

// WithOrderStatusPublisher sets the publisher of order status events.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderStatusPublisher(p orderStatusPublisher) option {
	return func(s *OrderService) {
		s.statuses = p
	}
}

// WithStrictTransitions overrides orders.strict_transitions.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithStrictTransitions(strict bool) option {
	return func(s *OrderService) {
		s.sm = order.NewStateMachine(strict)
	}
}

// WithMaxUpdateAttempts overrides orders.max_update_attempts.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithMaxUpdateAttempts(n int) option {
	return func(s *OrderService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func (s *OrderService) orders() iorderrepo.IOrderRepository {
	return s.newUOW().OrderRepository()
}

// GetOrder returns the order with its current total.
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.GetOrder")
	defer span.End()

	o, err := s.orders().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachTotal(ctx, o); err != nil {
		return nil, err
	}

	return o, nil
}

// GetOrderByNumber returns the order with the given business key and its current total.
func (s *OrderService) GetOrderByNumber(ctx context.Context, orderNumber string) (*order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.GetOrderByNumber")
	defer span.End()

	o, err := s.orders().FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if err := s.attachTotal(ctx, o); err != nil {
		return nil, err
	}

	return o, nil
}

// ListOrders returns a page of orders, each with its current total.
func (s *OrderService) ListOrders(ctx context.Context, query order.QueryOrdersModel) ([]order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.ListOrders")
	defer span.End()

	orders, err := s.orders().List(ctx, query.Normalize())
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if err := s.attachTotal(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}

	return orders, nil
}

// DeleteOrder hard-deletes an order. Reservations are not released.
func (s *OrderService) DeleteOrder(ctx context.Context, id int64) error {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.DeleteOrder")
	defer span.End()

	repo := s.orders()
	if _, err := repo.FindByID(ctx, id); err != nil {
		return err
	}
	if err := repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete order %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Order deleted", "order_id", id)

	return nil
}

// persist upserts the customer by email and saves the order in one transaction.
func (s *OrderService) persist(ctx context.Context, o *order.Order) (err error) {
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := work.Rollback(ctx); rbErr != nil {
			slog.ErrorContext(ctx, "Failed to rollback transaction", "error", rbErr)
		}
	}()

	c, err := upsertCustomer(ctx, work.CustomerRepository(), o.Customer)
	if err != nil {
		return err
	}
	o.Customer = c

	if err := work.OrderRepository().Save(ctx, o); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}

	if err := work.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func upsertCustomer(ctx context.Context, repo icustomerrepo.ICustomerRepository, c customer.Customer) (customer.Customer, error) {
	existing, err := repo.FindByEmail(ctx, c.Email)
	switch {
	case err == nil:
		if c.Name == "" || c.Name == existing.Name {
			return *existing, nil
		}
		existing.Name = c.Name
		if err := repo.Save(ctx, existing); err != nil {
			return customer.Customer{}, fmt.Errorf("failed to update customer: %w", err)
		}

		return *existing, nil
	case errors.Is(err, domainerr.ErrEntityNotFound):
		c.ID = 0
		if err := repo.Save(ctx, &c); err != nil {
			return customer.Customer{}, fmt.Errorf("failed to create customer: %w", err)
		}

		return c, nil
	default:
		return customer.Customer{}, fmt.Errorf("failed to find customer: %w", err)
	}
}
