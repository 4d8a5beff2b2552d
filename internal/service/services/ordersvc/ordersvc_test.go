package ordersvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/memory"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/customer"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/inventory"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderitem"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderstatus"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/product"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInventory struct {
	mu       sync.Mutex
	products map[string]product.Product
	errs     map[string]error
}

func newFakeInventory(products ...product.Product) *fakeInventory {
	inv := &fakeInventory{products: map[string]product.Product{}, errs: map[string]error{}}
	for _, p := range products {
		inv.products[p.SKU] = p
	}

	return inv
}

func (f *fakeInventory) GetProduct(_ context.Context, sku string) (product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.errs[sku]; ok {
		return product.Product{}, err
	}
	p, ok := f.products[sku]
	if !ok {
		return product.Product{}, fmt.Errorf("product %s not found", sku)
	}

	return p, nil
}

type fakeReservations struct {
	mu        sync.Mutex
	published []inventory.Command
	enqueued  []inventory.Command
	// failOn makes the publish with this index (0-based) fail.
	failOn int
}

func newFakeReservations() *fakeReservations {
	return &fakeReservations{failOn: -1}
}

func (f *fakeReservations) PublishReservation(_ context.Context, cmd inventory.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failOn == len(f.published) {
		f.failOn = -1

		return errors.New("outbox unavailable")
	}
	f.published = append(f.published, cmd)

	return nil
}

func (f *fakeReservations) EnqueueReservation(_ context.Context, cmd inventory.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.enqueued = append(f.enqueued, cmd)

	return nil
}

type fakeStatuses struct {
	mu     sync.Mutex
	events []orderstatus.Event
}

func (f *fakeStatuses) PublishOrderStatus(_ context.Context, event orderstatus.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, event)

	return nil
}

type fixture struct {
	svc          *OrderService
	store        *memory.Store
	inventory    *fakeInventory
	reservations *fakeReservations
	statuses     *fakeStatuses
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()

	f := &fixture{
		store: memory.NewStore(),
		inventory: newFakeInventory(
			product.Product{SKU: "SKU1", Name: "Mug", Price: 10, Quantity: 5},
			product.Product{SKU: "SKU2", Name: "Plate", Price: 2.5, Quantity: 100},
		),
		reservations: newFakeReservations(),
		statuses:     &fakeStatuses{},
	}
	f.svc = MustNewOrderService(append([]option{
		WithMemoryStore(f.store),
		WithInventoryService(f.inventory),
		WithReservationPublisher(f.reservations),
		WithOrderStatusPublisher(f.statuses),
	}, opts...)...)

	return f
}

func (f *fixture) seed(status order.Status, items ...orderitem.OrderItem) order.Order {
	return f.store.SeedOrder(order.Order{
		OrderNumber: fmt.Sprintf("ORD-%d-%s", len(items), status),
		Customer:    customer.Customer{Name: "Ann", Email: "ann@example.com"},
		OrderItems:  items,
		Status:      status,
	})
}

var ann = customer.Customer{Name: "Ann", Email: "ann@example.com"}

func cmd(action inventory.Action, sku string, qty int, orderNumber string) inventory.Command {
	return inventory.Command{SKU: sku, Action: action, Quantity: qty, OrderNumber: orderNumber}
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.CreateOrder(context.Background(), ann, []orderitem.OrderItem{{ProductSKU: "SKU1", Quantity: 2}})
	require.NoError(t, err)

	assert.NotZero(t, o.ID)
	assert.NotEmpty(t, o.OrderNumber)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, 20.0, o.TotalAmount)
	assert.NotZero(t, o.Customer.ID)
	assert.Equal(t, "Mug", o.OrderItems[0].Name)
	assert.Equal(t, []inventory.Command{cmd(inventory.ActionSubtract, "SKU1", 2, o.OrderNumber)}, f.reservations.published)
	assert.Empty(t, f.reservations.enqueued)
	assert.Equal(t, 1, f.store.OrderCount())
}

func TestCreateOrderUnavailable(t *testing.T) {
	tests := []struct {
		name  string
		items []orderitem.OrderItem
	}{
		{name: "under-stocked", items: []orderitem.OrderItem{{ProductSKU: "SKU1", Quantity: 10}}},
		{name: "summed quantity under-stocked", items: []orderitem.OrderItem{
			{ProductSKU: "SKU1", Quantity: 3},
			{ProductSKU: "SKU1", Quantity: 3},
		}},
		{name: "unknown sku", items: []orderitem.OrderItem{
			{ProductSKU: "SKU2", Quantity: 1},
			{ProductSKU: "NOPE", Quantity: 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.CreateOrder(context.Background(), ann, tt.items)

			require.ErrorIs(t, err, domainerr.ErrInventoryUnavailable)
			assert.Zero(t, f.store.OrderCount())
			assert.Zero(t, f.store.CustomerCount())
			assert.Empty(t, f.reservations.published)
			assert.Empty(t, f.reservations.enqueued)
		})
	}
}

func TestCreateOrderInvalid(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrder(context.Background(), customer.Customer{Name: "No email"},
		[]orderitem.OrderItem{{ProductSKU: "SKU1", Quantity: 1}})

	require.ErrorIs(t, err, domainerr.ErrInvalidEntity)
	assert.Empty(t, f.reservations.published)
}

func TestCreateOrderCompensatesPublishedItemsOnPublishFailure(t *testing.T) {
	f := newFixture(t)
	f.reservations.failOn = 1

	_, err := f.svc.CreateOrder(context.Background(), ann, []orderitem.OrderItem{
		{ProductSKU: "SKU1", Quantity: 2},
		{ProductSKU: "SKU2", Quantity: 4},
	})
	require.Error(t, err)

	require.Len(t, f.reservations.published, 1)
	number := f.reservations.published[0].OrderNumber
	assert.Equal(t, []inventory.Command{cmd(inventory.ActionAdd, "SKU1", 2, number)}, f.reservations.enqueued)
	assert.Zero(t, f.store.OrderCount())
}

func TestCreateOrderCompensatesOnSaveFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailSave = errors.New("database is down")

	_, err := f.svc.CreateOrder(context.Background(), ann, []orderitem.OrderItem{
		{ProductSKU: "SKU1", Quantity: 2},
		{ProductSKU: "SKU2", Quantity: 4},
	})
	require.Error(t, err)

	number := f.reservations.published[0].OrderNumber
	assert.Equal(t, []inventory.Command{
		cmd(inventory.ActionAdd, "SKU1", 2, number),
		cmd(inventory.ActionAdd, "SKU2", 4, number),
	}, f.reservations.enqueued)
	assert.Zero(t, f.store.OrderCount())
	assert.Zero(t, f.store.CustomerCount(), "customer insert must be rolled back")
}

func TestCreateOrderTotalFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	items := []orderitem.OrderItem{{ProductSKU: "SKU1", Quantity: 1}}

	// the availability check passes, then the price lookup fails
	calls := 0
	f.svc.inventory = inventoryFunc(func(ctx context.Context, sku string) (product.Product, error) {
		calls++
		if calls > 1 {
			return product.Product{}, errors.New("inventory timeout")
		}

		return f.inventory.GetProduct(ctx, sku)
	})

	o, err := f.svc.CreateOrder(context.Background(), ann, items)

	require.NoError(t, err)
	assert.NotZero(t, o.ID)
	assert.Zero(t, o.TotalAmount)
	assert.Equal(t, 1, f.store.OrderCount())
	assert.Len(t, f.reservations.published, 1)
	assert.Empty(t, f.reservations.enqueued)
}

type inventoryFunc func(ctx context.Context, sku string) (product.Product, error)

func (fn inventoryFunc) GetProduct(ctx context.Context, sku string) (product.Product, error) {
	return fn(ctx, sku)
}

func TestCreateOrderAdoptsExistingCustomer(t *testing.T) {
	f := newFixture(t)
	items := []orderitem.OrderItem{{ProductSKU: "SKU2", Quantity: 1}}

	first, err := f.svc.CreateOrder(context.Background(), ann, items)
	require.NoError(t, err)
	second, err := f.svc.CreateOrder(context.Background(), customer.Customer{Email: "ann@example.com"}, items)
	require.NoError(t, err)

	assert.Equal(t, first.Customer.ID, second.Customer.ID)
	assert.Equal(t, "Ann", second.Customer.Name)
	assert.Equal(t, 1, f.store.CustomerCount())
}

func TestUpdateOrderPublishesDeltas(t *testing.T) {
	tests := []struct {
		name   string
		before []orderitem.OrderItem
		after  []orderitem.OrderItem
		want   func(number string) []inventory.Command
	}{
		{
			name:   "increase",
			before: []orderitem.OrderItem{{ProductSKU: "SKU1", Quantity: 2}},
			after:  []orderitem.OrderItem{{ProductSKU: "SKU1", Quantity: 5}},
			want: func(n string) []inventory.Command {
				return []inventory.Command{cmd(inventory.ActionSubtract, "SKU1", 3, n)}
			},
		},
		{
			name:   "decrease",
			before: []orderitem.OrderItem{{ProductSKU: "SKU1", Quantity: 5}},
			after:  []orderitem.OrderItem{{ProductSKU: "SKU1", Quantity: 1}},
			want: func(n string) []inventory.Command {
				return []inventory.Command{cmd(inventory.ActionAdd, "SKU1", 4, n)}
			},
		},
		{
			name:   "unchanged",
			before: []orderitem.OrderItem{{ProductSKU: "SKU1", Quantity: 2}},
			after:  []orderitem.OrderItem{{ProductSKU: "SKU1", Quantity: 2}},
			want:   func(string) []inventory.Command { return nil },
		},
		{
			name:   "new sku and removed sku",
			before: []orderitem.OrderItem{{ProductSKU: "SKU1", Quantity: 2}},
			after:  []orderitem.OrderItem{{ProductSKU: "SKU2", Quantity: 7}},
			want: func(n string) []inventory.Command {
				return []inventory.Command{
					cmd(inventory.ActionAdd, "SKU1", 2, n),
					cmd(inventory.ActionSubtract, "SKU2", 7, n),
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			seeded := f.seed(order.StatusPending, tt.before...)

			o, err := f.svc.UpdateOrder(context.Background(), seeded.ID, ann, tt.after)
			require.NoError(t, err)

			assert.Equal(t, tt.want(seeded.OrderNumber), f.reservations.published)
			assert.Equal(t, orderitem.QuantitiesBySKU(tt.after), orderitem.QuantitiesBySKU(o.OrderItems))

			stored, err := f.svc.GetOrder(context.Background(), seeded.ID)
			require.NoError(t, err)
			assert.Equal(t, o.TotalAmount, stored.TotalAmount)
			assert.Len(t, stored.OrderItems, len(tt.after))
		})
	}
}

func TestUpdateOrderNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateOrder(context.Background(), 404, ann, []orderitem.OrderItem{{ProductSKU: "SKU1", Quantity: 1}})

	require.ErrorIs(t, err, domainerr.ErrEntityNotFound)
}

func TestUpdateOrderCompensatesOnSaveFailure(t *testing.T) {
	f := newFixture(t)
	seeded := f.seed(order.StatusPending, orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 2})
	f.store.FailSave = fmt.Errorf("order %d: %w", seeded.ID, domainerr.ErrConcurrentUpdate)

	_, err := f.svc.UpdateOrder(context.Background(), seeded.ID, ann, []orderitem.OrderItem{{ProductSKU: "SKU1", Quantity: 4}})

	require.ErrorIs(t, err, domainerr.ErrConcurrentUpdate)
	assert.Equal(t, []inventory.Command{cmd(inventory.ActionSubtract, "SKU1", 2, seeded.OrderNumber)}, f.reservations.published)
	assert.Equal(t, []inventory.Command{cmd(inventory.ActionAdd, "SKU1", 2, seeded.OrderNumber)}, f.reservations.enqueued)
}

func TestConfirmOrder(t *testing.T) {
	f := newFixture(t)
	seeded := f.seed(order.StatusPending, orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 2})

	o, err := f.svc.ConfirmOrder(context.Background(), seeded.ID)
	require.NoError(t, err)

	assert.Equal(t, order.StatusConfirmed, o.Status)
	assert.Equal(t, []orderstatus.Event{{OrderID: seeded.ID, Amount: 20, Status: orderstatus.StatusConfirmed}}, f.statuses.events)

	_, err = f.svc.ConfirmOrder(context.Background(), seeded.ID)
	require.ErrorIs(t, err, domainerr.ErrInvalidAction)
	assert.Len(t, f.statuses.events, 1)
}

func TestConfirmOrderRequiresPending(t *testing.T) {
	for _, status := range []order.Status{order.StatusPaid, order.StatusCanceled, order.StatusShipped, order.StatusFinished} {
		t.Run(status.String(), func(t *testing.T) {
			f := newFixture(t)
			seeded := f.seed(status, orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 1})

			_, err := f.svc.ConfirmOrder(context.Background(), seeded.ID)
			require.ErrorIs(t, err, domainerr.ErrInvalidAction)

			stored, err := f.svc.GetOrder(context.Background(), seeded.ID)
			require.NoError(t, err)
			assert.Equal(t, status, stored.Status)
			assert.Empty(t, f.statuses.events)
		})
	}
}

func TestCancelOrder(t *testing.T) {
	for _, status := range []order.Status{order.StatusPending, order.StatusConfirmed} {
		t.Run(status.String(), func(t *testing.T) {
			f := newFixture(t)
			seeded := f.seed(status,
				orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 2},
				orderitem.OrderItem{ProductSKU: "SKU2", Quantity: 3},
			)

			o, err := f.svc.CancelOrder(context.Background(), seeded.ID)
			require.NoError(t, err)

			assert.Equal(t, order.StatusCanceled, o.Status)
			assert.Equal(t, []inventory.Command{
				cmd(inventory.ActionAdd, "SKU1", 2, seeded.OrderNumber),
				cmd(inventory.ActionAdd, "SKU2", 3, seeded.OrderNumber),
			}, f.reservations.published)
			assert.Equal(t, []orderstatus.Event{{OrderID: seeded.ID, Amount: 0, Status: orderstatus.StatusCanceled}}, f.statuses.events)
		})
	}
}

func TestCancelOrderWithoutPrices(t *testing.T) {
	f := newFixture(t)
	seeded := f.seed(order.StatusPending, orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 2})
	f.inventory.errs["SKU1"] = errors.New("product SKU1 not found")

	o, err := f.svc.CancelOrder(context.Background(), seeded.ID)
	require.NoError(t, err)

	assert.Equal(t, order.StatusCanceled, o.Status)
	assert.Zero(t, o.TotalAmount)
	assert.Equal(t, []inventory.Command{cmd(inventory.ActionAdd, "SKU1", 2, seeded.OrderNumber)}, f.reservations.published)
	assert.Equal(t, []orderstatus.Event{{OrderID: seeded.ID, Amount: 0, Status: orderstatus.StatusCanceled}}, f.statuses.events)
}

func TestCancelOrderRejected(t *testing.T) {
	f := newFixture(t)
	seeded := f.seed(order.StatusShipped, orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 2})

	_, err := f.svc.CancelOrder(context.Background(), seeded.ID)

	require.ErrorIs(t, err, domainerr.ErrInvalidAction)
	assert.Empty(t, f.reservations.published)
	assert.Empty(t, f.statuses.events)
}

func TestSetPaidOrderReplayIsNoop(t *testing.T) {
	f := newFixture(t)
	seeded := f.seed(order.StatusConfirmed, orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 1})

	require.NoError(t, f.svc.SetPaidOrder(context.Background(), seeded.ID))
	require.NoError(t, f.svc.SetPaidOrder(context.Background(), seeded.ID))

	stored, err := f.svc.GetOrder(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, stored.Status)
	assert.EqualValues(t, 2, stored.Version, "replay must not write")
}

func TestDeliveredWhilePending(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		f := newFixture(t)
		seeded := f.seed(order.StatusPending, orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 1})

		o, err := f.svc.UpdateOrderStatus(context.Background(), seeded.ID, order.StatusFinished)
		require.NoError(t, err)
		assert.Equal(t, order.StatusFinished, o.Status)
	})

	t.Run("strict", func(t *testing.T) {
		f := newFixture(t, WithStrictTransitions(true))
		seeded := f.seed(order.StatusPending, orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 1})

		_, err := f.svc.UpdateOrderStatus(context.Background(), seeded.ID, order.StatusFinished)
		require.ErrorIs(t, err, domainerr.ErrInvalidAction)
	})
}

func TestUpdateOrderStatusIsUnguardedByDefault(t *testing.T) {
	for _, status := range []order.Status{order.StatusCanceled, order.StatusConfirmed, order.StatusPending, order.StatusPaid} {
		t.Run(status.String(), func(t *testing.T) {
			f := newFixture(t)
			seeded := f.seed(order.StatusFinished, orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 1})

			o, err := f.svc.UpdateOrderStatus(context.Background(), seeded.ID, status)
			require.NoError(t, err)
			assert.Equal(t, status, o.Status)
			assert.Empty(t, f.reservations.published)
			assert.Empty(t, f.statuses.events)
		})
	}

	f := newFixture(t, WithStrictTransitions(true))
	seeded := f.seed(order.StatusPending, orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 1})
	_, err := f.svc.UpdateOrderStatus(context.Background(), seeded.ID, order.StatusCanceled)
	require.ErrorIs(t, err, domainerr.ErrInvalidAction)
}

type recordingUOW struct {
	UnitOfWork
	calls *[]string
}

func (u recordingUOW) Begin(ctx context.Context) error {
	*u.calls = append(*u.calls, "begin")

	return u.UnitOfWork.Begin(ctx)
}

func (u recordingUOW) Commit(ctx context.Context) error {
	*u.calls = append(*u.calls, "commit")

	return u.UnitOfWork.Commit(ctx)
}

func (u recordingUOW) Rollback(ctx context.Context) error {
	*u.calls = append(*u.calls, "rollback")

	return u.UnitOfWork.Rollback(ctx)
}

func (u recordingUOW) OrderRepository() iorderrepo.IOrderRepository {
	return recordingOrderRepo{IOrderRepository: u.UnitOfWork.OrderRepository(), calls: u.calls}
}

type recordingOrderRepo struct {
	iorderrepo.IOrderRepository
	calls *[]string
}

func (r recordingOrderRepo) FindByID(ctx context.Context, id int64) (*order.Order, error) {
	*r.calls = append(*r.calls, "find")

	return r.IOrderRepository.FindByID(ctx, id)
}

func (r recordingOrderRepo) Save(ctx context.Context, o *order.Order) error {
	*r.calls = append(*r.calls, "save")

	return r.IOrderRepository.Save(ctx, o)
}

func (r recordingOrderRepo) SaveStatus(ctx context.Context, o *order.Order) error {
	*r.calls = append(*r.calls, "save_status")

	return r.IOrderRepository.SaveStatus(ctx, o)
}

func TestStatusChangesWriteOnlyStatusInTransaction(t *testing.T) {
	f := newFixture(t)
	seeded := f.seed(order.StatusPaid,
		orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 2},
		orderitem.OrderItem{ProductSKU: "SKU2", Quantity: 3},
	)
	var calls []string
	f.svc.newUOW = func() UnitOfWork {
		return recordingUOW{UnitOfWork: memory.NewUnitOfWork(f.store), calls: &calls}
	}

	o, err := f.svc.UpdateOrderStatus(context.Background(), seeded.ID, order.StatusShipped)
	require.NoError(t, err)

	assert.Equal(t, []string{"begin", "find", "save_status", "commit"}, calls)
	assert.Equal(t, seeded.OrderItems, o.OrderItems)

	stored, err := memory.NewOrderRepository(f.store).FindByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, stored.Status)
	assert.Equal(t, seeded.OrderItems, stored.OrderItems)
	assert.EqualValues(t, 2, stored.Version)

	// a failed price lookup during confirm rolls the unit of work back
	calls = nil
	pending := f.seed(order.StatusPending, orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 1})
	f.inventory.errs["SKU1"] = errors.New("inventory timeout")

	_, err = f.svc.ConfirmOrder(context.Background(), pending.ID)
	require.ErrorIs(t, err, domainerr.ErrPriceUnavailable)
	assert.Equal(t, []string{"begin", "find", "rollback"}, calls)

	stored, err = memory.NewOrderRepository(f.store).FindByID(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, stored.Status)
}

func TestUpdateOrderStatusFollowsLifecycle(t *testing.T) {
	f := newFixture(t)
	seeded := f.seed(order.StatusPaid, orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 1})

	for _, status := range []order.Status{order.StatusShipped, order.StatusShipped, order.StatusFinished} {
		o, err := f.svc.UpdateOrderStatus(context.Background(), seeded.ID, status)
		require.NoError(t, err)
		assert.Equal(t, status, o.Status)
	}
}

func TestMutateStatusRetriesConcurrentUpdate(t *testing.T) {
	f := newFixture(t)
	seeded := f.seed(order.StatusPending, orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 1})
	f.store.FailSave = domainerr.ErrConcurrentUpdate

	require.NoError(t, f.svc.SetPaidOrder(context.Background(), seeded.ID))

	stored, err := f.svc.GetOrder(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, stored.Status)
}

func TestMutateStatusGivesUp(t *testing.T) {
	f := newFixture(t, WithMaxUpdateAttempts(1))
	seeded := f.seed(order.StatusPending, orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 1})
	f.store.FailSave = domainerr.ErrConcurrentUpdate

	err := f.svc.SetPaidOrder(context.Background(), seeded.ID)

	require.ErrorIs(t, err, domainerr.ErrConcurrentUpdate)
}

func TestCalculateOrderTotal(t *testing.T) {
	f := newFixture(t)
	o := &order.Order{OrderItems: []orderitem.OrderItem{
		{ProductSKU: "SKU1", Quantity: 3},
		{ProductSKU: "SKU2", Quantity: 3},
	}}

	total, err := f.svc.CalculateOrderTotal(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, 37.5, total)

	f.inventory.errs["SKU2"] = errors.New("503")
	_, err = f.svc.CalculateOrderTotal(context.Background(), o)
	require.ErrorIs(t, err, domainerr.ErrPriceUnavailable)
}

func TestGetOrderByNumberAndList(t *testing.T) {
	f := newFixture(t)
	first := f.seed(order.StatusPending, orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 1})
	second := f.seed(order.StatusPaid,
		orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 1},
		orderitem.OrderItem{ProductSKU: "SKU2", Quantity: 2},
	)

	o, err := f.svc.GetOrderByNumber(context.Background(), second.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, second.ID, o.ID)
	assert.Equal(t, 15.0, o.TotalAmount)

	orders, err := f.svc.ListOrders(context.Background(), order.QueryOrdersModel{Page: 1, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, first.ID, orders[0].ID)
	assert.Equal(t, 10.0, orders[0].TotalAmount)

	_, err = f.svc.GetOrderByNumber(context.Background(), "missing")
	require.ErrorIs(t, err, domainerr.ErrEntityNotFound)
}

func TestDeleteOrder(t *testing.T) {
	f := newFixture(t)
	seeded := f.seed(order.StatusPending, orderitem.OrderItem{ProductSKU: "SKU1", Quantity: 1})

	require.NoError(t, f.svc.DeleteOrder(context.Background(), seeded.ID))
	assert.Zero(t, f.store.OrderCount())

	err := f.svc.DeleteOrder(context.Background(), seeded.ID)
	require.ErrorIs(t, err, domainerr.ErrEntityNotFound)
}

func TestMustNewOrderServicePanicsWithoutDependencies(t *testing.T) {
	assert.Panics(t, func() {
		MustNewOrderService(WithMemoryStore(memory.NewStore()))
	})
}
