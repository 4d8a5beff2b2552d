// Package memory keeps orders, customers, outbox and inbox rows in process memory.
// It implements the same repository interfaces as the Postgres layer and is used
// for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/icustomerrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/customer"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/inbox"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderitem"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/outbox"
)

// Store holds every table.
type Store struct {
	mu sync.Mutex

	orders    map[int64]order.Order
	customers map[int64]customer.Customer
	outbox    map[int64]outbox.OutboxMessage
	inbox     map[int64]inbox.InboxMessage

	seq int64
	// FailSave, when set, is returned by the next order Save or SaveStatus. Tests use it to simulate storage failures.
	FailSave error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		orders:    make(map[int64]order.Order),
		customers: make(map[int64]customer.Customer),
		outbox:    make(map[int64]outbox.OutboxMessage),
		inbox:     make(map[int64]inbox.InboxMessage),
	}
}

func (s *Store) nextID() int64 {
	s.seq++

	return s.seq
}

// OrderCount returns the number of stored orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.orders)
}

// CustomerCount returns the number of stored customers.
func (s *Store) CustomerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.customers)
}

// OutboxMessages returns every outbox row ordered by id.
func (s *Store) OutboxMessages() []outbox.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]outbox.OutboxMessage, 0, len(s.outbox))
	for _, msg := range s.outbox {
		res = append(res, msg)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })

	return res
}

// InboxMessages returns every inbox row ordered by id.
func (s *Store) InboxMessages() []inbox.InboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]inbox.InboxMessage, 0, len(s.inbox))
	for _, msg := range s.inbox {
		res = append(res, msg)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })

	return res
}

func cloneOrder(o order.Order) order.Order {
	o.OrderItems = slices.Clone(o.OrderItems)
	if o.EstimatedTime != nil {
		t := *o.EstimatedTime
		o.EstimatedTime = &t
	}

	return o
}

// UnitOfWork records an undo step for every write made after Begin.
type UnitOfWork struct {
	store  *Store
	active bool
	undo   []func()
}

// NewUnitOfWork creates a unit of work on the store.
func NewUnitOfWork(store *Store) *UnitOfWork {
	return &UnitOfWork{store: store}
}

// Begin starts recording undo steps.
func (u *UnitOfWork) Begin(_ context.Context) error {
	u.active = true
	u.undo = nil

	return nil
}

// Commit drops the undo log.
func (u *UnitOfWork) Commit(_ context.Context) error {
	u.active = false
	u.undo = nil

	return nil
}

// Rollback replays the undo log in reverse.
func (u *UnitOfWork) Rollback(_ context.Context) error {
	if !u.active {
		return nil
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for i := len(u.undo) - 1; i >= 0; i-- {
		u.undo[i]()
	}
	u.active = false
	u.undo = nil

	return nil
}

func (u *UnitOfWork) record(fn func()) {
	if u.active {
		u.undo = append(u.undo, fn)
	}
}

// OrderRepository returns the order repository.
func (u *UnitOfWork) OrderRepository() iorderrepo.IOrderRepository {
	return &OrderRepository{store: u.store, uow: u}
}

// CustomerRepository returns the customer repository.
func (u *UnitOfWork) CustomerRepository() icustomerrepo.ICustomerRepository {
	return &CustomerRepository{store: u.store, uow: u}
}

// OrderRepository stores orders in memory.
type OrderRepository struct {
	store *Store
	uow   *UnitOfWork
}

// NewOrderRepository creates an order repository outside a unit of work.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{store: store, uow: &UnitOfWork{store: store}}
}

// Save inserts or updates an order with a version check.
func (r *OrderRepository) Save(_ context.Context, o *order.Order) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSave != nil {
		err := s.FailSave
		s.FailSave = nil

		return err
	}

	if o.Customer.ID == 0 {
		return fmt.Errorf("%w: customer must be saved before the order", domainerr.ErrInvalidEntity)
	}

	now := time.Now()
	if o.ID == 0 {
		for _, existing := range s.orders {
			if existing.OrderNumber == o.OrderNumber {
				return fmt.Errorf("%w: order number %s already exists", domainerr.ErrInvalidEntity, o.OrderNumber)
			}
		}
		o.ID = s.nextID()
		o.Version = 1
		o.CreatedAt = now
	} else {
		stored, ok := s.orders[o.ID]
		if !ok {
			return fmt.Errorf("order %d: %w", o.ID, domainerr.ErrEntityNotFound)
		}
		if stored.Version != o.Version {
			return fmt.Errorf("order %d: %w", o.ID, domainerr.ErrConcurrentUpdate)
		}
		r.uow.record(func() { s.orders[stored.ID] = stored })
		o.Version++
	}
	o.UpdatedAt = now

	for i := range o.OrderItems {
		o.OrderItems[i].OrderID = o.ID
		if o.OrderItems[i].ID == 0 {
			o.OrderItems[i].ID = s.nextID()
		}
	}

	id := o.ID
	if _, existed := s.orders[id]; !existed {
		r.uow.record(func() { delete(s.orders, id) })
	}
	s.orders[id] = cloneOrder(*o)

	return nil
}

// SaveStatus updates status and estimated time of a stored order with a version check.
// The stored items are kept as they are.
func (r *OrderRepository) SaveStatus(_ context.Context, o *order.Order) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSave != nil {
		err := s.FailSave
		s.FailSave = nil

		return err
	}

	stored, ok := s.orders[o.ID]
	if !ok {
		return fmt.Errorf("order %d: %w", o.ID, domainerr.ErrEntityNotFound)
	}
	if stored.Version != o.Version {
		return fmt.Errorf("order %d: %w", o.ID, domainerr.ErrConcurrentUpdate)
	}
	r.uow.record(func() { s.orders[stored.ID] = stored })

	updated := cloneOrder(stored)
	updated.Status = o.Status
	if o.EstimatedTime != nil {
		t := *o.EstimatedTime
		updated.EstimatedTime = &t
	} else {
		updated.EstimatedTime = nil
	}
	updated.Version++
	updated.UpdatedAt = time.Now()
	s.orders[o.ID] = updated

	o.Version = updated.Version
	o.UpdatedAt = updated.UpdatedAt

	return nil
}

// FindByID returns the order with the given id.
func (r *OrderRepository) FindByID(_ context.Context, id int64) (*order.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	o, ok := r.store.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, domainerr.ErrEntityNotFound)
	}
	res := cloneOrder(o)

	return &res, nil
}

// FindByOrderNumber returns the order with the given business key.
func (r *OrderRepository) FindByOrderNumber(_ context.Context, orderNumber string) (*order.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, o := range r.store.orders {
		if o.OrderNumber == orderNumber {
			res := cloneOrder(o)

			return &res, nil
		}
	}

	return nil, fmt.Errorf("order %s: %w", orderNumber, domainerr.ErrEntityNotFound)
}

// Delete hard-deletes an order.
func (r *OrderRepository) Delete(_ context.Context, id int64) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("order %d: %w", id, domainerr.ErrEntityNotFound)
	}
	delete(s.orders, id)
	r.uow.record(func() { s.orders[id] = stored })

	return nil
}

// List returns a page of orders ordered by id.
func (r *OrderRepository) List(_ context.Context, query order.QueryOrdersModel) ([]order.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ids := make([]int64, 0, len(r.store.orders))
	for id := range r.store.orders {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	offset := min(query.Offset(), len(ids))
	end := min(offset+query.Limit(), len(ids))

	res := make([]order.Order, 0, end-offset)
	for _, id := range ids[offset:end] {
		res = append(res, cloneOrder(r.store.orders[id]))
	}

	return res, nil
}

// CustomerRepository stores customers in memory.
type CustomerRepository struct {
	store *Store
	uow   *UnitOfWork
}

// FindByEmail returns the active customer with the given email.
func (r *CustomerRepository) FindByEmail(_ context.Context, email string) (*customer.Customer, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, c := range r.store.customers {
		if strings.EqualFold(c.Email, email) && !c.Deleted() {
			res := c

			return &res, nil
		}
	}

	return nil, fmt.Errorf("customer %s: %w", email, domainerr.ErrEntityNotFound)
}

// Save inserts or updates a customer.
func (r *CustomerRepository) Save(_ context.Context, c *customer.Customer) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == 0 {
		c.ID = s.nextID()
		c.CreatedAt = time.Now()
		id := c.ID
		r.uow.record(func() { delete(s.customers, id) })
	} else if stored, ok := s.customers[c.ID]; ok {
		r.uow.record(func() { s.customers[stored.ID] = stored })
	}
	s.customers[c.ID] = *c

	return nil
}

// OutboxRepository stores outbox rows in memory.
type OutboxRepository struct {
	store *Store
}

// NewOutboxRepository creates an outbox repository.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

// Insert adds a message.
func (r *OutboxRepository) Insert(_ context.Context, msg outbox.OutboxMessage) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now()
	msg.ID = r.store.nextID()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	if msg.NextRetryAt.IsZero() {
		msg.NextRetryAt = now
	}
	msg.UpdatedAt = now
	r.store.outbox[msg.ID] = msg

	return nil
}

// GetPendingMessages returns messages ready for publishing.
func (r *OutboxRepository) GetPendingMessages(_ context.Context, limit int) ([]outbox.OutboxMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now()
	var res []outbox.OutboxMessage
	for _, msg := range r.store.outbox {
		if !msg.NextRetryAt.After(now) && msg.RetryCount < msg.MaxRetries {
			res = append(res, msg)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	if len(res) > limit {
		res = res[:limit]
	}

	return res, nil
}

// Delete removes a message.
func (r *OutboxRepository) Delete(_ context.Context, id int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	delete(r.store.outbox, id)

	return nil
}

// UpdateRetry updates retry information.
func (r *OutboxRepository) UpdateRetry(_ context.Context, id int64, retryCount int, lastError string, nextRetryAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	msg, ok := r.store.outbox[id]
	if !ok {
		return fmt.Errorf("outbox message %d: %w", id, domainerr.ErrEntityNotFound)
	}
	msg.RetryCount = retryCount
	msg.LastError = lastError
	msg.NextRetryAt = nextRetryAt
	msg.UpdatedAt = time.Now()
	r.store.outbox[id] = msg

	return nil
}

// InboxRepository stores inbox rows in memory.
type InboxRepository struct {
	store *Store
}

// NewInboxRepository creates an inbox repository.
func NewInboxRepository(store *Store) *InboxRepository {
	return &InboxRepository{store: store}
}

// Insert adds a message unless one with the same message id exists.
func (r *InboxRepository) Insert(_ context.Context, msg inbox.InboxMessage) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if msg.MessageID != "" {
		for _, existing := range r.store.inbox {
			if existing.MessageID == msg.MessageID {
				return nil
			}
		}
	}

	now := time.Now()
	msg.ID = r.store.nextID()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	if msg.NextRetryAt.IsZero() {
		msg.NextRetryAt = now
	}
	r.store.inbox[msg.ID] = msg

	return nil
}

// GetPendingMessages returns messages ready for retry.
func (r *InboxRepository) GetPendingMessages(_ context.Context, limit int) ([]inbox.InboxMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now()
	var res []inbox.InboxMessage
	for _, msg := range r.store.inbox {
		if !msg.NextRetryAt.After(now) && msg.RetryCount < msg.MaxRetries {
			res = append(res, msg)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	if len(res) > limit {
		res = res[:limit]
	}

	return res, nil
}

// Delete removes a message.
func (r *InboxRepository) Delete(_ context.Context, id int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	delete(r.store.inbox, id)

	return nil
}

// UpdateRetry updates retry information.
func (r *InboxRepository) UpdateRetry(_ context.Context, id int64, retryCount int, lastError string, nextRetryAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	msg, ok := r.store.inbox[id]
	if !ok {
		return fmt.Errorf("inbox message %d: %w", id, domainerr.ErrEntityNotFound)
	}
	msg.RetryCount = retryCount
	msg.LastError = lastError
	msg.NextRetryAt = nextRetryAt
	msg.UpdatedAt = time.Now()
	r.store.inbox[id] = msg

	return nil
}

// SeedOrder stores an order as is, assigning ids when missing. Used by tests.
func (s *Store) SeedOrder(o order.Order) order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.Customer.ID == 0 {
		o.Customer.ID = s.nextID()
	}
	if _, ok := s.customers[o.Customer.ID]; !ok {
		s.customers[o.Customer.ID] = o.Customer
	}
	if o.ID == 0 {
		o.ID = s.nextID()
	}
	if o.Version == 0 {
		o.Version = 1
	}
	items := make([]orderitem.OrderItem, len(o.OrderItems))
	for i, item := range o.OrderItems {
		item.OrderID = o.ID
		if item.ID == 0 {
			item.ID = s.nextID()
		}
		items[i] = item
	}
	o.OrderItems = items
	s.orders[o.ID] = cloneOrder(o)

	return cloneOrder(o)
}
