package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/customer"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderitem"
	"github.com/google/uuid"
)

// Order represents an order in the system.
type Order struct {
	ID            int64                 `json:"id"`
	OrderNumber   string                `json:"order_number"`
	Customer      customer.Customer     `json:"customer"`
	OrderItems    []orderitem.OrderItem `json:"order_items"`
	Status        Status                `json:"status"`
	TotalAmount   float64               `json:"total_amount"`
	EstimatedTime *string               `json:"estimated_time,omitempty"`
	Version       int64                 `json:"-"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// Params holds the fields accepted when creating an order.
type Params struct {
	OrderNumber   string
	Customer      customer.Customer
	OrderItems    []orderitem.OrderItem
	EstimatedTime *string
}

// New creates a pending order. An order number is generated when none is given.
func New(p Params) (*Order, error) {
	number := strings.TrimSpace(p.OrderNumber)
	if number == "" {
		number = uuid.NewString()
	}

	o := &Order{
		OrderNumber:   number,
		Customer:      p.Customer,
		OrderItems:    append([]orderitem.OrderItem(nil), p.OrderItems...),
		Status:        StatusPending,
		EstimatedTime: p.EstimatedTime,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	return o, nil
}

// Validate checks every aggregate invariant.
func (o *Order) Validate() error {
	if o.ID < 0 {
		return fmt.Errorf("%w: order id must be positive", domainerr.ErrInvalidEntity)
	}
	if strings.TrimSpace(o.OrderNumber) == "" {
		return fmt.Errorf("%w: order number must not be empty", domainerr.ErrInvalidEntity)
	}
	if err := o.Customer.Validate(); err != nil {
		return err
	}
	for _, item := range o.OrderItems {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	if !o.Status.Valid() {
		return fmt.Errorf("%w: unknown order status %q", domainerr.ErrInvalidEntity, o.Status)
	}
	if o.TotalAmount < 0 {
		return fmt.Errorf("%w: total amount must not be negative", domainerr.ErrInvalidEntity)
	}

	return nil
}

// SetItems replaces the order items.
func (o *Order) SetItems(items []orderitem.OrderItem) error {
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	o.OrderItems = append([]orderitem.OrderItem(nil), items...)

	return nil
}

// SetCustomer replaces the customer.
func (o *Order) SetCustomer(c customer.Customer) error {
	if err := c.Validate(); err != nil {
		return err
	}
	o.Customer = c

	return nil
}

// SetTotalAmount sets the derived total.
func (o *Order) SetTotalAmount(total float64) error {
	if total < 0 {
		return fmt.Errorf("%w: total amount must not be negative", domainerr.ErrInvalidEntity)
	}
	o.TotalAmount = total

	return nil
}

// SetEstimatedTime sets or clears the estimated time.
func (o *Order) SetEstimatedTime(t *string) {
	o.EstimatedTime = t
}

// Apply moves the order through the state machine.
// It reports false without error when the event was a replay.
func (o *Order) Apply(sm StateMachine, ev Event) (bool, error) {
	next, err := sm.Next(o.Status, ev)
	if err != nil {
		return false, fmt.Errorf("order %d: %w", o.ID, err)
	}

	return o.moveTo(next), nil
}

// ChangeStatus sets the status through the generic status path.
func (o *Order) ChangeStatus(sm StateMachine, target Status) (bool, error) {
	next, err := sm.Target(o.Status, target)
	if err != nil {
		return false, fmt.Errorf("order %d: %w", o.ID, err)
	}

	return o.moveTo(next), nil
}

func (o *Order) moveTo(next Status) bool {
	if o.Status == next {
		return false
	}
	o.Status = next

	return true
}
