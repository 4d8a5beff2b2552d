// Package ordersvctest builds an OrderService over in-memory storage and recording collaborators.
package ordersvctest

import (
	"context"
	"fmt"
	"sync"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/memory"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/inventory"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderstatus"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/product"
	"github.com/corray333/backend-labs/fulfillment/internal/service/services/ordersvc"
)

// Inventory serves a fixed product catalog.
type Inventory struct {
	mu       sync.Mutex
	products map[string]product.Product
	Err      error
}

func (i *Inventory) GetProduct(_ context.Context, sku string) (product.Product, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.Err != nil {
		return product.Product{}, i.Err
	}
	p, ok := i.products[sku]
	if !ok {
		return product.Product{}, fmt.Errorf("product %s not found", sku)
	}

	return p, nil
}

// Publishers records reservation commands and status events.
type Publishers struct {
	mu           sync.Mutex
	reservations []inventory.Command
	statuses     []orderstatus.Event
}

func (p *Publishers) PublishReservation(_ context.Context, cmd inventory.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.reservations = append(p.reservations, cmd)

	return nil
}

func (p *Publishers) EnqueueReservation(ctx context.Context, cmd inventory.Command) error {
	return p.PublishReservation(ctx, cmd)
}

func (p *Publishers) PublishOrderStatus(_ context.Context, event orderstatus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.statuses = append(p.statuses, event)

	return nil
}

func (p *Publishers) Reservations() []inventory.Command {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]inventory.Command(nil), p.reservations...)
}

func (p *Publishers) Statuses() []orderstatus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]orderstatus.Event(nil), p.statuses...)
}

// Env is a service wired to in-memory collaborators.
type Env struct {
	Service    *ordersvc.OrderService
	Store      *memory.Store
	Inventory  *Inventory
	Publishers *Publishers
}

// New builds a strict service whose catalog holds SKU1 (price 10, 5 in stock) and SKU2 (price 2.5, 100 in stock).
func New() *Env {
	env := &Env{
		Store: memory.NewStore(),
		Inventory: &Inventory{products: map[string]product.Product{
			"SKU1": {SKU: "SKU1", Name: "Mug", Price: 10, Quantity: 5},
			"SKU2": {SKU: "SKU2", Name: "Plate", Price: 2.5, Quantity: 100},
		}},
		Publishers: &Publishers{},
	}
	env.Service = ordersvc.MustNewOrderService(
		ordersvc.WithMemoryStore(env.Store),
		ordersvc.WithInventoryService(env.Inventory),
		ordersvc.WithReservationPublisher(env.Publishers),
		ordersvc.WithOrderStatusPublisher(env.Publishers),
		ordersvc.WithStrictTransitions(true),
	)

	return env
}
