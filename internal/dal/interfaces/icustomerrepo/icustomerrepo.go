package icustomerrepo

import (
	"context"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/customer"
)

// ICustomerRepository is an interface for customer repository.
type ICustomerRepository interface {
	// FindByEmail returns a customer that is not logically deleted.
	FindByEmail(ctx context.Context, email string) (*customer.Customer, error)
	Save(ctx context.Context, c *customer.Customer) error
}
