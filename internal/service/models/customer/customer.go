package customer

import (
	"fmt"
	"strings"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
)

// Customer represents a customer owned by the orders context.
type Customer struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"-"`
}

// Validate checks customer invariants.
func (c Customer) Validate() error {
	if c.ID < 0 {
		return fmt.Errorf("%w: customer id must be positive", domainerr.ErrInvalidEntity)
	}
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("%w: customer email must not be empty", domainerr.ErrInvalidEntity)
	}

	return nil
}

// Deleted reports whether the customer was logically deleted.
func (c Customer) Deleted() bool {
	return c.DeletedAt != nil
}
