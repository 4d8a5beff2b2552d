package orderitem

import (
	"fmt"
	"strings"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
)

// OrderItem represents an item within an order
type OrderItem struct {
	ID          int64   `json:"id"`
	OrderID     int64   `json:"order_id"`
	ProductSKU  string  `json:"product_sku"`
	Quantity    int     `json:"quantity"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price,omitempty"`
}

// Validate checks item invariants.
func (i OrderItem) Validate() error {
	if strings.TrimSpace(i.ProductSKU) == "" {
		return fmt.Errorf("%w: product sku must not be empty", domainerr.ErrInvalidEntity)
	}
	if i.Quantity < 0 {
		return fmt.Errorf("%w: quantity of %s must not be negative", domainerr.ErrInvalidEntity, i.ProductSKU)
	}
	if i.Price < 0 {
		return fmt.Errorf("%w: price of %s must not be negative", domainerr.ErrInvalidEntity, i.ProductSKU)
	}

	return nil
}

// QuantitiesBySKU sums quantities per SKU.
func QuantitiesBySKU(items []OrderItem) map[string]int {
	res := make(map[string]int, len(items))
	for _, item := range items {
		res[item.ProductSKU] += item.Quantity
	}

	return res
}
