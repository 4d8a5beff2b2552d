package createorder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/customer"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderitem"
	"github.com/corray333/backend-labs/fulfillment/pkg/http/response"
	"github.com/go-playground/validator/v10"
)

// service is an interface for the service layer.
type service interface {
	CreateOrder(ctx context.Context, c customer.Customer, items []orderitem.OrderItem) (*order.Order, error)
}

var validate = validator.New()

// customerInOrderRequest represents the customer of an order request.
type customerInOrderRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"required,email"`
}

// itemInOrderRequest represents an item in an order request.
type itemInOrderRequest struct {
	ProductSKU string `json:"product_sku" validate:"required"`
	Quantity   int    `json:"quantity"    validate:"gt=0"`
}

// OrderRequest is the body of create and update requests.
type OrderRequest struct {
	Customer customerInOrderRequest `json:"customer"`
	Items    []itemInOrderRequest   `json:"items"    validate:"required,min=1,dive"`
}

// Validate validates the order request.
func (r *OrderRequest) Validate() error {
	return validate.Struct(r)
}

// ToModel converts the request to the customer and items accepted by the service.
func (r *OrderRequest) ToModel() (customer.Customer, []orderitem.OrderItem) {
	items := make([]orderitem.OrderItem, len(r.Items))
	for i, item := range r.Items {
		items[i] = orderitem.OrderItem{
			ProductSKU: item.ProductSKU,
			Quantity:   item.Quantity,
		}
	}

	return customer.Customer{Name: r.Customer.Name, Email: r.Customer.Email}, items
}

// DecodeOrderRequest decodes and validates an order request body.
func DecodeOrderRequest(r *http.Request) (*OrderRequest, error) {
	req := &OrderRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return nil, fmt.Errorf("failed to decode request body: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return req, nil
}

// CreateOrder handles the create order request.
func CreateOrder(w http.ResponseWriter, r *http.Request, service service) {
	req, err := DecodeOrderRequest(r)
	if err != nil {
		response.BadRequest(w, r, err)

		return
	}

	c, items := req.ToModel()
	created, err := service.CreateOrder(r.Context(), c, items)
	if err != nil {
		response.Error(w, r, err)

		return
	}

	response.JSON(w, http.StatusCreated, created)
}
