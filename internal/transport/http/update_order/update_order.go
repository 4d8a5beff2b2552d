package updateorder

import (
	"context"
	"net/http"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/customer"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderitem"
	createorder "github.com/corray333/backend-labs/fulfillment/internal/transport/http/create_order"
	"github.com/corray333/backend-labs/fulfillment/internal/transport/http/params"
	"github.com/corray333/backend-labs/fulfillment/pkg/http/response"
)

type service interface {
	UpdateOrder(ctx context.Context, id int64, c customer.Customer, items []orderitem.OrderItem) (*order.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
}

// UpdateOrder replaces the customer and items of an order.
func UpdateOrder(w http.ResponseWriter, r *http.Request, service service) {
	id, err := params.ID(r)
	if err != nil {
		response.BadRequest(w, r, err)

		return
	}

	req, err := createorder.DecodeOrderRequest(r)
	if err != nil {
		response.BadRequest(w, r, err)

		return
	}

	c, items := req.ToModel()
	updated, err := service.UpdateOrder(r.Context(), id, c, items)
	if err != nil {
		response.Error(w, r, err)

		return
	}

	response.JSON(w, http.StatusOK, updated)
}

// DeleteOrder removes an order.
func DeleteOrder(w http.ResponseWriter, r *http.Request, service service) {
	id, err := params.ID(r)
	if err != nil {
		response.BadRequest(w, r, err)

		return
	}

	if err := service.DeleteOrder(r.Context(), id); err != nil {
		response.Error(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
