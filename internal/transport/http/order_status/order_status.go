package orderstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/transport/http/params"
	"github.com/corray333/backend-labs/fulfillment/pkg/http/response"
	"github.com/go-playground/validator/v10"
)

type service interface {
	ConfirmOrder(ctx context.Context, id int64) (*order.Order, error)
	CancelOrder(ctx context.Context, id int64) (*order.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error)
	CalculateOrderTotal(ctx context.Context, o *order.Order) (float64, error)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func ConfirmOrder(w http.ResponseWriter, r *http.Request, service service) {
	transition(w, r, service.ConfirmOrder)
}

func CancelOrder(w http.ResponseWriter, r *http.Request, service service) {
	transition(w, r, service.CancelOrder)
}

func transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, int64) (*order.Order, error)) {
	id, err := params.ID(r)
	if err != nil {
		response.BadRequest(w, r, err)

		return
	}

	o, err := apply(r.Context(), id)
	if err != nil {
		response.Error(w, r, err)

		return
	}

	response.JSON(w, http.StatusOK, o)
}

// UpdateOrderStatus moves an order to the requested status and answers with its current total.
func UpdateOrderStatus(w http.ResponseWriter, r *http.Request, service service) {
	id, err := params.ID(r)
	if err != nil {
		response.BadRequest(w, r, err)

		return
	}

	req := updateStatusRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, fmt.Errorf("failed to decode request body: %w", err))

		return
	}
	if err := validator.New().Struct(req); err != nil {
		response.BadRequest(w, r, err)

		return
	}

	status, err := order.ParseStatus(req.Status)
	if err != nil {
		response.Error(w, r, err)

		return
	}

	o, err := service.UpdateOrderStatus(r.Context(), id, status)
	if err != nil {
		response.Error(w, r, err)

		return
	}

	total, err := service.CalculateOrderTotal(r.Context(), o)
	if err != nil {
		response.Error(w, r, err)

		return
	}
	if err := o.SetTotalAmount(total); err != nil {
		response.Error(w, r, err)

		return
	}

	response.JSON(w, http.StatusOK, o)
}
