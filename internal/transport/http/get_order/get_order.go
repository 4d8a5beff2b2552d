package getorder

import (
	"context"
	"net/http"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/transport/http/params"
	"github.com/corray333/backend-labs/fulfillment/pkg/http/response"
	"github.com/go-chi/chi/v5"
)

type service interface {
	GetOrder(ctx context.Context, id int64) (*order.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*order.Order, error)
}

func GetOrder(w http.ResponseWriter, r *http.Request, service service) {
	id, err := params.ID(r)
	if err != nil {
		response.BadRequest(w, r, err)

		return
	}

	o, err := service.GetOrder(r.Context(), id)
	if err != nil {
		response.Error(w, r, err)

		return
	}

	response.JSON(w, http.StatusOK, o)
}

func GetOrderByNumber(w http.ResponseWriter, r *http.Request, service service) {
	o, err := service.GetOrderByNumber(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		response.Error(w, r, err)

		return
	}

	response.JSON(w, http.StatusOK, o)
}
