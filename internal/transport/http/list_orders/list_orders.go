package listorders

import (
	"context"
	"net/http"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/pkg/http/response"
	"github.com/gorilla/schema"
)

type service interface {
	ListOrders(ctx context.Context, query order.QueryOrdersModel) ([]order.Order, error)
}

type queryOrdersRequest struct {
	Page     int `schema:"page,omitempty"`
	PageSize int `schema:"page_size,omitempty"`
}

func (q *queryOrdersRequest) ToModel() order.QueryOrdersModel {
	return order.QueryOrdersModel{
		Page:     q.Page,
		PageSize: q.PageSize,
	}
}

func ListOrders(w http.ResponseWriter, r *http.Request, service service) {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	query := &queryOrdersRequest{}
	if err := decoder.Decode(query, r.URL.Query()); err != nil {
		response.BadRequest(w, r, err)

		return
	}

	orders, err := service.ListOrders(r.Context(), query.ToModel())
	if err != nil {
		response.Error(w, r, err)

		return
	}
	if orders == nil {
		orders = []order.Order{}
	}

	response.JSON(w, http.StatusOK, orders)
}
