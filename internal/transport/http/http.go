package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/customer"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderitem"
	createorder "github.com/corray333/backend-labs/fulfillment/internal/transport/http/create_order"
	getorder "github.com/corray333/backend-labs/fulfillment/internal/transport/http/get_order"
	listorders "github.com/corray333/backend-labs/fulfillment/internal/transport/http/list_orders"
	orderstatus "github.com/corray333/backend-labs/fulfillment/internal/transport/http/order_status"
	updateorder "github.com/corray333/backend-labs/fulfillment/internal/transport/http/update_order"
	"github.com/corray333/backend-labs/fulfillment/pkg/http/middleware/metrics"
	"github.com/corray333/backend-labs/fulfillment/pkg/http/middleware/trace"
	"github.com/corray333/backend-labs/fulfillment/pkg/http/response"
	"github.com/corray333/backend-labs/fulfillment/pkg/logger"
	promhandler "github.com/corray333/backend-labs/fulfillment/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
)

type service interface {
	CreateOrder(ctx context.Context, c customer.Customer, items []orderitem.OrderItem) (*order.Order, error)
	UpdateOrder(ctx context.Context, id int64, c customer.Customer, items []orderitem.OrderItem) (*order.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	GetOrder(ctx context.Context, id int64) (*order.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*order.Order, error)
	ListOrders(ctx context.Context, query order.QueryOrdersModel) ([]order.Order, error)
	ConfirmOrder(ctx context.Context, id int64) (*order.Order, error)
	CancelOrder(ctx context.Context, id int64) (*order.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error)
	CalculateOrderTotal(ctx context.Context, o *order.Order) (float64, error)
}

type HTTPTransport struct {
	server  *http.Server
	router  *chi.Mux
	service service
}

func NewHTTPTransport(service service) *HTTPTransport {
	router := newRouter()
	server := newServer(router)

	return &HTTPTransport{
		server:  server,
		router:  router,
		service: service,
	}
}

func (h *HTTPTransport) Run() error {
	slog.Info("Starting HTTP server", "address", h.server.Addr)

	return h.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// Handler exposes the router.
func (h *HTTPTransport) Handler() http.Handler {
	return h.router
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Get("/health", health)
	h.router.Method(http.MethodGet, "/metrics", promhandler.Handler())

	h.router.Route("/api/orders", func(r chi.Router) {
		r.Use(metrics.NewMetricsMiddleware)

		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Get("/number/{orderNumber}", h.getOrderByNumber)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Put("/", h.updateOrder)
			r.Delete("/", h.deleteOrder)
			r.Post("/confirm", h.confirmOrder)
			r.Post("/cancel", h.cancelOrder)
			r.Patch("/status", h.updateOrderStatus)
		})
	})
}

func (h *HTTPTransport) createOrder(w http.ResponseWriter, r *http.Request) {
	createorder.CreateOrder(w, r, h.service)
}

func (h *HTTPTransport) updateOrder(w http.ResponseWriter, r *http.Request) {
	updateorder.UpdateOrder(w, r, h.service)
}

func (h *HTTPTransport) deleteOrder(w http.ResponseWriter, r *http.Request) {
	updateorder.DeleteOrder(w, r, h.service)
}

func (h *HTTPTransport) getOrder(w http.ResponseWriter, r *http.Request) {
	getorder.GetOrder(w, r, h.service)
}

func (h *HTTPTransport) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	getorder.GetOrderByNumber(w, r, h.service)
}

func (h *HTTPTransport) listOrders(w http.ResponseWriter, r *http.Request) {
	listorders.ListOrders(w, r, h.service)
}

func (h *HTTPTransport) confirmOrder(w http.ResponseWriter, r *http.Request) {
	orderstatus.ConfirmOrder(w, r, h.service)
}

func (h *HTTPTransport) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderstatus.CancelOrder(w, r, h.service)
}

func (h *HTTPTransport) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderstatus.UpdateOrderStatus(w, r, h.service)
}

func health(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(trace.NewTraceMiddleware)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	port := viper.GetString("server.http.port")
	if port == "" {
		port = "8080"
	}

	return &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
