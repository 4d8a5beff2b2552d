package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iinboxrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/ioutboxrepo"
	inventoryhttp "github.com/corray333/backend-labs/fulfillment/internal/dal/inventory/http"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/kafka"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/memory"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/postgres"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/rabbitmq"
	inboxrepo "github.com/corray333/backend-labs/fulfillment/internal/dal/repositories/inbox/postgres"
	orderstatuskafka "github.com/corray333/backend-labs/fulfillment/internal/dal/repositories/orderstatus/kafka"
	orderstatusrabbitmq "github.com/corray333/backend-labs/fulfillment/internal/dal/repositories/orderstatus/rabbitmq"
	outboxrepo "github.com/corray333/backend-labs/fulfillment/internal/dal/repositories/outbox/postgres"
	reservationrabbitmq "github.com/corray333/backend-labs/fulfillment/internal/dal/repositories/reservation/rabbitmq"
	"github.com/corray333/backend-labs/fulfillment/internal/otel"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderstatus"
	"github.com/corray333/backend-labs/fulfillment/internal/service/services/ordersvc"
	"github.com/corray333/backend-labs/fulfillment/internal/transport/consumer"
	grpctransport "github.com/corray333/backend-labs/fulfillment/internal/transport/grpc"
	httptransport "github.com/corray333/backend-labs/fulfillment/internal/transport/http"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/inbox"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/outbox"
	"github.com/spf13/viper"
)

type orderStatusSink interface {
	PublishOrderStatus(ctx context.Context, event orderstatus.Event) error
	io.Closer
}

// App represents the application.
type App struct {
	otel           *otel.OtelController
	postgresClient *postgres.Client
	rabbitClient   *rabbitmq.Client

	reservations *reservationrabbitmq.ReservationRabbitMQRepository
	statusSink   orderStatusSink

	orderSvc      *ordersvc.OrderService
	httpTransport *httptransport.HTTPTransport
	grpcTransport *grpctransport.GRPCTransport
	subscribers   []*consumer.Subscriber
	outboxWorker  *outbox.Worker
	inboxWorker   *inbox.Worker
}

// MustNewApp creates a new application. Any unreachable dependency aborts startup.
func MustNewApp() *App {
	a := &App{
		otel:         otel.MustInitOtel(),
		rabbitClient: rabbitmq.MustNewClient(),
	}

	var (
		storage    func(*ordersvc.OrderService)
		outboxRepo ioutboxrepo.IOutboxRepository
		inboxRepo  iinboxrepo.IInboxRepository
	)
	switch driver := viper.GetString("storage.driver"); driver {
	case "memory":
		slog.Warn("Using in-memory storage, data will not survive a restart")
		store := memory.NewStore()
		storage = ordersvc.WithMemoryStore(store)
		outboxRepo = memory.NewOutboxRepository(store)
		inboxRepo = memory.NewInboxRepository(store)
	case "", "postgres":
		a.postgresClient = postgres.MustNewClient()
		storage = ordersvc.WithPostgresClient(a.postgresClient)
		outboxRepo = outboxrepo.NewOutboxRepository(a.postgresClient)
		inboxRepo = inboxrepo.NewInboxRepository(a.postgresClient)
	default:
		panic("unknown storage driver: " + driver)
	}

	reservations, err := reservationrabbitmq.NewReservationRabbitMQRepository(a.rabbitClient, outboxRepo)
	if err != nil {
		panic(err)
	}
	a.reservations = reservations
	a.statusSink = mustNewOrderStatusSink(a.rabbitClient, outboxRepo)

	a.orderSvc = ordersvc.MustNewOrderService(
		storage,
		ordersvc.WithInventoryService(inventoryhttp.MustNewClient()),
		ordersvc.WithReservationPublisher(a.reservations),
		ordersvc.WithOrderStatusPublisher(a.statusSink),
	)

	a.subscribers = []*consumer.Subscriber{
		consumer.NewPaymentSubscriber(a.rabbitClient, inboxRepo, a.orderSvc),
		consumer.NewDeliverySubscriber(a.rabbitClient, inboxRepo, a.orderSvc),
	}
	a.outboxWorker = outbox.NewWorker(outboxRepo, a.rabbitClient)
	a.inboxWorker = inbox.NewWorker(inboxRepo, consumer.HandlersByQueue(a.subscribers...))

	a.httpTransport = httptransport.NewHTTPTransport(a.orderSvc)
	a.httpTransport.RegisterRoutes()
	a.grpcTransport = grpctransport.NewGRPCTransport(a.orderSvc)

	return a
}

func mustNewOrderStatusSink(connector rabbitmq.Connector, outboxRepo ioutboxrepo.IOutboxRepository) orderStatusSink {
	switch sink := viper.GetString("order_status.sink"); sink {
	case "kafka":
		return orderstatuskafka.NewOrderStatusKafkaRepository(kafka.MustNewClient())
	case "", "rabbitmq":
		repo, err := orderstatusrabbitmq.NewOrderStatusRabbitMQRepository(connector, outboxRepo)
		if err != nil {
			panic(err)
		}

		return repo
	default:
		panic("unknown order status sink: " + sink)
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	// Create a channel to receive OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ctx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	for _, s := range a.subscribers {
		go func() {
			if err := s.Run(ctx); err != nil {
				slog.Error("Consumer stopped with error", "queue", s.Queue(), "error", err)
			}
		}()
	}
	go a.outboxWorker.Start(ctx)
	go a.inboxWorker.Start(ctx)

	go func() {
		if err := a.httpTransport.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	go func() {
		if err := a.grpcTransport.Run(); err != nil {
			slog.Error("gRPC server error", "error", err)
		}
	}()

	<-stop
	slog.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpTransport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	if err := a.grpcTransport.Shutdown(ctx); err != nil {
		slog.Error("gRPC server shutdown error", "error", err)
	} else {
		slog.Info("gRPC server stopped gracefully")
	}

	for _, s := range a.subscribers {
		if err := s.Shutdown(); err != nil {
			slog.Error("Consumer shutdown error", "queue", s.Queue(), "error", err)
		}
	}
	a.outboxWorker.Stop()
	a.inboxWorker.Stop()
	cancelWorkers()

	if err := a.reservations.Close(); err != nil {
		slog.Error("Reservation publisher close error", "error", err)
	}
	if err := a.statusSink.Close(); err != nil {
		slog.Error("Order status publisher close error", "error", err)
	}

	if err := a.rabbitClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	if a.postgresClient != nil {
		a.postgresClient.Close()
		slog.Info("Database connection closed gracefully")
	}

	if err := a.otel.Shutdown(ctx); err != nil {
		slog.Error("Tracer provider shutdown error", "error", err)
	}

	slog.Info("Application shutdown complete")
}
