package grpctransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "fulfillment.v1.OrderService"

// OrderServiceServer is the server API of fulfillment.v1.OrderService.
type OrderServiceServer interface {
	GetOrder(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error)
	ConfirmOrder(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error)
	CancelOrder(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error)
	UpdateOrderStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// OrderServer implements the gRPC OrderService.
type OrderServer struct {
	service service
}

// NewOrderServer creates a new OrderServer.
func NewOrderServer(service service) *OrderServer {
	return &OrderServer{
		service: service,
	}
}

// GetOrder returns an order with its total.
func (s *OrderServer) GetOrder(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	slog.InfoContext(ctx, "Received GetOrder gRPC request", "order_id", req.GetValue())

	o, err := s.service.GetOrder(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus("failed to get order", err)
	}

	return orderToStruct(o)
}

// ConfirmOrder confirms a pending order.
func (s *OrderServer) ConfirmOrder(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	slog.InfoContext(ctx, "Received ConfirmOrder gRPC request", "order_id", req.GetValue())

	o, err := s.service.ConfirmOrder(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus("failed to confirm order", err)
	}

	return orderToStruct(o)
}

// CancelOrder cancels an order and releases its stock.
func (s *OrderServer) CancelOrder(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	slog.InfoContext(ctx, "Received CancelOrder gRPC request", "order_id", req.GetValue())

	o, err := s.service.CancelOrder(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus("failed to cancel order", err)
	}

	return orderToStruct(o)
}

// UpdateOrderStatus expects {"id": <number>, "status": <string>}.
func (s *OrderServer) UpdateOrderStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	id := int64(fields["id"].GetNumberValue())
	if id <= 0 {
		return nil, status.Error(codes.InvalidArgument, "id must be a positive number")
	}
	target, err := order.ParseStatus(fields["status"].GetStringValue())
	if err != nil {
		return nil, toStatus("failed to parse status", err)
	}

	slog.InfoContext(ctx, "Received UpdateOrderStatus gRPC request", "order_id", id, "status", target)

	o, err := s.service.UpdateOrderStatus(ctx, id, target)
	if err != nil {
		return nil, toStatus("failed to update order status", err)
	}
	total, err := s.service.CalculateOrderTotal(ctx, o)
	if err != nil {
		return nil, toStatus("failed to calculate order total", err)
	}
	if err := o.SetTotalAmount(total); err != nil {
		return nil, toStatus("failed to calculate order total", err)
	}

	return orderToStruct(o)
}

func orderToStruct(o *order.Order) (*structpb.Struct, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode order: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode order: %v", err)
	}
	res, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode order: %v", err)
	}

	return res, nil
}

// codeFor maps the domain error taxonomy to gRPC codes.
func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, domainerr.ErrEntityNotFound):
		return codes.NotFound
	case errors.Is(err, domainerr.ErrInvalidEntity):
		return codes.InvalidArgument
	case errors.Is(err, domainerr.ErrInvalidAction), errors.Is(err, domainerr.ErrInventoryUnavailable):
		return codes.FailedPrecondition
	case errors.Is(err, domainerr.ErrConcurrentUpdate):
		return codes.Aborted
	case errors.Is(err, domainerr.ErrPriceUnavailable):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

func toStatus(msg string, err error) error {
	code := codeFor(err)
	if code == codes.Internal || code == codes.Unavailable {
		slog.Error("gRPC request failed", "error", err)
	}

	return status.Error(code, fmt.Sprintf("%s: %v", msg, err))
}

func unaryHandler[Req any](
	method string,
	call func(OrderServiceServer, context.Context, *Req) (*structpb.Struct, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}

		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		})
	}
}

// OrderServiceDesc describes fulfillment.v1.OrderService. Messages are protobuf well-known types.
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetOrder",
			Handler:    unaryHandler("GetOrder", OrderServiceServer.GetOrder),
		},
		{
			MethodName: "ConfirmOrder",
			Handler:    unaryHandler("ConfirmOrder", OrderServiceServer.ConfirmOrder),
		},
		{
			MethodName: "CancelOrder",
			Handler:    unaryHandler("CancelOrder", OrderServiceServer.CancelOrder),
		},
		{
			MethodName: "UpdateOrderStatus",
			Handler:    unaryHandler("UpdateOrderStatus", OrderServiceServer.UpdateOrderStatus),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fulfillment/v1/order_service.proto",
}

// RegisterOrderServiceServer registers srv on s.
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}
