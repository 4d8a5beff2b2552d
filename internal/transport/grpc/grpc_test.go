package grpctransport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/customer"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderitem"
	"github.com/corray333/backend-labs/fulfillment/internal/service/services/ordersvc/ordersvctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func newTestClient(t *testing.T) (*grpc.ClientConn, *ordersvctest.Env) {
	t.Helper()

	env := ordersvctest.New()
	lis := bufconn.Listen(1 << 20)
	transport := NewGRPCTransportWithListener(env.Service, lis)
	go func() { _ = transport.Run() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = transport.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn, env
}

func createOrder(t *testing.T, env *ordersvctest.Env) *order.Order {
	t.Helper()

	o, err := env.Service.CreateOrder(context.Background(),
		customer.Customer{Name: "Ann", Email: "ann@example.com"},
		[]orderitem.OrderItem{{ProductSKU: "SKU1", Quantity: 2}},
	)
	require.NoError(t, err)

	return o
}

func invoke(conn *grpc.ClientConn, method string, in any) (*structpb.Struct, error) {
	out := &structpb.Struct{}
	err := conn.Invoke(context.Background(), "/"+ServiceName+"/"+method, in, out)

	return out, err
}

func TestGetOrder(t *testing.T) {
	conn, env := newTestClient(t)
	created := createOrder(t, env)

	out, err := invoke(conn, "GetOrder", wrapperspb.Int64(created.ID))

	require.NoError(t, err)
	assert.Equal(t, float64(created.ID), out.Fields["id"].GetNumberValue())
	assert.Equal(t, "PENDING", out.Fields["status"].GetStringValue())
	assert.InDelta(t, 20.0, out.Fields["total_amount"].GetNumberValue(), 1e-9)
	assert.Equal(t, created.OrderNumber, out.Fields["order_number"].GetStringValue())
}

func TestConfirmAndCancel(t *testing.T) {
	conn, env := newTestClient(t)
	created := createOrder(t, env)

	out, err := invoke(conn, "ConfirmOrder", wrapperspb.Int64(created.ID))
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", out.Fields["status"].GetStringValue())

	_, err = invoke(conn, "ConfirmOrder", wrapperspb.Int64(created.ID))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	out, err = invoke(conn, "CancelOrder", wrapperspb.Int64(created.ID))
	require.NoError(t, err)
	assert.Equal(t, "CANCELED", out.Fields["status"].GetStringValue())
	assert.Len(t, env.Publishers.Statuses(), 2)
}

func TestUpdateOrderStatus(t *testing.T) {
	conn, env := newTestClient(t)
	created := createOrder(t, env)

	req, err := structpb.NewStruct(map[string]any{"id": float64(created.ID), "status": "paid"})
	require.NoError(t, err)

	out, err := invoke(conn, "UpdateOrderStatus", req)

	require.NoError(t, err)
	assert.Equal(t, "PAID", out.Fields["status"].GetStringValue())
	assert.InDelta(t, 20.0, out.Fields["total_amount"].GetNumberValue(), 1e-9)
}

func TestErrorCodes(t *testing.T) {
	conn, env := newTestClient(t)
	created := createOrder(t, env)

	tests := []struct {
		name   string
		method string
		in     any
		want   codes.Code
	}{
		{name: "missing order", method: "GetOrder", in: wrapperspb.Int64(404), want: codes.NotFound},
		{
			name:   "no id",
			method: "UpdateOrderStatus",
			in:     &structpb.Struct{Fields: map[string]*structpb.Value{"status": structpb.NewStringValue("PAID")}},
			want:   codes.InvalidArgument,
		},
		{
			name:   "unknown status",
			method: "UpdateOrderStatus",
			in: &structpb.Struct{Fields: map[string]*structpb.Value{
				"id":     structpb.NewNumberValue(float64(created.ID)),
				"status": structpb.NewStringValue("LOST"),
			}},
			want: codes.InvalidArgument,
		},
		{
			name:   "illegal transition",
			method: "UpdateOrderStatus",
			in: &structpb.Struct{Fields: map[string]*structpb.Value{
				"id":     structpb.NewNumberValue(float64(created.ID)),
				"status": structpb.NewStringValue("FINISHED"),
			}},
			want: codes.FailedPrecondition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := invoke(conn, tt.method, tt.in)

			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}
