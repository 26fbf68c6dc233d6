package handler

import (
	"context"
	"net"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/storefront/internal/core/domain"
)

func newAdminClient(t *testing.T, f *apiFixture) *AdminClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	srv := grpc.NewServer(grpc.UnaryInterceptor(AdminAuthInterceptor(f.services.Auth)))
	RegisterAdminServer(srv, NewGRPCHandler(f.services.Orders))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewAdminClient(conn)
}

func (f *apiFixture) placeOrder(t *testing.T, token string) domain.Order {
	t.Helper()
	product := f.createProduct(t, "25.50", 4)

	rec := f.do(t, http.MethodPost, "/api/cart/items", token, map[string]any{"productId": product.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/orders", token, shippingBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[domain.Order](t, rec)
}

func TestAdminGRPC(t *testing.T) {
	f := newAPIFixture(t)
	userToken := f.registerUser(t, "buyer@example.com")
	order := f.placeOrder(t, userToken)
	client := newAdminClient(t, f)
	ctx := context.Background()

	t.Run("get order", func(t *testing.T) {
		got, err := client.GetOrder(WithBearer(ctx, f.adminToken), order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.ID, got.ID)
		assert.True(t, got.Total.Equal(decimal.RequireFromString("51")), got.Total.String())
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := client.GetOrder(ctx, order.ID)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := client.GetOrder(WithBearer(ctx, "bogus"), order.ID)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("non admin", func(t *testing.T) {
		_, err := client.GetOrder(WithBearer(ctx, userToken), order.ID)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := client.GetOrder(WithBearer(ctx, f.adminToken), "missing")
		assert.Equal(t, codes.NotFound, status.Code(err))
	})

	t.Run("illegal transition", func(t *testing.T) {
		_, err := client.TransitionOrderStatus(WithBearer(ctx, f.adminToken), order.ID, domain.OrderStatusDelivered)
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	})

	t.Run("transition", func(t *testing.T) {
		got, err := client.TransitionOrderStatus(WithBearer(ctx, f.adminToken), order.ID, domain.OrderStatusProcessing)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusProcessing, got.Status)
		assert.True(t, got.UpdatedAt.After(order.UpdatedAt) || got.UpdatedAt.Equal(order.UpdatedAt))
	})
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{domain.ErrOrderNotFound, codes.NotFound},
		{domain.ErrInvalidTransition, codes.FailedPrecondition},
		{domain.ErrConcurrentUpdate, codes.Aborted},
		{domain.InvalidInput("bad"), codes.InvalidArgument},
		{domain.ErrUnauthorized, codes.Unauthenticated},
		{domain.ErrForbidden, codes.PermissionDenied},
		{assert.AnError, codes.Internal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, status.Code(toStatus(tt.err)), tt.err.Error())
	}
}
