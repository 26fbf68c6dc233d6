package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

const (
	adminServiceName = "storefront.admin.v1.AdminService"
	jsonCodecName    = "json"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries admin messages as JSON instead of protobuf.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return jsonCodecName }

type GetOrderRequest struct {
	OrderID string `json:"orderId"`
}

type TransitionOrderStatusRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type OrderReply struct {
	Order *domain.Order `json:"order"`
}

type AdminServer interface {
	GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderReply, error)
	TransitionOrderStatus(ctx context.Context, req *TransitionOrderStatusRequest) (*OrderReply, error)
}

type GRPCHandler struct {
	orders *service.OrderService
}

func NewGRPCHandler(orders *service.OrderService) *GRPCHandler {
	return &GRPCHandler{orders: orders}
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderReply, error) {
	if req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "orderId is required")
	}

	order, err := h.orders.GetOrder(ctx, currentUser(ctx), req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OrderReply{Order: order}, nil
}

func (h *GRPCHandler) TransitionOrderStatus(ctx context.Context, req *TransitionOrderStatusRequest) (*OrderReply, error) {
	if req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "orderId is required")
	}
	next, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, toStatus(err)
	}

	order, err := h.orders.TransitionOrderStatus(ctx, currentUser(ctx), req.OrderID, next)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OrderReply{Order: order}, nil
}

func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrProductNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrConcurrentUpdate):
		code = codes.Aborted
	case errors.Is(err, domain.ErrInvalidInput):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrUnauthorized):
		code = codes.Unauthenticated
	case errors.Is(err, domain.ErrForbidden):
		code = codes.PermissionDenied
	default:
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

// AdminAuthInterceptor resolves the bearer token in the "authorization"
// metadata and admits admins only.
func AdminAuthInterceptor(auth *service.AuthService) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+adminServiceName+"/") {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		var token string
		if values := md.Get("authorization"); len(values) > 0 {
			token = bearerToken(values[0])
		}
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}

		user, err := auth.Authenticate(ctx, token)
		if err != nil {
			return nil, toStatus(err)
		}
		if err := service.RequireRole(user, domain.RoleAdmin); err != nil {
			return nil, toStatus(err)
		}
		return handler(context.WithValue(ctx, userKey, user), req)
	}
}

func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&adminServiceDesc, srv)
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: adminServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetOrder", Handler: getOrderHandler},
		{MethodName: "TransitionOrderStatus", Handler: transitionOrderStatusHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func getOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).GetOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + adminServiceName + "/GetOrder"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).GetOrder(ctx, req.(*GetOrderRequest))
	})
}

func transitionOrderStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TransitionOrderStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).TransitionOrderStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + adminServiceName + "/TransitionOrderStatus"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).TransitionOrderStatus(ctx, req.(*TransitionOrderStatusRequest))
	})
}

// AdminClient calls AdminService over an existing connection.
type AdminClient struct {
	cc grpc.ClientConnInterface
}

func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{cc: cc}
}

// WithBearer attaches an auth token to outgoing admin calls.
func WithBearer(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

func (c *AdminClient) GetOrder(ctx context.Context, orderID string, opts ...grpc.CallOption) (*domain.Order, error) {
	out := new(OrderReply)
	if err := c.invoke(ctx, "GetOrder", &GetOrderRequest{OrderID: orderID}, out, opts); err != nil {
		return nil, err
	}
	return out.Order, nil
}

func (c *AdminClient) TransitionOrderStatus(ctx context.Context, orderID string, next domain.OrderStatus, opts ...grpc.CallOption) (*domain.Order, error) {
	out := new(OrderReply)
	req := &TransitionOrderStatusRequest{OrderID: orderID, Status: next.String()}
	if err := c.invoke(ctx, "TransitionOrderStatus", req, out, opts); err != nil {
		return nil, err
	}
	return out.Order, nil
}

func (c *AdminClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+adminServiceName+"/"+method, in, out, opts...)
}
