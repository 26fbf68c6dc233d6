package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type OrderService struct {
	catalog port.CatalogRepository
	orders  port.OrderRepository
	carts   port.CartRepository
	cache   port.CacheRepository
	now     func() time.Time

	mu     sync.RWMutex
	events chan domain.OrderEvent
	closed bool
}

func NewOrderService(
	catalog port.CatalogRepository,
	orders port.OrderRepository,
	carts port.CartRepository,
	cache port.CacheRepository,
	queueSize int,
) *OrderService {
	return &OrderService{
		catalog: catalog,
		orders:  orders,
		carts:   carts,
		cache:   cache,
		events:  make(chan domain.OrderEvent, queueSize),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type CheckoutRequest struct {
	SessionID       string
	UserID          string
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
	Notes           string
	IdempotencyKey  string
}

// Checkout turns the session cart into an order and clears the cart. On any
// failure the cart is left as it was.
func (s *OrderService) Checkout(ctx context.Context, req CheckoutRequest) (order *domain.Order, err error) {
	if req.IdempotencyKey != "" {
		key := fmt.Sprintf("checkout:%s:%s", req.UserID, req.IdempotencyKey)

		ok, setErr := s.cache.SetIdempotency(ctx, key)
		if setErr != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", setErr)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
		defer func() {
			if err == nil {
				return
			}
			if releaseErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
				log.Warn().Err(releaseErr).Str("key", key).Msg("failed to release idempotency key")
			}
		}()
	}

	cart, err := s.carts.GetCart(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	order, err = s.CreateOrder(ctx, req.UserID, cart, req.ShippingAddress, req.PaymentMethod, req.Notes)
	if err != nil {
		return nil, err
	}

	if err := s.carts.DeleteCart(ctx, req.SessionID); err != nil {
		log.Warn().Err(err).Str("order_id", order.ID).Msg("order placed but cart was not cleared")
	}

	return order, nil
}

// CreateOrder re-validates cart against the catalog, reserves stock and
// persists a pending order. Nothing is persisted unless every line passes.
func (s *OrderService) CreateOrder(
	ctx context.Context,
	userID string,
	cart *domain.Cart,
	shipping domain.ShippingAddress,
	paymentMethod string,
	notes string,
) (*domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	if cart == nil || cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}
	if err := shipping.Validate(); err != nil {
		return nil, err
	}
	if paymentMethod == "" {
		return nil, domain.InvalidInput("paymentMethod is required")
	}

	items, err := s.snapshotItems(ctx, cart)
	if err != nil {
		return nil, err
	}

	if err := s.reserveStock(ctx, items); err != nil {
		return nil, err
	}

	now := s.now()
	order := domain.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		Items:           items,
		Total:           domain.ComputeTotal(items),
		ShippingAddress: shipping,
		PaymentMethod:   paymentMethod,
		Notes:           notes,
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		s.releaseStock(context.WithoutCancel(ctx), items)
		return nil, fmt.Errorf("persist order: %w", err)
	}

	log.Info().Str("order_id", order.ID).Str("user_id", userID).Str("total", order.Total.String()).Msg("order created")
	s.emit(order, domain.OrderEventCreated, "")

	return &order, nil
}

func (s *OrderService) snapshotItems(ctx context.Context, cart *domain.Cart) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, len(cart.Items))
	var problems []domain.ItemProblem

	for _, line := range cart.Items {
		if line.Quantity <= 0 {
			problems = append(problems, domain.ItemProblem{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Reason:    "invalid quantity",
				Err:       domain.ErrInvalidQuantity,
			})
			continue
		}

		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if errors.Is(err, domain.ErrProductNotFound) {
			problems = append(problems, domain.ItemProblem{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Reason:    "product no longer exists",
				Err:       domain.ErrProductUnavailable,
			})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load product %s: %w", line.ProductID, err)
		}

		if product.Stock < line.Quantity {
			problems = append(problems, domain.ItemProblem{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: product.Stock,
				Reason:    "insufficient stock",
				Err:       domain.ErrStockExceeded,
			})
			continue
		}

		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  line.Quantity,
		})
	}

	if len(problems) > 0 {
		return nil, &domain.OrderValidationError{Problems: problems}
	}
	return items, nil
}

// reserveStock decrements every line or none of them.
func (s *OrderService) reserveStock(ctx context.Context, items []domain.OrderItem) error {
	for i, item := range items {
		err := s.catalog.DecrementStock(ctx, item.ProductID, item.Quantity)
		if err == nil {
			continue
		}

		s.releaseStock(context.WithoutCancel(ctx), items[:i])

		if errors.Is(err, domain.ErrProductNotFound) {
			return &domain.OrderValidationError{Problems: []domain.ItemProblem{{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Reason:    "product no longer exists",
				Err:       domain.ErrProductUnavailable,
			}}}
		}
		return fmt.Errorf("reserve stock for %s: %w", item.ProductID, err)
	}
	return nil
}

func (s *OrderService) releaseStock(ctx context.Context, items []domain.OrderItem) {
	for _, item := range items {
		if err := s.catalog.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			log.Error().Err(err).Str("product_id", item.ProductID).Int("quantity", item.Quantity).Msg("CRITICAL stock rollback failed")
		}
	}
}

// TransitionOrderStatus moves an order along the status machine. Only admins
// may call it. Cancelling returns the order's units to stock.
func (s *OrderService) TransitionOrderStatus(ctx context.Context, actor *domain.User, orderID string, next domain.OrderStatus) (*domain.Order, error) {
	if actor == nil {
		return nil, domain.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	prev := order.Status
	if err := order.TransitionTo(next, s.now()); err != nil {
		return nil, err
	}

	if err := s.orders.UpdateOrderStatus(ctx, order.ID, prev, next, order.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if next == domain.OrderStatusCancelled {
		s.releaseStock(context.WithoutCancel(ctx), order.Items)
	}

	log.Info().Str("order_id", order.ID).Str("from", prev.String()).Str("to", next.String()).Msg("order status changed")
	s.emit(*order, domain.OrderEventStatusChanged, prev)

	return order, nil
}

// GetOrder returns the order if actor owns it or is an admin.
func (s *OrderService) GetOrder(ctx context.Context, actor *domain.User, orderID string) (*domain.Order, error) {
	if actor == nil {
		return nil, domain.ErrUnauthorized
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.ID && !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return order, nil
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.orders.ListOrders(ctx, domain.OrderFilter{UserID: userID})
}

func (s *OrderService) ListOrders(ctx context.Context, actor *domain.User, filter domain.OrderFilter) ([]domain.Order, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.orders.ListOrders(ctx, filter)
}

func (s *OrderService) emit(order domain.Order, typ domain.OrderEventType, prev domain.OrderStatus) {
	event := domain.OrderEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		PrevStatus: prev,
		Total:      order.Total.String(),
		OccurredAt: s.now(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		log.Warn().Str("order_id", order.ID).Str("type", string(typ)).Msg("event queue closed, dropping event")
		return
	}

	select {
	case s.events <- event:
	default:
		log.Warn().Str("order_id", order.ID).Str("type", string(typ)).Msg("event queue full, dropping event")
	}
}

func (s *OrderService) GetEventQueue() <-chan domain.OrderEvent {
	return s.events
}

// Close stops the event queue. Events emitted afterwards are dropped.
func (s *OrderService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}
