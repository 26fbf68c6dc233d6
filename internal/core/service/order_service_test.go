package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// Mock CacheRepository
type mockCacheRepo struct {
	idempotencySet map[string]bool
	released       []string
	mu             sync.Mutex
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{idempotencySet: make(map[string]bool)}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	m.released = append(m.released, key)
	return nil
}

// failingOrderRepo lets a test decide how persistence behaves.
type failingOrderRepo struct {
	mock.Mock
}

func (m *failingOrderRepo) CreateOrder(ctx context.Context, order domain.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *failingOrderRepo) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	order, _ := args.Get(0).(*domain.Order)
	return order, args.Error(1)
}

func (m *failingOrderRepo) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	args := m.Called(ctx, filter)
	orders, _ := args.Get(0).([]domain.Order)
	return orders, args.Error(1)
}

func (m *failingOrderRepo) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) error {
	return m.Called(ctx, id, from, to, at).Error(0)
}

type checkoutFixture struct {
	store *storage.MemoryAdapter
	cache *mockCacheRepo
	svc   *OrderService
	carts *CartService
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	store := storage.NewMemoryAdapter()
	cache := newMockCacheRepo()
	svc := NewOrderService(store, store, store, cache, 100)
	t.Cleanup(svc.Close)

	// Drain queue
	go func() {
		for range svc.GetEventQueue() {
		}
	}()

	require.NoError(t, store.CreateCategory(context.Background(), &domain.Category{ID: "cat", Name: "Cat"}))
	return &checkoutFixture{store: store, cache: cache, svc: svc, carts: NewCartService(store, store)}
}

func (f *checkoutFixture) addProduct(t *testing.T, id, price string, stock int) {
	t.Helper()
	require.NoError(t, f.store.CreateProduct(context.Background(), &domain.Product{
		ID:         id,
		Name:       "Product " + id,
		Price:      decimal.RequireFromString(price),
		Stock:      stock,
		CategoryID: "cat",
	}))
}

func (f *checkoutFixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

var testShipping = domain.ShippingAddress{
	FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "123",
	Street: "1 Analytical St", City: "London", PostalCode: "N1", Country: "UK",
}

func checkoutRequest(session, user string) CheckoutRequest {
	return CheckoutRequest{
		SessionID:       session,
		UserID:          user,
		ShippingAddress: testShipping,
		PaymentMethod:   "card",
	}
}

func TestCheckout_Success(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addProduct(t, "A", "1000", 5)
	f.addProduct(t, "B", "2500", 1)

	_, err := f.carts.AddItem(ctx, "s1", "A", 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, "s1", "B", 1)
	require.NoError(t, err)

	order, err := f.svc.Checkout(ctx, checkoutRequest("s1", "user-1"))
	require.NoError(t, err)

	assert.True(t, order.Total.Equal(decimal.NewFromInt(4500)), "total = %s", order.Total)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, "user-1", order.UserID)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Product A", order.Items[0].Name)
	assert.Equal(t, 3, f.stock(t, "A"))
	assert.Equal(t, 0, f.stock(t, "B"))

	cart, err := f.carts.GetCart(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty(), "cart must be cleared after checkout")

	stored, err := f.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(order.Total))
}

func TestCheckout_InsufficientStockIsAllOrNothing(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addProduct(t, "A", "10", 5)
	f.addProduct(t, "B", "20", 3)

	_, err := f.carts.AddItem(ctx, "s1", "A", 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, "s1", "B", 3)
	require.NoError(t, err)
	before, err := f.carts.GetCart(ctx, "s1")
	require.NoError(t, err)

	// Someone else buys B before this checkout.
	require.NoError(t, f.store.DecrementStock(ctx, "B", 2))

	_, err = f.svc.Checkout(ctx, checkoutRequest("s1", "user-1"))
	require.ErrorIs(t, err, domain.ErrOrderValidationFailed)
	require.ErrorIs(t, err, domain.ErrStockExceeded)

	var verr *domain.OrderValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"B"}, verr.ProductIDs())

	assert.Equal(t, 5, f.stock(t, "A"))
	assert.Equal(t, 1, f.stock(t, "B"))

	orders, err := f.store.ListOrders(ctx, domain.OrderFilter{UserID: "user-1"})
	require.NoError(t, err)
	assert.Empty(t, orders)

	after, err := f.carts.GetCart(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, before.Items, after.Items)
}

func TestCheckout_ReportsEveryOffendingProduct(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addProduct(t, "A", "10", 2)
	f.addProduct(t, "B", "20", 2)
	f.addProduct(t, "C", "30", 2)

	cart := domain.NewCart()
	for _, id := range []string{"A", "B", "C"} {
		p, err := f.store.GetProduct(ctx, id)
		require.NoError(t, err)
		require.NoError(t, cart.AddItem(*p, 2))
	}
	require.NoError(t, f.store.DeleteProduct(ctx, "A"))
	require.NoError(t, f.store.DecrementStock(ctx, "C", 1))

	_, err := f.svc.CreateOrder(ctx, "user-1", cart, testShipping, "card", "")

	var verr *domain.OrderValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"A", "C"}, verr.ProductIDs())
	assert.Equal(t, 2, f.stock(t, "B"))
}

func TestCheckout_ConcurrentLastUnits(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	initialStock := 3
	f.addProduct(t, "A", "10", initialStock)

	// Two buyers, each wanting 2 of the 3 remaining units.
	for _, s := range []string{"s1", "s2"} {
		_, err := f.carts.AddItem(ctx, s, "A", 2)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	var successCount, stockExceeded atomic.Int32
	for i, s := range []string{"s1", "s2"} {
		wg.Add(1)
		go func(session string, user int) {
			defer wg.Done()
			_, err := f.svc.Checkout(ctx, checkoutRequest(session, fmt.Sprintf("user-%d", user)))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrStockExceeded):
				stockExceeded.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(s, i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
	assert.Equal(t, int32(1), stockExceeded.Load())
	assert.Equal(t, 1, f.stock(t, "A"))
}

func TestCheckout_ConcurrentManyBuyers(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	initialStock := 20
	totalRequests := 50
	f.addProduct(t, "A", "10", initialStock)

	for i := 0; i < totalRequests; i++ {
		_, err := f.carts.AddItem(ctx, sessionName(i), "A", 1)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	var successCount, failCount atomic.Int32
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(buyer int) {
			defer wg.Done()
			if _, err := f.svc.Checkout(ctx, checkoutRequest(sessionName(buyer), sessionName(buyer))); err == nil {
				successCount.Add(1)
			} else if errors.Is(err, domain.ErrStockExceeded) {
				failCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(initialStock), successCount.Load())
	assert.Equal(t, int32(totalRequests-initialStock), failCount.Load())
	assert.Equal(t, 0, f.stock(t, "A"))
}

func sessionName(i int) string {
	return fmt.Sprintf("buyer-%d", i)
}

func TestCheckout_TotalIsFrozen(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addProduct(t, "A", "100", 5)

	_, err := f.carts.AddItem(ctx, "s1", "A", 2)
	require.NoError(t, err)
	order, err := f.svc.Checkout(ctx, checkoutRequest("s1", "user-1"))
	require.NoError(t, err)

	p, err := f.store.GetProduct(ctx, "A")
	require.NoError(t, err)
	p.Price = decimal.NewFromInt(999)
	p.Name = "Renamed"
	require.NoError(t, f.store.UpdateProduct(ctx, p))

	stored, err := f.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(decimal.NewFromInt(200)), "total = %s", stored.Total)
	assert.True(t, stored.Items[0].UnitPrice.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "Product A", stored.Items[0].Name)
}

func TestCheckout_PricesComeFromCatalog(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addProduct(t, "A", "100", 5)

	cart := domain.NewCart()
	cart.Items = append(cart.Items, domain.CartItem{ProductID: "A", Name: "Cheap", UnitPrice: decimal.NewFromInt(1), Stock: 5, Quantity: 1})

	order, err := f.svc.CreateOrder(ctx, "user-1", cart, testShipping, "card", "")
	require.NoError(t, err)
	assert.True(t, order.Total.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "Product A", order.Items[0].Name)
}

func TestCheckout_DuplicateIdempotencyKey(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addProduct(t, "A", "10", 5)

	_, err := f.carts.AddItem(ctx, "s1", "A", 1)
	require.NoError(t, err)

	req := checkoutRequest("s1", "user-1")
	req.IdempotencyKey = "key-1"
	_, err = f.svc.Checkout(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, req)
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
	assert.Equal(t, 4, f.stock(t, "A"))
}

func TestCheckout_FailureReleasesIdempotencyKey(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	req := checkoutRequest("empty", "user-1")
	req.IdempotencyKey = "key-1"
	_, err := f.svc.Checkout(ctx, req)
	require.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.Equal(t, []string{"checkout:user-1:key-1"}, f.cache.released)

	f.addProduct(t, "A", "10", 5)
	_, err = f.carts.AddItem(ctx, "empty", "A", 1)
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, req)
	assert.NoError(t, err)
}

func TestCheckout_Rejections(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addProduct(t, "A", "10", 5)
	cart := domain.NewCart()
	p, _ := f.store.GetProduct(ctx, "A")
	require.NoError(t, cart.AddItem(*p, 1))

	_, err := f.svc.CreateOrder(ctx, "", cart, testShipping, "card", "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.svc.CreateOrder(ctx, "user-1", domain.NewCart(), testShipping, "card", "")
	assert.ErrorIs(t, err, domain.ErrEmptyCart)

	_, err = f.svc.CreateOrder(ctx, "user-1", cart, domain.ShippingAddress{}, "card", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.CreateOrder(ctx, "user-1", cart, testShipping, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Equal(t, 5, f.stock(t, "A"))
}

func TestCheckout_PersistFailureRestoresStock(t *testing.T) {
	store := storage.NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, store.CreateProduct(ctx, &domain.Product{ID: "A", Name: "Product A", Price: decimal.NewFromInt(10), Stock: 5, CategoryID: "cat"}))

	orders := &failingOrderRepo{}
	dbErr := errors.New("connection reset")
	orders.On("CreateOrder", mock.Anything, mock.AnythingOfType("domain.Order")).Return(dbErr)

	svc := NewOrderService(store, orders, store, newMockCacheRepo(), 10)
	defer svc.Close()

	cart := domain.NewCart()
	p, _ := store.GetProduct(ctx, "A")
	require.NoError(t, cart.AddItem(*p, 3))

	_, err := svc.CreateOrder(ctx, "user-1", cart, testShipping, "card", "")
	require.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, domain.ErrStockExceeded, "infrastructure errors must not look like business errors")

	after, _ := store.GetProduct(ctx, "A")
	assert.Equal(t, 5, after.Stock)
	orders.AssertExpectations(t)
}

func TestCheckout_EmitsCreatedEvent(t *testing.T) {
	store := storage.NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, store.CreateProduct(ctx, &domain.Product{ID: "A", Name: "Product A", Price: decimal.NewFromInt(10), Stock: 5, CategoryID: "cat"}))

	svc := NewOrderService(store, store, store, newMockCacheRepo(), 1)
	defer svc.Close()

	cart := domain.NewCart()
	p, _ := store.GetProduct(ctx, "A")
	require.NoError(t, cart.AddItem(*p, 1))

	order, err := svc.CreateOrder(ctx, "user-1", cart, testShipping, "card", "")
	require.NoError(t, err)

	event := <-svc.GetEventQueue()
	assert.Equal(t, domain.OrderEventCreated, event.Type)
	assert.Equal(t, order.ID, event.OrderID)
	assert.Equal(t, "10", event.Total)
}

func TestTransitionOrderStatus(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addProduct(t, "A", "10", 5)
	admin := &domain.User{ID: "admin", Role: domain.RoleAdmin}
	customer := &domain.User{ID: "user-1", Role: domain.RoleUser}

	_, err := f.carts.AddItem(ctx, "s1", "A", 2)
	require.NoError(t, err)
	order, err := f.svc.Checkout(ctx, checkoutRequest("s1", customer.ID))
	require.NoError(t, err)

	_, err = f.svc.TransitionOrderStatus(ctx, customer, order.ID, domain.OrderStatusProcessing)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.TransitionOrderStatus(ctx, nil, order.ID, domain.OrderStatusProcessing)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.svc.TransitionOrderStatus(ctx, admin, order.ID, domain.OrderStatusShipped)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	updated, err := f.svc.TransitionOrderStatus(ctx, admin, order.ID, domain.OrderStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, updated.Status)
	assert.True(t, updated.UpdatedAt.After(order.UpdatedAt) || updated.UpdatedAt.Equal(order.UpdatedAt))

	_, err = f.svc.TransitionOrderStatus(ctx, admin, order.ID, domain.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(t, "A"), "cancelling returns units to stock")

	_, err = f.svc.TransitionOrderStatus(ctx, admin, order.ID, domain.OrderStatusProcessing)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.TransitionOrderStatus(ctx, admin, "missing", domain.OrderStatusProcessing)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestGetOrder_OwnerOrAdmin(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addProduct(t, "A", "10", 5)

	_, err := f.carts.AddItem(ctx, "s1", "A", 1)
	require.NoError(t, err)
	order, err := f.svc.Checkout(ctx, checkoutRequest("s1", "user-1"))
	require.NoError(t, err)

	_, err = f.svc.GetOrder(ctx, &domain.User{ID: "user-1", Role: domain.RoleUser}, order.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetOrder(ctx, &domain.User{ID: "admin", Role: domain.RoleAdmin}, order.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetOrder(ctx, &domain.User{ID: "user-2", Role: domain.RoleUser}, order.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.ListOrders(ctx, &domain.User{ID: "user-1", Role: domain.RoleUser}, domain.OrderFilter{})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCheckout_AfterCloseDropsEvent(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.addProduct(t, "A", "10", 5)

	_, err := f.carts.AddItem(ctx, "s1", "A", 1)
	require.NoError(t, err)

	f.svc.Close()
	f.svc.Close()

	var order *domain.Order
	assert.NotPanics(t, func() {
		order, err = f.svc.Checkout(ctx, checkoutRequest("s1", "user-1"))
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, 4, f.stock(t, "A"))
}

// ctxCatalog fails stock writes on a done context, as the database adapters do.
type ctxCatalog struct {
	port.CatalogRepository
}

func (c ctxCatalog) IncrementStock(ctx context.Context, productID string, quantity int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.CatalogRepository.IncrementStock(ctx, productID, quantity)
}

// cancelAfterUpdate cancels the request once the status write has committed.
type cancelAfterUpdate struct {
	port.OrderRepository
	cancel context.CancelFunc
}

func (c cancelAfterUpdate) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) error {
	err := c.OrderRepository.UpdateOrderStatus(ctx, id, from, to, at)
	c.cancel()
	return err
}

func TestTransitionOrderStatus_CancelRestocksAfterClientGoesAway(t *testing.T) {
	f := newCheckoutFixture(t)
	f.addProduct(t, "A", "10", 5)

	_, err := f.carts.AddItem(context.Background(), "s1", "A", 3)
	require.NoError(t, err)
	order, err := f.svc.Checkout(context.Background(), checkoutRequest("s1", "user-1"))
	require.NoError(t, err)
	require.Equal(t, 2, f.stock(t, "A"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewOrderService(ctxCatalog{f.store}, cancelAfterUpdate{f.store, cancel}, f.store, f.cache, 10)
	defer svc.Close()

	admin := &domain.User{ID: "admin", Role: domain.RoleAdmin}
	_, err = svc.TransitionOrderStatus(ctx, admin, order.ID, domain.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(t, "A"))
}
