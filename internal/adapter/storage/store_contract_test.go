package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// store is what every primary backend implements.
type store interface {
	port.CatalogRepository
	port.OrderRepository
	port.UserRepository
}

// runStoreContract checks the behavior every backend must share. Ids are
// random so the suite can run against a long-lived database.
func runStoreContract(t *testing.T, s store) {
	t.Run("catalog", func(t *testing.T) { testCatalogContract(t, s) })
	t.Run("decrement stock", func(t *testing.T) { testDecrementStockContract(t, s) })
	t.Run("concurrent decrement", func(t *testing.T) { testConcurrentDecrementContract(t, s) })
	t.Run("orders", func(t *testing.T) { testOrdersContract(t, s) })
	t.Run("users", func(t *testing.T) { testUsersContract(t, s) })
}

func seedProduct(t *testing.T, s store, stock int) (*domain.Category, *domain.Product) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	category := &domain.Category{ID: uuid.NewString(), Name: "Category", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateCategory(ctx, category); err != nil {
		t.Fatalf("create category: %v", err)
	}

	oldPrice := decimal.RequireFromString("24.99")
	product := &domain.Product{
		ID:               uuid.NewString(),
		Name:             "Product " + uuid.NewString()[:8],
		Description:      "test product",
		Price:            decimal.RequireFromString("19.99"),
		OldPrice:         &oldPrice,
		Stock:            stock,
		CategoryID:       category.ID,
		Rating:           4.5,
		IsNew:            true,
		Specifications:   map[string]string{"color": "black"},
		Image:            "http://localhost/uploads/a.png",
		AdditionalImages: []string{"http://localhost/uploads/b.png"},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.CreateProduct(ctx, product); err != nil {
		t.Fatalf("create product: %v", err)
	}
	return category, product
}

func testCatalogContract(t *testing.T, s store) {
	ctx := context.Background()
	category, product := seedProduct(t, s, 10)

	got, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if !got.Price.Equal(product.Price) {
		t.Errorf("expected price %s, got %s", product.Price, got.Price)
	}
	if got.OldPrice == nil || !got.OldPrice.Equal(*product.OldPrice) {
		t.Errorf("expected old price %s, got %v", product.OldPrice, got.OldPrice)
	}
	if got.Specifications["color"] != "black" {
		t.Errorf("expected specifications to round-trip, got %v", got.Specifications)
	}
	if len(got.AdditionalImages) != 1 {
		t.Errorf("expected 1 additional image, got %v", got.AdditionalImages)
	}

	items, total, err := s.ListProducts(ctx, domain.ProductFilter{CategoryID: category.ID, Limit: 10})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != product.ID {
		t.Errorf("expected only the seeded product, got total=%d items=%v", total, items)
	}

	got.Name = "Renamed product"
	got.Stock = 7
	if err := s.UpdateProduct(ctx, got); err != nil {
		t.Fatalf("update product: %v", err)
	}
	again, _ := s.GetProduct(ctx, product.ID)
	if again.Name != "Renamed product" || again.Stock != 7 {
		t.Errorf("update not applied: %+v", again)
	}

	if _, err := s.GetProduct(ctx, uuid.NewString()); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
	if _, err := s.GetCategory(ctx, uuid.NewString()); !errors.Is(err, domain.ErrCategoryNotFound) {
		t.Errorf("expected ErrCategoryNotFound, got %v", err)
	}

	if err := s.DeleteProduct(ctx, product.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if err := s.DeleteProduct(ctx, product.ID); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound on second delete, got %v", err)
	}
	if err := s.DeleteCategory(ctx, category.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
}

func testDecrementStockContract(t *testing.T, s store) {
	ctx := context.Background()
	_, product := seedProduct(t, s, 5)

	if err := s.DecrementStock(ctx, product.ID, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Try to decrement more than available
	err := s.DecrementStock(ctx, product.ID, 3)
	if !errors.Is(err, domain.ErrStockExceeded) {
		t.Errorf("expected ErrStockExceeded, got %v", err)
	}

	got, _ := s.GetProduct(ctx, product.ID)
	if got.Stock != 2 {
		t.Errorf("expected stock 2, got %d", got.Stock)
	}

	if err := s.IncrementStock(ctx, product.ID, 3); err != nil {
		t.Fatalf("increment: %v", err)
	}
	got, _ = s.GetProduct(ctx, product.ID)
	if got.Stock != 5 {
		t.Errorf("expected stock 5, got %d", got.Stock)
	}

	if err := s.DecrementStock(ctx, uuid.NewString(), 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}

func testConcurrentDecrementContract(t *testing.T, s store) {
	ctx := context.Background()
	initialStock := 20
	totalRequests := 50
	_, product := seedProduct(t, s, initialStock)

	var successCount, exceededCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.DecrementStock(ctx, product.ID, 1)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrStockExceeded):
				exceededCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if exceededCount.Load() != int32(totalRequests-initialStock) {
		t.Errorf("expected %d stock exceeded, got %d", totalRequests-initialStock, exceededCount.Load())
	}

	got, _ := s.GetProduct(ctx, product.ID)
	if got.Stock != 0 {
		t.Errorf("expected stock 0, got %d", got.Stock)
	}
}

func testOrdersContract(t *testing.T, s store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	userID := uuid.NewString()

	order := domain.Order{
		ID:     uuid.NewString(),
		UserID: userID,
		Items: []domain.OrderItem{
			{ProductID: "p-a", Name: "Product A", UnitPrice: decimal.NewFromInt(1000), Quantity: 2},
			{ProductID: "p-b", Name: "Product B", UnitPrice: decimal.NewFromInt(2500), Quantity: 1},
		},
		Total: decimal.NewFromInt(4500),
		ShippingAddress: domain.ShippingAddress{
			FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "1",
			Street: "1 St", City: "London", PostalCode: "N1", Country: "UK",
		},
		PaymentMethod: "card",
		Status:        domain.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	got, err := s.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !got.Total.Equal(order.Total) {
		t.Errorf("expected total %s, got %s", order.Total, got.Total)
	}
	if len(got.Items) != 2 || got.Items[0].ProductID != "p-a" || !got.Items[1].UnitPrice.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("items did not round-trip: %+v", got.Items)
	}
	if got.ShippingAddress.City != "London" {
		t.Errorf("expected shipping city London, got %q", got.ShippingAddress.City)
	}

	later := now.Add(time.Minute)
	if err := s.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusProcessing, later); err != nil {
		t.Fatalf("update status: %v", err)
	}
	// A second writer that read "pending" loses.
	err = s.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCancelled, later)
	if !errors.Is(err, domain.ErrConcurrentUpdate) {
		t.Errorf("expected ErrConcurrentUpdate, got %v", err)
	}

	got, _ = s.GetOrder(ctx, order.ID)
	if got.Status != domain.OrderStatusProcessing {
		t.Errorf("expected processing, got %s", got.Status)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("expected updatedAt %v, got %v", later, got.UpdatedAt)
	}

	orders, err := s.ListOrders(ctx, domain.OrderFilter{UserID: userID})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != order.ID || len(orders[0].Items) != 2 {
		t.Errorf("expected the one order with items, got %+v", orders)
	}

	if _, err := s.GetOrder(ctx, uuid.NewString()); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func testUsersContract(t *testing.T, s store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	email := uuid.NewString() + "@example.com"

	user := &domain.User{ID: uuid.NewString(), Email: email, Role: domain.RoleUser, PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	dup := *user
	dup.ID = uuid.NewString()
	if err := s.CreateUser(ctx, &dup); !errors.Is(err, domain.ErrEmailExists) {
		t.Errorf("expected ErrEmailExists, got %v", err)
	}

	byEmail, err := s.GetUserByEmail(ctx, email)
	if err != nil || byEmail.ID != user.ID {
		t.Fatalf("get by email: %v %+v", err, byEmail)
	}

	first := &domain.Address{ID: uuid.NewString(), UserID: user.ID, Street: "1 St", City: "A", Country: "X", IsDefault: true, CreatedAt: now, UpdatedAt: now}
	second := &domain.Address{ID: uuid.NewString(), UserID: user.ID, Street: "2 St", City: "B", Country: "X", IsDefault: true, CreatedAt: now.Add(time.Second), UpdatedAt: now}
	for _, a := range []*domain.Address{first, second} {
		if err := s.SaveAddress(ctx, a); err != nil {
			t.Fatalf("save address: %v", err)
		}
	}

	addresses, err := s.ListAddresses(ctx, user.ID)
	if err != nil {
		t.Fatalf("list addresses: %v", err)
	}
	defaults := 0
	for _, a := range addresses {
		if a.IsDefault {
			defaults++
			if a.ID != second.ID {
				t.Errorf("expected %s to be the default, got %s", second.ID, a.ID)
			}
		}
	}
	if len(addresses) != 2 || defaults != 1 {
		t.Errorf("expected 2 addresses with 1 default, got %d with %d", len(addresses), defaults)
	}

	if _, err := s.GetAddress(ctx, uuid.NewString(), first.ID); !errors.Is(err, domain.ErrAddressNotFound) {
		t.Errorf("expected ErrAddressNotFound for another user, got %v", err)
	}

	if err := s.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := s.GetUserByID(ctx, user.ID); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
