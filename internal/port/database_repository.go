package port

import (
	"context"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

// CatalogRepository is the authoritative store for products and categories.
type CatalogRepository interface {
	// GetProduct returns domain.ErrProductNotFound when id is unknown
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	// ListProducts returns one page of matching products, newest first, and the total match count
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int64, error)

	CreateProduct(ctx context.Context, product *domain.Product) error
	UpdateProduct(ctx context.Context, product *domain.Product) error
	DeleteProduct(ctx context.Context, id string) error

	// DecrementStock atomically removes quantity units if at least that many remain,
	// otherwise returns domain.ErrStockExceeded and changes nothing
	DecrementStock(ctx context.Context, productID string, quantity int) error

	// IncrementStock restores stock (compensation for a failed checkout)
	IncrementStock(ctx context.Context, productID string, quantity int) error

	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category *domain.Category) error
	UpdateCategory(ctx context.Context, category *domain.Category) error
	DeleteCategory(ctx context.Context, id string) error
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetOrder returns domain.ErrOrderNotFound when id is unknown
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// ListOrders returns matching orders, newest first
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)

	// UpdateOrderStatus switches status only if the stored status still equals from,
	// otherwise returns domain.ErrConcurrentUpdate
	UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	DeleteUser(ctx context.Context, id string) error

	ListAddresses(ctx context.Context, userID string) ([]domain.Address, error)
	GetAddress(ctx context.Context, userID, addressID string) (*domain.Address, error)
	// SaveAddress inserts or replaces the address; when it is the default,
	// every other address of the same user loses the flag
	SaveAddress(ctx context.Context, address *domain.Address) error
	DeleteAddress(ctx context.Context, userID, addressID string) error
}
