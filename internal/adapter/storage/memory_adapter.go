package storage

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

// MemoryAdapter implements every repository port in process memory. Each
// method holds the lock for its whole body, which makes DecrementStock a
// single conditional update like its database counterparts.
type MemoryAdapter struct {
	mu          sync.Mutex
	products    map[string]domain.Product
	categories  map[string]domain.Category
	orders      map[string]domain.Order
	users       map[string]domain.User
	addresses   map[string]domain.Address
	carts       map[string]*domain.Cart
	idempotency map[string]struct{}
	sessions    map[string]memorySession
	now         func() time.Time
}

type memorySession struct {
	userID    string
	expiresAt time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		products:    make(map[string]domain.Product),
		categories:  make(map[string]domain.Category),
		orders:      make(map[string]domain.Order),
		users:       make(map[string]domain.User),
		addresses:   make(map[string]domain.Address),
		carts:       make(map[string]*domain.Cart),
		idempotency: make(map[string]struct{}),
		sessions:    make(map[string]memorySession),
		now:         time.Now,
	}
}

func cloneProduct(p domain.Product) domain.Product {
	p.Specifications = maps.Clone(p.Specifications)
	p.AdditionalImages = slices.Clone(p.AdditionalImages)
	if p.OldPrice != nil {
		old := *p.OldPrice
		p.OldPrice = &old
	}
	return p
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	p = cloneProduct(p)
	return &p, nil
}

func (m *MemoryAdapter) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	query := strings.ToLower(filter.Query)
	var matched []domain.Product
	for _, p := range m.products {
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if filter.IsNew != nil && p.IsNew != *filter.IsNew {
			continue
		}
		if filter.IsPromo != nil && p.IsPromo != *filter.IsPromo {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) &&
			!strings.Contains(strings.ToLower(p.Description), query) {
			continue
		}
		matched = append(matched, cloneProduct(p))
	}

	slices.SortFunc(matched, func(a, b domain.Product) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	total := int64(len(matched))
	return page(matched, filter.Offset, filter.Limit), total, nil
}

func page[T any](items []T, offset, limit int64) []T {
	if offset >= int64(len(items)) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < int64(len(items)) {
		items = items[:limit]
	}
	return items
}

func (m *MemoryAdapter) CreateProduct(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.products[product.ID] = cloneProduct(*product)
	return nil
}

func (m *MemoryAdapter) UpdateProduct(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[product.ID]; !ok {
		return domain.ErrProductNotFound
	}
	m.products[product.ID] = cloneProduct(*product)
	return nil
}

func (m *MemoryAdapter) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *MemoryAdapter) DecrementStock(ctx context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if p.Stock < quantity {
		return domain.ErrStockExceededFor(productID, quantity, p.Stock)
	}
	p.Stock -= quantity
	p.UpdatedAt = m.now()
	m.products[productID] = p
	return nil
}

func (m *MemoryAdapter) IncrementStock(ctx context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Stock += quantity
	p.UpdatedAt = m.now()
	m.products[productID] = p
	return nil
}

func (m *MemoryAdapter) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.categories[id]
	if !ok {
		return nil, domain.ErrCategoryNotFound
	}
	return &c, nil
}

func (m *MemoryAdapter) ListCategories(ctx context.Context) ([]domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := slices.Collect(maps.Values(m.categories))
	slices.SortFunc(out, func(a, b domain.Category) int { return strings.Compare(a.Name, b.Name) })
	if out == nil {
		out = []domain.Category{}
	}
	return out, nil
}

func (m *MemoryAdapter) CreateCategory(ctx context.Context, category *domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.categories[category.ID] = *category
	return nil
}

func (m *MemoryAdapter) UpdateCategory(ctx context.Context, category *domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categories[category.ID]; !ok {
		return domain.ErrCategoryNotFound
	}
	m.categories[category.ID] = *category
	return nil
}

func (m *MemoryAdapter) DeleteCategory(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categories[id]; !ok {
		return domain.ErrCategoryNotFound
	}
	delete(m.categories, id)
	return nil
}

func (m *MemoryAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (m *MemoryAdapter) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.Order{}
	for _, o := range m.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	slices.SortFunc(out, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return page(out, filter.Offset, filter.Limit), nil
}

func (m *MemoryAdapter) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.Status != from {
		return domain.ErrConcurrentUpdate
	}
	o.Status = to
	o.UpdatedAt = at
	m.orders[id] = o
	return nil
}

func (m *MemoryAdapter) CreateUser(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == user.Email {
			return domain.ErrEmailExists
		}
	}
	m.users[user.ID] = *user
	return nil
}

func (m *MemoryAdapter) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (m *MemoryAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MemoryAdapter) ListUsers(ctx context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := slices.Collect(maps.Values(m.users))
	slices.SortFunc(out, func(a, b domain.User) int { return strings.Compare(a.Email, b.Email) })
	if out == nil {
		out = []domain.User{}
	}
	return out, nil
}

func (m *MemoryAdapter) UpdateUser(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; !ok {
		return domain.ErrUserNotFound
	}
	for id, u := range m.users {
		if id != user.ID && u.Email == user.Email {
			return domain.ErrEmailExists
		}
	}
	m.users[user.ID] = *user
	return nil
}

func (m *MemoryAdapter) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(m.users, id)
	for aid, a := range m.addresses {
		if a.UserID == id {
			delete(m.addresses, aid)
		}
	}
	return nil
}

func (m *MemoryAdapter) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.Address{}
	for _, a := range m.addresses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b domain.Address) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *MemoryAdapter) GetAddress(ctx context.Context, userID, addressID string) (*domain.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.addresses[addressID]
	if !ok || a.UserID != userID {
		return nil, domain.ErrAddressNotFound
	}
	return &a, nil
}

func (m *MemoryAdapter) SaveAddress(ctx context.Context, address *domain.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if address.IsDefault {
		for id, a := range m.addresses {
			if a.UserID == address.UserID && id != address.ID && a.IsDefault {
				a.IsDefault = false
				m.addresses[id] = a
			}
		}
	}
	m.addresses[address.ID] = *address
	return nil
}

func (m *MemoryAdapter) DeleteAddress(ctx context.Context, userID, addressID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.addresses[addressID]
	if !ok || a.UserID != userID {
		return domain.ErrAddressNotFound
	}
	delete(m.addresses, addressID)
	return nil
}

func (m *MemoryAdapter) GetCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.carts[sessionID]; ok {
		return c.Clone(), nil
	}
	return domain.NewCart(), nil
}

func (m *MemoryAdapter) SaveCart(ctx context.Context, sessionID string, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.carts[sessionID] = cart.Clone()
	return nil
}

func (m *MemoryAdapter) DeleteCart(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.carts, sessionID)
	return nil
}

func (m *MemoryAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.idempotency[key]; ok {
		return false, nil
	}
	m.idempotency[key] = struct{}{}
	return true, nil
}

func (m *MemoryAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.idempotency, key)
	return nil
}

func (m *MemoryAdapter) SaveSession(ctx context.Context, token, userID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[token] = memorySession{userID: userID, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryAdapter) GetSession(ctx context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return "", domain.ErrUnauthorized
	}
	if m.now().After(s.expiresAt) {
		delete(m.sessions, token)
		return "", domain.ErrUnauthorized
	}
	return s.userID, nil
}

func (m *MemoryAdapter) DeleteSession(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, token)
	return nil
}
