package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// CartService applies cart operations to the cart stored for a session. A
// failed operation never saves, so the stored cart stays as it was.
type CartService struct {
	catalog port.CatalogRepository
	carts   port.CartRepository
}

func NewCartService(catalog port.CatalogRepository, carts port.CartRepository) *CartService {
	return &CartService{catalog: catalog, carts: carts}
}

func (s *CartService) GetCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	if sessionID == "" {
		return nil, domain.InvalidInput("cart session is required")
	}
	return s.carts.GetCart(ctx, sessionID)
}

// AddItem fetches the current product and adds quantity units of it.
func (s *CartService) AddItem(ctx context.Context, sessionID, productID string, quantity int) (*domain.Cart, error) {
	cart, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if errors.Is(err, domain.ErrProductNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductUnavailable, productID)
	}
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", productID, err)
	}

	if err := cart.AddItem(*product, quantity); err != nil {
		return nil, err
	}
	return s.save(ctx, sessionID, cart)
}

func (s *CartService) UpdateQuantity(ctx context.Context, sessionID, productID string, quantity int) (*domain.Cart, error) {
	cart, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := cart.UpdateQuantity(productID, quantity); err != nil {
		return nil, err
	}
	return s.save(ctx, sessionID, cart)
}

func (s *CartService) RemoveItem(ctx context.Context, sessionID, productID string) (*domain.Cart, error) {
	cart, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, ok := cart.Item(productID); !ok {
		return cart, nil
	}
	cart.RemoveItem(productID)
	return s.save(ctx, sessionID, cart)
}

func (s *CartService) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return domain.InvalidInput("cart session is required")
	}
	return s.carts.DeleteCart(ctx, sessionID)
}

func (s *CartService) save(ctx context.Context, sessionID string, cart *domain.Cart) (*domain.Cart, error) {
	cart.UpdatedAt = time.Now().UTC()
	if err := s.carts.SaveCart(ctx, sessionID, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	return cart, nil
}
