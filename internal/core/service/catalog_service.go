package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type CatalogService struct {
	repo port.CatalogRepository
}

func NewCatalogService(repo port.CatalogRepository) *CatalogService {
	return &CatalogService{repo: repo}
}

func (s *CatalogService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	filter.Limit = min(filter.Limit, maxPageSize)
	filter.Offset = max(filter.Offset, 0)
	return s.repo.ListProducts(ctx, filter)
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// GetProductDetail returns the product with its category resolved. A dangling
// category reference yields a nil Category rather than an error.
func (s *CatalogService) GetProductDetail(ctx context.Context, id string) (*domain.ProductDetail, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &domain.ProductDetail{Product: *product}
	category, err := s.repo.GetCategory(ctx, product.CategoryID)
	switch {
	case err == nil:
		detail.Category = category
	case errors.Is(err, domain.ErrCategoryNotFound):
		log.Warn().Str("product_id", id).Str("category_id", product.CategoryID).Msg("product references missing category")
	default:
		return nil, fmt.Errorf("load category %s: %w", product.CategoryID, err)
	}
	return detail, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, product *domain.Product) error {
	if err := s.checkProduct(ctx, product); err != nil {
		return err
	}

	now := time.Now().UTC()
	product.ID = uuid.NewString()
	product.CreatedAt = now
	product.UpdatedAt = now
	if product.Specifications == nil {
		product.Specifications = map[string]string{}
	}
	return s.repo.CreateProduct(ctx, product)
}

func (s *CatalogService) UpdateProduct(ctx context.Context, product *domain.Product) error {
	existing, err := s.repo.GetProduct(ctx, product.ID)
	if err != nil {
		return err
	}
	if err := s.checkProduct(ctx, product); err != nil {
		return err
	}

	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	if product.Specifications == nil {
		product.Specifications = map[string]string{}
	}
	return s.repo.UpdateProduct(ctx, product)
}

func (s *CatalogService) checkProduct(ctx context.Context, product *domain.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}
	if _, err := s.repo.GetCategory(ctx, product.CategoryID); err != nil {
		return err
	}
	return nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	return s.repo.DeleteProduct(ctx, id)
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *CatalogService) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	return s.repo.GetCategory(ctx, id)
}

func (s *CatalogService) CreateCategory(ctx context.Context, category *domain.Category) error {
	if err := category.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	category.ID = uuid.NewString()
	category.CreatedAt = now
	category.UpdatedAt = now
	return s.repo.CreateCategory(ctx, category)
}

func (s *CatalogService) UpdateCategory(ctx context.Context, category *domain.Category) error {
	if err := category.Validate(); err != nil {
		return err
	}

	existing, err := s.repo.GetCategory(ctx, category.ID)
	if err != nil {
		return err
	}
	category.CreatedAt = existing.CreatedAt
	category.UpdatedAt = time.Now().UTC()
	return s.repo.UpdateCategory(ctx, category)
}

// DeleteCategory refuses to orphan products.
func (s *CatalogService) DeleteCategory(ctx context.Context, id string) error {
	if _, err := s.repo.GetCategory(ctx, id); err != nil {
		return err
	}

	_, total, err := s.repo.ListProducts(ctx, domain.ProductFilter{CategoryID: id, Limit: 1})
	if err != nil {
		return fmt.Errorf("count category products: %w", err)
	}
	if total > 0 {
		return fmt.Errorf("%w: %d products", domain.ErrCategoryInUse, total)
	}
	return s.repo.DeleteCategory(ctx, id)
}
