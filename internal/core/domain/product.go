package domain

import (
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID               string            `json:"id" bson:"_id" db:"id"`
	Name             string            `json:"name" bson:"name" db:"name"`
	Description      string            `json:"description" bson:"description" db:"description"`
	Price            decimal.Decimal   `json:"price" bson:"price" db:"price"`
	OldPrice         *decimal.Decimal  `json:"oldPrice,omitempty" bson:"oldPrice,omitempty" db:"-"`
	Stock            int               `json:"stock" bson:"stock" db:"stock"`
	CategoryID       string            `json:"categoryId" bson:"categoryId" db:"category_id"`
	Rating           float64           `json:"rating" bson:"rating" db:"rating"`
	IsNew            bool              `json:"isNew" bson:"isNew" db:"is_new"`
	IsPromo          bool              `json:"isPromo" bson:"isPromo" db:"is_promo"`
	Specifications   map[string]string `json:"specifications" bson:"specifications" db:"-"`
	Image            string            `json:"image" bson:"image" db:"image"`
	AdditionalImages []string          `json:"additionalImages,omitempty" bson:"additionalImages,omitempty" db:"-"`
	CreatedAt        time.Time         `json:"createdAt" bson:"createdAt" db:"created_at"`
	UpdatedAt        time.Time         `json:"updatedAt" bson:"updatedAt" db:"updated_at"`
}

// Validate checks the catalog invariants of a product before it is stored.
func (p *Product) Validate() error {
	if n := utf8.RuneCountInString(p.Name); n < 3 || n > 100 {
		return InvalidInput("name must be between 3 and 100 characters")
	}
	if utf8.RuneCountInString(p.Description) > 500 {
		return InvalidInput("description must not exceed 500 characters")
	}
	if p.Price.IsNegative() {
		return InvalidInput("price must not be negative")
	}
	if p.OldPrice != nil && p.OldPrice.IsNegative() {
		return InvalidInput("oldPrice must not be negative")
	}
	if p.Stock < 0 {
		return InvalidInput("stock must not be negative")
	}
	if p.Rating < 0 || p.Rating > 5 {
		return InvalidInput("rating must be between 0 and 5")
	}
	if p.CategoryID == "" {
		return InvalidInput("categoryId is required")
	}
	return nil
}

// Available reports whether the product can be put in a cart at all.
func (p *Product) Available() bool {
	return p.Stock > 0
}

// ProductFilter narrows a catalog listing. Zero values mean "any".
type ProductFilter struct {
	CategoryID string
	Query      string
	IsNew      *bool
	IsPromo    *bool
	Limit      int64
	Offset     int64
}

// ProductDetail is a product with its category reference expanded.
type ProductDetail struct {
	Product
	Category *Category `json:"category,omitempty"`
}

type Category struct {
	ID          string    `json:"id" bson:"_id" db:"id"`
	Name        string    `json:"name" bson:"name" db:"name"`
	Description string    `json:"description" bson:"description" db:"description"`
	Image       string    `json:"image" bson:"image" db:"image"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt" db:"updated_at"`
}

func (c *Category) Validate() error {
	if c.Name == "" {
		return InvalidInput("name is required")
	}
	return nil
}
