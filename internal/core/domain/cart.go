package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is one line of a cart. Name, image, price and stock are the product
// facts seen when the line was last added to, so quantity edits need no catalog
// round-trip. Checkout re-validates against the catalog.
type CartItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Stock     int             `json:"stock"`
	Quantity  int             `json:"quantity"`
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart holds at most one line per product, in insertion order.
type Cart struct {
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func NewCart() *Cart {
	return &Cart{Items: []CartItem{}}
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Item returns the line for productID, if present.
func (c *Cart) Item(productID string) (CartItem, bool) {
	if i := c.indexOf(productID); i >= 0 {
		return c.Items[i], true
	}
	return CartItem{}, false
}

// AddItem puts quantity units of p in the cart. A new line is clamped to the
// available stock; incrementing an existing line past stock is rejected and
// leaves the cart unchanged.
func (c *Cart) AddItem(p Product, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if !p.Available() {
		return fmt.Errorf("%w: %s", ErrProductUnavailable, p.ID)
	}

	if i := c.indexOf(p.ID); i >= 0 {
		next := c.Items[i].Quantity + quantity
		if next > p.Stock {
			return ErrStockExceededFor(p.ID, next, p.Stock)
		}
		c.Items[i] = snapshot(p, next)
		return nil
	}

	c.Items = append(c.Items, snapshot(p, min(quantity, p.Stock)))
	return nil
}

func snapshot(p Product, quantity int) CartItem {
	return CartItem{
		ProductID: p.ID,
		Name:      p.Name,
		Image:     p.Image,
		UnitPrice: p.Price,
		Stock:     p.Stock,
		Quantity:  quantity,
	}
}

// UpdateQuantity sets the quantity of an existing line.
func (c *Cart) UpdateQuantity(productID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	i := c.indexOf(productID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrCartItemNotFound, productID)
	}
	if quantity > c.Items[i].Stock {
		return ErrStockExceededFor(productID, quantity, c.Items[i].Stock)
	}
	c.Items[i].Quantity = quantity
	return nil
}

// RemoveItem drops the line for productID. Removing an absent product is a no-op.
func (c *Cart) RemoveItem(productID string) {
	if i := c.indexOf(productID); i >= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
}

// Total is the sum of unit price times quantity over all lines.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Count is the number of units in the cart.
func (c *Cart) Count() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) Clear() {
	c.Items = []CartItem{}
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (c *Cart) Clone() *Cart {
	out := &Cart{Items: make([]CartItem, len(c.Items)), UpdatedAt: c.UpdatedAt}
	copy(out.Items, c.Items)
	return out
}
