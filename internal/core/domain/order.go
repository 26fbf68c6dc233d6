package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseOrderStatus accepts only the known status names.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, raw)
	}
	return s, nil
}

// OrderItem is a line frozen at purchase time. It never refers back to the
// live product for name or price.
type OrderItem struct {
	ProductID string          `json:"productId" bson:"productId" db:"product_id"`
	Name      string          `json:"name" bson:"name" db:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice" bson:"unitPrice" db:"unit_price"`
	Quantity  int             `json:"quantity" bson:"quantity" db:"quantity"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type ShippingAddress struct {
	FirstName  string `json:"firstName" bson:"firstName" validate:"required"`
	LastName   string `json:"lastName" bson:"lastName" validate:"required"`
	Email      string `json:"email" bson:"email" validate:"required,email"`
	Phone      string `json:"phone" bson:"phone" validate:"required"`
	Street     string `json:"street" bson:"street" validate:"required"`
	City       string `json:"city" bson:"city" validate:"required"`
	PostalCode string `json:"postalCode" bson:"postalCode"`
	Country    string `json:"country" bson:"country" validate:"required"`
}

// Validate performs the minimal checks the service relies on; richer format
// checks run on the request DTO.
func (a ShippingAddress) Validate() error {
	switch {
	case a.FirstName == "" && a.LastName == "":
		return InvalidInput("shipping name is required")
	case a.Email == "":
		return InvalidInput("shipping email is required")
	case a.Phone == "":
		return InvalidInput("shipping phone is required")
	case a.Street == "", a.City == "", a.Country == "":
		return InvalidInput("shipping street, city and country are required")
	}
	return nil
}

type Order struct {
	ID              string          `json:"id" bson:"_id"`
	UserID          string          `json:"user" bson:"user"`
	Items           []OrderItem     `json:"items" bson:"items"`
	Total           decimal.Decimal `json:"total" bson:"total"`
	ShippingAddress ShippingAddress `json:"shippingAddress" bson:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod" bson:"paymentMethod"`
	Notes           string          `json:"notes,omitempty" bson:"notes,omitempty"`
	Status          OrderStatus     `json:"status" bson:"status"`
	CreatedAt       time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt" bson:"updatedAt"`
}

// ComputeTotal sums the frozen line items. It is used once, at creation; the
// stored Total is what readers see afterwards.
func ComputeTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// TransitionTo moves the order to next, stamping UpdatedAt.
func (o *Order) TransitionTo(next OrderStatus, at time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = at
	return nil
}

// OrderFilter selects orders for listing. Empty fields match everything.
type OrderFilter struct {
	UserID string
	Status OrderStatus
	Limit  int64
	Offset int64
}

type OrderEventType string

const (
	OrderEventCreated       OrderEventType = "order.created"
	OrderEventStatusChanged OrderEventType = "order.status_changed"
)

// OrderEvent is emitted after an order is persisted or changes status.
type OrderEvent struct {
	ID         string         `json:"id"`
	Type       OrderEventType `json:"type"`
	OrderID    string         `json:"orderId"`
	UserID     string         `json:"userId"`
	Status     OrderStatus    `json:"status"`
	PrevStatus OrderStatus    `json:"prevStatus,omitempty"`
	Total      string         `json:"total"`
	OccurredAt time.Time      `json:"occurredAt"`
}
