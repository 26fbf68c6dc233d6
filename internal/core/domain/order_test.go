package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatus_Transitions(t *testing.T) {
	allowed := map[[2]OrderStatus]bool{
		{OrderStatusPending, OrderStatusProcessing}:   true,
		{OrderStatusPending, OrderStatusCancelled}:    true,
		{OrderStatusProcessing, OrderStatusShipped}:   true,
		{OrderStatusProcessing, OrderStatusCancelled}: true,
		{OrderStatusShipped, OrderStatusDelivered}:    true,
	}
	all := []OrderStatus{
		OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]OrderStatus{from, to}]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestOrder_TransitionTo(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := created.Add(time.Hour)

	tests := []struct {
		name    string
		from    OrderStatus
		to      OrderStatus
		wantErr bool
	}{
		{"pending to shipped skips processing", OrderStatusPending, OrderStatusShipped, true},
		{"delivered is terminal", OrderStatusDelivered, OrderStatusCancelled, true},
		{"delivered to processing", OrderStatusDelivered, OrderStatusProcessing, true},
		{"pending to cancelled", OrderStatusPending, OrderStatusCancelled, false},
		{"cancelled to processing", OrderStatusCancelled, OrderStatusProcessing, true},
		{"processing to shipped", OrderStatusProcessing, OrderStatusShipped, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := &Order{Status: tt.from, CreatedAt: created, UpdatedAt: created}
			err := order.TransitionTo(tt.to, later)

			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, order.Status)
				assert.Equal(t, created, order.UpdatedAt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, order.Status)
			assert.Equal(t, later, order.UpdatedAt)
		})
	}
}

func TestParseOrderStatus(t *testing.T) {
	s, err := ParseOrderStatus("shipped")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusShipped, s)

	_, err = ParseOrderStatus("lost")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestComputeTotal(t *testing.T) {
	items := []OrderItem{
		{ProductID: "A", UnitPrice: decimal.NewFromInt(1000), Quantity: 2},
		{ProductID: "B", UnitPrice: decimal.NewFromInt(2500), Quantity: 1},
	}
	assert.True(t, ComputeTotal(items).Equal(decimal.NewFromInt(4500)))
	assert.True(t, ComputeTotal(nil).IsZero())
}

func TestProduct_Validate(t *testing.T) {
	valid := Product{Name: "Keyboard", Price: decimal.NewFromInt(10), Stock: 1, CategoryID: "c", Rating: 4.5}
	require.NoError(t, valid.Validate())

	negative := decimal.NewFromInt(-1)
	cases := map[string]func(p *Product){
		"short name":         func(p *Product) { p.Name = "ab" },
		"negative price":     func(p *Product) { p.Price = negative },
		"negative old price": func(p *Product) { p.OldPrice = &negative },
		"negative stock":     func(p *Product) { p.Stock = -1 },
		"rating above five":  func(p *Product) { p.Rating = 5.5 },
		"missing category":   func(p *Product) { p.CategoryID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := valid
			mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidInput)
		})
	}
}
