package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

type orderRow struct {
	ID            string          `db:"id"`
	UserID        string          `db:"user_id"`
	Total         decimal.Decimal `db:"total"`
	FirstName     string          `db:"first_name"`
	LastName      string          `db:"last_name"`
	Email         string          `db:"email"`
	Phone         string          `db:"phone"`
	Street        string          `db:"street"`
	City          string          `db:"city"`
	PostalCode    string          `db:"postal_code"`
	Country       string          `db:"country"`
	PaymentMethod string          `db:"payment_method"`
	Notes         string          `db:"notes"`
	Status        string          `db:"status"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

type orderItemRow struct {
	OrderID string `db:"order_id"`
	domain.OrderItem
}

const orderColumns = `id, user_id, total, first_name, last_name, email, phone, street, city,
	postal_code, country, payment_method, notes, status, created_at, updated_at`

func newOrderRow(o domain.Order) orderRow {
	a := o.ShippingAddress
	return orderRow{
		ID:            o.ID,
		UserID:        o.UserID,
		Total:         o.Total,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Email:         a.Email,
		Phone:         a.Phone,
		Street:        a.Street,
		City:          a.City,
		PostalCode:    a.PostalCode,
		Country:       a.Country,
		PaymentMethod: o.PaymentMethod,
		Notes:         o.Notes,
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func (r orderRow) toDomain() domain.Order {
	return domain.Order{
		ID:     r.ID,
		UserID: r.UserID,
		Items:  []domain.OrderItem{},
		Total:  r.Total,
		ShippingAddress: domain.ShippingAddress{
			FirstName:  r.FirstName,
			LastName:   r.LastName,
			Email:      r.Email,
			Phone:      r.Phone,
			Street:     r.Street,
			City:       r.City,
			PostalCode: r.PostalCode,
			Country:    r.Country,
		},
		PaymentMethod: r.PaymentMethod,
		Notes:         r.Notes,
		Status:        domain.OrderStatus(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// CreateOrder writes the order and its lines in one transaction.
func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO orders (id, user_id, total, first_name, last_name, email, phone, street, city,
			postal_code, country, payment_method, notes, status, created_at, updated_at)
		VALUES (:id, :user_id, :total, :first_name, :last_name, :email, :phone, :street, :city,
			:postal_code, :country, :payment_method, :notes, :status, :created_at, :updated_at)`,
		newOrderRow(order),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, name, unit_price, quantity)
			VALUES (?, ?, ?, ?, ?, ?)`,
			order.ID, i, item.ProductID, item.Name, item.UnitPrice, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var row orderRow
	err := m.db.GetContext(ctx, &row, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	orders := []domain.Order{row.toDomain()}
	if err := m.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE 1 = 1"
	var args []any
	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	var rows []orderRow
	if err := m.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.toDomain())
	}
	if err := m.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (m *MySQLAdapter) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[string]int, len(orders))
	ids := make([]string, 0, len(orders))
	for i, o := range orders {
		index[o.ID] = i
		ids = append(ids, o.ID)
	}

	query, args, err := sqlx.In(`
		SELECT order_id, product_id, name, unit_price, quantity
		FROM order_items
		WHERE order_id IN (?)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return fmt.Errorf("build order items query: %w", err)
	}

	var items []orderItemRow
	if err := m.db.SelectContext(ctx, &items, m.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("query order items: %w", err)
	}

	for _, item := range items {
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item.OrderItem)
	}
	return nil
}

func (m *MySQLAdapter) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), at, id, string(from),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 1 {
		return nil
	}

	ok, err := m.exists(ctx, "orders", id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrOrderNotFound
	}
	return domain.ErrConcurrentUpdate
}
