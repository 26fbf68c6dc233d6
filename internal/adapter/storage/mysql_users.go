package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/storefront/internal/core/domain"
)

const (
	userColumns    = `id, email, first_name, last_name, role, password_hash, created_at, updated_at`
	addressColumns = `id, user_id, street, city, postal_code, country, is_default, created_at, updated_at`
)

func (m *MySQLAdapter) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := m.db.NamedExecContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, role, password_hash, created_at, updated_at)
		VALUES (:id, :email, :first_name, :last_name, :role, :password_hash, :created_at, :updated_at)`,
		user,
	)
	if isDuplicateEntry(err) {
		return domain.ErrEmailExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	var user domain.User
	err := m.db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE "+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

func (m *MySQLAdapter) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return m.getUser(ctx, "id = ?", id)
}

func (m *MySQLAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.getUser(ctx, "email = ?", email)
}

func (m *MySQLAdapter) ListUsers(ctx context.Context) ([]domain.User, error) {
	users := []domain.User{}
	if err := m.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY email"); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (m *MySQLAdapter) UpdateUser(ctx context.Context, user *domain.User) error {
	result, err := m.db.NamedExecContext(ctx, `
		UPDATE users
		SET email = :email, first_name = :first_name, last_name = :last_name, role = :role,
			password_hash = :password_hash, updated_at = :updated_at
		WHERE id = :id`,
		user,
	)
	if isDuplicateEntry(err) {
		return domain.ErrEmailExists
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return m.requireAffected(ctx, result, "users", user.ID, domain.ErrUserNotFound)
}

func (m *MySQLAdapter) DeleteUser(ctx context.Context, id string) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (m *MySQLAdapter) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	addresses := []domain.Address{}
	err := m.db.SelectContext(ctx, &addresses,
		"SELECT "+addressColumns+" FROM addresses WHERE user_id = ? ORDER BY created_at", userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return addresses, nil
}

func (m *MySQLAdapter) GetAddress(ctx context.Context, userID, addressID string) (*domain.Address, error) {
	var address domain.Address
	err := m.db.GetContext(ctx, &address,
		"SELECT "+addressColumns+" FROM addresses WHERE id = ? AND user_id = ?", addressID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query address: %w", err)
	}
	return &address, nil
}

func (m *MySQLAdapter) SaveAddress(ctx context.Context, address *domain.Address) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if address.IsDefault {
		_, err = tx.ExecContext(ctx,
			`UPDATE addresses SET is_default = FALSE WHERE user_id = ? AND id <> ?`,
			address.UserID, address.ID)
		if err != nil {
			return fmt.Errorf("clear default address: %w", err)
		}
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO addresses (id, user_id, street, city, postal_code, country, is_default, created_at, updated_at)
		VALUES (:id, :user_id, :street, :city, :postal_code, :country, :is_default, :created_at, :updated_at)
		ON DUPLICATE KEY UPDATE
			street = VALUES(street), city = VALUES(city), postal_code = VALUES(postal_code),
			country = VALUES(country), is_default = VALUES(is_default), updated_at = VALUES(updated_at)`,
		address,
	)
	if err != nil {
		return fmt.Errorf("save address: %w", err)
	}

	return tx.Commit()
}

func (m *MySQLAdapter) DeleteAddress(ctx context.Context, userID, addressID string) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM addresses WHERE id = ? AND user_id = ?`, addressID, userID)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrAddressNotFound
	}
	return nil
}
