package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// UserService manages accounts and address books. Admins may act on any
// user; everyone else only on themselves.
type UserService struct {
	users port.UserRepository
}

func NewUserService(users port.UserRepository) *UserService {
	return &UserService{users: users}
}

func authorizeSelf(actor *domain.User, userID string) error {
	if actor == nil {
		return domain.ErrUnauthorized
	}
	if actor.ID != userID && !actor.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}

func (s *UserService) ListUsers(ctx context.Context, actor *domain.User) ([]domain.User, error) {
	if err := RequireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.users.ListUsers(ctx)
}

func (s *UserService) GetUser(ctx context.Context, actor *domain.User, id string) (*domain.User, error) {
	if err := authorizeSelf(actor, id); err != nil {
		return nil, err
	}
	return s.users.GetUserByID(ctx, id)
}

type UpdateUserInput struct {
	FirstName *string
	LastName  *string
	Email     *string
	Password  *string
	Role      *domain.Role
}

func (s *UserService) UpdateUser(ctx context.Context, actor *domain.User, id string, in UpdateUserInput) (*domain.User, error) {
	if err := authorizeSelf(actor, id); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.FirstName != nil {
		user.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		user.LastName = *in.LastName
	}
	if in.Email != nil {
		user.Email = normalizeEmail(*in.Email)
	}
	if in.Role != nil {
		if !actor.IsAdmin() {
			return nil, domain.ErrForbidden
		}
		if *in.Role != domain.RoleUser && *in.Role != domain.RoleAdmin {
			return nil, domain.InvalidInput("unknown role %q", *in.Role)
		}
		user.Role = *in.Role
	}
	if in.Password != nil {
		if len(*in.Password) < minPasswordLength {
			return nil, domain.InvalidInput("password must be at least %d characters", minPasswordLength)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = string(hash)
	}

	user.UpdatedAt = time.Now().UTC()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) DeleteUser(ctx context.Context, actor *domain.User, id string) error {
	if err := RequireRole(actor, domain.RoleAdmin); err != nil {
		return err
	}
	return s.users.DeleteUser(ctx, id)
}

func (s *UserService) ListAddresses(ctx context.Context, actor *domain.User, userID string) ([]domain.Address, error) {
	if err := authorizeSelf(actor, userID); err != nil {
		return nil, err
	}
	return s.users.ListAddresses(ctx, userID)
}

func (s *UserService) AddAddress(ctx context.Context, actor *domain.User, address *domain.Address) error {
	if err := authorizeSelf(actor, address.UserID); err != nil {
		return err
	}
	if err := address.Validate(); err != nil {
		return err
	}
	if _, err := s.users.GetUserByID(ctx, address.UserID); err != nil {
		return err
	}

	existing, err := s.users.ListAddresses(ctx, address.UserID)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		address.IsDefault = true
	}

	now := time.Now().UTC()
	address.ID = uuid.NewString()
	address.CreatedAt = now
	address.UpdatedAt = now
	return s.users.SaveAddress(ctx, address)
}

func (s *UserService) UpdateAddress(ctx context.Context, actor *domain.User, address *domain.Address) error {
	if err := authorizeSelf(actor, address.UserID); err != nil {
		return err
	}
	if err := address.Validate(); err != nil {
		return err
	}

	existing, err := s.users.GetAddress(ctx, address.UserID, address.ID)
	if err != nil {
		return err
	}
	address.CreatedAt = existing.CreatedAt
	address.UpdatedAt = time.Now().UTC()
	return s.users.SaveAddress(ctx, address)
}

func (s *UserService) DeleteAddress(ctx context.Context, actor *domain.User, userID, addressID string) error {
	if err := authorizeSelf(actor, userID); err != nil {
		return err
	}
	return s.users.DeleteAddress(ctx, userID, addressID)
}
