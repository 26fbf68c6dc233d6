package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
)

func TestAuthService_RegisterLoginLogout(t *testing.T) {
	store := storage.NewMemoryAdapter()
	svc := NewAuthService(store, store, time.Hour)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Email: " Ada@Example.com ", Password: "secret1", FirstName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.NotEqual(t, "secret1", user.PasswordHash)

	_, err = svc.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "secret2"})
	assert.ErrorIs(t, err, domain.ErrEmailExists)

	_, err = svc.Login(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	session, err := svc.Login(ctx, "ADA@example.com", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)

	who, err := svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, who.ID)

	require.NoError(t, svc.Logout(ctx, session.Token))
	_, err = svc.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	store := storage.NewMemoryAdapter()
	svc := NewAuthService(store, store, time.Hour)

	_, err := svc.Register(context.Background(), RegisterInput{Email: "not-an-email", Password: "secret1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Register(context.Background(), RegisterInput{Email: "a@b.co", Password: "123"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRequireRole(t *testing.T) {
	admin := &domain.User{Role: domain.RoleAdmin}
	user := &domain.User{Role: domain.RoleUser}

	assert.NoError(t, RequireRole(admin, domain.RoleAdmin))
	assert.NoError(t, RequireRole(admin, domain.RoleUser))
	assert.NoError(t, RequireRole(user, domain.RoleUser))
	assert.ErrorIs(t, RequireRole(user, domain.RoleAdmin), domain.ErrForbidden)
	assert.ErrorIs(t, RequireRole(nil, domain.RoleUser), domain.ErrUnauthorized)
}

func TestAuthService_EnsureAdminIsIdempotent(t *testing.T) {
	store := storage.NewMemoryAdapter()
	svc := NewAuthService(store, store, time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "root@example.com", "changeme"))
	require.NoError(t, svc.EnsureAdmin(ctx, "root@example.com", "changeme"))

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].IsAdmin())
}
