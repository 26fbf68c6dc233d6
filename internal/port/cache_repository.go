package port

import (
	"context"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency forgets a key so a failed request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}

// CartRepository keeps one cart per session.
type CartRepository interface {
	// GetCart returns an empty cart when the session has none
	GetCart(ctx context.Context, sessionID string) (*domain.Cart, error)
	SaveCart(ctx context.Context, sessionID string, cart *domain.Cart) error
	DeleteCart(ctx context.Context, sessionID string) error
}

// SessionRepository maps opaque auth tokens to user ids.
type SessionRepository interface {
	SaveSession(ctx context.Context, token, userID string, ttl time.Duration) error
	// GetSession returns domain.ErrUnauthorized for unknown or expired tokens
	GetSession(ctx context.Context, token string) (string, error)
	DeleteSession(ctx context.Context, token string) error
}
