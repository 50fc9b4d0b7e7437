package auth

import (
	"context"
	"time"
)

// Store describes the credential persistence required by the auth subsystem.
// The refresh token is stored as a hash and follows overwrite semantics: at
// most one value is valid per user at any time.
type Store interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error

	// SetRefreshToken unconditionally overwrites the stored refresh token
	// hash and its expiry (login, register).
	SetRefreshToken(ctx context.Context, userID, hash string, expiresAt time.Time) error

	// RotateRefreshToken replaces oldHash with newHash only if oldHash is
	// still the stored value. It returns ErrUnauthorized when the stored
	// value has already moved on, which is how a second concurrent refresh
	// against the same token loses.
	RotateRefreshToken(ctx context.Context, userID, oldHash, newHash string, expiresAt time.Time) error

	// ClearRefreshToken removes the stored token and expiry together.
	ClearRefreshToken(ctx context.Context, userID string) error
}
