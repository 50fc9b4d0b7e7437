package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskhub.org/internal/ids"
)

// Service orchestrates registration, login and refresh token rotation.
type Service struct {
	store      Store
	tokens     *Tokens
	refreshTTL time.Duration
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
			s.tokens.now = fn
		}
		return nil
	}
}

// NewService constructs the Service.
func NewService(store Store, tokens *Tokens, refreshTTL time.Duration, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: tokens is required")
	}
	if refreshTTL <= 0 {
		return nil, errors.New("auth: refresh ttl must be positive")
	}
	svc := &Service{
		store:      store,
		tokens:     tokens,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// RegisterInput carries the fields needed to create a user.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Register creates a user and issues its first token pair.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, TokenPair, error) {
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, TokenPair{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(in.Password) < 8 {
		return nil, TokenPair{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        email,
		PasswordHash: hash,
		Status:       UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// Login authenticates credentials and issues a fresh token pair. Every
// failure mode surfaces as ErrUnauthorized to avoid identity enumeration.
func (s *Service) Login(ctx context.Context, email, password string) (*User, TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, TokenPair{}, ErrUnauthorized
	}
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, TokenPair{}, ErrUnauthorized
		}
		return nil, TokenPair{}, err
	}
	if !user.Active() {
		return nil, TokenPair{}, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, TokenPair{}, ErrUnauthorized
	}
	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// Refresh validates an expired access token plus its paired refresh token
// and rotates the pair. Stages run in a fixed order: claims extraction,
// identity resolution, stored-token comparison, then the conditional
// write-back. Failures in any stage surface as ErrUnauthorized and leave
// the stored token untouched.
func (s *Service) Refresh(ctx context.Context, accessToken, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.Validate(accessToken, false)
	if err != nil {
		return TokenPair{}, ErrUnauthorized
	}

	user, err := s.store.Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, err
	}
	if !user.Active() {
		return TokenPair{}, ErrUnauthorized
	}

	if !refreshTokenMatches(user.RefreshTokenHash, refreshToken) {
		return TokenPair{}, ErrUnauthorized
	}
	if !s.now().UTC().Before(user.RefreshExpiresAt) {
		return TokenPair{}, ErrUnauthorized
	}

	access, accessExp, err := s.tokens.IssueAccessToken(*user)
	if err != nil {
		return TokenPair{}, err
	}
	newRefresh, err := s.tokens.NewRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}
	refreshExp := s.now().UTC().Add(s.refreshTTL)

	// Conditional overwrite: if another request rotated first, this loses.
	err = s.store.RotateRefreshToken(ctx, user.ID, user.RefreshTokenHash, HashRefreshToken(newRefresh), refreshExp)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     newRefresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Logout invalidates the stored refresh token. Already issued access tokens
// stay valid until they expire.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.store.ClearRefreshToken(ctx, userID)
}

// Authenticate validates a bearer access token and returns its claims.
func (s *Service) Authenticate(token string) (*Claims, error) {
	claims, err := s.tokens.Validate(token, true)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// User loads a user by id.
func (s *Service) User(ctx context.Context, id string) (*User, error) {
	return s.store.Find(ctx, id)
}

func (s *Service) issuePair(ctx context.Context, user *User) (TokenPair, error) {
	access, accessExp, err := s.tokens.IssueAccessToken(*user)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.tokens.NewRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}
	refreshExp := s.now().UTC().Add(s.refreshTTL)
	if err := s.store.SetRefreshToken(ctx, user.ID, HashRefreshToken(refresh), refreshExp); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
