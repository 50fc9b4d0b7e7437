package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process concurrency safety. Used by
// tests and by dev mode when no Postgres DSN is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]*User
	byEmail map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return ErrAlreadyExists
	}
	cp := *u
	s.users[u.ID] = &cp
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	if u.Email != cur.Email {
		if _, taken := s.byEmail[u.Email]; taken {
			return ErrAlreadyExists
		}
		delete(s.byEmail, cur.Email)
		s.byEmail[u.Email] = u.ID
	}
	cur.FirstName = u.FirstName
	cur.LastName = u.LastName
	cur.Email = u.Email
	cur.PasswordHash = u.PasswordHash
	cur.Status = u.Status
	cur.UpdatedAt = u.UpdatedAt
	return nil
}

func (s *MemoryStore) SetRefreshToken(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.RefreshTokenHash = hash
	u.RefreshExpiresAt = expiresAt
	return nil
}

func (s *MemoryStore) RotateRefreshToken(ctx context.Context, userID, oldHash, newHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if u.RefreshTokenHash == "" || u.RefreshTokenHash != oldHash {
		return ErrUnauthorized
	}
	u.RefreshTokenHash = newHash
	u.RefreshExpiresAt = expiresAt
	return nil
}

func (s *MemoryStore) ClearRefreshToken(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.RefreshTokenHash = ""
	u.RefreshExpiresAt = time.Time{}
	return nil
}
