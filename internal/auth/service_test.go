package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	tokens := newTestTokens(t)
	svc, err := NewService(store, tokens, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func TestRegisterLoginRefreshFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, pair, err := svc.Register(ctx, RegisterInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "A@X.com",
		Password:  "correct horse",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "a@x.com" {
		t.Fatalf("email not normalized: %s", user.Email)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected full token pair")
	}

	_, loginPair, err := svc.Login(ctx, "a@x.com", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	rotated, err := svc.Refresh(ctx, loginPair.AccessToken, loginPair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.AccessToken == loginPair.AccessToken {
		t.Fatalf("expected a new access token")
	}
	if rotated.RefreshToken == loginPair.RefreshToken {
		t.Fatalf("expected a new refresh token")
	}

	// The presented refresh token must be single-use.
	if _, err := svc.Refresh(ctx, loginPair.AccessToken, loginPair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized replaying stale refresh token, got %v", err)
	}

	// The rotated pair keeps working.
	if _, err := svc.Refresh(ctx, rotated.AccessToken, rotated.RefreshToken); err != nil {
		t.Fatalf("Refresh with rotated pair: %v", err)
	}
}

func TestRefreshAcceptsExpiredAccessToken(t *testing.T) {
	store := NewMemoryStore()
	tokens := newTestTokens(t)

	past := time.Now().Add(-2 * time.Hour)
	svc, err := NewService(store, tokens, 7*24*time.Hour, WithClock(func() time.Time { return past }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Move the clock past the access token's lifetime but inside the
	// refresh window.
	now := time.Now()
	svc.now = func() time.Time { return now }
	tokens.now = svc.now

	if _, err := tokens.Validate(pair.AccessToken, true); err != ErrTokenExpired {
		t.Fatalf("precondition: expected expired access token, got %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh with expired access token: %v", err)
	}
}

func TestRefreshRejectsExpiredRefreshToken(t *testing.T) {
	store := NewMemoryStore()
	tokens := newTestTokens(t)
	svc, err := NewService(store, tokens, time.Hour)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	later := time.Now().Add(2 * time.Hour)
	svc.now = func() time.Time { return later }
	tokens.now = svc.now

	if _, err := svc.Refresh(ctx, pair.AccessToken, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired refresh token, got %v", err)
	}
}

func TestRefreshRejectsTamperedAccessToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.AccessToken+"x", pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for tampered access token, got %v", err)
	}
}

func TestRefreshRejectsMismatchedRefreshToken(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	user, pair, err := svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.AccessToken, "not-the-token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for mismatched refresh token, got %v", err)
	}

	// Failed attempts leave the stored token untouched.
	stored, err := store.Find(ctx, user.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if stored.RefreshTokenHash != HashRefreshToken(pair.RefreshToken) {
		t.Fatalf("stored refresh token changed after failed attempt")
	}
	if _, err := svc.Refresh(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh with intact token after failed attempt: %v", err)
	}
}

func TestLoginFailuresAreUndifferentiated(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, _, err := svc.Login(ctx, "nobody@x.com", "whatever"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown email: expected ErrUnauthorized, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "a@x.com", "wrong password"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong password: expected ErrUnauthorized, got %v", err)
	}

	user.Status = UserStatusDisabled
	user.UpdatedAt = time.Now().UTC()
	if err := store.Update(ctx, user); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, _, err := svc.Login(ctx, "a@x.com", "correct horse"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("disabled user: expected ErrUnauthorized, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, RegisterInput{Email: "not-an-email", Password: "correct horse"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad email, got %v", err)
	}
	if _, _, err := svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "short"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
	if _, _, err := svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "correct horse"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "correct horse"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for duplicate email, got %v", err)
	}
}

func TestLogoutInvalidatesRefreshToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, pair, err := svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.Logout(ctx, user.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.AccessToken, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after logout, got %v", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	const attempts = 8
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			_, err := svc.Refresh(ctx, pair.AccessToken, pair.RefreshToken)
			results <- err
		}()
	}

	var wins, losses int
	for i := 0; i < attempts; i++ {
		switch err := <-results; {
		case err == nil:
			wins++
		case errors.Is(err, ErrUnauthorized):
			losses++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d (losses %d)", wins, losses)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	claims, err := svc.Authenticate(pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if claims.Email != "a@x.com" {
		t.Fatalf("unexpected email: %s", claims.Email)
	}
	if _, err := svc.Authenticate("garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
