package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "first_name", "last_name", "email", "password_hash", "status",
		"refresh_token_hash", "refresh_expires_at", "created_at", "updated_at",
	})
}

func TestPGStoreFindScansRefreshState(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	exp := time.Now().Add(24 * time.Hour).UTC()
	mock.ExpectQuery("select .* from users where id=").
		WithArgs("user-1").
		WillReturnRows(userRows().AddRow(
			"user-1", "Ada", "Lovelace", "a@x.com", "hashed", "active",
			"refresh-hash", exp, time.Now(), time.Now(),
		))

	store := NewPGStore(db)
	u, err := store.Find(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if u.RefreshTokenHash != "refresh-hash" {
		t.Fatalf("unexpected refresh hash: %s", u.RefreshTokenHash)
	}
	if !u.RefreshExpiresAt.Equal(exp) {
		t.Fatalf("unexpected refresh expiry: %v", u.RefreshExpiresAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreFindNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select .* from users where id=").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	store := NewPGStore(db)
	if _, err := store.Find(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStoreFindByEmailScansNullRefreshState(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select .* from users where email=").
		WithArgs("a@x.com").
		WillReturnRows(userRows().AddRow(
			"user-1", "Ada", "Lovelace", "a@x.com", "hashed", "active",
			nil, nil, time.Now(), time.Now(),
		))

	store := NewPGStore(db)
	u, err := store.FindByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if u.RefreshTokenHash != "" || !u.RefreshExpiresAt.IsZero() {
		t.Fatalf("expected empty refresh state, got %q / %v", u.RefreshTokenHash, u.RefreshExpiresAt)
	}
}

func TestPGStoreRotateRefreshToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	exp := time.Now().Add(7 * 24 * time.Hour).UTC()
	mock.ExpectExec("update users set refresh_token_hash=").
		WithArgs("new-hash", exp, "user-1", "old-hash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	if err := store.RotateRefreshToken(context.Background(), "user-1", "old-hash", "new-hash", exp); err != nil {
		t.Fatalf("RotateRefreshToken: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreRotateRefreshTokenLosesRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	exp := time.Now().Add(7 * 24 * time.Hour).UTC()
	mock.ExpectExec("update users set refresh_token_hash=").
		WithArgs("new-hash", exp, "user-1", "stale-hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPGStore(db)
	err = store.RotateRefreshToken(context.Background(), "user-1", "stale-hash", "new-hash", exp)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized when stored hash moved on, got %v", err)
	}
}

func TestPGStoreClearRefreshToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update users set refresh_token_hash=null, refresh_expires_at=null").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	if err := store.ClearRefreshToken(context.Background(), "user-1"); err != nil {
		t.Fatalf("ClearRefreshToken: %v", err)
	}
}

func TestPGStoreCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec("insert into users").
		WithArgs("user-1", "Ada", "Lovelace", "a@x.com", "hashed", "active", now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewPGStore(db)
	err = store.Create(context.Background(), &User{
		ID:           "user-1",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        "a@x.com",
		PasswordHash: "hashed",
		Status:       UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
}
