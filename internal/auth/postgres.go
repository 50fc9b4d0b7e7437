package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const userColumns = `id, first_name, last_name, email, password_hash, status, refresh_token_hash, refresh_expires_at, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, first_name, last_name, email, password_hash, status, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Status, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *PGStore) Update(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx,
		`update users set first_name=$1, last_name=$2, email=$3, password_hash=$4, status=$5, updated_at=now()
		 where id=$6`,
		u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Status, u.ID,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) SetRefreshToken(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set refresh_token_hash=$1, refresh_expires_at=$2, updated_at=now() where id=$3`,
		hash, expiresAt, userID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// RotateRefreshToken is a single conditional UPDATE, so two concurrent
// rotations against the same stored hash cannot both succeed.
func (s *PGStore) RotateRefreshToken(ctx context.Context, userID, oldHash, newHash string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set refresh_token_hash=$1, refresh_expires_at=$2, updated_at=now()
		 where id=$3 and refresh_token_hash=$4`,
		newHash, expiresAt, userID, oldHash,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUnauthorized
	}
	return nil
}

func (s *PGStore) ClearRefreshToken(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set refresh_token_hash=null, refresh_expires_at=null, updated_at=now() where id=$1`,
		userID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u          User
		refreshHash sql.NullString
		refreshExp  sql.NullTime
	)
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Status,
		&refreshHash, &refreshExp, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if refreshHash.Valid {
		u.RefreshTokenHash = refreshHash.String
	}
	if refreshExp.Valid {
		u.RefreshExpiresAt = refreshExp.Time
	}
	return &u, nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
