package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// refreshTokenBytes is the entropy of an opaque refresh token (256 bits).
const refreshTokenBytes = 32

// Claims are the identity attributes asserted by a validated access token.
type Claims struct {
	FirstName string `json:"given_name,omitempty"`
	LastName  string `json:"family_name,omitempty"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// Tokens issues and validates access tokens and generates opaque refresh
// tokens. A Tokens value is immutable after construction.
type Tokens struct {
	secret    []byte
	issuer    string
	audience  string
	accessTTL time.Duration
	now       func() time.Time
}

// NewTokens builds the issuer/validator. An empty secret is a configuration
// error; it is reported here, once, at startup.
func NewTokens(secret, issuer, audience string, accessTTL time.Duration) (*Tokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if strings.TrimSpace(issuer) == "" || strings.TrimSpace(audience) == "" {
		return nil, errors.New("auth: issuer and audience are required")
	}
	if accessTTL <= 0 {
		return nil, errors.New("auth: access ttl must be positive")
	}
	return &Tokens{
		secret:    []byte(secret),
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
		now:       time.Now,
	}, nil
}

// IssueAccessToken signs an HS256 JWT carrying the user's id, name and email.
// Pure function of the user, the clock and the configured key.
func (t *Tokens) IssueAccessToken(user User) (string, time.Time, error) {
	now := t.now().UTC()
	exp := now.Add(t.accessTTL)
	claims := Claims{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// NewRefreshToken generates a cryptographically random opaque token. It
// carries no claims; it is validated only by exact match against stored
// state.
func (t *Tokens) NewRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Validate checks signature, issuer and audience always, and expiry only
// when requireUnexpired is set. The relaxed mode exists for refresh: the
// coordinator must extract identity from a token precisely because it has
// expired.
func (t *Tokens) Validate(token string, requireUnexpired bool) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		// Reject any non-HMAC method even if the parser filter changes.
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenSignature
		}
		return t.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignature
		case errors.Is(err, jwt.ErrTokenUnverifiable), errors.Is(err, ErrTokenSignature):
			return nil, ErrTokenSignature
		default:
			return nil, ErrTokenMalformed
		}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if err := t.validateClaims(claims, requireUnexpired); err != nil {
		return nil, err
	}
	return claims, nil
}

func (t *Tokens) validateClaims(claims *Claims, requireUnexpired bool) error {
	if claims.Issuer != t.issuer {
		return ErrTokenIssuer
	}
	if !containsAudience(claims.Audience, t.audience) {
		return ErrTokenIssuer
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return ErrTokenMalformed
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return ErrTokenMalformed
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return ErrTokenMalformed
	}
	now := t.now().UTC()
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return ErrTokenMalformed
	}
	if requireUnexpired && now.After(claims.ExpiresAt.Time) {
		return ErrTokenExpired
	}
	return nil
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// HashRefreshToken returns the hex SHA-256 digest stored in place of the
// raw refresh token.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func refreshTokenMatches(storedHash, presented string) bool {
	if storedHash == "" || presented == "" {
		return false
	}
	actual := HashRefreshToken(presented)
	if len(storedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(actual)) == 1
}
