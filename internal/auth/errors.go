package auth

import "errors"

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrUnauthorized  = errors.New("auth: unauthorized")
)

// Token validation failure kinds. They exist for logs and tests; the HTTP
// boundary collapses all of them into a single 401 so a caller cannot tell
// which stage rejected the credential.
var (
	ErrTokenMalformed = errors.New("auth: malformed token")
	ErrTokenSignature = errors.New("auth: invalid token signature")
	ErrTokenIssuer    = errors.New("auth: invalid issuer or audience")
	ErrTokenExpired   = errors.New("auth: token expired")
)
