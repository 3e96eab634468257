package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultClockSkew is the tolerance applied to exp/nbf/iat.
const DefaultClockSkew = 30 * time.Second

var (
	ErrMissingToken = errors.New("MISSING_TOKEN")
	ErrInvalidToken = errors.New("INVALID_TOKEN")
)

// AuthUser is the identity carried by a verified access token.
type AuthUser struct {
	ID    uuid.UUID
	Role  string
	Email string
}

type accessClaims struct {
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 access tokens issued by the auth provider.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

func NewAuthenticator(secret string, clockSkew time.Duration) *Authenticator {
	if clockSkew <= 0 {
		clockSkew = DefaultClockSkew
	}
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(clockSkew),
		),
	}
}

// Verify returns ErrMissingToken for an empty token and ErrInvalidToken
// (wrapping the parser error) for anything that fails verification.
func (a *Authenticator) Verify(token string) (AuthUser, error) {
	if token == "" {
		return AuthUser{}, ErrMissingToken
	}

	var claims accessClaims
	_, err := a.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return AuthUser{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return AuthUser{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}

	role := claims.Role
	if role == "" {
		role = "authenticated"
	}
	return AuthUser{ID: id, Role: role, Email: claims.Email}, nil
}

// ExtractBearerToken returns the token of an "Authorization: Bearer" header.
func ExtractBearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" {
		return ""
	}
	return strings.TrimSpace(token)
}

// requestToken looks for the token in the Authorization header, then in the
// token query parameter (browsers cannot set headers on a websocket dial).
func requestToken(r *http.Request) string {
	if token := ExtractBearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// authErrorCode maps a verification error to its wire code.
func authErrorCode(err error) string {
	if errors.Is(err, ErrMissingToken) {
		return ErrMissingToken.Error()
	}
	return ErrInvalidToken.Error()
}
