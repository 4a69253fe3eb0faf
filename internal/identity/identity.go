// Package identity supplies the authenticated user id that partitions every store
// operation, and the bearer tokens that carry it.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer   = "clipsync"
	audience = "clipsync-api"
)

var (
	// ErrUnauthenticated means no identity is available
	ErrUnauthenticated = errors.New("unauthenticated")

	ErrInvalidToken = errors.New("invalid or expired token")
)

// Provider supplies the current user id, or false when nobody is signed in
type Provider interface {
	CurrentUserID() (string, bool)
}

// Static is a Provider with a fixed user id. The empty Static is signed out.
type Static string

func (s Static) CurrentUserID() (string, bool) {
	id := strings.TrimSpace(string(s))
	return id, id != ""
}

// Require returns the current user id or ErrUnauthenticated. A nil provider is signed out.
func Require(p Provider) (string, error) {
	if p == nil {
		return "", ErrUnauthenticated
	}
	id, ok := p.CurrentUserID()
	if !ok || id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// Claims represents the JWT claims of an identity token
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// IssueToken creates a signed JWT token for the given user
func IssueToken(userID, secret string, expiry time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrUnauthenticated
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and validates a JWT token string, returning the claims if valid
func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithAudience(audience))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Token is a Provider backed by a bearer token. It re-checks expiry on every call, so an
// expired token signs the holder out instead of leaving a stale identity in use.
type Token struct {
	raw    string
	secret string
}

func NewToken(raw, secret string) *Token {
	return &Token{raw: strings.TrimSpace(raw), secret: secret}
}

func (t *Token) CurrentUserID() (string, bool) {
	if t == nil || t.raw == "" {
		return "", false
	}
	claims, err := ValidateToken(t.raw, t.secret)
	if err != nil {
		return "", false
	}
	return claims.UserID, true
}

type contextKey string

const userIDKey contextKey = "userID"

// WithUserID stores the authenticated user id in the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the authenticated user id from the context
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
