// Package auth verifies bearer tokens and decides whether a caller may act
// for a player.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "admin"

var ErrInvalidToken = errors.New("invalid token")

// Caller is the authenticated identity behind a request.
type Caller struct {
	PlayerID string
	Role     string
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

// Tokens issues and verifies HS256 tokens carrying a user_id claim.
type Tokens struct {
	secret []byte
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret)}
}

// Issue signs a token for playerID valid for ttl.
func (t *Tokens) Issue(playerID, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": playerID,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a signed token into a Caller.
func (t *Tokens) Verify(tokenString string) (Caller, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Caller{}, ErrInvalidToken
	}
	playerID, _ := claims["user_id"].(string)
	if playerID == "" {
		return Caller{}, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	role, _ := claims["role"].(string)
	return Caller{PlayerID: playerID, Role: role}, nil
}

// Authorizer lets a caller act for its own player id; admins may act for anyone.
type Authorizer struct{}

func (Authorizer) Check(_ context.Context, caller Caller, playerID string) bool {
	if caller.PlayerID == "" {
		return false
	}
	return caller.IsAdmin() || caller.PlayerID == playerID
}

type ctxKey struct{}

// WithCaller stores the caller in ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the authenticated caller, if any.
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok
}
