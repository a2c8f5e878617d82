// Package auth is the authentication boundary. Whatever verified the caller
// puts its address on the context; the match engine only checks that the
// address a call claims to act for is the one that was authenticated.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
)

var ErrUnauthenticated = errors.New("caller is not authenticated as the acting player")

type callerKey struct{}

// WithCaller returns a context carrying the authenticated caller address.
func WithCaller(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// CallerFrom returns the authenticated caller, if any.
func CallerFrom(ctx context.Context) (string, bool) {
	addr, ok := ctx.Value(callerKey{}).(string)
	return addr, ok && addr != ""
}

// Require fails unless ctx was authenticated as claimed.
func Require(ctx context.Context, claimed string) error {
	addr, ok := CallerFrom(ctx)
	if !ok || addr != claimed {
		return ErrUnauthenticated
	}
	return nil
}

// Tokens mints and parses HS256 bearer tokens whose subject is a player address.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokens(secret, issuer string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &Tokens{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

func (t *Tokens) Mint(addr string) (string, error) {
	if addr == "" {
		return "", fmt.Errorf("player address is required")
	}
	claims := jwt.MapClaims{
		"iss": t.issuer,
		"sub": addr,
		"iat": time.Now().Unix(),
	}
	if t.ttl > 0 {
		claims["exp"] = time.Now().Add(t.ttl).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse validates a token and returns its subject.
func (t *Tokens) Parse(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrUnauthenticated
	}
	if t.issuer != "" && !claims.VerifyIssuer(t.issuer, true) {
		return "", fmt.Errorf("%w: wrong issuer", ErrUnauthenticated)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	return sub, nil
}
