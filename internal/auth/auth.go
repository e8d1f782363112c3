// Package auth resolves bearer tokens to principals. Password hashing and
// token minting for end users live outside the core; the server consumes a
// Resolver. The default implementation validates HMAC JWTs carrying the
// user, active team, and role.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jetlinks-ai/aistaff/internal/capability"
)

// Principal is an authenticated caller with an active team.
type Principal struct {
	UserID string
	TeamID string
	Role   capability.Role
}

// Resolver turns a bearer token into a principal.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Principal, error)
}

type principalClaims struct {
	TeamID string `json:"tid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTResolver validates HMAC-signed bearer tokens.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret []byte) *JWTResolver {
	return &JWTResolver{secret: secret}
}

func (r *JWTResolver) Resolve(ctx context.Context, token string) (*Principal, error) {
	var claims principalClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse bearer token: %w", err)
	}
	if claims.Subject == "" || claims.TeamID == "" {
		return nil, fmt.Errorf("token missing subject or team")
	}
	role := capability.Role(claims.Role)
	switch role {
	case capability.RoleOwner, capability.RoleAdmin, capability.RoleMember:
	default:
		role = capability.RoleMember
	}
	return &Principal{UserID: claims.Subject, TeamID: claims.TeamID, Role: role}, nil
}

// Mint issues a principal token; used by the CLI and tests.
func (r *JWTResolver) Mint(userID, teamID string, role capability.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := principalClaims{
		TeamID: teamID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(r.secret)
}

type ctxKey struct{}

// WithPrincipal attaches the principal to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the request principal, or nil.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKey{}).(*Principal)
	return p
}
