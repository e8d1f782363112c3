package artifacts

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSigner mints and verifies download tokens: HMAC-SHA256 JWTs with
// claims bound to (file_id, team_id).
type TokenSigner struct {
	secret []byte
}

func NewTokenSigner(secret []byte) *TokenSigner {
	return &TokenSigner{secret: secret}
}

type downloadClaims struct {
	FileID string `json:"fid"`
	TeamID string `json:"tid"`
	jwt.RegisteredClaims
}

// Sign produces a token for fileID scoped to teamID, valid for ttl.
func (s *TokenSigner) Sign(fileID, teamID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := downloadClaims{
		FileID: fileID,
		TeamID: teamID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign download token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature, expiry, and file binding, returning the
// team the token was issued for.
func (s *TokenSigner) Verify(fileID, token string) (teamID string, err error) {
	var claims downloadClaims
	_, err = jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("parse download token: %w", err)
	}
	if claims.FileID != fileID {
		return "", fmt.Errorf("token not issued for %s", fileID)
	}
	return claims.TeamID, nil
}
