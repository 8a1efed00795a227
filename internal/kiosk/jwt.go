package kiosk

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the JWT payload handed to a kiosk. Only the jti
// matters for authorization; kiosk_id is informational.
type SessionClaims struct {
	KioskID string `json:"kid"`
	jwt.RegisteredClaims
}

// JWTManager signs and parses kiosk session bearer tokens.
type JWTManager struct {
	secret []byte
}

func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{secret: []byte(secret)}
}

// Mint signs a bearer token referencing the given session row.
func (m *JWTManager) Mint(jti uuid.UUID, kioskID string, expiresAt *time.Time) (string, error) {
	claims := SessionClaims{
		KioskID: kioskID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       jti.String(),
			IssuedAt: jwt.NewNumericDate(time.Now()),
			Issuer:   "frontier-meals",
		},
	}
	if expiresAt != nil {
		claims.ExpiresAt = jwt.NewNumericDate(*expiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and returns the claims. A valid signature
// is necessary but not sufficient: the session row still decides.
func (m *JWTManager) Parse(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing session token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token claims")
	}

	return claims, nil
}
