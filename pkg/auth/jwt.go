package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is written into every token and checked on verification
const Issuer = "tides"

// DefaultTokenExpiry is used when no expiry is given
const DefaultTokenExpiry = 24 * time.Hour

// ExtractToken extracts the JWT token from an Authorization header value.
// Supports "Bearer <token>" format.
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("empty authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty token")
	}

	return token, nil
}

// Claims carries the owner identity. Subject is the owner id.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenAuth signs and verifies HS256 owner tokens
type TokenAuth struct {
	secret []byte
	expiry time.Duration
}

// NewTokenAuth creates a token authority for secret
func NewTokenAuth(secret string, expiry time.Duration) (*TokenAuth, error) {
	if secret == "" {
		return nil, errors.New("JWT secret key cannot be empty")
	}
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}
	return &TokenAuth{secret: []byte(secret), expiry: expiry}, nil
}

// GenerateToken signs a token naming userID as the owner
func (a *TokenAuth) GenerateToken(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id cannot be empty")
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks signature, expiry and issuer and returns the owner id
func (a *TokenAuth) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(Issuer))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}
