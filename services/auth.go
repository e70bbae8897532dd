package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserClaims identifies the person acting on a call
type UserClaims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthService validates HS256 bearer tokens issued by the dashboard
type AuthService struct {
	JWTSecret string
}

func NewAuthService(jwtSecret string) *AuthService {
	return &AuthService{JWTSecret: jwtSecret}
}

// ExtractTokenFromHeader returns the token of a "Bearer <token>" header
func (s *AuthService) ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("authorization header is required")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("invalid authorization header format")
	}

	return parts[1], nil
}

// ValidateToken verifies the signature and expiry of a token
func (s *AuthService) ValidateToken(tokenString string) (*UserClaims, error) {
	if s.JWTSecret == "" {
		return nil, errors.New("token validation is not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.JWTSecret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if strings.TrimSpace(claims.Email) == "" {
		return nil, errors.New("token has no email claim")
	}
	return claims, nil
}

// IssueToken signs a token for an operator, used by the CLI and tests
func (s *AuthService) IssueToken(email, role string, ttl time.Duration) (string, error) {
	if s.JWTSecret == "" {
		return "", errors.New("token signing is not configured")
	}
	now := time.Now()
	claims := UserClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.JWTSecret))
}
