package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Chromeox/CourseScout-sub015/internal/config"
)

// AdminClaims are carried by admin JWTs.
type AdminClaims struct {
	ServiceName string   `json:"service_name"`
	Roles       []string `json:"roles"`
	jwt.RegisteredClaims
}

// GenerateAdminJWT signs a short-lived admin token for serviceName.
func GenerateAdminJWT(serviceName string, roles []string, cfg *config.Config) (string, int64, error) {
	ttl := cfg.Admin.TokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := &AdminClaims{
		ServiceName: serviceName,
		Roles:       roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   serviceName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cfg.JWTSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, expiresAt.Unix(), nil
}

// ValidateAdminJWT verifies signature and expiry and returns the claims.
func ValidateAdminJWT(tokenString string, cfg *config.Config) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return cfg.JWTSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
