package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type jwtCustomClaims struct {
	MerchantID string `json:"merchant_id"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for the provided merchant ID.
func GenerateToken(secret string, merchantID uuid.UUID, ttl time.Duration) (string, error) {
	claims := &jwtCustomClaims{
		MerchantID: merchantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   merchantID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates the token and returns the embedded merchant ID.
func ParseToken(secret, tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	if claims, ok := token.Claims.(*jwtCustomClaims); ok && token.Valid {
		return uuid.Parse(claims.MerchantID)
	}

	return uuid.Nil, jwt.ErrTokenInvalidClaims
}
