package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// JWTClaims is the access token layout issued by the identity provider.
type JWTClaims struct {
	UserID   uuid.UUID `json:"sub"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
	Position string    `json:"position,omitempty"`
	jwt.RegisteredClaims
}

type JWTHandler struct {
	secretKey []byte
	issuer    string
}

func NewJWTHandler(secretKey, issuer string) *JWTHandler {
	return &JWTHandler{
		secretKey: []byte(secretKey),
		issuer:    issuer,
	}
}

// GenerateAccessToken signs a token with the shared secret. Production tokens
// come from the identity provider; this is for local tooling and tests.
func (j *JWTHandler) GenerateAccessToken(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		UserID:   id.UserID,
		Username: id.Username,
		Role:     string(id.Role),
		Position: id.Position,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    j.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secretKey)
}

// ValidateAccessToken validates and parses a JWT access token
func (j *JWTHandler) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	switch asset.Role(claims.Role) {
	case asset.RoleAdmin, asset.RoleTechnician, asset.RoleUser:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}

// Identity converts validated claims into the caller identity.
func (c *JWTClaims) Identity() Identity {
	return Identity{
		UserID:   c.UserID,
		Username: c.Username,
		Role:     asset.Role(c.Role),
		Position: c.Position,
	}
}
