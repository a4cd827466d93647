package auth

import (
	"net/http"
	"strings"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/KevinKickass/OpenAssetCore/internal/config"
	"github.com/KevinKickass/OpenAssetCore/internal/types"
	"github.com/gin-gonic/gin"
)

type Authenticator struct {
	jwtHandler *JWTHandler
}

func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	return &Authenticator{jwtHandler: NewJWTHandler(cfg.GetJWTSecret(), cfg.Issuer)}
}

func (a *Authenticator) JWT() *JWTHandler {
	return a.jwtHandler
}

// Authenticate validates a raw bearer token.
func (a *Authenticator) Authenticate(token string) (Identity, error) {
	claims, err := a.jwtHandler.ValidateAccessToken(token)
	if err != nil {
		return Identity{}, err
	}
	return claims.Identity(), nil
}

// AuthMiddleware validates tokens and enforces authentication
func (a *Authenticator) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("AUTH_401", "missing authorization header", nil))
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("AUTH_401", "invalid authorization header format", nil))
			return
		}

		id, err := a.Authenticate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("AUTH_401", "invalid or expired token", nil))
			return
		}

		c.Set("user_id", id.UserID)
		c.Set("role", string(id.Role))
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// RequireRole rejects callers outside roles.
func RequireRole(roles ...asset.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := FromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("AUTH_401", "not authenticated", nil))
			return
		}
		if !id.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				types.NewErrorResponse("AUTH_403", "insufficient permissions", gin.H{"role": id.Role}))
			return
		}
		c.Next()
	}
}
