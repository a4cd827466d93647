package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenAssetCore/internal/auth"
	"github.com/KevinKickass/OpenAssetCore/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// caller returns the identity placed by AuthMiddleware.
func caller(c *gin.Context) (auth.Identity, bool) {
	id, ok := auth.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse("AUTH_401", "not authenticated", nil))
	}
	return id, ok
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name, c.Param(name))
		return uuid.Nil, false
	}
	return id, true
}

// queryID parses an optional UUID query parameter.
func queryID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(c, "invalid "+name, raw)
		return nil, false
	}
	return &id, true
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, name string) (*int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "invalid "+name, raw)
		return nil, false
	}
	return &v, true
}

func queryLimit(c *gin.Context) (int, bool) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return 0, false
	}
	if limit == nil {
		return 0, true
	}
	if *limit < 0 {
		badRequest(c, "invalid limit", *limit)
		return 0, false
	}
	return *limit, true
}
