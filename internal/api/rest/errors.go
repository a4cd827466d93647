package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/KevinKickass/OpenAssetCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps a lifecycle error kind to its HTTP status and error code.
func statusFor(kind asset.Kind) (int, string) {
	switch kind {
	case asset.KindNotFound:
		return http.StatusNotFound, "ASSET_404"
	case asset.KindForbidden:
		return http.StatusForbidden, "ASSET_403"
	case asset.KindConflict, asset.KindInvalidState:
		return http.StatusConflict, "ASSET_409"
	case asset.KindValidation:
		return http.StatusBadRequest, "ASSET_400"
	default:
		return http.StatusInternalServerError, "ASSET_500"
	}
}

func (s *Server) respondError(c *gin.Context, err error) {
	kind := asset.KindOf(err)
	status, code := statusFor(kind)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, types.NewErrorResponse(code, "internal error", nil))
		return
	}
	c.JSON(status, types.NewErrorResponse(code, err.Error(), gin.H{"kind": kind}))
}

func badRequest(c *gin.Context, message string, details any) {
	c.JSON(http.StatusBadRequest, types.NewErrorResponse("ASSET_400", message, details))
}
