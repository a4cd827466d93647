package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenAssetCore/internal/types"
	"github.com/KevinKickass/OpenAssetCore/internal/workflow"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) liquidate(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var req workflow.LiquidateInput
	if !s.bind(c, schemaLiquidate, &req) {
		return
	}

	liquidation, err := s.coordinator.Liquidate(c.Request.Context(), id, req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, liquidation)
}

// liquidateBatch answers 200 with per-device outcomes; skipped devices are not an error.
// An aborted batch answers 500 with the committed outcomes in the error details.
func (s *Server) liquidateBatch(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var req workflow.LiquidateBatchInput
	if !s.bind(c, schemaLiquidateBatch, &req) {
		return
	}

	result, err := s.coordinator.LiquidateBatch(c.Request.Context(), id, req)
	if err != nil && result != nil {
		s.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError,
			types.NewErrorResponse("ASSET_500", "batch aborted", result))
		return
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listEligible(c *gin.Context) {
	devices, err := s.coordinator.ListEligible(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"devices": devices,
		"count":   len(devices),
	})
}
