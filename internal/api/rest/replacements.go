package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenAssetCore/internal/workflow"
	"github.com/gin-gonic/gin"
)

func (s *Server) createReplacement(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var req workflow.CreateReplacementInput
	if !s.bind(c, schemaCreateReplacement, &req) {
		return
	}

	replacement, err := s.coordinator.CreateReplacement(c.Request.Context(), id, req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, replacement)
}

func (s *Server) replacementCandidates(c *gin.Context) {
	deviceID, ok := pathID(c, "deviceId")
	if !ok {
		return
	}
	result, err := s.coordinator.ListReplacementCandidates(c.Request.Context(), deviceID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
