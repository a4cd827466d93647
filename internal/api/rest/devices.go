package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) getDevice(c *gin.Context) {
	deviceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	device, err := s.coordinator.GetDevice(c.Request.Context(), deviceID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

func (s *Server) deviceHistory(c *gin.Context) {
	deviceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	history, err := s.coordinator.DeviceHistory(c.Request.Context(), deviceID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"device_id": deviceID,
		"history":   history,
		"count":     len(history),
	})
}

func (s *Server) deviceAnalysis(c *gin.Context) {
	deviceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	report, err := s.analyzer.Analyze(c.Request.Context(), deviceID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) liquidationEligibility(c *gin.Context) {
	deviceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	eligibility, err := s.coordinator.IsEligible(c.Request.Context(), deviceID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eligibility)
}
