package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/KevinKickass/OpenAssetCore/internal/workflow"
	"github.com/gin-gonic/gin"
)

func (s *Server) createIncident(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var req workflow.CreateReportInput
	if !s.bind(c, schemaCreateIncident, &req) {
		return
	}

	report, err := s.coordinator.CreateReport(c.Request.Context(), id, req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (s *Server) listIncidents(c *gin.Context) {
	var filter asset.IncidentFilter

	status, ok := queryInt(c, "status")
	if !ok {
		return
	}
	if status != nil {
		st := asset.IncidentStatus(*status)
		if !st.Valid() {
			badRequest(c, "invalid status", *status)
			return
		}
		filter.Status = &st
	}
	if filter.DeviceID, ok = queryID(c, "device_id"); !ok {
		return
	}
	if filter.Limit, ok = queryLimit(c); !ok {
		return
	}

	reports, err := s.coordinator.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"incidents": reports,
		"count":     len(reports),
	})
}

func (s *Server) getIncident(c *gin.Context) {
	reportID, ok := pathID(c, "id")
	if !ok {
		return
	}
	report, err := s.coordinator.GetReport(c.Request.Context(), reportID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) approveIncident(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	reportID, ok := pathID(c, "id")
	if !ok {
		return
	}

	report, repair, err := s.coordinator.ApproveReport(c.Request.Context(), id, reportID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"incident": report,
		"repair":   repair,
	})
}

type rejectIncidentRequest struct {
	Reason   string               `json:"reason"`
	Decision asset.RejectDecision `json:"decision"`
}

func (s *Server) rejectIncident(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	reportID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req rejectIncidentRequest
	if !s.bind(c, schemaRejectIncident, &req) {
		return
	}

	report, err := s.coordinator.RejectReport(c.Request.Context(), id, reportID, req.Reason, req.Decision)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
