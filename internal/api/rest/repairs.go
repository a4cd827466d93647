package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/KevinKickass/OpenAssetCore/internal/auth"
	"github.com/KevinKickass/OpenAssetCore/internal/workflow"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (s *Server) listRepairs(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var filter asset.RepairFilter

	status, ok := queryInt(c, "status")
	if !ok {
		return
	}
	if status != nil {
		st := asset.RepairStatus(*status)
		if !st.Valid() {
			badRequest(c, "invalid status", *status)
			return
		}
		filter.Status = &st
	}
	if filter.TechnicianID, ok = queryID(c, "technician_id"); !ok {
		return
	}
	if filter.DeviceID, ok = queryID(c, "device_id"); !ok {
		return
	}
	if filter.Limit, ok = queryLimit(c); !ok {
		return
	}

	repairs, err := s.coordinator.ListRepairs(c.Request.Context(), id, filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"repairs": repairs,
		"count":   len(repairs),
	})
}

func (s *Server) getRepair(c *gin.Context) {
	repairID, ok := pathID(c, "id")
	if !ok {
		return
	}
	repair, err := s.coordinator.GetRepair(c.Request.Context(), repairID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, repair)
}

type assignRepairRequest struct {
	TechnicianID uuid.UUID `json:"technician_id"`
	Note         string    `json:"note"`
}

func (s *Server) assignRepair(c *gin.Context) {
	var req assignRepairRequest
	s.repairAction(c, schemaAssignRepair, &req, func(id auth.Identity, repairID uuid.UUID) (*asset.Repair, error) {
		return s.coordinator.AssignTechnician(c.Request.Context(), id, repairID, req.TechnicianID, req.Note)
	})
}

func (s *Server) acceptRepair(c *gin.Context) {
	s.repairAction(c, "", nil, func(id auth.Identity, repairID uuid.UUID) (*asset.Repair, error) {
		return s.coordinator.AcceptRepair(c.Request.Context(), id, repairID)
	})
}

func (s *Server) completeRepair(c *gin.Context) {
	var req workflow.CompleteRepairInput
	s.repairAction(c, schemaCompleteRepair, &req, func(id auth.Identity, repairID uuid.UUID) (*asset.Repair, error) {
		return s.coordinator.CompleteRepair(c.Request.Context(), id, repairID, req)
	})
}

func (s *Server) confirmRepair(c *gin.Context) {
	s.repairAction(c, "", nil, func(id auth.Identity, repairID uuid.UUID) (*asset.Repair, error) {
		return s.coordinator.ConfirmCompletion(c.Request.Context(), id, repairID)
	})
}

type rejectRepairRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) rejectRepair(c *gin.Context) {
	var req rejectRepairRequest
	s.repairAction(c, schemaRejectRepair, &req, func(id auth.Identity, repairID uuid.UUID) (*asset.Repair, error) {
		return s.coordinator.RejectRepair(c.Request.Context(), id, repairID, req.Reason)
	})
}

type notNeededRequest struct {
	Note string `json:"note"`
}

func (s *Server) repairNotNeeded(c *gin.Context) {
	var req notNeededRequest
	s.repairAction(c, schemaRepairNotNeeded, &req, func(id auth.Identity, repairID uuid.UUID) (*asset.Repair, error) {
		return s.coordinator.MarkAsNotNeeded(c.Request.Context(), id, repairID, req.Note)
	})
}

func (s *Server) declineRepair(c *gin.Context) {
	var req workflow.RejectOrNotNeededInput
	s.repairAction(c, schemaDeclineRepair, &req, func(id auth.Identity, repairID uuid.UUID) (*asset.Repair, error) {
		return s.coordinator.RejectOrMarkNotNeeded(c.Request.Context(), id, repairID, req)
	})
}

// repairAction runs the shared prologue of every repair transition:
// caller, path ID, and (when schema is set) the request body.
func (s *Server) repairAction(c *gin.Context, schema string, req any,
	fn func(id auth.Identity, repairID uuid.UUID) (*asset.Repair, error)) {
	id, ok := caller(c)
	if !ok {
		return
	}
	repairID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if schema != "" && !s.bind(c, schema, req) {
		return
	}

	repair, err := fn(id, repairID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, repair)
}
