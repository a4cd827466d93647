package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/KevinKickass/OpenAssetCore/internal/auth"
	"github.com/KevinKickass/OpenAssetCore/internal/ledger"
	"github.com/KevinKickass/OpenAssetCore/internal/notify"
	"github.com/KevinKickass/OpenAssetCore/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateReportInput struct {
	DeviceID    uuid.UUID `json:"device_id"`
	Type        string    `json:"report_type"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
}

// CreateReport files a pending incident for a device. A device holds at most
// one pending report at a time.
func (c *Coordinator) CreateReport(ctx context.Context, id auth.Identity, in CreateReportInput) (*asset.IncidentReport, error) {
	const op = "incident.CreateReport"

	if in.DeviceID == uuid.Nil {
		return nil, asset.Errorf(asset.KindValidation, op, "device_id is required")
	}
	if strings.TrimSpace(in.Type) == "" {
		return nil, asset.Errorf(asset.KindValidation, op, "report_type is required")
	}

	var report *asset.IncidentReport
	err := c.run(ctx, op, func(tx storage.Tx, out *outbox) error {
		device, err := ledger.LoadDevice(ctx, tx, op, in.DeviceID)
		if err != nil {
			return err
		}
		if id.Role == asset.RoleUser && (device.AssignedUserID == nil || *device.AssignedUserID != id.UserID) {
			return asset.Errorf(asset.KindForbidden, op, "device %s is not assigned to the caller", device.Code)
		}
		if device.Status.Terminal() {
			return asset.Errorf(asset.KindConflict, op, "device %s is %s", device.Code, device.Status)
		}

		pending, err := tx.PendingIncident(ctx, device.ID)
		if err == nil {
			return asset.Errorf(asset.KindConflict, op,
				"device %s already has pending incident %s", device.Code, pending.ID)
		}
		if !isNotFound(err) {
			return err
		}

		report = &asset.IncidentReport{
			DeviceID:    device.ID,
			ReporterID:  id.UserID,
			ReportType:  strings.TrimSpace(in.Type),
			Description: in.Description,
			ImageURL:    in.ImageURL,
			Status:      asset.IncidentPending,
		}
		if err := tx.CreateIncident(ctx, report); err != nil {
			return err
		}

		admins, err := adminIDs(ctx, tx)
		if err != nil {
			return err
		}
		out.add(notify.Notification{
			UserIDs:    admins,
			Title:      "New incident report",
			Content:    fmt.Sprintf("Device %s (%s): %s", device.Code, device.Name, report.ReportType),
			Event:      notify.EventIncidentCreated,
			EntityType: "incident_report",
			EntityID:   report.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Incident reported",
		zap.String("incident_id", report.ID.String()),
		zap.String("device_id", report.DeviceID.String()),
		zap.String("reporter_id", id.UserID.String()))
	return report, nil
}

// ApproveReport approves a pending incident and opens its repair in the same
// transaction.
func (c *Coordinator) ApproveReport(ctx context.Context, id auth.Identity, reportID uuid.UUID) (*asset.IncidentReport, *asset.Repair, error) {
	const op = "incident.ApproveReport"

	if err := requireAdmin(op, id); err != nil {
		return nil, nil, err
	}

	var (
		report *asset.IncidentReport
		repair *asset.Repair
	)
	err := c.run(ctx, op, func(tx storage.Tx, out *outbox) error {
		var err error
		report, err = loadIncident(ctx, tx, op, reportID)
		if err != nil {
			return err
		}
		if err := asset.ValidateIncidentTransition(report.Status, asset.IncidentApproved); err != nil {
			return err
		}

		repair, err = c.createFromIncident(ctx, tx, report, id.UserID)
		if err != nil {
			return err
		}

		now := c.now()
		report.Status = asset.IncidentApproved
		report.ApprovedBy = ptr(id.UserID)
		report.ApprovedAt = &now
		report.RepairID = ptr(repair.ID)
		if err := tx.UpdateIncident(ctx, report); err != nil {
			return err
		}

		out.add(notify.Notification{
			UserIDs:    recipients(&report.ReporterID),
			Title:      "Incident report approved",
			Content:    "Your incident report was approved and a repair has been opened",
			Event:      notify.EventIncidentApproved,
			EntityType: "incident_report",
			EntityID:   report.ID,
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	c.logger.Info("Incident approved",
		zap.String("incident_id", report.ID.String()),
		zap.String("repair_id", repair.ID.String()))
	return report, repair, nil
}

// RejectReport rejects a pending incident. With DecisionLiquidate the device
// is moved to pending liquidation in the same transaction; DecisionKeep
// leaves it untouched.
func (c *Coordinator) RejectReport(ctx context.Context, id auth.Identity, reportID uuid.UUID,
	reason string, decision asset.RejectDecision) (*asset.IncidentReport, error) {
	const op = "incident.RejectReport"

	if err := requireAdmin(op, id); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, asset.Errorf(asset.KindValidation, op, "reason is required")
	}
	if decision == "" {
		decision = asset.DecisionKeep
	}
	if !decision.Valid() {
		return nil, asset.Errorf(asset.KindValidation, op, "unknown decision %q", decision)
	}

	var report *asset.IncidentReport
	err := c.run(ctx, op, func(tx storage.Tx, out *outbox) error {
		var err error
		report, err = loadIncident(ctx, tx, op, reportID)
		if err != nil {
			return err
		}
		if err := asset.ValidateIncidentTransition(report.Status, asset.IncidentRejected); err != nil {
			return err
		}

		now := c.now()
		report.Status = asset.IncidentRejected
		report.RejectedBy = ptr(id.UserID)
		report.RejectedAt = &now
		report.RejectReason = reason
		report.RejectDecision = decision
		if err := tx.UpdateIncident(ctx, report); err != nil {
			return err
		}

		consequence := "The device stays in its current state."
		if decision == asset.DecisionLiquidate {
			active, err := activeRepair(ctx, tx, report.DeviceID)
			if err != nil {
				return err
			}
			if active != nil {
				return asset.Errorf(asset.KindConflict, op, "device has active repair %s", active.ID)
			}
			if _, err := c.ledger.Transition(ctx, tx, report.DeviceID, asset.DevicePendingLiquidation,
				id.UserID, "incident rejected: "+reason); err != nil {
				return err
			}
			consequence = "The device is scheduled for liquidation."
		}

		out.add(notify.Notification{
			UserIDs:    recipients(&report.ReporterID),
			Title:      "Incident report rejected",
			Content:    fmt.Sprintf("Reason: %s. %s", reason, consequence),
			Event:      notify.EventIncidentRejected,
			EntityType: "incident_report",
			EntityID:   report.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Incident rejected",
		zap.String("incident_id", report.ID.String()),
		zap.String("decision", string(decision)))
	return report, nil
}

func (c *Coordinator) GetReport(ctx context.Context, reportID uuid.UUID) (*asset.IncidentReport, error) {
	const op = "incident.GetReport"

	var report *asset.IncidentReport
	err := c.view(ctx, op, func(tx storage.Tx) error {
		var err error
		report, err = loadIncident(ctx, tx, op, reportID)
		return err
	})
	return report, err
}

func (c *Coordinator) ListIncidents(ctx context.Context, filter asset.IncidentFilter) ([]asset.IncidentReport, error) {
	var reports []asset.IncidentReport
	err := c.view(ctx, "incident.ListIncidents", func(tx storage.Tx) error {
		var err error
		reports, err = tx.ListIncidents(ctx, filter)
		return err
	})
	return reports, err
}
