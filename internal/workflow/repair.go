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

type CompleteRepairInput struct {
	Cost        float64  `json:"cost"`
	LaborHours  float64  `json:"labor_hours"`
	Company     string   `json:"company"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
}

type RejectOrNotNeededInput struct {
	Status asset.RepairStatus `json:"status"`
	Text   string             `json:"text"`
}

// createFromIncident opens a repair for an approved incident and moves the
// device under repair. It runs inside the approval transaction.
func (c *Coordinator) createFromIncident(ctx context.Context, tx storage.Tx,
	incident *asset.IncidentReport, adminID uuid.UUID) (*asset.Repair, error) {
	const op = "repair.createFromIncident"

	device, err := ledger.LoadDevice(ctx, tx, op, incident.DeviceID)
	if err != nil {
		return nil, err
	}
	if device.Status.Terminal() {
		return nil, asset.Errorf(asset.KindConflict, op, "device %s is %s", device.Code, device.Status)
	}
	active, err := activeRepair(ctx, tx, device.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, asset.Errorf(asset.KindConflict, op, "device %s already has active repair %s", device.Code, active.ID)
	}

	repair := &asset.Repair{
		DeviceID:             device.ID,
		IncidentReportID:     ptr(incident.ID),
		Status:               asset.RepairChoThucHien,
		PreviousDeviceStatus: device.Status,
		CreatedBy:            adminID,
	}
	if err := tx.CreateRepair(ctx, repair); err != nil {
		return nil, err
	}
	if _, err := c.ledger.Transition(ctx, tx, device.ID, asset.DeviceUnderRepair, adminID,
		"repair opened for incident "+incident.ID.String()); err != nil {
		return nil, err
	}
	return repair, nil
}

// AssignTechnician sets or replaces the technician while the repair waits.
func (c *Coordinator) AssignTechnician(ctx context.Context, id auth.Identity, repairID, technicianID uuid.UUID, note string) (*asset.Repair, error) {
	const op = "repair.AssignTechnician"

	if err := requireAdmin(op, id); err != nil {
		return nil, err
	}

	var repair *asset.Repair
	err := c.run(ctx, op, func(tx storage.Tx, out *outbox) error {
		var err error
		repair, err = loadRepair(ctx, tx, op, repairID)
		if err != nil {
			return err
		}
		next, err := asset.NextRepairStatus(repair.Status, asset.RepairAssign)
		if err != nil {
			return err
		}

		tech, err := tx.GetUser(ctx, technicianID)
		if isNotFound(err) {
			return asset.Errorf(asset.KindValidation, op, "user %s does not exist", technicianID)
		}
		if err != nil {
			return err
		}
		if tech.Role != asset.RoleTechnician {
			return asset.Errorf(asset.KindValidation, op, "user %s is not a technician", tech.Username)
		}

		repair.Status = next
		repair.TechnicianID = ptr(tech.ID)
		repair.AssignedBy = ptr(id.UserID)
		repair.AssignNote = note
		if err := tx.UpdateRepair(ctx, repair); err != nil {
			return err
		}

		out.add(notify.Notification{
			UserIDs:    recipients(&tech.ID),
			Title:      "Repair assigned",
			Content:    strings.TrimSpace("A repair has been assigned to you. " + note),
			Event:      notify.EventRepairAssigned,
			EntityType: "repair",
			EntityID:   repair.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Technician assigned",
		zap.String("repair_id", repair.ID.String()),
		zap.String("technician_id", technicianID.String()))
	return repair, nil
}

// AcceptRepair starts work on a waiting repair.
func (c *Coordinator) AcceptRepair(ctx context.Context, id auth.Identity, repairID uuid.UUID) (*asset.Repair, error) {
	const op = "repair.AcceptRepair"

	return c.technicianStep(ctx, op, id, repairID, asset.RepairAccept, func(tx storage.Tx, repair *asset.Repair, out *outbox) error {
		repair.AcceptedAt = ptr(c.now())
		out.add(notify.Notification{
			UserIDs:    recipients(repair.AssignedBy),
			Title:      "Repair accepted",
			Content:    "The technician has started the repair",
			Event:      notify.EventRepairAccepted,
			EntityType: "repair",
			EntityID:   repair.ID,
		})
		return nil
	})
}

// CompleteRepair records the work done and submits it for confirmation.
func (c *Coordinator) CompleteRepair(ctx context.Context, id auth.Identity, repairID uuid.UUID, in CompleteRepairInput) (*asset.Repair, error) {
	const op = "repair.CompleteRepair"

	if in.Cost < 0 {
		return nil, asset.Errorf(asset.KindValidation, op, "cost must not be negative")
	}
	if in.LaborHours < 0 {
		return nil, asset.Errorf(asset.KindValidation, op, "labor_hours must not be negative")
	}

	return c.technicianStep(ctx, op, id, repairID, asset.RepairComplete, func(tx storage.Tx, repair *asset.Repair, out *outbox) error {
		repair.Cost = in.Cost
		repair.LaborHours = in.LaborHours
		repair.Company = in.Company
		repair.Description = in.Description
		repair.Images = append([]string(nil), in.Images...)
		repair.CompletedAt = ptr(c.now())

		admins, err := adminIDs(ctx, tx)
		if err != nil {
			return err
		}
		out.add(notify.Notification{
			UserIDs:    admins,
			Title:      "Repair awaiting confirmation",
			Content:    fmt.Sprintf("Repair finished at cost %.0f, please confirm", in.Cost),
			Event:      notify.EventRepairCompleted,
			EntityType: "repair",
			EntityID:   repair.ID,
		})
		return nil
	})
}

// ConfirmCompletion closes a finished repair and returns the device to use.
func (c *Coordinator) ConfirmCompletion(ctx context.Context, id auth.Identity, repairID uuid.UUID) (*asset.Repair, error) {
	const op = "repair.ConfirmCompletion"

	if err := requireAdmin(op, id); err != nil {
		return nil, err
	}

	var repair *asset.Repair
	err := c.run(ctx, op, func(tx storage.Tx, out *outbox) error {
		var err error
		repair, err = loadRepair(ctx, tx, op, repairID)
		if err != nil {
			return err
		}
		next, err := asset.NextRepairStatus(repair.Status, asset.RepairConfirm)
		if err != nil {
			return err
		}

		repair.Status = next
		repair.ConfirmedBy = ptr(id.UserID)
		repair.ConfirmedAt = ptr(c.now())
		if err := tx.UpdateRepair(ctx, repair); err != nil {
			return err
		}

		device, err := c.ledger.Transition(ctx, tx, repair.DeviceID, asset.DeviceInUse, id.UserID,
			"repair "+repair.ID.String()+" confirmed")
		if err != nil {
			return err
		}

		var reporter *uuid.UUID
		if repair.IncidentReportID != nil {
			incident, err := loadIncident(ctx, tx, op, *repair.IncidentReportID)
			if err != nil {
				return err
			}
			reporter = &incident.ReporterID
		}
		out.add(notify.Notification{
			UserIDs:    recipients(reporter, device.AssignedUserID),
			Title:      "Repair completed",
			Content:    fmt.Sprintf("Device %s has been repaired and is back in use", device.Code),
			Event:      notify.EventRepairConfirmed,
			EntityType: "repair",
			EntityID:   repair.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Repair confirmed", zap.String("repair_id", repair.ID.String()))
	return repair, nil
}

// RejectRepair declines a waiting repair and restores the device status it had
// before the repair opened.
func (c *Coordinator) RejectRepair(ctx context.Context, id auth.Identity, repairID uuid.UUID, reason string) (*asset.Repair, error) {
	return c.decline(ctx, "repair.RejectRepair", id, repairID, asset.RepairReject, reason)
}

// MarkAsNotNeeded closes a waiting repair that turned out unnecessary.
func (c *Coordinator) MarkAsNotNeeded(ctx context.Context, id auth.Identity, repairID uuid.UUID, note string) (*asset.Repair, error) {
	return c.decline(ctx, "repair.MarkAsNotNeeded", id, repairID, asset.RepairNotNeeded, note)
}

// RejectOrMarkNotNeeded dispatches on the requested terminal status.
func (c *Coordinator) RejectOrMarkNotNeeded(ctx context.Context, id auth.Identity, repairID uuid.UUID, in RejectOrNotNeededInput) (*asset.Repair, error) {
	switch in.Status {
	case asset.RepairTuChoi:
		return c.RejectRepair(ctx, id, repairID, in.Text)
	case asset.RepairKhongCanSua:
		return c.MarkAsNotNeeded(ctx, id, repairID, in.Text)
	default:
		return nil, asset.Errorf(asset.KindValidation, "repair.RejectOrMarkNotNeeded",
			"status must be %d or %d, got %d", asset.RepairTuChoi, asset.RepairKhongCanSua, in.Status)
	}
}

func (c *Coordinator) decline(ctx context.Context, op string, id auth.Identity, repairID uuid.UUID,
	action asset.RepairAction, text string) (*asset.Repair, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		field := "reason"
		if action == asset.RepairNotNeeded {
			field = "note"
		}
		return nil, asset.Errorf(asset.KindValidation, op, "%s is required", field)
	}

	return c.technicianStep(ctx, op, id, repairID, action, func(tx storage.Tx, repair *asset.Repair, out *outbox) error {
		title, event := "Repair rejected", notify.EventRepairRejected
		if action == asset.RepairNotNeeded {
			repair.Note = text
			title, event = "Repair not needed", notify.EventRepairNotNeeded
		} else {
			repair.RejectReason = text
		}

		if _, err := c.ledger.Transition(ctx, tx, repair.DeviceID, repair.PreviousDeviceStatus, id.UserID,
			fmt.Sprintf("repair %s closed: %s", repair.ID, text)); err != nil {
			return err
		}

		admins, err := adminIDs(ctx, tx)
		if err != nil {
			return err
		}
		out.add(notify.Notification{
			UserIDs:    admins,
			Title:      title,
			Content:    text,
			Event:      event,
			EntityType: "repair",
			EntityID:   repair.ID,
		})
		return nil
	})
}

// technicianStep applies action to a repair on behalf of its assigned
// technician. apply runs before the repair row is written.
func (c *Coordinator) technicianStep(ctx context.Context, op string, id auth.Identity, repairID uuid.UUID,
	action asset.RepairAction, apply func(tx storage.Tx, repair *asset.Repair, out *outbox) error) (*asset.Repair, error) {
	var repair *asset.Repair
	err := c.run(ctx, op, func(tx storage.Tx, out *outbox) error {
		var err error
		repair, err = loadRepair(ctx, tx, op, repairID)
		if err != nil {
			return err
		}
		next, err := asset.NextRepairStatus(repair.Status, action)
		if err != nil {
			return err
		}
		if err := requireAssignedTechnician(op, id, repair); err != nil {
			return err
		}

		repair.Status = next
		if err := apply(tx, repair, out); err != nil {
			return err
		}
		return tx.UpdateRepair(ctx, repair)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Repair updated",
		zap.String("repair_id", repair.ID.String()),
		zap.String("action", string(action)),
		zap.String("status", repair.Status.String()))
	return repair, nil
}

func (c *Coordinator) GetRepair(ctx context.Context, repairID uuid.UUID) (*asset.Repair, error) {
	const op = "repair.GetRepair"

	var repair *asset.Repair
	err := c.view(ctx, op, func(tx storage.Tx) error {
		var err error
		repair, err = loadRepair(ctx, tx, op, repairID)
		return err
	})
	return repair, err
}

// ListRepairs lists repairs. Technicians only see repairs assigned to them.
func (c *Coordinator) ListRepairs(ctx context.Context, id auth.Identity, filter asset.RepairFilter) ([]asset.Repair, error) {
	if id.IsTechnician() {
		filter.TechnicianID = ptr(id.UserID)
	}

	var repairs []asset.Repair
	err := c.view(ctx, "repair.ListRepairs", func(tx storage.Tx) error {
		var err error
		repairs, err = tx.ListRepairs(ctx, filter)
		return err
	})
	return repairs, err
}
