package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/KevinKickass/OpenAssetCore/internal/analyzer"
	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/KevinKickass/OpenAssetCore/internal/auth"
	"github.com/KevinKickass/OpenAssetCore/internal/ledger"
	"github.com/KevinKickass/OpenAssetCore/internal/notify"
	"github.com/KevinKickass/OpenAssetCore/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const actionReplacementTarget = "replacement_target"

type CreateReplacementInput struct {
	OldDeviceID      uuid.UUID  `json:"old_device_id"`
	NewDeviceID      uuid.UUID  `json:"new_device_id"`
	Reason           string     `json:"reason"`
	IncidentReportID *uuid.UUID `json:"incident_report_id,omitempty"`
}

// CreateReplacement retires the old device and hands its holder a fresh
// unassigned one. All writes share one transaction.
func (c *Coordinator) CreateReplacement(ctx context.Context, id auth.Identity, in CreateReplacementInput) (*asset.Replacement, error) {
	const op = "replacement.CreateReplacement"

	if err := requireAdmin(op, id); err != nil {
		return nil, err
	}
	if in.OldDeviceID == uuid.Nil || in.NewDeviceID == uuid.Nil {
		return nil, asset.Errorf(asset.KindValidation, op, "old_device_id and new_device_id are required")
	}
	if in.OldDeviceID == in.NewDeviceID {
		return nil, asset.Errorf(asset.KindValidation, op, "a device cannot replace itself")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, asset.Errorf(asset.KindValidation, op, "reason is required")
	}

	var replacement *asset.Replacement
	err := c.run(ctx, op, func(tx storage.Tx, out *outbox) error {
		oldDevice, err := ledger.LoadDevice(ctx, tx, op, in.OldDeviceID)
		if err != nil {
			return err
		}
		if oldDevice.Status.Terminal() {
			return asset.Errorf(asset.KindConflict, op, "device %s is %s", oldDevice.Code, oldDevice.Status)
		}
		active, err := activeRepair(ctx, tx, oldDevice.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return asset.Errorf(asset.KindConflict, op, "device %s has active repair %s", oldDevice.Code, active.ID)
		}

		newDevice, err := ledger.LoadDevice(ctx, tx, op, in.NewDeviceID)
		if err != nil {
			return err
		}
		if newDevice.Status != asset.DeviceUnassigned || newDevice.Assigned() {
			return asset.Errorf(asset.KindConflict, op,
				"replacement device %s must be unassigned, is %s", newDevice.Code, newDevice.Status)
		}

		if in.IncidentReportID != nil {
			incident, err := loadIncident(ctx, tx, op, *in.IncidentReportID)
			if err != nil {
				return err
			}
			if incident.DeviceID != oldDevice.ID {
				return asset.Errorf(asset.KindValidation, op, "incident %s belongs to another device", incident.ID)
			}
		}

		now := c.now()
		holderUser, holderDept := oldDevice.AssignedUserID, oldDevice.DepartmentID

		retired, err := c.ledger.Transition(ctx, tx, oldDevice.ID, asset.DeviceReplaced, id.UserID,
			fmt.Sprintf("replaced by %s: %s", newDevice.Code, reason))
		if err != nil {
			return err
		}
		if err := releaseAssignment(ctx, tx, retired, now); err != nil {
			return err
		}
		if err := tx.UpdateDevice(ctx, retired); err != nil {
			return err
		}

		if holderUser != nil || holderDept != nil {
			issued, err := c.ledger.Transition(ctx, tx, newDevice.ID, asset.DeviceInUse, id.UserID,
				fmt.Sprintf("replacement for %s: %s", oldDevice.Code, reason))
			if err != nil {
				return err
			}
			issued.AssignedUserID = holderUser
			issued.DepartmentID = holderDept
			if err := tx.UpdateDevice(ctx, issued); err != nil {
				return err
			}
			if err := tx.CreateAssignment(ctx, &asset.DeviceAssignment{
				DeviceID:     issued.ID,
				UserID:       holderUser,
				DepartmentID: holderDept,
				AssignedBy:   id.UserID,
				AssignedAt:   now,
				Note:         "replacement for " + oldDevice.Code,
			}); err != nil {
				return err
			}
		} else if err := c.ledger.Record(ctx, tx, newDevice, actionReplacementTarget, id.UserID,
			fmt.Sprintf("replacement for %s: %s", oldDevice.Code, reason)); err != nil {
			return err
		}

		replacement = &asset.Replacement{
			OldDeviceID:      oldDevice.ID,
			NewDeviceID:      newDevice.ID,
			Reason:           reason,
			IncidentReportID: in.IncidentReportID,
			ReplacedBy:       id.UserID,
			ReplacedAt:       now,
		}
		if err := tx.CreateReplacement(ctx, replacement); err != nil {
			return err
		}

		// The pending report is closed whether or not it was cited.
		pending, err := pendingIncident(ctx, tx, oldDevice.ID)
		if err != nil {
			return err
		}
		if pending != nil {
			if err := asset.ValidateIncidentTransition(pending.Status, asset.IncidentReplaced); err != nil {
				return err
			}
			pending.Status = asset.IncidentReplaced
			if err := tx.UpdateIncident(ctx, pending); err != nil {
				return err
			}
		}

		out.add(notify.Notification{
			UserIDs:    recipients(holderUser),
			Title:      "Device replaced",
			Content:    fmt.Sprintf("Device %s has been replaced by %s (%s)", oldDevice.Code, newDevice.Code, newDevice.Name),
			Event:      notify.EventDeviceReplaced,
			EntityType: "replacement",
			EntityID:   replacement.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Device replaced",
		zap.String("replacement_id", replacement.ID.String()),
		zap.String("old_device_id", replacement.OldDeviceID.String()),
		zap.String("new_device_id", replacement.NewDeviceID.String()))
	return replacement, nil
}

// ReplacementCandidates lists devices that could replace Device, same model
// first, together with the repair analysis of the device being replaced.
type ReplacementCandidates struct {
	Device     asset.Device    `json:"device"`
	Analysis   analyzer.Report `json:"analysis"`
	Candidates []asset.Device  `json:"candidates"`
}

func (c *Coordinator) ListReplacementCandidates(ctx context.Context, oldDeviceID uuid.UUID) (*ReplacementCandidates, error) {
	const op = "replacement.ListReplacementCandidates"

	var (
		device  *asset.Device
		devices []asset.Device
		repairs []asset.Repair
	)
	err := c.view(ctx, op, func(tx storage.Tx) error {
		var err error
		device, err = ledger.LoadDevice(ctx, tx, op, oldDeviceID)
		if err != nil {
			return err
		}
		devices, err = tx.ListDevices(ctx, storage.DeviceFilter{
			Statuses:   []asset.DeviceStatus{asset.DeviceUnassigned},
			Unassigned: true,
		})
		if err != nil {
			return err
		}
		repairs, err = tx.ListRepairs(ctx, asset.RepairFilter{DeviceID: &device.ID})
		return err
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]asset.Device, 0, len(devices))
	for _, d := range devices {
		if d.ID != device.ID {
			candidates = append(candidates, d)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ModelName == device.ModelName && candidates[j].ModelName != device.ModelName
	})

	return &ReplacementCandidates{
		Device:     *device,
		Analysis:   c.analyzer.Evaluate(device, repairs),
		Candidates: candidates,
	}, nil
}
