package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/KevinKickass/OpenAssetCore/internal/auth"
	"github.com/KevinKickass/OpenAssetCore/internal/ledger"
	"github.com/KevinKickass/OpenAssetCore/internal/notify"
	"github.com/KevinKickass/OpenAssetCore/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Eligibility struct {
	DeviceID uuid.UUID          `json:"device_id"`
	Status   asset.DeviceStatus `json:"status"`
	Eligible bool               `json:"eligible"`
	Reason   string             `json:"reason,omitempty"`
}

type LiquidateInput struct {
	DeviceID uuid.UUID `json:"device_id"`
	Reason   string    `json:"reason"`
	// Date defaults to the time of the call.
	Date *time.Time `json:"date,omitempty"`
}

type LiquidateBatchInput struct {
	DeviceIDs []uuid.UUID `json:"device_ids"`
	Reason    string      `json:"reason"`
	Date      *time.Time  `json:"date,omitempty"`
}

type SkippedDevice struct {
	ID     uuid.UUID `json:"id"`
	Reason string    `json:"reason"`
}

type BatchResult struct {
	Succeeded []asset.Liquidation `json:"succeeded"`
	Skipped   []SkippedDevice     `json:"skipped"`
}

// eligibility checks a device against the liquidation rules: broken or
// pending liquidation, with no repair in flight.
func eligibility(ctx context.Context, tx storage.Tx, device *asset.Device) (Eligibility, error) {
	e := Eligibility{DeviceID: device.ID, Status: device.Status}
	if !device.Status.LiquidationCandidate() {
		e.Reason = fmt.Sprintf("device status %s is not eligible for liquidation", device.Status)
		return e, nil
	}
	active, err := activeRepair(ctx, tx, device.ID)
	if err != nil {
		return e, err
	}
	if active != nil {
		e.Reason = fmt.Sprintf("device has active repair %s", active.ID)
		return e, nil
	}
	e.Eligible = true
	return e, nil
}

func (c *Coordinator) IsEligible(ctx context.Context, deviceID uuid.UUID) (Eligibility, error) {
	const op = "liquidation.IsEligible"

	var e Eligibility
	err := c.view(ctx, op, func(tx storage.Tx) error {
		device, err := ledger.LoadDevice(ctx, tx, op, deviceID)
		if err != nil {
			return err
		}
		e, err = eligibility(ctx, tx, device)
		return err
	})
	return e, err
}

// ListEligible returns every device that could be liquidated right now.
func (c *Coordinator) ListEligible(ctx context.Context) ([]asset.Device, error) {
	var out []asset.Device
	err := c.view(ctx, "liquidation.ListEligible", func(tx storage.Tx) error {
		devices, err := tx.ListDevices(ctx, storage.DeviceFilter{
			Statuses: []asset.DeviceStatus{asset.DeviceBroken, asset.DevicePendingLiquidation},
		})
		if err != nil {
			return err
		}
		out = make([]asset.Device, 0, len(devices))
		for i := range devices {
			e, err := eligibility(ctx, tx, &devices[i])
			if err != nil {
				return err
			}
			if e.Eligible {
				out = append(out, devices[i])
			}
		}
		return nil
	})
	return out, err
}

func (c *Coordinator) Liquidate(ctx context.Context, id auth.Identity, in LiquidateInput) (*asset.Liquidation, error) {
	const op = "liquidation.Liquidate"

	if err := requireAdmin(op, id); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, asset.Errorf(asset.KindValidation, op, "reason is required")
	}
	if in.DeviceID == uuid.Nil {
		return nil, asset.Errorf(asset.KindValidation, op, "device_id is required")
	}
	return c.liquidateOne(ctx, op, id, in.DeviceID, reason, c.dateOrNow(in.Date))
}

// LiquidateBatch liquidates each device in its own transaction. Devices that
// fail validation at execution time are skipped, never aborting the batch.
// A storage failure stops the batch; the result then still lists the devices
// already committed.
func (c *Coordinator) LiquidateBatch(ctx context.Context, id auth.Identity, in LiquidateBatchInput) (*BatchResult, error) {
	const op = "liquidation.LiquidateBatch"

	if err := requireAdmin(op, id); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, asset.Errorf(asset.KindValidation, op, "reason is required")
	}
	if len(in.DeviceIDs) == 0 {
		return nil, asset.Errorf(asset.KindValidation, op, "device_ids must not be empty")
	}

	date := c.dateOrNow(in.Date)
	result := &BatchResult{
		Succeeded: make([]asset.Liquidation, 0, len(in.DeviceIDs)),
		Skipped:   make([]SkippedDevice, 0),
	}
	seen := make(map[uuid.UUID]bool, len(in.DeviceIDs))
	for _, deviceID := range in.DeviceIDs {
		if seen[deviceID] {
			continue
		}
		seen[deviceID] = true

		l, err := c.liquidateOne(ctx, op, id, deviceID, reason, date)
		if err != nil {
			if asset.KindOf(err) == "" {
				c.logger.Error("Batch liquidation aborted",
					zap.String("device_id", deviceID.String()),
					zap.Int("succeeded", len(result.Succeeded)),
					zap.Error(err))
				return result, err
			}
			result.Skipped = append(result.Skipped, SkippedDevice{ID: deviceID, Reason: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, *l)
	}

	c.logger.Info("Batch liquidation finished",
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

func (c *Coordinator) liquidateOne(ctx context.Context, op string, id auth.Identity,
	deviceID uuid.UUID, reason string, date time.Time) (*asset.Liquidation, error) {
	var liquidation *asset.Liquidation
	err := c.run(ctx, op, func(tx storage.Tx, out *outbox) error {
		device, err := ledger.LoadDevice(ctx, tx, op, deviceID)
		if err != nil {
			return err
		}
		e, err := eligibility(ctx, tx, device)
		if err != nil {
			return err
		}
		if !e.Eligible {
			return asset.Errorf(asset.KindConflict, op, "device %s: %s", device.Code, e.Reason)
		}

		holder := device.AssignedUserID
		device, err = c.ledger.Transition(ctx, tx, device.ID, asset.DeviceLiquidated, id.UserID, "liquidated: "+reason)
		if err != nil {
			return err
		}
		if err := releaseAssignment(ctx, tx, device, c.now()); err != nil {
			return err
		}
		if err := tx.UpdateDevice(ctx, device); err != nil {
			return err
		}

		pending, err := pendingIncident(ctx, tx, device.ID)
		if err != nil {
			return err
		}
		if pending != nil {
			if err := asset.ValidateIncidentTransition(pending.Status, asset.IncidentRejected); err != nil {
				return err
			}
			now := c.now()
			pending.Status = asset.IncidentRejected
			pending.RejectedBy = ptr(id.UserID)
			pending.RejectedAt = &now
			pending.RejectReason = "liquidated: " + reason
			pending.RejectDecision = asset.DecisionLiquidate
			if err := tx.UpdateIncident(ctx, pending); err != nil {
				return err
			}
		}

		liquidation = &asset.Liquidation{
			DeviceID:        device.ID,
			Reason:          reason,
			LiquidationDate: date,
			ApprovedBy:      id.UserID,
		}
		if err := tx.CreateLiquidation(ctx, liquidation); err != nil {
			return err
		}

		out.add(notify.Notification{
			UserIDs:    recipients(holder),
			Title:      "Device liquidated",
			Content:    fmt.Sprintf("Device %s has been liquidated: %s", device.Code, reason),
			Event:      notify.EventDeviceLiquidated,
			EntityType: "liquidation",
			EntityID:   liquidation.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Device liquidated",
		zap.String("device_id", deviceID.String()),
		zap.String("liquidation_id", liquidation.ID.String()))
	return liquidation, nil
}

func (c *Coordinator) dateOrNow(d *time.Time) time.Time {
	if d == nil || d.IsZero() {
		return c.now()
	}
	return *d
}
