// Package ledger owns every device status write and its append-only history.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/KevinKickass/OpenAssetCore/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const ActionStatusChange = "status_change"

type Ledger struct {
	store  storage.Store
	logger *zap.Logger
	now    func() time.Time
}

func New(store storage.Store, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the clock stamped on history entries.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Transition moves the device to newStatus inside the caller's transaction and
// appends the matching history entry. The returned device is the updated row.
func (l *Ledger) Transition(ctx context.Context, tx storage.Tx, deviceID uuid.UUID,
	newStatus asset.DeviceStatus, actor uuid.UUID, reason string) (*asset.Device, error) {
	const op = "ledger.Transition"

	if !newStatus.Valid() {
		return nil, asset.Errorf(asset.KindValidation, op, "unknown device status %q", newStatus)
	}

	device, err := LoadDevice(ctx, tx, op, deviceID)
	if err != nil {
		return nil, err
	}
	if device.Status.Terminal() {
		return nil, asset.Errorf(asset.KindInvalidState, op,
			"device %s is %s and accepts no transition", device.Code, device.Status)
	}

	from := device.Status
	device.Status = newStatus
	if err := tx.UpdateDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to update device status: %w", err)
	}

	entry := &asset.DeviceHistory{
		DeviceID:    device.ID,
		Action:      ActionStatusChange,
		FromStatus:  from,
		ToStatus:    newStatus,
		ActionBy:    actor,
		ActionDate:  l.now(),
		Description: reason,
	}
	if err := tx.AppendHistory(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append device history: %w", err)
	}

	l.logger.Debug("Device status changed",
		zap.String("device_id", device.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(newStatus)),
		zap.String("actor", actor.String()))

	return device, nil
}

// Record appends a history entry that does not change the status, such as an
// assignment carried over by a replacement.
func (l *Ledger) Record(ctx context.Context, tx storage.Tx, device *asset.Device,
	action string, actor uuid.UUID, description string) error {
	entry := &asset.DeviceHistory{
		DeviceID:    device.ID,
		Action:      action,
		FromStatus:  device.Status,
		ToStatus:    device.Status,
		ActionBy:    actor,
		ActionDate:  l.now(),
		Description: description,
	}
	if err := tx.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("failed to append device history: %w", err)
	}
	return nil
}

// TransitionDevice runs Transition in its own transaction.
func (l *Ledger) TransitionDevice(ctx context.Context, deviceID uuid.UUID,
	newStatus asset.DeviceStatus, actor uuid.UUID, reason string) (*asset.Device, error) {
	var device *asset.Device
	err := l.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		device, err = l.Transition(ctx, tx, deviceID, newStatus, actor, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return device, nil
}

// History lists the device's log, newest first.
func (l *Ledger) History(ctx context.Context, deviceID uuid.UUID) ([]asset.DeviceHistory, error) {
	const op = "ledger.History"

	var entries []asset.DeviceHistory
	err := l.store.View(ctx, func(tx storage.Tx) error {
		if _, err := LoadDevice(ctx, tx, op, deviceID); err != nil {
			return err
		}
		var err error
		entries, err = tx.ListHistory(ctx, deviceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// LoadDevice fetches a device and turns a missing row into a NotFound error.
func LoadDevice(ctx context.Context, tx storage.Tx, op string, id uuid.UUID) (*asset.Device, error) {
	device, err := tx.GetDevice(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, asset.NotFound(op, "device", id)
	}
	if err != nil {
		return nil, err
	}
	return device, nil
}
