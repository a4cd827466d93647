package workflow

import (
	"context"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/KevinKickass/OpenAssetCore/internal/ledger"
	"github.com/KevinKickass/OpenAssetCore/internal/storage"
	"github.com/google/uuid"
)

func (c *Coordinator) GetDevice(ctx context.Context, deviceID uuid.UUID) (*asset.Device, error) {
	const op = "device.GetDevice"

	var device *asset.Device
	err := c.view(ctx, op, func(tx storage.Tx) error {
		var err error
		device, err = ledger.LoadDevice(ctx, tx, op, deviceID)
		return err
	})
	return device, err
}

func (c *Coordinator) DeviceHistory(ctx context.Context, deviceID uuid.UUID) ([]asset.DeviceHistory, error) {
	return c.ledger.History(ctx, deviceID)
}
