package analyzer

import (
	"context"
	"errors"
	"time"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/KevinKickass/OpenAssetCore/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service runs Analyze against the stored repair history.
type Service struct {
	store      storage.Store
	thresholds Thresholds
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(store storage.Store, thresholds Thresholds, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		thresholds: thresholds,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Thresholds() Thresholds {
	return s.thresholds
}

// Evaluate analyzes already loaded data with the service's thresholds.
func (s *Service) Evaluate(device *asset.Device, repairs []asset.Repair) Report {
	return Analyze(device, repairs, s.now(), s.thresholds)
}

func (s *Service) Analyze(ctx context.Context, deviceID uuid.UUID) (*Report, error) {
	var (
		device  *asset.Device
		repairs []asset.Repair
	)
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		device, err = tx.GetDevice(ctx, deviceID)
		if errors.Is(err, storage.ErrNotFound) {
			return asset.NotFound("analyzer.Analyze", "device", deviceID)
		}
		if err != nil {
			return err
		}
		repairs, err = tx.ListRepairs(ctx, asset.RepairFilter{DeviceID: &deviceID})
		return err
	})
	if err != nil {
		return nil, err
	}

	rep := s.Evaluate(device, repairs)
	if len(rep.Warnings) > 0 {
		s.logger.Debug("Device repair analysis raised warnings",
			zap.String("device_id", deviceID.String()),
			zap.Int("warnings", len(rep.Warnings)),
			zap.String("worst", string(rep.Warnings[0].Severity)))
	}
	return &rep, nil
}
