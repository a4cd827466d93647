package storage

import (
	"context"
	"errors"
	"time"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("unique constraint violated")
)

// Store is the transactional persistence boundary of the lifecycle core.
type Store interface {
	// InTx runs fn in a read-write transaction. Rows read through tx are
	// locked until commit. Returning an error from fn rolls everything back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error
	Close()
}

// Tx exposes every read and write the workflows perform. Relations are
// resolved by explicit IDs only.
type Tx interface {
	GetDevice(ctx context.Context, id uuid.UUID) (*asset.Device, error)
	ListDevices(ctx context.Context, filter DeviceFilter) ([]asset.Device, error)
	CreateDevice(ctx context.Context, device *asset.Device) error
	UpdateDevice(ctx context.Context, device *asset.Device) error

	AppendHistory(ctx context.Context, entry *asset.DeviceHistory) error
	ListHistory(ctx context.Context, deviceID uuid.UUID) ([]asset.DeviceHistory, error)

	// OpenAssignment returns ErrNotFound when the device has no open assignment.
	OpenAssignment(ctx context.Context, deviceID uuid.UUID) (*asset.DeviceAssignment, error)
	CreateAssignment(ctx context.Context, a *asset.DeviceAssignment) error
	ReleaseAssignment(ctx context.Context, id uuid.UUID, at time.Time) error

	CreateIncident(ctx context.Context, report *asset.IncidentReport) error
	GetIncident(ctx context.Context, id uuid.UUID) (*asset.IncidentReport, error)
	UpdateIncident(ctx context.Context, report *asset.IncidentReport) error
	// PendingIncident returns ErrNotFound when the device has no pending report.
	PendingIncident(ctx context.Context, deviceID uuid.UUID) (*asset.IncidentReport, error)
	ListIncidents(ctx context.Context, filter asset.IncidentFilter) ([]asset.IncidentReport, error)

	CreateRepair(ctx context.Context, repair *asset.Repair) error
	GetRepair(ctx context.Context, id uuid.UUID) (*asset.Repair, error)
	UpdateRepair(ctx context.Context, repair *asset.Repair) error
	// ActiveRepair returns ErrNotFound when the device has no active repair.
	ActiveRepair(ctx context.Context, deviceID uuid.UUID) (*asset.Repair, error)
	ListRepairs(ctx context.Context, filter asset.RepairFilter) ([]asset.Repair, error)

	CreateReplacement(ctx context.Context, r *asset.Replacement) error
	CreateLiquidation(ctx context.Context, l *asset.Liquidation) error

	GetUser(ctx context.Context, id uuid.UUID) (*asset.User, error)
	CreateUser(ctx context.Context, user *asset.User) error
	ListUsersByRole(ctx context.Context, role asset.Role) ([]asset.User, error)
}

type DeviceFilter struct {
	Statuses   []asset.DeviceStatus
	ModelName  string
	Unassigned bool
	Limit      int
}

func (f DeviceFilter) matches(d *asset.Device) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if d.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.ModelName != "" && d.ModelName != f.ModelName {
		return false
	}
	if f.Unassigned && d.Assigned() {
		return false
	}
	return true
}
