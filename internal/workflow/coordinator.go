// Package workflow coordinates the incident, repair, replacement and
// liquidation lifecycles. Every cascading operation runs in one store
// transaction; notifications are sent only after it commits.
package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/KevinKickass/OpenAssetCore/internal/analyzer"
	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/KevinKickass/OpenAssetCore/internal/auth"
	"github.com/KevinKickass/OpenAssetCore/internal/ledger"
	"github.com/KevinKickass/OpenAssetCore/internal/notify"
	"github.com/KevinKickass/OpenAssetCore/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Coordinator struct {
	store    storage.Store
	ledger   *ledger.Ledger
	notifier notify.Dispatcher
	analyzer *analyzer.Service
	logger   *zap.Logger
	now      func() time.Time
}

func New(
	store storage.Store,
	ledger *ledger.Ledger,
	notifier notify.Dispatcher,
	analyzer *analyzer.Service,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		analyzer: analyzer,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the clock used for workflow timestamps.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// outbox collects notifications while a transaction runs.
type outbox struct {
	items []notify.Notification
}

func (o *outbox) add(n notify.Notification) {
	if len(n.UserIDs) == 0 {
		return
	}
	o.items = append(o.items, n)
}

// run executes fn in one read-write transaction and dispatches the collected
// notifications once it has committed.
func (c *Coordinator) run(ctx context.Context, op string, fn func(tx storage.Tx, out *outbox) error) error {
	out := &outbox{}
	err := c.store.InTx(ctx, func(tx storage.Tx) error {
		return fn(tx, out)
	})
	if err != nil {
		return storeErr(op, err)
	}
	c.dispatch(ctx, out.items)
	return nil
}

func (c *Coordinator) view(ctx context.Context, op string, fn func(tx storage.Tx) error) error {
	if err := c.store.View(ctx, fn); err != nil {
		return storeErr(op, err)
	}
	return nil
}

func (c *Coordinator) dispatch(ctx context.Context, items []notify.Notification) {
	for _, n := range items {
		if n.CreatedAt.IsZero() {
			n.CreatedAt = c.now()
		}
		if err := c.notifier.Notify(ctx, n); err != nil {
			c.logger.Warn("Failed to dispatch notification",
				zap.String("event", n.Event),
				zap.String("entity_id", n.EntityID.String()),
				zap.Error(err))
		}
	}
}

// storeErr keeps typed lifecycle errors and classifies raw storage failures.
func storeErr(op string, err error) error {
	if asset.KindOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		return &asset.Error{Kind: asset.KindConflict, Op: op, Message: "conflicting record exists", Err: err}
	case errors.Is(err, storage.ErrNotFound):
		return &asset.Error{Kind: asset.KindNotFound, Op: op, Message: "record not found", Err: err}
	}
	return err
}

func requireAdmin(op string, id auth.Identity) error {
	if !id.IsAdmin() {
		return asset.Errorf(asset.KindForbidden, op, "requires role %s", asset.RoleAdmin)
	}
	return nil
}

func requireAssignedTechnician(op string, id auth.Identity, repair *asset.Repair) error {
	if repair.TechnicianID == nil {
		return asset.Errorf(asset.KindForbidden, op, "repair %s has no assigned technician", repair.ID)
	}
	if !repair.AssignedTo(id.UserID) {
		return asset.Errorf(asset.KindForbidden, op, "repair %s is assigned to another technician", repair.ID)
	}
	return nil
}

func loadIncident(ctx context.Context, tx storage.Tx, op string, id uuid.UUID) (*asset.IncidentReport, error) {
	r, err := tx.GetIncident(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, asset.NotFound(op, "incident report", id)
	}
	return r, err
}

func loadRepair(ctx context.Context, tx storage.Tx, op string, id uuid.UUID) (*asset.Repair, error) {
	r, err := tx.GetRepair(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, asset.NotFound(op, "repair", id)
	}
	return r, err
}

// activeRepair returns the device's active repair or nil.
func activeRepair(ctx context.Context, tx storage.Tx, deviceID uuid.UUID) (*asset.Repair, error) {
	r, err := tx.ActiveRepair(ctx, deviceID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return r, err
}

// pendingIncident returns the device's pending report or nil.
func pendingIncident(ctx context.Context, tx storage.Tx, deviceID uuid.UUID) (*asset.IncidentReport, error) {
	r, err := tx.PendingIncident(ctx, deviceID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return r, err
}

// releaseAssignment closes the device's open assignment and clears the holder
// fields on device. It does not persist device.
func releaseAssignment(ctx context.Context, tx storage.Tx, device *asset.Device, at time.Time) error {
	a, err := tx.OpenAssignment(ctx, device.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return err
	default:
		if err := tx.ReleaseAssignment(ctx, a.ID, at); err != nil {
			return err
		}
	}
	device.AssignedUserID = nil
	device.DepartmentID = nil
	return nil
}

func adminIDs(ctx context.Context, tx storage.Tx) ([]uuid.UUID, error) {
	admins, err := tx.ListUsersByRole(ctx, asset.RoleAdmin)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(admins))
	for i, u := range admins {
		ids[i] = u.ID
	}
	return ids, nil
}

// recipients drops nil and duplicate IDs.
func recipients(ids ...*uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == nil || *id == uuid.Nil || seen[*id] {
			continue
		}
		seen[*id] = true
		out = append(out, *id)
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
