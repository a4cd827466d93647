package workflow

import (
	"context"
	"errors"
	"testing"
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

var testNow = time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *storage.MemoryStore
	recorder *notify.Recorder
	c        *Coordinator

	admin  auth.Identity
	tech   auth.Identity
	tech2  auth.Identity
	holder auth.Identity
	other  auth.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, storage.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, mem *storage.MemoryStore) *fixture {
	t.Helper()
	clock := func() time.Time { return testNow }
	mem.WithClock(clock)
	return buildFixture(t, mem, mem)
}

// buildFixture wires a coordinator over store while seeding through mem.
func buildFixture(t *testing.T, mem *storage.MemoryStore, store storage.Store) *fixture {
	t.Helper()
	clock := func() time.Time { return testNow }
	logger := zap.NewNop()
	recorder := notify.NewRecorder()
	l := ledger.New(store, logger).WithClock(clock)
	a := analyzer.NewService(store, analyzer.DefaultThresholds(), logger).WithClock(clock)

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    mem,
		recorder: recorder,
		c:        New(store, l, recorder, a, logger).WithClock(clock),
	}
	f.admin = f.user("admin", asset.RoleAdmin)
	f.tech = f.user("tech", asset.RoleTechnician)
	f.tech2 = f.user("tech2", asset.RoleTechnician)
	f.holder = f.user("lan", asset.RoleUser)
	f.other = f.user("minh", asset.RoleUser)
	return f
}

func (f *fixture) user(name string, role asset.Role) auth.Identity {
	f.t.Helper()
	u := &asset.User{Username: name, FullName: name, Role: role}
	f.mustTx(func(tx storage.Tx) error { return tx.CreateUser(f.ctx, u) })
	return auth.Identity{UserID: u.ID, Username: name, Role: role}
}

// device creates a device; an InUse device is assigned to the holder.
func (f *fixture) device(code string, status asset.DeviceStatus) *asset.Device {
	f.t.Helper()
	d := &asset.Device{
		Code:          code,
		Name:          "Laptop " + code,
		ModelName:     "Latitude 5440",
		Status:        status,
		PurchasePrice: 20000000,
	}
	if status == asset.DeviceInUse {
		d.AssignedUserID = &f.holder.UserID
	}
	f.mustTx(func(tx storage.Tx) error {
		if err := tx.CreateDevice(f.ctx, d); err != nil {
			return err
		}
		if d.AssignedUserID == nil {
			return nil
		}
		return tx.CreateAssignment(f.ctx, &asset.DeviceAssignment{
			DeviceID:   d.ID,
			UserID:     d.AssignedUserID,
			AssignedBy: f.admin.UserID,
			AssignedAt: testNow.Add(-24 * time.Hour),
		})
	})
	return d
}

func (f *fixture) mustTx(fn func(tx storage.Tx) error) {
	f.t.Helper()
	if err := f.store.InTx(f.ctx, fn); err != nil {
		f.t.Fatalf("seed: %v", err)
	}
}

func (f *fixture) getDevice(id uuid.UUID) *asset.Device {
	f.t.Helper()
	var d *asset.Device
	err := f.store.View(f.ctx, func(tx storage.Tx) error {
		var err error
		d, err = tx.GetDevice(f.ctx, id)
		return err
	})
	if err != nil {
		f.t.Fatalf("get device: %v", err)
	}
	return d
}

func (f *fixture) history(id uuid.UUID) []asset.DeviceHistory {
	f.t.Helper()
	var h []asset.DeviceHistory
	err := f.store.View(f.ctx, func(tx storage.Tx) error {
		var err error
		h, err = tx.ListHistory(f.ctx, id)
		return err
	})
	if err != nil {
		f.t.Fatalf("history: %v", err)
	}
	return h
}

func (f *fixture) openAssignment(id uuid.UUID) *asset.DeviceAssignment {
	f.t.Helper()
	var a *asset.DeviceAssignment
	err := f.store.View(f.ctx, func(tx storage.Tx) error {
		var err error
		a, err = tx.OpenAssignment(f.ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			a, err = nil, nil
		}
		return err
	})
	if err != nil {
		f.t.Fatalf("open assignment: %v", err)
	}
	return a
}

// approvedRepair files and approves an incident for device.
func (f *fixture) approvedRepair(device *asset.Device) *asset.Repair {
	f.t.Helper()
	reporter := f.admin
	if device.AssignedUserID != nil && *device.AssignedUserID == f.holder.UserID {
		reporter = f.holder
	}
	report, err := f.c.CreateReport(f.ctx, reporter, CreateReportInput{DeviceID: device.ID, Type: "hardware"})
	if err != nil {
		f.t.Fatalf("CreateReport: %v", err)
	}
	_, repair, err := f.c.ApproveReport(f.ctx, f.admin, report.ID)
	if err != nil {
		f.t.Fatalf("ApproveReport: %v", err)
	}
	return repair
}

// assignedRepair returns an approved repair assigned to f.tech.
func (f *fixture) assignedRepair(device *asset.Device) *asset.Repair {
	f.t.Helper()
	repair := f.approvedRepair(device)
	repair, err := f.c.AssignTechnician(f.ctx, f.admin, repair.ID, f.tech.UserID, "")
	if err != nil {
		f.t.Fatalf("AssignTechnician: %v", err)
	}
	return repair
}

func wantKind(t *testing.T, err error, kind asset.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := asset.KindOf(err); got != kind {
		t.Fatalf("error kind = %q, want %q (err: %v)", got, kind, err)
	}
}

// buildFixtureOver reuses the identities of seed with a coordinator over store.
func buildFixtureOver(t *testing.T, seed *fixture, store storage.Store) *fixture {
	t.Helper()
	clock := func() time.Time { return testNow }
	logger := zap.NewNop()
	recorder := notify.NewRecorder()
	l := ledger.New(store, logger).WithClock(clock)
	a := analyzer.NewService(store, analyzer.DefaultThresholds(), logger).WithClock(clock)

	f := *seed
	f.t = t
	f.recorder = recorder
	f.c = New(store, l, recorder, a, logger).WithClock(clock)
	return &f
}
