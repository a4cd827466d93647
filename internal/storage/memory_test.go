package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/google/uuid"
)

func TestMemoryStore_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	d := &asset.Device{Code: "LT-1", Status: asset.DeviceUnassigned}
	if err := store.InTx(ctx, func(tx Tx) error { return tx.CreateDevice(ctx, d) }); err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if d.ID == uuid.Nil || d.CreatedAt.IsZero() {
		t.Fatalf("expected generated ID and timestamps, got %+v", d)
	}

	err := store.View(ctx, func(tx Tx) error {
		got, err := tx.GetDevice(ctx, d.ID)
		if err != nil {
			return err
		}
		if got.Code != "LT-1" {
			t.Errorf("code = %q", got.Code)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestMemoryStore_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("boom")

	d := &asset.Device{Code: "LT-2", Status: asset.DeviceUnassigned}
	err := store.InTx(ctx, func(tx Tx) error {
		if err := tx.CreateDevice(ctx, d); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = store.View(ctx, func(tx Tx) error {
		_, err := tx.GetDevice(ctx, d.ID)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after rollback, got %v", err)
	}
}

func TestMemoryStore_ViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.View(ctx, func(tx Tx) error {
		return tx.CreateUser(ctx, &asset.User{Username: "x", Role: asset.RoleUser})
	})
	if err == nil {
		t.Fatal("expected write in View to fail")
	}
}

func TestMemoryStore_UniqueConstraints(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	d := &asset.Device{Code: "LT-3", Status: asset.DeviceInUse}
	reporter := uuid.New()
	err := store.InTx(ctx, func(tx Tx) error {
		if err := tx.CreateDevice(ctx, d); err != nil {
			return err
		}
		return tx.CreateIncident(ctx, &asset.IncidentReport{DeviceID: d.ID, ReporterID: reporter, Status: asset.IncidentPending})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = store.InTx(ctx, func(tx Tx) error {
		return tx.CreateIncident(ctx, &asset.IncidentReport{DeviceID: d.ID, ReporterID: reporter, Status: asset.IncidentPending})
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("second pending incident: expected ErrDuplicate, got %v", err)
	}

	err = store.InTx(ctx, func(tx Tx) error { return tx.CreateDevice(ctx, &asset.Device{ID: d.ID, Code: "dup"}) })
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate device: expected ErrDuplicate, got %v", err)
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewMemoryStore().InTx(ctx, func(tx Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("expected context.Canceled without calling fn, got %v (called=%v)", err, called)
	}
}

func TestDeviceFilter(t *testing.T) {
	holder := uuid.New()
	devices := []asset.Device{
		{Code: "A", ModelName: "M1", Status: asset.DeviceUnassigned},
		{Code: "B", ModelName: "M2", Status: asset.DeviceUnassigned},
		{Code: "C", ModelName: "M1", Status: asset.DeviceInUse, AssignedUserID: &holder},
	}

	ctx := context.Background()
	store := NewMemoryStore()
	err := store.InTx(ctx, func(tx Tx) error {
		for i := range devices {
			if err := tx.CreateDevice(ctx, &devices[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	cases := []struct {
		name   string
		filter DeviceFilter
		want   []string
	}{
		{"all", DeviceFilter{}, []string{"A", "B", "C"}},
		{"by status", DeviceFilter{Statuses: []asset.DeviceStatus{asset.DeviceInUse}}, []string{"C"}},
		{"by model", DeviceFilter{ModelName: "M1"}, []string{"A", "C"}},
		{"unassigned", DeviceFilter{Unassigned: true}, []string{"A", "B"}},
		{"limit", DeviceFilter{Limit: 1}, []string{"A"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got []asset.Device
			store.View(ctx, func(tx Tx) error {
				var err error
				got, err = tx.ListDevices(ctx, tc.filter)
				return err
			})
			if len(got) != len(tc.want) {
				t.Fatalf("got %d devices, want %d", len(got), len(tc.want))
			}
			for i, code := range tc.want {
				if got[i].Code != code {
					t.Errorf("device %d = %s, want %s", i, got[i].Code, code)
				}
			}
		})
	}
}
