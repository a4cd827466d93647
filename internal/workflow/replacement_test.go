package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/KevinKickass/OpenAssetCore/internal/notify"
	"github.com/KevinKickass/OpenAssetCore/internal/storage"
	"github.com/google/uuid"
)

// failingStore injects an error into the replacement write so the cascade
// fails after the device writes have been made.
type failingStore struct {
	*storage.MemoryStore
}

func (s failingStore) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.MemoryStore.InTx(ctx, func(tx storage.Tx) error {
		return fn(failingTx{Tx: tx})
	})
}

type failingTx struct {
	storage.Tx
}

var errInjected = errors.New("injected failure")

func (failingTx) CreateReplacement(context.Context, *asset.Replacement) error {
	return errInjected
}

func TestReplacementCarriesAssignment(t *testing.T) {
	f := newFixture(t)
	oldDevice := f.device("LT-1", asset.DeviceInUse)
	newDevice := f.device("LT-2", asset.DeviceUnassigned)
	report, err := f.c.CreateReport(f.ctx, f.holder, CreateReportInput{DeviceID: oldDevice.ID, Type: "dead"})
	if err != nil {
		t.Fatal(err)
	}

	r, err := f.c.CreateReplacement(f.ctx, f.admin, CreateReplacementInput{
		OldDeviceID:      oldDevice.ID,
		NewDeviceID:      newDevice.ID,
		Reason:           "motherboard failure",
		IncidentReportID: &report.ID,
	})
	if err != nil {
		t.Fatalf("CreateReplacement: %v", err)
	}
	if r.OldDeviceID != oldDevice.ID || r.NewDeviceID != newDevice.ID || r.ReplacedBy != f.admin.UserID {
		t.Errorf("unexpected replacement %+v", r)
	}

	old := f.getDevice(oldDevice.ID)
	if old.Status != asset.DeviceReplaced || old.Assigned() {
		t.Errorf("old device = %+v", old)
	}
	if f.openAssignment(oldDevice.ID) != nil {
		t.Errorf("old assignment still open")
	}

	issued := f.getDevice(newDevice.ID)
	if issued.Status != asset.DeviceInUse || issued.AssignedUserID == nil || *issued.AssignedUserID != f.holder.UserID {
		t.Errorf("new device = %+v", issued)
	}
	a := f.openAssignment(newDevice.ID)
	if a == nil || a.UserID == nil || *a.UserID != f.holder.UserID || a.AssignedBy != f.admin.UserID {
		t.Errorf("new assignment = %+v", a)
	}

	if len(f.history(oldDevice.ID)) != 1 || len(f.history(newDevice.ID)) != 1 {
		t.Errorf("history missing on one of the devices")
	}

	closed, err := f.c.GetReport(f.ctx, report.ID)
	if err != nil {
		t.Fatal(err)
	}
	if closed.Status != asset.IncidentReplaced {
		t.Errorf("incident status = %s, want %s", closed.Status, asset.IncidentReplaced)
	}

	sent := f.recorder.ByEvent(notify.EventDeviceReplaced)
	if len(sent) != 1 || sent[0].UserIDs[0] != f.holder.UserID {
		t.Errorf("holder not notified: %+v", sent)
	}

	// Terminal: no further transitions or replacements.
	_, err = f.c.CreateReplacement(f.ctx, f.admin, CreateReplacementInput{
		OldDeviceID: oldDevice.ID,
		NewDeviceID: f.device("LT-3", asset.DeviceUnassigned).ID,
		Reason:      "again",
	})
	wantKind(t, err, asset.KindConflict)
}

func TestReplacementOfUnassignedDevice(t *testing.T) {
	f := newFixture(t)
	oldDevice := f.device("PR-1", asset.DeviceBroken)
	newDevice := f.device("PR-2", asset.DeviceUnassigned)

	if _, err := f.c.CreateReplacement(f.ctx, f.admin, CreateReplacementInput{
		OldDeviceID: oldDevice.ID,
		NewDeviceID: newDevice.ID,
		Reason:      "obsolete",
	}); err != nil {
		t.Fatalf("CreateReplacement: %v", err)
	}

	if got := f.getDevice(newDevice.ID).Status; got != asset.DeviceUnassigned {
		t.Errorf("new device without holder = %s, want %s", got, asset.DeviceUnassigned)
	}
	h := f.history(newDevice.ID)
	if len(h) != 1 || h[0].Action != actionReplacementTarget {
		t.Errorf("new device history = %+v", h)
	}
	if n := len(f.recorder.ByEvent(notify.EventDeviceReplaced)); n != 0 {
		t.Errorf("notified %d times without a holder", n)
	}
}

func TestReplacementPreconditions(t *testing.T) {
	f := newFixture(t)
	oldDevice := f.device("LT-1", asset.DeviceInUse)
	spare := f.device("LT-2", asset.DeviceUnassigned)
	busy := f.device("LT-3", asset.DeviceInUse)

	cases := []struct {
		name string
		in   CreateReplacementInput
		kind asset.Kind
	}{
		{"same device", CreateReplacementInput{OldDeviceID: oldDevice.ID, NewDeviceID: oldDevice.ID, Reason: "x"}, asset.KindValidation},
		{"missing reason", CreateReplacementInput{OldDeviceID: oldDevice.ID, NewDeviceID: spare.ID}, asset.KindValidation},
		{"unknown old", CreateReplacementInput{OldDeviceID: uuid.New(), NewDeviceID: spare.ID, Reason: "x"}, asset.KindNotFound},
		{"new in use", CreateReplacementInput{OldDeviceID: oldDevice.ID, NewDeviceID: busy.ID, Reason: "x"}, asset.KindConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.c.CreateReplacement(f.ctx, f.admin, tc.in)
			wantKind(t, err, tc.kind)
		})
	}

	_, err := f.c.CreateReplacement(f.ctx, f.tech, CreateReplacementInput{OldDeviceID: oldDevice.ID, NewDeviceID: spare.ID, Reason: "x"})
	wantKind(t, err, asset.KindForbidden)

	f.approvedRepair(oldDevice)
	_, err = f.c.CreateReplacement(f.ctx, f.admin, CreateReplacementInput{OldDeviceID: oldDevice.ID, NewDeviceID: spare.ID, Reason: "x"})
	wantKind(t, err, asset.KindConflict)
}

func TestReplacementClosesUncitedPendingReport(t *testing.T) {
	f := newFixture(t)
	oldDevice := f.device("LT-1", asset.DeviceInUse)
	newDevice := f.device("LT-2", asset.DeviceUnassigned)
	report, err := f.c.CreateReport(f.ctx, f.holder, CreateReportInput{DeviceID: oldDevice.ID, Type: "battery"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.c.CreateReplacement(f.ctx, f.admin, CreateReplacementInput{
		OldDeviceID: oldDevice.ID,
		NewDeviceID: newDevice.ID,
		Reason:      "upgrade",
	}); err != nil {
		t.Fatalf("CreateReplacement: %v", err)
	}

	closed, err := f.c.GetReport(f.ctx, report.ID)
	if err != nil {
		t.Fatal(err)
	}
	if closed.Status != asset.IncidentReplaced {
		t.Errorf("incident status = %s, want %s", closed.Status, asset.IncidentReplaced)
	}

	_, _, err = f.c.ApproveReport(f.ctx, f.admin, report.ID)
	wantKind(t, err, asset.KindInvalidState)
}

func TestReplacementIsAllOrNothing(t *testing.T) {
	mem := storage.NewMemoryStore()
	seed := newFixtureWithStore(t, mem)
	oldDevice := seed.device("LT-1", asset.DeviceInUse)
	newDevice := seed.device("LT-2", asset.DeviceUnassigned)

	// Same data, coordinator writing through the failing store.
	f := buildFixtureOver(t, seed, failingStore{MemoryStore: mem})

	_, err := f.c.CreateReplacement(f.ctx, f.admin, CreateReplacementInput{
		OldDeviceID: oldDevice.ID,
		NewDeviceID: newDevice.ID,
		Reason:      "screen",
	})
	if !errors.Is(err, errInjected) {
		t.Fatalf("err = %v, want injected failure", err)
	}

	old := seed.getDevice(oldDevice.ID)
	if old.Status != asset.DeviceInUse || old.AssignedUserID == nil || *old.AssignedUserID != seed.holder.UserID {
		t.Errorf("old device changed: %+v", old)
	}
	if seed.openAssignment(oldDevice.ID) == nil {
		t.Errorf("old assignment released")
	}
	fresh := seed.getDevice(newDevice.ID)
	if fresh.Status != asset.DeviceUnassigned || fresh.Assigned() {
		t.Errorf("new device changed: %+v", fresh)
	}
	if seed.openAssignment(newDevice.ID) != nil {
		t.Errorf("new assignment created")
	}
	if len(seed.history(oldDevice.ID))+len(seed.history(newDevice.ID)) != 0 {
		t.Errorf("history survived rollback")
	}
	if len(f.recorder.Records()) != 0 {
		t.Errorf("notification sent for rolled back replacement")
	}
}

func TestListReplacementCandidates(t *testing.T) {
	f := newFixture(t)
	oldDevice := f.device("LT-1", asset.DeviceInUse)
	other := &asset.Device{Code: "AA-1", Name: "MacBook", ModelName: "MacBook Air", Status: asset.DeviceUnassigned}
	f.mustTx(func(tx storage.Tx) error { return tx.CreateDevice(f.ctx, other) })
	same := f.device("LT-9", asset.DeviceUnassigned)
	f.device("LT-5", asset.DeviceBroken)

	got, err := f.c.ListReplacementCandidates(f.ctx, oldDevice.ID)
	if err != nil {
		t.Fatalf("ListReplacementCandidates: %v", err)
	}
	if len(got.Candidates) != 2 {
		t.Fatalf("candidates = %+v", got.Candidates)
	}
	if got.Candidates[0].ID != same.ID {
		t.Errorf("same model not first: %+v", got.Candidates)
	}
	if got.Analysis.Suggestion == "" {
		t.Errorf("missing analysis")
	}
}
