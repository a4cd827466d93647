package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/KevinKickass/OpenAssetCore/internal/notify"
	"github.com/KevinKickass/OpenAssetCore/internal/storage"
	"github.com/google/uuid"
)

// quotaStore lets the first allow liquidation writes through and fails the rest.
type quotaStore struct {
	*storage.MemoryStore
	allow int
}

func (s *quotaStore) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.MemoryStore.InTx(ctx, func(tx storage.Tx) error {
		return fn(quotaTx{Tx: tx, store: s})
	})
}

type quotaTx struct {
	storage.Tx
	store *quotaStore
}

func (t quotaTx) CreateLiquidation(ctx context.Context, l *asset.Liquidation) error {
	if t.store.allow == 0 {
		return errInjected
	}
	t.store.allow--
	return t.Tx.CreateLiquidation(ctx, l)
}

func TestIsEligible(t *testing.T) {
	f := newFixture(t)
	broken := f.device("PR-1", asset.DeviceBroken)
	pending := f.device("PR-2", asset.DevicePendingLiquidation)
	inUse := f.device("LT-1", asset.DeviceInUse)
	repairing := f.device("PR-3", asset.DeviceBroken)
	f.approvedRepair(repairing)

	cases := []struct {
		id   uuid.UUID
		want bool
	}{
		{broken.ID, true},
		{pending.ID, true},
		{inUse.ID, false},
		{repairing.ID, false},
	}
	for _, tc := range cases {
		e, err := f.c.IsEligible(f.ctx, tc.id)
		if err != nil {
			t.Fatalf("IsEligible: %v", err)
		}
		if e.Eligible != tc.want {
			t.Errorf("device %s eligible = %v, want %v (%s)", tc.id, e.Eligible, tc.want, e.Reason)
		}
		if !e.Eligible && e.Reason == "" {
			t.Errorf("ineligible device %s without reason", tc.id)
		}
	}

	_, err := f.c.IsEligible(f.ctx, uuid.New())
	wantKind(t, err, asset.KindNotFound)

	eligible, err := f.c.ListEligible(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(eligible) != 2 {
		t.Errorf("ListEligible = %d devices, want 2", len(eligible))
	}
}

func TestLiquidate(t *testing.T) {
	f := newFixture(t)
	d := f.device("LT-1", asset.DeviceInUse)
	report, err := f.c.CreateReport(f.ctx, f.holder, CreateReportInput{DeviceID: d.ID, Type: "water"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.c.RejectReport(f.ctx, f.admin, report.ID, "not worth repairing", asset.DecisionLiquidate); err != nil {
		t.Fatal(err)
	}

	_, err = f.c.Liquidate(f.ctx, f.tech, LiquidateInput{DeviceID: d.ID, Reason: "x"})
	wantKind(t, err, asset.KindForbidden)
	_, err = f.c.Liquidate(f.ctx, f.admin, LiquidateInput{DeviceID: d.ID})
	wantKind(t, err, asset.KindValidation)

	date := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	l, err := f.c.Liquidate(f.ctx, f.admin, LiquidateInput{DeviceID: d.ID, Reason: "water damage", Date: &date})
	if err != nil {
		t.Fatalf("Liquidate: %v", err)
	}
	if !l.LiquidationDate.Equal(date) || l.ApprovedBy != f.admin.UserID || l.Reason != "water damage" {
		t.Errorf("unexpected liquidation %+v", l)
	}

	got := f.getDevice(d.ID)
	if got.Status != asset.DeviceLiquidated || got.Assigned() {
		t.Errorf("device = %+v", got)
	}
	if f.openAssignment(d.ID) != nil {
		t.Errorf("assignment still open")
	}
	if sent := f.recorder.ByEvent(notify.EventDeviceLiquidated); len(sent) != 1 || sent[0].UserIDs[0] != f.holder.UserID {
		t.Errorf("holder not notified: %+v", sent)
	}

	// Terminal.
	_, err = f.c.Liquidate(f.ctx, f.admin, LiquidateInput{DeviceID: d.ID, Reason: "again"})
	wantKind(t, err, asset.KindConflict)
	_, err = f.c.ledger.TransitionDevice(f.ctx, d.ID, asset.DeviceInUse, f.admin.UserID, "revive")
	wantKind(t, err, asset.KindInvalidState)
}

func TestLiquidateBatchMixed(t *testing.T) {
	f := newFixture(t)
	broken := f.device("PR-1", asset.DeviceBroken)
	pending := f.device("PR-2", asset.DevicePendingLiquidation)
	inUse := f.device("LT-1", asset.DeviceInUse)
	repairing := f.device("PR-3", asset.DeviceBroken)
	f.approvedRepair(repairing)
	missing := uuid.New()

	res, err := f.c.LiquidateBatch(f.ctx, f.admin, LiquidateBatchInput{
		DeviceIDs: []uuid.UUID{broken.ID, inUse.ID, missing, pending.ID, repairing.ID, broken.ID},
		Reason:    "annual disposal",
	})
	if err != nil {
		t.Fatalf("LiquidateBatch: %v", err)
	}

	if len(res.Succeeded) != 2 {
		t.Fatalf("succeeded = %+v", res.Succeeded)
	}
	if res.Succeeded[0].DeviceID != broken.ID || res.Succeeded[1].DeviceID != pending.ID {
		t.Errorf("succeeded order = %+v", res.Succeeded)
	}
	if len(res.Skipped) != 3 {
		t.Fatalf("skipped = %+v", res.Skipped)
	}
	for _, s := range res.Skipped {
		if strings.TrimSpace(s.Reason) == "" {
			t.Errorf("skipped %s without reason", s.ID)
		}
	}

	for _, id := range []uuid.UUID{broken.ID, pending.ID} {
		if got := f.getDevice(id).Status; got != asset.DeviceLiquidated {
			t.Errorf("device %s = %s", id, got)
		}
	}
	if got := f.getDevice(inUse.ID).Status; got != asset.DeviceInUse {
		t.Errorf("skipped device changed to %s", got)
	}
	if got := f.getDevice(repairing.ID).Status; got != asset.DeviceUnderRepair {
		t.Errorf("device with active repair changed to %s", got)
	}
}

func TestLiquidateClosesPendingReport(t *testing.T) {
	f := newFixture(t)
	d := f.device("PR-1", asset.DeviceBroken)
	report, err := f.c.CreateReport(f.ctx, f.admin, CreateReportInput{DeviceID: d.ID, Type: "dead"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.c.Liquidate(f.ctx, f.admin, LiquidateInput{DeviceID: d.ID, Reason: "scrap"}); err != nil {
		t.Fatalf("Liquidate: %v", err)
	}

	closed, err := f.c.GetReport(f.ctx, report.ID)
	if err != nil {
		t.Fatal(err)
	}
	if closed.Status != asset.IncidentRejected || closed.RejectDecision != asset.DecisionLiquidate {
		t.Errorf("incident = %s/%s, want %s/%s", closed.Status, closed.RejectDecision,
			asset.IncidentRejected, asset.DecisionLiquidate)
	}
	if closed.RejectedBy == nil || *closed.RejectedBy != f.admin.UserID || closed.RejectedAt == nil {
		t.Errorf("rejection not attributed: %+v", closed)
	}

	_, err = f.c.RejectReport(f.ctx, f.admin, report.ID, "again", asset.DecisionLiquidate)
	wantKind(t, err, asset.KindInvalidState)
}

func TestLiquidateBatchStorageFailureKeepsCommitted(t *testing.T) {
	mem := storage.NewMemoryStore()
	seed := newFixtureWithStore(t, mem)
	first := seed.device("PR-1", asset.DeviceBroken)
	second := seed.device("PR-2", asset.DeviceBroken)
	third := seed.device("PR-3", asset.DeviceBroken)

	f := buildFixtureOver(t, seed, &quotaStore{MemoryStore: mem, allow: 1})

	res, err := f.c.LiquidateBatch(f.ctx, f.admin, LiquidateBatchInput{
		DeviceIDs: []uuid.UUID{first.ID, second.ID, third.ID},
		Reason:    "annual disposal",
	})
	if !errors.Is(err, errInjected) {
		t.Fatalf("err = %v, want injected failure", err)
	}
	if res == nil || len(res.Succeeded) != 1 || res.Succeeded[0].DeviceID != first.ID {
		t.Fatalf("partial result = %+v", res)
	}

	if got := seed.getDevice(first.ID).Status; got != asset.DeviceLiquidated {
		t.Errorf("committed device = %s", got)
	}
	for _, id := range []uuid.UUID{second.ID, third.ID} {
		if got := seed.getDevice(id).Status; got != asset.DeviceBroken {
			t.Errorf("device %s = %s, want %s", id, got, asset.DeviceBroken)
		}
	}
}

func TestLiquidateBatchValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.c.LiquidateBatch(f.ctx, f.admin, LiquidateBatchInput{Reason: "x"})
	wantKind(t, err, asset.KindValidation)
	_, err = f.c.LiquidateBatch(f.ctx, f.admin, LiquidateBatchInput{DeviceIDs: []uuid.UUID{uuid.New()}})
	wantKind(t, err, asset.KindValidation)
	_, err = f.c.LiquidateBatch(f.ctx, f.holder, LiquidateBatchInput{DeviceIDs: []uuid.UUID{uuid.New()}, Reason: "x"})
	wantKind(t, err, asset.KindForbidden)
}
