package workflow

import (
	"errors"
	"testing"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/KevinKickass/OpenAssetCore/internal/notify"
	"github.com/google/uuid"
)

func TestCreateReportNotifiesAdmins(t *testing.T) {
	f := newFixture(t)
	d := f.device("LT-1", asset.DeviceInUse)

	report, err := f.c.CreateReport(f.ctx, f.holder, CreateReportInput{
		DeviceID:    d.ID,
		Type:        "screen",
		Description: "flickers",
	})
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if report.Status != asset.IncidentPending || report.ReporterID != f.holder.UserID {
		t.Errorf("unexpected report %+v", report)
	}

	sent := f.recorder.ByEvent(notify.EventIncidentCreated)
	if len(sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(sent))
	}
	if len(sent[0].UserIDs) != 1 || sent[0].UserIDs[0] != f.admin.UserID {
		t.Errorf("recipients = %v, want admin", sent[0].UserIDs)
	}
	if got := f.getDevice(d.ID).Status; got != asset.DeviceInUse {
		t.Errorf("reporting changed device status to %s", got)
	}
}

func TestCreateReportValidation(t *testing.T) {
	f := newFixture(t)
	d := f.device("LT-1", asset.DeviceInUse)

	_, err := f.c.CreateReport(f.ctx, f.holder, CreateReportInput{DeviceID: d.ID})
	wantKind(t, err, asset.KindValidation)

	_, err = f.c.CreateReport(f.ctx, f.holder, CreateReportInput{DeviceID: uuid.New(), Type: "x"})
	wantKind(t, err, asset.KindNotFound)

	_, err = f.c.CreateReport(f.ctx, f.other, CreateReportInput{DeviceID: d.ID, Type: "x"})
	wantKind(t, err, asset.KindForbidden)

	// Technicians may report any device.
	if _, err := f.c.CreateReport(f.ctx, f.tech, CreateReportInput{DeviceID: d.ID, Type: "x"}); err != nil {
		t.Errorf("technician report: %v", err)
	}
}

func TestAtMostOnePendingReport(t *testing.T) {
	f := newFixture(t)
	d := f.device("LT-1", asset.DeviceInUse)

	if _, err := f.c.CreateReport(f.ctx, f.holder, CreateReportInput{DeviceID: d.ID, Type: "x"}); err != nil {
		t.Fatal(err)
	}
	_, err := f.c.CreateReport(f.ctx, f.admin, CreateReportInput{DeviceID: d.ID, Type: "y"})
	wantKind(t, err, asset.KindConflict)

	pending := asset.IncidentPending
	reports, err := f.c.ListIncidents(f.ctx, asset.IncidentFilter{Status: &pending, DeviceID: &d.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Errorf("pending reports = %d, want 1", len(reports))
	}
}

func TestCreateReportOnTerminalDevice(t *testing.T) {
	f := newFixture(t)
	for _, status := range []asset.DeviceStatus{asset.DeviceReplaced, asset.DeviceLiquidated} {
		d := f.device("T-"+string(status), status)
		_, err := f.c.CreateReport(f.ctx, f.admin, CreateReportInput{DeviceID: d.ID, Type: "x"})
		wantKind(t, err, asset.KindConflict)
	}
}

func TestApproveReportOpensRepair(t *testing.T) {
	f := newFixture(t)
	d := f.device("LT-1", asset.DeviceInUse)
	report, err := f.c.CreateReport(f.ctx, f.holder, CreateReportInput{DeviceID: d.ID, Type: "x"})
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = f.c.ApproveReport(f.ctx, f.tech, report.ID)
	wantKind(t, err, asset.KindForbidden)

	approved, repair, err := f.c.ApproveReport(f.ctx, f.admin, report.ID)
	if err != nil {
		t.Fatalf("ApproveReport: %v", err)
	}
	if approved.Status != asset.IncidentApproved || approved.RepairID == nil || *approved.RepairID != repair.ID {
		t.Errorf("unexpected approved report %+v", approved)
	}
	if approved.ApprovedBy == nil || *approved.ApprovedBy != f.admin.UserID || approved.ApprovedAt == nil {
		t.Errorf("approval not stamped: %+v", approved)
	}
	if repair.Status != asset.RepairChoThucHien || repair.PreviousDeviceStatus != asset.DeviceInUse {
		t.Errorf("unexpected repair %+v", repair)
	}
	if got := f.getDevice(d.ID).Status; got != asset.DeviceUnderRepair {
		t.Errorf("device status = %s, want %s", got, asset.DeviceUnderRepair)
	}
	if sent := f.recorder.ByEvent(notify.EventIncidentApproved); len(sent) != 1 || sent[0].UserIDs[0] != f.holder.UserID {
		t.Errorf("reporter not notified: %+v", sent)
	}

	_, _, err = f.c.ApproveReport(f.ctx, f.admin, report.ID)
	wantKind(t, err, asset.KindInvalidState)
}

func TestApproveReportWithActiveRepairRollsBack(t *testing.T) {
	f := newFixture(t)
	d := f.device("LT-1", asset.DeviceInUse)
	f.approvedRepair(d)

	second, err := f.c.CreateReport(f.ctx, f.holder, CreateReportInput{DeviceID: d.ID, Type: "again"})
	if err != nil {
		t.Fatalf("second report: %v", err)
	}
	_, _, err = f.c.ApproveReport(f.ctx, f.admin, second.ID)
	wantKind(t, err, asset.KindConflict)

	still, err := f.c.GetReport(f.ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if still.Status != asset.IncidentPending || still.RepairID != nil {
		t.Errorf("failed approval left writes behind: %+v", still)
	}
}

func TestRejectReportKeep(t *testing.T) {
	f := newFixture(t)
	d := f.device("LT-1", asset.DeviceInUse)
	report, err := f.c.CreateReport(f.ctx, f.holder, CreateReportInput{DeviceID: d.ID, Type: "x"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.c.RejectReport(f.ctx, f.admin, report.ID, "  ", asset.DecisionKeep)
	wantKind(t, err, asset.KindValidation)

	rejected, err := f.c.RejectReport(f.ctx, f.admin, report.ID, "works as intended", asset.DecisionKeep)
	if err != nil {
		t.Fatalf("RejectReport: %v", err)
	}
	if rejected.Status != asset.IncidentRejected || rejected.RejectReason != "works as intended" || rejected.RejectedAt == nil {
		t.Errorf("unexpected rejected report %+v", rejected)
	}
	if got := f.getDevice(d.ID).Status; got != asset.DeviceInUse {
		t.Errorf("keep decision changed device to %s", got)
	}
	if len(f.history(d.ID)) != 0 {
		t.Errorf("keep decision wrote history")
	}

	// The pending lock is released immediately.
	if _, err := f.c.CreateReport(f.ctx, f.holder, CreateReportInput{DeviceID: d.ID, Type: "y"}); err != nil {
		t.Errorf("new report after rejection: %v", err)
	}
	if sent := f.recorder.ByEvent(notify.EventIncidentRejected); len(sent) != 1 {
		t.Errorf("rejection notifications = %d", len(sent))
	}
}

func TestRejectReportLiquidate(t *testing.T) {
	f := newFixture(t)
	d := f.device("LT-1", asset.DeviceInUse)
	report, err := f.c.CreateReport(f.ctx, f.holder, CreateReportInput{DeviceID: d.ID, Type: "x"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.c.RejectReport(f.ctx, f.admin, report.ID, "beyond repair", asset.RejectDecision("burn"))
	wantKind(t, err, asset.KindValidation)

	if _, err := f.c.RejectReport(f.ctx, f.admin, report.ID, "beyond repair", asset.DecisionLiquidate); err != nil {
		t.Fatalf("RejectReport: %v", err)
	}
	if got := f.getDevice(d.ID).Status; got != asset.DevicePendingLiquidation {
		t.Errorf("device status = %s, want %s", got, asset.DevicePendingLiquidation)
	}
	h := f.history(d.ID)
	if len(h) != 1 || h[0].FromStatus != asset.DeviceInUse || h[0].ActionBy != f.admin.UserID {
		t.Errorf("history = %+v", h)
	}

	_, err = f.c.RejectReport(f.ctx, f.admin, report.ID, "again", asset.DecisionKeep)
	wantKind(t, err, asset.KindInvalidState)
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	d := f.device("LT-1", asset.DeviceInUse)
	f.recorder.FailWith(errors.New("broker down"))

	report, err := f.c.CreateReport(f.ctx, f.holder, CreateReportInput{DeviceID: d.ID, Type: "x"})
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if _, err := f.c.GetReport(f.ctx, report.ID); err != nil {
		t.Errorf("report not persisted: %v", err)
	}
	if len(f.recorder.Records()) != 1 {
		t.Errorf("dispatch not attempted")
	}
}
