package asset

import "fmt"

// DeviceStatus is the stored label of a device's operational status.
type DeviceStatus string

const (
	DeviceUnassigned         DeviceStatus = "Chưa cấp phát"
	DeviceInUse              DeviceStatus = "Đang sử dụng"
	DeviceBroken             DeviceStatus = "Đã hỏng"
	DeviceUnderRepair        DeviceStatus = "Đang sửa chữa"
	DeviceReplaced           DeviceStatus = "Đã thay thế"
	DevicePendingLiquidation DeviceStatus = "Chờ thanh lý"
	DeviceLiquidated         DeviceStatus = "Đã thanh lý"
)

var deviceStatuses = []DeviceStatus{
	DeviceUnassigned,
	DeviceInUse,
	DeviceBroken,
	DeviceUnderRepair,
	DeviceReplaced,
	DevicePendingLiquidation,
	DeviceLiquidated,
}

// DeviceStatuses returns the closed set of device statuses.
func DeviceStatuses() []DeviceStatus {
	out := make([]DeviceStatus, len(deviceStatuses))
	copy(out, deviceStatuses)
	return out
}

// Valid reports whether s is a member of the fixed status set.
func (s DeviceStatus) Valid() bool {
	for _, st := range deviceStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition may target a device in s.
func (s DeviceStatus) Terminal() bool {
	return s == DeviceReplaced || s == DeviceLiquidated
}

// LiquidationCandidate reports whether a device in s may be disposed of.
func (s DeviceStatus) LiquidationCandidate() bool {
	return s == DeviceBroken || s == DevicePendingLiquidation
}

func ParseDeviceStatus(v string) (DeviceStatus, error) {
	s := DeviceStatus(v)
	if !s.Valid() {
		return "", Errorf(KindValidation, "parse_device_status", "unknown device status %q", v)
	}
	return s, nil
}

// IncidentStatus tracks an incident report through triage.
type IncidentStatus int

const (
	IncidentPending IncidentStatus = iota
	IncidentApproved
	IncidentRejected
	IncidentReplaced
)

func (s IncidentStatus) String() string {
	switch s {
	case IncidentPending:
		return "pending"
	case IncidentApproved:
		return "approved"
	case IncidentRejected:
		return "rejected"
	case IncidentReplaced:
		return "replaced"
	default:
		return fmt.Sprintf("incident_status(%d)", int(s))
	}
}

func (s IncidentStatus) Valid() bool {
	return s >= IncidentPending && s <= IncidentReplaced
}

// RejectDecision is what happens to the device when an incident is rejected.
type RejectDecision string

const (
	DecisionKeep      RejectDecision = "keep"
	DecisionLiquidate RejectDecision = "liquidate"
)

func (d RejectDecision) Valid() bool {
	return d == DecisionKeep || d == DecisionLiquidate
}

// RepairStatus is the stored integer state of a repair work order.
type RepairStatus int

const (
	RepairChoThucHien     RepairStatus = 0 // awaiting assignment/acceptance
	RepairDangSua         RepairStatus = 1 // in progress
	RepairChoDuyetHoanTat RepairStatus = 2 // awaiting admin confirmation
	RepairDaHoanTat       RepairStatus = 3 // completed
	RepairTuChoi          RepairStatus = 4 // rejected by technician
	RepairKhongCanSua     RepairStatus = 5 // not needed
)

func (s RepairStatus) String() string {
	switch s {
	case RepairChoThucHien:
		return "ChoThucHien"
	case RepairDangSua:
		return "DangSua"
	case RepairChoDuyetHoanTat:
		return "ChoDuyetHoanTat"
	case RepairDaHoanTat:
		return "DaHoanTat"
	case RepairTuChoi:
		return "TuChoi"
	case RepairKhongCanSua:
		return "KhongCanSua"
	default:
		return fmt.Sprintf("repair_status(%d)", int(s))
	}
}

func (s RepairStatus) Valid() bool {
	return s >= RepairChoThucHien && s <= RepairKhongCanSua
}

// Active reports whether the repair still blocks other work on its device.
func (s RepairStatus) Active() bool {
	return s == RepairChoThucHien || s == RepairDangSua || s == RepairChoDuyetHoanTat
}

func (s RepairStatus) Terminal() bool {
	return s.Valid() && !s.Active()
}

// RepairAction is an operation applied to a repair.
type RepairAction string

const (
	RepairAssign    RepairAction = "assign"
	RepairAccept    RepairAction = "accept"
	RepairComplete  RepairAction = "complete"
	RepairConfirm   RepairAction = "confirm"
	RepairReject    RepairAction = "reject"
	RepairNotNeeded RepairAction = "not_needed"
)

type repairEdge struct {
	from   RepairStatus
	action RepairAction
}

// repairTransitions is the full from-state x action table. Pairs missing from
// the table are invalid.
var repairTransitions = map[repairEdge]RepairStatus{
	{RepairChoThucHien, RepairAssign}:      RepairChoThucHien,
	{RepairChoThucHien, RepairAccept}:      RepairDangSua,
	{RepairDangSua, RepairComplete}:        RepairChoDuyetHoanTat,
	{RepairChoDuyetHoanTat, RepairConfirm}: RepairDaHoanTat,
	{RepairChoThucHien, RepairReject}:      RepairTuChoi,
	{RepairChoThucHien, RepairNotNeeded}:   RepairKhongCanSua,
}

// NextRepairStatus resolves the target state of action applied in from.
func NextRepairStatus(from RepairStatus, action RepairAction) (RepairStatus, error) {
	to, ok := repairTransitions[repairEdge{from, action}]
	if !ok {
		return from, Errorf(KindInvalidState, string(action),
			"repair cannot %s from status %s", action, from)
	}
	return to, nil
}

var incidentTransitions = map[IncidentStatus][]IncidentStatus{
	IncidentPending: {IncidentApproved, IncidentRejected, IncidentReplaced},
}

// ValidateIncidentTransition checks an incident status change.
func ValidateIncidentTransition(from, to IncidentStatus) error {
	for _, allowed := range incidentTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return Errorf(KindInvalidState, "incident_transition",
		"invalid incident transition: %s -> %s", from, to)
}
