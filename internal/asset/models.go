package asset

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleTechnician Role = "technician"
	RoleUser       Role = "user"
)

// User is the read-only identity directory entry used for notification fan-out.
type User struct {
	ID           uuid.UUID  `json:"id" yaml:"id"`
	Username     string     `json:"username" yaml:"username"`
	FullName     string     `json:"full_name" yaml:"full_name"`
	Role         Role       `json:"role" yaml:"role"`
	Position     string     `json:"position,omitempty" yaml:"position"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty" yaml:"department_id"`
}

type Device struct {
	ID             uuid.UUID    `json:"id" yaml:"id"`
	Code           string       `json:"code" yaml:"code"`
	Name           string       `json:"name" yaml:"name"`
	ModelName      string       `json:"model_name" yaml:"model_name"`
	Status         DeviceStatus `json:"status" yaml:"status"`
	AssignedUserID *uuid.UUID   `json:"assigned_user_id,omitempty" yaml:"assigned_user_id"`
	DepartmentID   *uuid.UUID   `json:"department_id,omitempty" yaml:"department_id"`
	PurchasePrice  float64      `json:"purchase_price" yaml:"purchase_price"`
	PurchaseDate   *time.Time   `json:"purchase_date,omitempty" yaml:"purchase_date"`
	CreatedAt      time.Time    `json:"created_at" yaml:"-"`
	UpdatedAt      time.Time    `json:"updated_at" yaml:"-"`
}

// Assigned reports whether the device currently has a holder.
func (d *Device) Assigned() bool {
	return d.AssignedUserID != nil || d.DepartmentID != nil
}

type DeviceAssignment struct {
	ID           uuid.UUID  `json:"id"`
	DeviceID     uuid.UUID  `json:"device_id"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
	AssignedBy   uuid.UUID  `json:"assigned_by"`
	AssignedAt   time.Time  `json:"assigned_at"`
	ReleasedAt   *time.Time `json:"released_at,omitempty"`
	Note         string     `json:"note,omitempty"`
}

// DeviceHistory is one append-only entry of the status ledger.
type DeviceHistory struct {
	ID          uuid.UUID    `json:"id"`
	DeviceID    uuid.UUID    `json:"device_id"`
	Action      string       `json:"action"`
	FromStatus  DeviceStatus `json:"from_status"`
	ToStatus    DeviceStatus `json:"to_status"`
	ActionBy    uuid.UUID    `json:"action_by"`
	ActionDate  time.Time    `json:"action_date"`
	Description string       `json:"description,omitempty"`
}

type IncidentReport struct {
	ID             uuid.UUID      `json:"id"`
	DeviceID       uuid.UUID      `json:"device_id"`
	ReporterID     uuid.UUID      `json:"reporter_id"`
	ReportType     string         `json:"report_type"`
	Description    string         `json:"description"`
	ImageURL       string         `json:"image_url,omitempty"`
	Status         IncidentStatus `json:"status"`
	ApprovedBy     *uuid.UUID     `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time     `json:"approved_at,omitempty"`
	RejectedBy     *uuid.UUID     `json:"rejected_by,omitempty"`
	RejectedAt     *time.Time     `json:"rejected_at,omitempty"`
	RejectReason   string         `json:"reject_reason,omitempty"`
	RejectDecision RejectDecision `json:"reject_decision,omitempty"`
	RepairID       *uuid.UUID     `json:"repair_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type Repair struct {
	ID                   uuid.UUID    `json:"id"`
	DeviceID             uuid.UUID    `json:"device_id"`
	IncidentReportID     *uuid.UUID   `json:"incident_report_id,omitempty"`
	Status               RepairStatus `json:"status"`
	TechnicianID         *uuid.UUID   `json:"technician_id,omitempty"`
	AssignedBy           *uuid.UUID   `json:"assigned_by,omitempty"`
	AssignNote           string       `json:"assign_note,omitempty"`
	Cost                 float64      `json:"cost"`
	LaborHours           float64      `json:"labor_hours"`
	Company              string       `json:"company,omitempty"`
	Description          string       `json:"description,omitempty"`
	Images               []string     `json:"images,omitempty"`
	RejectReason         string       `json:"reject_reason,omitempty"`
	Note                 string       `json:"note,omitempty"`
	PreviousDeviceStatus DeviceStatus `json:"previous_device_status"`
	CreatedBy            uuid.UUID    `json:"created_by"`
	CreatedAt            time.Time    `json:"created_at"`
	AcceptedAt           *time.Time   `json:"accepted_at,omitempty"`
	CompletedAt          *time.Time   `json:"completed_at,omitempty"`
	ConfirmedBy          *uuid.UUID   `json:"confirmed_by,omitempty"`
	ConfirmedAt          *time.Time   `json:"confirmed_at,omitempty"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// AssignedTo reports whether userID is the repair's technician.
func (r *Repair) AssignedTo(userID uuid.UUID) bool {
	return r.TechnicianID != nil && *r.TechnicianID == userID
}

// Replacement is the immutable record of a device swap.
type Replacement struct {
	ID               uuid.UUID  `json:"id"`
	OldDeviceID      uuid.UUID  `json:"old_device_id"`
	NewDeviceID      uuid.UUID  `json:"new_device_id"`
	Reason           string     `json:"reason"`
	IncidentReportID *uuid.UUID `json:"incident_report_id,omitempty"`
	ReplacedBy       uuid.UUID  `json:"replaced_by"`
	ReplacedAt       time.Time  `json:"replaced_at"`
}

// Liquidation is the immutable disposal record of a device.
type Liquidation struct {
	ID              uuid.UUID `json:"id"`
	DeviceID        uuid.UUID `json:"device_id"`
	Reason          string    `json:"reason"`
	LiquidationDate time.Time `json:"liquidation_date"`
	ApprovedBy      uuid.UUID `json:"approved_by"`
	CreatedAt       time.Time `json:"created_at"`
}

type IncidentFilter struct {
	Status   *IncidentStatus
	DeviceID *uuid.UUID
	Limit    int
}

type RepairFilter struct {
	Status       *RepairStatus
	TechnicianID *uuid.UUID
	DeviceID     *uuid.UUID
	Limit        int
}
