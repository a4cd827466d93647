package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const incidentColumns = `id, device_id, reporter_id, report_type, description, image_url, status,
	approved_by, approved_at, rejected_by, rejected_at, reject_reason, reject_decision, repair_id,
	created_at, updated_at`

func scanIncident(row pgx.Row) (*asset.IncidentReport, error) {
	var r asset.IncidentReport
	err := row.Scan(
		&r.ID, &r.DeviceID, &r.ReporterID, &r.ReportType, &r.Description, &r.ImageURL, &r.Status,
		&r.ApprovedBy, &r.ApprovedAt, &r.RejectedBy, &r.RejectedAt, &r.RejectReason, &r.RejectDecision,
		&r.RepairID, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *pgTx) CreateIncident(ctx context.Context, r *asset.IncidentReport) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO incident_reports (id, device_id, reporter_id, report_type, description, image_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, r.ID, r.DeviceID, r.ReporterID, r.ReportType, r.Description, r.ImageURL, r.Status,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	return mapErr(err, "incident for device "+r.DeviceID.String())
}

func (t *pgTx) GetIncident(ctx context.Context, id uuid.UUID) (*asset.IncidentReport, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incident_reports WHERE id = $1`+t.forUpdate(), id)
	r, err := scanIncident(row)
	if err != nil {
		return nil, mapErr(err, "incident "+id.String())
	}
	return r, nil
}

func (t *pgTx) UpdateIncident(ctx context.Context, r *asset.IncidentReport) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE incident_reports
		SET status = $2, approved_by = $3, approved_at = $4, rejected_by = $5, rejected_at = $6,
			reject_reason = $7, reject_decision = $8, repair_id = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, r.ID, r.Status, r.ApprovedBy, r.ApprovedAt, r.RejectedBy, r.RejectedAt,
		r.RejectReason, r.RejectDecision, r.RepairID,
	).Scan(&r.UpdatedAt)
	return mapErr(err, "incident "+r.ID.String())
}

func (t *pgTx) PendingIncident(ctx context.Context, deviceID uuid.UUID) (*asset.IncidentReport, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+incidentColumns+`
		FROM incident_reports WHERE device_id = $1 AND status = $2`+t.forUpdate(),
		deviceID, asset.IncidentPending)
	r, err := scanIncident(row)
	if err != nil {
		return nil, mapErr(err, "pending incident for device "+deviceID.String())
	}
	return r, nil
}

func (t *pgTx) ListIncidents(ctx context.Context, filter asset.IncidentFilter) ([]asset.IncidentReport, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.DeviceID != nil {
		args = append(args, *filter.DeviceID)
		where = append(where, fmt.Sprintf("device_id = $%d", len(args)))
	}
	sql := `SELECT ` + incidentColumns + ` FROM incident_reports`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	reports := make([]asset.IncidentReport, 0)
	for rows.Next() {
		r, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

const repairColumns = `id, device_id, incident_report_id, status, technician_id, assigned_by, assign_note,
	cost, labor_hours, company, description, images, reject_reason, note, previous_device_status,
	created_by, created_at, accepted_at, completed_at, confirmed_by, confirmed_at, updated_at`

func scanRepair(row pgx.Row) (*asset.Repair, error) {
	var r asset.Repair
	err := row.Scan(
		&r.ID, &r.DeviceID, &r.IncidentReportID, &r.Status, &r.TechnicianID, &r.AssignedBy, &r.AssignNote,
		&r.Cost, &r.LaborHours, &r.Company, &r.Description, &r.Images, &r.RejectReason, &r.Note,
		&r.PreviousDeviceStatus, &r.CreatedBy, &r.CreatedAt, &r.AcceptedAt, &r.CompletedAt,
		&r.ConfirmedBy, &r.ConfirmedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *pgTx) CreateRepair(ctx context.Context, r *asset.Repair) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	images := r.Images
	if images == nil {
		images = []string{}
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO repairs (id, device_id, incident_report_id, status, technician_id, assigned_by,
			assign_note, images, previous_device_status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, r.ID, r.DeviceID, r.IncidentReportID, r.Status, r.TechnicianID, r.AssignedBy,
		r.AssignNote, images, r.PreviousDeviceStatus, r.CreatedBy,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	return mapErr(err, "repair for device "+r.DeviceID.String())
}

func (t *pgTx) GetRepair(ctx context.Context, id uuid.UUID) (*asset.Repair, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+repairColumns+` FROM repairs WHERE id = $1`+t.forUpdate(), id)
	r, err := scanRepair(row)
	if err != nil {
		return nil, mapErr(err, "repair "+id.String())
	}
	return r, nil
}

func (t *pgTx) UpdateRepair(ctx context.Context, r *asset.Repair) error {
	images := r.Images
	if images == nil {
		images = []string{}
	}
	err := t.tx.QueryRow(ctx, `
		UPDATE repairs
		SET status = $2, technician_id = $3, assigned_by = $4, assign_note = $5, cost = $6,
			labor_hours = $7, company = $8, description = $9, images = $10, reject_reason = $11,
			note = $12, accepted_at = $13, completed_at = $14, confirmed_by = $15, confirmed_at = $16,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, r.ID, r.Status, r.TechnicianID, r.AssignedBy, r.AssignNote, r.Cost,
		r.LaborHours, r.Company, r.Description, images, r.RejectReason,
		r.Note, r.AcceptedAt, r.CompletedAt, r.ConfirmedBy, r.ConfirmedAt,
	).Scan(&r.UpdatedAt)
	return mapErr(err, "repair "+r.ID.String())
}

func (t *pgTx) ActiveRepair(ctx context.Context, deviceID uuid.UUID) (*asset.Repair, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+repairColumns+`
		FROM repairs WHERE device_id = $1 AND status IN (0, 1, 2)`+t.forUpdate(), deviceID)
	r, err := scanRepair(row)
	if err != nil {
		return nil, mapErr(err, "active repair for device "+deviceID.String())
	}
	return r, nil
}

func (t *pgTx) ListRepairs(ctx context.Context, filter asset.RepairFilter) ([]asset.Repair, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.TechnicianID != nil {
		args = append(args, *filter.TechnicianID)
		where = append(where, fmt.Sprintf("technician_id = $%d", len(args)))
	}
	if filter.DeviceID != nil {
		args = append(args, *filter.DeviceID)
		where = append(where, fmt.Sprintf("device_id = $%d", len(args)))
	}
	sql := `SELECT ` + repairColumns + ` FROM repairs`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query repairs: %w", err)
	}
	defer rows.Close()

	repairs := make([]asset.Repair, 0)
	for rows.Next() {
		r, err := scanRepair(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repair: %w", err)
		}
		repairs = append(repairs, *r)
	}
	return repairs, rows.Err()
}

func (t *pgTx) CreateReplacement(ctx context.Context, r *asset.Replacement) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO replacements (id, old_device_id, new_device_id, reason, incident_report_id, replaced_by, replaced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.OldDeviceID, r.NewDeviceID, r.Reason, r.IncidentReportID, r.ReplacedBy, r.ReplacedAt)
	return mapErr(err, "replacement of device "+r.OldDeviceID.String())
}

func (t *pgTx) CreateLiquidation(ctx context.Context, l *asset.Liquidation) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO liquidations (id, device_id, reason, liquidation_date, approved_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, l.ID, l.DeviceID, l.Reason, l.LiquidationDate, l.ApprovedBy).Scan(&l.CreatedAt)
	return mapErr(err, "liquidation of device "+l.DeviceID.String())
}
