package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const deviceColumns = `id, code, name, model_name, status, assigned_user_id, department_id,
	purchase_price, purchase_date, created_at, updated_at`

func scanDevice(row pgx.Row) (*asset.Device, error) {
	var d asset.Device
	err := row.Scan(
		&d.ID, &d.Code, &d.Name, &d.ModelName, &d.Status, &d.AssignedUserID, &d.DepartmentID,
		&d.PurchasePrice, &d.PurchaseDate, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (t *pgTx) GetDevice(ctx context.Context, id uuid.UUID) (*asset.Device, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`+t.forUpdate(), id)
	d, err := scanDevice(row)
	if err != nil {
		return nil, mapErr(err, "device "+id.String())
	}
	return d, nil
}

func (t *pgTx) ListDevices(ctx context.Context, filter DeviceFilter) ([]asset.Device, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.ModelName != "" {
		args = append(args, filter.ModelName)
		where = append(where, fmt.Sprintf("model_name = $%d", len(args)))
	}
	if filter.Unassigned {
		where = append(where, "assigned_user_id IS NULL AND department_id IS NULL")
	}

	sql := `SELECT ` + deviceColumns + ` FROM devices`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY code"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := make([]asset.Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

func (t *pgTx) CreateDevice(ctx context.Context, d *asset.Device) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO devices (id, code, name, model_name, status, assigned_user_id, department_id,
			purchase_price, purchase_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, d.ID, d.Code, d.Name, d.ModelName, d.Status, d.AssignedUserID, d.DepartmentID,
		d.PurchasePrice, d.PurchaseDate,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	return mapErr(err, "device "+d.ID.String())
}

func (t *pgTx) UpdateDevice(ctx context.Context, d *asset.Device) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE devices
		SET status = $2, assigned_user_id = $3, department_id = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, d.ID, d.Status, d.AssignedUserID, d.DepartmentID).Scan(&d.UpdatedAt)
	return mapErr(err, "device "+d.ID.String())
}

func (t *pgTx) AppendHistory(ctx context.Context, e *asset.DeviceHistory) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO device_history (id, device_id, action, from_status, to_status, action_by, action_date, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.DeviceID, e.Action, e.FromStatus, e.ToStatus, e.ActionBy, e.ActionDate, e.Description)
	return mapErr(err, "device history")
}

func (t *pgTx) ListHistory(ctx context.Context, deviceID uuid.UUID) ([]asset.DeviceHistory, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, device_id, action, from_status, to_status, action_by, action_date, description
		FROM device_history
		WHERE device_id = $1
		ORDER BY action_date DESC
	`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device history: %w", err)
	}
	defer rows.Close()

	entries := make([]asset.DeviceHistory, 0)
	for rows.Next() {
		var e asset.DeviceHistory
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Action, &e.FromStatus, &e.ToStatus,
			&e.ActionBy, &e.ActionDate, &e.Description); err != nil {
			return nil, fmt.Errorf("failed to scan device history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (t *pgTx) OpenAssignment(ctx context.Context, deviceID uuid.UUID) (*asset.DeviceAssignment, error) {
	var a asset.DeviceAssignment
	err := t.tx.QueryRow(ctx, `
		SELECT id, device_id, user_id, department_id, assigned_by, assigned_at, released_at, note
		FROM device_assignments
		WHERE device_id = $1 AND released_at IS NULL`+t.forUpdate(), deviceID).Scan(
		&a.ID, &a.DeviceID, &a.UserID, &a.DepartmentID, &a.AssignedBy, &a.AssignedAt, &a.ReleasedAt, &a.Note,
	)
	if err != nil {
		return nil, mapErr(err, "open assignment for device "+deviceID.String())
	}
	return &a, nil
}

func (t *pgTx) CreateAssignment(ctx context.Context, a *asset.DeviceAssignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO device_assignments (id, device_id, user_id, department_id, assigned_by, assigned_at, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.DeviceID, a.UserID, a.DepartmentID, a.AssignedBy, a.AssignedAt, a.Note)
	return mapErr(err, "assignment for device "+a.DeviceID.String())
}

func (t *pgTx) ReleaseAssignment(ctx context.Context, id uuid.UUID, at time.Time) error {
	return execOne(ctx, t.tx, "assignment "+id.String(), `
		UPDATE device_assignments SET released_at = $2 WHERE id = $1 AND released_at IS NULL
	`, id, at)
}

func (t *pgTx) GetUser(ctx context.Context, id uuid.UUID) (*asset.User, error) {
	var u asset.User
	err := t.tx.QueryRow(ctx, `
		SELECT id, username, full_name, role, position, department_id FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &u.Position, &u.DepartmentID)
	if err != nil {
		return nil, mapErr(err, "user "+id.String())
	}
	return &u, nil
}

func (t *pgTx) CreateUser(ctx context.Context, u *asset.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO users (id, username, full_name, role, position, department_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Username, u.FullName, u.Role, u.Position, u.DepartmentID)
	return mapErr(err, "user "+u.Username)
}

func (t *pgTx) ListUsersByRole(ctx context.Context, role asset.Role) ([]asset.User, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, username, full_name, role, position, department_id
		FROM users WHERE role = $1 ORDER BY username
	`, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]asset.User, 0)
	for rows.Next() {
		var u asset.User
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &u.Position, &u.DepartmentID); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
