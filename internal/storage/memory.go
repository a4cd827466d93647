package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"github.com/google/uuid"
)

type memoryState struct {
	devices      map[uuid.UUID]asset.Device
	history      map[uuid.UUID][]asset.DeviceHistory
	assignments  map[uuid.UUID]asset.DeviceAssignment
	incidents    map[uuid.UUID]asset.IncidentReport
	repairs      map[uuid.UUID]asset.Repair
	replacements map[uuid.UUID]asset.Replacement
	liquidations map[uuid.UUID]asset.Liquidation
	users        map[uuid.UUID]asset.User
}

func newMemoryState() memoryState {
	return memoryState{
		devices:      map[uuid.UUID]asset.Device{},
		history:      map[uuid.UUID][]asset.DeviceHistory{},
		assignments:  map[uuid.UUID]asset.DeviceAssignment{},
		incidents:    map[uuid.UUID]asset.IncidentReport{},
		repairs:      map[uuid.UUID]asset.Repair{},
		replacements: map[uuid.UUID]asset.Replacement{},
		liquidations: map[uuid.UUID]asset.Liquidation{},
		users:        map[uuid.UUID]asset.User{},
	}
}

func (s memoryState) clone() memoryState {
	c := newMemoryState()
	for k, v := range s.devices {
		c.devices[k] = v
	}
	for k, v := range s.history {
		entries := make([]asset.DeviceHistory, len(v))
		copy(entries, v)
		c.history[k] = entries
	}
	for k, v := range s.assignments {
		c.assignments[k] = v
	}
	for k, v := range s.incidents {
		c.incidents[k] = v
	}
	for k, v := range s.repairs {
		v.Images = append([]string(nil), v.Images...)
		c.repairs[k] = v
	}
	for k, v := range s.replacements {
		c.replacements[k] = v
	}
	for k, v := range s.liquidations {
		c.liquidations[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

// MemoryStore keeps all state in process. Transactions are serialized and run
// against a cloned state that replaces the live one only on success.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: newMemoryState(),
		nowFn: time.Now,
	}
}

// WithClock replaces the clock used for CreatedAt and UpdatedAt stamps.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	s.nowFn = now
	s.mu.Unlock()
	return s
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{state: s.state.clone(), now: s.nowFn()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memoryTx{state: snapshot, now: s.nowFn(), readOnly: true})
}

func (s *MemoryStore) Close() {}

type memoryTx struct {
	state    memoryState
	now      time.Time
	readOnly bool
}

var errReadOnly = fmt.Errorf("write in read-only transaction")

func (t *memoryTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *memoryTx) GetDevice(_ context.Context, id uuid.UUID) (*asset.Device, error) {
	d, ok := t.state.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", id, ErrNotFound)
	}
	return &d, nil
}

func (t *memoryTx) ListDevices(_ context.Context, filter DeviceFilter) ([]asset.Device, error) {
	out := make([]asset.Device, 0)
	for _, d := range t.state.devices {
		if filter.matches(&d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return limit(out, filter.Limit), nil
}

func (t *memoryTx) CreateDevice(_ context.Context, device *asset.Device) error {
	if err := t.writable(); err != nil {
		return err
	}
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	if _, exists := t.state.devices[device.ID]; exists {
		return fmt.Errorf("device %s: %w", device.ID, ErrDuplicate)
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = t.now
	}
	device.UpdatedAt = t.now
	t.state.devices[device.ID] = *device
	return nil
}

func (t *memoryTx) UpdateDevice(_ context.Context, device *asset.Device) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.devices[device.ID]; !ok {
		return fmt.Errorf("device %s: %w", device.ID, ErrNotFound)
	}
	device.UpdatedAt = t.now
	t.state.devices[device.ID] = *device
	return nil
}

func (t *memoryTx) AppendHistory(_ context.Context, entry *asset.DeviceHistory) error {
	if err := t.writable(); err != nil {
		return err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	t.state.history[entry.DeviceID] = append(t.state.history[entry.DeviceID], *entry)
	return nil
}

func (t *memoryTx) ListHistory(_ context.Context, deviceID uuid.UUID) ([]asset.DeviceHistory, error) {
	entries := t.state.history[deviceID]
	out := make([]asset.DeviceHistory, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (t *memoryTx) OpenAssignment(_ context.Context, deviceID uuid.UUID) (*asset.DeviceAssignment, error) {
	for _, a := range t.state.assignments {
		if a.DeviceID == deviceID && a.ReleasedAt == nil {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("open assignment for device %s: %w", deviceID, ErrNotFound)
}

func (t *memoryTx) CreateAssignment(_ context.Context, a *asset.DeviceAssignment) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, existing := range t.state.assignments {
		if existing.DeviceID == a.DeviceID && existing.ReleasedAt == nil {
			return fmt.Errorf("open assignment for device %s: %w", a.DeviceID, ErrDuplicate)
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	t.state.assignments[a.ID] = *a
	return nil
}

func (t *memoryTx) ReleaseAssignment(_ context.Context, id uuid.UUID, at time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	a, ok := t.state.assignments[id]
	if !ok {
		return fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	a.ReleasedAt = &at
	t.state.assignments[id] = a
	return nil
}

func (t *memoryTx) CreateIncident(_ context.Context, report *asset.IncidentReport) error {
	if err := t.writable(); err != nil {
		return err
	}
	if report.Status == asset.IncidentPending {
		for _, existing := range t.state.incidents {
			if existing.DeviceID == report.DeviceID && existing.Status == asset.IncidentPending {
				return fmt.Errorf("pending incident for device %s: %w", report.DeviceID, ErrDuplicate)
			}
		}
	}
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = t.now
	}
	report.UpdatedAt = t.now
	t.state.incidents[report.ID] = *report
	return nil
}

func (t *memoryTx) GetIncident(_ context.Context, id uuid.UUID) (*asset.IncidentReport, error) {
	r, ok := t.state.incidents[id]
	if !ok {
		return nil, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	return &r, nil
}

func (t *memoryTx) UpdateIncident(_ context.Context, report *asset.IncidentReport) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.incidents[report.ID]; !ok {
		return fmt.Errorf("incident %s: %w", report.ID, ErrNotFound)
	}
	report.UpdatedAt = t.now
	t.state.incidents[report.ID] = *report
	return nil
}

func (t *memoryTx) PendingIncident(_ context.Context, deviceID uuid.UUID) (*asset.IncidentReport, error) {
	for _, r := range t.state.incidents {
		if r.DeviceID == deviceID && r.Status == asset.IncidentPending {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("pending incident for device %s: %w", deviceID, ErrNotFound)
}

func (t *memoryTx) ListIncidents(_ context.Context, filter asset.IncidentFilter) ([]asset.IncidentReport, error) {
	out := make([]asset.IncidentReport, 0)
	for _, r := range t.state.incidents {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.DeviceID != nil && r.DeviceID != *filter.DeviceID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return limit(out, filter.Limit), nil
}

func (t *memoryTx) CreateRepair(_ context.Context, repair *asset.Repair) error {
	if err := t.writable(); err != nil {
		return err
	}
	if repair.Status.Active() {
		for _, existing := range t.state.repairs {
			if existing.DeviceID == repair.DeviceID && existing.Status.Active() {
				return fmt.Errorf("active repair for device %s: %w", repair.DeviceID, ErrDuplicate)
			}
		}
	}
	if repair.ID == uuid.Nil {
		repair.ID = uuid.New()
	}
	if repair.CreatedAt.IsZero() {
		repair.CreatedAt = t.now
	}
	repair.UpdatedAt = t.now
	r := *repair
	r.Images = append([]string(nil), repair.Images...)
	t.state.repairs[r.ID] = r
	return nil
}

func (t *memoryTx) GetRepair(_ context.Context, id uuid.UUID) (*asset.Repair, error) {
	r, ok := t.state.repairs[id]
	if !ok {
		return nil, fmt.Errorf("repair %s: %w", id, ErrNotFound)
	}
	r.Images = append([]string(nil), r.Images...)
	return &r, nil
}

func (t *memoryTx) UpdateRepair(_ context.Context, repair *asset.Repair) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.repairs[repair.ID]; !ok {
		return fmt.Errorf("repair %s: %w", repair.ID, ErrNotFound)
	}
	repair.UpdatedAt = t.now
	r := *repair
	r.Images = append([]string(nil), repair.Images...)
	t.state.repairs[r.ID] = r
	return nil
}

func (t *memoryTx) ActiveRepair(_ context.Context, deviceID uuid.UUID) (*asset.Repair, error) {
	for _, r := range t.state.repairs {
		if r.DeviceID == deviceID && r.Status.Active() {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("active repair for device %s: %w", deviceID, ErrNotFound)
}

func (t *memoryTx) ListRepairs(_ context.Context, filter asset.RepairFilter) ([]asset.Repair, error) {
	out := make([]asset.Repair, 0)
	for _, r := range t.state.repairs {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.TechnicianID != nil && !r.AssignedTo(*filter.TechnicianID) {
			continue
		}
		if filter.DeviceID != nil && r.DeviceID != *filter.DeviceID {
			continue
		}
		r.Images = append([]string(nil), r.Images...)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return limit(out, filter.Limit), nil
}

func (t *memoryTx) CreateReplacement(_ context.Context, r *asset.Replacement) error {
	if err := t.writable(); err != nil {
		return err
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	t.state.replacements[r.ID] = *r
	return nil
}

func (t *memoryTx) CreateLiquidation(_ context.Context, l *asset.Liquidation) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, existing := range t.state.liquidations {
		if existing.DeviceID == l.DeviceID {
			return fmt.Errorf("liquidation for device %s: %w", l.DeviceID, ErrDuplicate)
		}
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = t.now
	}
	t.state.liquidations[l.ID] = *l
	return nil
}

func (t *memoryTx) GetUser(_ context.Context, id uuid.UUID) (*asset.User, error) {
	u, ok := t.state.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return &u, nil
}

func (t *memoryTx) CreateUser(_ context.Context, user *asset.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if _, exists := t.state.users[user.ID]; exists {
		return fmt.Errorf("user %s: %w", user.ID, ErrDuplicate)
	}
	t.state.users[user.ID] = *user
	return nil
}

func (t *memoryTx) ListUsersByRole(_ context.Context, role asset.Role) ([]asset.User, error) {
	out := make([]asset.User, 0)
	for _, u := range t.state.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
