// Package notify delivers lifecycle notifications to users after a workflow
// transaction has committed.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event names double as broker routing key suffixes.
const (
	EventIncidentCreated  = "incident.created"
	EventIncidentApproved = "incident.approved"
	EventIncidentRejected = "incident.rejected"
	EventRepairAssigned   = "repair.assigned"
	EventRepairAccepted   = "repair.accepted"
	EventRepairCompleted  = "repair.completed"
	EventRepairConfirmed  = "repair.confirmed"
	EventRepairRejected   = "repair.rejected"
	EventRepairNotNeeded  = "repair.not_needed"
	EventDeviceReplaced   = "device.replaced"
	EventDeviceLiquidated = "device.liquidated"
)

type Notification struct {
	UserIDs    []uuid.UUID `json:"user_ids"`
	Title      string      `json:"title"`
	Content    string      `json:"content"`
	Event      string      `json:"event"`
	EntityType string      `json:"entity_type,omitempty"`
	EntityID   uuid.UUID   `json:"entity_id"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Dispatcher delivers a notification. Implementations must be safe for
// concurrent use.
type Dispatcher interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every dispatcher and joins their errors.
type Multi []Dispatcher

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, d := range m {
		if err := d.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogDispatcher writes notifications to the structured log.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Notify(_ context.Context, n Notification) error {
	recipients := make([]string, len(n.UserIDs))
	for i, id := range n.UserIDs {
		recipients[i] = id.String()
	}
	d.logger.Info("Notification dispatched",
		zap.String("event", n.Event),
		zap.String("title", n.Title),
		zap.String("entity_id", n.EntityID.String()),
		zap.Strings("recipients", recipients))
	return nil
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu      sync.Mutex
	records []Notification
	err     error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent Notify calls record and then return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.UserIDs = append([]uuid.UUID(nil), n.UserIDs...)
	r.records = append(r.records, n)
	return r.err
}

func (r *Recorder) Records() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.records))
	copy(out, r.records)
	return out
}

// ByEvent returns the recorded notifications of one event.
func (r *Recorder) ByEvent(event string) []Notification {
	var out []Notification
	for _, n := range r.Records() {
		if n.Event == event {
			out = append(out, n)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.records = nil
	r.mu.Unlock()
}
