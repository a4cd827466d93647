package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func sample() Notification {
	return Notification{
		UserIDs:    []uuid.UUID{uuid.New(), uuid.New()},
		Title:      "Repair confirmed",
		Content:    "Device LT-1 is back in use",
		Event:      EventRepairConfirmed,
		EntityType: "repair",
		EntityID:   uuid.New(),
		CreatedAt:  time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := NewRecorder()
	failing := NewRecorder()
	boom := errors.New("broker down")
	failing.FailWith(boom)

	m := Multi{ok, failing, NewLogDispatcher(zap.NewNop())}
	err := m.Notify(context.Background(), sample())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(ok.Records()) != 1 || len(failing.Records()) != 1 {
		t.Errorf("every dispatcher should see the notification")
	}
}

func TestRecorderByEvent(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()
	n := sample()
	_ = r.Notify(ctx, n)
	n.Event = EventIncidentCreated
	_ = r.Notify(ctx, n)

	if got := len(r.ByEvent(EventIncidentCreated)); got != 1 {
		t.Errorf("ByEvent = %d, want 1", got)
	}
	r.Reset()
	if len(r.Records()) != 0 {
		t.Errorf("Reset kept records")
	}
}

func TestEncodeDecode(t *testing.T) {
	n := sample()
	for _, enc := range []string{EncodingJSON, EncodingProtobuf} {
		t.Run(enc, func(t *testing.T) {
			msg, err := Encode(n, enc)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if msg.Type != n.Event {
				t.Errorf("type = %q", msg.Type)
			}
			got, err := Decode(msg)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got["event"] != n.Event || got["entity_id"] != n.EntityID.String() {
				t.Errorf("decoded %v", got)
			}
			users, ok := got["user_ids"].([]any)
			if !ok || len(users) != 2 || users[0] != n.UserIDs[0].String() {
				t.Errorf("user_ids = %v", got["user_ids"])
			}
		})
	}

	if _, err := Encode(n, "xml"); err == nil {
		t.Error("unknown encoding accepted")
	}
}
