package websocket

import (
	"time"

	"github.com/KevinKickass/OpenAssetCore/internal/notify"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeAuth        MessageType = "auth"
	MessageTypeAuthSuccess MessageType = "auth_success"
	MessageTypeAuthFailed  MessageType = "auth_failed"

	MessageTypeNotification MessageType = "notification"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data,omitempty"`
}

// AuthRequest is the first frame a client must send.
type AuthRequest struct {
	Type  MessageType `json:"type"`
	Token string      `json:"token"`
}

type AuthResultData struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// NotificationData is the payload pushed to each recipient.
type NotificationData struct {
	Event      string    `json:"event"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   string    `json:"entity_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewNotificationMessage(n notify.Notification) Message {
	return NewMessage(MessageTypeNotification, NotificationData{
		Event:      n.Event,
		Title:      n.Title,
		Content:    n.Content,
		EntityType: n.EntityType,
		EntityID:   n.EntityID.String(),
		CreatedAt:  n.CreatedAt,
	})
}
