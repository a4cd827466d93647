package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/KevinKickass/OpenAssetCore/internal/auth"
	"github.com/KevinKickass/OpenAssetCore/internal/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrQueueFull is returned by Notify when the delivery queue is saturated.
var ErrQueueFull = errors.New("websocket delivery queue full")

// TokenValidator resolves the bearer token of the auth frame.
type TokenValidator interface {
	Authenticate(token string) (auth.Identity, error)
}

type delivery struct {
	userIDs []uuid.UUID
	data    []byte
}

// Hub maintains authenticated clients and routes notifications to their users.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	deliver    chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu        sync.RWMutex
	logger    *zap.Logger
	validator TokenValidator
}

var _ notify.Dispatcher = (*Hub)(nil)

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger, validator TokenValidator) *Hub {
	return &Hub{
		deliver:    make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     logger,
		validator:  validator,
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket Hub started")
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("user_id", client.identity.UserID.String()),
				zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("user_id", client.identity.UserID.String()),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case d := <-h.deliver:
			targets := make(map[uuid.UUID]struct{}, len(d.userIDs))
			for _, id := range d.userIDs {
				targets[id] = struct{}{}
			}

			h.mu.Lock()
			for client := range h.clients {
				if _, ok := targets[client.identity.UserID]; !ok {
					continue
				}
				select {
				case client.send <- d.data:
				default:
					// Client send channel full - unregister slow/dead client
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client send buffer full, unregistering",
						zap.String("user_id", client.identity.UserID.String()))
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Notify queues n for every connected session of its recipients.
func (h *Hub) Notify(_ context.Context, n notify.Notification) error {
	if len(n.UserIDs) == 0 {
		return nil
	}
	data, err := json.Marshal(NewNotificationMessage(n))
	if err != nil {
		return err
	}

	select {
	case h.deliver <- delivery{userIDs: n.UserIDs, data: data}:
		return nil
	default:
		h.logger.Warn("Hub delivery channel full, notification dropped",
			zap.String("event", n.Event))
		return ErrQueueFull
	}
}

// ConnectedClients returns the number of authenticated sessions.
func (h *Hub) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ConnectedUsers returns the number of distinct users with a session.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make(map[uuid.UUID]struct{}, len(h.clients))
	for client := range h.clients {
		users[client.identity.UserID] = struct{}{}
	}
	return len(users)
}
