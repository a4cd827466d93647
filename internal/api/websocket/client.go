package websocket

import (
	"net/http"
	"time"

	"github.com/KevinKickass/OpenAssetCore/internal/auth"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the auth frame after the upgrade
	authWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one authenticated WebSocket session.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	logger   *zap.Logger
	identity auth.Identity
}

// serve runs the auth handshake and then the read and write pumps.
func (c *Client) serve() {
	if !c.authenticate() {
		c.conn.Close()
		return
	}

	// Registered before the ack so nothing addressed to the user is missed.
	if !c.hub.add(c) {
		c.conn.Close()
		return
	}
	c.reply(NewMessage(MessageTypeAuthSuccess, AuthResultData{
		UserID: c.identity.UserID.String(),
		Role:   string(c.identity.Role),
	}))

	go c.writePump()
	c.readPump()
}

// authenticate reads the first frame, which must carry a valid token.
func (c *Client) authenticate() bool {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(authWait))

	var req AuthRequest
	if err := c.conn.ReadJSON(&req); err != nil {
		c.logger.Debug("WebSocket auth frame not received",
			zap.Error(err),
			zap.String("remote_addr", c.conn.RemoteAddr().String()))
		return false
	}
	if req.Type != MessageTypeAuth {
		c.reply(NewMessage(MessageTypeAuthFailed, AuthResultData{Reason: "first message must be authentication"}))
		return false
	}
	if req.Token == "" {
		c.reply(NewMessage(MessageTypeAuthFailed, AuthResultData{Reason: "missing token in auth message"}))
		return false
	}

	id, err := c.hub.validator.Authenticate(req.Token)
	if err != nil {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", c.conn.RemoteAddr().String()))
		c.reply(NewMessage(MessageTypeAuthFailed, AuthResultData{Reason: "invalid or expired token"}))
		return false
	}

	c.identity = id
	c.logger.Info("WebSocket client authenticated",
		zap.String("user_id", id.UserID.String()),
		zap.String("role", string(id.Role)))
	return true
}

// reply writes directly to the connection. Only valid before writePump starts.
func (c *Client) reply(msg Message) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("WebSocket write failed", zap.Error(err))
	}
}

// readPump keeps the session alive and discards client frames.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.conn.RemoteAddr().String()))
			}
			return
		}
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request; the client authenticates with its first frame.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: hub.logger,
	}
	go client.serve()
}
