package hub

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client is one WebSocket connection attached to the hub. It implements
// Session: the read pump feeds inbound frames to the hub channel, the
// write pump drains the send queue and keeps the connection alive with
// pings.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient wraps an accepted connection. The session id is random and
// unique per connection.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		id:   newSessionID(),
		send: make(chan []byte, 256),
	}
}

func newSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the platform entropy source is
		// broken, at which point serving connections is the least of
		// our problems.
		panic(err)
	}
	return hex.EncodeToString(b)
}

// ID returns the connection's session id.
func (c *Client) ID() string { return c.id }

// Send enqueues a payload for the write pump without blocking. Returns
// false if the queue is full or already closed and the payload was
// dropped. Callers may hold a Session reference past unregister (queued
// state pushes, in-flight broadcasts), so a late Send must stay safe.
func (c *Client) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Run starts the read and write pumps.
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

// CloseConn force-closes the underlying connection, which unwinds both
// pumps.
func (c *Client) CloseConn() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// closeSend is called by the hub during unregister; closing the send
// channel makes the write pump exit. The closed flag is flipped under the
// same mutex Send takes, so no Send can race the close.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.QueueMessage(HubMessage{Type: "unregister", Client: c})
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	logCtx := logrus.WithField("session_id", c.id)
	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error")
			} else {
				logCtx.Debug("WebSocket connection closed")
			}
			break
		}
		if messageType != websocket.TextMessage {
			logCtx.Debugf("Ignoring non-text message type %d", messageType)
			continue
		}
		c.hub.QueueMessage(HubMessage{Type: "frame", Client: c, Raw: message})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	logCtx := logrus.WithField("session_id", c.id)
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}
