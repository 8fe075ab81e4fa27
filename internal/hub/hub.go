package hub

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// WebSocket timing constants shared by hub and client.
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from a peer. Snapshots are full encoded
	// rasters, so this is generous.
	maxMessageSize = 8 << 20
)

// HubMessage is the envelope passed on the hub's internal channel.
type HubMessage struct {
	Type   string // "register", "unregister", "frame"
	Client *Client
	Raw    []byte // only for "frame"
}

// Hub owns the set of live connections and feeds their frames through the
// gateway. One loop consumes the channel: membership changes and edit
// relays run inline, while cache/store operations leave the loop through
// the gateway's per-board queues so one board's store I/O never stalls
// another's.
type Hub struct {
	messageChan chan HubMessage
	quit        chan struct{}
	done        chan struct{}
	gateway     *Gateway
	log         *logrus.Entry

	mu      sync.Mutex
	clients map[*Client]struct{}
	stopped bool
}

// NewHub creates a Hub over the given gateway.
func NewHub(gateway *Gateway, logger *logrus.Logger) *Hub {
	if gateway == nil {
		panic("Gateway cannot be nil for Hub")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		gateway:     gateway,
		clients:     make(map[*Client]struct{}),
		log:         logger.WithField("component", "hub"),
	}
}

// Run starts the hub's event loop. It should run in its own goroutine and
// returns when Stop is called.
func (h *Hub) Run() {
	h.log.Info("Hub is running")
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			h.log.Info("Hub loop stopped")
			return
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			case "frame":
				h.gateway.HandleFrame(msg.Client, msg.Raw)
			default:
				h.log.WithField("type", msg.Type).Warn("Received unknown hub message type")
			}
		}
	}
}

// QueueMessage places a message on the hub's channel without blocking.
// Returns false if the channel is full and the message was dropped.
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		h.log.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// ForceStop broadcasts the gesture abort signal to a board's members.
// Exposed as an extension point; no server-side condition emits it today.
func (h *Hub) ForceStop(boardID string) {
	h.gateway.ForceStop(boardID)
}

// Stop stops the loop, shuts every client down and drains pending state
// operations. Run must have been started; Stop waits for its in-flight
// iteration to finish before tearing anything down, so no frame handler
// or dispatcher enqueue races the gateway shutdown. With the loop gone,
// pending unregister messages will never be consumed, so the send queues
// are closed here directly and the write pumps exit without waiting out
// a ping cycle.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	close(h.quit)
	<-h.done

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.closeSend()
		c.CloseConn()
	}
	h.gateway.Stop()
}

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		h.log.Error("Attempted to register a nil client")
		return
	}
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		client.CloseConn()
		return
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.log.WithField("session_id", client.ID()).Info("Client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		h.log.Error("Attempted to unregister a nil client")
		return
	}
	h.mu.Lock()
	_, known := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()
	if !known {
		return
	}
	h.gateway.HandleDisconnect(client)
	client.closeSend()
	h.log.WithField("session_id", client.ID()).Info("Client unregistered")
}
