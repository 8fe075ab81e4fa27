package hub

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/t0asterbruh/Boardline/internal/protocol"
)

// BoardState is the slice of the board state service the gateway drives.
type BoardState interface {
	Read(ctx context.Context, boardID string) (image string, found bool, err error)
	Apply(ctx context.Context, boardID, image string) error
	Clear(ctx context.Context, boardID string) error
}

// Gateway is the per-connection protocol handler: it interprets inbound
// frames, drives the registry, the board state service and the relay.
// Malformed or incomplete requests are dropped silently; durable-store
// failures are logged and never surfaced to the wire.
type Gateway struct {
	registry *Registry
	relay    *Relay
	dispatch *dispatcher
	state    BoardState
	log      *logrus.Entry

	// requireMembership gates draw relaying on verified room membership.
	// Off by default: the minimal-trust behavior relays any segment.
	requireMembership bool
}

// NewGateway creates a Gateway.
func NewGateway(registry *Registry, relay *Relay, state BoardState, requireMembership bool, logger *logrus.Logger) *Gateway {
	if registry == nil || relay == nil || state == nil {
		panic("Registry, Relay and BoardState cannot be nil for Gateway")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Gateway{
		registry:          registry,
		relay:             relay,
		dispatch:          newDispatcher(),
		state:             state,
		requireMembership: requireMembership,
		log:               logger.WithField("component", "gateway"),
	}
}

// HandleFrame processes one raw inbound frame from a session.
func (g *Gateway) HandleFrame(sess Session, raw []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		g.log.WithField("session_id", sess.ID()).WithError(err).Warn("Dropping unparseable frame")
		return
	}

	switch msg.Type {
	case protocol.TypeJoinBoard:
		g.onJoin(sess, msg.BoardID)
	case protocol.TypeLeaveBoard:
		g.onLeave(sess, msg.BoardID)
	case protocol.TypeRequestState:
		g.onRequestState(sess, msg.BoardID)
	case protocol.TypeDraw:
		g.onDraw(sess, msg)
	case protocol.TypeApplyState:
		g.onApplyState(sess, msg.BoardID, msg.Image)
	case protocol.TypeClear:
		g.onClear(sess, msg.BoardID)
	default:
		g.log.WithFields(logrus.Fields{
			"session_id": sess.ID(),
			"type":       msg.Type,
		}).Warn("Dropping frame with unknown type")
	}
}

// HandleDisconnect releases every room membership the session holds. Board
// state is never mutated by a disconnect.
func (g *Gateway) HandleDisconnect(sess Session) {
	g.registry.DropSession(sess.ID())
}

// ForceStop broadcasts the gesture abort signal to the whole room. This is
// an extension point: nothing in the server emits it on its own.
func (g *Gateway) ForceStop(boardID string) {
	g.relay.ForceStop(boardID)
}

// Stop drains pending state operations. Call after the hub loop has
// stopped accepting frames.
func (g *Gateway) Stop() {
	g.dispatch.Stop()
}

// onJoin adds the session to the room and pushes the current snapshot to
// it. Repeated joins are harmless: membership is idempotent and each call
// re-reads and re-sends current state (a duplicate transfer, not a bug).
func (g *Gateway) onJoin(sess Session, boardID string) {
	if boardID == "" {
		return
	}
	g.registry.Join(sess, boardID)
	g.log.WithFields(logrus.Fields{
		"session_id": sess.ID(),
		"board_id":   boardID,
	}).Info("Session joined board")
	g.pushState(sess, boardID)
}

func (g *Gateway) onLeave(sess Session, boardID string) {
	if boardID == "" {
		return
	}
	g.registry.Leave(sess.ID(), boardID)
	g.log.WithFields(logrus.Fields{
		"session_id": sess.ID(),
		"board_id":   boardID,
	}).Info("Session left board")
}

// onRequestState is the read-and-send half of a join, without the
// membership change. Idempotent by construction.
func (g *Gateway) onRequestState(sess Session, boardID string) {
	if boardID == "" {
		return
	}
	g.pushState(sess, boardID)
}

// pushState reads the board (cache first, store on miss) and sends the
// snapshot to this session only. Ordered through the per-board queue so a
// joiner always observes a state at-or-after its join request. Boards that
// were never written, or hold a blank image, produce no message.
func (g *Gateway) pushState(sess Session, boardID string) {
	g.dispatch.Enqueue(boardID, func() {
		logCtx := g.log.WithFields(logrus.Fields{
			"session_id": sess.ID(),
			"board_id":   boardID,
		})
		image, found, err := g.state.Read(context.Background(), boardID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to read board state")
			return
		}
		if !found || image == "" {
			return
		}
		payload, err := protocol.Marshal(protocol.BoardState(image))
		if err != nil {
			logCtx.WithError(err).Error("Failed to marshal boardState message")
			return
		}
		if !sess.Send(payload) {
			logCtx.Warn("Session could not accept snapshot, dropped")
		}
	})
}

// onDraw relays one stroke segment to the room, excluding the sender.
// No persistence and no cache mutation; segments are purely an in-gesture
// latency optimization.
func (g *Gateway) onDraw(sess Session, msg protocol.Message) {
	if msg.BoardID == "" {
		return
	}
	if g.requireMembership && !g.registry.IsMember(msg.BoardID, sess.ID()) {
		g.log.WithFields(logrus.Fields{
			"session_id": sess.ID(),
			"board_id":   msg.BoardID,
		}).Warn("Dropping draw from non-member session")
		return
	}
	g.relay.Edit(msg.BoardID, msg.Segment(), sess.ID())
}

// onApplyState persists a full snapshot and notifies the room, excluding
// the sender. A missing board id or image is silently ignored. A failed
// durable write still updates the cache and still broadcasts: real-time
// consistency is preserved, only crash-recoverability lags until the flush
// worker catches up.
func (g *Gateway) onApplyState(sess Session, boardID, image string) {
	if boardID == "" || image == "" {
		return
	}
	g.dispatch.Enqueue(boardID, func() {
		if err := g.state.Apply(context.Background(), boardID, image); err != nil {
			g.log.WithFields(logrus.Fields{
				"session_id": sess.ID(),
				"board_id":   boardID,
			}).WithError(err).Error("Durable write failed, broadcasting anyway")
		}
		g.relay.State(boardID, image, sess.ID())
	})
}

// onClear persists the empty snapshot and notifies the entire room,
// including the sender.
func (g *Gateway) onClear(sess Session, boardID string) {
	if boardID == "" {
		return
	}
	g.dispatch.Enqueue(boardID, func() {
		if err := g.state.Clear(context.Background(), boardID); err != nil {
			g.log.WithFields(logrus.Fields{
				"session_id": sess.ID(),
				"board_id":   boardID,
			}).WithError(err).Error("Durable clear failed, broadcasting anyway")
		}
		g.relay.Reset(boardID)
	})
}
