// Package agent implements the client side of the board sync protocol:
// joining a board, requesting authoritative state, relaying in-progress
// stroke segments, applying completed edits, and local undo/redo over full
// snapshots.
package agent

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/t0asterbruh/Boardline/internal/domain"
	"github.com/t0asterbruh/Boardline/internal/protocol"
)

// Transport is the bidirectional message channel to the server.
// *websocket.Conn satisfies it.
type Transport interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

// Canvas is the local raster surface the agent drives. Image returns the
// full current state as the opaque encoded blob the protocol carries;
// Render replaces the whole surface with such a blob and may fail if the
// blob cannot be decoded.
type Canvas interface {
	Render(image string) error
	DrawSegment(seg domain.EditSegment)
	Clear()
	Image() string
	AbortGesture()
}

// Agent is the client-side sync agent for one board connection.
type Agent struct {
	mu        sync.Mutex
	transport Transport
	canvas    Canvas
	history   *History
	gesture   *Gesture
	boardID   string
	log       *logrus.Entry
}

// New creates an Agent over an established transport.
func New(transport Transport, canvas Canvas, logger *logrus.Logger) *Agent {
	if transport == nil || canvas == nil {
		panic("Transport and Canvas cannot be nil for Agent")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Agent{
		transport: transport,
		canvas:    canvas,
		history:   NewHistory(),
		log:       logger.WithField("component", "sync_agent"),
	}
}

// Dial connects to a board server websocket endpoint and returns an agent
// over the connection.
func Dial(url string, canvas Canvas, logger *logrus.Logger) (*Agent, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("agent: dial %s: %w", url, err)
	}
	return New(conn, canvas, logger), nil
}

// Join subscribes to a board and asks for its authoritative state. The
// same call serves reconnection: joins are idempotent server-side and a
// duplicate boardState arrival is an idempotent render.
func (a *Agent) Join(boardID string) error {
	if boardID == "" {
		return errors.New("agent: board id must not be empty")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.boardID = boardID
	if err := a.write(protocol.Message{Type: protocol.TypeJoinBoard, BoardID: boardID}); err != nil {
		return err
	}
	return a.write(protocol.Message{Type: protocol.TypeRequestState, BoardID: boardID})
}

// Leave unsubscribes from the current board.
func (a *Agent) Leave() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.boardID == "" {
		return nil
	}
	err := a.write(protocol.Message{Type: protocol.TypeLeaveBoard, BoardID: a.boardID})
	a.boardID = ""
	return err
}

// Run reads and dispatches server messages until the transport fails or
// closes. It should run in its own goroutine after Join.
func (a *Agent) Run() error {
	for {
		var msg protocol.Message
		if err := a.transport.ReadJSON(&msg); err != nil {
			a.log.WithError(err).Debug("Transport closed, agent loop exiting")
			return err
		}
		a.dispatch(msg)
	}
}

func (a *Agent) dispatch(msg protocol.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch msg.Type {
	case protocol.TypeBoardState:
		// Peer state changes replace the local raster but never touch
		// the local undo/redo stacks: a peer's edit is not undoable
		// from this session.
		if msg.Image == "" {
			return
		}
		if err := a.canvas.Render(msg.Image); err != nil {
			a.log.WithError(err).Error("Failed to render incoming board state")
		}
	case protocol.TypeDraw:
		a.canvas.DrawSegment(msg.Segment())
	case protocol.TypeClear:
		a.abortGestureLocked()
		a.canvas.Clear()
	case protocol.TypeForceStop:
		a.abortGestureLocked()
	default:
		a.log.WithField("type", msg.Type).Debug("Ignoring unknown server message")
	}
}

// BeginGesture starts an edit gesture at the given position. The
// pre-gesture snapshot goes onto the undo stack and the redo branch is
// invalidated.
func (a *Agent) BeginGesture(x, y float64, color string, lineWidth float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history.RecordEdit(a.canvas.Image())
	a.gesture = NewGesture(a.boardID, x, y, color, lineWidth)
}

// MoveGesture extends the in-progress stroke: draws the segment locally
// and relays it to peers. No-op when no gesture is active.
func (a *Agent) MoveGesture(x, y float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gesture == nil {
		return nil
	}
	seg := a.gesture.Advance(x, y)
	a.canvas.DrawSegment(seg)
	return a.write(protocol.Draw(seg))
}

// EndGesture completes the gesture and sends the finished canvas as the
// new authoritative snapshot. This is the sole persistence trigger;
// individual segments are never persisted.
func (a *Agent) EndGesture() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gesture == nil {
		return nil
	}
	a.gesture = nil
	return a.applyStateLocked(a.canvas.Image())
}

// Undo reverts the canvas to the previous local snapshot and publishes it
// so peers and storage converge to the undone state. Rendering and the
// stack mutation are one step: if the snapshot cannot be rendered the pop
// is rolled back and nothing is sent.
func (a *Agent) Undo() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.abortGestureLocked()

	current := a.canvas.Image()
	target, ok := a.history.Undo(current)
	if !ok {
		return nil
	}
	if err := a.canvas.Render(target); err != nil {
		a.history.RevertUndo(target)
		a.log.WithError(err).Error("Undo render failed, history restored")
		return fmt.Errorf("agent: undo render: %w", err)
	}
	return a.applyStateLocked(target)
}

// Redo is the inverse of Undo, with the same render-or-rollback rule.
func (a *Agent) Redo() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.abortGestureLocked()

	current := a.canvas.Image()
	target, ok := a.history.Redo(current)
	if !ok {
		return nil
	}
	if err := a.canvas.Render(target); err != nil {
		a.history.RevertRedo(target)
		a.log.WithError(err).Error("Redo render failed, history restored")
		return fmt.Errorf("agent: redo render: %w", err)
	}
	return a.applyStateLocked(target)
}

// ClearBoard blanks the local canvas and asks the server to clear the
// board; the server's reset notification goes to the whole room, this
// session included.
func (a *Agent) ClearBoard() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.abortGestureLocked()
	a.canvas.Clear()
	return a.write(protocol.Message{Type: protocol.TypeClear, BoardID: a.boardID})
}

// UndoDepth reports the current undo stack size.
func (a *Agent) UndoDepth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history.UndoDepth()
}

// RedoDepth reports the current redo stack size.
func (a *Agent) RedoDepth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history.RedoDepth()
}

// Close shuts the transport; Run returns once the read side unblocks.
func (a *Agent) Close() error {
	return a.transport.Close()
}

func (a *Agent) applyStateLocked(image string) error {
	if a.boardID == "" || image == "" {
		return nil
	}
	return a.write(protocol.Message{
		Type:    protocol.TypeApplyState,
		BoardID: a.boardID,
		Image:   image,
	})
}

func (a *Agent) abortGestureLocked() {
	if a.gesture == nil {
		return
	}
	a.gesture = nil
	a.canvas.AbortGesture()
}

func (a *Agent) write(msg protocol.Message) error {
	if err := a.transport.WriteJSON(msg); err != nil {
		return fmt.Errorf("agent: write %s: %w", msg.Type, err)
	}
	return nil
}
