package hub

import (
	"github.com/sirupsen/logrus"

	"github.com/t0asterbruh/Boardline/internal/domain"
	"github.com/t0asterbruh/Boardline/internal/protocol"
)

// Relay fans transient events out to a board's members. Delivery is
// best-effort: a recipient whose send queue is full is skipped with a
// warning. Ordering across sessions is not guaranteed; per-sender ordering
// falls out of the FIFO path from reader to each recipient queue.
type Relay struct {
	registry *Registry
	log      *logrus.Entry
}

// NewRelay creates a Relay over the given registry.
func NewRelay(registry *Registry, logger *logrus.Logger) *Relay {
	if registry == nil {
		panic("Registry cannot be nil for Relay")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Relay{
		registry: registry,
		log:      logger.WithField("component", "relay"),
	}
}

// Edit delivers an in-progress stroke segment to every member of the board
// except the originator.
func (r *Relay) Edit(boardID string, seg domain.EditSegment, originSessionID string) {
	payload, err := protocol.Marshal(protocol.Draw(seg))
	if err != nil {
		r.log.WithField("board_id", boardID).WithError(err).Error("Failed to marshal draw message")
		return
	}
	r.deliver(boardID, payload, r.registry.MembersExcept(boardID, originSessionID))
}

// State notifies the board's members, except the originator, of a new
// authoritative snapshot.
func (r *Relay) State(boardID, image, originSessionID string) {
	payload, err := protocol.Marshal(protocol.BoardState(image))
	if err != nil {
		r.log.WithField("board_id", boardID).WithError(err).Error("Failed to marshal boardState message")
		return
	}
	r.deliver(boardID, payload, r.registry.MembersExcept(boardID, originSessionID))
}

// Reset notifies all members, including whichever session triggered it,
// that the board was cleared.
func (r *Relay) Reset(boardID string) {
	payload, err := protocol.Marshal(protocol.Clear())
	if err != nil {
		r.log.WithField("board_id", boardID).WithError(err).Error("Failed to marshal clear message")
		return
	}
	r.deliver(boardID, payload, r.registry.Members(boardID))
}

// ForceStop tells all members to abort any in-progress local gesture.
func (r *Relay) ForceStop(boardID string) {
	payload, err := protocol.Marshal(protocol.ForceStop())
	if err != nil {
		r.log.WithField("board_id", boardID).WithError(err).Error("Failed to marshal forceStop message")
		return
	}
	r.deliver(boardID, payload, r.registry.Members(boardID))
}

func (r *Relay) deliver(boardID string, payload []byte, recipients []Session) {
	for _, sess := range recipients {
		if !sess.Send(payload) {
			r.log.WithFields(logrus.Fields{
				"board_id":   boardID,
				"session_id": sess.ID(),
			}).Warn("Recipient could not accept message, dropped")
		}
	}
}
