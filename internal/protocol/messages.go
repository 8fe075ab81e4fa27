package protocol

import (
	"encoding/json"

	"github.com/t0asterbruh/Boardline/internal/domain"
)

// Message type constants for the bidirectional board channel.
const (
	// Client -> server.
	TypeJoinBoard    = "joinBoard"
	TypeLeaveBoard   = "leaveBoard"
	TypeRequestState = "requestState"
	TypeApplyState   = "applyState"
	TypeClear        = "clear"

	// Both directions.
	TypeDraw = "draw"

	// Server -> client.
	TypeBoardState = "boardState"
	TypeForceStop  = "forceStop"
)

// Message is the single flat envelope carried on the wire. Fields beyond
// Type are populated per message type; absent fields are omitted.
type Message struct {
	Type      string   `json:"type"`
	BoardID   string   `json:"boardId,omitempty"`
	Image     string   `json:"image,omitempty"`
	X0        *float64 `json:"x0,omitempty"`
	Y0        *float64 `json:"y0,omitempty"`
	X1        *float64 `json:"x1,omitempty"`
	Y1        *float64 `json:"y1,omitempty"`
	Color     string   `json:"color,omitempty"`
	LineWidth float64  `json:"lineWidth,omitempty"`
}

// Segment extracts the edit segment from a draw message. Missing coordinates
// decode as zero.
func (m *Message) Segment() domain.EditSegment {
	seg := domain.EditSegment{
		BoardID:   m.BoardID,
		Color:     m.Color,
		LineWidth: m.LineWidth,
	}
	if m.X0 != nil {
		seg.X0 = *m.X0
	}
	if m.Y0 != nil {
		seg.Y0 = *m.Y0
	}
	if m.X1 != nil {
		seg.X1 = *m.X1
	}
	if m.Y1 != nil {
		seg.Y1 = *m.Y1
	}
	return seg
}

// Draw builds a draw message from an edit segment.
func Draw(seg domain.EditSegment) Message {
	x0, y0, x1, y1 := seg.X0, seg.Y0, seg.X1, seg.Y1
	return Message{
		Type:      TypeDraw,
		BoardID:   seg.BoardID,
		X0:        &x0,
		Y0:        &y0,
		X1:        &x1,
		Y1:        &y1,
		Color:     seg.Color,
		LineWidth: seg.LineWidth,
	}
}

// BoardState builds the authoritative full-snapshot message.
func BoardState(image string) Message {
	return Message{Type: TypeBoardState, Image: image}
}

// Clear builds the server->client clear notification (no payload).
func Clear() Message {
	return Message{Type: TypeClear}
}

// ForceStop builds the server-originated gesture abort signal.
func ForceStop() Message {
	return Message{Type: TypeForceStop}
}

// Marshal encodes a message for the wire. Encoding a Message cannot fail;
// the error return exists for call sites that forward it.
func Marshal(m Message) ([]byte, error) {
	return json.Marshal(m)
}
