package agent

import "github.com/t0asterbruh/Boardline/internal/domain"

// Gesture carries the state of one in-progress stroke: the board it belongs
// to, the pen settings, and the previous pointer position. The previous
// position lives here, threaded explicitly from start through every move,
// instead of hanging off a callback.
type Gesture struct {
	boardID   string
	color     string
	lineWidth float64
	prevX     float64
	prevY     float64
}

// NewGesture starts a stroke at the given position.
func NewGesture(boardID string, x, y float64, color string, lineWidth float64) *Gesture {
	return &Gesture{
		boardID:   boardID,
		color:     color,
		lineWidth: lineWidth,
		prevX:     x,
		prevY:     y,
	}
}

// Advance extends the stroke to a new position and returns the segment
// from the previous position, which becomes the new anchor. Consecutive
// segments therefore chain: each starts where the last ended.
func (g *Gesture) Advance(x, y float64) domain.EditSegment {
	seg := domain.EditSegment{
		BoardID:   g.boardID,
		X0:        g.prevX,
		Y0:        g.prevY,
		X1:        x,
		Y1:        y,
		Color:     g.color,
		LineWidth: g.lineWidth,
	}
	g.prevX = x
	g.prevY = y
	return seg
}
