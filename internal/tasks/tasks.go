package tasks

import "encoding/json"

// Task type constants.
const (
	// TypeBoardFlush re-writes boards whose durable write failed, so the
	// store catches back up with the cache.
	TypeBoardFlush = "board:flush_dirty"
)

// BoardFlushPayload is the (currently empty) payload of a flush task. Kept
// as a struct so the payload can grow without changing task plumbing.
type BoardFlushPayload struct{}

// NewBoardFlushTask builds the serialized payload for a flush task.
func NewBoardFlushTask() ([]byte, error) {
	return json.Marshal(BoardFlushPayload{})
}
