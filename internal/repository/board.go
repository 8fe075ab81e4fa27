package repository

import (
	"context"

	"github.com/t0asterbruh/Boardline/internal/domain"
)

// BoardRepository is the durable snapshot store: one row per board id.
type BoardRepository interface {
	// GetByBoardID returns the board row for the given id, or
	// ErrBoardNotFound if the board was never written.
	GetByBoardID(ctx context.Context, boardID string) (*domain.Board, error)

	// Upsert writes the board's current image, creating the row on the
	// first write for an unseen board id.
	Upsert(ctx context.Context, board *domain.Board) error
}
