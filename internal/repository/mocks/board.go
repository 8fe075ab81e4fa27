package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/t0asterbruh/Boardline/internal/domain"
)

// BoardRepository is a testify mock of repository.BoardRepository.
type BoardRepository struct {
	mock.Mock
}

func (m *BoardRepository) GetByBoardID(ctx context.Context, boardID string) (*domain.Board, error) {
	args := m.Called(ctx, boardID)
	if board, ok := args.Get(0).(*domain.Board); ok {
		return board, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *BoardRepository) Upsert(ctx context.Context, board *domain.Board) error {
	args := m.Called(ctx, board)
	return args.Error(0)
}
