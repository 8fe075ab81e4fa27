package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/t0asterbruh/Boardline/internal/domain"
	"github.com/t0asterbruh/Boardline/internal/repository"
)

// GormBoardRepository is the GORM implementation of BoardRepository.
type GormBoardRepository struct {
	db *gorm.DB
}

// NewGormBoardRepository creates a GormBoardRepository.
func NewGormBoardRepository(db *gorm.DB) *GormBoardRepository {
	if db == nil {
		panic("database connection cannot be nil for GormBoardRepository")
	}
	return &GormBoardRepository{db: db}
}

// GetByBoardID returns the single row for the given board id.
func (r *GormBoardRepository) GetByBoardID(ctx context.Context, boardID string) (*domain.Board, error) {
	var board domain.Board
	err := r.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		First(&board).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrBoardNotFound
		}
		return nil, fmt.Errorf("gorm: failed to get board %q: %w", boardID, err)
	}
	return &board, nil
}

// Upsert writes the board's image, inserting the row on first write. The
// write is last-write-wins at row granularity: a concurrent upsert for the
// same board id simply overwrites the image column.
func (r *GormBoardRepository) Upsert(ctx context.Context, board *domain.Board) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "board_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"image", "updated_at"}),
		}).
		Create(board).Error
	if err != nil {
		return fmt.Errorf("gorm: failed to upsert board %q: %w", board.BoardID, err)
	}
	return nil
}
