package domain

import "time"

// Board is the durable record of one shared canvas: a single opaque raster
// blob per board id. An empty Image (or a missing row) means a blank board.
// Rows are created implicitly by the first applyState/clear for an unseen
// board id and are never deleted.
type Board struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	BoardID   string    `gorm:"uniqueIndex;size:191;not null" json:"boardId"`
	Image     string    `gorm:"type:longtext" json:"image"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}

// Blank reports whether the board holds no drawable state.
func (b *Board) Blank() bool {
	return b == nil || b.Image == ""
}
