package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/t0asterbruh/Boardline/internal/service"
)

// BoardHandler exposes read-only snapshot access over plain HTTP, for
// tooling and for clients that want the current image without opening a
// socket.
type BoardHandler struct {
	state *service.BoardStateService
}

// NewBoardHandler creates a BoardHandler.
func NewBoardHandler(state *service.BoardStateService) *BoardHandler {
	if state == nil {
		panic("BoardStateService cannot be nil for BoardHandler")
	}
	return &BoardHandler{state: state}
}

// GetBoard serves GET /api/boards/:boardId. Returns 404 only for boards
// that were never written; a cleared board returns an empty image.
func (h *BoardHandler) GetBoard(c *gin.Context) {
	boardID := c.Param("boardId")
	if boardID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing board id"})
		return
	}

	image, found, err := h.state.Read(c.Request.Context(), boardID)
	if err != nil {
		logrus.WithField("board_id", boardID).WithError(err).Error("Failed to read board state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read board state"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Board not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"boardId": boardID, "image": image})
}
