package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/t0asterbruh/Boardline/internal/hub"
)

// Handler upgrades board connections and hands them to the hub. Any board
// id string is valid; the board itself is created implicitly by the first
// write, so there is nothing to look up here.
type Handler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewHandler creates a Handler.
func NewHandler(h *hub.Hub) *Handler {
	if h == nil {
		panic("Hub cannot be nil for websocket Handler")
	}
	return &Handler{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict origins once the frontend deploy origin is settled.
				return true
			},
		},
	}
}

// HandleConnection serves GET /ws/board/:boardId.
func (h *Handler) HandleConnection(c *gin.Context) {
	boardID := c.Param("boardId")
	if boardID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing board id"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logrus.WithError(err).Error("WS Handler: failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn)
	logCtx := logrus.WithFields(logrus.Fields{
		"session_id": client.ID(),
		"board_id":   boardID,
	})

	if !h.hub.QueueMessage(hub.HubMessage{Type: "register", Client: client}) {
		logCtx.Error("WS Handler: hub channel full, dropping connection")
		client.CloseConn()
		return
	}
	client.Run()
	logCtx.Info("WS Handler: connection established")

	// Joining is driven by the client's joinBoard message, not by the URL;
	// the path's board id exists for routing and log correlation only.
}
