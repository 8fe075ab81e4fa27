package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/t0asterbruh/Boardline/internal/service"
)

// BoardFlushHandler retries durable writes for boards whose last apply
// failed at the store. The apply path never waits for this: sessions were
// already answered and the broadcast already went out, so the handler only
// narrows the crash-recovery window.
type BoardFlushHandler struct {
	state *service.BoardStateService
	log   *logrus.Entry
}

// NewBoardFlushHandler creates a BoardFlushHandler.
func NewBoardFlushHandler(state *service.BoardStateService, logger *logrus.Logger) *BoardFlushHandler {
	if state == nil {
		panic("BoardStateService cannot be nil for BoardFlushHandler")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BoardFlushHandler{
		state: state,
		log:   logger.WithField("component", "board_flush_handler"),
	}
}

// ProcessTask handles one board:flush_dirty task.
func (h *BoardFlushHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	pending := h.state.DirtyCount()
	if pending == 0 {
		return nil
	}
	h.log.WithField("pending", pending).Info("Flushing dirty boards")
	if err := h.state.FlushDirty(ctx); err != nil {
		// Returning the error lets asynq retry ahead of the next
		// scheduled run.
		return err
	}
	return nil
}
