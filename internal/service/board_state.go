package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/t0asterbruh/Boardline/internal/domain"
	"github.com/t0asterbruh/Boardline/internal/repository"
)

// BoardStateService keeps the in-memory snapshot cache and the durable
// board store coherent. The cache is write-through: Apply writes the store
// synchronously before updating the cache and returning.
//
// Durable-write failures are not fatal to real-time consistency: the cache
// is still updated so connected sessions keep converging, the board is
// marked dirty, and the error is reported to the caller. Dirty boards are
// re-flushed by the background worker; until a flush succeeds the store
// lags the cache, which is the acknowledged crash-recovery gap of this
// design.
//
// All operations for the same board id are serialized by a per-board lock,
// so a stale cache read can never race a concurrent write for that board.
// Different board ids proceed independently.
type BoardStateService struct {
	repo repository.BoardRepository
	log  *logrus.Entry

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	cache map[string]string
	dirty map[string]struct{}
}

// NewBoardStateService creates a BoardStateService.
func NewBoardStateService(repo repository.BoardRepository, logger *logrus.Logger) *BoardStateService {
	if repo == nil {
		panic("BoardRepository cannot be nil for BoardStateService")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BoardStateService{
		repo:  repo,
		log:   logger.WithField("component", "board_state"),
		locks: make(map[string]*sync.Mutex),
		cache: make(map[string]string),
		dirty: make(map[string]struct{}),
	}
}

// lockFor returns the mutex serializing access to one board id.
func (s *BoardStateService) lockFor(boardID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[boardID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[boardID] = l
	}
	return l
}

// Read returns the current snapshot for a board: cache first, store on
// miss (populating the cache). found is false only if the board was never
// written; a cleared board reads as ("", true, nil).
func (s *BoardStateService) Read(ctx context.Context, boardID string) (string, bool, error) {
	l := s.lockFor(boardID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	image, ok := s.cache[boardID]
	s.mu.Unlock()
	if ok {
		return image, true, nil
	}

	board, err := s.repo.GetByBoardID(ctx, boardID)
	if err != nil {
		if errors.Is(err, repository.ErrBoardNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("board state: read %q: %w", boardID, err)
	}

	s.mu.Lock()
	s.cache[boardID] = board.Image
	s.mu.Unlock()
	return board.Image, true, nil
}

// Apply writes a new snapshot through to the store, then updates the
// cache. On store failure the cache is still updated and the board is
// marked dirty; the error tells the caller durability was not achieved.
func (s *BoardStateService) Apply(ctx context.Context, boardID, image string) error {
	l := s.lockFor(boardID)
	l.Lock()
	defer l.Unlock()

	storeErr := s.repo.Upsert(ctx, &domain.Board{BoardID: boardID, Image: image})

	s.mu.Lock()
	s.cache[boardID] = image
	if storeErr != nil {
		s.dirty[boardID] = struct{}{}
	} else {
		delete(s.dirty, boardID)
	}
	s.mu.Unlock()

	if storeErr != nil {
		return fmt.Errorf("board state: apply %q: %w", boardID, storeErr)
	}
	return nil
}

// Clear writes the empty snapshot through the same path as Apply.
func (s *BoardStateService) Clear(ctx context.Context, boardID string) error {
	return s.Apply(ctx, boardID, "")
}

// FlushDirty re-writes every board whose last durable write failed.
// Boards that flush successfully are unmarked; the rest stay dirty for
// the next run.
func (s *BoardStateService) FlushDirty(ctx context.Context) error {
	s.mu.Lock()
	pending := make([]string, 0, len(s.dirty))
	for boardID := range s.dirty {
		pending = append(pending, boardID)
	}
	s.mu.Unlock()

	var lastErr error
	for _, boardID := range pending {
		l := s.lockFor(boardID)
		l.Lock()
		s.mu.Lock()
		image, cached := s.cache[boardID]
		_, stillDirty := s.dirty[boardID]
		s.mu.Unlock()
		if !cached || !stillDirty {
			l.Unlock()
			continue
		}
		err := s.repo.Upsert(ctx, &domain.Board{BoardID: boardID, Image: image})
		if err == nil {
			s.mu.Lock()
			delete(s.dirty, boardID)
			s.mu.Unlock()
			s.log.WithField("board_id", boardID).Info("Flushed dirty board to store")
		} else {
			s.log.WithField("board_id", boardID).WithError(err).Warn("Dirty board flush failed, will retry")
			lastErr = err
		}
		l.Unlock()
	}
	return lastErr
}

// DirtyCount reports how many boards are awaiting a successful flush.
func (s *BoardStateService) DirtyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}
