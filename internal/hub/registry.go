package hub

import "sync"

// Session is one connected peer as the room layer sees it: an identity and
// a best-effort outbound queue. Send must not block; it reports false when
// the payload was dropped.
type Session interface {
	ID() string
	Send(payload []byte) bool
}

// Registry tracks which sessions are subscribed to which board. Pure
// in-memory membership bookkeeping, scoped to process lifetime.
type Registry struct {
	mu sync.RWMutex
	// rooms maps board id -> session id -> session.
	rooms map[string]map[string]Session
	// joined maps session id -> set of board ids, for DropSession.
	joined map[string]map[string]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[string]Session),
		joined: make(map[string]map[string]struct{}),
	}
}

// Join adds the session to the board's member set. Idempotent.
func (r *Registry) Join(sess Session, boardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[boardID]
	if !ok {
		room = make(map[string]Session)
		r.rooms[boardID] = room
	}
	room[sess.ID()] = sess

	boards, ok := r.joined[sess.ID()]
	if !ok {
		boards = make(map[string]struct{})
		r.joined[sess.ID()] = boards
	}
	boards[boardID] = struct{}{}
}

// Leave removes the session from the board's member set.
func (r *Registry) Leave(sessionID, boardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(sessionID, boardID)
}

func (r *Registry) leaveLocked(sessionID, boardID string) {
	if room, ok := r.rooms[boardID]; ok {
		delete(room, sessionID)
		if len(room) == 0 {
			delete(r.rooms, boardID)
		}
	}
	if boards, ok := r.joined[sessionID]; ok {
		delete(boards, boardID)
		if len(boards) == 0 {
			delete(r.joined, sessionID)
		}
	}
}

// DropSession removes the session from every board it belongs to. Called
// on disconnect.
func (r *Registry) DropSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for boardID := range r.joined[sessionID] {
		r.leaveLocked(sessionID, boardID)
	}
}

// IsMember reports whether the session is currently joined to the board.
func (r *Registry) IsMember(boardID, sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[boardID][sessionID]
	return ok
}

// Members returns every session joined to the board.
func (r *Registry) Members(boardID string) []Session {
	return r.MembersExcept(boardID, "")
}

// MembersExcept returns the board's members excluding the given session,
// as a copied slice so callers never hold the registry lock while sending.
func (r *Registry) MembersExcept(boardID, sessionID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[boardID]
	members := make([]Session, 0, len(room))
	for id, sess := range room {
		if id == sessionID {
			continue
		}
		members = append(members, sess)
	}
	return members
}
