package agent

// History holds the client-local undo/redo stacks of full snapshots. It is
// not server-authoritative: undoing produces a new authoritative write via
// applyState, never a history rollback on the server.
//
// History is not safe for concurrent use; the Agent serializes access.
type History struct {
	undo []string
	redo []string
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{}
}

// RecordEdit pushes the pre-edit snapshot onto the undo stack and clears
// the redo stack (starting a new edit invalidates the redone branch).
func (h *History) RecordEdit(preEdit string) {
	h.undo = append(h.undo, preEdit)
	h.redo = h.redo[:0]
}

// Undo pops the most recent undo snapshot and pushes the current state
// onto the redo stack. Returns false if there is nothing to undo.
func (h *History) Undo(current string) (string, bool) {
	if len(h.undo) == 0 {
		return "", false
	}
	target := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, current)
	return target, true
}

// RevertUndo restores the stacks to their state before the matching Undo
// call, for when rendering the popped snapshot failed.
func (h *History) RevertUndo(target string) {
	h.undo = append(h.undo, target)
	if len(h.redo) > 0 {
		h.redo = h.redo[:len(h.redo)-1]
	}
}

// Redo pops the most recent redo snapshot and pushes the current state
// onto the undo stack. Returns false if there is nothing to redo.
func (h *History) Redo(current string) (string, bool) {
	if len(h.redo) == 0 {
		return "", false
	}
	target := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, current)
	return target, true
}

// RevertRedo restores the stacks to their state before the matching Redo
// call.
func (h *History) RevertRedo(target string) {
	h.redo = append(h.redo, target)
	if len(h.undo) > 0 {
		h.undo = h.undo[:len(h.undo)-1]
	}
}

// UndoDepth reports the undo stack size.
func (h *History) UndoDepth() int { return len(h.undo) }

// RedoDepth reports the redo stack size.
func (h *History) RedoDepth() int { return len(h.redo) }
