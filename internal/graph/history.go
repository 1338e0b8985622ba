package graph

// DefaultHistoryCapacity is the number of undo snapshots kept per graph.
const DefaultHistoryCapacity = 50

// History is a bounded undo stack of graph snapshots.
//
// Entries hold pre-mutation states. The cursor sits one past the entry that
// the next Undo returns, so Record followed by Undo yields the recorded
// state. There is no redo: the live state is never stored.
type History struct {
	entries  []Snapshot
	cursor   int
	capacity int
}

// NewHistory creates a history with the given capacity. Non-positive values
// select DefaultHistoryCapacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{capacity: capacity}
}

// Record stores s, discarding any entries after the cursor and evicting the
// oldest entry when over capacity.
func (h *History) Record(s Snapshot) {
	h.entries = append(h.entries[:h.cursor], s.Clone())
	if over := len(h.entries) - h.capacity; over > 0 {
		h.entries = append(h.entries[:0], h.entries[over:]...)
	}
	h.cursor = len(h.entries)
}

// Undo moves the cursor back one and returns that snapshot.
// Returns false when there is nothing to undo.
func (h *History) Undo() (Snapshot, bool) {
	if h.cursor <= 0 {
		return Snapshot{}, false
	}
	h.cursor--
	return h.entries[h.cursor].Clone(), true
}

// CanUndo reports whether Undo would return a snapshot.
func (h *History) CanUndo() bool {
	return h.cursor > 0
}

// Len returns the number of stored snapshots.
func (h *History) Len() int {
	return len(h.entries)
}

// Capacity returns the maximum number of stored snapshots.
func (h *History) Capacity() int {
	return h.capacity
}

// Reset drops every snapshot.
func (h *History) Reset() {
	h.entries = nil
	h.cursor = 0
}
