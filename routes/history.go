package routes

import (
	"sync"

	"github.com/chimerakang/changedesk"
)

// History is an in-memory navigator. Push adds an entry; Redirect replaces
// the current one.
type History struct {
	mu      sync.RWMutex
	entries []string
}

var _ changedesk.Navigator = (*History)(nil)

// NewHistory starts a history at start.
func NewHistory(start string) *History {
	return &History{entries: []string{Clean(start)}}
}

// Current returns the location shown.
func (h *History) Current() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.entries[len(h.entries)-1]
}

// Push navigates to path.
func (h *History) Push(path string) {
	h.mu.Lock()
	h.entries = append(h.entries, Clean(path))
	h.mu.Unlock()
}

// Redirect replaces the current location with path.
func (h *History) Redirect(path string) {
	h.mu.Lock()
	h.entries[len(h.entries)-1] = Clean(path)
	h.mu.Unlock()
}

// Entries returns a copy of the history, oldest first.
func (h *History) Entries() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.entries...)
}

// Follow resolves the current location through table, replacing it on each
// redirect, and returns the final decision.
func (h *History) Follow(table *Table, state changedesk.SessionState) Decision {
	d := table.Resolve(h.Current(), state)
	for i := 0; d.Outcome == Redirect && i < 4; i++ {
		h.Redirect(d.Target)
		d = table.Resolve(d.Target, state)
	}
	return d
}
