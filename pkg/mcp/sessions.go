package mcp

import (
	"maps"
	"slices"
	"sync"
)

// SessionRegistry records which MCP session each agent last called from, so
// editor events can be pushed back to every agent working on the graph.
type SessionRegistry struct {
	mu      sync.RWMutex
	byAgent map[string]string
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{byAgent: make(map[string]string)}
}

// Register binds agentID to sessionID. A reconnecting agent replaces its
// previous binding.
func (r *SessionRegistry) Register(agentID, sessionID string) {
	r.mu.Lock()
	r.byAgent[agentID] = sessionID
	r.mu.Unlock()
}

func (r *SessionRegistry) SessionFor(agentID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byAgent[agentID]
	return sid, ok
}

// Remove drops every agent bound to sessionID.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	maps.DeleteFunc(r.byAgent, func(_, sid string) bool { return sid == sessionID })
}

// Agents returns the registered agent IDs, sorted.
func (r *SessionRegistry) Agents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.byAgent))
}
