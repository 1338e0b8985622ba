package graph

import (
	"strconv"
	"strings"
	"sync"
)

const nodeIDPrefix = "node_"

// IDAllocator hands out sequential node identifiers of the form node_<n>.
// It is safe for concurrent use.
type IDAllocator struct {
	mu   sync.Mutex
	next int
}

// NewIDAllocator returns an allocator whose first identifier is node_0.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{}
}

// NextNodeID returns the next identifier and advances the counter.
func (a *IDAllocator) NextNodeID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := nodeIDPrefix + strconv.Itoa(a.next)
	a.next++
	return id
}

// Reseed advances the counter past the largest node_<n> in ids.
// Identifiers of any other form are ignored. The counter never moves back.
func (a *IDAllocator) Reseed(ids []string) {
	maxN := -1
	for _, id := range ids {
		if n, ok := ParseNodeID(id); ok && n > maxN {
			maxN = n
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if maxN+1 > a.next {
		a.next = maxN + 1
	}
}

// Peek returns the number the next identifier will carry.
func (a *IDAllocator) Peek() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

// ParseNodeID extracts n from node_<n>. Only unsigned decimal suffixes match.
func ParseNodeID(id string) (int, bool) {
	suffix, ok := strings.CutPrefix(id, nodeIDPrefix)
	if !ok || suffix == "" {
		return 0, false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return n, true
}

// EdgeID returns the base identifier for an edge between source and target.
func EdgeID(source, target string) string {
	return "edge_" + source + "_" + target
}

// uniqueID appends _1, _2, ... to base until taken reports false.
func uniqueID(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for i := 1; ; i++ {
		candidate := base + "_" + strconv.Itoa(i)
		if !taken(candidate) {
			return candidate
		}
	}
}
