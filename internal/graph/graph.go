package graph

import (
	"slices"
	"time"

	"github.com/rendis/flowbuilder/pkg/schema"
)

// Graph is the authoritative editor state: nodes, edges, selection, workflow
// name and the modified flag. Destructive mutators record a pre-mutation
// snapshot in the history before changing anything.
//
// A Graph is not safe for concurrent use; an editor session serializes
// access to it.
type Graph struct {
	ids        *IDAllocator
	history    *History
	assignment AssignmentFunc
	directory  Directory
	now        func() time.Time

	nodes    []Node
	edges    []Edge
	selected string
	name     string
	modified bool
	revision uint64

	lastMappingID int64
}

// Option configures a Graph.
type Option func(*Graph)

// WithAllocator shares an identifier allocator with the graph.
func WithAllocator(a *IDAllocator) Option {
	return func(g *Graph) { g.ids = a }
}

// WithHistoryCapacity overrides the undo depth.
func WithHistoryCapacity(n int) Option {
	return func(g *Graph) { g.history = NewHistory(n) }
}

// WithAssignmentRule sets the predicate that identifies assignment tasks.
func WithAssignmentRule(fn AssignmentFunc) Option {
	return func(g *Graph) { g.assignment = fn }
}

// WithDirectory sets the catalog used to denormalize mappings.
func WithDirectory(d Directory) Option {
	return func(g *Graph) { g.directory = d }
}

// WithClock overrides the time source used for mapping identifiers.
func WithClock(now func() time.Time) Option {
	return func(g *Graph) { g.now = now }
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		ids:        NewIDAllocator(),
		history:    NewHistory(DefaultHistoryCapacity),
		assignment: DefaultAssignmentRule,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allocator returns the graph's identifier allocator.
func (g *Graph) Allocator() *IDAllocator { return g.ids }

// History returns the graph's undo history.
func (g *Graph) History() *History { return g.history }

// AssignmentRule returns the predicate identifying assignment tasks.
func (g *Graph) AssignmentRule() AssignmentFunc { return g.assignment }

// --- Queries ---

// Nodes returns a copy of the nodes in insertion order.
func (g *Graph) Nodes() []Node { return cloneNodes(g.nodes) }

// Edges returns a copy of the edges in insertion order.
func (g *Graph) Edges() []Edge { return cloneEdges(g.edges) }

// Snapshot returns a deep copy of nodes and edges.
func (g *Graph) Snapshot() Snapshot {
	return Snapshot{Nodes: cloneNodes(g.nodes), Edges: cloneEdges(g.edges)}
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	if i := g.nodeIndex(id); i >= 0 {
		return g.nodes[i].Clone(), true
	}
	return Node{}, false
}

// Edge returns a copy of the edge with the given id.
func (g *Graph) Edge(id string) (Edge, bool) {
	if i := g.edgeIndex(id); i >= 0 {
		return g.edges[i].Clone(), true
	}
	return Edge{}, false
}

// WorkflowName returns the name of the loaded workflow.
func (g *Graph) WorkflowName() string { return g.name }

// IsModified reports whether the graph changed since it was loaded or saved.
func (g *Graph) IsModified() bool { return g.modified }

// Revision increases on every change and identifies a graph state for MarkSaved.
func (g *Graph) Revision() uint64 { return g.revision }

// --- Node mutations ---

// AddNode places a new node of the given kind with its default label.
func (g *Graph) AddNode(kind NodeKind, pos schema.Position) (Node, error) {
	if _, ok := ParseNodeKind(string(kind)); !ok {
		return Node{}, schema.NewErrorf(schema.ErrCodeValidation, "unknown node kind %q", kind).WithCause(ErrUnknownKind)
	}
	n := Node{
		ID:       g.ids.NextNodeID(),
		Kind:     kind,
		Position: pos,
		Data:     NodeData{Label: kind.DefaultLabel()},
	}
	g.record()
	g.nodes = append(g.nodes, n)
	g.touch()
	return n.Clone(), nil
}

// MoveNode updates a node's position. Moves are not recorded in history.
func (g *Graph) MoveNode(id string, pos schema.Position) bool {
	i := g.nodeIndex(id)
	if i < 0 {
		return false
	}
	g.nodes[i].Position = pos
	g.touch()
	return true
}

// RemoveNode deletes a node and every edge touching it.
func (g *Graph) RemoveNode(id string) bool {
	i := g.nodeIndex(id)
	if i < 0 {
		return false
	}
	g.record()
	g.nodes = slices.Delete(g.nodes, i, i+1)
	g.edges = slices.DeleteFunc(g.edges, func(e Edge) bool {
		return e.Source == id || e.Target == id
	})
	if g.selected == id {
		g.selected = ""
	}
	g.touch()
	return true
}

// UpdateNodeData merges p into a node's data. See MergeNodeData.
func (g *Graph) UpdateNodeData(id string, p NodePatch) bool {
	i := g.nodeIndex(id)
	if i < 0 {
		return false
	}
	g.record()
	g.nodes[i].Data = MergeNodeData(g.nodes[i].Kind, g.nodes[i].Data, p, g.assignment)
	g.touch()
	return true
}

// --- Edge mutations ---

// Connect adds an edge from source to target, classified by the source kind.
func (g *Graph) Connect(source, target string) (Edge, error) {
	if source == target {
		return Edge{}, schema.NewError(schema.ErrCodeValidation, "cannot connect a node to itself").
			WithNode(source).WithCause(ErrSelfLoop)
	}
	si := g.nodeIndex(source)
	if si < 0 {
		return Edge{}, schema.NewError(schema.ErrCodeNotFound, "source node not found").WithNode(source).WithCause(ErrNodeNotFound)
	}
	if g.nodeIndex(target) < 0 {
		return Edge{}, schema.NewError(schema.ErrCodeNotFound, "target node not found").WithNode(target).WithCause(ErrNodeNotFound)
	}

	kind, data := Classify(g.nodes[si])
	e := Edge{
		ID:     uniqueID(EdgeID(source, target), func(id string) bool { return g.edgeIndex(id) >= 0 }),
		Source: source,
		Target: target,
		Kind:   kind,
		Data:   data,
	}
	g.record()
	g.edges = append(g.edges, e)
	g.touch()
	return e.Clone(), nil
}

// RemoveEdge deletes an edge.
func (g *Graph) RemoveEdge(id string) bool {
	i := g.edgeIndex(id)
	if i < 0 {
		return false
	}
	g.record()
	g.edges = slices.Delete(g.edges, i, i+1)
	g.touch()
	return true
}

// UpdateEdgeData merges p into an edge's data. Conditions can only be set on
// conditional edges. Returns false when the edge does not exist.
func (g *Graph) UpdateEdgeData(id string, p EdgePatch) (bool, error) {
	i := g.edgeIndex(id)
	if i < 0 {
		return false, nil
	}
	if p.Condition.IsSet() && g.edges[i].Kind != EdgeConditional {
		return false, schema.NewErrorf(schema.ErrCodeValidation, "edge %s does not accept a condition", id).WithCause(ErrNotConditional)
	}
	g.record()
	if p.Condition.IsSet() {
		if c, ok := p.Condition.Value(); ok {
			g.edges[i].Data.Condition = &c
		} else {
			g.edges[i].Data.Condition = nil
		}
	}
	g.touch()
	return true, nil
}

// --- Whole-graph operations ---

// ReplaceAll swaps in a new graph, resets history and selection and clears
// the modified flag. The allocator is reseeded from the new node ids.
func (g *Graph) ReplaceAll(s Snapshot, name string) error {
	if err := checkInvariants(s); err != nil {
		return err
	}
	ids := make([]string, len(s.Nodes))
	var maxMapping int64
	for i, n := range s.Nodes {
		ids[i] = n.ID
		for _, m := range n.Data.Mappings {
			maxMapping = max(maxMapping, m.ID)
		}
	}
	g.ids.Reseed(ids)
	g.lastMappingID = max(g.lastMappingID, maxMapping)

	g.nodes = cloneNodes(s.Nodes)
	g.edges = cloneEdges(s.Edges)
	g.name = name
	g.selected = ""
	g.history.Reset()
	g.modified = false
	g.revision++
	return nil
}

// SetWorkflowName renames the workflow.
func (g *Graph) SetWorkflowName(name string) {
	if name == g.name {
		return
	}
	g.name = name
	g.touch()
}

// Undo restores the most recent recorded snapshot and marks the graph
// modified. Returns false when there is nothing to undo.
func (g *Graph) Undo() bool {
	s, ok := g.history.Undo()
	if !ok {
		return false
	}
	g.nodes = s.Nodes
	g.edges = s.Edges
	if g.selected != "" && g.nodeIndex(g.selected) < 0 {
		g.selected = ""
	}
	g.touch()
	return true
}

// MarkSaved clears the modified flag if the graph is still at revision.
func (g *Graph) MarkSaved(revision uint64) bool {
	if revision != g.revision {
		return false
	}
	g.modified = false
	return true
}

// --- Selection ---

// Select marks a node as selected. Returns false if it does not exist.
func (g *Graph) Select(id string) bool {
	if g.nodeIndex(id) < 0 {
		return false
	}
	g.selected = id
	return true
}

// ClearSelection deselects any node.
func (g *Graph) ClearSelection() { g.selected = "" }

// Selected returns the selected node, if any.
func (g *Graph) Selected() (Node, bool) {
	if g.selected == "" {
		return Node{}, false
	}
	return g.Node(g.selected)
}

// --- Internal helpers ---

func (g *Graph) record() {
	g.history.Record(Snapshot{Nodes: g.nodes, Edges: g.edges})
}

func (g *Graph) touch() {
	g.modified = true
	g.revision++
}

func (g *Graph) nodeIndex(id string) int {
	return slices.IndexFunc(g.nodes, func(n Node) bool { return n.ID == id })
}

func (g *Graph) edgeIndex(id string) int {
	return slices.IndexFunc(g.edges, func(e Edge) bool { return e.ID == id })
}

// checkInvariants verifies unique ids, known kinds, existing endpoints and
// the absence of self loops.
func checkInvariants(s Snapshot) error {
	nodes := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.ID == "" || nodes[n.ID] {
			return schema.NewErrorf(schema.ErrCodeValidation, "duplicate or empty node id %q", n.ID).WithCause(ErrInvalidGraph)
		}
		if _, ok := ParseNodeKind(string(n.Kind)); !ok {
			return schema.NewErrorf(schema.ErrCodeValidation, "unknown node kind %q", n.Kind).WithNode(n.ID).WithCause(ErrInvalidGraph)
		}
		nodes[n.ID] = true
	}
	edges := make(map[string]bool, len(s.Edges))
	for _, e := range s.Edges {
		switch {
		case e.ID == "" || edges[e.ID]:
			return schema.NewErrorf(schema.ErrCodeValidation, "duplicate or empty edge id %q", e.ID).WithCause(ErrInvalidGraph)
		case !nodes[e.Source] || !nodes[e.Target]:
			return schema.NewErrorf(schema.ErrCodeValidation, "edge %s references a missing node", e.ID).WithCause(ErrInvalidGraph)
		case e.Source == e.Target:
			return schema.NewErrorf(schema.ErrCodeValidation, "edge %s is a self loop", e.ID).WithCause(ErrInvalidGraph)
		}
		edges[e.ID] = true
	}
	return nil
}
