package graph

import (
	"slices"

	"github.com/rendis/flowbuilder/pkg/schema"
)

// NodeKind is the closed set of node categories.
type NodeKind string

const (
	KindTask    NodeKind = schema.NodeTypeTask
	KindGateway NodeKind = schema.NodeTypeGateway
	KindEvent   NodeKind = schema.NodeTypeEvent
)

// ParseNodeKind maps a document type name to a NodeKind.
func ParseNodeKind(s string) (NodeKind, bool) {
	switch NodeKind(s) {
	case KindTask, KindGateway, KindEvent:
		return NodeKind(s), true
	}
	return "", false
}

// DefaultLabel is the label a freshly dropped node carries, e.g. "Task Node".
func (k NodeKind) DefaultLabel() string {
	switch k {
	case KindTask:
		return "Task Node"
	case KindGateway:
		return "Gateway Node"
	case KindEvent:
		return "Event Node"
	}
	return "Node"
}

// EdgeKind distinguishes plain sequence flow from conditional flow.
type EdgeKind string

const (
	EdgePlain       EdgeKind = "plain"
	EdgeConditional EdgeKind = "conditional"
)

// NodeData is the kind-dependent payload of a node.
type NodeData struct {
	Label    string
	Task     *schema.Definition
	Gateway  *schema.Definition
	Event    schema.EventData
	Mappings []schema.Mapping
}

// Clone returns a deep copy.
func (d NodeData) Clone() NodeData {
	out := d
	out.Task = cloneDefinition(d.Task)
	out.Gateway = cloneDefinition(d.Gateway)
	out.Mappings = slices.Clone(d.Mappings)
	return out
}

// Node is a vertex on the canvas.
type Node struct {
	ID       string
	Kind     NodeKind
	Position schema.Position
	Data     NodeData
}

// Clone returns a deep copy.
func (n Node) Clone() Node {
	n.Data = n.Data.Clone()
	return n
}

// EdgeData is the payload of an edge. Condition is only meaningful on
// conditional edges, where nil means "no condition chosen yet".
type EdgeData struct {
	Condition *schema.Condition
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID     string
	Source string
	Target string
	Kind   EdgeKind
	// Variant is the rendering style of a plain edge ("default", "smoothstep").
	Variant string
	Data    EdgeData
}

// Clone returns a deep copy.
func (e Edge) Clone() Edge {
	if e.Data.Condition != nil {
		c := *e.Data.Condition
		e.Data.Condition = &c
	}
	return e
}

// Snapshot is an immutable copy of a graph's nodes and edges.
type Snapshot struct {
	Nodes []Node
	Edges []Edge
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{Nodes: cloneNodes(s.Nodes), Edges: cloneEdges(s.Edges)}
}

func cloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

func cloneEdges(edges []Edge) []Edge {
	if edges == nil {
		return nil
	}
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = e.Clone()
	}
	return out
}

func cloneDefinition(d *schema.Definition) *schema.Definition {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
