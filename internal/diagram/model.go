package diagram

// NodeKind classifies a diagram node by its workflow node type.
type NodeKind string

const (
	NodeKindTask    NodeKind = "task"
	NodeKindGateway NodeKind = "gateway"
	NodeKindEvent   NodeKind = "event"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node represents a single workflow node in the diagram.
type Node struct {
	ID       string
	Label    string
	Kind     NodeKind
	Detail   string        // selected task, gateway or event name
	Issue    *IssueOverlay // worst validation finding on the node
	Children []*SubGraph   // mappings of assignment tasks
}

// SubGraph holds nested items drawn inside a node's cluster.
type SubGraph struct {
	Label string
	Nodes []*Node
	Edges []Edge
}

// IssueOverlay marks a node or edge with validation findings.
type IssueOverlay struct {
	Severity string // "error" or "warning"
	Messages []string
}

// Edge represents a connection between two nodes.
type Edge struct {
	ID          string
	From        string
	To          string
	Label       string
	Conditional bool
	Issue       *IssueOverlay
}
