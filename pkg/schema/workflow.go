package schema

import "encoding/json"

// Node type names as they appear in workflow documents.
const (
	NodeTypeTask    = "task"
	NodeTypeGateway = "gateway"
	NodeTypeEvent   = "event"
)

// Edge type names as they appear in workflow documents.
const (
	EdgeTypeDefault    = "default"
	EdgeTypeCondition  = "condition"
	EdgeTypeSmoothStep = "smoothstep"
)

// WorkflowDocument is the portable JSON form of a workflow graph exchanged
// with the backend.
type WorkflowDocument struct {
	ID           string         `json:"id,omitempty"`
	ClientID     string         `json:"clientId,omitempty"`
	CompanyID    string         `json:"companyId,omitempty"`
	WorkflowName string         `json:"workflowName"`
	Nodes        []NodeDocument `json:"nodes"`
	Edges        []EdgeDocument `json:"edges"`
}

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeDocument is one node of a WorkflowDocument.
type NodeDocument struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Position Position         `json:"position"`
	Data     NodeDataDocument `json:"data"`
}

// NodeDataDocument is the projected node payload. Only blocks relevant to the
// node's selections are emitted.
type NodeDataDocument struct {
	Label    string      `json:"label"`
	Task     *Definition `json:"task,omitempty"`
	Gateway  *Definition `json:"gateway,omitempty"`
	Event    *EventData  `json:"event,omitempty"`
	Mappings []Mapping   `json:"mappings,omitempty"`
}

// EdgeDocument is one edge of a WorkflowDocument.
type EdgeDocument struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	Target    string     `json:"target"`
	Type      string     `json:"type"`
	Condition *Condition `json:"condition,omitempty"`
}

// JSON returns the indented JSON encoding of the document.
func (d *WorkflowDocument) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
