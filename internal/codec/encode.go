package codec

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/goccy/go-yaml"
	"github.com/rendis/flowbuilder/internal/graph"
	"github.com/rendis/flowbuilder/pkg/schema"
)

// Meta carries the envelope fields of a document that are not part of the graph.
type Meta struct {
	ID           string
	ClientID     string
	CompanyID    string
	WorkflowName string
}

// ToDocument projects a graph snapshot into a workflow document.
// Task, gateway and event blocks are emitted only when set.
func ToDocument(s graph.Snapshot, meta Meta) *schema.WorkflowDocument {
	doc := &schema.WorkflowDocument{
		ID:           meta.ID,
		ClientID:     meta.ClientID,
		CompanyID:    meta.CompanyID,
		WorkflowName: meta.WorkflowName,
		Nodes:        make([]schema.NodeDocument, 0, len(s.Nodes)),
		Edges:        make([]schema.EdgeDocument, 0, len(s.Edges)),
	}
	for _, n := range s.Nodes {
		doc.Nodes = append(doc.Nodes, NodeDocument(n))
	}
	for _, e := range s.Edges {
		doc.Edges = append(doc.Edges, EdgeDocument(e))
	}
	return doc
}

// EdgeDocument projects one edge. Conditions on plain edges are dropped.
func EdgeDocument(e graph.Edge) schema.EdgeDocument {
	ed := schema.EdgeDocument{
		ID:     e.ID,
		Source: e.Source,
		Target: e.Target,
		Type:   e.DocumentType(),
	}
	if e.Kind == graph.EdgeConditional && e.Data.Condition != nil {
		c := *e.Data.Condition
		ed.Condition = &c
	}
	return ed
}

// NodeDocument projects one node.
func NodeDocument(n graph.Node) schema.NodeDocument {
	data := schema.NodeDataDocument{Label: n.Data.Label}
	if n.Data.Task != nil {
		t := *n.Data.Task
		data.Task = &t
	}
	if n.Data.Gateway != nil {
		gw := *n.Data.Gateway
		data.Gateway = &gw
	}
	if !n.Data.Event.IsZero() {
		ev := n.Data.Event
		data.Event = &ev
	}
	if len(n.Data.Mappings) > 0 {
		data.Mappings = slices.Clone(n.Data.Mappings)
	}
	return schema.NodeDocument{
		ID:       n.ID,
		Type:     string(n.Kind),
		Position: n.Position,
		Data:     data,
	}
}

// ToYAML renders a document as YAML with the same field names as its JSON form.
func ToYAML(doc *schema.WorkflowDocument) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal document: %w", err)
	}
	out, err := yaml.JSONToYAML(raw)
	if err != nil {
		return nil, fmt.Errorf("codec: convert to yaml: %w", err)
	}
	return out, nil
}
