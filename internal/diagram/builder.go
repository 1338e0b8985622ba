package diagram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rendis/flowbuilder/pkg/schema"
)

// Build constructs a DiagramModel from a workflow document. Findings from an
// optional validation result are attached to the nodes and edges they point
// at. Nodes keep document order; Levels layer them breadth-first from the
// nodes without incoming edges.
func Build(doc *schema.WorkflowDocument, findings *schema.ValidationResult) (*DiagramModel, error) {
	if doc == nil {
		return nil, fmt.Errorf("diagram: nil workflow document")
	}

	nodeIndex := make(map[string]*Node, len(doc.Nodes))
	nodes := make([]*Node, 0, len(doc.Nodes))
	for _, nd := range doc.Nodes {
		if _, dup := nodeIndex[nd.ID]; dup {
			continue
		}
		node := docToNode(nd)
		nodes = append(nodes, node)
		nodeIndex[nd.ID] = node
	}

	edges := make([]Edge, 0, len(doc.Edges))
	for _, ed := range doc.Edges {
		if nodeIndex[ed.Source] == nil || nodeIndex[ed.Target] == nil {
			continue
		}
		e := Edge{
			ID:          ed.ID,
			From:        ed.Source,
			To:          ed.Target,
			Conditional: ed.Type == schema.EdgeTypeCondition,
		}
		if ed.Condition != nil {
			e.Label = ed.Condition.ConditionName
		}
		edges = append(edges, e)
	}

	model := &DiagramModel{
		Title:  titleFromDoc(doc),
		Nodes:  nodes,
		Edges:  edges,
		Levels: buildLevels(nodes, edges),
	}
	overlayFindings(model, doc, findings)
	return model, nil
}

// docToNode maps a document node to a diagram Node.
func docToNode(nd schema.NodeDocument) *Node {
	node := &Node{
		ID:    nd.ID,
		Label: nd.Data.Label,
		Kind:  nodeKind(nd.Type),
	}
	if node.Label == "" {
		node.Label = nd.ID
	}
	switch {
	case nd.Data.Task != nil:
		node.Detail = nd.Data.Task.Type
	case nd.Data.Gateway != nil:
		node.Detail = nd.Data.Gateway.Type
	case nd.Data.Event != nil:
		node.Detail = firstNonEmpty(nd.Data.Event.Type, nd.Data.Event.EventName)
	}
	if len(nd.Data.Mappings) > 0 {
		node.Children = append(node.Children, mappingSubGraph(nd.ID, nd.Data.Mappings))
	}
	return node
}

func nodeKind(t string) NodeKind {
	switch t {
	case schema.NodeTypeGateway:
		return NodeKindGateway
	case schema.NodeTypeEvent:
		return NodeKindEvent
	default:
		return NodeKindTask
	}
}

// mappingSubGraph lists a task's product-employee pairs.
// Item ids follow nodeID.mappings.mappingID.
func mappingSubGraph(nodeID string, mappings []schema.Mapping) *SubGraph {
	sg := &SubGraph{Label: "mappings"}
	for _, m := range mappings {
		sg.Nodes = append(sg.Nodes, &Node{
			ID:    nodeID + ".mappings." + strconv.FormatInt(m.ID, 10),
			Label: firstNonEmpty(m.ProductName, m.ProductID) + " -> " + firstNonEmpty(m.EmployeeName, m.EmployeeID),
			Kind:  NodeKindTask,
		})
	}
	return sg
}

// buildLevels layers nodes by BFS distance from the roots. Nodes only
// reachable through a cycle, or not at all, form a trailing level.
func buildLevels(nodes []*Node, edges []Edge) [][]string {
	out := make(map[string][]string, len(nodes))
	inDegree := make(map[string]int, len(nodes))
	for _, e := range edges {
		out[e.From] = append(out[e.From], e.To)
		inDegree[e.To]++
	}

	depth := make(map[string]int, len(nodes))
	var queue []string
	for _, n := range nodes {
		if inDegree[n.ID] == 0 {
			depth[n.ID] = 0
			queue = append(queue, n.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range out[id] {
			if _, seen := depth[next]; !seen {
				depth[next] = depth[id] + 1
				queue = append(queue, next)
			}
		}
	}

	var levels [][]string
	var rest []string
	for _, n := range nodes {
		d, ok := depth[n.ID]
		if !ok {
			rest = append(rest, n.ID)
			continue
		}
		for len(levels) <= d {
			levels = append(levels, nil)
		}
		levels[d] = append(levels[d], n.ID)
	}
	if len(rest) > 0 {
		levels = append(levels, rest)
	}
	return levels
}

// overlayFindings attaches validation issues whose path starts with
// nodes[i] or edges[i].
func overlayFindings(model *DiagramModel, doc *schema.WorkflowDocument, findings *schema.ValidationResult) {
	if findings == nil {
		return
	}
	byNode := make(map[string]*Node, len(model.Nodes))
	for _, n := range model.Nodes {
		byNode[n.ID] = n
	}
	byEdge := make(map[string]*Edge, len(model.Edges))
	for i := range model.Edges {
		byEdge[model.Edges[i].ID] = &model.Edges[i]
	}

	apply := func(issues []schema.ValidationIssue, severity string) {
		for _, is := range issues {
			kind, idx, ok := pathIndex(is.Path)
			if !ok {
				continue
			}
			var target **IssueOverlay
			switch {
			case kind == "nodes" && idx < len(doc.Nodes):
				if n := byNode[doc.Nodes[idx].ID]; n != nil {
					target = &n.Issue
				}
			case kind == "edges" && idx < len(doc.Edges):
				if e := byEdge[doc.Edges[idx].ID]; e != nil {
					target = &e.Issue
				}
			}
			if target == nil {
				continue
			}
			if *target == nil {
				*target = &IssueOverlay{Severity: severity}
			}
			(*target).Messages = append((*target).Messages, is.Message)
		}
	}
	apply(findings.Errors, "error")
	apply(findings.Warnings, "warning")
}

// pathIndex parses "nodes[3].data.task" into ("nodes", 3).
func pathIndex(path string) (string, int, bool) {
	open := strings.IndexByte(path, '[')
	closing := strings.IndexByte(path, ']')
	if open <= 0 || closing <= open+1 {
		return "", 0, false
	}
	idx, err := strconv.Atoi(path[open+1 : closing])
	if err != nil || idx < 0 {
		return "", 0, false
	}
	return path[:open], idx, true
}

// titleFromDoc generates a diagram title from the workflow name.
func titleFromDoc(doc *schema.WorkflowDocument) string {
	if doc.WorkflowName != "" {
		return doc.WorkflowName
	}
	return "Workflow"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
