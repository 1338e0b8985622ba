package validation

import (
	"fmt"
	"slices"

	"github.com/dominikbraun/graph"
	"github.com/rendis/flowbuilder/pkg/schema"
)

// validateFlow analyses the document as a directed graph. Everything it
// reports is a warning: BPMN processes may loop, and drafts are often
// incomplete.
func validateFlow(doc *schema.WorkflowDocument) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if len(doc.Nodes) == 0 {
		result.AddWarning("nodes", CodeEmptyWorkflow, "workflow has no nodes")
		return result
	}

	g := graph.New(graph.StringHash, graph.Directed())
	index := make(map[string]int, len(doc.Nodes))
	for i, n := range doc.Nodes {
		if err := g.AddVertex(n.ID); err != nil {
			continue // duplicates already reported
		}
		index[n.ID] = i
	}

	inDegree := make(map[string]int, len(doc.Nodes))
	outDegree := make(map[string]int, len(doc.Nodes))
	for _, e := range doc.Edges {
		if e.Source == e.Target {
			continue
		}
		if _, ok := index[e.Source]; !ok {
			continue
		}
		if _, ok := index[e.Target]; !ok {
			continue
		}
		// Parallel edges between the same pair are legal in the document.
		_ = g.AddEdge(e.Source, e.Target)
		inDegree[e.Target]++
		outDegree[e.Source]++
	}

	checkCycles(g, index, result)

	var starts []string
	for _, n := range doc.Nodes {
		if inDegree[n.ID] == 0 {
			starts = append(starts, n.ID)
		}
	}
	if len(starts) == 0 {
		result.AddWarning("nodes", CodeNoStart, "every node has an incoming edge; no start node")
	}

	reached := make(map[string]bool, len(doc.Nodes))
	for _, s := range starts {
		_ = graph.BFS(g, s, func(id string) bool {
			reached[id] = true
			return false
		})
	}

	for i, n := range doc.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		switch {
		case len(doc.Nodes) > 1 && inDegree[n.ID] == 0 && outDegree[n.ID] == 0:
			result.AddWarning(path, CodeDisconnected, fmt.Sprintf("node %q has no connections", n.ID))
		case len(starts) > 0 && !reached[n.ID]:
			result.AddWarning(path, CodeUnreachable, fmt.Sprintf("node %q is not reachable from a start node", n.ID))
		}
		if n.Type == schema.NodeTypeGateway && outDegree[n.ID] == 1 {
			result.AddWarning(path, CodeGatewayFanOut, fmt.Sprintf("gateway %q has a single outgoing branch", n.ID))
		}
	}
	return result
}

// checkCycles reports every strongly connected component with more than one
// node as a cycle.
func checkCycles(g graph.Graph[string, string], index map[string]int, result *schema.ValidationResult) {
	components, err := graph.StronglyConnectedComponents(g)
	if err != nil {
		return
	}
	for _, comp := range components {
		if len(comp) < 2 {
			continue
		}
		slices.SortFunc(comp, func(a, b string) int { return index[a] - index[b] })
		result.AddWarning(fmt.Sprintf("nodes[%d]", index[comp[0]]), CodeCycle,
			fmt.Sprintf("nodes %v form a cycle", comp))
	}
}
