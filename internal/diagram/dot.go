package diagram

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

// RenderDOT renders a DiagramModel as Graphviz DOT source. Parallel edges
// between the same pair of nodes collapse into one; their labels are joined.
func RenderDOT(model *DiagramModel) (string, error) {
	g := graph.New(graph.StringHash, graph.Directed())

	for _, node := range model.Nodes {
		attrs := []func(*graph.VertexProperties){
			graph.VertexAttribute("label", dotEscape(nodeCaption(node))),
			graph.VertexAttribute("shape", dotShape(node.Kind)),
		}
		if node.Issue != nil {
			attrs = append(attrs,
				graph.VertexAttribute("style", "filled"),
				graph.VertexAttribute("fillcolor", issueColor(node.Issue.Severity)),
				graph.VertexAttribute("fontcolor", "white"),
			)
		}
		if err := g.AddVertex(node.ID, attrs...); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return "", fmt.Errorf("diagram: add vertex %s: %w", node.ID, err)
		}
	}

	for _, edge := range model.Edges {
		attrs := []func(*graph.EdgeProperties){}
		if edge.Label != "" {
			attrs = append(attrs, graph.EdgeAttribute("label", dotEscape(edge.Label)))
		}
		if edge.Conditional && edge.Label == "" {
			attrs = append(attrs, graph.EdgeAttribute("style", "dotted"))
		}
		err := g.AddEdge(edge.From, edge.To, attrs...)
		switch {
		case err == nil:
		case errors.Is(err, graph.ErrEdgeAlreadyExists):
			if edge.Label != "" {
				mergeEdgeLabel(g, edge)
			}
		default:
			return "", fmt.Errorf("diagram: add edge %s -> %s: %w", edge.From, edge.To, err)
		}
	}

	var buf bytes.Buffer
	if err := draw.DOT(g, &buf, draw.GraphAttribute("label", dotEscape(model.Title))); err != nil {
		return "", fmt.Errorf("diagram: draw DOT: %w", err)
	}
	return buf.String(), nil
}

func mergeEdgeLabel(g graph.Graph[string, string], edge Edge) {
	existing, err := g.Edge(edge.From, edge.To)
	if err != nil {
		return
	}
	label := dotEscape(edge.Label)
	if prev := existing.Properties.Attributes["label"]; prev != "" {
		label = prev + " / " + edge.Label
	}
	_ = g.UpdateEdge(edge.From, edge.To, graph.EdgeAttribute("label", label))
}

// dotEscape makes s safe inside a quoted DOT string.
func dotEscape(s string) string {
	return strings.NewReplacer(`"`, `\"`, "\n", `\n`).Replace(s)
}

func dotShape(kind NodeKind) string {
	switch kind {
	case NodeKindGateway:
		return "diamond"
	case NodeKindEvent:
		return "circle"
	default:
		return "box"
	}
}
