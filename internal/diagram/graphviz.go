package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// RenderImage renders a DiagramModel as a PNG image using graphviz.
// Returns the PNG bytes.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	return render(ctx, model, graphviz.PNG)
}

// RenderSVG renders a DiagramModel as an SVG document using graphviz.
func RenderSVG(ctx context.Context, model *DiagramModel) ([]byte, error) {
	return render(ctx, model, graphviz.SVG)
}

func render(ctx context.Context, model *DiagramModel, format graphviz.Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		gvNode, nErr := graph.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(nodeCaption(node))
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	// Mapping clusters hang off their task with an undirected dashed link.
	for _, node := range model.Nodes {
		for _, sg := range node.Children {
			sub, subErr := graph.CreateSubGraphByName("cluster_" + node.ID + "_" + sg.Label)
			if subErr != nil {
				continue
			}
			sub.SetLabel(sg.Label)
			sub.SetStyle(cgraph.DashedGraphStyle)

			for _, item := range sg.Nodes {
				gvItem, nErr := sub.CreateNodeByName(item.ID)
				if nErr != nil {
					continue
				}
				gvItem.SetLabel(item.Label)
				gvItem.SetShape(cgraph.PlainTextShape)
				if e, eErr := graph.CreateEdgeByName("", gvNodes[node.ID], gvItem); eErr == nil {
					e.SetStyle(cgraph.DashedEdgeStyle)
					e.SetArrowHead(cgraph.NoneArrow)
				}
			}
		}
	}

	for i, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName(fmt.Sprintf("e%d", i), fromGV, toGV)
		if eErr != nil {
			continue
		}
		if edge.Label != "" {
			e.SetLabel(edge.Label)
		}
		if edge.Conditional && edge.Label == "" {
			e.SetStyle(cgraph.DottedEdgeStyle)
		}
		if edge.Issue != nil {
			e.SetColor(issueColor(edge.Issue.Severity))
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, format, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}

	return buf.Bytes(), nil
}

// nodeCaption is the label plus the selected definition type, if any.
func nodeCaption(node *Node) string {
	if node.Detail == "" {
		return firstLine(node.Label)
	}
	return firstLine(node.Label) + "\n(" + node.Detail + ")"
}

// applyNodeStyle sets graphviz attributes based on node kind and findings.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindTask:
		gvNode.SetShape(cgraph.BoxShape)
	case NodeKindGateway:
		gvNode.SetShape(cgraph.DiamondShape)
	case NodeKindEvent:
		gvNode.SetShape(cgraph.CircleShape)
	}

	if node.Issue != nil {
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor(issueColor(node.Issue.Severity))
		gvNode.SetFontColor("white")
	}
}

func issueColor(severity string) string {
	if severity == "error" {
		return "#8b1a1a"
	}
	return "#b7791a"
}
