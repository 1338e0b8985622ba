package validation

import (
	"testing"

	"github.com/rendis/flowbuilder/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFlow_Linear(t *testing.T) {
	result := validateFlow(validDoc())
	assert.Empty(t, result.Warnings)
}

func TestValidateFlow_Empty(t *testing.T) {
	result := validateFlow(&schema.WorkflowDocument{})
	assert.Equal(t, []string{CodeEmptyWorkflow}, codes(result.Warnings))
}

func TestValidateFlow_Cycle(t *testing.T) {
	doc := validDoc()
	back := edge("reject", "review", schema.EdgeTypeDefault)
	doc.Edges = append(doc.Edges, back)

	result := validateFlow(doc)
	require.Contains(t, codes(result.Warnings), CodeCycle)
	for _, w := range result.Warnings {
		if w.Code == CodeCycle {
			assert.Equal(t, "nodes[1]", w.Path)
			assert.Contains(t, w.Message, "review")
			assert.Contains(t, w.Message, "reject")
		}
	}
}

func TestValidateFlow_NoStart(t *testing.T) {
	doc := &schema.WorkflowDocument{
		Nodes: []schema.NodeDocument{node("a", schema.NodeTypeTask), node("b", schema.NodeTypeTask)},
		Edges: []schema.EdgeDocument{
			edge("a", "b", schema.EdgeTypeDefault),
			edge("b", "a", schema.EdgeTypeDefault),
		},
	}
	result := validateFlow(doc)
	assert.Contains(t, codes(result.Warnings), CodeNoStart)
	assert.Contains(t, codes(result.Warnings), CodeCycle)
}

func TestValidateFlow_DisconnectedAndUnreachable(t *testing.T) {
	doc := validDoc()
	doc.Nodes = append(doc.Nodes, node("island", schema.NodeTypeTask))
	// loop0 <-> loop1 are only reachable from each other.
	doc.Nodes = append(doc.Nodes, node("loop0", schema.NodeTypeTask), node("loop1", schema.NodeTypeTask))
	doc.Edges = append(doc.Edges,
		edge("loop0", "loop1", schema.EdgeTypeDefault),
		edge("loop1", "loop0", schema.EdgeTypeDefault),
	)

	result := validateFlow(doc)
	got := codes(result.Warnings)
	assert.Contains(t, got, CodeDisconnected)
	assert.Contains(t, got, CodeUnreachable)
}

func TestValidateFlow_GatewaySingleBranch(t *testing.T) {
	doc := validDoc()
	doc.Edges = doc.Edges[:3]
	doc.Nodes = doc.Nodes[:4]

	result := validateFlow(doc)
	assert.Contains(t, codes(result.Warnings), CodeGatewayFanOut)
}

func TestValidateFlow_ParallelEdgesTolerated(t *testing.T) {
	doc := validDoc()
	dup := doc.Edges[0]
	dup.ID = dup.ID + "_1"
	doc.Edges = append(doc.Edges, dup)

	result := validateFlow(doc)
	assert.Empty(t, result.Warnings)
}
