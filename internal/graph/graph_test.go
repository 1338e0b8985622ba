package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/rendis/flowbuilder/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func mustAdd(t *testing.T, g *Graph, kind NodeKind) Node {
	t.Helper()
	n, err := g.AddNode(kind, schema.Position{X: 10, Y: 20})
	require.NoError(t, err)
	return n
}

func mustConnect(t *testing.T, g *Graph, source, target string) Edge {
	t.Helper()
	e, err := g.Connect(source, target)
	require.NoError(t, err)
	return e
}

// --- Nodes ---

func TestGraph_AddNode_DefaultLabels(t *testing.T) {
	g := New()
	task := mustAdd(t, g, KindTask)
	gw := mustAdd(t, g, KindGateway)
	ev := mustAdd(t, g, KindEvent)

	assert.Equal(t, "node_0", task.ID)
	assert.Equal(t, "Task Node", task.Data.Label)
	assert.Equal(t, "node_1", gw.ID)
	assert.Equal(t, "Gateway Node", gw.Data.Label)
	assert.Equal(t, "node_2", ev.ID)
	assert.Equal(t, "Event Node", ev.Data.Label)
	assert.True(t, g.IsModified())
}

func TestGraph_AddNode_UnknownKind(t *testing.T) {
	g := New()
	_, err := g.AddNode("subprocess", schema.Position{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKind))
	assert.Empty(t, g.Nodes())
	assert.False(t, g.History().CanUndo())
}

func TestGraph_RemoveNode_CascadesEdges(t *testing.T) {
	g := New()
	a := mustAdd(t, g, KindTask)
	b := mustAdd(t, g, KindTask)
	c := mustAdd(t, g, KindTask)
	mustConnect(t, g, a.ID, b.ID)
	mustConnect(t, g, b.ID, c.ID)
	mustConnect(t, g, a.ID, c.ID)

	require.True(t, g.RemoveNode(b.ID))

	edges := g.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, "edge_node_0_node_2", edges[0].ID)
	for _, e := range edges {
		assert.NotEqual(t, b.ID, e.Source)
		assert.NotEqual(t, b.ID, e.Target)
	}
}

func TestGraph_RemoveNode_Absent(t *testing.T) {
	g := New()
	assert.False(t, g.RemoveNode("node_9"))
	assert.False(t, g.IsModified())
	assert.False(t, g.History().CanUndo())
}

func TestGraph_RemoveNode_ClearsSelection(t *testing.T) {
	g := New()
	a := mustAdd(t, g, KindTask)
	require.True(t, g.Select(a.ID))
	g.RemoveNode(a.ID)
	_, ok := g.Selected()
	assert.False(t, ok)
}

func TestGraph_MoveNode_NotRecorded(t *testing.T) {
	g := New()
	a := mustAdd(t, g, KindTask)
	before := g.History().Len()

	require.True(t, g.MoveNode(a.ID, schema.Position{X: 99, Y: 1}))
	n, _ := g.Node(a.ID)
	assert.Equal(t, schema.Position{X: 99, Y: 1}, n.Position)
	assert.Equal(t, before, g.History().Len())
	assert.False(t, g.MoveNode("node_9", schema.Position{}))
}

// --- Edges ---

func TestGraph_Connect_GatewayIsConditional(t *testing.T) {
	g := New()
	gw := mustAdd(t, g, KindGateway)
	task := mustAdd(t, g, KindTask)

	e := mustConnect(t, g, gw.ID, task.ID)
	assert.Equal(t, "edge_node_0_node_1", e.ID)
	assert.Equal(t, EdgeConditional, e.Kind)
	assert.Nil(t, e.Data.Condition)
	assert.Equal(t, schema.EdgeTypeCondition, e.DocumentType())
}

func TestGraph_Connect_OtherSourcesArePlain(t *testing.T) {
	for _, kind := range []NodeKind{KindTask, KindEvent} {
		g := New()
		src := mustAdd(t, g, kind)
		dst := mustAdd(t, g, KindGateway)
		e := mustConnect(t, g, src.ID, dst.ID)
		assert.Equal(t, EdgePlain, e.Kind, kind)
		assert.Equal(t, schema.EdgeTypeDefault, e.DocumentType())
	}
}

func TestGraph_Connect_Rejections(t *testing.T) {
	g := New()
	a := mustAdd(t, g, KindTask)
	before := g.History().Len()

	_, err := g.Connect(a.ID, a.ID)
	assert.True(t, errors.Is(err, ErrSelfLoop))

	_, err = g.Connect(a.ID, "node_9")
	assert.True(t, errors.Is(err, ErrNodeNotFound))
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))

	_, err = g.Connect("node_9", a.ID)
	assert.True(t, errors.Is(err, ErrNodeNotFound))

	assert.Empty(t, g.Edges())
	assert.Equal(t, before, g.History().Len())
}

func TestGraph_Connect_DuplicatePairGetsSuffix(t *testing.T) {
	g := New()
	a := mustAdd(t, g, KindGateway)
	b := mustAdd(t, g, KindTask)

	first := mustConnect(t, g, a.ID, b.ID)
	second := mustConnect(t, g, a.ID, b.ID)
	third := mustConnect(t, g, a.ID, b.ID)

	assert.Equal(t, "edge_node_0_node_1", first.ID)
	assert.Equal(t, "edge_node_0_node_1_1", second.ID)
	assert.Equal(t, "edge_node_0_node_1_2", third.ID)
}

func TestGraph_UpdateEdgeData_Condition(t *testing.T) {
	g := New()
	gw := mustAdd(t, g, KindGateway)
	task := mustAdd(t, g, KindTask)
	e := mustConnect(t, g, gw.ID, task.ID)

	cond := schema.Condition{ConditionKey: "c1", ConditionName: "Approved", ConditionExpression: "${approved}"}
	ok, err := g.UpdateEdgeData(e.ID, EdgePatch{Condition: Set(cond)})
	require.NoError(t, err)
	require.True(t, ok)

	got, _ := g.Edge(e.ID)
	require.NotNil(t, got.Data.Condition)
	assert.Equal(t, cond, *got.Data.Condition)

	ok, err = g.UpdateEdgeData(e.ID, EdgePatch{Condition: Clear[schema.Condition]()})
	require.NoError(t, err)
	require.True(t, ok)
	got, _ = g.Edge(e.ID)
	assert.Nil(t, got.Data.Condition)
}

func TestGraph_UpdateEdgeData_PlainRejectsCondition(t *testing.T) {
	g := New()
	a := mustAdd(t, g, KindTask)
	b := mustAdd(t, g, KindTask)
	e := mustConnect(t, g, a.ID, b.ID)

	ok, err := g.UpdateEdgeData(e.ID, EdgePatch{Condition: Set(schema.Condition{ConditionKey: "x"})})
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrNotConditional))

	ok, err = g.UpdateEdgeData("edge_missing", EdgePatch{})
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestGraph_RemoveEdge(t *testing.T) {
	g := New()
	a := mustAdd(t, g, KindTask)
	b := mustAdd(t, g, KindTask)
	e := mustConnect(t, g, a.ID, b.ID)

	assert.True(t, g.RemoveEdge(e.ID))
	assert.False(t, g.RemoveEdge(e.ID))
	assert.Len(t, g.Nodes(), 2)
}

// --- Undo ---

func TestGraph_Undo_RestoresPreviousState(t *testing.T) {
	g := New()
	gw := mustAdd(t, g, KindGateway)
	task := mustAdd(t, g, KindTask)
	e := mustConnect(t, g, gw.ID, task.ID)
	assert.Equal(t, "edge_node_0_node_1", e.ID)

	before := g.Snapshot()
	require.True(t, g.RemoveNode(gw.ID))
	assert.Empty(t, g.Edges())

	require.True(t, g.Undo())
	assert.Equal(t, before, g.Snapshot())
	assert.True(t, g.IsModified())
}

func TestGraph_Undo_EveryMutation(t *testing.T) {
	mutations := []struct {
		label string
		apply func(g *Graph)
	}{
		{label: "add node", apply: func(g *Graph) { _, _ = g.AddNode(KindEvent, schema.Position{}) }},
		{label: "remove node", apply: func(g *Graph) { g.RemoveNode("node_1") }},
		{label: "connect", apply: func(g *Graph) { _, _ = g.Connect("node_1", "node_0") }},
		{label: "remove edge", apply: func(g *Graph) { g.RemoveEdge("edge_node_0_node_1") }},
		{label: "update node", apply: func(g *Graph) {
			g.UpdateNodeData("node_0", NodePatch{Task: Set(schema.Definition{Key: "t", Name: "Approve"})})
		}},
		{label: "update edge", apply: func(g *Graph) {
			_, _ = g.UpdateEdgeData("edge_node_0_node_1", EdgePatch{Condition: Set(schema.Condition{ConditionKey: "c"})})
		}},
	}
	for _, tt := range mutations {
		t.Run(tt.label, func(t *testing.T) {
			g := New()
			mustAdd(t, g, KindGateway)
			mustAdd(t, g, KindTask)
			mustConnect(t, g, "node_0", "node_1")

			before := g.Snapshot()
			tt.apply(g)
			require.True(t, g.Undo())
			assert.Equal(t, before, g.Snapshot())
		})
	}
}

func TestGraph_Undo_NothingToUndo(t *testing.T) {
	g := New()
	assert.False(t, g.Undo())
	assert.False(t, g.IsModified())
}

// --- Whole graph ---

func TestGraph_ReplaceAll(t *testing.T) {
	g := New()
	mustAdd(t, g, KindTask)
	g.Select("node_0")

	s := Snapshot{
		Nodes: []Node{
			{ID: "node_4", Kind: KindTask, Data: NodeData{Label: "A"}},
			{ID: "start", Kind: KindEvent, Data: NodeData{Label: "Start"}},
		},
		Edges: []Edge{{ID: "e1", Source: "start", Target: "node_4", Kind: EdgePlain}},
	}
	require.NoError(t, g.ReplaceAll(s, "onboarding"))

	assert.Equal(t, "onboarding", g.WorkflowName())
	assert.False(t, g.IsModified())
	assert.False(t, g.History().CanUndo())
	_, selected := g.Selected()
	assert.False(t, selected)

	n := mustAdd(t, g, KindTask)
	assert.Equal(t, "node_5", n.ID)
}

func TestGraph_ReplaceAll_RejectsBrokenGraph(t *testing.T) {
	tests := []struct {
		label string
		snap  Snapshot
	}{
		{label: "duplicate node", snap: Snapshot{Nodes: []Node{{ID: "a", Kind: KindTask}, {ID: "a", Kind: KindTask}}}},
		{label: "unknown kind", snap: Snapshot{Nodes: []Node{{ID: "a", Kind: "lane"}}}},
		{label: "dangling edge", snap: Snapshot{
			Nodes: []Node{{ID: "a", Kind: KindTask}},
			Edges: []Edge{{ID: "e", Source: "a", Target: "b"}},
		}},
		{label: "self loop", snap: Snapshot{
			Nodes: []Node{{ID: "a", Kind: KindTask}},
			Edges: []Edge{{ID: "e", Source: "a", Target: "a"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			g := New()
			err := g.ReplaceAll(tt.snap, "x")
			assert.True(t, errors.Is(err, ErrInvalidGraph))
			assert.Empty(t, g.Nodes())
		})
	}
}

func TestGraph_MarkSaved_RevisionGuard(t *testing.T) {
	g := New()
	mustAdd(t, g, KindTask)

	rev := g.Revision()
	assert.True(t, g.MarkSaved(rev))
	assert.False(t, g.IsModified())

	rev = g.Revision()
	mustAdd(t, g, KindTask)
	assert.False(t, g.MarkSaved(rev))
	assert.True(t, g.IsModified())
}

func TestGraph_SetWorkflowName(t *testing.T) {
	g := New()
	g.SetWorkflowName("")
	assert.False(t, g.IsModified())
	g.SetWorkflowName("hiring")
	assert.True(t, g.IsModified())
	assert.Equal(t, "hiring", g.WorkflowName())
}

func TestGraph_Select(t *testing.T) {
	g := New()
	a := mustAdd(t, g, KindTask)
	assert.False(t, g.Select("node_9"))
	assert.True(t, g.Select(a.ID))
	n, ok := g.Selected()
	require.True(t, ok)
	assert.Equal(t, a.ID, n.ID)
	g.ClearSelection()
	_, ok = g.Selected()
	assert.False(t, ok)
}

func TestGraph_QueriesReturnCopies(t *testing.T) {
	g := New()
	a := mustAdd(t, g, KindTask)
	g.UpdateNodeData(a.ID, NodePatch{Task: Set(schema.Definition{Name: "Approve"})})

	nodes := g.Nodes()
	nodes[0].Data.Task.Name = "mutated"

	n, _ := g.Node(a.ID)
	assert.Equal(t, "Approve", n.Data.Task.Name)
}

func TestGraph_Invariants_AfterRandomOps(t *testing.T) {
	g := New(WithClock(func() time.Time { return time.UnixMilli(1000) }))
	for i := 0; i < 6; i++ {
		kind := []NodeKind{KindTask, KindGateway, KindEvent}[i%3]
		mustAdd(t, g, kind)
	}
	for i := 0; i < 5; i++ {
		_, _ = g.Connect(nodeName(i), nodeName(i+1))
	}
	g.RemoveNode("node_2")
	_, _ = g.Connect("node_5", "node_0")
	g.Undo()
	g.RemoveNode("node_4")

	require.NoError(t, checkInvariants(g.Snapshot()))
}

func nodeName(i int) string {
	return "node_" + string(rune('0'+i))
}
