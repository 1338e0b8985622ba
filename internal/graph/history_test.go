package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(ids ...string) Snapshot {
	s := Snapshot{}
	for _, id := range ids {
		s.Nodes = append(s.Nodes, Node{ID: id, Kind: KindTask, Data: NodeData{Label: "Task Node"}})
	}
	return s
}

func TestHistory_EmptyUndo(t *testing.T) {
	h := NewHistory(0)
	assert.Equal(t, DefaultHistoryCapacity, h.Capacity())
	assert.False(t, h.CanUndo())
	_, ok := h.Undo()
	assert.False(t, ok)
}

func TestHistory_RecordThenUndo(t *testing.T) {
	h := NewHistory(5)
	h.Record(snap())
	h.Record(snap("node_0"))

	s, ok := h.Undo()
	require.True(t, ok)
	assert.Len(t, s.Nodes, 1)

	s, ok = h.Undo()
	require.True(t, ok)
	assert.Empty(t, s.Nodes)

	_, ok = h.Undo()
	assert.False(t, ok)
}

func TestHistory_RecordTruncatesFuture(t *testing.T) {
	h := NewHistory(5)
	h.Record(snap())
	h.Record(snap("node_0"))
	h.Record(snap("node_0", "node_1"))

	_, _ = h.Undo()
	_, _ = h.Undo()
	h.Record(snap("node_9"))

	assert.Equal(t, 2, h.Len())
	s, ok := h.Undo()
	require.True(t, ok)
	assert.Equal(t, "node_9", s.Nodes[0].ID)
}

func TestHistory_CapacityEvictsOldest(t *testing.T) {
	h := NewHistory(DefaultHistoryCapacity)
	for i := 0; i < 60; i++ {
		h.Record(snap(fmt.Sprintf("node_%d", i)))
		assert.LessOrEqual(t, h.Len(), DefaultHistoryCapacity)
	}
	assert.Equal(t, DefaultHistoryCapacity, h.Len())

	var last Snapshot
	undos := 0
	for h.CanUndo() {
		last, _ = h.Undo()
		undos++
	}
	assert.Equal(t, DefaultHistoryCapacity, undos)
	assert.Equal(t, "node_10", last.Nodes[0].ID)
}

func TestHistory_SnapshotsAreImmutable(t *testing.T) {
	h := NewHistory(5)
	s := snap("node_0")
	h.Record(s)
	s.Nodes[0].Data.Label = "mutated"

	got, ok := h.Undo()
	require.True(t, ok)
	assert.Equal(t, "Task Node", got.Nodes[0].Data.Label)
}

func TestHistory_Reset(t *testing.T) {
	h := NewHistory(5)
	h.Record(snap())
	h.Reset()
	assert.Zero(t, h.Len())
	assert.False(t, h.CanUndo())
}
