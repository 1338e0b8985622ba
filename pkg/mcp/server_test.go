package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFlowServer(t *testing.T) {
	s := NewFlowServer(FlowServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.sessions)
}

func TestToolRegistration(t *testing.T) {
	s := NewFlowServer(FlowServerDeps{})

	expectedTools := []string{
		"flow.view",
		"flow.add_node",
		"flow.move_node",
		"flow.update_node",
		"flow.remove_node",
		"flow.connect",
		"flow.remove_edge",
		"flow.set_condition",
		"flow.mapping",
		"flow.undo",
		"flow.load",
		"flow.save",
		"flow.generate",
		"flow.validate",
		"flow.export",
		"flow.diagram",
		"flow.catalog",
	}
	require.Len(t, s.mcpServer.ListTools(), len(expectedTools))
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"add node", "flow.add_node", "Add a node to the canvas"},
		{"connect", "flow.connect", "Connect two nodes. Edges leaving a gateway are conditional"},
		{"undo", "flow.undo", "Revert the last structural change"},
		{"validate", "flow.validate", "Check the workflow for structural and catalog errors"},
	}

	s := NewFlowServer(FlowServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
