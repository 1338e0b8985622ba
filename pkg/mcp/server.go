package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/flowbuilder/internal/catalog"
	"github.com/rendis/flowbuilder/internal/editor"
	"github.com/rendis/flowbuilder/internal/streaming"
)

// FlowServerDeps holds the dependencies for creating a FlowServer.
type FlowServerDeps struct {
	Session *editor.Session
	Catalog *catalog.Service
	Hub     streaming.EventHub
	Logger  *slog.Logger
}

// FlowServer exposes an editor session to agents as MCP tools.
type FlowServer struct {
	session   *editor.Session
	catalog   *catalog.Service
	hub       streaming.EventHub
	logger    *slog.Logger
	sessions  *SessionRegistry
	mcpServer *server.MCPServer
}

// NewFlowServer creates a FlowServer with every editor tool registered.
func NewFlowServer(deps FlowServerDeps) *FlowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &FlowServer{
		session:  deps.Session,
		catalog:  deps.Catalog,
		hub:      deps.Hub,
		logger:   logger,
		sessions: NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"flowbuilder",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Flowbuilder edits a workflow graph of task, gateway and event nodes. "+
			"Use flow.view to read the current document, flow.add_node and flow.connect to build it, "+
			"flow.update_node to pick catalog definitions, flow.validate before flow.save, and flow.diagram to see it."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
// Editor events are forwarded to agents that passed an agent_id while it runs.
func (s *FlowServer) Serve(ctx context.Context) error {
	go s.forwardEvents(ctx, NewMCPNotifier(s.mcpServer, s.sessions))
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *FlowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: viewTool(), Handler: s.handleView},
		{Tool: addNodeTool(), Handler: s.handleAddNode},
		{Tool: moveNodeTool(), Handler: s.handleMoveNode},
		{Tool: updateNodeTool(), Handler: s.handleUpdateNode},
		{Tool: removeNodeTool(), Handler: s.handleRemoveNode},
		{Tool: connectTool(), Handler: s.handleConnect},
		{Tool: removeEdgeTool(), Handler: s.handleRemoveEdge},
		{Tool: setConditionTool(), Handler: s.handleSetCondition},
		{Tool: mappingTool(), Handler: s.handleMapping},
		{Tool: undoTool(), Handler: s.handleUndo},
		{Tool: loadTool(), Handler: s.handleLoad},
		{Tool: saveTool(), Handler: s.handleSave},
		{Tool: generateTool(), Handler: s.handleGenerate},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: exportTool(), Handler: s.handleExport},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: catalogTool(), Handler: s.handleCatalog},
	}
}

// --- Tool definitions ---

func agentOption() mcp.ToolOption {
	return mcp.WithString("agent_id", mcp.Description("ID of the calling agent; subscribes it to editor change notifications"))
}

func viewTool() mcp.Tool {
	return mcp.NewTool("flow.view",
		mcp.WithDescription("Get the current workflow document with selection, modified flag and revision"),
		agentOption(),
	)
}

func addNodeTool() mcp.Tool {
	return mcp.NewTool("flow.add_node",
		mcp.WithDescription("Add a node to the canvas"),
		mcp.WithString("type", mcp.Required(),
			mcp.Enum("task", "gateway", "event"),
			mcp.Description("Node type"),
		),
		mcp.WithNumber("x", mcp.Description("Canvas x position")),
		mcp.WithNumber("y", mcp.Description("Canvas y position")),
		agentOption(),
	)
}

func moveNodeTool() mcp.Tool {
	return mcp.NewTool("flow.move_node",
		mcp.WithDescription("Move a node to a new canvas position"),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("ID of the node")),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("Canvas x position")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Canvas y position")),
	)
}

func updateNodeTool() mcp.Tool {
	return mcp.NewTool("flow.update_node",
		mcp.WithDescription("Edit a node's properties. Omitted fields are unchanged; an empty key clears the selection"),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("ID of the node")),
		mcp.WithString("label", mcp.Description("Display label")),
		mcp.WithString("task_key", mcp.Description("Catalog key of the task definition (task nodes)")),
		mcp.WithString("gateway_key", mcp.Description("Catalog key of the gateway definition (gateway nodes)")),
		mcp.WithString("event_key", mcp.Description("Catalog key of the event definition (event nodes)")),
		mcp.WithString("event_name", mcp.Description("Event name (event nodes)")),
		mcp.WithString("time_duration", mcp.Description("ISO-8601 duration for timer events, e.g. PT5M")),
		agentOption(),
	)
}

func removeNodeTool() mcp.Tool {
	return mcp.NewTool("flow.remove_node",
		mcp.WithDescription("Remove a node and every edge touching it"),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("ID of the node")),
		agentOption(),
	)
}

func connectTool() mcp.Tool {
	return mcp.NewTool("flow.connect",
		mcp.WithDescription("Connect two nodes. Edges leaving a gateway are conditional"),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source node ID")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target node ID")),
		agentOption(),
	)
}

func removeEdgeTool() mcp.Tool {
	return mcp.NewTool("flow.remove_edge",
		mcp.WithDescription("Remove an edge"),
		mcp.WithString("edge_id", mcp.Required(), mcp.Description("ID of the edge")),
	)
}

func setConditionTool() mcp.Tool {
	return mcp.NewTool("flow.set_condition",
		mcp.WithDescription("Attach a catalog condition to a conditional edge; an empty key removes it"),
		mcp.WithString("edge_id", mcp.Required(), mcp.Description("ID of the conditional edge")),
		mcp.WithString("condition_key", mcp.Description("Catalog condition key")),
	)
}

func mappingTool() mcp.Tool {
	return mcp.NewTool("flow.mapping",
		mcp.WithDescription("Add, update or remove a product-employee mapping on an assignment task"),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("ID of the assignment task node")),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("add", "update", "remove"),
			mcp.Description("Mapping operation"),
		),
		mcp.WithNumber("mapping_id", mcp.Description("Mapping ID (update and remove)")),
		mcp.WithString("product_id", mcp.Description("Product ID (add and update)")),
		mcp.WithString("employee_id", mcp.Description("Employee ID (add and update)")),
	)
}

func undoTool() mcp.Tool {
	return mcp.NewTool("flow.undo",
		mcp.WithDescription("Revert the last structural change"),
	)
}

func loadTool() mcp.Tool {
	return mcp.NewTool("flow.load",
		mcp.WithDescription("Replace the graph with a stored workflow, a local draft, or a posted document"),
		mcp.WithString("name", mcp.Description("Workflow name in the backend")),
		mcp.WithString("draft", mcp.Description("Local draft name")),
		mcp.WithObject("document", mcp.Description("Workflow document to load")),
	)
}

func saveTool() mcp.Tool {
	return mcp.NewTool("flow.save",
		mcp.WithDescription("Save the workflow to the backend, or as a local draft when draft is set"),
		mcp.WithString("workflow_name", mcp.Description("Rename the workflow before saving")),
		mcp.WithString("draft", mcp.Description("Save as a local draft with this name instead")),
	)
}

func generateTool() mcp.Tool {
	return mcp.NewTool("flow.generate",
		mcp.WithDescription("Ask the backend to generate the executable BPMN process for the workflow"),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("flow.validate",
		mcp.WithDescription("Check the workflow for structural and catalog errors"),
	)
}

func exportTool() mcp.Tool {
	return mcp.NewTool("flow.export",
		mcp.WithDescription("Export the workflow document"),
		mcp.WithString("format",
			mcp.Enum("json", "yaml"),
			mcp.Description("Document format (default: json)"),
		),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("flow.diagram",
		mcp.WithDescription("Generate a visual diagram of the workflow with validation findings. Returns ASCII art, Mermaid or DOT source, or a PNG image"),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "dot", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), dot (Graphviz source), or image (PNG)"),
		),
	)
}

func catalogTool() mcp.Tool {
	return mcp.NewTool("flow.catalog",
		mcp.WithDescription("List the task, gateway and event definitions, conditions, products and employees"),
		mcp.WithBoolean("refresh", mcp.Description("Fetch from the backend before answering")),
	)
}
