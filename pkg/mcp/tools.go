package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/flowbuilder/internal/client"
	"github.com/rendis/flowbuilder/internal/codec"
	"github.com/rendis/flowbuilder/internal/diagram"
	"github.com/rendis/flowbuilder/internal/editor"
	"github.com/rendis/flowbuilder/internal/graph"
	"github.com/rendis/flowbuilder/pkg/schema"
)

// handleView returns the document with the editor flags.
func (s *FlowServer) handleView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureAgent(ctx, req)
	v, err := s.session.View(ctx)
	if err != nil {
		return toolError("view", err), nil
	}
	return marshalResult(v)
}

// handleAddNode drops a node of the given type.
func (s *FlowServer) handleAddNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureAgent(ctx, req)
	typ, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError("type is required"), nil
	}
	kind, ok := graph.ParseNodeKind(typ)
	if !ok {
		return mcp.NewToolResultError("type must be task, gateway, or event"), nil
	}
	pos := schema.Position{X: req.GetFloat("x", 0), Y: req.GetFloat("y", 0)}

	n, err := s.session.AddNode(ctx, kind, pos)
	if err != nil {
		return toolError("add node", err), nil
	}
	return marshalResult(codec.NodeDocument(n))
}

func (s *FlowServer) handleMoveNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError("node_id is required"), nil
	}
	x, errX := req.RequireFloat("x")
	y, errY := req.RequireFloat("y")
	if errX != nil || errY != nil {
		return mcp.NewToolResultError("x and y are required"), nil
	}
	if err := s.session.MoveNode(ctx, nodeID, schema.Position{X: x, Y: y}); err != nil {
		return toolError("move node", err), nil
	}
	return marshalResult(map[string]any{"ok": true, "node_id": nodeID})
}

// handleUpdateNode resolves catalog keys and merges them into a node.
// Only arguments that are present take part in the update.
func (s *FlowServer) handleUpdateNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureAgent(ctx, req)
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError("node_id is required"), nil
	}
	args := req.GetArguments()
	u := editor.NodeUpdate{
		Label:        optString(args, "label"),
		TaskKey:      optString(args, "task_key"),
		GatewayKey:   optString(args, "gateway_key"),
		EventKey:     optString(args, "event_key"),
		EventName:    optString(args, "event_name"),
		TimeDuration: optString(args, "time_duration"),
	}
	n, err := s.session.UpdateNode(ctx, nodeID, u)
	if err != nil {
		return toolError("update node", err), nil
	}
	return marshalResult(codec.NodeDocument(n))
}

func (s *FlowServer) handleRemoveNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureAgent(ctx, req)
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError("node_id is required"), nil
	}
	if err := s.session.RemoveNode(ctx, nodeID); err != nil {
		return toolError("remove node", err), nil
	}
	return marshalResult(map[string]any{"ok": true, "node_id": nodeID})
}

// handleConnect draws an edge; its type follows from the source node.
func (s *FlowServer) handleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureAgent(ctx, req)
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source is required"), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError("target is required"), nil
	}
	e, err := s.session.Connect(ctx, source, target)
	if err != nil {
		return toolError("connect", err), nil
	}
	return marshalResult(codec.EdgeDocument(e))
}

func (s *FlowServer) handleRemoveEdge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	edgeID, err := req.RequireString("edge_id")
	if err != nil {
		return mcp.NewToolResultError("edge_id is required"), nil
	}
	if err := s.session.RemoveEdge(ctx, edgeID); err != nil {
		return toolError("remove edge", err), nil
	}
	return marshalResult(map[string]any{"ok": true, "edge_id": edgeID})
}

func (s *FlowServer) handleSetCondition(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	edgeID, err := req.RequireString("edge_id")
	if err != nil {
		return mcp.NewToolResultError("edge_id is required"), nil
	}
	key := req.GetString("condition_key", "")
	if err := s.session.SetEdgeCondition(ctx, edgeID, key); err != nil {
		return toolError("set condition", err), nil
	}
	return marshalResult(map[string]any{"ok": true, "edge_id": edgeID, "condition_key": key})
}

// handleMapping dispatches on action.
func (s *FlowServer) handleMapping(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError("node_id is required"), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	productID := req.GetString("product_id", "")
	employeeID := req.GetString("employee_id", "")
	mappingID := int64(req.GetFloat("mapping_id", 0))

	switch action {
	case "add":
		m, addErr := s.session.AddMapping(ctx, nodeID, productID, employeeID)
		if addErr != nil {
			return toolError("add mapping", addErr), nil
		}
		return marshalResult(m)
	case "update":
		if mappingID == 0 {
			return mcp.NewToolResultError("mapping_id is required for update"), nil
		}
		m, updErr := s.session.UpdateMapping(ctx, nodeID, mappingID, productID, employeeID)
		if updErr != nil {
			return toolError("update mapping", updErr), nil
		}
		return marshalResult(m)
	case "remove":
		if mappingID == 0 {
			return mcp.NewToolResultError("mapping_id is required for remove"), nil
		}
		if rmErr := s.session.RemoveMapping(ctx, nodeID, mappingID); rmErr != nil {
			return toolError("remove mapping", rmErr), nil
		}
		return marshalResult(map[string]any{"ok": true, "mapping_id": mappingID})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q (valid: add, update, remove)", action)), nil
	}
}

func (s *FlowServer) handleUndo(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	undone, err := s.session.Undo(ctx)
	if err != nil {
		return toolError("undo", err), nil
	}
	return marshalResult(map[string]any{"undone": undone})
}

// handleLoad loads exactly one of name, draft or document.
func (s *FlowServer) handleLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	draft := req.GetString("draft", "")
	doc, hasDoc := req.GetArguments()["document"]

	given := 0
	for _, ok := range []bool{name != "", draft != "", hasDoc && doc != nil} {
		if ok {
			given++
		}
	}
	if given != 1 {
		return mcp.NewToolResultError("exactly one of name, draft, or document is required"), nil
	}

	var (
		warnings []string
		err      error
	)
	switch {
	case name != "":
		warnings, err = s.session.LoadByName(ctx, name)
	case draft != "":
		warnings, err = s.session.LoadDraft(ctx, draft)
	default:
		raw, mErr := json.Marshal(doc)
		if mErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", mErr)), nil
		}
		warnings, err = s.session.LoadDocument(ctx, raw)
	}
	if err != nil {
		return toolError("load", err), nil
	}
	if warnings == nil {
		warnings = []string{}
	}
	return marshalResult(map[string]any{"ok": true, "warnings": warnings})
}

// handleSave saves to the backend, or to a local draft when draft is set.
func (s *FlowServer) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if name := req.GetString("workflow_name", ""); name != "" {
		if err := s.session.Rename(ctx, name); err != nil {
			return toolError("rename", err), nil
		}
	}
	if draft := req.GetString("draft", ""); draft != "" {
		d, err := s.session.SaveDraft(ctx, draft)
		if err != nil {
			return toolError("save draft", err), nil
		}
		return marshalResult(map[string]any{"ok": true, "draft": d.Name, "revision": d.Revision})
	}
	res, err := s.session.Save(ctx)
	return backendResult("save", res, err)
}

func (s *FlowServer) handleGenerate(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.session.GenerateBPMN(ctx)
	return backendResult("generate", res, err)
}

func (s *FlowServer) handleValidate(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.session.Validate(ctx)
	if err != nil {
		return toolError("validate", err), nil
	}
	return marshalResult(map[string]any{
		"valid":    res.Valid(),
		"errors":   res.Errors,
		"warnings": res.Warnings,
	})
}

func (s *FlowServer) handleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := s.session.Export(ctx, req.GetString("format", editor.FormatJSON))
	if err != nil {
		return toolError("export", err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleDiagram renders the current graph with validation findings.
func (s *FlowServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	switch format {
	case "ascii", "mermaid", "dot", "image":
	default:
		return mcp.NewToolResultError("format must be ascii, mermaid, dot, or image"), nil
	}

	doc, err := s.session.Document(ctx)
	if err != nil {
		return toolError("diagram", err), nil
	}
	findings, err := s.session.Validate(ctx)
	if err != nil {
		return toolError("diagram", err), nil
	}
	model, buildErr := diagram.Build(doc, findings)
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", buildErr)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "dot":
		src, dotErr := diagram.RenderDOT(model)
		if dotErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("dot render failed: %v", dotErr)), nil
		}
		return mcp.NewToolResultText(src), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		encoded := base64.StdEncoding.EncodeToString(png)
		return mcp.NewToolResultImage(model.Title, encoded, "image/png"), nil
	}
}

func (s *FlowServer) handleCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.catalog == nil {
		return mcp.NewToolResultError("catalog is not configured"), nil
	}
	if req.GetBool("refresh", false) {
		return marshalResult(s.catalog.Refresh(ctx))
	}
	return marshalResult(s.catalog.Snapshot())
}

// --- Helpers ---

// captureAgent maps the caller's agent_id to its MCP session for notifications.
func (s *FlowServer) captureAgent(ctx context.Context, req mcp.CallToolRequest) {
	agentID := req.GetString("agent_id", "")
	if agentID == "" {
		return
	}
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(agentID, session.SessionID())
	}
}

// optString returns a pointer to a string argument when it is present.
func optString(args map[string]any, key string) *string {
	v, ok := args[key].(string)
	if !ok {
		return nil
	}
	return &v
}

// toolError renders err as a tool error, keeping the FlowError code.
func toolError(action string, err error) *mcp.CallToolResult {
	if code := schema.ErrorCode(err); code != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed [%s]: %v", action, code, err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", action, err))
}

// backendResult reports a backend call. Failures carry the backend message.
func backendResult(action string, res client.Result, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		msg := strings.TrimSpace(res.Message)
		if msg == "" {
			return toolError(action, err), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %s (%v)", action, msg, err)), nil
	}
	out := map[string]any{"success": res.Success, "message": res.Message}
	if json.Valid(res.Data) {
		out["data"] = json.RawMessage(res.Data)
	}
	return marshalResult(out)
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
