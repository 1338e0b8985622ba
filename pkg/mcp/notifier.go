package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/flowbuilder/internal/streaming"
	"github.com/rendis/flowbuilder/pkg/schema"
)

// AgentNotifier pushes notifications to connected agents.
type AgentNotifier interface {
	Notify(ctx context.Context, agentID string, payload map[string]any) error
}

// MCPNotifier implements AgentNotifier using MCP server push.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes via MCP.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends a notification to the agent's session.
// Best-effort: returns nil if the agent is not connected.
func (n *MCPNotifier) Notify(_ context.Context, agentID string, payload map[string]any) error {
	sessionID, ok := n.sessions.SessionFor(agentID)
	if !ok {
		return nil
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session went away between lookup and send.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}

// forwardEvents relays this server's editor events to every registered agent
// until ctx ends.
func (s *FlowServer) forwardEvents(ctx context.Context, notifier AgentNotifier) {
	if s.hub == nil || s.session == nil {
		return
	}
	ch, cancel, err := s.hub.Subscribe(ctx, streaming.EventFilter{SessionID: s.session.ID()})
	if err != nil {
		s.logger.Error("mcp event subscribe failed", "error", err)
		return
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			payload := eventPayload(evt)
			for _, agentID := range s.sessions.Agents() {
				if err := notifier.Notify(ctx, agentID, payload); err != nil {
					s.logger.Warn("agent notification failed", "agent_id", agentID, "error", err)
				}
			}
		}
	}
}

// eventPayload is the notification body for one editor event.
func eventPayload(evt schema.EditorEvent) map[string]any {
	p := map[string]any{
		"level":    "info",
		"logger":   "flowbuilder",
		"event":    evt.Type,
		"revision": evt.Revision,
	}
	if evt.ElementID != "" {
		p["element_id"] = evt.ElementID
	}
	if len(evt.Payload) > 0 {
		p["data"] = json.RawMessage(evt.Payload)
	}
	return p
}
