package schema

import (
	"encoding/json"
	"time"
)

// Event type constants published by an editor session.
const (
	EventNodeAdded      = "node_added"
	EventNodeMoved      = "node_moved"
	EventNodeRemoved    = "node_removed"
	EventNodeUpdated    = "node_updated"
	EventNodeSelected   = "node_selected"
	EventEdgeAdded      = "edge_added"
	EventEdgeRemoved    = "edge_removed"
	EventEdgeUpdated    = "edge_updated"
	EventMappingAdded   = "mapping_added"
	EventMappingEdited  = "mapping_edited"
	EventMappingRemoved = "mapping_removed"

	EventHistoryUndo = "history_undo"

	EventWorkflowLoaded    = "workflow_loaded"
	EventWorkflowCleared   = "workflow_cleared"
	EventWorkflowRenamed   = "workflow_renamed"
	EventWorkflowSaved     = "workflow_saved"
	EventWorkflowDeleted   = "workflow_deleted"
	EventWorkflowGenerated = "workflow_generated"
	EventSaveFailed        = "save_failed"

	EventCatalogRefreshed = "catalog_refreshed"
)

// EditorEvent is a single change notification emitted by a session.
type EditorEvent struct {
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	ElementID string          `json:"element_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Revision  uint64          `json:"revision"`
	Timestamp time.Time       `json:"timestamp"`
}
