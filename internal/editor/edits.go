package editor

import (
	"context"

	"github.com/rendis/flowbuilder/internal/graph"
	"github.com/rendis/flowbuilder/pkg/schema"
)

// View is a read-only picture of the session for front ends.
type View struct {
	SessionID string                   `json:"session_id"`
	Document  *schema.WorkflowDocument `json:"document"`
	Selected  string                   `json:"selected,omitempty"`
	Modified  bool                     `json:"modified"`
	Revision  uint64                   `json:"revision"`
	CanUndo   bool                     `json:"can_undo"`
}

// NodeUpdate is a panel edit of a node expressed with catalog keys.
// Nil fields are untouched; an empty key clears the selection.
type NodeUpdate struct {
	Label        *string `json:"label,omitempty"`
	TaskKey      *string `json:"task_key,omitempty"`
	GatewayKey   *string `json:"gateway_key,omitempty"`
	EventKey     *string `json:"event_key,omitempty"`
	EventName    *string `json:"event_name,omitempty"`
	TimeDuration *string `json:"time_duration,omitempty"`
}

// View returns the current document and editor flags.
func (s *Session) View(ctx context.Context) (View, error) {
	var v View
	err := s.Do(ctx, func(st *State) error {
		v = View{
			SessionID: s.id,
			Document:  st.Document(),
			Modified:  st.Graph.IsModified(),
			Revision:  st.Graph.Revision(),
			CanUndo:   st.Graph.History().CanUndo(),
		}
		if n, ok := st.Graph.Selected(); ok {
			v.Selected = n.ID
		}
		return nil
	})
	return v, err
}

// Document returns the workflow document of the current graph.
func (s *Session) Document(ctx context.Context) (*schema.WorkflowDocument, error) {
	var doc *schema.WorkflowDocument
	err := s.Do(ctx, func(st *State) error {
		doc = st.Document()
		return nil
	})
	return doc, err
}

// Node returns a copy of one node.
func (s *Session) Node(ctx context.Context, id string) (graph.Node, error) {
	var n graph.Node
	err := s.Do(ctx, func(st *State) error {
		var ok bool
		if n, ok = st.Graph.Node(id); !ok {
			return nodeNotFound(id)
		}
		return nil
	})
	return n, err
}

// AddNode drops a new node of kind at pos.
func (s *Session) AddNode(ctx context.Context, kind graph.NodeKind, pos schema.Position) (graph.Node, error) {
	var n graph.Node
	err := s.Do(ctx, func(st *State) error {
		var err error
		if n, err = st.Graph.AddNode(kind, pos); err != nil {
			return err
		}
		s.publish(ctx, schema.EventNodeAdded, n.ID, st.Graph.Revision(), map[string]any{
			"kind": n.Kind, "position": n.Position, "label": n.Data.Label,
		})
		return nil
	})
	return n, err
}

// MoveNode repositions a node. Moves cannot be undone.
func (s *Session) MoveNode(ctx context.Context, id string, pos schema.Position) error {
	return s.Do(ctx, func(st *State) error {
		if !st.Graph.MoveNode(id, pos) {
			return nodeNotFound(id)
		}
		s.publish(ctx, schema.EventNodeMoved, id, st.Graph.Revision(), pos)
		return nil
	})
}

// RemoveNode deletes a node with its edges and closes its panel.
func (s *Session) RemoveNode(ctx context.Context, id string) error {
	err := s.Do(ctx, func(st *State) error {
		if !st.Graph.RemoveNode(id) {
			return nodeNotFound(id)
		}
		s.publish(ctx, schema.EventNodeRemoved, id, st.Graph.Revision(), nil)
		return nil
	})
	if err == nil {
		s.tickets.Revoke(id)
	}
	return err
}

// Connect draws an edge from source to target.
func (s *Session) Connect(ctx context.Context, source, target string) (graph.Edge, error) {
	var e graph.Edge
	err := s.Do(ctx, func(st *State) error {
		var err error
		if e, err = st.Graph.Connect(source, target); err != nil {
			return err
		}
		s.publish(ctx, schema.EventEdgeAdded, e.ID, st.Graph.Revision(), map[string]any{
			"source": e.Source, "target": e.Target, "type": e.DocumentType(),
		})
		return nil
	})
	return e, err
}

// RemoveEdge deletes an edge.
func (s *Session) RemoveEdge(ctx context.Context, id string) error {
	return s.Do(ctx, func(st *State) error {
		if !st.Graph.RemoveEdge(id) {
			return edgeNotFound(id)
		}
		s.publish(ctx, schema.EventEdgeRemoved, id, st.Graph.Revision(), nil)
		return nil
	})
}

// SetEdgeCondition attaches the catalog condition with key to a conditional
// edge. An empty key removes the condition.
func (s *Session) SetEdgeCondition(ctx context.Context, edgeID, key string) error {
	patch := graph.EdgePatch{Condition: graph.Clear[schema.Condition]()}
	if key != "" {
		if s.catalog == nil {
			return schema.NewError(schema.ErrCodeNotFound, "condition catalog is not available")
		}
		c, ok := s.catalog.Condition(key)
		if !ok {
			return schema.NewErrorf(schema.ErrCodeValidation, "unknown condition %q", key)
		}
		patch.Condition = graph.Set(c)
	}
	return s.PatchEdge(ctx, edgeID, patch)
}

// PatchEdge applies p to an edge.
func (s *Session) PatchEdge(ctx context.Context, edgeID string, p graph.EdgePatch) error {
	return s.Do(ctx, func(st *State) error {
		ok, err := st.Graph.UpdateEdgeData(edgeID, p)
		if err != nil {
			return err
		}
		if !ok {
			return edgeNotFound(edgeID)
		}
		e, _ := st.Graph.Edge(edgeID)
		s.publish(ctx, schema.EventEdgeUpdated, edgeID, st.Graph.Revision(), map[string]any{"condition": e.Data.Condition})
		return nil
	})
}

// UpdateNode resolves catalog keys in u and merges the result into a node.
func (s *Session) UpdateNode(ctx context.Context, id string, u NodeUpdate) (graph.Node, error) {
	p, err := s.resolve(u)
	if err != nil {
		return graph.Node{}, err
	}
	return s.PatchNode(ctx, id, p)
}

// PatchNode merges p into a node's data and returns the updated node.
func (s *Session) PatchNode(ctx context.Context, id string, p graph.NodePatch) (graph.Node, error) {
	var n graph.Node
	err := s.Do(ctx, func(st *State) error {
		if !st.Graph.UpdateNodeData(id, p) {
			return nodeNotFound(id)
		}
		n, _ = st.Graph.Node(id)
		s.publish(ctx, schema.EventNodeUpdated, id, st.Graph.Revision(), map[string]any{"label": n.Data.Label})
		return nil
	})
	return n, err
}

func (s *Session) resolve(u NodeUpdate) (graph.NodePatch, error) {
	p := graph.NodePatch{Label: u.Label}
	lookup := func(kind, key string, find func(string) (schema.Definition, bool)) (graph.Opt[schema.Definition], error) {
		if key == "" {
			return graph.Clear[schema.Definition](), nil
		}
		if s.catalog == nil {
			return graph.Opt[schema.Definition]{}, schema.NewError(schema.ErrCodeNotFound, "node catalog is not available")
		}
		def, ok := find(key)
		if !ok {
			return graph.Opt[schema.Definition]{}, schema.NewErrorf(schema.ErrCodeValidation, "unknown %s %q", kind, key)
		}
		return graph.Set(def), nil
	}

	var err error
	if u.TaskKey != nil {
		if p.Task, err = lookup("task", *u.TaskKey, s.catalogTask); err != nil {
			return p, err
		}
	}
	if u.GatewayKey != nil {
		if p.Gateway, err = lookup("gateway", *u.GatewayKey, s.catalogGateway); err != nil {
			return p, err
		}
	}
	if u.EventKey != nil {
		if *u.EventKey == "" {
			empty := ""
			p.Event = &graph.EventPatch{Key: &empty, Name: &empty, Type: &empty}
		} else {
			def, err := lookup("event", *u.EventKey, s.catalogEvent)
			if err != nil {
				return p, err
			}
			v, _ := def.Value()
			p.Event = graph.SelectEvent(v)
		}
	}
	if u.EventName != nil || u.TimeDuration != nil {
		if p.Event == nil {
			p.Event = &graph.EventPatch{}
		}
		p.Event.EventName = u.EventName
		p.Event.TimeDuration = u.TimeDuration
	}
	return p, nil
}

func (s *Session) catalogTask(key string) (schema.Definition, bool)    { return s.catalog.Task(key) }
func (s *Session) catalogGateway(key string) (schema.Definition, bool) { return s.catalog.Gateway(key) }
func (s *Session) catalogEvent(key string) (schema.Definition, bool)   { return s.catalog.Event(key) }

// AddMapping pairs a product with an employee on an assignment task.
func (s *Session) AddMapping(ctx context.Context, nodeID, productID, employeeID string) (schema.Mapping, error) {
	var m schema.Mapping
	err := s.Do(ctx, func(st *State) error {
		var err error
		if m, err = st.Graph.AddMapping(nodeID, productID, employeeID); err != nil {
			return err
		}
		s.publish(ctx, schema.EventMappingAdded, nodeID, st.Graph.Revision(), m)
		return nil
	})
	return m, err
}

// UpdateMapping edits an existing mapping.
func (s *Session) UpdateMapping(ctx context.Context, nodeID string, mappingID int64, productID, employeeID string) (schema.Mapping, error) {
	var m schema.Mapping
	err := s.Do(ctx, func(st *State) error {
		var err error
		if m, err = st.Graph.UpdateMapping(nodeID, mappingID, productID, employeeID); err != nil {
			return err
		}
		s.publish(ctx, schema.EventMappingEdited, nodeID, st.Graph.Revision(), m)
		return nil
	})
	return m, err
}

// RemoveMapping deletes a mapping from a node.
func (s *Session) RemoveMapping(ctx context.Context, nodeID string, mappingID int64) error {
	return s.Do(ctx, func(st *State) error {
		if !st.Graph.RemoveMapping(nodeID, mappingID) {
			return schema.NewErrorf(schema.ErrCodeNotFound, "mapping %d not found", mappingID).
				WithNode(nodeID).WithCause(graph.ErrMappingNotFound)
		}
		s.publish(ctx, schema.EventMappingRemoved, nodeID, st.Graph.Revision(), map[string]int64{"id": mappingID})
		return nil
	})
}

// Select marks a node as selected; an empty id clears the selection.
func (s *Session) Select(ctx context.Context, id string) error {
	return s.Do(ctx, func(st *State) error {
		if id == "" {
			st.Graph.ClearSelection()
		} else if !st.Graph.Select(id) {
			return nodeNotFound(id)
		}
		s.publish(ctx, schema.EventNodeSelected, id, st.Graph.Revision(), nil)
		return nil
	})
}

// Undo reverts the last recorded change. Returns false when there is none.
func (s *Session) Undo(ctx context.Context) (bool, error) {
	var undone bool
	err := s.Do(ctx, func(st *State) error {
		if undone = st.Graph.Undo(); undone {
			s.publish(ctx, schema.EventHistoryUndo, "", st.Graph.Revision(), map[string]int{"remaining": st.Graph.History().Len()})
		}
		return nil
	})
	return undone, err
}

// Rename sets the workflow name.
func (s *Session) Rename(ctx context.Context, name string) error {
	return s.Do(ctx, func(st *State) error {
		st.Graph.SetWorkflowName(name)
		s.publish(ctx, schema.EventWorkflowRenamed, "", st.Graph.Revision(), map[string]string{"workflowName": name})
		return nil
	})
}

func nodeNotFound(id string) error {
	return schema.NewError(schema.ErrCodeNotFound, "node not found").WithNode(id).WithCause(graph.ErrNodeNotFound)
}

func edgeNotFound(id string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "edge %s not found", id).WithCause(graph.ErrEdgeNotFound)
}
