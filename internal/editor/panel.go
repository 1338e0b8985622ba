package editor

import (
	"context"

	"github.com/rendis/flowbuilder/internal/catalog"
	"github.com/rendis/flowbuilder/internal/graph"
	"github.com/rendis/flowbuilder/pkg/schema"
)

// ErrPanelClosed marks a panel result that arrived after its panel was
// closed or reopened.
var ErrPanelClosed = schema.NewError(schema.ErrCodeCancelled, "properties panel was closed")

// PanelData is what a properties panel shows for one node.
type PanelData struct {
	Node     graph.Node       `json:"-"`
	Options  catalog.Snapshot `json:"options"`
	Assigned bool             `json:"assigned"`
}

// OpenPanel loads the catalog options for a node's properties panel. Opening
// the same panel again, closing it, or removing the node while the catalog
// is loading discards the result with ErrPanelClosed.
func (s *Session) OpenPanel(ctx context.Context, nodeID string, refresh bool) (PanelData, error) {
	ticket := s.tickets.Issue(nodeID)
	if _, err := s.Node(ctx, nodeID); err != nil {
		s.tickets.Revoke(nodeID)
		return PanelData{}, err
	}

	var opts catalog.Snapshot
	switch {
	case s.catalog == nil:
		opts = catalog.Snapshot{}
	case refresh:
		opts = s.catalog.Refresh(ctx)
	default:
		opts = s.catalog.Snapshot()
	}

	var out PanelData
	err := s.Do(ctx, func(st *State) error {
		if !ticket.Valid() {
			return ErrPanelClosed
		}
		n, ok := st.Graph.Node(nodeID)
		if !ok {
			return nodeNotFound(nodeID)
		}
		out = PanelData{Node: n, Options: opts}
		if n.Data.Task != nil {
			out.Assigned = st.Graph.AssignmentRule()(*n.Data.Task)
		}
		st.Graph.Select(nodeID)
		return nil
	})
	return out, err
}

// ClosePanel discards any in-flight OpenPanel for the node.
func (s *Session) ClosePanel(nodeID string) {
	s.tickets.Revoke(nodeID)
}
