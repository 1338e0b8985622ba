package panel

import (
	"net/http"
	"strconv"

	"github.com/rendis/flowbuilder/internal/codec"
	"github.com/rendis/flowbuilder/internal/editor"
	"github.com/rendis/flowbuilder/internal/graph"
	"github.com/rendis/flowbuilder/pkg/schema"
)

// handleView returns the document with the editor flags.
func (s *PanelServer) handleView(w http.ResponseWriter, r *http.Request) {
	v, err := s.deps.Session.View(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleAddNode drops a node of the given type.
func (s *PanelServer) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type     string          `json:"type"`
		Position schema.Position `json:"position"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind, ok := graph.ParseNodeKind(body.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "type must be task, gateway or event")
		return
	}

	n, err := s.deps.Session.AddNode(r.Context(), kind, body.Position)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, codec.NodeDocument(n))
}

func (s *PanelServer) handleGetNode(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Session.Node(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, codec.NodeDocument(n))
}

// handleUpdateNode applies a panel edit expressed with catalog keys.
func (s *PanelServer) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	var body editor.NodeUpdate
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := s.deps.Session.UpdateNode(r.Context(), r.PathValue("id"), body)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, codec.NodeDocument(n))
}

func (s *PanelServer) handleMoveNode(w http.ResponseWriter, r *http.Request) {
	var pos schema.Position
	if err := decodeBody(r, &pos); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Session.MoveNode(r.Context(), r.PathValue("id"), pos); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveNode deletes a node with its incident edges.
func (s *PanelServer) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Session.RemoveNode(r.Context(), r.PathValue("id")); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mappingBody struct {
	ProductID  string `json:"product_id"`
	EmployeeID string `json:"employee_id"`
}

func (s *PanelServer) handleAddMapping(w http.ResponseWriter, r *http.Request) {
	var body mappingBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := s.deps.Session.AddMapping(r.Context(), r.PathValue("id"), body.ProductID, body.EmployeeID)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *PanelServer) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	mappingID, ok := pathMappingID(w, r)
	if !ok {
		return
	}
	var body mappingBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := s.deps.Session.UpdateMapping(r.Context(), r.PathValue("id"), mappingID, body.ProductID, body.EmployeeID)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *PanelServer) handleRemoveMapping(w http.ResponseWriter, r *http.Request) {
	mappingID, ok := pathMappingID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Session.RemoveMapping(r.Context(), r.PathValue("id"), mappingID); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathMappingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("mapping"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "mapping id must be an integer")
		return 0, false
	}
	return id, true
}

// handleOpenPanel loads the catalog options for a node's properties panel.
// ?refresh=true fetches the catalog before answering.
func (s *PanelServer) handleOpenPanel(w http.ResponseWriter, r *http.Request) {
	data, err := s.deps.Session.OpenPanel(r.Context(), r.PathValue("id"), queryBool(r, "refresh"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"node":     codec.NodeDocument(data.Node),
		"options":  data.Options,
		"assigned": data.Assigned,
	})
}

func (s *PanelServer) handleClosePanel(w http.ResponseWriter, r *http.Request) {
	s.deps.Session.ClosePanel(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// handleConnect adds an edge between two nodes.
func (s *PanelServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Source string `json:"source"`
		Target string `json:"target"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Source == "" || body.Target == "" {
		writeError(w, http.StatusBadRequest, "source and target are required")
		return
	}
	e, err := s.deps.Session.Connect(r.Context(), body.Source, body.Target)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, codec.EdgeDocument(e))
}

func (s *PanelServer) handleRemoveEdge(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Session.RemoveEdge(r.Context(), r.PathValue("id")); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetCondition picks a catalog condition for a conditional edge. An
// empty key clears it.
func (s *PanelServer) handleSetCondition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ConditionKey string `json:"condition_key"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Session.SetEdgeCondition(r.Context(), r.PathValue("id"), body.ConditionKey); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *PanelServer) handleSelect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Session.Select(r.Context(), body.ID); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUndo reverts the last change. Nothing to undo is not an error.
func (s *PanelServer) handleUndo(w http.ResponseWriter, r *http.Request) {
	undone, err := s.deps.Session.Undo(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"undone": undone})
}

func (s *PanelServer) handleRename(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Session.Rename(r.Context(), body.Name); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *PanelServer) handleSetIdentity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID  string `json:"client_id"`
		CompanyID string `json:"company_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Session.SetIdentity(r.Context(), body.ClientID, body.CompanyID); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
